// Package objectdiff is the semantic diff/rename engine (spec §4.6): given
// two parsed versions of an object, it produces the added/deleted/modified/
// renamed sets for verbs and properties, and can invert a whole Change so a
// not-yet-merged change can be locally undone.
package objectdiff

import (
	"sort"

	"github.com/biscuitwizard/moovcs/internal/codec"
	"github.com/biscuitwizard/moovcs/internal/vcstypes"
)

// StringSet is a small set type with deterministic iteration via Sorted().
type StringSet map[string]struct{}

func NewStringSet(items ...string) StringSet {
	s := make(StringSet, len(items))
	for _, i := range items {
		s[i] = struct{}{}
	}
	return s
}

func (s StringSet) Add(item string)       { s[item] = struct{}{} }
func (s StringSet) Remove(item string)     { delete(s, item) }
func (s StringSet) Has(item string) bool   { _, ok := s[item]; return ok }
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ObjectChange is the structured diff between two versions of one object
// (spec §4.6).
type ObjectChange struct {
	ObjID         string            `json:"obj_id"`
	VerbsAdded    StringSet         `json:"verbs_added"`
	VerbsDeleted  StringSet         `json:"verbs_deleted"`
	VerbsModified StringSet         `json:"verbs_modified"`
	VerbsRenamed  map[string]string `json:"verbs_renamed"`
	PropsAdded    StringSet         `json:"props_added"`
	PropsDeleted  StringSet         `json:"props_deleted"`
	PropsModified StringSet         `json:"props_modified"`
	PropsRenamed  map[string]string `json:"props_renamed"`
}

func NewObjectChange(objID string) *ObjectChange {
	return &ObjectChange{
		ObjID:         objID,
		VerbsAdded:    StringSet{},
		VerbsDeleted:  StringSet{},
		VerbsModified: StringSet{},
		VerbsRenamed:  map[string]string{},
		PropsAdded:    StringSet{},
		PropsDeleted:  StringSet{},
		PropsModified: StringSet{},
		PropsRenamed:  map[string]string{},
	}
}

// IsEmpty reports whether the change has no effect at all.
func (c *ObjectChange) IsEmpty() bool {
	return len(c.VerbsAdded) == 0 && len(c.VerbsDeleted) == 0 && len(c.VerbsModified) == 0 &&
		len(c.VerbsRenamed) == 0 && len(c.PropsAdded) == 0 && len(c.PropsDeleted) == 0 &&
		len(c.PropsModified) == 0 && len(c.PropsRenamed) == 0
}

func aliasBodies(verbs []codec.Verb) map[string]string {
	out := map[string]string{}
	for _, v := range verbs {
		for _, alias := range v.Aliases {
			out[alias] = v.Body
		}
	}
	return out
}

func propValues(props []codec.Property) map[string]string {
	out := map[string]string{}
	for _, p := range props {
		out[p.Name] = p.Value
	}
	return out
}

func isEmptyValue(v string) bool {
	return v == "" || v == vcstypes.ClearedValue
}

// Diff compares old (a) to new (b) and produces the ObjectChange, applying
// verb/property rename hints from the enclosing change before falling back
// to body/value-equality rename detection (spec §4.6).
func Diff(objID string, a, b *codec.ParsedObject, verbHints []vcstypes.VerbRenameHint, propHints []vcstypes.PropertyRenameHint) *ObjectChange {
	oc := NewObjectChange(objID)

	oldVerbs := aliasBodies(a.Verbs)
	newVerbs := aliasBodies(b.Verbs)
	deletedVerbs := NewStringSet()
	addedVerbs := NewStringSet()
	for name := range oldVerbs {
		if _, ok := newVerbs[name]; !ok {
			deletedVerbs.Add(name)
		}
	}
	for name := range newVerbs {
		if oldBody, ok := oldVerbs[name]; !ok {
			addedVerbs.Add(name)
		} else if oldBody != newVerbs[name] {
			oc.VerbsModified.Add(name)
		}
	}

	applyVerbHints(objID, verbHints, deletedVerbs, addedVerbs, oc.VerbsRenamed)
	pairByEquality(deletedVerbs, addedVerbs, oc.VerbsRenamed, func(from, to string) bool {
		return oldVerbs[from] == newVerbs[to]
	})
	for d := range deletedVerbs {
		oc.VerbsDeleted.Add(d)
	}
	for a := range addedVerbs {
		oc.VerbsAdded.Add(a)
	}

	oldProps := propValues(a.Properties)
	newProps := propValues(b.Properties)
	deletedProps := NewStringSet()
	addedProps := NewStringSet()
	for name := range oldProps {
		if _, ok := newProps[name]; !ok {
			deletedProps.Add(name)
		}
	}
	for name := range newProps {
		if oldVal, ok := oldProps[name]; !ok {
			addedProps.Add(name)
		} else if oldVal != newProps[name] {
			oc.PropsModified.Add(name)
		}
	}

	applyPropHints(objID, propHints, deletedProps, addedProps, oc.PropsRenamed)
	pairByEquality(deletedProps, addedProps, oc.PropsRenamed, func(from, to string) bool {
		// Empty/cleared values never participate in rename pairing (spec
		// §4.6): every empty property would otherwise match every other.
		if isEmptyValue(oldProps[from]) || isEmptyValue(newProps[to]) {
			return false
		}
		return oldProps[from] == newProps[to]
	})
	for d := range deletedProps {
		oc.PropsDeleted.Add(d)
	}
	for a := range addedProps {
		oc.PropsAdded.Add(a)
	}

	return oc
}

func applyVerbHints(objID string, hints []vcstypes.VerbRenameHint, deleted, added StringSet, renamed map[string]string) {
	for _, h := range hints {
		if h.Object != objID {
			continue
		}
		if deleted.Has(h.FromVerb) && added.Has(h.ToVerb) {
			renamed[h.FromVerb] = h.ToVerb
			deleted.Remove(h.FromVerb)
			added.Remove(h.ToVerb)
		}
	}
}

func applyPropHints(objID string, hints []vcstypes.PropertyRenameHint, deleted, added StringSet, renamed map[string]string) {
	for _, h := range hints {
		if h.Object != objID {
			continue
		}
		if deleted.Has(h.FromProp) && added.Has(h.ToProp) {
			renamed[h.FromProp] = h.ToProp
			deleted.Remove(h.FromProp)
			added.Remove(h.ToProp)
		}
	}
}

// pairByEquality greedily pairs each deleted entry (in sorted order) with
// the first matching added entry (in sorted order) per eq, removing both
// from their pools and recording the pairing. Each added entry is consumed
// by at most one rename (spec §4.6: "each body may match at most one
// rename").
func pairByEquality(deleted, added StringSet, renamed map[string]string, eq func(from, to string) bool) {
	for _, from := range deleted.Sorted() {
		for _, to := range added.Sorted() {
			if eq(from, to) {
				renamed[from] = to
				deleted.Remove(from)
				added.Remove(to)
				break
			}
		}
	}
}
