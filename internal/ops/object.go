package ops

import (
	"github.com/biscuitwizard/moovcs/internal/codec"
	"github.com/biscuitwizard/moovcs/internal/objectdiff"
	"github.com/biscuitwizard/moovcs/internal/vcserr"
	"github.com/biscuitwizard/moovcs/internal/vcstypes"
)

func trackedEntry(list []vcstypes.ObjectInfo, name string) (vcstypes.ObjectInfo, int) {
	for i, o := range list {
		if o.Name == name {
			return o, i
		}
	}
	return vcstypes.ObjectInfo{}, -1
}

func removeAt(list []vcstypes.ObjectInfo, i int) []vcstypes.ObjectInfo {
	return append(list[:i], list[i+1:]...)
}

func renameTrackedEntry(list []vcstypes.ObjectInfo, from, to string) {
	for i := range list {
		if list[i].Name == from {
			list[i].Name = to
		}
	}
}

// resolveCurrent returns the digest/version for name in the working state:
// the merged ref index overlaid with the top Local change's deletions
// (renames and content edits are applied physically to the ref index as
// they happen, see DESIGN.md, so they need no special-casing here).
func (e *Engine) resolveCurrent(name string) (vcstypes.Digest, uint32, bool, error) {
	top, ok, err := e.changes.GetTop()
	if err != nil {
		return "", 0, false, err
	}
	if ok {
		c, err := e.changes.GetChange(top)
		if err != nil {
			return "", 0, false, err
		}
		if c != nil {
			for _, d := range c.DeletedObjects {
				if d.Type == vcstypes.Moo && d.Name == name {
					return "", 0, false, nil
				}
			}
		}
	}
	version, ok, err := e.refs.LatestVersion(vcstypes.Moo, name)
	if err != nil || !ok {
		return "", 0, false, err
	}
	digest, ok, err := e.refs.Get(vcstypes.Moo, name, &version)
	if err != nil || !ok {
		return "", 0, false, err
	}
	return digest, version, true, nil
}

// ObjectGet returns the canonical text, digest and version currently
// resolvable for name.
func (e *Engine) ObjectGet(name string) (text string, digest vcstypes.Digest, version uint32, err error) {
	digest, version, found, err := e.resolveCurrent(name)
	if err != nil {
		return "", "", 0, err
	}
	if !found {
		return "", "", 0, vcserr.New("ops.ObjectGet", vcserr.NotFound, "object not found: "+name)
	}
	data, err := e.objects.Get(digest)
	if err != nil {
		return "", "", 0, err
	}
	return string(data), digest, version, nil
}

// ObjectList returns every Moo object name currently resolvable in the
// working state (merged refs minus the top change's in-flight deletions).
func (e *Engine) ObjectList() ([]string, error) {
	deleted := map[string]bool{}
	top, ok, err := e.changes.GetTop()
	if err != nil {
		return nil, err
	}
	if ok {
		c, err := e.changes.GetChange(top)
		if err != nil {
			return nil, err
		}
		if c != nil {
			for _, d := range c.DeletedObjects {
				deleted[d.Name] = true
			}
		}
	}
	var names []string
	err = e.refs.IterAll(vcstypes.Moo, func(info vcstypes.ObjectInfo, digest vcstypes.Digest) bool {
		if !deleted[info.Name] {
			names = append(names, info.Name)
		}
		return true
	})
	return names, err
}

// ObjectUpdate implements spec §4.7 object_update.
func (e *Engine) ObjectUpdate(name, text string) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	parsed, err := e.codec.Parse(text)
	if err != nil {
		return nil, vcserr.Wrap("ops.ObjectUpdate", vcserr.InvalidInput, err)
	}
	canonical, err := e.codec.Serialize(parsed)
	if err != nil {
		return nil, vcserr.Wrap("ops.ObjectUpdate", vcserr.Storage, err)
	}
	digest := e.codec.Digest(canonical)

	c, err := e.changes.GetOrCreateLocal(e.author, e.now)
	if err != nil {
		return nil, err
	}

	latestVersion, hasLatest, err := e.refs.LatestVersion(vcstypes.Moo, name)
	if err != nil {
		return nil, err
	}
	if hasLatest {
		latestDigest, _, err := e.refs.Get(vcstypes.Moo, name, &latestVersion)
		if err != nil {
			return nil, err
		}
		if latestDigest == digest {
			return &Result{Unchanged: true, Message: "unchanged"}, nil
		}
	}

	switch {
	case func() bool { _, ok := c.RenameTarget(name); return ok }():
		version, err := e.refs.NextVersion(vcstypes.Moo, name)
		if err != nil {
			return nil, err
		}
		if err := e.objects.Put(digest, []byte(canonical)); err != nil {
			return nil, err
		}
		if err := e.refs.PutVersion(vcstypes.Moo, name, version, digest); err != nil {
			return nil, err
		}

	case func() bool { _, ok := c.RenameSource(name); return ok }():
		version, err := e.refs.NextVersion(vcstypes.Moo, name)
		if err != nil {
			return nil, err
		}
		if err := e.objects.Put(digest, []byte(canonical)); err != nil {
			return nil, err
		}
		if err := e.refs.PutVersion(vcstypes.Moo, name, version, digest); err != nil {
			return nil, err
		}
		c.AddedObjects = append(c.AddedObjects, vcstypes.ObjectInfo{Type: vcstypes.Moo, Name: name, Version: version})

	default:
		if entry, i := trackedEntry(c.AddedObjects, name); i >= 0 {
			if err := e.reeditInPlace(entry, digest, canonical); err != nil {
				return nil, err
			}
		} else if entry, i := trackedEntry(c.ModifiedObjects, name); i >= 0 {
			if err := e.reeditInPlace(entry, digest, canonical); err != nil {
				return nil, err
			}
		} else {
			version, err := e.refs.NextVersion(vcstypes.Moo, name)
			if err != nil {
				return nil, err
			}
			if err := e.objects.Put(digest, []byte(canonical)); err != nil {
				return nil, err
			}
			if err := e.refs.PutVersion(vcstypes.Moo, name, version, digest); err != nil {
				return nil, err
			}
			info := vcstypes.ObjectInfo{Type: vcstypes.Moo, Name: name, Version: version}
			if hasLatest {
				c.ModifiedObjects = append(c.ModifiedObjects, info)
			} else {
				c.AddedObjects = append(c.AddedObjects, info)
			}
		}
	}

	if err := e.changes.PutChange(c); err != nil {
		return nil, err
	}
	return &Result{Message: "updated"}, nil
}

// reeditInPlace handles a second-or-later edit of the same object within the
// same Local change: the version is reused, and the superseded blob is
// removed if this was its last reference (spec §4.7 "same-change re-edit",
// §8 "trim superseded blob").
func (e *Engine) reeditInPlace(entry vcstypes.ObjectInfo, newDigest vcstypes.Digest, canonical string) error {
	oldDigest, found, err := e.refs.Get(entry.Type, entry.Name, &entry.Version)
	if err != nil {
		return err
	}
	shouldTrim := false
	if found {
		referencedElsewhere, err := e.refs.IsReferencedExcluding(oldDigest, entry)
		if err != nil {
			return err
		}
		shouldTrim = !referencedElsewhere
	}
	if err := e.objects.Put(newDigest, []byte(canonical)); err != nil {
		return err
	}
	if err := e.refs.ReplaceVersion(entry.Type, entry.Name, entry.Version, newDigest); err != nil {
		return err
	}
	if shouldTrim {
		if _, err := e.objects.DeleteIfUnreferenced(oldDigest); err != nil {
			return err
		}
	}
	return nil
}

// ObjectDelete implements spec §4.7 object_delete.
func (e *Engine) ObjectDelete(name string) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	latestVersion, hasLatest, err := e.refs.LatestVersion(vcstypes.Moo, name)
	if err != nil {
		return nil, err
	}
	if !hasLatest {
		return nil, vcserr.New("ops.ObjectDelete", vcserr.NotFound, "object not found: "+name)
	}

	c, err := e.changes.GetOrCreateLocal(e.author, e.now)
	if err != nil {
		return nil, err
	}

	if entry, i := trackedEntry(c.AddedObjects, name); i >= 0 {
		digest, _, err := e.refs.Get(entry.Type, entry.Name, &entry.Version)
		if err != nil {
			return nil, err
		}
		if err := e.refs.DeleteVersion(entry.Type, entry.Name, entry.Version); err != nil {
			return nil, err
		}
		if _, err := e.objects.DeleteIfUnreferenced(digest); err != nil {
			return nil, err
		}
		c.AddedObjects = removeAt(c.AddedObjects, i)
	} else if r, ok := c.RenameTarget(name); ok {
		// name was renamed to its current form earlier in this change; the
		// rename is eager (refindex.Index.Rename already moved the whole
		// version series), so deleting it now means moving the ref back
		// under its original name and recording the delete there.
		if err := e.refs.Rename(vcstypes.Moo, name, r.From.Name); err != nil {
			return nil, err
		}
		var kept []vcstypes.RenamedObject
		for _, existing := range c.RenamedObjects {
			if existing.To.Name != name {
				kept = append(kept, existing)
			}
		}
		c.RenamedObjects = kept
		c.DeletedObjects = append(c.DeletedObjects, vcstypes.ObjectInfo{Type: vcstypes.Moo, Name: r.From.Name, Version: latestVersion})
	} else {
		c.DeletedObjects = append(c.DeletedObjects, vcstypes.ObjectInfo{Type: vcstypes.Moo, Name: name, Version: latestVersion})
	}

	if err := e.changes.PutChange(c); err != nil {
		return nil, err
	}
	return &Result{Message: "deleted"}, nil
}

// ObjectRename implements spec §4.7 object_rename.
func (e *Engine) ObjectRename(from, to string) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if from == to {
		return nil, vcserr.New("ops.ObjectRename", vcserr.InvalidInput, "rename to same name")
	}
	_, version, foundFrom, err := e.resolveCurrent(from)
	if err != nil {
		return nil, err
	}
	if !foundFrom {
		return nil, vcserr.New("ops.ObjectRename", vcserr.NotFound, "object not found: "+from)
	}
	_, _, foundTo, err := e.resolveCurrent(to)
	if err != nil {
		return nil, err
	}
	if foundTo {
		return nil, vcserr.New("ops.ObjectRename", vcserr.Conflict, "object already exists: "+to)
	}

	c, err := e.changes.GetOrCreateLocal(e.author, e.now)
	if err != nil {
		return nil, err
	}

	switch {
	case func() bool { _, i := trackedEntry(c.AddedObjects, from); return i >= 0 }():
		renameTrackedEntry(c.AddedObjects, from, to)
		if err := e.refs.Rename(vcstypes.Moo, from, to); err != nil {
			return nil, err
		}

	case func() bool { _, ok := c.RenameTarget(from); return ok }():
		if err := e.refs.Rename(vcstypes.Moo, from, to); err != nil {
			return nil, err
		}
		for i := range c.RenamedObjects {
			if c.RenamedObjects[i].To.Name == from {
				c.RenamedObjects[i].To.Name = to
				if c.RenamedObjects[i].From.Name == to {
					c.RenamedObjects = append(c.RenamedObjects[:i], c.RenamedObjects[i+1:]...)
				}
				break
			}
		}
		renameTrackedEntry(c.ModifiedObjects, from, to)

	default:
		if err := e.refs.Rename(vcstypes.Moo, from, to); err != nil {
			return nil, err
		}
		c.RenamedObjects = append(c.RenamedObjects, vcstypes.RenamedObject{
			From: vcstypes.ObjectInfo{Type: vcstypes.Moo, Name: from, Version: version},
			To:   vcstypes.ObjectInfo{Type: vcstypes.Moo, Name: to, Version: version},
		})
		renameTrackedEntry(c.ModifiedObjects, from, to)
	}

	if err := e.changes.PutChange(c); err != nil {
		return nil, err
	}
	return &Result{Message: "renamed"}, nil
}

// ObjectSwitch is the supplemental operation (SPEC_FULL §4.4): reassigns an
// object's current content pointer to whatever it was at target_change_id
// by writing a new version in the Local change; the target change itself is
// left untouched — grounded on original_source/vcs-worker's
// object_switch_op.rs. force bypasses the guard that rejects a target
// version older than the current latest version.
func (e *Engine) ObjectSwitch(name string, targetChangeID vcstypes.Digest, force bool) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id, err := e.changes.ResolveShort(string(targetChangeID))
	if err != nil {
		return nil, err
	}
	target, err := e.changes.GetChange(id)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, vcserr.New("ops.ObjectSwitch", vcserr.NotFound, "change not found")
	}

	var targetVersion uint32
	found := false
	for _, o := range append(append([]vcstypes.ObjectInfo{}, target.AddedObjects...), target.ModifiedObjects...) {
		if o.Name == name {
			targetVersion = o.Version
			found = true
		}
	}
	if !found {
		return nil, vcserr.New("ops.ObjectSwitch", vcserr.NotFound, "object not touched by that change: "+name)
	}

	latestVersion, hasLatest, err := e.refs.LatestVersion(vcstypes.Moo, name)
	if err != nil {
		return nil, err
	}
	if hasLatest && targetVersion < latestVersion && !force {
		return nil, vcserr.New("ops.ObjectSwitch", vcserr.Conflict, "target version is older than current; pass force to override")
	}

	digest, ok, err := e.refs.Get(vcstypes.Moo, name, &targetVersion)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, vcserr.New("ops.ObjectSwitch", vcserr.NotFound, "target version no longer exists")
	}

	c, err := e.changes.GetOrCreateLocal(e.author, e.now)
	if err != nil {
		return nil, err
	}
	version, err := e.refs.NextVersion(vcstypes.Moo, name)
	if err != nil {
		return nil, err
	}
	if err := e.refs.PutVersion(vcstypes.Moo, name, version, digest); err != nil {
		return nil, err
	}
	info := vcstypes.ObjectInfo{Type: vcstypes.Moo, Name: name, Version: version}
	if hasLatest {
		c.ModifiedObjects = append(c.ModifiedObjects, info)
	} else {
		c.AddedObjects = append(c.AddedObjects, info)
	}
	if err := e.changes.PutChange(c); err != nil {
		return nil, err
	}
	return &Result{Message: "switched"}, nil
}

// HistoryEntry is one change's effect on one of an object's aliases.
type HistoryEntry struct {
	ChangeID   vcstypes.Digest       `json:"change_id"`
	Name       string                `json:"name"`
	Added      bool                  `json:"added"`
	Deleted    bool                  `json:"deleted"`
	RenamedTo  string                `json:"renamed_to,omitempty"`
	Diff       *objectdiff.ObjectChange `json:"diff,omitempty"`
}

// ObjectHistory implements spec §4.7 object_history: collect every alias
// name has ever carried across rename chains, then emit one entry per
// timeline change that mentions any of those aliases.
func (e *Engine) ObjectHistory(name string) ([]HistoryEntry, error) {
	timeline, err := e.changes.GetTimeline()
	if err != nil {
		return nil, err
	}
	changesByID := make(map[vcstypes.Digest]*vcstypes.Change, len(timeline))
	for _, id := range timeline {
		c, err := e.changes.GetChange(id)
		if err != nil {
			return nil, err
		}
		if c != nil {
			changesByID[id] = c
		}
	}

	aliases := map[string]bool{name: true}
	for changed := true; changed; {
		changed = false
		for _, c := range changesByID {
			for _, r := range c.RenamedObjects {
				if aliases[r.From.Name] != aliases[r.To.Name] {
					aliases[r.From.Name] = true
					aliases[r.To.Name] = true
					changed = true
				}
			}
		}
	}

	var entries []HistoryEntry
	for _, id := range timeline {
		c := changesByID[id]
		if c == nil {
			continue
		}
		for _, o := range c.AddedObjects {
			if aliases[o.Name] {
				entries = append(entries, HistoryEntry{ChangeID: id, Name: o.Name, Added: true})
			}
		}
		for _, o := range c.DeletedObjects {
			if aliases[o.Name] {
				entries = append(entries, HistoryEntry{ChangeID: id, Name: o.Name, Deleted: true})
			}
		}
		for _, r := range c.RenamedObjects {
			if aliases[r.From.Name] {
				entries = append(entries, HistoryEntry{ChangeID: id, Name: r.From.Name, RenamedTo: r.To.Name})
			}
		}
		for _, o := range c.ModifiedObjects {
			if !aliases[o.Name] {
				continue
			}
			diff, err := e.diffAgainstPrevious(o)
			if err != nil {
				return nil, err
			}
			entries = append(entries, HistoryEntry{ChangeID: id, Name: o.Name, Diff: diff})
		}
	}
	return entries, nil
}

func (e *Engine) diffAgainstPrevious(o vcstypes.ObjectInfo) (*objectdiff.ObjectChange, error) {
	newDigest, ok, err := e.refs.Get(o.Type, o.Name, &o.Version)
	if err != nil || !ok {
		return nil, err
	}
	newData, err := e.objects.Get(newDigest)
	if err != nil {
		return nil, err
	}
	newParsed, err := e.codec.Parse(string(newData))
	if err != nil {
		return nil, err
	}
	empty := &codec.ParsedObject{Name: o.Name}
	if o.Version <= 1 {
		return objectdiff.Diff(o.Name, empty, newParsed, nil, nil), nil
	}
	prevVersion := o.Version - 1
	oldDigest, ok, err := e.refs.Get(o.Type, o.Name, &prevVersion)
	if err != nil || !ok {
		return objectdiff.Diff(o.Name, empty, newParsed, nil, nil), nil
	}
	oldData, err := e.objects.Get(oldDigest)
	if err != nil {
		return nil, err
	}
	oldParsed, err := e.codec.Parse(string(oldData))
	if err != nil {
		return nil, err
	}
	return objectdiff.Diff(o.Name, oldParsed, newParsed, nil, nil), nil
}
