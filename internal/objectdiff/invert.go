package objectdiff

import "github.com/biscuitwizard/moovcs/internal/vcstypes"

// Invert produces the Change that, if applied, would undo c: added objects
// become deletions, deleted objects become additions, renames reverse
// direction, and modified objects are carried over unchanged (the object's
// own prior-version blob already captures the undo, spec §4.7 change_abandon).
//
// Invert does not touch ID/Name/Description/Author/Timestamp/Status/
// IndexChangeID — callers that persist the inverted change assign those
// themselves.
func Invert(c *vcstypes.Change) *vcstypes.Change {
	inv := &vcstypes.Change{
		AddedObjects:        append([]vcstypes.ObjectInfo(nil), c.DeletedObjects...),
		DeletedObjects:      append([]vcstypes.ObjectInfo(nil), c.AddedObjects...),
		ModifiedObjects:     append([]vcstypes.ObjectInfo(nil), c.ModifiedObjects...),
		RenamedObjects:      make([]vcstypes.RenamedObject, 0, len(c.RenamedObjects)),
		VerbRenameHints:     make([]vcstypes.VerbRenameHint, 0, len(c.VerbRenameHints)),
		PropertyRenameHints: make([]vcstypes.PropertyRenameHint, 0, len(c.PropertyRenameHints)),
	}
	for _, r := range c.RenamedObjects {
		inv.RenamedObjects = append(inv.RenamedObjects, vcstypes.RenamedObject{From: r.To, To: r.From})
	}
	for _, h := range c.VerbRenameHints {
		inv.VerbRenameHints = append(inv.VerbRenameHints, vcstypes.VerbRenameHint{
			Object: h.Object, FromVerb: h.ToVerb, ToVerb: h.FromVerb,
		})
	}
	for _, h := range c.PropertyRenameHints {
		inv.PropertyRenameHints = append(inv.PropertyRenameHints, vcstypes.PropertyRenameHint{
			Object: h.Object, FromProp: h.ToProp, ToProp: h.FromProp,
		})
	}
	return inv
}
