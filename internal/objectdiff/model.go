package objectdiff

import "github.com/biscuitwizard/moovcs/internal/vcstypes"

// ObjectDiffModel summarizes, at the granularity of whole object refs, what
// the working set would need to apply to reflect a set of incoming changes
// (spec §4.7 index_update).
type ObjectDiffModel struct {
	Applied []vcstypes.ObjectInfo `json:"applied"`
	Skipped []vcstypes.ObjectInfo `json:"skipped"`
}

func NewObjectDiffModel() *ObjectDiffModel {
	return &ObjectDiffModel{}
}
