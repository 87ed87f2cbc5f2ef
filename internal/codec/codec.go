// Package codec defines the ObjectCodec capability abstraction (spec §4.1
// collaborator contract): parse canonical text into a parsed object,
// serialize it back deterministically, and compute its digest. The actual
// MOO grammar is out of the core's scope — callers supply any
// implementation; internal/codec/mootext ships a reference one.
package codec

import "github.com/biscuitwizard/moovcs/internal/vcstypes"

// Verb is one callable entry: a set of alias names sharing one code body.
// Each alias is treated as a separate comparison unit by the diff engine
// (spec §4.6 "overlapping alias sets").
type Verb struct {
	Aliases []string
	Body    string
}

// Property is one named slot holding a value. An empty Value, or the
// sentinel vcstypes.ClearedValue, means "not set" for rename-detection
// purposes (spec §4.6).
type Property struct {
	Name  string
	Value string
}

// ParsedObject is the codec's in-memory representation of one object
// definition, independent of its on-disk textual form.
type ParsedObject struct {
	Name       string
	Verbs      []Verb
	Properties []Property
}

// ObjectCodec parses canonical text into a ParsedObject and serializes it
// back. Serialize must be deterministic: semantically-identical input
// always produces byte-identical canonical output, since Digest is computed
// over that output (spec §9).
type ObjectCodec interface {
	Parse(text string) (*ParsedObject, error)
	Serialize(obj *ParsedObject) (string, error)
	Digest(canonical string) vcstypes.Digest
}
