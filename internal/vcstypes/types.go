// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Package vcstypes holds the data model shared by every layer of the
// version-control engine: digests, object identities, refs and changes.
package vcstypes

import "fmt"

// Digest is a SHA-256 hex digest, lowercase, 64 characters. It is also the
// identity of a Change (see Change.ID).
type Digest string

// ShortIDLen is the length of a change's user-facing short id.
const ShortIDLen = 12

// Short returns the first ShortIDLen hex characters of the digest.
func (d Digest) Short() string {
	if len(d) <= ShortIDLen {
		return string(d)
	}
	return string(d[:ShortIDLen])
}

func (d Digest) String() string { return string(d) }

// ObjectType tags which kind of object a ref/blob belongs to.
type ObjectType uint8

const (
	Moo ObjectType = iota
	Meta
)

func (t ObjectType) String() string {
	switch t {
	case Moo:
		return "moo"
	case Meta:
		return "meta"
	default:
		return "unknown"
	}
}

// Tag is the short prefix used inside composite KV keys (refs, refs_reverse).
func (t ObjectType) Tag() string {
	switch t {
	case Moo:
		return "moo"
	case Meta:
		return "meta"
	default:
		return "?"
	}
}

func ParseObjectType(tag string) (ObjectType, error) {
	switch tag {
	case "moo":
		return Moo, nil
	case "meta":
		return Meta, nil
	default:
		return 0, fmt.Errorf("unknown object type tag %q", tag)
	}
}

// ObjectInfo identifies a specific historical revision of a named object.
type ObjectInfo struct {
	Type    ObjectType `json:"type"`
	Name    string     `json:"name"`
	Version uint32     `json:"version"`
}

func (o ObjectInfo) Equal(other ObjectInfo) bool {
	return o.Type == other.Type && o.Name == other.Name && o.Version == other.Version
}

// ObjectRef pairs a version with its digest. The ref index itself stores the
// bare digest under a per-version key rather than this struct.
type ObjectRef struct {
	Version uint32 `json:"version"`
	Digest  Digest `json:"digest"`
}

// RenamedObject records a from/to pair within a single change.
type RenamedObject struct {
	From ObjectInfo `json:"from"`
	To   ObjectInfo `json:"to"`
}

// VerbRenameHint and PropertyRenameHint persist intentional rename pairings
// across diffs, even after the change that recorded them is merged.
type VerbRenameHint struct {
	Object   string `json:"object"`
	FromVerb string `json:"from_verb"`
	ToVerb   string `json:"to_verb"`
}

type PropertyRenameHint struct {
	Object   string `json:"object"`
	FromProp string `json:"from_prop"`
	ToProp   string `json:"to_prop"`
}

// ChangeStatus is the change lifecycle state, see spec §4.5.
type ChangeStatus string

const (
	StatusLocal  ChangeStatus = "local"
	StatusReview ChangeStatus = "review"
	StatusIdle   ChangeStatus = "idle"
	StatusMerged ChangeStatus = "merged"
)

// VersionOverride pins one object version to a digest on a Change. Nothing
// in this module records or applies these pins: IndexUpdate writes refs
// directly, refcount queries do not consult them, and a standalone
// ChangeSubmit clears them.
type VersionOverride struct {
	Object ObjectInfo `json:"object"`
	Digest Digest     `json:"digest"`
}

// Change is a named, authored, timestamped bundle of object mutations.
type Change struct {
	ID                   Digest               `json:"id"`
	Name                 string               `json:"name"`
	Description          string               `json:"description,omitempty"`
	Author               string               `json:"author"`
	Timestamp            uint64               `json:"timestamp"`
	Status               ChangeStatus         `json:"status"`
	AddedObjects         []ObjectInfo         `json:"added_objects"`
	ModifiedObjects      []ObjectInfo         `json:"modified_objects"`
	DeletedObjects       []ObjectInfo         `json:"deleted_objects"`
	RenamedObjects       []RenamedObject      `json:"renamed_objects"`
	VerbRenameHints      []VerbRenameHint     `json:"verb_rename_hints"`
	PropertyRenameHints  []PropertyRenameHint `json:"property_rename_hints"`
	IndexChangeID        Digest               `json:"index_change_id,omitempty"`
	VersionOverrides     []VersionOverride    `json:"version_overrides,omitempty"`
}

// IsAdded reports whether (t, name) appears in AddedObjects.
func (c *Change) IsAdded(t ObjectType, name string) bool {
	for _, o := range c.AddedObjects {
		if o.Type == t && o.Name == name {
			return true
		}
	}
	return false
}

func (c *Change) IsModified(t ObjectType, name string) bool {
	for _, o := range c.ModifiedObjects {
		if o.Type == t && o.Name == name {
			return true
		}
	}
	return false
}

// RenameTarget returns the rename entry whose To.Name == name, if any.
func (c *Change) RenameTarget(name string) (RenamedObject, bool) {
	for _, r := range c.RenamedObjects {
		if r.To.Name == name {
			return r, true
		}
	}
	return RenamedObject{}, false
}

// RenameSource returns the rename entry whose From.Name == name, if any.
func (c *Change) RenameSource(name string) (RenamedObject, bool) {
	for _, r := range c.RenamedObjects {
		if r.From.Name == name {
			return r, true
		}
	}
	return RenamedObject{}, false
}

// CloneData is the wire format for a full (Merged-only) replica snapshot.
type CloneData struct {
	Refs        []RefEntry        `json:"refs"`
	Objects     map[Digest][]byte `json:"objects"`
	Changes     []Change          `json:"changes"`
	ChangeOrder []Digest          `json:"change_order"`
	Source      *string           `json:"source,omitempty"`
}

type RefEntry struct {
	Info   ObjectInfo `json:"info"`
	Digest Digest     `json:"digest"`
}

// Delta is the wire format returned by index_calc_delta.
type Delta struct {
	ChangeIDs     []Digest   `json:"change_ids"`
	RefPairs      []RefEntry `json:"ref_pairs"`
	ObjectsAdded  []Digest   `json:"objects_added"`
}

// ClearedValue is the sentinel property value meaning "explicitly cleared".
// The mootext codec never produces it from parsed source text by accident;
// callers that want to represent MOO's clear() semantics set it directly.
const ClearedValue = "$cleared$"
