// Copyright 2021 The Erigon Authors
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

package kv

// Partition names (spec §6 "Persisted layout"). Store.Partition panics if a
// partition outside this list is requested — mirrors the teacher's
// "app will panic if some bucket is not in this list" discipline for its own
// table list, scoped here to the engine's nine named partitions plus the
// five clone_import staging partitions.
const (
	Objects      = "objects"
	Refs         = "refs"
	RefsReverse  = "refs_reverse"
	Changes      = "changes"
	Timeline     = "timeline"
	Top          = "top"
	Workspace    = "workspace"
	IndexMeta    = "index_meta"
	Users        = "users"

	// Staging partitions clone_import writes into before swapping the
	// result into the live partitions above. Keeping them separate means a
	// clone_import that fails partway through never touches live state
	// (spec §5: "a cancelled clone_import must not have written anything").
	ObjectsStaging     = "objects__staging"
	RefsStaging        = "refs__staging"
	RefsReverseStaging = "refs_reverse__staging"
	ChangesStaging     = "changes__staging"
	TimelineStaging    = "timeline__staging"
)

// AllPartitions is the full list of buckets created on Open.
var AllPartitions = []string{
	Objects,
	Refs,
	RefsReverse,
	Changes,
	Timeline,
	Top,
	Workspace,
	IndexMeta,
	Users,
	ObjectsStaging,
	RefsStaging,
	RefsReverseStaging,
	ChangesStaging,
	TimelineStaging,
}

// Singleton keys within the Timeline and Top partitions.
const (
	TimelineKey = "timeline"
	TopKey      = "top"
)

// Well-known keys within IndexMeta.
const (
	SourceURLKey          = "source_url"
	ExternalAPIKeyKey     = "external_api_key"
	ExternalUserIDKey     = "external_user_id"
)

func isKnownPartition(name string) bool {
	for _, p := range AllPartitions {
		if p == name {
			return true
		}
	}
	return false
}
