// Package refindex implements the name-to-version-to-digest mapping (spec
// §4.3): per (type, name) an ordered list of (version -> digest), a cached
// latest-version pointer, and (via Reverse) the reverse digest index used
// for refcount-correct blob deletion.
package refindex

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/biscuitwizard/moovcs/internal/intutil"
	"github.com/biscuitwizard/moovcs/internal/storage/kv"
	"github.com/biscuitwizard/moovcs/internal/vcserr"
	"github.com/biscuitwizard/moovcs/internal/vcstypes"
	lru "github.com/hashicorp/golang-lru/v2"
)

const latestSuffix = "latest"

// Key identifies one (type, name) series for the latest-version cache.
type Key struct {
	Type vcstypes.ObjectType
	Name string
}

type Index struct {
	kv      kv.Partition
	Reverse *Reverse
	latest  *lru.Cache[Key, uint32]
}

func New(store *kv.Store) (*Index, error) {
	return NewAt(store, kv.Refs, kv.RefsReverse)
}

// NewAt is New bound to caller-chosen partitions instead of the fixed
// refs/refs_reverse ones, used by clone_import's staged replace (spec §5).
func NewAt(store *kv.Store, refsPartition, reversePartition string) (*Index, error) {
	reverse, err := newReverseAt(store, reversePartition)
	if err != nil {
		return nil, err
	}
	cache, err := lru.New[Key, uint32](4096)
	if err != nil {
		return nil, vcserr.Wrap("refindex.NewAt", vcserr.Storage, err)
	}
	return &Index{kv: store.Partition(refsPartition), Reverse: reverse, latest: cache}, nil
}

func versionKey(t vcstypes.ObjectType, name string, version uint32) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s", t.Tag(), name, formatVersion(version)))
}

func latestKey(t vcstypes.ObjectType, name string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s", t.Tag(), name, latestSuffix))
}

func namePrefix(t vcstypes.ObjectType, name string) []byte {
	return []byte(fmt.Sprintf("%s:%s:", t.Tag(), name))
}

func formatVersion(v uint32) string {
	// Zero-padded so lexicographic KV ordering matches numeric ordering.
	return fmt.Sprintf("%010d", v)
}

func parseVersion(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	return uint32(v), err
}

// PutVersion appends (version -> digest); fails Conflict if version exists.
func (idx *Index) PutVersion(t vcstypes.ObjectType, name string, version uint32, digest vcstypes.Digest) error {
	vk := versionKey(t, name, version)
	existing, err := idx.kv.Get(vk)
	if err != nil {
		return vcserr.Wrap("refindex.PutVersion", vcserr.Storage, err)
	}
	if existing != nil {
		return vcserr.New("refindex.PutVersion", vcserr.Conflict,
			fmt.Sprintf("version %d of %s already exists", version, name))
	}
	if err := idx.kv.Put(vk, []byte(digest)); err != nil {
		return vcserr.Wrap("refindex.PutVersion", vcserr.Storage, err)
	}
	latest, ok, err := idx.latestVersionUncached(t, name)
	if err != nil {
		return err
	}
	if !ok || version > latest {
		if err := idx.setLatest(t, name, version); err != nil {
			return err
		}
	}
	if err := idx.Reverse.Add(digest, t, name, version); err != nil {
		return err
	}
	return nil
}

// ReplaceVersion replaces the digest for an existing version, without
// touching the latest pointer unless version is latest.
func (idx *Index) ReplaceVersion(t vcstypes.ObjectType, name string, version uint32, newDigest vcstypes.Digest) error {
	vk := versionKey(t, name, version)
	old, err := idx.kv.Get(vk)
	if err != nil {
		return vcserr.Wrap("refindex.ReplaceVersion", vcserr.Storage, err)
	}
	if old == nil {
		return vcserr.New("refindex.ReplaceVersion", vcserr.NotFound,
			fmt.Sprintf("version %d of %s not found", version, name))
	}
	if err := idx.kv.Put(vk, []byte(newDigest)); err != nil {
		return vcserr.Wrap("refindex.ReplaceVersion", vcserr.Storage, err)
	}
	if err := idx.Reverse.Move(vcstypes.Digest(old), newDigest, t, name, version); err != nil {
		return err
	}
	return nil
}

// Get returns the digest at version, or at latest if version is nil.
func (idx *Index) Get(t vcstypes.ObjectType, name string, version *uint32) (vcstypes.Digest, bool, error) {
	if version == nil {
		latest, ok, err := idx.LatestVersion(t, name)
		if err != nil || !ok {
			return "", false, err
		}
		version = &latest
	}
	v, err := idx.kv.Get(versionKey(t, name, *version))
	if err != nil {
		return "", false, vcserr.Wrap("refindex.Get", vcserr.Storage, err)
	}
	if v == nil {
		return "", false, nil
	}
	return vcstypes.Digest(v), true, nil
}

// LatestVersion returns the cached latest version for (type, name).
func (idx *Index) LatestVersion(t vcstypes.ObjectType, name string) (uint32, bool, error) {
	key := Key{Type: t, Name: name}
	if v, ok := idx.latest.Get(key); ok {
		if v == 0 {
			return 0, false, nil
		}
		return v, true, nil
	}
	v, ok, err := idx.latestVersionUncached(t, name)
	if err != nil {
		return 0, false, err
	}
	if ok {
		idx.latest.Add(key, v)
	} else {
		idx.latest.Add(key, 0)
	}
	return v, ok, nil
}

func (idx *Index) latestVersionUncached(t vcstypes.ObjectType, name string) (uint32, bool, error) {
	v, err := idx.kv.Get(latestKey(t, name))
	if err != nil {
		return 0, false, vcserr.Wrap("refindex.latestVersion", vcserr.Storage, err)
	}
	if v == nil {
		return 0, false, nil
	}
	n, err := parseVersion(string(v))
	if err != nil {
		return 0, false, vcserr.Wrap("refindex.latestVersion", vcserr.Storage, err)
	}
	return n, true, nil
}

func (idx *Index) setLatest(t vcstypes.ObjectType, name string, version uint32) error {
	if err := idx.kv.Put(latestKey(t, name), []byte(formatVersion(version))); err != nil {
		return vcserr.Wrap("refindex.setLatest", vcserr.Storage, err)
	}
	idx.latest.Add(Key{Type: t, Name: name}, version)
	return nil
}

func (idx *Index) clearLatest(t vcstypes.ObjectType, name string) error {
	if err := idx.kv.Delete(latestKey(t, name)); err != nil {
		return vcserr.Wrap("refindex.clearLatest", vcserr.Storage, err)
	}
	idx.latest.Remove(Key{Type: t, Name: name})
	return nil
}

// NextVersion returns latest+1, or 1 if the series doesn't exist yet. It
// does not reserve the version; callers must PutVersion promptly under the
// engine's single write lock.
func (idx *Index) NextVersion(t vcstypes.ObjectType, name string) (uint32, error) {
	latest, ok, err := idx.LatestVersion(t, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 1, nil
	}
	next, overflow := intutil.SafeAddU32(latest, 1)
	if overflow {
		return 0, vcserr.New("refindex.NextVersion", vcserr.Storage, "version counter overflow")
	}
	return next, nil
}

// IsReferencedExcluding delegates to the reverse index.
func (idx *Index) IsReferencedExcluding(digest vcstypes.Digest, exclude vcstypes.ObjectInfo) (bool, error) {
	return idx.Reverse.IsReferencedExcluding(digest, exclude)
}

// DeleteVersion removes a version; if it was latest, recomputes the next
// highest remaining version as the new latest (or clears the pointer).
func (idx *Index) DeleteVersion(t vcstypes.ObjectType, name string, version uint32) error {
	vk := versionKey(t, name, version)
	digestBytes, err := idx.kv.Get(vk)
	if err != nil {
		return vcserr.Wrap("refindex.DeleteVersion", vcserr.Storage, err)
	}
	if digestBytes == nil {
		return vcserr.New("refindex.DeleteVersion", vcserr.NotFound,
			fmt.Sprintf("version %d of %s not found", version, name))
	}
	if err := idx.kv.Delete(vk); err != nil {
		return vcserr.Wrap("refindex.DeleteVersion", vcserr.Storage, err)
	}
	if err := idx.Reverse.Remove(vcstypes.Digest(digestBytes), t, name, version); err != nil {
		return err
	}

	latest, ok, err := idx.latestVersionUncached(t, name)
	if err != nil {
		return err
	}
	if !ok || latest != version {
		return nil
	}
	newLatest, found, err := idx.highestRemaining(t, name)
	if err != nil {
		return err
	}
	if !found {
		return idx.clearLatest(t, name)
	}
	return idx.setLatest(t, name, newLatest)
}

func (idx *Index) highestRemaining(t vcstypes.ObjectType, name string) (uint32, bool, error) {
	var highest uint32
	found := false
	err := idx.kv.PrefixIterate(namePrefix(t, name), func(k, v []byte) bool {
		parts := strings.Split(string(k), ":")
		suffix := parts[len(parts)-1]
		if suffix == latestSuffix {
			return true
		}
		n, err := parseVersion(suffix)
		if err != nil {
			return true
		}
		if !found || n > highest {
			highest = n
			found = true
		}
		return true
	})
	return highest, found, err
}

// IterAll streams (ObjectInfo, digest) over latest versions only.
func (idx *Index) IterAll(t vcstypes.ObjectType, fn func(info vcstypes.ObjectInfo, digest vcstypes.Digest) bool) error {
	prefix := []byte(t.Tag() + ":")
	return idx.kv.PrefixIterate(prefix, func(k, v []byte) bool {
		parts := strings.Split(string(k), ":")
		if len(parts) != 3 || parts[2] != latestSuffix {
			return true
		}
		name := parts[1]
		version, err := parseVersion(string(v))
		if err != nil {
			return true
		}
		digest, ok, err := idx.Get(t, name, &version)
		if err != nil || !ok {
			return true
		}
		return fn(vcstypes.ObjectInfo{Type: t, Name: name, Version: version}, digest)
	})
}

// Rename moves all versions from one name to another under the same type.
// Fails Conflict if the target name already has versions.
func (idx *Index) Rename(t vcstypes.ObjectType, fromName, toName string) error {
	if _, ok, err := idx.LatestVersion(t, toName); err != nil {
		return err
	} else if ok {
		return vcserr.New("refindex.Rename", vcserr.Conflict,
			fmt.Sprintf("%s already has versions", toName))
	}

	type pair struct {
		version uint32
		digest  vcstypes.Digest
	}
	var pairs []pair
	if err := idx.kv.PrefixIterate(namePrefix(t, fromName), func(k, v []byte) bool {
		parts := strings.Split(string(k), ":")
		suffix := parts[len(parts)-1]
		if suffix == latestSuffix {
			return true
		}
		version, err := parseVersion(suffix)
		if err != nil {
			return true
		}
		pairs = append(pairs, pair{version: version, digest: vcstypes.Digest(v)})
		return true
	}); err != nil {
		return err
	}

	for _, p := range pairs {
		if err := idx.kv.Put(versionKey(t, toName, p.version), []byte(p.digest)); err != nil {
			return vcserr.Wrap("refindex.Rename", vcserr.Storage, err)
		}
		if err := idx.kv.Delete(versionKey(t, fromName, p.version)); err != nil {
			return vcserr.Wrap("refindex.Rename", vcserr.Storage, err)
		}
		if err := idx.Reverse.Remove(p.digest, t, fromName, p.version); err != nil {
			return err
		}
		if err := idx.Reverse.Add(p.digest, t, toName, p.version); err != nil {
			return err
		}
	}

	latest, ok, err := idx.latestVersionUncached(t, fromName)
	if err != nil {
		return err
	}
	if ok {
		if err := idx.setLatest(t, toName, latest); err != nil {
			return err
		}
		if err := idx.clearLatest(t, fromName); err != nil {
			return err
		}
	}
	return nil
}
