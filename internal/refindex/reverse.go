package refindex

import (
	"strings"

	"github.com/biscuitwizard/moovcs/internal/storage/kv"
	"github.com/biscuitwizard/moovcs/internal/vcserr"
	"github.com/biscuitwizard/moovcs/internal/vcstypes"
	"github.com/google/btree"
)

// reverseEntry is one (digest -> type/name/version) membership record. The
// btree orders entries by digest so membership/cardinality queries for a
// given digest are a bounded range scan.
type reverseEntry struct {
	digest  vcstypes.Digest
	objType vcstypes.ObjectType
	name    string
	version uint32
}

func (e reverseEntry) Less(than btree.Item) bool {
	o := than.(reverseEntry)
	if e.digest != o.digest {
		return e.digest < o.digest
	}
	if e.objType != o.objType {
		return e.objType < o.objType
	}
	if e.name != o.name {
		return e.name < o.name
	}
	return e.version < o.version
}

func reverseKey(digest vcstypes.Digest, t vcstypes.ObjectType, name string, version uint32) []byte {
	var b strings.Builder
	b.WriteString(string(digest))
	b.WriteByte(':')
	b.WriteString(t.Tag())
	b.WriteByte(':')
	b.WriteString(name)
	b.WriteByte(':')
	b.WriteString(formatVersion(version))
	return []byte(b.String())
}

// Reverse is the separately-owned reverse digest index (spec §9 Design
// Notes: "best modeled as a separately-owned component... not as a view
// over the ref component"). The refs_reverse KV partition is durable
// source of truth; the in-memory btree is rebuilt from it at startup and
// accelerates IsReferenced/IsReferencedExcluding queries.
type Reverse struct {
	kv   kv.Partition
	tree *btree.BTree
}

func newReverse(store *kv.Store) (*Reverse, error) {
	return newReverseAt(store, kv.RefsReverse)
}

func newReverseAt(store *kv.Store, partition string) (*Reverse, error) {
	r := &Reverse{kv: store.Partition(partition), tree: btree.New(32)}
	if err := r.rebuild(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reverse) rebuild() error {
	return r.kv.PrefixIterate(nil, func(k, v []byte) bool {
		digest, t, name, version, ok := parseReverseKey(k)
		if !ok {
			return true
		}
		r.tree.ReplaceOrInsert(reverseEntry{digest: digest, objType: t, name: name, version: version})
		return true
	})
}

func parseReverseKey(k []byte) (digest vcstypes.Digest, t vcstypes.ObjectType, name string, version uint32, ok bool) {
	parts := strings.SplitN(string(k), ":", 4)
	if len(parts) != 4 {
		return "", 0, "", 0, false
	}
	typ, err := vcstypes.ParseObjectType(parts[1])
	if err != nil {
		return "", 0, "", 0, false
	}
	v, verr := parseVersion(parts[3])
	if verr != nil {
		return "", 0, "", 0, false
	}
	return vcstypes.Digest(parts[0]), typ, parts[2], v, true
}

// Add records that (type, name, version) references digest.
func (r *Reverse) Add(digest vcstypes.Digest, t vcstypes.ObjectType, name string, version uint32) error {
	key := reverseKey(digest, t, name, version)
	if err := r.kv.Put(key, []byte{}); err != nil {
		return vcserr.Wrap("refindex.Reverse.Add", vcserr.Storage, err)
	}
	r.tree.ReplaceOrInsert(reverseEntry{digest: digest, objType: t, name: name, version: version})
	return nil
}

// Remove deletes the (type, name, version) reference to digest.
func (r *Reverse) Remove(digest vcstypes.Digest, t vcstypes.ObjectType, name string, version uint32) error {
	key := reverseKey(digest, t, name, version)
	if err := r.kv.Delete(key); err != nil {
		return vcserr.Wrap("refindex.Reverse.Remove", vcserr.Storage, err)
	}
	r.tree.Delete(reverseEntry{digest: digest, objType: t, name: name, version: version})
	return nil
}

// Move is Remove(old) + Add(new) for replace_version, where the digest
// itself may also change.
func (r *Reverse) Move(oldDigest vcstypes.Digest, newDigest vcstypes.Digest, t vcstypes.ObjectType, name string, version uint32) error {
	if err := r.Remove(oldDigest, t, name, version); err != nil {
		return err
	}
	return r.Add(newDigest, t, name, version)
}

func (r *Reverse) entries(digest vcstypes.Digest) []reverseEntry {
	var out []reverseEntry
	r.tree.AscendGreaterOrEqual(reverseEntry{digest: digest}, func(i btree.Item) bool {
		e := i.(reverseEntry)
		if e.digest != digest {
			return false
		}
		out = append(out, e)
		return true
	})
	return out
}

// IsReferenced reports whether any (type, name, version) still points at
// digest. Satisfies objectstore.ReverseIndex.
func (r *Reverse) IsReferenced(digest vcstypes.Digest) (bool, error) {
	return len(r.entries(digest)) > 0, nil
}

// IsReferencedExcluding reports whether the reverse index for digest
// contains anything other than the excluded triple.
func (r *Reverse) IsReferencedExcluding(digest vcstypes.Digest, exclude vcstypes.ObjectInfo) (bool, error) {
	for _, e := range r.entries(digest) {
		if e.objType == exclude.Type && e.name == exclude.Name && e.version == exclude.Version {
			continue
		}
		return true, nil
	}
	return false, nil
}
