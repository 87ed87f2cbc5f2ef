// Package objectstore implements the deduplicated, content-addressed blob
// table (spec §4.2). Reference counting itself is not stored here — it is
// derived from the ref index's reverse digest index, injected through the
// ReverseIndex interface so this package has no dependency on refindex.
package objectstore

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/biscuitwizard/moovcs/internal/storage/kv"
	"github.com/biscuitwizard/moovcs/internal/vcserr"
	"github.com/biscuitwizard/moovcs/internal/vcstypes"
	"github.com/golang/snappy"
)

// ReverseIndex answers "is digest still referenced by anything" without the
// object store needing to know about names, types or versions.
type ReverseIndex interface {
	IsReferenced(digest vcstypes.Digest) (bool, error)
}

// formatRaw/formatSnappy tag stored values so legacy or imported blobs that
// were never compressed can still be read back correctly.
const (
	formatRaw    byte = 0x00
	formatSnappy byte = 0x01
)

type Store struct {
	part ReverseIndex
	kv   kv.Partition
}

func New(store *kv.Store, reverse ReverseIndex) *Store {
	return NewAt(store, kv.Objects, reverse)
}

// NewAt is New bound to a caller-chosen partition instead of the fixed
// objects one, used by clone_import's staged replace (spec §5).
func NewAt(store *kv.Store, partition string, reverse ReverseIndex) *Store {
	return &Store{kv: store.Partition(partition), part: reverse}
}

// Digest computes the content address of canonical bytes.
func Digest(canonical []byte) vcstypes.Digest {
	sum := sha256.Sum256(canonical)
	return vcstypes.Digest(hex.EncodeToString(sum[:]))
}

// Put stores bytes under digest; a no-op if already present (spec §4.2).
func (s *Store) Put(digest vcstypes.Digest, data []byte) error {
	existing, err := s.kv.Get([]byte(digest))
	if err != nil {
		return vcserr.Wrap("objectstore.Put", vcserr.Storage, err)
	}
	if existing != nil {
		return nil
	}
	compressed := snappy.Encode(nil, data)
	encoded := make([]byte, 0, len(compressed)+1)
	encoded = append(encoded, formatSnappy)
	encoded = append(encoded, compressed...)
	if err := s.kv.Put([]byte(digest), encoded); err != nil {
		return vcserr.Wrap("objectstore.Put", vcserr.Storage, err)
	}
	return nil
}

// Get returns the bytes stored at digest, or (nil, nil) if absent.
func (s *Store) Get(digest vcstypes.Digest) ([]byte, error) {
	raw, err := s.kv.Get([]byte(digest))
	if err != nil {
		return nil, vcserr.Wrap("objectstore.Get", vcserr.Storage, err)
	}
	if raw == nil {
		return nil, nil
	}
	return decode(raw)
}

func decode(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	switch raw[0] {
	case formatSnappy:
		out, err := snappy.Decode(nil, raw[1:])
		if err != nil {
			return nil, vcserr.Wrap("objectstore.decode", vcserr.Storage, err)
		}
		return out, nil
	case formatRaw:
		return raw[1:], nil
	default:
		// Blobs imported from a remote peer (clone_import) may not carry
		// our format tag at all; treat the whole value as raw content.
		return raw, nil
	}
}

// DeleteIfUnreferenced removes the blob iff the reverse index reports no
// remaining references, returning true iff it deleted anything.
func (s *Store) DeleteIfUnreferenced(digest vcstypes.Digest) (bool, error) {
	referenced, err := s.part.IsReferenced(digest)
	if err != nil {
		return false, err
	}
	if referenced {
		return false, nil
	}
	existing, err := s.kv.Get([]byte(digest))
	if err != nil {
		return false, vcserr.Wrap("objectstore.DeleteIfUnreferenced", vcserr.Storage, err)
	}
	if existing == nil {
		return false, nil
	}
	if err := s.kv.Delete([]byte(digest)); err != nil {
		return false, vcserr.Wrap("objectstore.DeleteIfUnreferenced", vcserr.Storage, err)
	}
	return true, nil
}

// Count returns the number of stored blobs.
func (s *Store) Count() (int, error) {
	n := 0
	err := s.kv.PrefixIterate(nil, func(k, v []byte) bool {
		n++
		return true
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// IterAll streams every (digest, bytes) pair. Iteration stops early if fn
// returns false.
func (s *Store) IterAll(fn func(digest vcstypes.Digest, data []byte) bool) error {
	var iterErr error
	err := s.kv.PrefixIterate(nil, func(k, v []byte) bool {
		data, err := decode(v)
		if err != nil {
			iterErr = err
			return false
		}
		return fn(vcstypes.Digest(k), data)
	})
	if err != nil {
		return err
	}
	return iterErr
}

// PutRaw stores an already-final value, bypassing dedup and compression —
// used by clone_import, which writes a side namespace that is then swapped
// in wholesale (spec §5).
func (s *Store) PutRaw(digest vcstypes.Digest, data []byte) error {
	encoded := make([]byte, 0, len(data)+1)
	encoded = append(encoded, formatRaw)
	encoded = append(encoded, data...)
	if err := s.kv.Put([]byte(digest), encoded); err != nil {
		return vcserr.Wrap("objectstore.PutRaw", vcserr.Storage, err)
	}
	return nil
}
