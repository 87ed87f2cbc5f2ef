// Package kv wraps a durable, ordered, named-partition key-value store
// (spec §4.1) around go.etcd.io/bbolt. Every top-level bucket created at
// Open corresponds 1:1 to one of the spec's named partitions.
package kv

import (
	"bytes"
	"context"
	"time"

	"github.com/biscuitwizard/moovcs/internal/vcserr"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// Partition is a narrow ordered key-value map. Absence is represented as a
// nil slice and false/nil return, never as an error.
type Partition interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	// PrefixIterate calls fn for every key with the given prefix, in
	// ascending key order, until fn returns false or iteration ends.
	PrefixIterate(prefix []byte, fn func(k, v []byte) bool) error
	// AtomicUpdate reads key, calls fn with the current value (nil if
	// absent), and writes back the returned value atomically. Returning
	// write=false aborts the write; a nil new value with write=true deletes
	// the key.
	AtomicUpdate(key []byte, fn func(old []byte) (newVal []byte, write bool, err error)) error
	DropAll() error
}

// Store owns the bbolt database handle and the background flush signal.
type Store struct {
	db     *bolt.DB
	log    *zap.Logger
	flush  chan struct{}
	cancel context.CancelFunc
}

// Open creates (if absent) all known partitions and starts the background
// flush goroutine described in spec §5.
func Open(path string, log *zap.Logger) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, vcserr.Wrap("kv.Open", vcserr.Storage, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range AllPartitions {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, vcserr.Wrap("kv.Open", vcserr.Storage, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{db: db, log: log, flush: make(chan struct{}, 1), cancel: cancel}
	go s.flushLoop(ctx)
	return s, nil
}

func (s *Store) Close() error {
	s.cancel()
	return s.db.Close()
}

// signalFlush is fire-and-forget and coalesced: a full channel means a flush
// is already pending, so the send is dropped rather than blocking.
func (s *Store) signalFlush() {
	select {
	case s.flush <- struct{}{}:
	default:
	}
}

func (s *Store) flushLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.flush:
			if err := s.db.Sync(); err != nil && s.log != nil {
				s.log.Warn("background flush failed", zap.Error(err))
			}
		}
	}
}

// Partition returns a handle scoped to the named bucket. Requesting a name
// outside AllPartitions panics, mirroring the teacher's "unknown bucket"
// discipline for its own table list.
func (s *Store) Partition(name string) Partition {
	if !isKnownPartition(name) {
		panic("kv: unknown partition " + name)
	}
	return &partition{store: s, name: []byte(name)}
}

type partition struct {
	store *Store
	name  []byte
}

func (p *partition) Get(key []byte) ([]byte, error) {
	var out []byte
	err := p.store.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(p.name).Get(key)
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, vcserr.Wrap("kv.Get", vcserr.Storage, err)
	}
	return out, nil
}

func (p *partition) Put(key, value []byte) error {
	err := p.store.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(p.name).Put(key, value)
	})
	if err != nil {
		return vcserr.Wrap("kv.Put", vcserr.Storage, err)
	}
	p.store.signalFlush()
	return nil
}

func (p *partition) Delete(key []byte) error {
	err := p.store.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(p.name).Delete(key)
	})
	if err != nil {
		return vcserr.Wrap("kv.Delete", vcserr.Storage, err)
	}
	p.store.signalFlush()
	return nil
}

func (p *partition) PrefixIterate(prefix []byte, fn func(k, v []byte) bool) error {
	err := p.store.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(p.name).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			kk := append([]byte(nil), k...)
			vv := append([]byte(nil), v...)
			if !fn(kk, vv) {
				break
			}
		}
		return nil
	})
	if err != nil {
		return vcserr.Wrap("kv.PrefixIterate", vcserr.Storage, err)
	}
	return nil
}

func (p *partition) AtomicUpdate(key []byte, fn func(old []byte) (newVal []byte, write bool, err error)) error {
	err := p.store.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(p.name)
		old := b.Get(key)
		var oldCopy []byte
		if old != nil {
			oldCopy = append([]byte(nil), old...)
		}
		newVal, write, err := fn(oldCopy)
		if err != nil {
			return err
		}
		if !write {
			return nil
		}
		if newVal == nil {
			return b.Delete(key)
		}
		return b.Put(key, newVal)
	})
	if err != nil {
		return vcserr.Wrap("kv.AtomicUpdate", vcserr.Storage, err)
	}
	p.store.signalFlush()
	return nil
}

func (p *partition) DropAll() error {
	err := p.store.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(p.name); err != nil {
			return err
		}
		_, err := tx.CreateBucket(p.name)
		return err
	})
	if err != nil {
		return vcserr.Wrap("kv.DropAll", vcserr.Storage, err)
	}
	p.store.signalFlush()
	return nil
}
