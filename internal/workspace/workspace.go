// Package workspace implements the side pool of changes not on the
// timeline (spec §4.4 Workspace): indexed both by id and by
// (status, id) prefix for efficient status queries.
package workspace

import (
	"github.com/biscuitwizard/moovcs/internal/storage/kv"
	"github.com/biscuitwizard/moovcs/internal/vcserr"
	"github.com/biscuitwizard/moovcs/internal/vcstypes"
	json "github.com/goccy/go-json"
)

type Workspace struct {
	kv kv.Partition
}

func New(store *kv.Store) *Workspace {
	return &Workspace{kv: store.Partition(kv.Workspace)}
}

func changeKey(id vcstypes.Digest) []byte {
	return []byte("change:" + string(id))
}

func statusKey(status vcstypes.ChangeStatus, id vcstypes.Digest) []byte {
	return []byte("status:" + string(status) + ":" + string(id))
}

func statusPrefix(status vcstypes.ChangeStatus) []byte {
	return []byte("status:" + string(status) + ":")
}

// Put stores c in the workspace under both indices, replacing any previous
// status entry if c's status has changed since it was last stored here.
func (w *Workspace) Put(c *vcstypes.Change) error {
	if prev, err := w.Get(c.ID); err != nil {
		return err
	} else if prev != nil && prev.Status != c.Status {
		if err := w.kv.Delete(statusKey(prev.Status, prev.ID)); err != nil {
			return vcserr.Wrap("workspace.Put", vcserr.Storage, err)
		}
	}
	data, err := json.Marshal(c)
	if err != nil {
		return vcserr.Wrap("workspace.Put", vcserr.Storage, err)
	}
	if err := w.kv.Put(changeKey(c.ID), data); err != nil {
		return vcserr.Wrap("workspace.Put", vcserr.Storage, err)
	}
	if err := w.kv.Put(statusKey(c.Status, c.ID), []byte(c.ID)); err != nil {
		return vcserr.Wrap("workspace.Put", vcserr.Storage, err)
	}
	return nil
}

func (w *Workspace) Get(id vcstypes.Digest) (*vcstypes.Change, error) {
	data, err := w.kv.Get(changeKey(id))
	if err != nil {
		return nil, vcserr.Wrap("workspace.Get", vcserr.Storage, err)
	}
	if data == nil {
		return nil, nil
	}
	var c vcstypes.Change
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, vcserr.Wrap("workspace.Get", vcserr.Storage, err)
	}
	return &c, nil
}

// Remove deletes c entirely from the workspace (both indices).
func (w *Workspace) Remove(id vcstypes.Digest) error {
	c, err := w.Get(id)
	if err != nil {
		return err
	}
	if c == nil {
		return nil
	}
	if err := w.kv.Delete(changeKey(id)); err != nil {
		return vcserr.Wrap("workspace.Remove", vcserr.Storage, err)
	}
	if err := w.kv.Delete(statusKey(c.Status, id)); err != nil {
		return vcserr.Wrap("workspace.Remove", vcserr.Storage, err)
	}
	return nil
}

// ListByStatus returns every change-id currently filed under status.
func (w *Workspace) ListByStatus(status vcstypes.ChangeStatus) ([]vcstypes.Digest, error) {
	var ids []vcstypes.Digest
	err := w.kv.PrefixIterate(statusPrefix(status), func(k, v []byte) bool {
		ids = append(ids, vcstypes.Digest(v))
		return true
	})
	return ids, err
}

// Contains reports whether id is currently in the workspace.
func (w *Workspace) Contains(id vcstypes.Digest) (bool, error) {
	c, err := w.Get(id)
	if err != nil {
		return false, err
	}
	return c != nil, nil
}

// List returns every change currently in the workspace, across all
// statuses, in ascending id order.
func (w *Workspace) List() ([]*vcstypes.Change, error) {
	var out []*vcstypes.Change
	err := w.kv.PrefixIterate([]byte("change:"), func(k, v []byte) bool {
		var c vcstypes.Change
		if err := json.Unmarshal(v, &c); err == nil {
			out = append(out, &c)
		}
		return true
	})
	return out, err
}
