package ops

import (
	"context"

	"github.com/biscuitwizard/moovcs/internal/objectdiff"
	"github.com/biscuitwizard/moovcs/internal/vcserr"
	"github.com/biscuitwizard/moovcs/internal/vcstypes"
)

// ChangeCreate implements spec §4.5 change_create: fails if a Local change
// already exists.
func (e *Engine) ChangeCreate(name, author, description string) (*vcstypes.Change, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if top, ok, err := e.changes.GetTop(); err != nil {
		return nil, err
	} else if ok {
		if c, err := e.changes.GetChange(top); err != nil {
			return nil, err
		} else if c != nil && c.Status == vcstypes.StatusLocal {
			return nil, vcserr.New("ops.ChangeCreate", vcserr.InvalidState, "a Local change already exists")
		}
	}

	ts := e.now()
	c := &vcstypes.Change{
		Name:        name,
		Author:      author,
		Description: description,
		Timestamp:   ts,
		Status:      vcstypes.StatusLocal,
	}
	c.ID = changeIDFor(c)
	if err := e.changes.PutChange(c); err != nil {
		return nil, err
	}
	if err := e.changes.SetTop(c.ID); err != nil {
		return nil, err
	}
	return c, nil
}

func changeIDFor(c *vcstypes.Change) vcstypes.Digest {
	return deriveID(c.Name, c.Description, c.Author, c.Timestamp)
}

// ChangeStash implements Local -> Idle (spec §4.5).
func (e *Engine) ChangeStash() (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	top, ok, err := e.changes.GetTop()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, vcserr.New("ops.ChangeStash", vcserr.InvalidState, "no Local change to stash")
	}
	c, err := e.changes.GetChange(top)
	if err != nil {
		return nil, err
	}
	if err := e.changes.RemoveFromTimeline(c.ID); err != nil {
		return nil, err
	}
	c.Status = vcstypes.StatusIdle
	if err := e.changes.PutChange(c); err != nil {
		return nil, err
	}
	if err := e.workspace.Put(c); err != nil {
		return nil, err
	}
	if err := e.changes.ClearTop(); err != nil {
		return nil, err
	}
	return &Result{Message: "stashed"}, nil
}

// ChangeSwitch implements Idle -> Local (spec §4.5): if the current top is
// Local it is stashed first.
func (e *Engine) ChangeSwitch(id vcstypes.Digest) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	resolved, err := e.changes.ResolveShort(string(id))
	if err != nil {
		return nil, err
	}
	target, err := e.changes.GetChange(resolved)
	if err != nil {
		return nil, err
	}
	if target == nil || target.Status == vcstypes.StatusMerged {
		return nil, vcserr.New("ops.ChangeSwitch", vcserr.InvalidState, "cannot switch to a Merged (or missing) change")
	}

	if top, ok, err := e.changes.GetTop(); err != nil {
		return nil, err
	} else if ok {
		cur, err := e.changes.GetChange(top)
		if err != nil {
			return nil, err
		}
		if cur != nil && cur.Status == vcstypes.StatusLocal {
			if err := e.changes.RemoveFromTimeline(cur.ID); err != nil {
				return nil, err
			}
			cur.Status = vcstypes.StatusIdle
			if err := e.changes.PutChange(cur); err != nil {
				return nil, err
			}
			if err := e.workspace.Put(cur); err != nil {
				return nil, err
			}
		}
	}

	if err := e.workspace.Remove(target.ID); err != nil {
		return nil, err
	}
	target.Status = vcstypes.StatusLocal
	if err := e.changes.PutChange(target); err != nil {
		return nil, err
	}
	if err := e.changes.PrependToTimeline(target.ID); err != nil {
		return nil, err
	}
	if err := e.changes.SetTop(target.ID); err != nil {
		return nil, err
	}
	return &Result{Message: "switched"}, nil
}

// ChangeSubmit implements spec §4.5: Local -> Review (remote configured) or
// Local -> Merged (standalone).
func (e *Engine) ChangeSubmit() (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	top, ok, err := e.changes.GetTop()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, vcserr.New("ops.ChangeSubmit", vcserr.InvalidState, "no Local change to submit")
	}
	c, err := e.changes.GetChange(top)
	if err != nil {
		return nil, err
	}

	source, hasSource, err := e.changes.GetSource()
	if err != nil {
		return nil, err
	}

	if hasSource {
		c.Status = vcstypes.StatusReview
		if err := e.changes.PutChange(c); err != nil {
			return nil, err
		}
		if err := e.workspace.Put(c); err != nil {
			return nil, err
		}
		if err := e.changes.ClearTop(); err != nil {
			return nil, err
		}
		if e.peer != nil {
			if err := e.peer.PostSubmit(noopCtx(), source, c); err != nil {
				e.log.Warn("submit forwarding failed, change stays in local Review", zapErr(err))
			}
		}
		return &Result{Message: "submitted for review"}, nil
	}

	c.VersionOverrides = nil
	if err := e.finalizeMerge(c); err != nil {
		return nil, err
	}
	return &Result{Message: "merged"}, nil
}

// ChangeApprove implements Review/Idle -> Merged. Idempotent if already
// Merged (spec §4.5 "approval is idempotent on already-Merged").
func (e *Engine) ChangeApprove(id vcstypes.Digest) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	resolved, err := e.changes.ResolveShort(string(id))
	if err != nil {
		return nil, err
	}
	c, err := e.changes.GetChange(resolved)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, vcserr.New("ops.ChangeApprove", vcserr.NotFound, "change not found")
	}
	if c.Status == vcstypes.StatusMerged {
		return &Result{Message: "already merged"}, nil
	}
	if err := e.workspace.Remove(c.ID); err != nil {
		return nil, err
	}
	if err := e.finalizeMerge(c); err != nil {
		return nil, err
	}
	return &Result{Message: "approved"}, nil
}

// finalizeMerge marks c Merged, places it at timeline position 0, and
// permanently applies its deferred deletions (spec §4.7: deletions are
// bookkeeping-only until merge; see DESIGN.md).
func (e *Engine) finalizeMerge(c *vcstypes.Change) error {
	for _, o := range c.DeletedObjects {
		digest, found, err := e.refs.Get(o.Type, o.Name, &o.Version)
		if err != nil {
			return err
		}
		if err := e.refs.DeleteVersion(o.Type, o.Name, o.Version); err != nil {
			return err
		}
		if found {
			if _, err := e.objects.DeleteIfUnreferenced(digest); err != nil {
				return err
			}
		}
	}
	c.Status = vcstypes.StatusMerged
	if err := e.changes.PutChange(c); err != nil {
		return err
	}
	if err := e.changes.PrependToTimeline(c.ID); err != nil {
		return err
	}
	if err := e.changes.ClearTop(); err != nil {
		return err
	}
	if e.mirror != nil {
		e.mirror.Trigger(context.Background(), objectSourceSnapshot{e: e})
	}
	return nil
}

// ChangeAbandon implements Local -> (deleted): invert the change and roll
// back everything it created (spec §4.5, §4.6, §8 scenario "abandon undoes
// adds and cleans blobs").
func (e *Engine) ChangeAbandon() (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	top, ok, err := e.changes.GetTop()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, vcserr.New("ops.ChangeAbandon", vcserr.InvalidState, "no Local change to abandon")
	}
	c, err := e.changes.GetChange(top)
	if err != nil {
		return nil, err
	}

	// The inverted change names exactly what must physically unwind: its
	// DeletedObjects are c's AddedObjects (pure undo), its ModifiedObjects
	// are c's ModifiedObjects (roll back to the preceding version), and its
	// RenamedObjects point back the other way (spec §4.6 inversion).
	inv := objectdiff.Invert(c)

	for _, o := range inv.DeletedObjects {
		digest, found, err := e.refs.Get(o.Type, o.Name, &o.Version)
		if err != nil {
			return nil, err
		}
		if err := e.refs.DeleteVersion(o.Type, o.Name, o.Version); err != nil {
			return nil, err
		}
		if found {
			if _, err := e.objects.DeleteIfUnreferenced(digest); err != nil {
				return nil, err
			}
		}
	}
	for _, o := range inv.ModifiedObjects {
		// Deleting the version this change created lets the ref index's
		// own latest-recompute fall back to whatever preceded it.
		digest, found, err := e.refs.Get(o.Type, o.Name, &o.Version)
		if err != nil {
			return nil, err
		}
		if err := e.refs.DeleteVersion(o.Type, o.Name, o.Version); err != nil {
			return nil, err
		}
		if found {
			if _, err := e.objects.DeleteIfUnreferenced(digest); err != nil {
				return nil, err
			}
		}
	}
	for _, r := range inv.RenamedObjects {
		if err := e.refs.Rename(r.From.Type, r.From.Name, r.To.Name); err != nil {
			return nil, err
		}
	}

	if err := e.changes.RemoveFromTimeline(c.ID); err != nil {
		return nil, err
	}
	if err := e.workspace.Remove(c.ID); err != nil {
		return nil, err
	}
	return &Result{Message: "abandoned"}, nil
}

// Status is the supplemental read-only snapshot operation (SPEC_FULL §4.7).
type Status struct {
	TopChange      vcstypes.Digest `json:"top_change,omitempty"`
	TimelineLength int             `json:"timeline_length"`
	ReviewCount    int             `json:"review_count"`
	IdleCount      int             `json:"idle_count"`
	ObjectCount    int             `json:"object_count"`
	SourceURL      string          `json:"source_url,omitempty"`
}

func (e *Engine) Status() (*Status, error) {
	s := &Status{}
	if top, ok, err := e.changes.GetTop(); err != nil {
		return nil, err
	} else if ok {
		s.TopChange = top
	}
	timeline, err := e.changes.GetTimeline()
	if err != nil {
		return nil, err
	}
	s.TimelineLength = len(timeline)
	review, err := e.workspace.ListByStatus(vcstypes.StatusReview)
	if err != nil {
		return nil, err
	}
	s.ReviewCount = len(review)
	idle, err := e.workspace.ListByStatus(vcstypes.StatusIdle)
	if err != nil {
		return nil, err
	}
	s.IdleCount = len(idle)
	count, err := e.objects.Count()
	if err != nil {
		return nil, err
	}
	s.ObjectCount = count
	if url, ok, err := e.changes.GetSource(); err != nil {
		return nil, err
	} else if ok {
		s.SourceURL = url
	}
	return s, nil
}

// ChangeList is the supplemental workspace-listing operation (SPEC_FULL
// §4.7), optionally filtered by status.
func (e *Engine) ChangeList(status *vcstypes.ChangeStatus) ([]*vcstypes.Change, error) {
	if status != nil {
		ids, err := e.workspace.ListByStatus(*status)
		if err != nil {
			return nil, err
		}
		out := make([]*vcstypes.Change, 0, len(ids))
		for _, id := range ids {
			c, err := e.workspace.Get(id)
			if err != nil {
				return nil, err
			}
			if c != nil {
				out = append(out, c)
			}
		}
		return out, nil
	}
	return e.workspace.List()
}
