package ops

import (
	"context"

	"github.com/biscuitwizard/moovcs/internal/changeindex"
	"github.com/biscuitwizard/moovcs/internal/objectdiff"
	"github.com/biscuitwizard/moovcs/internal/objectstore"
	"github.com/biscuitwizard/moovcs/internal/refindex"
	"github.com/biscuitwizard/moovcs/internal/storage/kv"
	"github.com/biscuitwizard/moovcs/internal/vcserr"
	"github.com/biscuitwizard/moovcs/internal/vcstypes"
	"golang.org/x/sync/errgroup"
)

// CloneExport implements spec §4.7 clone_export: a snapshot of latest refs,
// the blobs they reach, every Merged change, and the timeline restricted to
// Merged ids.
func (e *Engine) CloneExport() (*vcstypes.CloneData, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var refs []vcstypes.RefEntry
	seen := map[vcstypes.Digest][]byte{}
	collect := func(t vcstypes.ObjectType) error {
		return e.refs.IterAll(t, func(info vcstypes.ObjectInfo, digest vcstypes.Digest) bool {
			refs = append(refs, vcstypes.RefEntry{Info: info, Digest: digest})
			if _, ok := seen[digest]; !ok {
				if data, err := e.objects.Get(digest); err == nil {
					seen[digest] = data
				}
			}
			return true
		})
	}
	if err := collect(vcstypes.Moo); err != nil {
		return nil, err
	}
	if err := collect(vcstypes.Meta); err != nil {
		return nil, err
	}

	timeline, err := e.changes.GetTimeline()
	if err != nil {
		return nil, err
	}
	var merged []vcstypes.Change
	var mergedIDs []vcstypes.Digest
	for _, id := range timeline {
		c, err := e.changes.GetChange(id)
		if err != nil {
			return nil, err
		}
		if c != nil && c.Status == vcstypes.StatusMerged {
			merged = append(merged, *c)
			mergedIDs = append(mergedIDs, id)
		}
	}

	var source *string
	if url, ok, err := e.changes.GetSource(); err != nil {
		return nil, err
	} else if ok {
		source = &url
	}

	return &vcstypes.CloneData{
		Refs:        refs,
		Objects:     seen,
		Changes:     merged,
		ChangeOrder: mergedIDs,
		Source:      source,
	}, nil
}

// CloneImport implements spec §4.7 clone_import: validate credentials (if
// supplied), fetch the snapshot, and replace all engine state atomically.
// Nothing is written until the fetch (and validation, if requested) has
// succeeded.
func (e *Engine) CloneImport(ctx context.Context, url string, apiKey *string) (*Result, error) {
	var userID string
	if apiKey != nil {
		id, err := e.peer.ValidateAPIKey(ctx, url, *apiKey)
		if err != nil {
			return nil, err
		}
		userID = id
	}
	data, err := e.peer.FetchClone(ctx, url)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.replaceAll(data); err != nil {
		return nil, vcserr.Wrap("ops.CloneImport", vcserr.Storage, err)
	}
	if err := e.changes.SetSource(url); err != nil {
		return nil, err
	}
	if apiKey != nil {
		if err := e.changes.SetExternalCredentials(*apiKey, userID); err != nil {
			return nil, err
		}
	}
	return &Result{Message: "imported"}, nil
}

// replaceAll stages data into shadow partitions and only swaps them into the
// partitions clone_import owns once every staged write has succeeded, so a
// clone_import that fails partway through (a bad blob, a storage error)
// never touches live state (spec §5: "a cancelled clone_import must not have
// written anything"). index_meta (source/credentials) is left to the
// caller, set after a successful swap.
func (e *Engine) replaceAll(data *vcstypes.CloneData) error {
	stagingPartitions := []string{kv.ObjectsStaging, kv.RefsStaging, kv.RefsReverseStaging, kv.ChangesStaging, kv.TimelineStaging}
	for _, p := range stagingPartitions {
		if err := e.store.Partition(p).DropAll(); err != nil {
			return err
		}
	}

	stagedRefs, err := refindex.NewAt(e.store, kv.RefsStaging, kv.RefsReverseStaging)
	if err != nil {
		return err
	}
	stagedObjects := objectstore.NewAt(e.store, kv.ObjectsStaging, stagedRefs.Reverse)
	stagedChanges := changeindex.NewAt(e.store, kv.ChangesStaging, kv.TimelineStaging)

	for digest, bytes := range data.Objects {
		if err := stagedObjects.PutRaw(digest, bytes); err != nil {
			return err
		}
	}
	for _, r := range data.Refs {
		if err := stagedRefs.PutVersion(r.Info.Type, r.Info.Name, r.Info.Version, r.Digest); err != nil {
			return err
		}
	}
	for i := range data.Changes {
		c := data.Changes[i]
		if err := stagedChanges.PutChange(&c); err != nil {
			return err
		}
	}
	if err := stagedChanges.SetTimeline(data.ChangeOrder); err != nil {
		return err
	}

	// Every staged write succeeded: swap. Workspace (Idle/Review changes)
	// has no staged counterpart since a freshly imported replica starts
	// with none, so it is simply dropped alongside the live partitions
	// being replaced by their staged contents.
	swaps := []struct{ live, staged string }{
		{kv.Objects, kv.ObjectsStaging},
		{kv.Refs, kv.RefsStaging},
		{kv.RefsReverse, kv.RefsReverseStaging},
		{kv.Changes, kv.ChangesStaging},
		{kv.Timeline, kv.TimelineStaging},
	}
	for _, s := range swaps {
		if err := e.store.Partition(s.live).DropAll(); err != nil {
			return err
		}
		if err := copyPartition(e.store.Partition(s.staged), e.store.Partition(s.live)); err != nil {
			return err
		}
		if err := e.store.Partition(s.staged).DropAll(); err != nil {
			return err
		}
	}
	if err := e.store.Partition(kv.Workspace).DropAll(); err != nil {
		return err
	}

	refs, err := refindex.New(e.store)
	if err != nil {
		return err
	}
	e.refs = refs
	e.objects = objectstore.New(e.store, refs.Reverse)
	e.changes = changeindex.New(e.store)

	return e.changes.ClearTop()
}

// copyPartition bulk-copies every key in src into dst, used only for the
// final swap step of replaceAll once staging has fully succeeded.
func copyPartition(src, dst kv.Partition) error {
	var copyErr error
	err := src.PrefixIterate(nil, func(k, v []byte) bool {
		if copyErr = dst.Put(k, v); copyErr != nil {
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	return copyErr
}

// IndexCalcDelta implements spec §4.7 index_calc_delta: the set of changes
// strictly newer than sinceChangeID on this replica's Merged timeline, plus
// the refs/objects they introduced.
func (e *Engine) IndexCalcDelta(sinceChangeID string) (*vcstypes.Delta, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	resolved, err := e.changes.ResolveShort(sinceChangeID)
	if err != nil {
		return nil, err
	}
	timeline, err := e.changes.GetTimeline()
	if err != nil {
		return nil, err
	}
	cut := -1
	for i, id := range timeline {
		if id == resolved {
			cut = i
			break
		}
	}
	if cut < 0 {
		return nil, vcserr.New("ops.IndexCalcDelta", vcserr.NotFound, "change not found on timeline")
	}

	newer := timeline[:cut]
	var refPairs []vcstypes.RefEntry
	digestSet := map[vcstypes.Digest]struct{}{}
	for _, id := range newer {
		c, err := e.changes.GetChange(id)
		if err != nil {
			return nil, err
		}
		if c == nil {
			continue
		}
		for _, o := range append(append([]vcstypes.ObjectInfo{}, c.AddedObjects...), c.ModifiedObjects...) {
			digest, ok, err := e.refs.Get(o.Type, o.Name, &o.Version)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			refPairs = append(refPairs, vcstypes.RefEntry{Info: o, Digest: digest})
			digestSet[digest] = struct{}{}
		}
	}
	objectsAdded := make([]vcstypes.Digest, 0, len(digestSet))
	for d := range digestSet {
		objectsAdded = append(objectsAdded, d)
	}

	return &vcstypes.Delta{ChangeIDs: newer, RefPairs: refPairs, ObjectsAdded: objectsAdded}, nil
}

// IndexUpdate implements spec §4.7 index_update: fetch a delta against the
// stored source and apply whatever of it this replica can materialize,
// returning an ObjectDiffModel summary of what changed.
func (e *Engine) IndexUpdate(ctx context.Context) (*objectdiff.ObjectDiffModel, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	source, ok, err := e.changes.GetSource()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, vcserr.New("ops.IndexUpdate", vcserr.InvalidState, "no source configured; not cloned from a replica")
	}

	var since vcstypes.Digest
	timeline, err := e.changes.GetTimeline()
	if err != nil {
		return nil, err
	}
	if len(timeline) > 0 {
		since = timeline[0]
	}

	delta, err := e.peer.FetchDelta(ctx, source, string(since))
	if err != nil {
		return nil, err
	}

	// Presence of each ref pair's blob is an independent read against the
	// object store, so it can be checked concurrently (spec §5: only the
	// independent-fetch half of index_update fans out, the refindex writes
	// below stay serialized since this method already holds e.mu).
	present := make([]bool, len(delta.RefPairs))
	var g errgroup.Group
	for i, r := range delta.RefPairs {
		i, r := i, r
		g.Go(func() error {
			data, err := e.objects.Get(r.Digest)
			if err != nil {
				return err
			}
			present[i] = data != nil
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	model := objectdiff.NewObjectDiffModel()
	for i, r := range delta.RefPairs {
		// Only materialize refs whose blob is already known locally; the
		// RemotePeer contract has no byte-transfer call, so blobs absent
		// from this delta are reported, not silently applied.
		if !present[i] {
			model.Skipped = append(model.Skipped, r.Info)
			continue
		}
		if err := e.refs.PutVersion(r.Info.Type, r.Info.Name, r.Info.Version, r.Digest); err != nil {
			if vcserr.KindOf(err) == vcserr.Conflict {
				continue
			}
			return nil, err
		}
		model.Applied = append(model.Applied, r.Info)
	}
	for _, id := range delta.ChangeIDs {
		// Only the id is known (the remote's Delta carries no Change
		// body); record it on the timeline so later deltas chain from it.
		if err := e.changes.PrependToTimeline(id); err != nil {
			return nil, err
		}
	}
	return model, nil
}
