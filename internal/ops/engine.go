// Package ops is the operation layer (spec §4.7): the user-visible verbs
// that compose the object store, ref index, change index, workspace and
// diff engine into object/change/clone operations. Every mutating method
// serializes through Engine's write lock (spec §5); readers take the
// underlying partitions' own read path and do not hold the lock.
package ops

import (
	"sync"

	"github.com/biscuitwizard/moovcs/internal/changeindex"
	"github.com/biscuitwizard/moovcs/internal/codec"
	"github.com/biscuitwizard/moovcs/internal/gitmirror"
	"github.com/biscuitwizard/moovcs/internal/objectstore"
	"github.com/biscuitwizard/moovcs/internal/refindex"
	"github.com/biscuitwizard/moovcs/internal/remote"
	"github.com/biscuitwizard/moovcs/internal/storage/kv"
	"github.com/biscuitwizard/moovcs/internal/workspace"
	"go.uber.org/zap"
)

// Engine wires every lower layer together and is the sole entry point the
// RPC surface (or any other caller) uses to mutate or read engine state.
type Engine struct {
	mu sync.Mutex

	store     *kv.Store
	objects   *objectstore.Store
	refs      *refindex.Index
	changes   *changeindex.Index
	workspace *workspace.Workspace
	codec     codec.ObjectCodec
	peer      remote.RemotePeer
	log       *zap.Logger

	// author is the identity attributed to changes minted implicitly by
	// object-level operations (get_or_create_local); change_create accepts
	// an explicit author and does not use this default.
	author string
	// now supplies the current Unix timestamp; overridden in tests for
	// deterministic change ids.
	now func() uint64

	// mirror is the optional best-effort git exporter (SPEC_FULL §4.10),
	// nil unless GIT_BACKUP_REPO is configured. It is never on the critical
	// path: finalizeMerge fires it and ignores the outcome entirely.
	mirror *gitmirror.Mirror
}

// SetGitMirror attaches the optional git mirror exporter. Called once during
// startup wiring in cmd/moovcsd; a nil mirror (the default) makes every
// merge trigger a no-op.
func (e *Engine) SetGitMirror(m *gitmirror.Mirror) {
	e.mirror = m
}

// objectSourceSnapshot adapts Engine to gitmirror.ObjectSource, converting
// vcstypes.Digest to a plain string at the package boundary.
type objectSourceSnapshot struct{ e *Engine }

func (s objectSourceSnapshot) ObjectList() ([]string, error) { return s.e.ObjectList() }

func (s objectSourceSnapshot) ObjectGet(name string) (string, string, uint32, error) {
	text, digest, version, err := s.e.ObjectGet(name)
	return text, string(digest), version, err
}

// New constructs an Engine over an already-open kv.Store.
func New(store *kv.Store, c codec.ObjectCodec, peer remote.RemotePeer, author string, now func() uint64, log *zap.Logger) (*Engine, error) {
	refs, err := refindex.New(store)
	if err != nil {
		return nil, err
	}
	return &Engine{
		store:     store,
		objects:   objectstore.New(store, refs.Reverse),
		refs:      refs,
		changes:   changeindex.New(store),
		workspace: workspace.New(store),
		codec:     c,
		peer:      peer,
		author:    author,
		now:       now,
		log:       log,
	}, nil
}

// Result is the outcome of a mutating operation, echoed back to RPC callers.
type Result struct {
	Unchanged bool   `json:"unchanged,omitempty"`
	Message   string `json:"message"`
}
