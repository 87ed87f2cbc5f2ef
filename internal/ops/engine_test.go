package ops_test

import (
	"path/filepath"
	"testing"

	"github.com/biscuitwizard/moovcs/internal/codec/mootext"
	"github.com/biscuitwizard/moovcs/internal/ops"
	"github.com/biscuitwizard/moovcs/internal/remote"
	"github.com/biscuitwizard/moovcs/internal/storage/kv"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestEngine builds an Engine over a fresh on-disk bbolt store with a
// deterministic, caller-controlled clock so change ids are reproducible
// within a single test.
func newTestEngine(t *testing.T) (*ops.Engine, *uint64) {
	t.Helper()
	return newTestEngineWithPeer(t, nil)
}

// newTestEngineWithPeer is newTestEngine with a caller-supplied RemotePeer,
// for tests exercising clone_import/index_update against a fake remote.
func newTestEngineWithPeer(t *testing.T, peer remote.RemotePeer) (*ops.Engine, *uint64) {
	t.Helper()
	dir := t.TempDir()
	store, err := kv.Open(filepath.Join(dir, "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	var clock uint64 = 1000
	now := func() uint64 {
		clock++
		return clock
	}
	e, err := ops.New(store, mootext.New(), peer, "tester", now, zap.NewNop())
	require.NoError(t, err)
	return e, &clock
}

func dump(name string, verbBody string, aliases ...string) string {
	text := "object " + name + "\n"
	if len(aliases) > 0 {
		text += "verb"
		for _, a := range aliases {
			text += " " + a
		}
		text += "\n" + verbBody + "\nendverb\n"
	}
	text += "endobject\n"
	return text
}

func TestObjectUpdateCreateThenGet(t *testing.T) {
	e, _ := newTestEngine(t)

	res, err := e.ObjectUpdate("room", dump("room", "return 1;", "look"))
	require.NoError(t, err)
	require.Equal(t, "updated", res.Message)

	text, digest, version, err := e.ObjectGet("room")
	require.NoError(t, err)
	require.NotEmpty(t, digest)
	require.Equal(t, uint32(1), version)
	require.Contains(t, text, "object room")
}

func TestObjectUpdateUnchangedIsNoop(t *testing.T) {
	e, _ := newTestEngine(t)
	text := dump("room", "return 1;", "look")

	_, err := e.ObjectUpdate("room", text)
	require.NoError(t, err)

	res, err := e.ObjectUpdate("room", text)
	require.NoError(t, err)
	require.True(t, res.Unchanged)
}
