package refindex_test

import (
	"path/filepath"
	"testing"

	"github.com/biscuitwizard/moovcs/internal/refindex"
	"github.com/biscuitwizard/moovcs/internal/storage/kv"
	"github.com/biscuitwizard/moovcs/internal/vcserr"
	"github.com/biscuitwizard/moovcs/internal/vcstypes"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newIndex(t *testing.T) *refindex.Index {
	t.Helper()
	dir := t.TempDir()
	store, err := kv.Open(filepath.Join(dir, "t.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	idx, err := refindex.New(store)
	require.NoError(t, err)
	return idx
}

func TestPutGetLatest(t *testing.T) {
	idx := newIndex(t)
	require.NoError(t, idx.PutVersion(vcstypes.Moo, "foo", 1, "d1"))

	d, ok, err := idx.Get(vcstypes.Moo, "foo", nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, vcstypes.Digest("d1"), d)

	lv, ok, err := idx.LatestVersion(vcstypes.Moo, "foo")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(1), lv)
}

func TestPutVersionConflict(t *testing.T) {
	idx := newIndex(t)
	require.NoError(t, idx.PutVersion(vcstypes.Moo, "foo", 1, "d1"))
	err := idx.PutVersion(vcstypes.Moo, "foo", 1, "d2")
	require.Error(t, err)
	require.Equal(t, vcserr.Conflict, vcserr.KindOf(err))
}

func TestNextVersion(t *testing.T) {
	idx := newIndex(t)
	v, err := idx.NextVersion(vcstypes.Moo, "foo")
	require.NoError(t, err)
	require.Equal(t, uint32(1), v)

	require.NoError(t, idx.PutVersion(vcstypes.Moo, "foo", 1, "d1"))
	v, err = idx.NextVersion(vcstypes.Moo, "foo")
	require.NoError(t, err)
	require.Equal(t, uint32(2), v)
}

func TestDeleteVersionRecomputesLatest(t *testing.T) {
	idx := newIndex(t)
	require.NoError(t, idx.PutVersion(vcstypes.Moo, "foo", 1, "d1"))
	require.NoError(t, idx.PutVersion(vcstypes.Moo, "foo", 2, "d2"))

	require.NoError(t, idx.DeleteVersion(vcstypes.Moo, "foo", 2))
	lv, ok, err := idx.LatestVersion(vcstypes.Moo, "foo")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(1), lv)

	require.NoError(t, idx.DeleteVersion(vcstypes.Moo, "foo", 1))
	_, ok, err = idx.LatestVersion(vcstypes.Moo, "foo")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIsReferencedExcluding(t *testing.T) {
	idx := newIndex(t)
	require.NoError(t, idx.PutVersion(vcstypes.Moo, "a", 1, "shared"))
	require.NoError(t, idx.PutVersion(vcstypes.Moo, "b", 1, "shared"))

	ref, err := idx.IsReferencedExcluding("shared", vcstypes.ObjectInfo{Type: vcstypes.Moo, Name: "a", Version: 1})
	require.NoError(t, err)
	require.True(t, ref, "b:1 still references shared")

	require.NoError(t, idx.DeleteVersion(vcstypes.Moo, "b", 1))
	ref, err = idx.IsReferencedExcluding("shared", vcstypes.ObjectInfo{Type: vcstypes.Moo, Name: "a", Version: 1})
	require.NoError(t, err)
	require.False(t, ref)
}

func TestRenameMovesVersionsAndLatest(t *testing.T) {
	idx := newIndex(t)
	require.NoError(t, idx.PutVersion(vcstypes.Moo, "old", 1, "d1"))
	require.NoError(t, idx.PutVersion(vcstypes.Moo, "old", 2, "d2"))

	require.NoError(t, idx.Rename(vcstypes.Moo, "old", "new"))

	_, ok, err := idx.LatestVersion(vcstypes.Moo, "old")
	require.NoError(t, err)
	require.False(t, ok)

	lv, ok, err := idx.LatestVersion(vcstypes.Moo, "new")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(2), lv)

	d, ok, err := idx.Get(vcstypes.Moo, "new", nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, vcstypes.Digest("d2"), d)
}

func TestRenameConflict(t *testing.T) {
	idx := newIndex(t)
	require.NoError(t, idx.PutVersion(vcstypes.Moo, "a", 1, "d1"))
	require.NoError(t, idx.PutVersion(vcstypes.Moo, "b", 1, "d2"))
	err := idx.Rename(vcstypes.Moo, "a", "b")
	require.Error(t, err)
	require.Equal(t, vcserr.Conflict, vcserr.KindOf(err))
}
