package kv_test

import (
	"path/filepath"
	"testing"

	"github.com/biscuitwizard/moovcs/internal/storage/kv"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestStore(t *testing.T) *kv.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := kv.Open(filepath.Join(dir, "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetDelete(t *testing.T) {
	s := openTestStore(t)
	p := s.Partition(kv.Objects)

	v, err := p.Get([]byte("missing"))
	require.NoError(t, err)
	require.Nil(t, v)

	require.NoError(t, p.Put([]byte("k"), []byte("v1")))
	v, err = p.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), v)

	require.NoError(t, p.Delete([]byte("k")))
	v, err = p.Get([]byte("k"))
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestPrefixIterate(t *testing.T) {
	s := openTestStore(t)
	p := s.Partition(kv.Refs)
	require.NoError(t, p.Put([]byte("moo:a:1"), []byte("d1")))
	require.NoError(t, p.Put([]byte("moo:a:2"), []byte("d2")))
	require.NoError(t, p.Put([]byte("moo:b:1"), []byte("d3")))

	var got []string
	require.NoError(t, p.PrefixIterate([]byte("moo:a:"), func(k, v []byte) bool {
		got = append(got, string(k))
		return true
	}))
	require.Equal(t, []string{"moo:a:1", "moo:a:2"}, got)
}

func TestAtomicUpdate(t *testing.T) {
	s := openTestStore(t)
	p := s.Partition(kv.IndexMeta)

	err := p.AtomicUpdate([]byte("seq"), func(old []byte) ([]byte, bool, error) {
		require.Nil(t, old)
		return []byte("1"), true, nil
	})
	require.NoError(t, err)

	v, err := p.Get([]byte("seq"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)

	err = p.AtomicUpdate([]byte("seq"), func(old []byte) ([]byte, bool, error) {
		return nil, false, nil
	})
	require.NoError(t, err)
	v, err = p.Get([]byte("seq"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v, "AtomicUpdate with write=false must not mutate")
}

func TestUnknownPartitionPanics(t *testing.T) {
	s := openTestStore(t)
	require.Panics(t, func() { s.Partition("bogus") })
}

func TestDropAll(t *testing.T) {
	s := openTestStore(t)
	p := s.Partition(kv.Changes)
	require.NoError(t, p.Put([]byte("a"), []byte("1")))
	require.NoError(t, p.DropAll())
	v, err := p.Get([]byte("a"))
	require.NoError(t, err)
	require.Nil(t, v)
}
