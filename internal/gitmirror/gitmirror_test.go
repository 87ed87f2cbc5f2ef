package gitmirror

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"simple":                "simple",
		"$player":                "player",
		"obj/with/slashes":       "obj_with_slashes",
		"obj\\with\\backslashes": "obj_with_backslashes",
		"obj:with:colons":        "obj_with_colons",
		"obj*with*stars":         "obj_with_stars",
		"obj?with?questions":     "obj_with_questions",
		"obj\"with\"quotes":      "obj_with_quotes",
		"obj<with>brackets":      "obj_with_brackets",
		"obj|with|pipes":         "obj_with_pipes",
		"$room:utilities":        "room_utilities",
		"":                       "",
		"$*?:":                   "_",
	}
	for in, want := range cases {
		require.Equal(t, want, sanitizeFilename(in), "input %q", in)
	}
}

func TestInjectToken(t *testing.T) {
	require.Equal(t, "https://my_token@github.com/user/repo.git", injectToken("https://github.com/user/repo.git", "my_token"))
	require.Equal(t, "http://token123@example.com/repo.git", injectToken("http://example.com/repo.git", "token123"))
	require.Equal(t, "git@github.com:user/repo.git", injectToken("git@github.com:user/repo.git", "token"))
}

type fakeSource struct {
	objects map[string]string
}

func (f *fakeSource) ObjectList() ([]string, error) {
	names := make([]string, 0, len(f.objects))
	for n := range f.objects {
		names = append(names, n)
	}
	return names, nil
}

func (f *fakeSource) ObjectGet(name string) (string, string, uint32, error) {
	return f.objects[name], "digest", 1, nil
}

func TestNewWithoutRepoConfiguredIsNoop(t *testing.T) {
	m, ok := New(Config{}, zap.NewNop())
	require.False(t, ok)
	require.Nil(t, m)
}

func TestExportWritesObjectFilesToLocalWorkdir(t *testing.T) {
	dir := t.TempDir()
	repoPath := filepath.Join(dir, "repo")

	m, ok := New(Config{Repo: repoPath}, zap.NewNop())
	require.True(t, ok)

	source := &fakeSource{objects: map[string]string{
		"$room": "object room\nendobject\n",
	}}

	err := m.export(context.Background(), source)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(repoPath, "room.moo"))
	require.NoError(t, err)
	require.Contains(t, string(data), "object room")
}
