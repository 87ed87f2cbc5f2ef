// Package gitmirror best-effort mirrors the current set of MOO objects into
// an external git working tree by shelling out to the git binary. It is a
// thin collaborator (SPEC_FULL §4.10): never on the critical path of a
// change operation, and every failure is logged and swallowed rather than
// propagated. Grounded on original_source/vcs-worker/src/git_backup.rs.
package gitmirror

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ObjectSource is the narrow slice of internal/ops.Engine the mirror needs:
// the current working-state object list and each object's canonical text.
type ObjectSource interface {
	ObjectList() ([]string, error)
	ObjectGet(name string) (text string, digest string, version uint32, err error)
}

// Config carries the two env-configured knobs from spec.md §6.
type Config struct {
	Repo  string // GIT_BACKUP_REPO: local path, or http(s):// remote URL
	Token string // GIT_BACKUP_TOKEN: optional bearer token injected into the remote URL
}

// Mirror drives one export-and-push cycle against a single working tree.
type Mirror struct {
	cfg     Config
	workDir string
	log     *zap.Logger
}

// New returns nil, false when no repo is configured — the caller's Trigger
// becomes a no-op in that case, matching the original's early return.
func New(cfg Config, log *zap.Logger) (*Mirror, bool) {
	if cfg.Repo == "" {
		return nil, false
	}
	workDir := cfg.Repo
	if isRemoteURL(cfg.Repo) {
		workDir = filepath.Join(os.TempDir(), "moovcs-git-backup")
	}
	return &Mirror{cfg: cfg, workDir: workDir, log: log}, true
}

// Trigger runs one export cycle in a background goroutine, matching the
// original's background-thread dispatch. Errors are logged, never returned.
func (m *Mirror) Trigger(ctx context.Context, source ObjectSource) {
	if m == nil {
		return
	}
	go func() {
		if err := m.export(ctx, source); err != nil {
			m.log.Warn("git mirror export failed", zap.Error(err))
		}
	}()
}

func (m *Mirror) export(ctx context.Context, source ObjectSource) error {
	if err := m.setup(ctx); err != nil {
		return err
	}

	names, err := source.ObjectList()
	if err != nil {
		return err
	}

	written := make(map[string]bool, len(names))
	for _, name := range names {
		text, _, _, err := source.ObjectGet(name)
		if err != nil {
			m.log.Warn("git mirror: failed to load object", zap.String("object", name), zap.Error(err))
			continue
		}
		filename := sanitizeFilename(name) + ".moo"
		if err := os.WriteFile(filepath.Join(m.workDir, filename), []byte(text), 0o644); err != nil {
			m.log.Warn("git mirror: failed to write object", zap.String("object", name), zap.Error(err))
			continue
		}
		written[filename] = true
	}
	m.log.Info("git mirror wrote objects", zap.Int("count", len(written)))

	if err := m.cleanupStale(written); err != nil {
		return err
	}
	return m.commitAndPush(ctx)
}

func (m *Mirror) setup(ctx context.Context) error {
	if !isRemoteURL(m.cfg.Repo) {
		if _, err := os.Stat(m.workDir); os.IsNotExist(err) {
			if err := os.MkdirAll(m.workDir, 0o755); err != nil {
				return err
			}
			return m.git(ctx, "init")
		}
		return nil
	}

	if _, err := os.Stat(m.workDir); err == nil {
		// Existing clone: best-effort pull, force-push will reconcile divergence.
		_ = m.git(ctx, "pull", "--rebase")
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(m.workDir), 0o755); err != nil {
		return err
	}
	cloneURL := m.authenticatedURL()
	cmd := exec.CommandContext(ctx, "git", "clone", cloneURL, m.workDir)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return vcserrWrap("git clone failed", out, err)
	}
	return nil
}

func (m *Mirror) cleanupStale(written map[string]bool) error {
	entries, err := os.ReadDir(m.workDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".moo") {
			continue
		}
		if written[e.Name()] {
			continue
		}
		if err := os.Remove(filepath.Join(m.workDir, e.Name())); err != nil {
			m.log.Warn("git mirror: failed to remove stale file", zap.String("file", e.Name()), zap.Error(err))
		}
	}
	return nil
}

func (m *Mirror) commitAndPush(ctx context.Context) error {
	_ = m.git(ctx, "config", "user.email", "moovcs-backup@localhost")
	_ = m.git(ctx, "config", "user.name", "moovcs backup")

	if err := m.git(ctx, "add", "-A"); err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, "git", "status", "--porcelain")
	cmd.Dir = m.workDir
	out, err := cmd.Output()
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(out))) == 0 {
		m.log.Info("git mirror: nothing to commit")
		return nil
	}

	message := "moovcs backup: " + time.Now().UTC().Format(time.RFC3339)
	if err := m.git(ctx, "commit", "-m", message); err != nil {
		return err
	}

	if !isRemoteURL(m.cfg.Repo) {
		return nil
	}

	_ = m.git(ctx, "remote", "remove", "origin")
	if err := m.git(ctx, "remote", "add", "origin", m.authenticatedURL()); err != nil {
		return err
	}
	if err := m.git(ctx, "push", "--force", "origin", "HEAD:main"); err != nil {
		if fallbackErr := m.git(ctx, "push", "--force", "origin", "HEAD:master"); fallbackErr != nil {
			return fallbackErr
		}
	}
	m.log.Info("git mirror pushed changes")
	return nil
}

func (m *Mirror) git(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = m.workDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return vcserrWrap("git "+strings.Join(args, " ")+" failed", out, err)
	}
	return nil
}

func (m *Mirror) authenticatedURL() string {
	if m.cfg.Token == "" {
		return m.cfg.Repo
	}
	return injectToken(m.cfg.Repo, m.cfg.Token)
}

func isRemoteURL(repo string) bool {
	return strings.HasPrefix(repo, "http://") || strings.HasPrefix(repo, "https://")
}

// injectToken inserts an authentication token into an http(s) URL's
// authority component; non-http(s) URLs (e.g. ssh remotes) pass through
// unchanged.
func injectToken(url, token string) string {
	if strings.HasPrefix(url, "https://") {
		return "https://" + token + "@" + strings.TrimPrefix(url, "https://")
	}
	if strings.HasPrefix(url, "http://") {
		return "http://" + token + "@" + strings.TrimPrefix(url, "http://")
	}
	return url
}

// sanitizeFilename replaces filesystem-hostile characters and collapses
// consecutive underscores, matching the original exporter's rules.
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_",
		"?", "_", "\"", "_", "<", "_", ">", "_", "|", "_",
		"$", "",
	)
	sanitized := replacer.Replace(name)

	var b strings.Builder
	lastUnderscore := false
	for _, c := range sanitized {
		if c == '_' {
			if !lastUnderscore {
				b.WriteRune(c)
				lastUnderscore = true
			}
			continue
		}
		b.WriteRune(c)
		lastUnderscore = false
	}
	return b.String()
}

type gitError struct {
	msg string
}

func (e *gitError) Error() string { return e.msg }

func vcserrWrap(msg string, out []byte, err error) error {
	return &gitError{msg: msg + ": " + strings.TrimSpace(string(out)) + ": " + err.Error()}
}
