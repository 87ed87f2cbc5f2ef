// Package config loads the handful of environment-sourced settings the
// daemon needs (spec.md §6), bound to pflag flags so they can also be set
// from the command line in cmd/moovcsd.
package config

import (
	"os"

	"github.com/spf13/pflag"
)

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// Config holds every externally-configured setting moovcsd needs to start.
type Config struct {
	DBPath         string
	WizardAPIKey   string
	GameName       string
	GitBackupRepo  string
	GitBackupToken string
	ListenAddr     string
}

// BindFlags registers every setting on fs, defaulting to its env var when
// the flag isn't explicitly passed. Call fs.Parse before Load.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("db-path", envOr("DB_PATH", "./moovcs.db"), "path to the bbolt database file (env DB_PATH)")
	fs.String("wizard-api-key", envOr("WIZARD_API_KEY", ""), "default admin credential, loaded into the config but not consulted by any command (env WIZARD_API_KEY)")
	fs.String("game-name", envOr("GAME_NAME", ""), "logical name of the MOO instance this replica tracks (env GAME_NAME)")
	fs.String("git-backup-repo", envOr("GIT_BACKUP_REPO", ""), "optional git remote URL or local path mirrored on every merge (env GIT_BACKUP_REPO)")
	fs.String("git-backup-token", envOr("GIT_BACKUP_TOKEN", ""), "optional bearer token injected into the git backup remote URL (env GIT_BACKUP_TOKEN)")
	fs.String("listen", ":8080", "address the RPC server listens on")
}

// Load reads the bound flags (after fs.Parse) into a Config.
func Load(fs *pflag.FlagSet) (*Config, error) {
	get := func(name string) (string, error) { return fs.GetString(name) }

	dbPath, err := get("db-path")
	if err != nil {
		return nil, err
	}
	wizardAPIKey, err := get("wizard-api-key")
	if err != nil {
		return nil, err
	}
	gameName, err := get("game-name")
	if err != nil {
		return nil, err
	}
	gitBackupRepo, err := get("git-backup-repo")
	if err != nil {
		return nil, err
	}
	gitBackupToken, err := get("git-backup-token")
	if err != nil {
		return nil, err
	}
	listenAddr, err := get("listen")
	if err != nil {
		return nil, err
	}

	return &Config{
		DBPath:         dbPath,
		WizardAPIKey:   wizardAPIKey,
		GameName:       gameName,
		GitBackupRepo:  gitBackupRepo,
		GitBackupToken: gitBackupToken,
		ListenAddr:     listenAddr,
	}, nil
}
