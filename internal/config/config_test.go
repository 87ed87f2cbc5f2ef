package config_test

import (
	"testing"

	"github.com/biscuitwizard/moovcs/internal/config"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenUnset(t *testing.T) {
	t.Setenv("DB_PATH", "")
	t.Setenv("GIT_BACKUP_REPO", "")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.BindFlags(fs)
	require.NoError(t, fs.Parse(nil))

	cfg, err := config.Load(fs)
	require.NoError(t, err)
	require.Equal(t, "./moovcs.db", cfg.DBPath)
	require.Empty(t, cfg.GitBackupRepo)
	require.Equal(t, ":8080", cfg.ListenAddr)
}

func TestLoadReadsEnvFallback(t *testing.T) {
	t.Setenv("DB_PATH", "/var/lib/moovcs/data.db")
	t.Setenv("GAME_NAME", "LambdaMOO")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.BindFlags(fs)
	require.NoError(t, fs.Parse(nil))

	cfg, err := config.Load(fs)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/moovcs/data.db", cfg.DBPath)
	require.Equal(t, "LambdaMOO", cfg.GameName)
}

func TestCommandLineFlagOverridesEnv(t *testing.T) {
	t.Setenv("DB_PATH", "/from/env.db")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--db-path=/from/flag.db"}))

	cfg, err := config.Load(fs)
	require.NoError(t, err)
	require.Equal(t, "/from/flag.db", cfg.DBPath)
}
