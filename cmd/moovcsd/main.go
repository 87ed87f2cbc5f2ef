// Command moovcsd runs the version-control engine as an RPC daemon over a
// local bbolt database, matching spec.md §6's CLI surface. It is the
// minimal bootstrap tying internal/config, internal/storage/kv,
// internal/ops, internal/rpcserver and internal/gitmirror together; the CLI
// itself is an external collaborator per spec.md §1.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/biscuitwizard/moovcs/internal/codec/mootext"
	"github.com/biscuitwizard/moovcs/internal/config"
	"github.com/biscuitwizard/moovcs/internal/gitmirror"
	"github.com/biscuitwizard/moovcs/internal/ops"
	"github.com/biscuitwizard/moovcs/internal/remote"
	"github.com/biscuitwizard/moovcs/internal/rpcserver"
	"github.com/biscuitwizard/moovcs/internal/storage/kv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logFile string

	root := &cobra.Command{
		Use:   "moovcsd",
		Short: "content-addressed version control daemon for a live MOO object database",
	}
	fs := root.PersistentFlags()
	config.BindFlags(fs)
	fs.StringVar(&logFile, "log-file", "", "rotate structured logs to this file instead of stderr")

	root.AddCommand(newServeCmd(fs, &logFile))
	root.AddCommand(newStatusCmd(fs, &logFile))
	root.AddCommand(newCloneImportCmd(fs, &logFile))
	return root
}

func newLogger(logFile string) (*zap.Logger, error) {
	if logFile == "" {
		return zap.NewProduction()
	}
	writer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     28,
		Compress:   true,
	})
	core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), writer, zap.InfoLevel)
	return zap.New(core), nil
}

func buildEngine(fs *pflag.FlagSet, logFile string) (*ops.Engine, *config.Config, *zap.Logger, error) {
	cfg, err := config.Load(fs)
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := newLogger(logFile)
	if err != nil {
		return nil, nil, nil, err
	}

	store, err := kv.Open(cfg.DBPath, log)
	if err != nil {
		return nil, nil, nil, err
	}

	peer := remote.NewHTTPPeer(log)
	now := func() uint64 { return uint64(time.Now().Unix()) }
	engine, err := ops.New(store, mootext.New(), peer, cfg.GameName, now, log)
	if err != nil {
		return nil, nil, nil, err
	}

	if mirror, ok := gitmirror.New(gitmirror.Config{Repo: cfg.GitBackupRepo, Token: cfg.GitBackupToken}, log); ok {
		engine.SetGitMirror(mirror)
	}
	return engine, cfg, log, nil
}

func newServeCmd(fs *pflag.FlagSet, logFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the RPC server",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, cfg, log, err := buildEngine(fs, *logFile)
			if err != nil {
				return err
			}
			defer log.Sync()

			handler := rpcserver.New(engine, log)
			log.Info("listening", zap.String("addr", cfg.ListenAddr))
			return http.ListenAndServe(cfg.ListenAddr, handler)
		},
	}
}

func newStatusCmd(fs *pflag.FlagSet, logFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "print the engine's current status as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, log, err := buildEngine(fs, *logFile)
			if err != nil {
				return err
			}
			defer log.Sync()

			status, err := engine.Status()
			if err != nil {
				return err
			}
			fmt.Printf("%+v\n", status)
			return nil
		},
	}
}

func newCloneImportCmd(fs *pflag.FlagSet, logFile *string) *cobra.Command {
	var apiKey string
	cmd := &cobra.Command{
		Use:   "clone-import <url>",
		Short: "import a snapshot from a remote replica",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, log, err := buildEngine(fs, *logFile)
			if err != nil {
				return err
			}
			defer log.Sync()

			var key *string
			if apiKey != "" {
				key = &apiKey
			}
			res, err := engine.CloneImport(cmd.Context(), args[0], key)
			if err != nil {
				return err
			}
			fmt.Println(res.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&apiKey, "api-key", "", "credential to validate against the remote before importing")
	return cmd
}
