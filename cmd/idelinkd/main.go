package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/rexliu/idelink/pkg/config"
	"github.com/rexliu/idelink/pkg/ipc"
	"github.com/rexliu/idelink/pkg/logging"
	"github.com/rexliu/idelink/pkg/peer"
	"github.com/rexliu/idelink/pkg/storage/sqlite"
	gitvcs "github.com/rexliu/idelink/pkg/vcs/git"
)

const journalRetention = 30 * 24 * time.Hour

type options struct {
	profileDir string
	workspace  string
	basePort   int
}

func main() {
	var opts options
	flag.StringVar(&opts.profileDir, "profile", "./_dev_profile", "Path to profile directory")
	flag.StringVar(&opts.workspace, "workspace", "", "Workspace to report (defaults to config, then the current directory)")
	flag.IntVar(&opts.basePort, "base-port", 0, "Override the first port of the range")
	flag.Parse()

	logger := logging.New("idelinkd")
	logger.Info().Str("profile", opts.profileDir).Msg("starting daemon")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts, logger); err != nil {
		logger.Error().Err(err).Msg("fatal error")
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, logger zerolog.Logger) error {
	cfg, err := config.LoadProfile(opts.profileDir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Warn().Str("profile", opts.profileDir).Msg("no config.toml, using defaults")
		cfg = config.DefaultProfile("default")
	case err != nil:
		return fmt.Errorf("load config: %w", err)
	}
	if opts.basePort != 0 {
		cfg.IPC.BasePort = opts.basePort
	}

	logger, closer, err := logging.Configure("idelinkd", opts.profileDir, cfg.Logging)
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer closer.Close()

	workspace, err := resolveWorkspace(opts.workspace, cfg.IDE.Workspace)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(opts.profileDir, 0o700); err != nil {
		return err
	}
	store, err := sqlite.Open(config.ResolvePath(opts.profileDir, cfg.Storage.DBPath))
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("init sqlite: %w", err)
	}
	if n, err := store.Prune(ctx, time.Now().Add(-journalRetention)); err != nil {
		logger.Warn().Err(err).Msg("journal prune failed")
	} else if n > 0 {
		logger.Info().Int64("removed", n).Msg("journal pruned")
	}

	editor := &headlessEditor{
		identity:  cfg.IDE.Identity,
		version:   cfg.IDE.Version,
		workspace: workspace,
		solution:  cfg.IDE.Solution,
	}
	launcher := &launcher{cfg: cfg.Launch, logger: logger}
	svc := peer.NewService(editor, launcher, launcher, logger)
	svc.Journal = store

	srv := ipc.NewServer(cfg.IDE.Identity, logger)
	srv.WriteTimeout = cfg.IPC.RequestTimeout.Duration
	svc.Register(srv)

	port, err := srv.Start(ctx, cfg.IPC.Host, cfg.IPC.BasePort, cfg.IPC.PortCount)
	if err != nil {
		return fmt.Errorf("start ipc: %w", err)
	}
	defer srv.Stop()

	logger.Info().
		Int("port", port).
		Str("workspace", workspace).
		Str("journal", store.Path()).
		Msg("daemon ready")

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	return nil
}

func resolveWorkspace(flagValue, configured string) (string, error) {
	dir := flagValue
	if dir == "" {
		dir = configured
	}
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	return gitvcs.WorktreeRoot(abs), nil
}
