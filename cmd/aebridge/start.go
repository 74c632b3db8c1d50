package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/afero"

	"github.com/mattjoyce/aebridge/internal/api"
	"github.com/mattjoyce/aebridge/internal/auth"
	"github.com/mattjoyce/aebridge/internal/channel"
	"github.com/mattjoyce/aebridge/internal/config"
	"github.com/mattjoyce/aebridge/internal/dispatch"
	"github.com/mattjoyce/aebridge/internal/events"
	"github.com/mattjoyce/aebridge/internal/lock"
	"github.com/mattjoyce/aebridge/internal/log"
	"github.com/mattjoyce/aebridge/internal/registry"
	"github.com/mattjoyce/aebridge/internal/scene"
	"github.com/mattjoyce/aebridge/internal/storage"
	"github.com/mattjoyce/aebridge/internal/tui/watch"
	"github.com/mattjoyce/aebridge/internal/worker"
)

// bridge is the pair of channels a process opens from config.
type bridge struct {
	cfg      *config.Config
	commands *channel.CommandChannel
	results  *channel.ResultChannel
}

func openBridge(cfg *config.Config, fsys afero.Fs) *bridge {
	paths := cfg.Paths()
	return &bridge{
		cfg:      cfg,
		commands: channel.NewCommandChannel(fsys, paths.CommandPath()),
		results:  channel.NewResultChannel(fsys, paths.ResultPath()),
	}
}

func (b *bridge) dispatcher(opts ...dispatch.Option) *dispatch.Dispatcher {
	return dispatch.New(b.commands, b.results, opts...)
}

// newWorker builds a worker over an in-memory scene host.
func (b *bridge) newWorker(opts ...worker.Option) *worker.Worker {
	host := scene.NewMemory(b.cfg.Scene.ProjectName)
	reg := registry.New(scene.Handlers(host))
	return worker.New(b.cfg.WorkerConfig(), b.commands, b.results, reg, opts...)
}

func loadConfig(configPath string) (*config.Config, error) {
	cfg, err := config.LoadOrDiscover(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.SourcePath != "" && configPath == "" {
		fmt.Fprintf(os.Stderr, "Using discovered config: %s\n", cfg.SourcePath)
	}
	return cfg, nil
}

// workerLogFile is the panel-mode log, kept next to the channel files.
const workerLogFile = "aebridge-worker.log"

// openWorkerLog creates the channel directory if needed and opens the
// panel-mode log file in it for appending.
func openWorkerLog(fsys afero.Fs, cfg *config.Config) (afero.File, error) {
	if err := channel.EnsureDir(fsys, cfg.Paths()); err != nil {
		return nil, err
	}
	return fsys.OpenFile(filepath.Join(cfg.Channel.Dir, workerLogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// configCheckInterval is how often a running worker rehashes its config file.
const configCheckInterval = 30 * time.Second

// watchConfigFile warns once when the loaded config file changes on disk.
// The worker config is immutable, so edits only apply after a restart.
func watchConfigFile(ctx context.Context, cfg *config.Config, every time.Duration, logger *slog.Logger) {
	if cfg.SourcePath == "" {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changed, err := cfg.SourceChanged()
			if err != nil {
				logger.Debug("config hash check failed", "path", cfg.SourcePath, "error", err)
				continue
			}
			if changed {
				logger.Warn("config file changed on disk; restart the worker to apply it", "path", cfg.SourcePath)
				return
			}
		}
	}
}

// --- ACTION IMPLEMENTATIONS ---

func runWorkerStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	panel := fs.Bool("panel", false, "Show the status panel instead of logging to stdout")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	fsys := afero.NewOsFs()
	if *panel {
		logFile, err := openWorkerLog(fsys, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			return 1
		}
		defer logFile.Close()
		log.SetupWriter(cfg.Service.LogLevel, logFile)
	} else {
		log.Setup(cfg.Service.LogLevel)
	}
	logger := log.WithComponent("main")
	logger.Info("aebridge worker starting", "version", version, "config", cfg.SourcePath)

	if report, err := storage.InspectChannelDir(cfg.Channel.Dir); err != nil {
		logger.Warn("could not inspect channel directory", "dir", cfg.Channel.Dir, "error", err)
	} else if msg := report.Warning(); msg != "" {
		logger.Warn(msg)
	}

	if err := channel.EnsureDir(fsys, cfg.Paths()); err != nil {
		logger.Error("failed to create channel directory", "error", err)
		return 1
	}

	pidLock, err := lock.AcquirePIDLock(cfg.LockPath())
	if err != nil {
		logger.Error("failed to acquire PID lock (another worker may be running)", "path", cfg.LockPath(), "error", err)
		if errors.Is(err, lock.ErrLocked) {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLock.Path())

	b := openBridge(cfg, fsys)
	w := b.newWorker()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("worker: %w", err)
		}
	}()

	go watchConfigFile(ctx, cfg, configCheckInterval, logger)

	logger.Info("aebridge worker running (press Ctrl+C to stop)",
		"worker_id", w.ID(), "channel_dir", cfg.Channel.Dir, "auto_run", cfg.Worker.AutoRun)

	if *panel {
		model := watch.New(b.dispatcher(), watch.Options{
			Title:   "AEBRIDGE WORKER",
			Checker: w,
			AutoRun: cfg.Worker.AutoRun,
		})
		if _, err := tea.NewProgram(model).Run(); err != nil {
			logger.Error("panel failed", "error", err)
			return 1
		}
		logger.Info("aebridge worker stopped")
		return 0
	}

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("aebridge worker stopped")
	return 0
}

func runControllerStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if !cfg.API.Enabled {
		fmt.Fprintln(os.Stderr, "api.enabled is false; set it and configure api.auth to serve the controller API")
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("aebridge controller starting", "version", version, "config", cfg.SourcePath)

	hub := events.NewHub(256)
	b := openBridge(cfg, afero.NewOsFs())
	d := b.dispatcher(dispatch.WithEvents(hub))

	tokens := make([]auth.TokenConfig, 0, len(cfg.API.Auth.Tokens))
	for _, t := range cfg.API.Auth.Tokens {
		tokens = append(tokens, auth.TokenConfig{
			Token:  t.Token,
			Scopes: t.Scopes,
		})
	}
	apiServer := api.New(api.Config{
		Listen:     cfg.API.Listen,
		APIKey:     cfg.API.Auth.APIKey,
		Tokens:     tokens,
		ChannelDir: cfg.Channel.Dir,
	}, d, hub, log.WithComponent("api"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// The worker is another process; its lifecycle reaches the hub through
	// the status field of the command file.
	go func() { _ = d.Watch(hub, dispatch.DefaultWatchInterval).Run(ctx) }()

	errCh := make(chan error, 1)
	go func() {
		if err := apiServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("api: %w", err)
		}
	}()
	logger.Info("aebridge controller running (press Ctrl+C to stop)", "listen", cfg.API.Listen)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("aebridge controller stopped")
	return 0
}
