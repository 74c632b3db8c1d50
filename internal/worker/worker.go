// Package worker is the host-side poll loop. On each tick it picks up a
// pending command, runs it through the registry and publishes the outcome to
// the result channel, moving the command through running to completed or
// error.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/aebridge/internal/channel"
	"github.com/mattjoyce/aebridge/internal/events"
	"github.com/mattjoyce/aebridge/internal/log"
	"github.com/mattjoyce/aebridge/internal/registry"
)

// DefaultPollInterval is the tick period when none is configured.
const DefaultPollInterval = 2 * time.Second

// Config is fixed for the lifetime of a Worker.
type Config struct {
	AutoRun      bool
	PollInterval time.Duration
}

// DefaultConfig returns auto-run on with the default interval.
func DefaultConfig() Config {
	return Config{AutoRun: true, PollInterval: DefaultPollInterval}
}

// TickResult says what a single tick did.
type TickResult string

const (
	TickIdle      TickResult = "idle"
	TickDisabled  TickResult = "disabled"
	TickSkipped   TickResult = "skipped"
	TickCompleted TickResult = "completed"
	TickFailed    TickResult = "failed"
)

// Option configures a Worker.
type Option func(*Worker)

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithEvents publishes lifecycle events to p.
func WithEvents(p events.Publisher) Option {
	return func(w *Worker) { w.events = p }
}

// WithClock overrides time.Now for response timestamps.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// WithID sets the worker instance id instead of a random one.
func WithID(id string) Option {
	return func(w *Worker) {
		if id != "" {
			w.id = id
		}
	}
}

// Worker polls the command channel. Only one command runs at a time.
type Worker struct {
	cfg      Config
	commands CommandStore
	results  ResultStore
	registry *registry.Registry
	events   events.Publisher
	logger   *slog.Logger
	now      func() time.Time
	id       string

	busy atomic.Bool
}

// New returns a Worker. A zero PollInterval uses DefaultPollInterval.
func New(cfg Config, commands CommandStore, results ResultStore, reg *registry.Registry, opts ...Option) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	w := &Worker{
		cfg:      cfg,
		commands: commands,
		results:  results,
		registry: reg,
		now:      time.Now,
		id:       uuid.NewString(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = log.WithWorker(w.id).With("component", "worker")
	}
	return w
}

// ID returns the worker instance id.
func (w *Worker) ID() string { return w.id }

// Config returns the worker configuration.
func (w *Worker) Config() Config { return w.cfg }

// Busy reports whether a command is being processed.
func (w *Worker) Busy() bool { return w.busy.Load() }

// Start ticks every PollInterval until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("worker started", "poll_interval", w.cfg.PollInterval, "auto_run", w.cfg.AutoRun)
	w.publish(events.WorkerStarted, map[string]any{"worker_id": w.id, "auto_run": w.cfg.AutoRun})
	defer func() {
		w.logger.Info("worker stopped")
		w.publish(events.WorkerStopped, map[string]any{"worker_id": w.id})
	}()

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick checks the command channel once. It is also the manual "check now"
// entry point; a tick that arrives while another is running is skipped,
// not queued.
func (w *Worker) Tick(ctx context.Context) TickResult {
	if !w.cfg.AutoRun {
		return TickDisabled
	}
	if !w.busy.CompareAndSwap(false, true) {
		w.logger.Debug("tick skipped, command in progress")
		w.publish(events.TickSkipped, map[string]any{"worker_id": w.id})
		return TickSkipped
	}
	defer w.busy.Store(false)

	rec, ok := w.commands.Read()
	if !ok || rec.Status != channel.StatusPending {
		return TickIdle
	}

	fp := rec.Fingerprint()
	logger := w.logger.With("command", rec.Command, "timestamp", rec.Timestamp)
	if err := w.commands.Advance(fp, channel.StatusRunning); err != nil {
		logger.Warn("could not claim command", "error", err)
		return TickIdle
	}
	w.publish(events.CommandRunning, lifecycle(rec, ""))
	logger.Info("executing command")

	out := w.run(ctx, rec)

	if out.OK() {
		payload := Enrich(out.Payload(), rec.Command, w.now())
		err := w.results.Write(payload)
		if err == nil {
			w.finish(logger, fp, channel.StatusCompleted)
			w.publish(events.CommandCompleted, lifecycle(rec, ""))
			logger.Info("command completed")
			return TickCompleted
		}
		logger.Error("failed to write result", "error", err)
		out = registry.Failed(registry.KindChannelIO, err.Error())
	}

	failure := out.Failure()
	payload := Enrich(ErrorPayload(rec.Command, failure), rec.Command, w.now())
	if err := w.results.Write(payload); err != nil {
		logger.Error("failed to write error result", "error", err)
	}
	w.finish(logger, fp, channel.StatusError)
	w.publish(events.CommandFailed, lifecycle(rec, failure.Message))
	logger.Warn("command failed", "kind", failure.Kind, "message", failure.Message)
	return TickFailed
}

func (w *Worker) run(ctx context.Context, rec channel.CommandRecord) registry.Outcome {
	args, err := rec.ArgsMap()
	if err != nil {
		return registry.Failed(registry.KindDispatch, "Invalid arguments: "+err.Error())
	}
	return w.registry.Dispatch(ctx, rec.Command, args)
}

// finish moves the claimed record to a terminal status. A record replaced by
// a newer publish is left alone so the new command is picked up next tick.
func (w *Worker) finish(logger *slog.Logger, fp string, status channel.Status) {
	err := w.commands.Advance(fp, status)
	var terr *channel.TransitionError
	switch {
	case err == nil:
	case errors.Is(err, channel.ErrStaleRecord), errors.As(err, &terr):
		logger.Warn("command superseded before it finished", "status", status, "error", err)
	default:
		logger.Error("failed to update command status", "status", status, "error", err)
	}
}

func (w *Worker) publish(eventType string, data any) {
	if w.events != nil {
		w.events.Publish(eventType, data)
	}
}

func lifecycle(rec channel.CommandRecord, message string) map[string]any {
	m := map[string]any{"command": rec.Command, "timestamp": rec.Timestamp}
	if message != "" {
		m["message"] = message
	}
	return m
}
