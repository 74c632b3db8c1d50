package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mattjoyce/aebridge/internal/channel"
	"github.com/mattjoyce/aebridge/internal/events"
)

// DefaultWatchInterval is how often a Watcher rereads the channel files.
const DefaultWatchInterval = 250 * time.Millisecond

// Watcher turns what it sees in the channel files into lifecycle events on
// the controller side. The worker runs in another process, so the status
// field is the only signal that a command started or finished.
type Watcher struct {
	d        *Dispatcher
	events   events.Publisher
	interval time.Duration
	logger   *slog.Logger

	primed bool
	seen   string // fingerprint of the last record observed
	status channel.Status
}

// Watch returns a Watcher that publishes to p every interval.
func (d *Dispatcher) Watch(p events.Publisher, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	return &Watcher{
		d:        d,
		events:   p,
		interval: interval,
		logger:   d.logger.With("role", "watcher"),
	}
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Poll()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Poll()
		}
	}
}

// Poll reads the command channel once and publishes the transitions since
// the previous Poll. The first Poll only records a baseline. Steps a slow
// poll missed (a command that went pending to completed between reads) are
// published in order so every lifecycle reads running then terminal. A
// record overwritten before its terminal status was seen gets no terminal
// event.
func (w *Watcher) Poll() {
	rec, ok := w.d.Current()
	if !ok {
		// Absent, or caught mid-rewrite; wait for a readable record.
		w.primed = true
		return
	}

	fp := rec.Fingerprint()
	if !w.primed {
		w.primed = true
		w.seen, w.status = fp, rec.Status
		return
	}

	from := w.status
	if fp != w.seen {
		if !w.d.publishedHere(rec) {
			w.publish(events.CommandPublished, rec, map[string]any{"source": "external"})
		}
		from = channel.StatusPending
	}
	w.seen, w.status = fp, rec.Status

	if from == rec.Status {
		return
	}
	if from == channel.StatusPending && rec.Status != channel.StatusPending {
		w.publish(events.CommandRunning, rec, nil)
	}
	switch rec.Status {
	case channel.StatusCompleted:
		w.publish(events.CommandCompleted, rec, nil)
	case channel.StatusError:
		w.publish(events.CommandFailed, rec, w.failureDetail(rec))
	}
}

// failureDetail pulls error and message from the result when it belongs to
// rec.
func (w *Watcher) failureDetail(rec channel.CommandRecord) map[string]any {
	payload, err := w.d.GetResult()
	if err != nil {
		w.logger.Debug("could not read result for failed command", "error", err)
		return nil
	}
	since, err := rec.Time()
	if err != nil {
		return nil
	}
	if stamp, ok := Freshness(payload); !ok || !stamp.Matches(rec.Command, since) {
		return nil
	}
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil
	}
	detail := map[string]any{}
	if body.Error != "" {
		detail["error"] = body.Error
	}
	if body.Message != "" {
		detail["message"] = body.Message
	}
	return detail
}

func (w *Watcher) publish(eventType string, rec channel.CommandRecord, extra map[string]any) {
	data := map[string]any{"command": rec.Command, "timestamp": rec.Timestamp}
	for k, v := range extra {
		data[k] = v
	}
	w.events.Publish(eventType, data)
	w.logger.Debug("lifecycle observed", "event", eventType, "command", rec.Command, "timestamp", rec.Timestamp)
}
