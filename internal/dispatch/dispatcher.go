package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mattjoyce/aebridge/internal/channel"
	"github.com/mattjoyce/aebridge/internal/events"
	"github.com/mattjoyce/aebridge/internal/log"
)

// NoResultsPayload is returned by GetResult when nothing has been written yet.
var NoResultsPayload = json.RawMessage(`{"status":"no_results","error":"No results file found. Please run a command in the host first."}`)

// CommandWriter is the controller's view of the command channel.
type CommandWriter interface {
	Publish(command string, args map[string]any) (channel.CommandRecord, error)
	Read() (channel.CommandRecord, bool)
}

// ResultReader is the controller's view of the result channel.
type ResultReader interface {
	Read() ([]byte, error)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithEvents publishes command.published events to p.
func WithEvents(p events.Publisher) Option {
	return func(d *Dispatcher) { d.events = p }
}

// Dispatcher publishes commands and reads results.
type Dispatcher struct {
	commands CommandWriter
	results  ResultReader
	events   events.Publisher
	logger   *slog.Logger

	// submitted is the fingerprint of the last record this process published.
	mu        sync.Mutex
	submitted string
}

// New creates a Dispatcher over the two channels.
func New(commands CommandWriter, results ResultReader, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		commands: commands,
		results:  results,
		logger:   log.WithComponent("dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Publish writes a pending command, replacing whatever is in the channel.
// The name is not checked here; the worker answers unknown names with a
// dispatch error.
func (d *Dispatcher) Publish(name string, args map[string]any) error {
	_, err := d.Submit(name, args)
	return err
}

// Submit is Publish returning the record that was written.
func (d *Dispatcher) Submit(name string, args map[string]any) (channel.CommandRecord, error) {
	// Held until the event is out so a Watcher never reports this record
	// ahead of its own publish.
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, err := d.commands.Publish(name, args)
	if err != nil {
		return channel.CommandRecord{}, fmt.Errorf("publish %s: %w", name, err)
	}
	d.submitted = rec.Fingerprint()
	d.logger.Info("command published", "command", name, "timestamp", rec.Timestamp)
	if d.events != nil {
		d.events.Publish(events.CommandPublished, map[string]any{"command": name, "timestamp": rec.Timestamp})
	}
	return rec, nil
}

// GetResult returns the current result payload verbatim, or NoResultsPayload
// when the worker has never written one.
func (d *Dispatcher) GetResult() (json.RawMessage, error) {
	data, err := d.results.Read()
	if errors.Is(err, channel.ErrNoResult) {
		return NoResultsPayload, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	return json.RawMessage(data), nil
}

// publishedHere reports whether rec is the last record Submit wrote.
func (d *Dispatcher) publishedHere(rec channel.CommandRecord) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submitted != "" && d.submitted == rec.Fingerprint()
}

// Current returns the record in the command channel, if any.
func (d *Dispatcher) Current() (channel.CommandRecord, bool) {
	return d.commands.Read()
}

// Stamp is the freshness tag of a result.
type Stamp struct {
	Command string
	At      time.Time
}

// Matches reports whether the result was produced for command at or after
// since.
func (s Stamp) Matches(command string, since time.Time) bool {
	return s.Command == command && !s.At.Before(since)
}

// Freshness reads the worker's stamp from result. It reports false for
// payloads that are not stamped objects.
func Freshness(result []byte) (Stamp, bool) {
	var fields struct {
		Command   *string `json:"_commandExecuted"`
		Timestamp *string `json:"_responseTimestamp"`
	}
	if err := json.Unmarshal(result, &fields); err != nil {
		return Stamp{}, false
	}
	if fields.Command == nil || fields.Timestamp == nil {
		return Stamp{}, false
	}
	at, err := channel.ParseTimestamp(*fields.Timestamp)
	if err != nil {
		return Stamp{}, false
	}
	return Stamp{Command: *fields.Command, At: at}, true
}
