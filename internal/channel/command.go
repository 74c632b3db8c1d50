package channel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/spf13/afero"

	"github.com/mattjoyce/aebridge/internal/log"
)

// Option configures a channel.
type Option func(*options)

type options struct {
	logger *slog.Logger
	now    func() time.Time
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger: log.WithComponent("channel"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// CommandChannel is the single-slot command mailbox.
type CommandChannel struct {
	fs     afero.Fs
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// NewCommandChannel returns a CommandChannel backed by path on fsys.
func NewCommandChannel(fsys afero.Fs, path string, opts ...Option) *CommandChannel {
	o := buildOptions(opts)
	return &CommandChannel{
		fs:     fsys,
		path:   path,
		logger: o.logger.With("channel", "command", "path", path),
		now:    o.now,
	}
}

// Path returns the backing file path.
func (c *CommandChannel) Path() string { return c.path }

// Publish writes a fresh pending record, replacing whatever was there,
// including a record another process is still running.
func (c *CommandChannel) Publish(command string, args map[string]any) (CommandRecord, error) {
	if args == nil {
		args = map[string]any{}
	}
	rawArgs, err := marshalJSON(args, false)
	if err != nil {
		return CommandRecord{}, fmt.Errorf("marshal args: %w", err)
	}
	rec := CommandRecord{
		Command:   command,
		Args:      rawArgs,
		Timestamp: FormatTimestamp(c.now()),
		Status:    StatusPending,
	}
	data, err := marshalJSON(rec, true)
	if err != nil {
		return CommandRecord{}, fmt.Errorf("marshal command record: %w", err)
	}
	if err := writeFile(c.fs, c.path, data, true); err != nil {
		return CommandRecord{}, err
	}
	c.logger.Debug("command published", "command", command, "timestamp", rec.Timestamp)
	return rec, nil
}

// Read returns the current record. Missing, empty, unreadable and malformed
// files all read as absent; the latter two are logged.
func (c *CommandChannel) Read() (CommandRecord, bool) {
	rec, err := c.Load()
	if err == nil {
		return rec, true
	}
	var perr *ParseError
	switch {
	case errors.Is(err, ErrNoRecord):
	case errors.As(err, &perr):
		c.logger.Warn("error parsing command file", "error", err)
	default:
		c.logger.Error("error reading command file", "error", err)
	}
	return CommandRecord{}, false
}

// Load is Read with the failure reason: ErrNoRecord, *ParseError or *IOError.
func (c *CommandChannel) Load() (CommandRecord, error) {
	rec, _, err := c.load()
	return rec, err
}

func (c *CommandChannel) load() (CommandRecord, []Member, error) {
	data, err := readFile(c.fs, c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return CommandRecord{}, nil, ErrNoRecord
	}
	if err != nil {
		return CommandRecord{}, nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return CommandRecord{}, nil, ErrNoRecord
	}

	members, err := DecodeObject(data)
	if err != nil {
		return CommandRecord{}, nil, &ParseError{Path: c.path, Err: err}
	}
	var rec CommandRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return CommandRecord{}, nil, &ParseError{Path: c.path, Err: err}
	}
	return rec, members, nil
}

// UpdateStatus rewrites the status field in place, leaving every other field
// as it was. A file that vanished is a logged no-op.
func (c *CommandChannel) UpdateStatus(status Status) error {
	return c.advance("", status, false)
}

// Advance is UpdateStatus guarded by the lifecycle fingerprint and the state
// machine. It refuses with ErrStaleRecord when a newer publish replaced the
// record, and with *TransitionError when the on-disk status cannot move to
// status.
func (c *CommandChannel) Advance(fingerprint string, status Status) error {
	return c.advance(fingerprint, status, true)
}

func (c *CommandChannel) advance(fingerprint string, status Status, guarded bool) error {
	if !status.Valid() {
		return fmt.Errorf("unknown status %q", status)
	}

	rec, members, err := c.load()
	if errors.Is(err, ErrNoRecord) {
		c.logger.Warn("command file vanished before status update", "status", status)
		return nil
	}
	if err != nil {
		return err
	}

	if guarded {
		if fingerprint != "" && rec.Fingerprint() != fingerprint {
			return fmt.Errorf("advance to %s: %w", status, ErrStaleRecord)
		}
		if !CanTransition(rec.Status, status) {
			return &TransitionError{From: rec.Status, To: status}
		}
	}

	rawStatus, err := marshalJSON(status, false)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	// Only the status bytes change; args stay exactly as the publisher wrote them.
	data, err := EncodeObject(SetMember(members, "status", rawStatus))
	if err != nil {
		return fmt.Errorf("marshal command record: %w", err)
	}

	err = writeFile(c.fs, c.path, data, false)
	var ioErr *IOError
	if errors.As(err, &ioErr) && ioErr.Op == "open" && errors.Is(err, fs.ErrNotExist) {
		c.logger.Warn("command file vanished before status update", "status", status)
		return nil
	}
	if err != nil {
		return err
	}
	c.logger.Debug("command status updated", "command", rec.Command, "from", rec.Status, "to", status)
	return nil
}
