// Package doctor validates aebridge configuration and the channel directory.
package doctor

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/mattjoyce/aebridge/internal/auth"
	"github.com/mattjoyce/aebridge/internal/channel"
	"github.com/mattjoyce/aebridge/internal/config"
	"github.com/mattjoyce/aebridge/internal/lock"
	"github.com/mattjoyce/aebridge/internal/storage"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool               `json:"valid"`
	Config   string             `json:"config,omitempty"`
	Channel  *storage.DirReport `json:"channel,omitempty"`
	Worker   *WorkerStatus      `json:"worker,omitempty"`
	Errors   []Issue            `json:"errors,omitempty"`
	Warnings []Issue            `json:"warnings,omitempty"`
}

// WorkerStatus reports whether a worker holds the PID lock.
type WorkerStatus struct {
	LockPath string `json:"lock_path"`
	Running  bool   `json:"running"`
	PID      int    `json:"pid,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

const (
	minPollInterval = 100 * time.Millisecond
	maxPollInterval = time.Minute
)

var knownScopes = map[string]bool{
	auth.ScopeAll:        true,
	auth.ScopeCommandsRO: true,
	auth.ScopeCommandsRW: true,
	auth.ScopeResultsRO:  true,
	auth.ScopeEventsRO:   true,
}

// Doctor validates a loaded configuration against the machine it runs on.
type Doctor struct {
	cfg *config.Config
	fs  afero.Fs
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, fs: afero.NewOsFs()}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true, Config: d.cfg.SourcePath}

	d.validateServiceConfig(r)
	d.validateChannel(r)
	d.validateExistingRecord(r)
	d.validateWorker(r)
	d.validateAPIConfig(r)
	d.validateTokenScopes(r)
	d.warnLegacyAuth(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateServiceConfig checks the poll cadence.
func (d *Doctor) validateServiceConfig(r *Result) {
	interval := d.cfg.Worker.PollInterval
	switch {
	case interval <= 0:
		d.addError(r, "worker", "worker.poll_interval", "poll_interval must be positive")
	case interval < minPollInterval:
		d.addWarning(r, "worker", "worker.poll_interval",
			fmt.Sprintf("poll_interval %s is very short; the host rereads the command file on every tick", interval))
	case interval > maxPollInterval:
		d.addWarning(r, "worker", "worker.poll_interval",
			fmt.Sprintf("poll_interval %s is long; commands will wait up to that long to start", interval))
	}
	if !d.cfg.Worker.AutoRun {
		d.addWarning(r, "worker", "worker.auto_run", "auto_run is off; commands only run on a manual check")
	}
}

// validateChannel checks the channel directory exists, is local and writable.
func (d *Doctor) validateChannel(r *Result) {
	dir := d.cfg.Channel.Dir
	report, err := storage.InspectChannelDir(dir)
	if err != nil {
		d.addError(r, "channel", "channel.dir", err.Error())
		return
	}
	r.Channel = &report

	if !report.Exists {
		d.addError(r, "channel", "channel.dir",
			fmt.Sprintf("channel directory %q does not exist (nearest parent %q)", dir, report.Inspected))
		return
	}
	if msg := report.Warning(); msg != "" {
		d.addWarning(r, "channel", "channel.dir", msg)
	}
	if err := storage.CheckWritable(dir); err != nil {
		d.addError(r, "channel", "channel.dir", err.Error())
	}
	if ext := filepath.Ext(d.cfg.Channel.CommandFile); ext != ".json" {
		d.addWarning(r, "channel", "channel.command_file",
			fmt.Sprintf("command file %q has no .json extension", d.cfg.Channel.CommandFile))
	}
}

// validateExistingRecord reports a command file the worker would ignore.
func (d *Doctor) validateExistingRecord(r *Result) {
	if r.Channel == nil || !r.Channel.Exists {
		return
	}
	commands := channel.NewCommandChannel(d.fs, d.cfg.Paths().CommandPath())
	rec, err := commands.Load()

	var parseErr *channel.ParseError
	switch {
	case err == nil:
		if !rec.Status.Valid() {
			d.addWarning(r, "channel", "channel.command_file",
				fmt.Sprintf("command file has unknown status %q", rec.Status))
		}
	case errors.Is(err, channel.ErrNoRecord):
	case errors.As(err, &parseErr):
		d.addWarning(r, "channel", "channel.command_file",
			fmt.Sprintf("command file is not a valid record and will be ignored: %v", err))
	default:
		d.addError(r, "channel", "channel.command_file", err.Error())
	}
}

// validateWorker reports a running worker.
func (d *Doctor) validateWorker(r *Result) {
	path := d.cfg.LockPath()
	pid, held, err := lock.Peek(path)
	if err != nil {
		d.addWarning(r, "worker", "worker.lock_path", err.Error())
		return
	}
	r.Worker = &WorkerStatus{LockPath: path, Running: held, PID: pid}
}

// validateAPIConfig checks API server settings.
func (d *Doctor) validateAPIConfig(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	if d.cfg.API.Listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required when API is enabled")
	}
	if d.cfg.API.Auth.APIKey == "" && len(d.cfg.API.Auth.Tokens) == 0 {
		d.addError(r, "api", "api.auth", "API enabled but no authentication configured")
	}
	for i, token := range d.cfg.API.Auth.Tokens {
		if token.Token == "" {
			d.addWarning(r, "env_vars", fmt.Sprintf("api.auth.tokens[%d].token", i),
				"token value is empty (possibly unresolved environment variable)")
		}
	}
}

// validateTokenScopes checks every scope is one the API understands.
func (d *Doctor) validateTokenScopes(r *Result) {
	for i, token := range d.cfg.API.Auth.Tokens {
		for j, scope := range token.Scopes {
			scope = strings.TrimSpace(scope)
			if knownScopes[scope] {
				continue
			}
			d.addError(r, "token_scopes", fmt.Sprintf("api.auth.tokens[%d].scopes[%d]", i, j),
				fmt.Sprintf("unknown scope %q (expected one of *, commands:ro, commands:rw, results:ro, events:ro)", scope))
		}
	}
}

// warnLegacyAuth warns about the full-access api_key.
func (d *Doctor) warnLegacyAuth(r *Result) {
	if d.cfg.API.Auth.APIKey == "" {
		return
	}
	if len(d.cfg.API.Auth.Tokens) > 0 {
		d.addWarning(r, "deprecated", "api.auth",
			"both api_key and tokens configured; prefer tokens array only")
		return
	}
	d.addWarning(r, "deprecated", "api.auth.api_key",
		"legacy api_key grants full access; migrate to tokens array with scopes")
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	switch {
	case r.Valid && len(r.Warnings) == 0:
		b.WriteString("Configuration valid.\n")
	case r.Valid:
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	default:
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	if r.Channel != nil {
		fmt.Fprintf(&b, "  channel: %s (%s)\n", r.Channel.Path, r.Channel.FSType)
	}
	if r.Worker != nil {
		if r.Worker.Running {
			fmt.Fprintf(&b, "  worker:  running (pid %d)\n", r.Worker.PID)
		} else {
			b.WriteString("  worker:  not running\n")
		}
	}

	for _, e := range r.Errors {
		writeIssue(&b, "ERROR", e)
	}
	for _, w := range r.Warnings {
		writeIssue(&b, "WARN ", w)
	}
	return b.String()
}

func writeIssue(b *strings.Builder, level string, i Issue) {
	if i.Field != "" {
		fmt.Fprintf(b, "  %s [%s] %s: %s\n", level, i.Category, i.Field, i.Message)
		return
	}
	fmt.Fprintf(b, "  %s [%s] %s\n", level, i.Category, i.Message)
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
