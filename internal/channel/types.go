// Package channel implements the two file-backed single-slot mailboxes shared
// by the controller and the host-side worker.
//
// The CommandChannel holds at most one CommandRecord; publishing overwrites it
// unconditionally. The ResultChannel holds the most recent result payload.
// Neither file is locked, renamed atomically or versioned: both sides read and
// write them on their own schedule and the last writer wins.
package channel

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
)

const (
	DefaultCommandFile = "ae_command.json"
	DefaultResultFile  = "ae_mcp_result.json"

	// TimestampLayout is UTC with millisecond precision, the same shape a
	// JavaScript Date.toISOString produces.
	TimestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// CommandRecord is the single command slot. Args are kept raw so a status
// update never re-encodes the caller's values.
type CommandRecord struct {
	Command   string          `json:"command"`
	Args      json.RawMessage `json:"args"`
	Timestamp string          `json:"timestamp"`
	Status    Status          `json:"status"`
}

// ArgsMap decodes Args as a JSON object. A missing or null value yields an
// empty map.
func (r CommandRecord) ArgsMap() (map[string]any, error) {
	trimmed := bytes.TrimSpace(r.Args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return nil, fmt.Errorf("args must be a JSON object: %w", err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// Time parses the record timestamp.
func (r CommandRecord) Time() (time.Time, error) {
	return ParseTimestamp(r.Timestamp)
}

// Fingerprint identifies one publish. Two records with the same command, args
// and timestamp are the same lifecycle regardless of their status, of how the
// file was indented or key-ordered, or of how the writer escaped strings.
func (r CommandRecord) Fingerprint() string {
	h := blake3.New()
	_, _ = h.Write([]byte(r.Command))
	_, _ = h.Write([]byte{0})
	if canon, err := canonicalJSON(r.Args); err == nil {
		_, _ = h.Write(canon)
	} else {
		_, _ = h.Write(bytes.TrimSpace(r.Args))
	}
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(r.Timestamp))
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp accepts TimestampLayout and any RFC 3339 variant.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(TimestampLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

// Paths locates the two channel files.
type Paths struct {
	Dir         string
	CommandFile string
	ResultFile  string
}

// DefaultPaths places both files in the OS temp directory.
func DefaultPaths() Paths {
	return Paths{
		Dir:         os.TempDir(),
		CommandFile: DefaultCommandFile,
		ResultFile:  DefaultResultFile,
	}
}

func (p Paths) withDefaults() Paths {
	if p.Dir == "" {
		p.Dir = os.TempDir()
	}
	if p.CommandFile == "" {
		p.CommandFile = DefaultCommandFile
	}
	if p.ResultFile == "" {
		p.ResultFile = DefaultResultFile
	}
	return p
}

func (p Paths) CommandPath() string {
	p = p.withDefaults()
	return filepath.Join(p.Dir, p.CommandFile)
}

func (p Paths) ResultPath() string {
	p = p.withDefaults()
	return filepath.Join(p.Dir, p.ResultFile)
}
