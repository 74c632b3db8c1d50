package worker

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/mattjoyce/aebridge/internal/channel"
	"github.com/mattjoyce/aebridge/internal/registry"
)

// Freshness keys added to every object payload.
const (
	KeyResponseTimestamp = "_responseTimestamp"
	KeyCommandExecuted   = "_commandExecuted"
)

// Enrich appends the freshness keys to a JSON object payload, keeping the
// handler's own key order. Keys of the same name set by the handler are
// replaced. Anything that is not a JSON object is returned unchanged.
func Enrich(payload []byte, command string, at time.Time) []byte {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
		return payload
	}

	ts, _ := json.Marshal(channel.FormatTimestamp(at))
	cmd, _ := json.Marshal(command)

	_, hasTS := fields[KeyResponseTimestamp]
	_, hasCmd := fields[KeyCommandExecuted]
	if hasTS || hasCmd {
		return restamp(payload, ts, cmd)
	}

	body := bytes.TrimSpace(payload)
	body = bytes.TrimSpace(body[:len(body)-1])

	var buf bytes.Buffer
	buf.Write(body)
	if len(fields) > 0 {
		buf.WriteByte(',')
	}
	buf.WriteString("\n  \"" + KeyResponseTimestamp + "\": ")
	buf.Write(ts)
	buf.WriteString(",\n  \"" + KeyCommandExecuted + "\": ")
	buf.Write(cmd)
	buf.WriteString("\n}")
	return buf.Bytes()
}

// restamp rebuilds an object that already carries freshness keys so each key
// appears once, at the end.
func restamp(payload, ts, cmd []byte) []byte {
	members, err := channel.DecodeObject(payload)
	if err != nil {
		return payload
	}
	kept := members[:0]
	for _, m := range members {
		if m.Key != KeyResponseTimestamp && m.Key != KeyCommandExecuted {
			kept = append(kept, m)
		}
	}
	kept = append(kept,
		channel.Member{Key: KeyResponseTimestamp, Value: ts},
		channel.Member{Key: KeyCommandExecuted, Value: cmd},
	)
	out, err := channel.EncodeObject(kept)
	if err != nil {
		return payload
	}
	return out
}

type errorPayload struct {
	Status   string `json:"status"`
	Error    string `json:"error"`
	Command  string `json:"command"`
	Message  string `json:"message"`
	Line     int    `json:"line,omitempty"`
	FileName string `json:"fileName,omitempty"`
}

// ErrorPayload renders f as the structured error result for command.
func ErrorPayload(command string, f *registry.Failure) []byte {
	p := errorPayload{Status: "error", Command: command}
	if f != nil {
		p.Error = string(f.Kind)
		p.Message = f.Message
		p.Line = f.Line
		p.FileName = f.File
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return []byte(`{"status":"error"}`)
	}
	return data
}
