package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FailureKind is the error taxonomy surfaced in error results.
type FailureKind string

const (
	KindDispatch  FailureKind = "dispatch_error"
	KindHandler   FailureKind = "handler_error"
	KindChannelIO FailureKind = "channel_io_error"
)

// Failure describes why an operation produced no payload. Line and File are
// set only when the underlying failure exposes a source position.
type Failure struct {
	Kind    FailureKind
	Message string
	Line    int
	File    string
}

func (f *Failure) Error() string {
	if f.File != "" {
		return fmt.Sprintf("%s: %s (%s:%d)", f.Kind, f.Message, f.File, f.Line)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Outcome is what a handler returns: either a payload or a Failure.
type Outcome struct {
	payload []byte
	failure *Failure
}

// Success wraps a handler payload. Strings and byte slices are kept verbatim;
// anything else is JSON encoded.
func Success(payload any) Outcome {
	switch p := payload.(type) {
	case nil:
		return Outcome{payload: []byte("null")}
	case string:
		return Outcome{payload: []byte(p)}
	case []byte:
		return Outcome{payload: p}
	case json.RawMessage:
		return Outcome{payload: p}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return Failed(KindHandler, fmt.Sprintf("encode result: %v", err))
	}
	return Outcome{payload: bytes.TrimRight(buf.Bytes(), "\n")}
}

// Failed builds a failure Outcome.
func Failed(kind FailureKind, message string) Outcome {
	return Outcome{failure: &Failure{Kind: kind, Message: message}}
}

// FailedAt is Failed with a source position.
func FailedAt(kind FailureKind, message, file string, line int) Outcome {
	return Outcome{failure: &Failure{Kind: kind, Message: message, File: file, Line: line}}
}

// OK reports whether the outcome carries a payload.
func (o Outcome) OK() bool { return o.failure == nil }

// Payload returns the success payload, nil on failure.
func (o Outcome) Payload() []byte { return o.payload }

// Failure returns the failure, nil on success.
func (o Outcome) Failure() *Failure { return o.failure }
