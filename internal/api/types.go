package api

import (
	"errors"

	"github.com/mattjoyce/aebridge/internal/events"
)

// EventsResponse is returned by GET /events.
type EventsResponse struct {
	Events []events.Event `json:"events"`
	LastID int64          `json:"last_id"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status         string `json:"status"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	ChannelDir     string `json:"channel_dir,omitempty"`
	CurrentCommand string `json:"current_command,omitempty"`
	CommandStatus  string `json:"command_status,omitempty"`
}

var (
	errInvalidBody   = errors.New("failed to read request body")
	errArgsNotObject = errors.New("body must be a JSON object of command args")
	errInvalidSince  = errors.New("since must be a non-negative integer")
)
