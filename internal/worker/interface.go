package worker

import (
	"github.com/mattjoyce/aebridge/internal/channel"
)

//go:generate mockgen -destination=mocks/mock_channel.go -package=mocks github.com/mattjoyce/aebridge/internal/worker CommandStore,ResultStore

// CommandStore is the worker's view of the command channel.
type CommandStore interface {
	Read() (channel.CommandRecord, bool)
	Advance(fingerprint string, status channel.Status) error
}

// ResultStore is the worker's view of the result channel.
type ResultStore interface {
	Write(payload []byte) error
}
