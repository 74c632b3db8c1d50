package watch

import (
	"context"
	"encoding/json"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/aebridge/internal/channel"
	"github.com/mattjoyce/aebridge/internal/worker"
)

// Source reads the two channels. *dispatch.Dispatcher satisfies it.
type Source interface {
	Current() (channel.CommandRecord, bool)
	GetResult() (json.RawMessage, error)
}

// Checker runs one manual check. *worker.Worker satisfies it.
type Checker interface {
	Tick(ctx context.Context) worker.TickResult
}

// --- Message types ---

type snapshotMsg struct {
	record channel.CommandRecord
	ok     bool
	result json.RawMessage
	err    error
	at     time.Time
}

type checkMsg struct {
	result worker.TickResult
}

type tickMsg time.Time

// --- Commands ---

func readSnapshot(src Source, now func() time.Time) tea.Msg {
	rec, ok := src.Current()
	result, err := src.GetResult()
	return snapshotMsg{record: rec, ok: ok, result: result, err: err, at: now()}
}

// pollAfter reads the channels once d has elapsed.
func pollAfter(src Source, d time.Duration, now func() time.Time) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return readSnapshot(src, now) })
}

func runCheck(c Checker) tea.Cmd {
	return func() tea.Msg {
		return checkMsg{result: c.Tick(context.Background())}
	}
}

func uiTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}
