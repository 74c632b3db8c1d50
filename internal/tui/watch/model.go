package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/aebridge/internal/channel"
	"github.com/mattjoyce/aebridge/internal/dispatch"
	"github.com/mattjoyce/aebridge/internal/worker"
)

// DefaultPollInterval is how often the channels are reread.
const DefaultPollInterval = 500 * time.Millisecond

// headerHeight is the status panel including its border.
const headerHeight = 7

// Options configures the watch model.
type Options struct {
	// Title is shown in the status panel.
	Title string
	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration
	// Checker enables the manual check key. Nil makes the panel read-only.
	Checker Checker
	// AutoRun is reported in the ready line when Checker is set.
	AutoRun bool
	// Now defaults to time.Now.
	Now func() time.Time
}

// Model is the BubbleTea model for the watch TUI.
type Model struct {
	source  Source
	checker Checker
	opts    Options

	width  int
	height int

	status  string
	record  *channel.CommandRecord
	stamp   *dispatch.Stamp
	outcome resultSummary
	entries []LogEntry

	viewport viewport.Model
	ticker   Ticker
	spinner  Spinner
	theme    Theme

	lastError string
}

// New creates a watch model over src.
func New(src Source, opts Options) Model {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Title == "" {
		opts.Title = "AEBRIDGE WATCH"
	}

	m := Model{
		source:   src,
		checker:  opts.Checker,
		opts:     opts,
		status:   "Waiting for commands...",
		viewport: viewport.New(80, 10),
		ticker:   NewTicker(),
		spinner:  NewSpinner(),
		theme:    NewDefaultTheme(),
	}
	if m.checker != nil {
		m.log(LevelInfo, "Bridge panel started")
		m.status = "Ready - Auto-run is " + onOff(opts.AutoRun)
	}
	return m
}

// Status is the current status line.
func (m Model) Status() string { return m.status }

// Entries returns the command log, newest first.
func (m Model) Entries() []LogEntry { return m.entries }

func (m Model) Init() tea.Cmd {
	src, now := m.source, m.opts.Now
	return tea.Batch(
		func() tea.Msg { return readSnapshot(src, now) },
		uiTick(),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "c":
			if m.checker == nil {
				return m, nil
			}
			m.log(LevelInfo, "Manually checking for commands")
			return m, runCheck(m.checker)
		case "x":
			m.entries = nil
			m.refreshLog()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = max(msg.Width-8, 10)
		m.viewport.Height = max(msg.Height-headerHeight-8, 3)
		m.refreshLog()

	case tickMsg:
		m.ticker.Tick()
		m.spinner.Decay(time.Time(msg))
		return m, uiTick()

	case snapshotMsg:
		m.observe(msg)
		return m, pollAfter(m.source, m.opts.PollInterval, m.opts.Now)

	case checkMsg:
		switch msg.result {
		case worker.TickDisabled:
			m.log(LevelInfo, "Auto-run is OFF; check skipped")
		case worker.TickSkipped:
			m.log(LevelInfo, "A command is already running; check skipped")
		case worker.TickIdle:
			m.log(LevelInfo, "No pending command")
		}
		// Completed and failed checks show up through the next snapshot.
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// observe turns the difference between two snapshots into log lines.
func (m *Model) observe(s snapshotMsg) {
	if s.err != nil {
		m.lastError = s.err.Error()
	} else {
		m.lastError = ""
	}

	changed := false
	switch {
	case !s.ok && m.record != nil:
		m.log(LevelInfo, "Command file cleared")
		m.record = nil
		changed = true
	case s.ok && (m.record == nil || m.record.Timestamp != s.record.Timestamp || m.record.Command != s.record.Command):
		rec := s.record
		m.record = &rec
		m.log(LevelInfo, "Command published: "+rec.Command)
		m.onStatus(rec)
		changed = true
	case s.ok && m.record.Status != s.record.Status:
		rec := s.record
		m.record = &rec
		m.onStatus(rec)
		changed = true
	}

	if stamp, ok := dispatch.Freshness(s.result); ok {
		if m.stamp == nil || m.stamp.Command != stamp.Command || !m.stamp.At.Equal(stamp.At) {
			m.stamp = &stamp
			m.outcome = summarizeResult(s.result)
			m.onResult(stamp)
			changed = true
		}
	}

	if changed {
		m.spinner.OnChange(s.at)
	}
}

func (m *Model) onStatus(rec channel.CommandRecord) {
	switch rec.Status {
	case channel.StatusRunning:
		m.log(LevelInfo, "Executing command: "+rec.Command)
		m.status = "Running: " + rec.Command
	case channel.StatusCompleted:
		m.log(LevelOK, "Command completed: "+rec.Command)
		m.status = "Command completed: " + rec.Command
	case channel.StatusError:
		m.log(LevelError, "Command failed: "+rec.Command)
		m.status = "Error: " + rec.Command
	case channel.StatusPending:
		m.status = "Pending: " + rec.Command
	}
}

func (m *Model) onResult(stamp dispatch.Stamp) {
	level := LevelOK
	text := fmt.Sprintf("Result for %s: %s", stamp.Command, m.outcome.Status)
	if m.outcome.Status == "error" {
		level = LevelError
		if m.outcome.Message != "" {
			text += " (" + m.outcome.Message + ")"
			m.status = "Error: " + m.outcome.Message
		}
	}
	m.log(level, text)
}

func (m *Model) log(level Level, text string) {
	m.entries = prepend(m.entries, LogEntry{At: m.opts.Now(), Level: level, Text: text})
	m.refreshLog()
}

func (m *Model) refreshLog() {
	m.viewport.SetContent(renderLog(m.entries, m.theme))
	m.viewport.GotoTop()
}

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing watch..."
	}

	header := renderHeader(headerState{
		title:   m.opts.Title,
		status:  m.status,
		record:  m.record,
		stamp:   m.stamp,
		outcome: m.outcome,
		now:     m.opts.Now(),
	}, m.ticker, m.spinner, m.theme, m.width)
	logPanel := renderLogPanel(m.viewport, m.theme, m.width)

	parts := []string{header, logPanel}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError)))
	}

	helpText := " [q] Quit • [x] Clear log • [↑/↓] Scroll"
	if m.checker != nil {
		helpText = " [q] Quit • [c] Check for commands now • [x] Clear log • [↑/↓] Scroll"
	}
	parts = append(parts, m.theme.Dim.Render(helpText))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}
