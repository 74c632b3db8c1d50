package watch

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
)

const maxLogEntries = 200

// Level tags a log entry for colouring.
type Level int

const (
	LevelInfo Level = iota
	LevelOK
	LevelError
)

// LogEntry is one line of the command log.
type LogEntry struct {
	At    time.Time
	Level Level
	Text  string
}

// prepend adds e at the top of the log, newest first.
func prepend(entries []LogEntry, e LogEntry) []LogEntry {
	entries = append([]LogEntry{e}, entries...)
	if len(entries) > maxLogEntries {
		entries = entries[:maxLogEntries]
	}
	return entries
}

func renderLog(entries []LogEntry, theme Theme) string {
	if len(entries) == 0 {
		return theme.Dim.Render("Waiting for commands...")
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		ts := theme.Dim.Render(e.At.Format("15:04:05"))
		text := e.Text
		switch e.Level {
		case LevelOK:
			text = theme.StatusOK.Render(text)
		case LevelError:
			text = theme.StatusFailed.Render(text)
		}
		lines = append(lines, fmt.Sprintf("%s: %s", ts, text))
	}
	return strings.Join(lines, "\n")
}

func renderLogPanel(vp viewport.Model, theme Theme, width int) string {
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("COMMAND LOG"),
		vp.View(),
	)
	return theme.Border.Width(width - 4).Render(content)
}

// resultSummary is the part of a result payload the log shows.
type resultSummary struct {
	Status  string
	Message string
}

func summarizeResult(payload []byte) resultSummary {
	var fields struct {
		Status  string `json:"status"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return resultSummary{Status: "unparsed"}
	}
	s := resultSummary{Status: fields.Status, Message: fields.Message}
	if s.Status == "" {
		s.Status = "success"
	}
	if s.Status == "error" && fields.Error != "" && s.Message == "" {
		s.Message = fields.Error
	}
	return s
}
