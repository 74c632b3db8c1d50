package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/aebridge/internal/channel"
	"github.com/mattjoyce/aebridge/internal/dispatch"
)

// headerState is everything the status panel shows.
type headerState struct {
	title   string
	status  string
	record  *channel.CommandRecord
	stamp   *dispatch.Stamp
	outcome resultSummary
	now     time.Time
}

func renderHeader(h headerState, ticker Ticker, spinner Spinner, theme Theme, width int) string {
	innerWidth := width - 4

	tickerStr := theme.Highlight.Render(ticker.Current())
	clock := theme.Dim.Render(h.now.Format("15:04:05"))
	titleText := fmt.Sprintf(" %s %s", h.title, tickerStr)
	pad := innerWidth - lipgloss.Width(titleText) - lipgloss.Width(clock) - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	statusLine := " " + h.status

	commandLine := theme.Dim.Render(" Command: none")
	if h.record != nil {
		commandLine = fmt.Sprintf(" Command: %s %s  %s",
			h.record.Command,
			theme.ForStatus(string(h.record.Status)).Render("["+string(h.record.Status)+"]"),
			theme.Dim.Render(h.record.Timestamp),
		)
	}

	resultLine := theme.Dim.Render(" Result:  none")
	if h.stamp != nil {
		resultLine = fmt.Sprintf(" Result:  %s %s  %s",
			h.stamp.Command,
			theme.ForStatus(h.outcome.Status).Render(h.outcome.Status),
			theme.Dim.Render(h.stamp.At.Format(channel.TimestampLayout)),
		)
	}

	activityLine := fmt.Sprintf(" Activity: %s", spinner.Render(theme))
	if last := spinner.LastChange(); !last.IsZero() {
		activityLine += theme.Dim.Render(fmt.Sprintf("  last change %s ago", h.now.Sub(last).Truncate(time.Second)))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleLine,
		statusLine,
		commandLine,
		resultLine,
		activityLine,
	)
	return theme.Border.Width(innerWidth).Render(content)
}
