package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/kurisu/squadagent/internal/agent"
	"github.com/kurisu/squadagent/internal/steplog"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	stepStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	answerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	codeStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
)

// eventPrinter renders a turn's events for a terminal. Steps are printed
// only when verbose is set; the answer is always printed by the caller.
type eventPrinter struct {
	w       io.Writer
	verbose bool
}

func (p eventPrinter) emit(ev agent.Event) bool {
	if !p.verbose || ev.Type != agent.EventStep || ev.Step == nil {
		return true
	}
	fmt.Fprintln(p.w, renderStep(*ev.Step))
	return true
}

// renderStep formats one step: its code, then each observation entry.
func renderStep(s steplog.Step) string {
	var b strings.Builder
	b.WriteString(stepStyle.Render(fmt.Sprintf("step %d", s.Iteration)))
	b.WriteString(mutedStyle.Render(fmt.Sprintf(" (%s)", s.Duration.Round(time.Millisecond))))
	b.WriteByte('\n')
	if s.ToolCall != nil && s.ToolCall.Arguments != "" {
		b.WriteString(codeStyle.Render(strings.TrimSpace(s.ToolCall.Arguments)))
		b.WriteByte('\n')
	}
	for _, e := range s.Observation {
		text := strings.TrimSpace(e.Text)
		if text == "" {
			continue
		}
		line := fmt.Sprintf("%s: %s", e.Kind, text)
		if e.Kind == steplog.EntryError {
			b.WriteString(errorStyle.Render(line))
		} else {
			b.WriteString(mutedStyle.Render(line))
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// answerText is what a user sees for a finished turn.
func answerText(res agent.Result) string {
	switch {
	case res.Answer != nil:
		return res.Answer.Text()
	case res.Incomplete && res.PartialAnswer != "":
		return res.PartialAnswer
	case res.Err != nil:
		return fmt.Sprintf("run %s: %v", res.StopReason, res.Err)
	default:
		return fmt.Sprintf("run ended without an answer (%s)", res.StopReason)
	}
}

// renderAnswer styles answerText by outcome.
func renderAnswer(res agent.Result) string {
	text := answerText(res)
	if res.Answer != nil {
		return answerStyle.Render(text)
	}
	return errorStyle.Render(text)
}
