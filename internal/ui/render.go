package ui

import (
	"strings"

	"github.com/RichardoC/padchat/internal/models"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// historyRenderer turns a chat log into the text shown in the history pane.
type historyRenderer struct {
	markdown bool

	width int
	term  *glamour.TermRenderer
}

func newHistoryRenderer(markdown bool) *historyRenderer {
	return &historyRenderer{markdown: markdown}
}

// Render lays entries out in log order, one block per entry, separated by a blank line.
func (r *historyRenderer) Render(log models.ChatLog, width int) string {
	if width < 1 {
		width = 1
	}

	blocks := make([]string, 0, len(log))
	for _, entry := range log {
		blocks = append(blocks, r.renderEntry(entry, width))
	}
	return strings.Join(blocks, "\n\n")
}

func (r *historyRenderer) renderEntry(entry models.ChatLogEntry, width int) string {
	label := roleStyle(entry.Role).Render(string(entry.Role) + ":")

	if r.markdown && entry.Role == models.RoleAssistant {
		if out, ok := r.renderMarkdown(entry.Content, width); ok {
			return label + "\n" + out
		}
	}
	return lipgloss.NewStyle().Width(width).Render(label + " " + entry.Content)
}

// renderMarkdown falls back to plain text (ok == false) when glamour fails.
func (r *historyRenderer) renderMarkdown(content string, width int) (string, bool) {
	if r.term == nil || r.width != width {
		term, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return "", false
		}
		r.term, r.width = term, width
	}

	out, err := r.term.Render(content)
	if err != nil {
		return "", false
	}
	return strings.Trim(out, "\n"), true
}
