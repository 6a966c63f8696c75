package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/RichardoC/padchat/internal/session"
	"github.com/charmbracelet/lipgloss"
)

func (m Model) View() string {
	sections := []string{
		m.headerView(),
		m.viewport.View(),
		m.statusView(),
	}
	if m.state.LastReply != "" {
		sections = append(sections, m.truncate(replyStyle.Render("Response: "+firstLine(m.state.LastReply))))
	}
	if m.state.LastErr != nil {
		sections = append(sections, m.truncate(errorStyle.Render(errorText(m.state.LastErr))))
	}
	sections = append(sections, m.input.View(), m.help.View(m.keys))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) headerView() string {
	id := m.state.ID.String()
	return m.truncate(headerStyle.Render("padchat") + " " +
		modelStyle.Render(m.state.Models.Current()) + " " +
		faintStyle.Render("session "+id[:8]))
}

func (m Model) statusView() string {
	var parts []string
	if m.state.InFlight() {
		parts = append(parts, m.spinner.View()+" Generating reply...")
	}
	if u := m.state.Usage; u != nil {
		parts = append(parts,
			fmt.Sprintf("Prompt Tokens: %d", u.Prompt),
			fmt.Sprintf("Completion Tokens: %d", u.Completion))
	}
	if e := m.estimate; e != nil && e.PromptTokens > 0 {
		parts = append(parts, faintStyle.Render(fmt.Sprintf("Draft: ~%d/%d tokens", e.PromptTokens, e.ContextWindow)))
	}
	return m.truncate(statusStyle.Render(strings.Join(parts, "  ")))
}

// truncate keeps a chrome line to a single row.
func (m Model) truncate(s string) string {
	return lipgloss.NewStyle().MaxWidth(m.width).Render(s)
}

func errorText(err error) string {
	if errors.Is(err, session.ErrBusy) {
		return "A request is already in progress."
	}
	return "Error: " + firstLine(err.Error())
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
