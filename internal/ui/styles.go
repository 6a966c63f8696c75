package ui

import (
	"github.com/RichardoC/padchat/internal/models"
	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")). // Cyan
			Bold(true)

	modelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205"))

	faintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")) // Gray

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	replyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	roleStyles = map[models.Role]lipgloss.Style{
		models.RoleUser:      lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true),
		models.RoleAssistant: lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
		models.RoleSystem:    lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Bold(true),
	}

	unknownRoleStyle = lipgloss.NewStyle().Bold(true)
)

func roleStyle(r models.Role) lipgloss.Style {
	if !r.Known() {
		return unknownRoleStyle
	}
	return roleStyles[r]
}
