package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// InputHeight is the number of rows text occupies in an input of the given
// display width, keeping a cell free for the cursor at the end of each line.
// It is never less than 1 and has no upper bound; callers clamp it to the
// space they have.
func InputHeight(text string, width int) int {
	if width < 1 {
		width = 1
	}
	rows := 0
	for _, line := range strings.Split(text, "\n") {
		rows += lipgloss.Width(line)/width + 1
	}
	return rows
}
