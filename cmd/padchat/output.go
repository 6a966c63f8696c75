package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/RichardoC/padchat/internal/db"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

func writeJSON(w io.Writer, exchanges []db.Exchange) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(exchanges)
}

func writeTable(w io.Writer, exchanges []db.Exchange) error {
	if len(exchanges) == 0 {
		_, err := fmt.Fprintln(w, "No exchanges recorded.")
		return err
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("TIME", "SESSION", "OP", "MODEL", "OUTCOME", "STATUS", "LATENCY", "TOKENS")
	for _, ex := range exchanges {
		t.Row(
			ex.CreatedAt.Local().Format(time.DateTime),
			shortID(ex.SessionID),
			ex.Op,
			ex.Model,
			ex.Outcome,
			statusText(ex.StatusCode),
			(time.Duration(ex.LatencyMS) * time.Millisecond).String(),
			tokensText(ex.PromptTokens, ex.CompletionTokens),
		)
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func statusText(code int) string {
	if code == 0 {
		return "-"
	}
	return strconv.Itoa(code)
}

func tokensText(prompt, completion *int) string {
	if prompt == nil && completion == nil {
		return "-"
	}
	p, c := "?", "?"
	if prompt != nil {
		p = strconv.Itoa(*prompt)
	}
	if completion != nil {
		c = strconv.Itoa(*completion)
	}
	return p + "/" + c
}
