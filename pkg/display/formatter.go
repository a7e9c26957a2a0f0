package display

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// New creates a Formatter based on configuration.
func New(cfg Config) Formatter {
	if cfg.Format == "" {
		cfg.Format = FormatTable
	}
	if cfg.Width <= 0 {
		cfg.Width = terminalWidth()
	}

	switch cfg.Format {
	case FormatJSON:
		return &jsonFormatter{config: cfg}
	case FormatSimple:
		return &simpleFormatter{config: cfg}
	default:
		return &tableFormatter{config: cfg}
	}
}

// terminalWidth returns the stdout width, or a conservative default
// when stdout is not a terminal (pipes, CI).
func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 100
	}
	width, _, err := term.GetSize(fd)
	if err != nil || width <= 0 {
		return 100
	}
	return width
}

// formatTokens renders a token count with thousand separators.
func formatTokens(n int64) string {
	s := fmt.Sprintf("%d", n)
	if n < 0 {
		return s
	}

	var b strings.Builder
	for i, d := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	return b.String()
}

// formatUSD renders a dollar amount.
func formatUSD(v float64) string {
	return fmt.Sprintf("$%.4f", v)
}

// truncateCell shortens a cell to fit narrow terminals.
func truncateCell(s string, max int) string {
	if max <= 3 || len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
