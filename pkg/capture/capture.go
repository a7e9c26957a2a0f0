// Package capture turns the CLI's /usage screen into structured quota
// snapshots. The screen is plain text with ANSI styling; capture
// strips the styling, pulls out session utilization, reset hints and
// overage spend with regular expressions, and resolves the wall-clock
// reset hints to absolute times.
package capture

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/0xmhha/quota-monitor/pkg/logger"
	"github.com/0xmhha/quota-monitor/pkg/poller"
	"github.com/0xmhha/quota-monitor/pkg/window"
)

var (
	ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]|\x1b\][^\a]*\a`)

	percentPattern     = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%\s*used`)
	sessionResetRe     = regexp.MustCompile(`Resets\s+(\d{1,2}(?::\d{2})?\s*(?:am|pm))\s*\(([^)]+)\)`)
	overageSpentRe     = regexp.MustCompile(`\$(\d+(?:\.\d+)?)\s*/\s*\$(\d+(?:\.\d+)?)\s*spent`)
	overageResetRe     = regexp.MustCompile(`spent\s*[·•]\s*Resets\s+([A-Z][a-z]{2}\s+\d{1,2})\s*\(([^)]+)\)`)
)

// Parser extracts quota snapshots from /usage screen text.
type Parser interface {
	// Parse extracts a snapshot from raw screen output, resolving
	// reset hints against now.
	//
	// Returns ErrNoSessionData if the output contains no session
	// utilization. Overage fields are optional: accounts without
	// extra usage enabled simply omit that section.
	Parse(output string, now time.Time) (poller.Result, error)
}

// screenParser implements Parser.
type screenParser struct {
	logger logger.Logger
}

// NewParser creates a /usage screen parser.
func NewParser(log logger.Logger) Parser {
	return &screenParser{logger: log}
}

// Parse implements Parser.Parse.
func (p *screenParser) Parse(output string, now time.Time) (poller.Result, error) {
	text := StripANSI(output)

	var result poller.Result
	result.Raw = output

	m := percentPattern.FindStringSubmatch(text)
	if m == nil {
		return result, fmt.Errorf("%w: no utilization in output", ErrNoSessionData)
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return result, fmt.Errorf("%w: bad percentage %q", ErrNoSessionData, m[1])
	}
	result.SessionPercentUsed = pct

	if m := sessionResetRe.FindStringSubmatch(text); m != nil {
		clock := strings.ReplaceAll(m[1], " ", "")
		zone := strings.TrimSpace(m[2])

		resetsAt, err := window.NextReset(now, clock, zone)
		if err != nil {
			p.logger.Warn("unparseable session reset hint",
				"clock", clock,
				"zone", zone,
				"error", err)
		} else {
			result.SessionResetsAt = resetsAt
		}
	}

	if m := overageSpentRe.FindStringSubmatch(text); m != nil {
		spent, serr := strconv.ParseFloat(m[1], 64)
		limit, lerr := strconv.ParseFloat(m[2], 64)
		if serr == nil && lerr == nil {
			result.OverageEnabled = true
			result.OverageSpentUSD = spent
			result.OverageLimitUSD = limit
		}
	}

	if m := overageResetRe.FindStringSubmatch(text); m != nil {
		resetsAt, err := window.NextMonthlyReset(now, m[1], strings.TrimSpace(m[2]))
		if err != nil {
			p.logger.Warn("unparseable overage reset hint",
				"hint", m[1],
				"error", err)
		} else {
			result.OverageResetsAt = resetsAt
		}
	}

	return result, nil
}

// StripANSI removes ANSI escape sequences from terminal output.
func StripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}
