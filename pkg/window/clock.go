package window

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var clockPattern = regexp.MustCompile(`(?i)^(\d{1,2})(?::(\d{2}))?\s*(am|pm)$`)

// ParseClock parses a 12-hour wall-clock string like "7pm", "11am" or
// "7:30pm" into hour and minute. 12am maps to 0, 12pm to 12.
func ParseClock(s string) (hour, minute int, err error) {
	m := clockPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadClock, s)
	}

	hour, err = strconv.Atoi(m[1])
	if err != nil || hour < 1 || hour > 12 {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadClock, s)
	}
	if m[2] != "" {
		minute, err = strconv.Atoi(m[2])
		if err != nil || minute > 59 {
			return 0, 0, fmt.Errorf("%w: %q", ErrBadClock, s)
		}
	}

	if strings.EqualFold(m[3], "am") {
		if hour == 12 {
			hour = 0
		}
	} else if hour != 12 {
		hour += 12
	}

	return hour, minute, nil
}

// NextReset resolves a wall-clock reset hint to the next absolute time
// it occurs after now, in the given IANA zone. An unknown zone falls
// back to now's location.
func NextReset(now time.Time, clock, zone string) (time.Time, error) {
	hour, minute, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}

	loc := now.Location()
	if zone != "" {
		if l, lerr := time.LoadLocation(zone); lerr == nil {
			loc = l
		}
	}

	local := now.In(loc)
	reset := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !reset.After(local) {
		reset = reset.AddDate(0, 0, 1)
	}

	return reset, nil
}

// NextMonthlyReset resolves a month-day hint like "Feb 1" to the next
// occurrence at midnight in the given zone.
func NextMonthlyReset(now time.Time, monthDay, zone string) (time.Time, error) {
	loc := now.Location()
	if zone != "" {
		if l, lerr := time.LoadLocation(zone); lerr == nil {
			loc = l
		}
	}

	t, err := time.ParseInLocation("Jan 2", monthDay, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadClock, monthDay)
	}

	local := now.In(loc)
	reset := time.Date(local.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	if !reset.After(local) {
		reset = reset.AddDate(1, 0, 0)
	}

	return reset, nil
}
