package scheduler

import (
	"fmt"
	"strconv"
	"strings"
)

// ClockTime is a wall-clock time of day in the scheduler's timezone.
type ClockTime struct {
	Hour   int
	Minute int
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Spec is the daily cron expression firing at c.
func (c ClockTime) Spec() string {
	return fmt.Sprintf("%d %d * * *", c.Minute, c.Hour)
}

// ParseClock parses "HH:MM" (24h, one or two digit hour).
func ParseClock(s string) (ClockTime, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(mm) != 2 || hh == "" || len(hh) > 2 || !digits(hh+mm) {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrConfigParse, s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrConfigParse, s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrConfigParse, s)
	}
	return ClockTime{Hour: h, Minute: m}, nil
}

func digits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
