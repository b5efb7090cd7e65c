package utils

import (
	"fmt"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// ParseSessionSlot parses a booking's date and time strings into a point in
// time (UTC).
func ParseSessionSlot(date, clock string) (time.Time, error) {
	t, err := time.Parse(DateLayout+" "+TimeLayout, date+" "+clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid session slot %q %q: %w", date, clock, err)
	}
	return t, nil
}

// MinuteOfDay converts a "15:04" clock string to minutes from midnight, for
// comparison against a mentor's recurring availability windows.
func MinuteOfDay(clock string) (int, error) {
	t, err := time.Parse(TimeLayout, clock)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", clock, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
