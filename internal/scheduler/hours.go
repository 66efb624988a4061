package scheduler

import (
	"fmt"
	"time"
)

// CallingHours is the local-time window during which outbound patient calls
// are permitted.
type CallingHours struct {
	start    int // minutes since midnight
	end      int
	location *time.Location
}

// NewCallingHours parses a window like 07:00–21:30 in the given time zone.
func NewCallingHours(start, end, timeZone string) (CallingHours, error) {
	loc, err := time.LoadLocation(timeZone)
	if err != nil {
		return CallingHours{}, fmt.Errorf("load calling time zone %q: %w", timeZone, err)
	}
	startMin, err := parseClock(start)
	if err != nil {
		return CallingHours{}, fmt.Errorf("parse calling hours start: %w", err)
	}
	endMin, err := parseClock(end)
	if err != nil {
		return CallingHours{}, fmt.Errorf("parse calling hours end: %w", err)
	}
	return CallingHours{start: startMin, end: endMin, location: loc}, nil
}

// Contains reports whether the instant falls inside the window, evaluated in
// the window's own time zone.
func (h CallingHours) Contains(t time.Time) bool {
	local := t.In(h.location)
	minutes := local.Hour()*60 + local.Minute()
	return minutes >= h.start && minutes <= h.end
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
