package domain

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for exam dates.
const DateLayout = "2006-01-02"

// Clock supplies the current time in a fixed deployment timezone. NowFn is
// swappable for deterministic tests.
type Clock struct {
	Loc   *time.Location
	NowFn func() time.Time
}

// NewClock builds a Clock for a location, defaulting to time.Now.
func NewClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return Clock{Loc: loc, NowFn: time.Now}
}

// Now returns the current instant in the clock's location.
func (c Clock) Now() time.Time {
	if c.NowFn == nil {
		return time.Now().In(c.Loc)
	}
	return c.NowFn().In(c.Loc)
}

// ToSeconds converts an instant to its seconds-of-day component.
func ToSeconds(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

// FromSeconds renders seconds of day as "h:MM AM/PM".
func FromSeconds(sec int) string {
	h := sec / 3600
	m := (sec % 3600) / 60
	suffix := "AM"
	display := h
	switch {
	case h == 0:
		display = 12
	case h == 12:
		suffix = "PM"
	case h > 12:
		display = h - 12
		suffix = "PM"
	}
	return fmt.Sprintf("%d:%02d %s", display, m, suffix)
}

// Combine anchors seconds of day onto a calendar date in the given location.
func Combine(date time.Time, sec int, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), sec/3600, (sec%3600)/60, sec%60, 0, loc)
}

// ParseDate parses a YYYY-MM-DD date in the given location.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, ErrInvalidDate.WithMessage("invalid date %q: must be formatted YYYY-MM-DD", s)
	}
	return t, nil
}

// SameDate reports whether two instants fall on the same calendar day.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
