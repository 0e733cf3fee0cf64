package forecast

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire and storage format of calendar dates.
const DateLayout = "2006-01-02"

const (
	minutesPerDay = 24 * 60
	slotMinutes   = 120
)

// Clock is a time of day as minutes after midnight.
type Clock int

// NewClock builds a Clock from hour and minute, wrapping at midnight.
func NewClock(hour, minute int) Clock {
	return Clock(((hour*60+minute)%minutesPerDay + minutesPerDay) % minutesPerDay)
}

// ClockOf returns the time of day of t.
func ClockOf(t time.Time) Clock {
	return NewClock(t.Hour(), t.Minute())
}

// ParseClock accepts "15:04" and "15:04:05".
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return NewClock(h, m), nil
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

// Add shifts the clock, wrapping around midnight.
func (c Clock) Add(d time.Duration) Clock {
	return NewClock(0, int(c)+int(d/time.Minute))
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	parsed, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Slot is a 2-hour window aligned to even hours. The 22:00 slot ends at 00:00.
// The zero Slot is invalid and stands for missing slot data.
type Slot struct {
	Start Clock `json:"start"`
	End   Clock `json:"end"`
}

// SlotFor floors the hour of c to the nearest even hour.
func SlotFor(c Clock) Slot {
	start := NewClock((c.Hour()/2)*2, 0)
	return Slot{Start: start, End: start.Add(slotMinutes * time.Minute)}
}

// Duration is the slot length, taking the midnight wrap into account.
func (s Slot) Duration() time.Duration {
	d := (int(s.End) - int(s.Start) + minutesPerDay) % minutesPerDay
	return time.Duration(d) * time.Minute
}

// Valid reports whether s is a well-formed aggregation slot.
func (s Slot) Valid() bool {
	return s.Duration() == slotMinutes*time.Minute && s.Start.Minute() == 0 && s.Start.Hour()%2 == 0
}

func (s Slot) String() string {
	return s.Start.String() + "-" + s.End.String()
}

// Day truncates t to its calendar date at 00:00 UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// AddDays moves a calendar date by n days.
func AddDays(d time.Time, n int) time.Time {
	return Day(d).AddDate(0, 0, n)
}
