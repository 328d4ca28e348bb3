package calendar

import (
	"fmt"
	"strings"
	"time"
)

// TimeOfDay is an offset from midnight. Valid values are in [0, 24h).
type TimeOfDay time.Duration

// NewTimeOfDay builds a TimeOfDay from clock components.
func NewTimeOfDay(hour, minute, second int) TimeOfDay {
	return TimeOfDay(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute + time.Duration(second)*time.Second)
}

// ClockOf returns the time of day of t in t's location.
func ClockOf(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return NewTimeOfDay(h, m, s) + TimeOfDay(t.Nanosecond())
}

// ParseTimeOfDay accepts HH:MM or HH:MM:SS.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return ClockOf(t), nil
		}
	}
	return 0, fmt.Errorf("calendar: invalid time of day %q", s)
}

// Clock returns the hour, minute, second and nanosecond of t.
func (t TimeOfDay) Clock() (hour, minute, second, nsec int) {
	d := time.Duration(t)
	hour = int(d / time.Hour)
	minute = int(d%time.Hour) / int(time.Minute)
	second = int(d%time.Minute) / int(time.Second)
	nsec = int(d % time.Second)
	return hour, minute, second, nsec
}

// String renders HH:MM:SS.
func (t TimeOfDay) String() string {
	h, m, s, _ := t.Clock()
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Valid reports whether t lies within a single day.
func (t TimeOfDay) Valid() bool {
	return t >= 0 && time.Duration(t) < 24*time.Hour
}

// Minutes returns the whole minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return int(time.Duration(t) / time.Minute)
}

// MarshalText implements encoding.TextMarshaler.
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TimeOfDay) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
