// Package scheduler plays ringtones at configured weekday times.
package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"RingCut/model"
)

// ErrInvalidSchedule is returned when a schedule fails validation.
var ErrInvalidSchedule = errors.New("invalid schedule")

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ParseClock parses "HH:MM" in 24-hour form.
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return Clock{}, fmt.Errorf("%w: time %q must be HH:MM", ErrInvalidSchedule, s)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// Validate checks the fields a schedule needs before it can be stored.
func Validate(s *model.Schedule) error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSchedule)
	}
	if s.RingtoneID == "" {
		return fmt.Errorf("%w: ringtone is required", ErrInvalidSchedule)
	}
	if _, err := ParseClock(s.Clock); err != nil {
		return err
	}
	if len(s.Days) == 0 {
		return fmt.Errorf("%w: at least one day is required", ErrInvalidSchedule)
	}
	var seen [7]bool
	for _, d := range s.Days {
		if d < 0 || d > 6 {
			return fmt.Errorf("%w: day %d out of range 0-6", ErrInvalidSchedule, d)
		}
		if seen[d] {
			return fmt.Errorf("%w: day %d listed twice", ErrInvalidSchedule, d)
		}
		seen[d] = true
	}
	if s.Volume < 0 || s.Volume > 100 {
		return fmt.Errorf("%w: volume %d out of range 0-100", ErrInvalidSchedule, s.Volume)
	}
	return nil
}

// NextFire returns the first fire time strictly after `after`, in after's location.
func NextFire(s *model.Schedule, after time.Time) (time.Time, bool) {
	c, err := ParseClock(s.Clock)
	if err != nil || len(s.Days) == 0 {
		return time.Time{}, false
	}
	y, m, d := after.Date()
	for i := 0; i <= 7; i++ {
		t := time.Date(y, m, d+i, c.Hour, c.Minute, 0, 0, after.Location())
		if t.After(after) && s.Days.Contains(t.Weekday()) {
			return t, true
		}
	}
	return time.Time{}, false
}

// Due reports whether an enabled schedule fires in (from, to], and when.
func Due(s *model.Schedule, from, to time.Time) (time.Time, bool) {
	if !s.Enabled {
		return time.Time{}, false
	}
	next, ok := NextFire(s, from)
	if !ok || next.After(to) {
		return time.Time{}, false
	}
	return next, true
}
