// Package clock isolates the current time and the presentation zone.
//
// Everything is stored and compared in UTC. IST is only applied when a
// timestamp is rendered for a person to read.
package clock

import (
	"errors"
	"strings"
	"time"
)

// IST is India Standard Time, UTC+05:30. It has no daylight saving so a
// fixed zone avoids depending on the tz database being installed.
var IST = time.FixedZone("IST", 5*60*60+30*60)

// DisplayLayout is how timestamps are shown to staff.
const DisplayLayout = "02 Jan 2006, 03:04 PM"

// ErrInvalidDate is returned when a local date string matches none of the accepted layouts.
var ErrInvalidDate = errors.New("invalid date format")

var localLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Clock tells the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// System returns the wall clock, always in UTC.
func System() Clock { return systemClock{} }

// Fixed is a Clock frozen at a single instant.
type Fixed struct {
	At time.Time
}

// Now returns the frozen instant.
func (f *Fixed) Now() time.Time { return f.At.UTC() }

// Advance moves the frozen instant forward.
func (f *Fixed) Advance(d time.Duration) { f.At = f.At.Add(d) }

// ToUTC normalises a stored timestamp. Columns without a zone come back from
// the drivers as UTC wall clock, so they are already in the reference zone.
func ToUTC(t time.Time) time.Time {
	return t.UTC()
}

// ToIST converts a stored timestamp into the presentation zone.
func ToIST(t time.Time) time.Time {
	return ToUTC(t).In(IST)
}

// ToISTPtr is ToIST for optional timestamps.
func ToISTPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	ist := ToIST(*t)
	return &ist
}

// Display formats a stored timestamp in IST.
func Display(t time.Time) string {
	return ToIST(t).Format(DisplayLayout)
}

// ParseLocal reads an IST wall-clock string and returns the matching UTC instant.
func ParseLocal(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrInvalidDate
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, IST); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, ErrInvalidDate
}
