// Package prayertime turns the loosely formatted time strings returned by
// prayer-time sources into wall-clock times and trigger instants.
package prayertime

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Nixie-Tech-LLC/athan/internal/model"
)

// Clock is a validated time of day.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Minutes returns the minutes since midnight.
func (c Clock) Minutes() int {
	return c.Hour*60 + c.Minute
}

// Add returns the clock shifted by the given minutes, wrapping around midnight.
func (c Clock) Add(minutes int) Clock {
	m := ((c.Minutes()+minutes)%(24*60) + 24*60) % (24 * 60)
	return Clock{Hour: m / 60, Minute: m % 60}
}

// Parse strips everything that is not a digit or a colon and reads the first
// two colon-separated parts as hour and minute. "05:13 (EDT)" and "05:13:00"
// both parse; ok is false for anything out of range or incomplete.
func Parse(raw string) (Clock, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == ':' {
			return r
		}
		return -1
	}, raw)

	parts := strings.Split(cleaned, ":")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Clock{}, false
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return Clock{}, false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return Clock{}, false
	}
	return Clock{Hour: hour, Minute: minute}, true
}

// NextTrigger returns c on now's calendar day, or on the following day when
// that instant is not strictly after now.
func NextTrigger(now time.Time, c Clock) time.Time {
	y, m, d := now.Date()
	at := time.Date(y, m, d, c.Hour, c.Minute, 0, 0, now.Location())
	if !at.After(now) {
		at = time.Date(y, m, d+1, c.Hour, c.Minute, 0, 0, now.Location())
	}
	return at
}

// DayKey formats t as a calendar-day key.
func DayKey(t time.Time) string {
	return t.Format(model.DayKeyLayout)
}
