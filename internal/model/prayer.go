package model

import (
	"fmt"
	"time"
)

type PrayerName string

const (
	Fajr    PrayerName = "Fajr"
	Dhuhr   PrayerName = "Dhuhr"
	Asr     PrayerName = "Asr"
	Maghrib PrayerName = "Maghrib"
	Isha    PrayerName = "Isha"
)

// CanonicalPrayers lists the five daily prayers in day order.
var CanonicalPrayers = []PrayerName{Fajr, Dhuhr, Asr, Maghrib, Isha}

// DayKeyLayout is the calendar-day key format ("2025-08-05").
const DayKeyLayout = "2006-01-02"

// PrayerSchedule is one day of prayer times as returned by the prayer-times
// source. Times are the raw strings (“05:13 (EDT)”), sanitized at schedule time.
type PrayerSchedule struct {
	Date     string                `json:"date"`
	Location string                `json:"location"`
	Times    map[PrayerName]string `json:"times"`
}

// Time returns the raw time string for a prayer, or "" when missing.
func (s PrayerSchedule) Time(name PrayerName) string {
	if s.Times == nil {
		return ""
	}
	return s.Times[name]
}

func (s PrayerSchedule) Validate() error {
	if _, err := time.Parse(DayKeyLayout, s.Date); err != nil {
		return fmt.Errorf("invalid schedule date %q: %w", s.Date, err)
	}
	if len(s.Times) == 0 {
		return fmt.Errorf("schedule %s has no prayer times", s.Date)
	}
	return nil
}
