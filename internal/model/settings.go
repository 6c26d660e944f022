package model

type AthanSound string

const (
	AthanMakkah  AthanSound = "makkah"
	AthanMadinah AthanSound = "madinah"
	AthanAlAqsa  AthanSound = "alaqsa"
	AthanEgypt   AthanSound = "egypt"
	AthanDefault AthanSound = "default"
)

func (a AthanSound) Valid() bool {
	switch a {
	case AthanMakkah, AthanMadinah, AthanAlAqsa, AthanEgypt, AthanDefault:
		return true
	}
	return false
}

// NotificationSettings come from the settings store and are never written here.
type NotificationSettings struct {
	Enabled                bool       `json:"enabled"`
	AdhanEnabled           bool       `json:"adhanEnabled"`
	AthanSoundID           AthanSound `json:"athanSoundId"`
	Vibrate                bool       `json:"vibrate"`
	PrePrayerReminder      bool       `json:"prePrayerReminder"`
	PrePrayerOffsetMinutes int        `json:"prePrayerOffsetMinutes"`
}

// MaxReminderOffset keeps a reminder within the day before its prayer.
const MaxReminderOffset = 24*60 - 1

// ReminderOffsetValid reports whether the pre-prayer offset is in 1..MaxReminderOffset.
func (s NotificationSettings) ReminderOffsetValid() bool {
	return s.PrePrayerOffsetMinutes >= 1 && s.PrePrayerOffsetMinutes <= MaxReminderOffset
}
