package model

import "time"

type PayloadType string

const (
	PayloadPrayerTime      PayloadType = "prayer-time"
	PayloadPrePrayer       PayloadType = "pre-prayer"
	PayloadTestAthan       PayloadType = "test-athan"
	PayloadDailyReschedule PayloadType = "daily-reschedule"
	PayloadDebug           PayloadType = "debug"
	PayloadUnknown         PayloadType = ""
)

// ParsePayloadType maps a raw payload type to a known one. The legacy "test"
// value is an alias of test-athan.
func ParsePayloadType(raw string) PayloadType {
	switch PayloadType(raw) {
	case PayloadPrayerTime, PayloadPrePrayer, PayloadTestAthan, PayloadDailyReschedule, PayloadDebug:
		return PayloadType(raw)
	}
	if raw == "test" {
		return PayloadTestAthan
	}
	return PayloadUnknown
}

// Payload is the data object attached to every notification we register.
type Payload struct {
	Type         PayloadType `json:"type"`
	Prayer       PrayerName  `json:"prayer,omitempty"`
	AthanSoundID AthanSound  `json:"athanSoundId,omitempty"`
	AthanEnabled bool        `json:"athanEnabled"`
	Location     string      `json:"location,omitempty"`
	FullAthan    string      `json:"fullAthan,omitempty"` // track played when the notification is tapped
	FireAt       time.Time   `json:"fireAt"`
}

const (
	SoundDefault = "default"
	SoundNone    = ""
)

type Content struct {
	Title          string  `json:"title"`
	Body           string  `json:"body"`
	Sound          string  `json:"sound"`
	VibratePattern []int64 `json:"vibratePattern,omitempty"` // milliseconds
	Data           Payload `json:"data"`
}

// HasBundledSound reports whether the OS itself plays an athan file for this
// notification.
func (c Content) HasBundledSound() bool {
	return c.Sound != SoundNone && c.Sound != SoundDefault
}

type ScheduledNotification struct {
	ID        string     `json:"id"`
	Prayer    PrayerName `json:"prayer,omitempty"`
	TriggerAt time.Time  `json:"triggerAt"`
	Content   Content    `json:"content"`
}

type EventKind string

const (
	// EventReceived is a delivery while the app is running.
	EventReceived EventKind = "received"
	// EventTapped is the user opening a notification.
	EventTapped EventKind = "tapped"
)

// NotificationEvent is what the notification facility reports back.
type NotificationEvent struct {
	Kind    EventKind `json:"kind"`
	ID      string    `json:"id"`
	Content Content   `json:"content"`
}
