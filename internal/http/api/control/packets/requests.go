package packets

import "github.com/Nixie-Tech-LLC/athan/internal/model"

// body for pushing the day's prayer times
type UpdateScheduleRequest struct {
	Schedule model.PrayerSchedule       `json:"schedule"`
	Settings model.NotificationSettings `json:"settings"`
}

type TestAthanRequest struct {
	DelaySeconds *int `json:"delay_seconds" binding:"omitempty,min=1,max=3600"`
}
