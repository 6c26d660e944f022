package packets

import (
	"github.com/Nixie-Tech-LLC/athan/internal/companion"
	"github.com/Nixie-Tech-LLC/athan/internal/scheduler"
)

type StatusResponse = companion.Status

type ScheduleResponse struct {
	Result scheduler.Result `json:"result"`
}

type TestAthanResponse struct {
	ID        string `json:"id"`
	TriggerAt string `json:"trigger_at"`
}

type StopResponse struct {
	Stopped bool `json:"stopped"`
}
