package endpoints

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/athan/internal/companion"
	"github.com/Nixie-Tech-LLC/athan/internal/http/api"
	"github.com/Nixie-Tech-LLC/athan/internal/http/api/control/packets"
	"github.com/Nixie-Tech-LLC/athan/internal/model"
	"github.com/Nixie-Tech-LLC/athan/internal/scheduler"
)

const defaultTestDelay = 5 * time.Second

// Coordinator is what the control endpoints drive.
type Coordinator interface {
	Status(ctx context.Context) (companion.Status, error)
	UpdateSchedule(ctx context.Context, schedule model.PrayerSchedule, settings model.NotificationSettings) (scheduler.Result, error)
	TestAthan(ctx context.Context, delay time.Duration) (string, error)
	StopAthan()
}

var _ Coordinator = (*companion.Coordinator)(nil)

type ControlController struct {
	coordinator Coordinator
	now         func() time.Time
}

func NewControlController(c Coordinator) *ControlController {
	return &ControlController{coordinator: c, now: time.Now}
}

func ControlModule(c Coordinator) api.Module {
	ctl := NewControlController(c)
	return api.ModuleFunc(func(c *api.Controller) {
		c.GET("/status", ctl.getStatus)
		c.PUT("/schedule", ctl.updateSchedule)

		// athan playback
		c.POST("/athan/test", ctl.testAthan)
		c.POST("/athan/stop", ctl.stopAthan)
	})
}

// HealthModule answers liveness checks without a token.
func HealthModule() api.Module {
	return api.ModuleFunc(func(c *api.Controller) {
		c.PUBLIC_GET("/healthz", func(*gin.Context) (any, *api.APIError) {
			return gin.H{"status": "ok"}, nil
		})
	})
}

// GET /api/status
func (c *ControlController) getStatus(ctx *gin.Context, _ string) (any, *api.APIError) {
	st, err := c.coordinator.Status(ctx.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to read coordinator status")
		return nil, &api.APIError{Code: http.StatusInternalServerError, Message: "failed to read status"}
	}
	return packets.StatusResponse(st), nil
}

// PUT /api/schedule
func (c *ControlController) updateSchedule(ctx *gin.Context, subject string) (any, *api.APIError) {
	var request packets.UpdateScheduleRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		return nil, &api.APIError{Code: http.StatusBadRequest, Message: err.Error()}
	}
	if err := request.Schedule.Validate(); err != nil {
		return nil, &api.APIError{Code: http.StatusBadRequest, Message: err.Error()}
	}
	if request.Settings.AdhanEnabled && !request.Settings.AthanSoundID.Valid() {
		return nil, &api.APIError{Code: http.StatusBadRequest, Message: "unknown athan sound"}
	}
	if request.Settings.PrePrayerReminder && !request.Settings.ReminderOffsetValid() {
		return nil, &api.APIError{
			Code:    http.StatusBadRequest,
			Message: fmt.Sprintf("prePrayerOffsetMinutes must be between 1 and %d", model.MaxReminderOffset),
		}
	}

	res, err := c.coordinator.UpdateSchedule(ctx.Request.Context(), request.Schedule, request.Settings)
	if err != nil {
		return nil, &api.APIError{Code: http.StatusBadRequest, Message: err.Error()}
	}

	log.Info().
		Str("subject", subject).
		Str("date", request.Schedule.Date).
		Str("status", string(res.Status)).
		Msg("schedule pushed")
	return packets.ScheduleResponse{Result: res}, nil
}

// POST /api/athan/test
func (c *ControlController) testAthan(ctx *gin.Context, _ string) (any, *api.APIError) {
	var request packets.TestAthanRequest
	if ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&request); err != nil {
			return nil, &api.APIError{Code: http.StatusBadRequest, Message: err.Error()}
		}
	}

	delay := defaultTestDelay
	if request.DelaySeconds != nil {
		delay = time.Duration(*request.DelaySeconds) * time.Second
	}

	id, err := c.coordinator.TestAthan(ctx.Request.Context(), delay)
	if err != nil {
		log.Error().Err(err).Msg("failed to schedule test athan")
		return nil, &api.APIError{Code: http.StatusBadGateway, Message: "could not schedule test athan"}
	}
	return packets.TestAthanResponse{ID: id, TriggerAt: c.now().Add(delay).Format(time.RFC3339)}, nil
}

// POST /api/athan/stop
func (c *ControlController) stopAthan(_ *gin.Context, _ string) (any, *api.APIError) {
	c.coordinator.StopAthan()
	return packets.StopResponse{Stopped: true}, nil
}
