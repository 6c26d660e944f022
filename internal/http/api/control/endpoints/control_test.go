package endpoints_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nixie-Tech-LLC/athan/internal/companion"
	"github.com/Nixie-Tech-LLC/athan/internal/http/api"
	authapi "github.com/Nixie-Tech-LLC/athan/internal/http/api/auth/endpoints"
	"github.com/Nixie-Tech-LLC/athan/internal/http/api/control/endpoints"
	"github.com/Nixie-Tech-LLC/athan/internal/http/middleware"
	"github.com/Nixie-Tech-LLC/athan/internal/model"
	"github.com/Nixie-Tech-LLC/athan/internal/scheduler"
)

const jwtSecret = "supersecret"

type mockCoordinator struct {
	updated   []model.PrayerSchedule
	testDelay time.Duration
	stopped   int
	testErr   error
}

func (m *mockCoordinator) Status(context.Context) (companion.Status, error) {
	return companion.Status{Started: true, Player: "idle", LastScheduledDay: "2025-08-05"}, nil
}

func (m *mockCoordinator) UpdateSchedule(_ context.Context, s model.PrayerSchedule, _ model.NotificationSettings) (scheduler.Result, error) {
	m.updated = append(m.updated, s)
	return scheduler.Result{Status: scheduler.StatusScheduled, Registered: 5}, nil
}

func (m *mockCoordinator) TestAthan(_ context.Context, delay time.Duration) (string, error) {
	m.testDelay = delay
	return "test-1", m.testErr
}

func (m *mockCoordinator) StopAthan() { m.stopped++ }

func setupRouter(t *testing.T, c endpoints.Coordinator) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hash, err := middleware.HashPassword("12345678")
	require.NoError(t, err)

	r := gin.New()
	require.NoError(t, api.MountGroup(r, api.GroupConfig{Prefix: "/api"}, authapi.AuthPublicModule(jwtSecret, hash)))
	require.NoError(t, api.MountGroup(r, api.GroupConfig{Prefix: "/api", Auth: true, SecretKey: jwtSecret}, endpoints.ControlModule(c)))
	return r
}

func do(r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := do(r, http.MethodPost, "/api/auth/token", "", map[string]string{"password": "12345678"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	token, _ := resp["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestTokenRequiresPassword(t *testing.T) {
	r := setupRouter(t, &mockCoordinator{})

	w := do(r, http.MethodPost, "/api/auth/token", "", map[string]string{"password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, "/api/auth/token", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestControlRequiresToken(t *testing.T) {
	r := setupRouter(t, &mockCoordinator{})

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/status", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/status", "garbage", nil).Code)

	other, err := middleware.GenerateJWT(authapi.Subject, "another-secret")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/status", other, nil).Code)
}

func TestGetStatus(t *testing.T) {
	r := setupRouter(t, &mockCoordinator{})
	w := do(r, http.MethodGet, "/api/status", login(t, r), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var st companion.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.True(t, st.Started)
	assert.Equal(t, "2025-08-05", st.LastScheduledDay)
}

func TestUpdateSchedule(t *testing.T) {
	c := &mockCoordinator{}
	r := setupRouter(t, c)
	token := login(t, r)

	body := map[string]any{
		"schedule": map[string]any{
			"date":     "2025-08-05",
			"location": "Chicago, IL",
			"times":    map[string]string{"Fajr": "05:13", "Isha": "21:10"},
		},
		"settings": map[string]any{"enabled": true, "adhanEnabled": true, "athanSoundId": "makkah"},
	}
	w := do(r, http.MethodPut, "/api/schedule", token, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, c.updated, 1)
	assert.Equal(t, "21:10", c.updated[0].Time(model.Isha))

	var resp struct {
		Result scheduler.Result `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, scheduler.StatusScheduled, resp.Result.Status)
}

func TestUpdateScheduleValidation(t *testing.T) {
	c := &mockCoordinator{}
	r := setupRouter(t, c)
	token := login(t, r)

	badDate := map[string]any{"schedule": map[string]any{"date": "yesterday", "times": map[string]string{"Fajr": "05:13"}}}
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPut, "/api/schedule", token, badDate).Code)

	badSound := map[string]any{
		"schedule": map[string]any{"date": "2025-08-05", "times": map[string]string{"Fajr": "05:13"}},
		"settings": map[string]any{"enabled": true, "adhanEnabled": true, "athanSoundId": "istanbul"},
	}
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPut, "/api/schedule", token, badSound).Code)
	assert.Empty(t, c.updated)
}

func TestUpdateScheduleReminderOffset(t *testing.T) {
	c := &mockCoordinator{}
	r := setupRouter(t, c)
	token := login(t, r)

	body := func(reminder bool, offset int) map[string]any {
		return map[string]any{
			"schedule": map[string]any{"date": "2025-08-05", "times": map[string]string{"Fajr": "05:13"}},
			"settings": map[string]any{"enabled": true, "prePrayerReminder": reminder, "prePrayerOffsetMinutes": offset},
		}
	}
	for _, offset := range []int{0, -10, 1440} {
		w := do(r, http.MethodPut, "/api/schedule", token, body(true, offset))
		assert.Equal(t, http.StatusBadRequest, w.Code, "offset %d", offset)
		assert.Contains(t, w.Body.String(), "prePrayerOffsetMinutes")
	}
	assert.Empty(t, c.updated)

	// the offset only matters when reminders are on
	assert.Equal(t, http.StatusOK, do(r, http.MethodPut, "/api/schedule", token, body(false, 0)).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPut, "/api/schedule", token, body(true, 1439)).Code)
	assert.Len(t, c.updated, 2)
}

func TestHealthz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	require.NoError(t, api.MountGroup(r, api.GroupConfig{}, endpoints.HealthModule()))

	w := do(r, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestAthanTestAndStop(t *testing.T) {
	c := &mockCoordinator{}
	r := setupRouter(t, c)
	token := login(t, r)

	w := do(r, http.MethodPost, "/api/athan/test", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 5*time.Second, c.testDelay)

	w = do(r, http.MethodPost, "/api/athan/test", token, map[string]int{"delay_seconds": 30})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 30*time.Second, c.testDelay)

	w = do(r, http.MethodPost, "/api/athan/test", token, map[string]int{"delay_seconds": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c.testErr = errors.New("device offline")
	w = do(r, http.MethodPost, "/api/athan/test", token, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = do(r, http.MethodPost, "/api/athan/stop", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, c.stopped)
}

func TestMountGroupRequiresSecret(t *testing.T) {
	err := api.MountGroup(gin.New(), api.GroupConfig{Prefix: "/api", Auth: true}, endpoints.ControlModule(&mockCoordinator{}))
	assert.ErrorIs(t, err, api.ErrMissingSecret)
}
