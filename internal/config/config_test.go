package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nixie-Tech-LLC/athan/internal/prayertime"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "supersecret")
	t.Setenv("ADMIN_PASSWORD_HASH", "$2a$10$abcdefghijklmnopqrstuv")
	t.Setenv("DEVICE_ID", "phone-1")
}

func TestFromEnvDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("TIMEZONE", "UTC")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ServerAddress)
	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.Equal(t, "./migrations", cfg.MigrationsPath)
	assert.Equal(t, TransportMQTT, cfg.DeviceTransport)
	assert.Equal(t, "tcp://0.0.0.0:1883", cfg.MQTTBrokerURL)
	assert.Equal(t, "dev", cfg.BuildID)
	assert.Equal(t, "./media", cfg.MediaDir)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.False(t, cfg.BundledSounds)
	assert.False(t, cfg.Development())
	require.NotNil(t, cfg.DailyRescheduleAt)
	assert.Equal(t, prayertime.Clock{Hour: 0, Minute: 5}, *cfg.DailyRescheduleAt)
	assert.Equal(t, 5*time.Second, cfg.StartupLookahead)
	assert.Equal(t, 30*time.Second, cfg.StartupGrace)
	assert.Equal(t, 5*time.Minute, cfg.StaleAfter)
	assert.Equal(t, 60*time.Second, cfg.ClipMaxDuration)
}

func TestFromEnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "development")
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("REDIS_ADDRESS", "localhost:6379")
	t.Setenv("BUNDLED_SOUNDS", "true")
	t.Setenv("DAILY_RESCHEDULE_AT", "")
	t.Setenv("STARTUP_GRACE", "1m")
	t.Setenv("CLIP_MAX_DURATION", "0s")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.Development())
	assert.Equal(t, StoreRedis, cfg.StoreBackend)
	assert.True(t, cfg.BundledSounds)
	assert.Nil(t, cfg.DailyRescheduleAt)
	assert.Equal(t, time.Minute, cfg.StartupGrace)
	assert.Zero(t, cfg.ClipMaxDuration)
}

func TestFromEnvErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"missing device", map[string]string{"DEVICE_ID": ""}},
		{"missing secret", map[string]string{"JWT_SECRET": ""}},
		{"unknown transport", map[string]string{"DEVICE_TRANSPORT": "bluetooth"}},
		{"unknown backend", map[string]string{"STORE_BACKEND": "etcd"}},
		{"redis without address", map[string]string{"STORE_BACKEND": "redis"}},
		{"postgres without url", map[string]string{"STORE_BACKEND": "postgres"}},
		{"bad timezone", map[string]string{"TIMEZONE": "Mars/Olympus"}},
		{"bad duration", map[string]string{"STALE_AFTER": "soon"}},
		{"negative duration", map[string]string{"STARTUP_GRACE": "-1s"}},
		{"bad bool", map[string]string{"BUNDLED_SOUNDS": "sometimes"}},
		{"bad reschedule time", map[string]string{"DAILY_RESCHEDULE_AT": "25:00"}},
		{"spaces without bucket", map[string]string{"USE_SPACES": "true", "SPACES_ENDPOINT": "ams3.digitaloceanspaces.com"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}
