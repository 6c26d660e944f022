package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/Nixie-Tech-LLC/athan/internal/prayertime"
)

// Device transports selectable with DEVICE_TRANSPORT.
const (
	TransportMQTT  = "mqtt"
	TransportLocal = "local"
)

// Store backends selectable with STORE_BACKEND.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config holds environment-based settings
type Config struct {
	Environment string
	LogLevel    string

	ServerAddress     string
	JWTSecret         string
	AdminPasswordHash string

	StoreBackend   string
	RedisAddress   string
	RedisUsername  string
	RedisPassword  string
	DatabaseURL    string
	MigrationsPath string

	DeviceTransport string
	MQTTBrokerURL   string
	DeviceID        string
	BuildID         string
	Location        *time.Location

	BundledSounds     bool
	DailyRescheduleAt *prayertime.Clock
	StartupLookahead  time.Duration
	StartupGrace      time.Duration
	StaleAfter        time.Duration
	ClipMaxDuration   time.Duration

	MediaDir        string
	MediaBaseURL    string
	UseSpaces       bool
	SpacesEndpoint  string
	SpacesRegion    string
	SpacesBucket    string
	SpacesCDNURL    string
	SpacesAccessKey string
	SpacesSecretKey string
}

// Development reports whether APP_ENV is "development".
func (c *Config) Development() bool {
	return c.Environment == "development"
}

// Load reads configuration from environment variables, after loading an
// optional .env file from the working directory.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv reads configuration from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Environment:       getenv("APP_ENV", "production"),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		ServerAddress:     getenv("SERVER_ADDRESS", ":8080"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		StoreBackend:      getenv("STORE_BACKEND", StoreMemory),
		RedisAddress:      os.Getenv("REDIS_ADDRESS"),
		RedisUsername:     os.Getenv("REDIS_USERNAME"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		MigrationsPath:    getenv("MIGRATIONS_PATH", "./migrations"),
		DeviceTransport:   getenv("DEVICE_TRANSPORT", TransportMQTT),
		MQTTBrokerURL:     getenv("MQTT_BROKER_URL", "tcp://0.0.0.0:1883"),
		DeviceID:          os.Getenv("DEVICE_ID"),
		BuildID:           getenv("BUILD_ID", "dev"),
		MediaDir:          getenv("MEDIA_DIR", "./media"),
		MediaBaseURL:      os.Getenv("MEDIA_BASE_URL"),
		UseSpaces:         os.Getenv("USE_SPACES") == "true",
		SpacesEndpoint:    os.Getenv("SPACES_ENDPOINT"),
		SpacesRegion:      os.Getenv("SPACES_REGION"),
		SpacesBucket:      os.Getenv("SPACES_BUCKET"),
		SpacesCDNURL:      os.Getenv("SPACES_CDN_URL"),
		SpacesAccessKey:   os.Getenv("SPACES_ACCESS_KEY"),
		SpacesSecretKey:   os.Getenv("SPACES_SECRET_KEY"),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.AdminPasswordHash == "" {
		return nil, fmt.Errorf("ADMIN_PASSWORD_HASH is required")
	}
	if cfg.DeviceID == "" {
		return nil, fmt.Errorf("DEVICE_ID is required")
	}

	if cfg.DeviceTransport != TransportMQTT && cfg.DeviceTransport != TransportLocal {
		return nil, fmt.Errorf("unknown DEVICE_TRANSPORT %q", cfg.DeviceTransport)
	}

	switch cfg.StoreBackend {
	case StoreMemory:
	case StoreRedis:
		if cfg.RedisAddress == "" {
			return nil, fmt.Errorf("REDIS_ADDRESS is required for the redis store")
		}
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	if cfg.UseSpaces && (cfg.SpacesEndpoint == "" || cfg.SpacesBucket == "") {
		return nil, fmt.Errorf("SPACES_ENDPOINT and SPACES_BUCKET are required when USE_SPACES=true")
	}

	loc, err := time.LoadLocation(getenv("TIMEZONE", "Local"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	cfg.Location = loc

	if cfg.BundledSounds, err = getbool("BUNDLED_SOUNDS", false); err != nil {
		return nil, err
	}

	// an explicit empty value turns the daily-reschedule record off
	if raw, ok := os.LookupEnv("DAILY_RESCHEDULE_AT"); !ok || raw != "" {
		if !ok {
			raw = "00:05"
		}
		at, valid := prayertime.Parse(raw)
		if !valid {
			return nil, fmt.Errorf("invalid DAILY_RESCHEDULE_AT %q", raw)
		}
		cfg.DailyRescheduleAt = &at
	}

	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"STARTUP_LOOKAHEAD", 5 * time.Second, &cfg.StartupLookahead},
		{"STARTUP_GRACE", 30 * time.Second, &cfg.StartupGrace},
		{"STALE_AFTER", 5 * time.Minute, &cfg.StaleAfter},
		{"CLIP_MAX_DURATION", 60 * time.Second, &cfg.ClipMaxDuration},
	}
	for _, d := range durations {
		if *d.dest, err = getduration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getbool(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func getduration(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return v, nil
}
