package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/athan/internal/config"
	"github.com/Nixie-Tech-LLC/athan/internal/kv"
	"github.com/Nixie-Tech-LLC/athan/internal/storage"
)

// InitStore selects and opens the configured KV backend. The returned func
// releases it.
func InitStore(ctx context.Context, cfg *config.Config) (kv.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.StoreRedis:
		client := kv.NewRedisClient(cfg.RedisAddress, cfg.RedisUsername, cfg.RedisPassword)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		log.Info().Str("address", cfg.RedisAddress).Msg("using redis store")
		return kv.NewRedis(client, "athan:"+cfg.DeviceID), func() { _ = client.Close() }, nil

	case config.StorePostgres:
		db, err := kv.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("db init: %w", err)
		}
		if err := kv.RunMigrations(db, cfg.MigrationsPath); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("db migrate: %w", err)
		}
		log.Info().Msg("using postgres store")
		return kv.NewPostgres(db), func() { _ = db.Close() }, nil

	default:
		log.Warn().Msg("using in-memory store, schedule state is lost on restart")
		return kv.NewMemory(), func() {}, nil
	}
}

// InitResolver selects where athan tracks are served from
func InitResolver(cfg *config.Config) storage.Resolver {
	if cfg.UseSpaces {
		spaces, err := storage.NewSpacesResolver(
			cfg.SpacesEndpoint,
			cfg.SpacesRegion,
			cfg.SpacesBucket,
			cfg.SpacesCDNURL,
			cfg.SpacesAccessKey,
			cfg.SpacesSecretKey,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize Spaces storage")
		}
		log.Info().Str("cdn", cfg.SpacesCDNURL).Msg("serving athan tracks from Spaces")
		return spaces
	}

	log.Info().Str("dir", cfg.MediaDir).Str("base_url", cfg.MediaBaseURL).Msg("serving athan tracks from local media")
	return storage.NewLocalResolver(cfg.MediaDir, cfg.MediaBaseURL)
}
