package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/athan/internal/companion"
	"github.com/Nixie-Tech-LLC/athan/internal/config"
)

func main() {
	// load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg)
	log.Info().Str("timezone", cfg.Location.String()).Msg("prayer times use configured zone")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := InitStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("store init")
	}
	defer closeStore()

	resolver := InitResolver(cfg)

	clock := clockwork.NewRealClock()
	dev, err := InitDevice(ctx, cfg, clock)
	if err != nil {
		log.Fatal().Err(err).Msg("device init")
	}
	defer dev.Close()

	coordinator := companion.New(companion.Deps{
		Notifications:     dev.Notifications,
		Events:            dev.Events,
		Audio:             dev.Audio,
		Resolver:          resolver,
		AppState:          dev.AppState,
		Store:             store,
		Clock:             clock,
		Location:          cfg.Location,
		BuildID:           cfg.BuildID,
		BundledSounds:     cfg.BundledSounds,
		DailyRescheduleAt: cfg.DailyRescheduleAt,
		Lookahead:         cfg.StartupLookahead,
		Grace:             cfg.StartupGrace,
		StaleAfter:        cfg.StaleAfter,
		MaxClip:           cfg.ClipMaxDuration,
	})
	coordinator.Start(ctx)
	defer coordinator.Stop()

	// set up gin router
	if !cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	if err := RegisterRoutes(r, cfg, coordinator); err != nil {
		log.Fatal().Err(err).Msg("register routes")
	}

	srv := &http.Server{Addr: cfg.ServerAddress, Handler: r}
	go func() {
		log.Info().Str("address", cfg.ServerAddress).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown LOG_LEVEL, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.Development() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	log.Logger = log.With().Str("device_id", cfg.DeviceID).Logger()
}
