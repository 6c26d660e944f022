package main

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Nixie-Tech-LLC/athan/internal/config"
	"github.com/Nixie-Tech-LLC/athan/internal/http/api"
	authapi "github.com/Nixie-Tech-LLC/athan/internal/http/api/auth/endpoints"
	controlapi "github.com/Nixie-Tech-LLC/athan/internal/http/api/control/endpoints"
)

// RegisterRoutes sets up all application routes
func RegisterRoutes(r *gin.Engine, cfg *config.Config, coordinator controlapi.Coordinator) error {
	// CORS
	r.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool { return true },
		AllowMethods: []string{
			"GET",
			"POST",
			"PUT",
			"OPTIONS",
		},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Authorization",
			"Accept",
		},
		ExposeHeaders: []string{
			"Content-Length",
		},
		AllowCredentials: false,
	}))

	if err := api.MountGroup(r, api.GroupConfig{Prefix: ""}, controlapi.HealthModule()); err != nil {
		return err
	}

	if err := api.MountGroup(r, api.GroupConfig{
		Prefix: "/api",
		Auth:   false,
	},
		authapi.AuthPublicModule(cfg.JWTSecret, cfg.AdminPasswordHash),
	); err != nil {
		return err
	}

	if !cfg.UseSpaces {
		r.Static("/media", cfg.MediaDir)
	}

	return api.MountGroup(r, api.GroupConfig{
		Prefix:    "/api",
		Auth:      true,
		SecretKey: cfg.JWTSecret,
	},
		controlapi.ControlModule(coordinator),
	)
}
