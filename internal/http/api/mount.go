package api

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/Nixie-Tech-LLC/athan/internal/http/middleware"
)

// Module is a pluggable feature that attaches its endpoints to a Controller (a gin group).
type Module interface {
	Mount(c *Controller)
}

// ModuleFunc lets you define a Module with a simple function.
type ModuleFunc func(c *Controller)

func (f ModuleFunc) Mount(c *Controller) { f(c) }

// GroupConfig tells the api package how to mount a group.
type GroupConfig struct {
	Prefix     string
	Auth       bool
	SecretKey  string            // required if Auth == true
	Middleware []gin.HandlerFunc // optional additional middleware
}

// ErrMissingSecret is returned by MountGroup for an authenticated group
// without a secret.
var ErrMissingSecret = errors.New("api: auth enabled but secret key is empty")

// MountGroup mounts one or more Modules under a prefix with optional auth.
func MountGroup(parent gin.IRouter, cfg GroupConfig, modules ...Module) error {
	if cfg.Auth && cfg.SecretKey == "" {
		return ErrMissingSecret
	}

	grp := parent.Group(cfg.Prefix)

	// Apply middleware in a deterministic order.
	for _, mw := range cfg.Middleware {
		grp.Use(mw)
	}
	if cfg.Auth {
		grp.Use(middleware.JWTMiddleware(cfg.SecretKey))
	}

	controller := &Controller{Group: grp}
	for _, m := range modules {
		m.Mount(controller)
	}
	return nil
}

// Controller registers endpoints on a group. The plain verbs expect the
// group to be authenticated; PUBLIC_* ones do not look at the token.
type Controller struct {
	Group *gin.RouterGroup
}

func (c *Controller) GET(path string, h HandlerFuncWithAuth) {
	c.Group.GET(path, ResolveEndpointWithAuth(h))
}

func (c *Controller) POST(path string, h HandlerFuncWithAuth) {
	c.Group.POST(path, ResolveEndpointWithAuth(h))
}

func (c *Controller) PUT(path string, h HandlerFuncWithAuth) {
	c.Group.PUT(path, ResolveEndpointWithAuth(h))
}

func (c *Controller) PUBLIC_GET(path string, h HandlerFunc) {
	c.Group.GET(path, ResolveEndpoint(h))
}

func (c *Controller) PUBLIC_POST(path string, h HandlerFunc) {
	c.Group.POST(path, ResolveEndpoint(h))
}
