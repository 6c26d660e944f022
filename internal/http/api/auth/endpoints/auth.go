package endpoints

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/athan/internal/http/api"
	"github.com/Nixie-Tech-LLC/athan/internal/http/api/auth/packets"
	"github.com/Nixie-Tech-LLC/athan/internal/http/middleware"
)

// Subject is the token subject of the operator.
const Subject = "admin"

// AuthPublicModule mounts the public token endpoint (/auth/token)
func AuthPublicModule(jwtSecret, passwordHash string) api.Module {
	ctl := newTokenIssuer(jwtSecret, passwordHash)
	return api.ModuleFunc(func(c *api.Controller) {
		c.PUBLIC_POST("/auth/token", ctl.issueToken)
	})
}

type TokenIssuer struct {
	jwtSecret    string
	passwordHash string
}

func newTokenIssuer(secret, hash string) *TokenIssuer {
	return &TokenIssuer{jwtSecret: secret, passwordHash: hash}
}

// POST /api/auth/token
func (t *TokenIssuer) issueToken(ctx *gin.Context) (any, *api.APIError) {
	var request packets.TokenRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		return nil, &api.APIError{Code: http.StatusBadRequest, Message: err.Error()}
	}

	if !middleware.CheckPassword(t.passwordHash, request.Password) {
		log.Warn().Str("client_ip", ctx.ClientIP()).Err(middleware.ErrInvalidCredentials).Msg("token request rejected")
		return nil, &api.APIError{Code: http.StatusUnauthorized, Message: "invalid credentials"}
	}

	token, err := middleware.GenerateJWT(Subject, t.jwtSecret)
	if err != nil {
		log.Error().Err(err).Msg("could not sign token")
		return nil, &api.APIError{Code: http.StatusInternalServerError, Message: "could not generate token"}
	}

	return packets.TokenResponse{Token: token, ExpiresIn: int64(middleware.TokenTTL.Seconds())}, nil
}
