package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// is returned when the admin password doesn’t match.
var ErrInvalidCredentials = errors.New("invalid password")

// uses bcrypt to hash a plaintext password.
func HashPassword(plain string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	return string(bytes), err
}

// compares a bcrypt hash with the plaintext.
func CheckPassword(hash, plain string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	return err == nil
}

// retrieves the token subject from Gin context (after JWTMiddleware has run).
func GetSubject(c *gin.Context) (string, bool) {
	v, exists := c.Get(subjectKey)
	if !exists {
		return "", false
	}
	subject, ok := v.(string)
	return subject, ok
}
