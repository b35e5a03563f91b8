// Package middleware holds the gin middleware and gRPC interceptors shared by the servers.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"device-session-gate/internal/security"
)

const bearerPrefix = "bearer "

// CodeUnauthorized is the error code returned when the admin bearer token is missing or invalid.
const CodeUnauthorized = "unauthorized"

// AdminAuth returns a middleware that validates the admin Bearer token from the Authorization
// header and stores the admin subject in the request context. Requests without a valid token
// are aborted with 401.
func AdminAuth(tokens *security.AdminTokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearer(c.GetHeader("Authorization"))
		if token == "" {
			abortUnauthorized(c)
			return
		}
		subject, err := tokens.Validate(token)
		if err != nil {
			abortUnauthorized(c)
			return
		}
		c.Request = c.Request.WithContext(WithAdmin(c.Request.Context(), subject))
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": "missing or invalid authorization",
		"code":  CodeUnauthorized,
	})
}

// extractBearer returns the Bearer token from an Authorization header value, or "" if missing or malformed.
func extractBearer(header string) string {
	v := strings.TrimSpace(header)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
