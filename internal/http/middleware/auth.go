// README: Auth middleware verifying Firebase ID tokens and exposing the caller.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/infra"
)

const (
	ctxCallerUID   = "caller_uid"
	ctxCallerEmail = "caller_email"
	ctxCallerRole  = "caller_role"

	RoleDriver = "driver"
)

// Auth rejects requests without a valid "Bearer <Firebase ID token>" header.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), strings.TrimSpace(raw))
		if err != nil || token == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		role, _ := token.Claims["role"].(string)
		email := token.Email
		if email == "" {
			email, _ = token.Claims["email"].(string)
		}
		c.Set(ctxCallerUID, token.UID)
		c.Set(ctxCallerEmail, email)
		c.Set(ctxCallerRole, role)
		c.Next()
	}
}

// RequireRole must run after Auth.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if CallerRole(c) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": role + " role required"})
			return
		}
		c.Next()
	}
}

func CallerUID(c *gin.Context) string   { return c.GetString(ctxCallerUID) }
func CallerEmail(c *gin.Context) string { return c.GetString(ctxCallerEmail) }

// CallerRole is the "role" custom claim; passengers have none.
func CallerRole(c *gin.Context) string { return c.GetString(ctxCallerRole) }
