// Package auth authenticates admin requests for mutating endpoints.
//
// Admins present a shared secret; the derived identity (secret hash
// prefix plus client IP) keys the admin rate limiter. Session handling
// for the web UI lives outside this service.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyAdminIdentity is the gin context key holding the
	// authenticated admin identity.
	ContextKeyAdminIdentity = "adminIdentity"

	// HeaderAdminSecret is the primary auth header. A Bearer token in
	// Authorization is accepted as an alternative.
	HeaderAdminSecret = "X-Admin-Secret"
)

// RequireAdmin rejects requests that do not carry the configured admin
// secret. Comparison is constant-time.
func RequireAdmin(secret string) gin.HandlerFunc {
	want := []byte(secret)

	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Admin API is not configured.",
			})
			return
		}

		presented := c.GetHeader(HeaderAdminSecret)
		if presented == "" {
			presented = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		if presented == "" || subtle.ConstantTimeCompare([]byte(presented), want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Valid admin credentials required.",
			})
			return
		}

		c.Set(ContextKeyAdminIdentity, Identity(presented, c.ClientIP()))
		c.Next()
	}
}

// Identity derives a stable admin identity from the presented secret and
// client IP. The secret itself never appears in logs or limiter keys.
func Identity(secret, clientIP string) string {
	sum := sha256.Sum256([]byte(secret))
	return "admin:" + hex.EncodeToString(sum[:])[:12] + "@" + clientIP
}

// AdminIdentity returns the authenticated admin identity from context.
func AdminIdentity(c *gin.Context) string {
	return c.GetString(ContextKeyAdminIdentity)
}
