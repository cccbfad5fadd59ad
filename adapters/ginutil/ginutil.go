// Package ginutil holds the small shared pieces of the gin surface:
// canonical error responses, rate-limit gating and the context keys the
// auth middleware populates.
package ginutil

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/netpass/ratelimit"
)

// Context keys set by the auth middleware.
const (
	CtxUserID   = "auth.user_id"
	CtxOperator = "auth.operator"
)

// UserID returns the authenticated caller's id, as supplied by the external
// auth provider's token.
func UserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(CtxUserID)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// Operator returns the admin identity for audit attribution.
func Operator(c *gin.Context) (string, bool) {
	v, ok := c.Get(CtxOperator)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// AllowNamed gates the request through the limiter, keyed by user id when
// authenticated, client IP otherwise. A nil limiter allows everything.
func AllowNamed(c *gin.Context, rl ratelimit.Limiter, bucket string) bool {
	if rl == nil {
		return true
	}
	key, ok := UserID(c)
	if !ok {
		key = c.ClientIP()
	}
	allowed, err := rl.AllowNamed(bucket, key)
	if err != nil {
		// Fail open: a broken limiter should not take the portal down.
		return true
	}
	return allowed
}

func BadRequest(c *gin.Context, code string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": code})
}

func Unauthorized(c *gin.Context, code string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": code})
}

func Forbidden(c *gin.Context, code string) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": code})
}

func NotFound(c *gin.Context, code string) {
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": code})
}

func Conflict(c *gin.Context, code string) {
	c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": code})
}

func TooMany(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
}

func BadGateway(c *gin.Context, code string) {
	c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": code})
}

func ServerErr(c *gin.Context, code string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": code})
}
