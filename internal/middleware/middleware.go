// Package middleware rebuilds the Gin middleware chain the teacher wired
// in from lib-common/middleware, regrounded on gin-contrib/cors plus
// hand-rolled equivalents for the pieces that had no external package
// (recovery, request id, security headers) — the teacher always reached
// for a concrete middleware function per concern, never ad-hoc inline
// logic in main().
package middleware

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fluxpay/engine/internal/tenant"
)

// RequestIDHeader is the header carrying the per-request trace id.
const RequestIDHeader = "X-Request-Id"

// Recovery converts a panic in a handler into a 500 SYS error instead of
// crashing the process, logging the panic value and stack.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"success": false,
					"error":   gin.H{"code": "SYS_001", "message": "internal server error"},
				})
			}
		}()
		c.Next()
	}
}

// Logging logs each request at Info with latency, status, and request id.
func Logging(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString(RequestIDHeader)),
		)
	}
}

// CORS allows cross-origin requests from any configured client app.
func CORS() gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowAllOrigins = true
	cfg.AllowHeaders = append(cfg.AllowHeaders, "X-Tenant-Id", "X-Idempotency-Key", "X-Signature", "X-Nonce")
	return cors.New(cfg)
}

// RequestID assigns a request id (from the inbound header, or freshly
// generated) and stores it both in the Gin context and on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(RequestIDHeader, id)
		c.Writer.Header().Set(RequestIDHeader, id)
		c.Next()
	}
}

// Tenant attaches the X-Tenant-Id header's value to the request context,
// per spec §4.6's "never a process global" scoping rule. Handlers that
// require a tenant call tenant.Require on the resulting context themselves;
// this middleware only propagates what it was given, it does not enforce
// presence.
func Tenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetHeader(tenant.Header)
		ctx := tenant.WithTenant(c.Request.Context(), tenantID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// SecurityHeaders sets a conservative baseline of security headers.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")
		c.Writer.Header().Set("X-Frame-Options", "DENY")
		c.Writer.Header().Set("Referrer-Policy", "no-referrer")
		c.Next()
	}
}
