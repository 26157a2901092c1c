package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"spmagent/internal/apperr"
	"spmagent/internal/handler"
	"spmagent/pkg/logger"
	"spmagent/pkg/metrics"
	"spmagent/pkg/trace"
	"spmagent/pkg/util"
)

// Authenticator validates a bearer access token.
type Authenticator interface {
	Authenticate(token string) (*util.Claims, error)
}

// TraceMiddleware reads or generates X-Trace-ID, stores it in the request context
// and echoes it on the response.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := trace.FromHeader(c.GetHeader(trace.Header))
		c.Request = c.Request.WithContext(trace.WithContext(c.Request.Context(), traceID))
		c.Header(trace.Header, traceID)
		c.Next()
	}
}

// RequestLogger logs one line per request and records its duration.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()
		metrics.RecordHTTPRequestDuration(c.Request.Method, path, strconv.Itoa(status), elapsed)

		logger.WithTrace(c.Request.Context(), log).Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", elapsed),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// CORS allows the configured frontend origin; "*" allows any.
func CORS(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqOrigin := c.GetHeader("Origin")
		if reqOrigin != "" && (origin == "*" || reqOrigin == origin) {
			c.Header("Access-Control-Allow-Origin", reqOrigin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, Idempotency-Key, "+trace.Header)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Expose-Headers", trace.Header)
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// AuthMiddleware requires a valid access token and stores the caller's id for handlers.
func AuthMiddleware(auth Authenticator, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := auth.Authenticate(util.ExtractToken(c.Request))
		if err != nil {
			logger.WithTrace(c.Request.Context(), log).Info("Unauthorized request",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": apperr.DetailAuth})
			return
		}

		c.Set(handler.UserIDKey, claims.Subject)
		c.Next()
	}
}

// RateLimit rejects callers that exceed their per-owner budget. A nil limiter disables it.
func RateLimit(l *OwnerLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l != nil && !l.Allow(c.GetString(handler.UserIDKey)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"detail": "Too many roadmap requests. Please wait and try again.",
			})
			return
		}
		c.Next()
	}
}
