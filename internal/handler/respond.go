package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"spmagent/internal/apperr"
	"spmagent/pkg/logger"
)

// UserIDKey is the gin context key under which the auth middleware stores the caller's id.
const UserIDKey = "user_id"

const detailBadBody = "Invalid request body."

func userID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// writeError maps err to a status and a {"detail": ...} body. Server-side failures are logged
// with the full error; the client only sees the sentence.
func writeError(c *gin.Context, log *zap.Logger, err error) {
	status, detail := apperr.Status(err)
	l := logger.WithTrace(c.Request.Context(), log)
	if status >= http.StatusInternalServerError {
		l.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err),
		)
	} else {
		l.Info("Request rejected",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.String("reason", err.Error()),
		)
	}
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

func badBody(c *gin.Context, log *zap.Logger, err error) {
	logger.WithTrace(c.Request.Context(), log).Info("Invalid request body",
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": detailBadBody})
}
