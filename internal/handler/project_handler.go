package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"spmagent/internal/apperr"
	"spmagent/internal/model"
	"spmagent/internal/roadmap"
	"spmagent/internal/service/project"
	"spmagent/pkg/logger"
)

// IdempotencyHeader lets clients retry roadmap creation without creating duplicates.
const IdempotencyHeader = "Idempotency-Key"

type ProjectService interface {
	Create(ctx context.Context, userID string, in project.CreateInput, progress project.Progress) (*model.ProjectWithRoadmap, error)
	Stream(ctx context.Context, userID string, in project.CreateInput) <-chan project.StreamEvent
	List(ctx context.Context, userID string) ([]model.Project, error)
	Get(ctx context.Context, userID, projectID string) (*model.ProjectWithRoadmap, error)
	UpdateTaskStatus(ctx context.Context, userID, projectID, taskID, status string) (*model.TaskUpdate, error)
	Archive(ctx context.Context, userID, projectID string) (*model.Project, error)
	Delete(ctx context.Context, userID, projectID string) error
	Deadlines(ctx context.Context, userID string, limit int) ([]roadmap.DeadlineItem, error)
}

type ProjectHandler struct {
	svc    ProjectService
	logger *zap.Logger
}

func NewProjectHandler(svc ProjectService, logger *zap.Logger) *ProjectHandler {
	return &ProjectHandler{svc: svc, logger: logger}
}

type updateTaskRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *ProjectHandler) Create(c *gin.Context) {
	var in project.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badBody(c, h.logger, err)
		return
	}
	in.IdempotencyKey = c.GetHeader(IdempotencyHeader)

	p, err := h.svc.Create(c.Request.Context(), userID(c), in, nil)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// CreateStream creates a roadmap and reports progress as server-sent events. Every failure,
// including a malformed body, is reported as a single error frame.
func (h *ProjectHandler) CreateStream(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.WithTrace(ctx, h.logger)

	startSSE(c)
	c.Status(http.StatusOK)

	var in project.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		log.Info("Invalid stream request body", zap.Error(err))
		_ = writeSSE(c.Writer, project.StreamEvent{Type: project.EventError, Data: detailBadBody})
		c.Writer.Flush()
		return
	}
	in.IdempotencyKey = c.GetHeader(IdempotencyHeader)

	events := h.svc.Stream(ctx, userID(c), in)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeSSE(c.Writer, ev); err != nil {
				log.Warn("Failed to write stream frame", zap.Error(err))
				return
			}
			c.Writer.Flush()
		case <-ctx.Done():
			log.Info("Stream listener disconnected; roadmap creation continues")
			return
		}
	}
}

func (h *ProjectHandler) List(c *gin.Context) {
	projects, err := h.svc.List(c.Request.Context(), userID(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, projects)
}

func (h *ProjectHandler) Get(c *gin.Context) {
	p, err := h.svc.Get(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *ProjectHandler) UpdateTaskStatus(c *gin.Context) {
	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c, h.logger, err)
		return
	}

	up, err := h.svc.UpdateTaskStatus(c.Request.Context(), userID(c), c.Param("id"), c.Param("taskId"), req.Status)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, up)
}

func (h *ProjectHandler) Archive(c *gin.Context) {
	p, err := h.svc.Archive(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *ProjectHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Project deleted successfully.", "success": true})
}

func (h *ProjectHandler) Deadlines(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(c, h.logger, apperr.Validation("limit must be a positive integer."))
			return
		}
		limit = n
	}

	items, err := h.svc.Deadlines(c.Request.Context(), userID(c), limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, items)
}
