package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opsflow/opsflow/pkg/model"
	"github.com/opsflow/opsflow/pkg/resolver"
)

type WorkflowSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Workflow, error)
}

type RequirementResolver interface {
	Resolve(ctx context.Context, definitionID string, version int, workflowID uuid.UUID, now time.Time) (resolver.Result, error)
}

// RequirementHandler reports a workflow's document obligations on demand,
// the same computation the event handlers run asynchronously.
type RequirementHandler struct {
	workflows WorkflowSource
	resolver  RequirementResolver
	logger    *zap.Logger
}

func NewRequirementHandler(workflows WorkflowSource, res RequirementResolver, logger *zap.Logger) *RequirementHandler {
	return &RequirementHandler{workflows: workflows, resolver: res, logger: logger}
}

func (h *RequirementHandler) Get(c *gin.Context) {
	workflowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workflow id"})
		return
	}

	workflow, err := h.workflows.GetByID(c.Request.Context(), workflowID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "workflow not found"})
		return
	}

	result, err := h.resolver.Resolve(
		c.Request.Context(),
		workflow.WorkflowDefinitionID,
		workflow.WorkflowDefinitionVersion,
		workflow.ID,
		time.Now(),
	)
	if err != nil {
		h.logger.Error("failed to resolve requirements",
			zap.String("workflow_id", workflowID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve requirements"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"workflow_id": workflow.ID.String(),
		"can_proceed": result.CanProceed(),
		"result":      result,
	})
}
