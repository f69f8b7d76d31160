package handlers

import (
	"context"

	"go.uber.org/zap"

	"github.com/opsflow/opsflow/pkg/model"
)

// WorkflowCreatedHandler seeds a REQUESTED document record for every
// required rule of the workflow's definition. Redelivery is harmless: rules
// that already have a record are skipped.
type WorkflowCreatedHandler struct {
	deps Deps
}

func (h *WorkflowCreatedHandler) Handle(ctx context.Context, event model.Event) error {
	workflow, err := h.deps.Workflows.GetByID(ctx, event.ObjectID)
	if err != nil {
		return err
	}

	rules, err := h.deps.Definitions.ListDocumentRules(ctx, workflow.WorkflowDefinitionID, workflow.WorkflowDefinitionVersion)
	if err != nil {
		return err
	}

	existing, err := h.deps.Documents.ListByWorkflowID(ctx, workflow.ID)
	if err != nil {
		return err
	}

	requested := make(map[string]bool, len(existing))
	for _, doc := range existing {
		requested[doc.DocumentDefinitionID] = true
	}

	for _, rule := range rules {
		if !rule.Required || requested[rule.DocumentDefinitionID] {
			continue
		}
		doc := &model.WorkflowDocument{
			WorkflowID: workflow.ID,
			DocumentRecord: model.DocumentRecord{
				DocumentDefinitionID: rule.DocumentDefinitionID,
				Status:               model.DocumentRequested,
				Requested:            event.Occurred,
				RequestedBy:          event.Actor,
			},
		}
		if err := h.deps.Documents.Create(ctx, doc); err != nil {
			return err
		}
		h.deps.Logger.Info("requested required document",
			zap.String("workflow_id", workflow.ID.String()),
			zap.String("document_definition_id", rule.DocumentDefinitionID),
		)
	}

	return h.deps.recompute(ctx, event, workflow)
}

// WorkflowStatusChangedHandler forwards the status change to the definition's
// workflow engine and recomputes document obligations.
type WorkflowStatusChangedHandler struct {
	deps Deps
}

func (h *WorkflowStatusChangedHandler) Handle(ctx context.Context, event model.Event) error {
	workflow, err := h.deps.Workflows.GetByID(ctx, event.ObjectID)
	if err != nil {
		return err
	}

	definition, err := h.deps.Definitions.GetWorkflowDefinition(ctx, workflow.WorkflowDefinitionID, workflow.WorkflowDefinitionVersion)
	if err != nil {
		return err
	}

	eng, err := h.deps.Engines.Resolve(definition.EngineID)
	if err != nil {
		return err
	}

	if err := eng.HandleStatusChange(ctx, workflow.ID, string(workflow.Status)); err != nil {
		return err
	}

	return h.deps.recompute(ctx, event, workflow)
}
