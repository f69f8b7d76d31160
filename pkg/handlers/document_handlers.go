package handlers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/opsflow/opsflow/pkg/model"
)

// DocumentProvidedHandler auto-verifies submissions for rules without a
// verification step, then recomputes obligations. Redelivery finds the
// record already VERIFIED and only recomputes.
type DocumentProvidedHandler struct {
	deps Deps
}

func (h *DocumentProvidedHandler) Handle(ctx context.Context, event model.Event) error {
	doc, workflow, err := h.deps.workflowForDocument(ctx, event)
	if err != nil {
		return err
	}

	rule, err := h.ruleFor(ctx, workflow, doc.DocumentDefinitionID)
	if err != nil {
		return err
	}

	if rule != nil && !rule.RequiresVerification && doc.Status == model.DocumentProvided {
		if err := h.deps.Machine.Verify(&doc.DocumentRecord, systemActor, time.Now()); err != nil {
			return err
		}
		if err := h.deps.Documents.Update(ctx, doc); err != nil {
			return err
		}
		h.deps.Logger.Info("auto-verified document without verification step",
			zap.String("workflow_document_id", doc.ID.String()),
			zap.String("document_definition_id", doc.DocumentDefinitionID),
		)
	}

	return h.deps.recompute(ctx, event, workflow)
}

func (h *DocumentProvidedHandler) ruleFor(ctx context.Context, workflow *model.Workflow, documentDefinitionID string) (*model.WorkflowDefinitionDocumentDefinition, error) {
	rules, err := h.deps.Definitions.ListDocumentRules(ctx, workflow.WorkflowDefinitionID, workflow.WorkflowDefinitionVersion)
	if err != nil {
		return nil, err
	}
	for i := range rules {
		if rules[i].DocumentDefinitionID == documentDefinitionID {
			return &rules[i], nil
		}
	}
	// A record without a matching rule is possible when definitions are
	// re-versioned; it only affects classification, not processing.
	return nil, nil
}

// DocumentFinalizedHandler recomputes obligations after a verification or
// waiver; both are pure requirement changes with no follow-up transition.
type DocumentFinalizedHandler struct {
	deps Deps
}

func (h *DocumentFinalizedHandler) Handle(ctx context.Context, event model.Event) error {
	_, workflow, err := h.deps.workflowForDocument(ctx, event)
	if err != nil {
		return err
	}
	return h.deps.recompute(ctx, event, workflow)
}

// DocumentRejectedHandler reopens the rejected record for resubmission when
// policy allows it, then recomputes. With resubmission disabled the record
// stays terminal and the requirement surfaces as outstanding.
type DocumentRejectedHandler struct {
	deps Deps
}

func (h *DocumentRejectedHandler) Handle(ctx context.Context, event model.Event) error {
	doc, workflow, err := h.deps.workflowForDocument(ctx, event)
	if err != nil {
		return err
	}

	if doc.Status == model.DocumentRejected && h.deps.Machine.CanTransition(model.DocumentRejected, model.DocumentRequested) {
		if err := h.deps.Machine.Reopen(&doc.DocumentRecord, systemActor, time.Now()); err != nil {
			return err
		}
		if err := h.deps.Documents.Update(ctx, doc); err != nil {
			return err
		}
		h.deps.Logger.Info("reopened rejected document for resubmission",
			zap.String("workflow_document_id", doc.ID.String()),
			zap.String("document_definition_id", doc.DocumentDefinitionID),
		)
	}

	return h.deps.recompute(ctx, event, workflow)
}
