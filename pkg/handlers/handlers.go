package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opsflow/opsflow/pkg/docstatus"
	"github.com/opsflow/opsflow/pkg/engine"
	"github.com/opsflow/opsflow/pkg/metrics"
	"github.com/opsflow/opsflow/pkg/model"
	"github.com/opsflow/opsflow/pkg/queue"
	"github.com/opsflow/opsflow/pkg/resolver"
)

// systemActor marks mutations applied by event handlers rather than users.
const systemActor = "system"

type WorkflowSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Workflow, error)
}

type WorkflowDocumentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.WorkflowDocument, error)
	ListByWorkflowID(ctx context.Context, workflowID uuid.UUID) ([]model.WorkflowDocument, error)
	Create(ctx context.Context, doc *model.WorkflowDocument) error
	Update(ctx context.Context, doc *model.WorkflowDocument) error
}

type DefinitionSource interface {
	GetWorkflowDefinition(ctx context.Context, id string, version int) (*model.WorkflowDefinition, error)
	ListDocumentRules(ctx context.Context, definitionID string, version int) ([]model.WorkflowDefinitionDocumentDefinition, error)
}

type RequirementResolver interface {
	Resolve(ctx context.Context, definitionID string, version int, workflowID uuid.UUID, now time.Time) (resolver.Result, error)
}

type Notifier interface {
	Notify(ctx context.Context, event model.Event, detail map[string]interface{}) error
}

type Deps struct {
	Workflows   WorkflowSource
	Documents   WorkflowDocumentStore
	Definitions DefinitionSource
	Resolver    RequirementResolver
	Machine     *docstatus.Machine
	Engines     *engine.Registry
	Notifier    Notifier
	Logger      *zap.Logger
}

// RegisterAll wires every handler the worker dispatches into the processor.
func RegisterAll(p *queue.Processor, deps Deps) error {
	workflowHandlers := map[model.EventType]queue.Handler{
		model.EventWorkflowCreated:       &WorkflowCreatedHandler{deps: deps},
		model.EventWorkflowStatusChanged: &WorkflowStatusChangedHandler{deps: deps},
	}
	for eventType, handler := range workflowHandlers {
		if err := p.Register(model.ObjectWorkflow, eventType, handler); err != nil {
			return err
		}
	}

	documentHandlers := map[model.EventType]queue.Handler{
		model.EventDocumentProvided: &DocumentProvidedHandler{deps: deps},
		model.EventDocumentVerified: &DocumentFinalizedHandler{deps: deps},
		model.EventDocumentRejected: &DocumentRejectedHandler{deps: deps},
		model.EventDocumentWaived:   &DocumentFinalizedHandler{deps: deps},
	}
	for eventType, handler := range documentHandlers {
		if err := p.Register(model.ObjectWorkflowDocument, eventType, handler); err != nil {
			return err
		}
	}

	return nil
}

// recompute resolves the workflow's document obligations, refreshes the
// outstanding gauge and notifies interested parties. It is safe to run any
// number of times for the same event.
func (d Deps) recompute(ctx context.Context, event model.Event, workflow *model.Workflow) error {
	result, err := d.Resolver.Resolve(ctx, workflow.WorkflowDefinitionID, workflow.WorkflowDefinitionVersion, workflow.ID, time.Now())
	if err != nil {
		return err
	}

	metrics.OutstandingDocuments.
		WithLabelValues(workflow.TenantID.String(), workflow.ID.String()).
		Set(float64(len(result.Outstanding)))

	if len(result.Conflicts) > 0 {
		d.Logger.Warn("document requirement conflicts detected",
			zap.String("workflow_id", workflow.ID.String()),
			zap.Int("conflicts", len(result.Conflicts)),
		)
	}

	detail := map[string]interface{}{
		"workflow_id":          workflow.ID.String(),
		"outstanding":          len(result.Outstanding),
		"optional_outstanding": len(result.OptionalOutstanding),
		"satisfied":            len(result.Satisfied),
		"conflicts":            len(result.Conflicts),
		"can_proceed":          result.CanProceed(),
	}
	return d.Notifier.Notify(ctx, event, detail)
}

func (d Deps) workflowForDocument(ctx context.Context, event model.Event) (*model.WorkflowDocument, *model.Workflow, error) {
	doc, err := d.Documents.GetByID(ctx, event.ObjectID)
	if err != nil {
		return nil, nil, err
	}
	workflow, err := d.Workflows.GetByID(ctx, doc.WorkflowID)
	if err != nil {
		return nil, nil, err
	}
	return doc, workflow, nil
}
