package postgres

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opsflow/opsflow/pkg/model"
)

type WorkflowDocumentRepository struct {
	db *gorm.DB
}

func NewWorkflowDocumentRepository(db *gorm.DB) *WorkflowDocumentRepository {
	return &WorkflowDocumentRepository{db: db}
}

func (r *WorkflowDocumentRepository) Create(ctx context.Context, doc *model.WorkflowDocument) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *WorkflowDocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.WorkflowDocument, error) {
	var doc model.WorkflowDocument
	err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *WorkflowDocumentRepository) ListByWorkflowID(ctx context.Context, workflowID uuid.UUID) ([]model.WorkflowDocument, error) {
	var docs []model.WorkflowDocument
	err := r.db.WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Order("document_definition_id ASC, requested ASC").
		Find(&docs).Error
	return docs, err
}

// Update persists a record after a status machine transition. Full save keeps
// the timestamp/by field groups consistent with the new status.
func (r *WorkflowDocumentRepository) Update(ctx context.Context, doc *model.WorkflowDocument) error {
	return r.db.WithContext(ctx).Save(doc).Error
}

type ProcessDocumentRepository struct {
	db *gorm.DB
}

func NewProcessDocumentRepository(db *gorm.DB) *ProcessDocumentRepository {
	return &ProcessDocumentRepository{db: db}
}

func (r *ProcessDocumentRepository) Create(ctx context.Context, doc *model.ProcessDocument) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *ProcessDocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ProcessDocument, error) {
	var doc model.ProcessDocument
	err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *ProcessDocumentRepository) ListByProcessID(ctx context.Context, processID uuid.UUID) ([]model.ProcessDocument, error) {
	var docs []model.ProcessDocument
	err := r.db.WithContext(ctx).
		Where("process_id = ?", processID).
		Order("document_definition_id ASC, requested ASC").
		Find(&docs).Error
	return docs, err
}

func (r *ProcessDocumentRepository) Update(ctx context.Context, doc *model.ProcessDocument) error {
	return r.db.WithContext(ctx).Save(doc).Error
}
