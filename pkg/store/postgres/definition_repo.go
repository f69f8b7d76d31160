package postgres

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opsflow/opsflow/pkg/model"
)

type DefinitionRepository struct {
	db *gorm.DB
}

func NewDefinitionRepository(db *gorm.DB) *DefinitionRepository {
	return &DefinitionRepository{db: db}
}

func (r *DefinitionRepository) GetWorkflowDefinition(ctx context.Context, id string, version int) (*model.WorkflowDefinition, error) {
	var def model.WorkflowDefinition
	err := r.db.WithContext(ctx).
		First(&def, "id = ? AND version = ?", id, version).Error
	if err != nil {
		return nil, err
	}
	return &def, nil
}

// ListDocumentRules returns the document rules for one definition version,
// ordered by document definition id for stable resolver output.
func (r *DefinitionRepository) ListDocumentRules(ctx context.Context, definitionID string, version int) ([]model.WorkflowDefinitionDocumentDefinition, error) {
	var rules []model.WorkflowDefinitionDocumentDefinition
	err := r.db.WithContext(ctx).
		Where("workflow_definition_id = ? AND workflow_definition_version = ?", definitionID, version).
		Order("document_definition_id ASC").
		Find(&rules).Error
	return rules, err
}

// ListEngineIDs returns the distinct engine ids referenced by any workflow
// definition; the worker validates them against the engine registry at
// startup.
func (r *DefinitionRepository) ListEngineIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.WorkflowDefinition{}).
		Distinct("engine_id").
		Pluck("engine_id", &ids).Error
	return ids, err
}

type WorkflowRepository struct {
	db *gorm.DB
}

func NewWorkflowRepository(db *gorm.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

func (r *WorkflowRepository) Create(ctx context.Context, workflow *model.Workflow) error {
	return r.db.WithContext(ctx).Create(workflow).Error
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Workflow, error) {
	var workflow model.Workflow
	err := r.db.WithContext(ctx).First(&workflow, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &workflow, nil
}

func (r *WorkflowRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.WorkflowStatus) error {
	return r.db.WithContext(ctx).
		Model(&model.Workflow{}).
		Where("id = ?", id).
		Update("status", status).Error
}
