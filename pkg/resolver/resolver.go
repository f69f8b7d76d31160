package resolver

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opsflow/opsflow/pkg/model"
)

// Reason explains why an obligation is outstanding.
type Reason string

const (
	ReasonNotRequested         Reason = "not requested"
	ReasonAwaitingSubmission   Reason = "awaiting submission"
	ReasonAwaitingVerification Reason = "awaiting verification"
	ReasonExpired              Reason = "expired, resubmission required"
	ReasonRejected             Reason = "rejected, resubmission required"
)

// Item classifies one document rule against the workflow's records.
type Item struct {
	DocumentDefinitionID string     `json:"document_definition_id"`
	Required             bool       `json:"required"`
	Reason               Reason     `json:"reason,omitempty"`
	DocumentRecordID     *uuid.UUID `json:"document_record_id,omitempty"`
	ExpiresAt            *time.Time `json:"expires_at,omitempty"`
}

// Conflict reports more than one live record for a singular rule. It is a
// data state, not an error: the most recently requested record wins and the
// older ones are treated as superseded.
type Conflict struct {
	DocumentDefinitionID string      `json:"document_definition_id"`
	WinnerID             uuid.UUID   `json:"winner_id"`
	SupersededIDs        []uuid.UUID `json:"superseded_ids"`
}

type Result struct {
	Satisfied           []Item     `json:"satisfied"`
	Outstanding         []Item     `json:"outstanding"`
	OptionalOutstanding []Item     `json:"optional_outstanding"`
	Conflicts           []Conflict `json:"conflicts"`
}

// CanProceed reports whether the workflow is unblocked: no required
// obligation is outstanding. Optional obligations and resolved conflicts
// never block.
func (r Result) CanProceed() bool {
	return len(r.Outstanding) == 0
}

type RuleSource interface {
	ListDocumentRules(ctx context.Context, definitionID string, version int) ([]model.WorkflowDefinitionDocumentDefinition, error)
}

type DocumentSource interface {
	ListByWorkflowID(ctx context.Context, workflowID uuid.UUID) ([]model.WorkflowDocument, error)
}

type Resolver struct {
	rules     RuleSource
	documents DocumentSource
	logger    *zap.Logger
}

func NewResolver(rules RuleSource, documents DocumentSource, logger *zap.Logger) *Resolver {
	return &Resolver{rules: rules, documents: documents, logger: logger}
}

// Resolve reconciles the definition's document rules against the workflow's
// document records as of now. Classification per rule:
//
//   - no record and required       → outstanding "not requested"
//   - all records rejected         → outstanding "rejected, resubmission required"
//   - REQUESTED                    → outstanding "awaiting submission"
//   - PROVIDED, verification step  → outstanding "awaiting verification"
//   - PROVIDED, no verification    → satisfied (subject to validity window)
//   - VERIFIED within validity     → satisfied
//   - VERIFIED past expiry         → outstanding "expired, resubmission required"
//   - WAIVED                       → satisfied
//
// Optional rules are classified the same way but reported separately and
// never block. The validity window is calendar-aware and inclusive of the
// expiry instant; the issue date is the provided timestamp.
func (r *Resolver) Resolve(ctx context.Context, definitionID string, version int, workflowID uuid.UUID, now time.Time) (Result, error) {
	rules, err := r.rules.ListDocumentRules(ctx, definitionID, version)
	if err != nil {
		return Result{}, fmt.Errorf("load document rules: %w", err)
	}

	docs, err := r.documents.ListByWorkflowID(ctx, workflowID)
	if err != nil {
		return Result{}, fmt.Errorf("load workflow documents: %w", err)
	}

	byDefinition := make(map[string][]model.WorkflowDocument)
	for _, doc := range docs {
		byDefinition[doc.DocumentDefinitionID] = append(byDefinition[doc.DocumentDefinitionID], doc)
	}

	sort.Slice(rules, func(i, j int) bool {
		return rules[i].DocumentDefinitionID < rules[j].DocumentDefinitionID
	})

	var result Result
	for _, rule := range rules {
		r.classify(rule, byDefinition[rule.DocumentDefinitionID], now, &result)
	}

	sortItems(result.Satisfied)
	sortItems(result.Outstanding)
	sortItems(result.OptionalOutstanding)
	sort.Slice(result.Conflicts, func(i, j int) bool {
		return result.Conflicts[i].DocumentDefinitionID < result.Conflicts[j].DocumentDefinitionID
	})

	return result, nil
}

func (r *Resolver) classify(rule model.WorkflowDefinitionDocumentDefinition, entries []model.WorkflowDocument, now time.Time, result *Result) {
	item := Item{
		DocumentDefinitionID: rule.DocumentDefinitionID,
		Required:             rule.Required,
	}

	if len(entries) == 0 {
		item.Reason = ReasonNotRequested
		appendOutstanding(result, item)
		return
	}

	live := make([]model.WorkflowDocument, 0, len(entries))
	for _, entry := range entries {
		if entry.Live() {
			live = append(live, entry)
		}
	}

	if len(live) == 0 {
		latest := mostRecentlyRequested(entries)
		item.Reason = ReasonRejected
		item.DocumentRecordID = &latest.ID
		appendOutstanding(result, item)
		return
	}

	winner := mostRecentlyRequested(live)
	if rule.Unique && len(live) > 1 {
		conflict := Conflict{
			DocumentDefinitionID: rule.DocumentDefinitionID,
			WinnerID:             winner.ID,
		}
		for _, entry := range live {
			if entry.ID != winner.ID {
				conflict.SupersededIDs = append(conflict.SupersededIDs, entry.ID)
			}
		}
		result.Conflicts = append(result.Conflicts, conflict)
		if r.logger != nil {
			r.logger.Warn("singular document rule has multiple live records",
				zap.String("document_definition_id", rule.DocumentDefinitionID),
				zap.Int("live_records", len(live)),
			)
		}
	}

	item.DocumentRecordID = &winner.ID

	switch winner.Status {
	case model.DocumentRequested:
		item.Reason = ReasonAwaitingSubmission
		appendOutstanding(result, item)
	case model.DocumentProvided:
		if rule.RequiresVerification {
			item.Reason = ReasonAwaitingVerification
			appendOutstanding(result, item)
			return
		}
		r.classifyValidity(rule, winner, now, item, result)
	case model.DocumentVerified:
		r.classifyValidity(rule, winner, now, item, result)
	case model.DocumentWaived:
		result.Satisfied = append(result.Satisfied, item)
	}
}

// classifyValidity finishes classification of a record that would otherwise
// satisfy the rule, applying the validity window when one is configured.
func (r *Resolver) classifyValidity(rule model.WorkflowDefinitionDocumentDefinition, doc model.WorkflowDocument, now time.Time, item Item, result *Result) {
	if !rule.HasValidityPeriod() || doc.Provided == nil {
		result.Satisfied = append(result.Satisfied, item)
		return
	}

	expiry, _ := rule.ExpiryFrom(*doc.Provided)
	if now.After(expiry) {
		item.Reason = ReasonExpired
		appendOutstanding(result, item)
		return
	}

	item.ExpiresAt = &expiry
	result.Satisfied = append(result.Satisfied, item)
}

func appendOutstanding(result *Result, item Item) {
	if item.Required {
		result.Outstanding = append(result.Outstanding, item)
		return
	}
	result.OptionalOutstanding = append(result.OptionalOutstanding, item)
}

// mostRecentlyRequested picks the winning record among several for the same
// definition. Requested timestamps break ties; ids keep the pick stable when
// they collide.
func mostRecentlyRequested(entries []model.WorkflowDocument) model.WorkflowDocument {
	winner := entries[0]
	for _, entry := range entries[1:] {
		if entry.Requested.After(winner.Requested) {
			winner = entry
			continue
		}
		if entry.Requested.Equal(winner.Requested) && entry.ID.String() > winner.ID.String() {
			winner = entry
		}
	}
	return winner
}

func sortItems(items []Item) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].DocumentDefinitionID < items[j].DocumentDefinitionID
	})
}
