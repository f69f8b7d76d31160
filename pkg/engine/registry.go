package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var ErrUnknownEngine = errors.New("unknown workflow engine")

// WorkflowEngine is the opaque business-logic collaborator invoked when a
// workflow changes status. Implementations are registered statically under
// an engine id; there is no runtime class loading.
type WorkflowEngine interface {
	HandleStatusChange(ctx context.Context, workflowID uuid.UUID, status string) error
}

type Registry struct {
	mu      sync.RWMutex
	engines map[string]WorkflowEngine
}

func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]WorkflowEngine)}
}

func (r *Registry) Register(engineID string, engine WorkflowEngine) error {
	if engineID == "" {
		return errors.New("engine id is required")
	}
	if engine == nil {
		return fmt.Errorf("engine %q is nil", engineID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.engines[engineID]; exists {
		return fmt.Errorf("engine %q already registered", engineID)
	}
	r.engines[engineID] = engine
	return nil
}

func (r *Registry) Resolve(engineID string) (WorkflowEngine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	engine, ok := r.engines[engineID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, engineID)
	}
	return engine, nil
}

// Validate rejects unknown engine ids. Callers run this at startup against
// the engine ids referenced by workflow definitions, so a missing engine
// fails the process before any event is claimed.
func (r *Registry) Validate(engineIDs []string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range engineIDs {
		if _, ok := r.engines[id]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownEngine, id)
		}
	}
	return nil
}
