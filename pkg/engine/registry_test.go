package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

type stubEngine struct{}

func (stubEngine) HandleStatusChange(ctx context.Context, workflowID uuid.UUID, status string) error {
	return nil
}

func TestRegisterAndResolve(t *testing.T) {
	registry := NewRegistry()

	if err := registry.Register("camunda", stubEngine{}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	engine, err := registry.Resolve("camunda")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if engine == nil {
		t.Fatal("expected engine, got nil")
	}
}

func TestResolveUnknownEngine(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Resolve("missing")
	if !errors.Is(err, ErrUnknownEngine) {
		t.Fatalf("expected ErrUnknownEngine, got %v", err)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	registry := NewRegistry()

	if err := registry.Register("camunda", stubEngine{}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if err := registry.Register("camunda", stubEngine{}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestValidateRejectsUnknownIDsAtStartup(t *testing.T) {
	registry := NewRegistry()

	if err := registry.Register("noop", stubEngine{}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	if err := registry.Validate([]string{"noop"}); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if err := registry.Validate([]string{"noop", "camunda"}); !errors.Is(err, ErrUnknownEngine) {
		t.Fatalf("expected ErrUnknownEngine, got %v", err)
	}
}
