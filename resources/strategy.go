package resources

import (
	"context"
	"fmt"

	"github.com/goliatone/go-dcb/core"
)

// Dependencies carries already resolved prerequisite records by kind.
type Dependencies map[core.RecordKind]core.Record

// Strategy is the find-or-create recipe for one shared resource.
type Strategy[T any] struct {
	Kind      core.RecordKind
	DependsOn []core.RecordKind
	Find      func(ctx context.Context, deps Dependencies) (T, bool, error)
	Create    func(ctx context.Context, deps Dependencies) (T, error)
	Default   func() T
	ID        func(T) string
}

// FindOrCreate returns the existing resource or provisions it. A create that
// loses a uniqueness race re-runs Find and reports the winner as FOUND.
func (s Strategy[T]) FindOrCreate(ctx context.Context, deps Dependencies) (T, core.ResourceOutcome, error) {
	var zero T
	if s.Find == nil || s.Create == nil {
		return zero, core.ResourceOutcomeError, fmt.Errorf("resources: strategy %s is incomplete", s.Kind)
	}
	for _, dep := range s.DependsOn {
		if _, ok := deps[dep]; !ok {
			return zero, core.ResourceOutcomeError, fmt.Errorf("resources: %s requires %s", s.Kind, dep)
		}
	}

	found, ok, err := s.Find(ctx, deps)
	if err != nil {
		return zero, core.ResourceOutcomeError, fmt.Errorf("resources: find %s: %w", s.Kind, err)
	}
	if ok {
		return found, core.ResourceOutcomeFound, nil
	}

	created, err := s.Create(ctx, deps)
	if err == nil {
		return created, core.ResourceOutcomeCreated, nil
	}
	if !core.IsConflict(err) {
		return zero, core.ResourceOutcomeError, fmt.Errorf("resources: create %s: %w", s.Kind, err)
	}
	found, ok, findErr := s.Find(ctx, deps)
	if findErr != nil {
		return zero, core.ResourceOutcomeError, fmt.Errorf("resources: re-find %s: %w", s.Kind, findErr)
	}
	if !ok {
		return zero, core.ResourceOutcomeError, fmt.Errorf("resources: create %s conflicted but no record was found: %w", s.Kind, err)
	}
	return found, core.ResourceOutcomeFound, nil
}

// Fallback returns the canonical value without platform access.
func (s Strategy[T]) Fallback() (T, bool) {
	var zero T
	if s.Default == nil {
		return zero, false
	}
	return s.Default(), true
}

func (s Strategy[T]) Identity(value T) string {
	if s.ID == nil {
		return ""
	}
	return s.ID(value)
}
