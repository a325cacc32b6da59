// Package domain provides types shared by the domain services.
package domain

import (
	"context"
)

// HookEvent represents lifecycle event type.
type HookEvent string

const (
	// AfterCommit hooks run once the surrounding transaction has committed.
	// A failing hook is logged by the caller and never undoes the committed work.
	AfterCommit HookEvent = "after_commit"
)

// Hook is a function that runs at specific lifecycle points.
type Hook[T any] func(ctx context.Context, entity T) error

// HookRegistry stores lifecycle hooks for an entity type.
type HookRegistry[T any] struct {
	hooks map[HookEvent][]Hook[T]
}

// NewHookRegistry creates an empty hook registry.
func NewHookRegistry[T any]() *HookRegistry[T] {
	return &HookRegistry[T]{
		hooks: make(map[HookEvent][]Hook[T]),
	}
}

// On registers a hook for the specified event.
func (r *HookRegistry[T]) On(event HookEvent, hook Hook[T]) {
	r.hooks[event] = append(r.hooks[event], hook)
}

// OnAfterCommit registers a hook to run after commit.
func (r *HookRegistry[T]) OnAfterCommit(hook Hook[T]) {
	r.On(AfterCommit, hook)
}

// Run executes every hook for the event and joins their errors.
// Unlike before-hooks, after-commit hooks must all get a chance to run.
func (r *HookRegistry[T]) Run(ctx context.Context, event HookEvent, entity T) error {
	var errs []error
	for _, hook := range r.hooks[event] {
		if err := hook(ctx, entity); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrors(errs)
}
