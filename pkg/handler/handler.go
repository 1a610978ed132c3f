// Package handler holds one per-task-type procedure translating a
// task's params into adapter calls and a serialisable result payload.
// Each media handler (image, image2image, video) decodes its params,
// calls Orchestrator.EnsureLoaded, invokes the resident model's
// adapter, reports progress at milestones, and returns a result map
// the worker writes back. The LLM-compare handler loads nothing: it
// matches the requested names against LLMs that are already resident.
package handler

import (
	"context"
	"fmt"

	"github.com/modelgate/modelgate/pkg/taskqueue"
)

// Func is the shape the worker dispatches to: decode task.Params,
// perform the work, return a result payload.
type Func func(ctx context.Context, task *taskqueue.Task) (map[string]any, error)

// Registry looks up the Func for a TaskType, the handler-side
// counterpart of orchestrator.AdapterRegistry.
type Registry struct {
	handlers map[taskqueue.TaskType]Func
}

// NewRegistry builds an empty registry; call Register for each
// supported TaskType before passing it to worker.New.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[taskqueue.TaskType]Func)}
}

// Register associates a Func with a TaskType, overwriting any
// previous registration.
func (r *Registry) Register(t taskqueue.TaskType, fn Func) {
	r.handlers[t] = fn
}

// Get returns the Func for t, or an error if no handler is
// registered. An unknown task type is an error, never a panic.
func (r *Registry) Get(t taskqueue.TaskType) (Func, error) {
	fn, ok := r.handlers[t]
	if !ok {
		return nil, fmt.Errorf("handler: unknown task type %q", t)
	}
	return fn, nil
}
