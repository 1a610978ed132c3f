package orchestrator

import "context"

// ModelAdapter is the only interface the Orchestrator requires of a
// model family's runtime. One implementation exists per ModelType,
// registered in an AdapterRegistry at startup.
//
// Every method may block (model loads, subprocess shutdown, inference
// itself) and must therefore be called off whatever goroutine cannot
// afford to stall — the Orchestrator itself never assumes otherwise
// and always calls adapters with a context it can cancel.
type ModelAdapter interface {
	// Estimate returns an advisory memory cost in MB for modelID,
	// used only for admission decisions. It must not block on network
	// or disk beyond what is needed to inspect the identifier itself.
	Estimate(ctx context.Context, modelID string) (uint64, error)

	// Load brings modelID onto the accelerator and returns an opaque
	// instance handle, the measured memory cost, and a metadata bag
	// for family-specific facts (e.g. video subfamily).
	Load(ctx context.Context, modelID string) (instance any, memoryMB uint64, metadata map[string]any, err error)

	// Unload releases a previously loaded instance and returns the
	// memory it freed, as measured by whatever the adapter considers
	// authoritative for its family.
	Unload(ctx context.Context, instance any) (freedMB uint64, err error)

	// Generate invokes the resident instance. params and the returned
	// result are opaque to the Orchestrator; each handler (pkg/handler)
	// knows the concrete shape for its ModelType.
	Generate(ctx context.Context, instance any, params any) (result any, err error)
}

// AdapterRegistry looks adapters up by ModelType.
type AdapterRegistry struct {
	adapters map[ModelType]ModelAdapter
}

// NewAdapterRegistry builds an empty registry; call Register for each
// supported ModelType before passing it to New.
func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{adapters: make(map[ModelType]ModelAdapter)}
}

// Register associates an adapter with a ModelType, overwriting any
// previous registration.
func (r *AdapterRegistry) Register(t ModelType, a ModelAdapter) {
	r.adapters[t] = a
}

// Get returns the adapter for t, or ErrUnknownModelType if none was
// registered.
func (r *AdapterRegistry) Get(t ModelType) (ModelAdapter, error) {
	a, ok := r.adapters[t]
	if !ok {
		return nil, ErrUnknownModelType
	}
	return a, nil
}
