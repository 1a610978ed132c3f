// Package orchestrator is the sole owner of accelerator-resident
// model instances. It tracks residency, estimates memory cost, and
// evicts least-recently-used instances to admit new ones, serialising
// load/unload under a single lock.
//
// The lock is a buffered channel rather than a sync.Mutex so that
// acquisition can be cancelled via context. There is no slot concept:
// residency is bounded purely by a memory budget, so eviction walks
// residents by LRU until enough memory is free.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/modelgate/modelgate/pkg/gpu"
	"github.com/modelgate/modelgate/pkg/logging"
)

// memoryProbe is the subset of *gpu.Probe the orchestrator needs,
// reified as an interface so tests can substitute a fake sampler.
type memoryProbe interface {
	GetStatus(ctx context.Context) (gpu.Status, error)
}

// Orchestrator is the process-wide registry of resident models. There
// is no package-level instance: the application constructs one and
// passes it to every component that acquires models.
type Orchestrator struct {
	log      logging.Logger
	adapters *AdapterRegistry
	probe    memoryProbe

	// guard serialises all state-changing methods. Buffered with size
	// 1 so lock acquisition can respect ctx cancellation.
	guard chan struct{}

	models   map[string]*LoadedModel
	statuses map[string]*statusRecord
}

// New constructs an Orchestrator. adapters must have an entry for
// every ModelType the caller intends to serve; probe samples
// accelerator memory for admission decisions.
func New(log logging.Logger, adapters *AdapterRegistry, probe memoryProbe) *Orchestrator {
	o := &Orchestrator{
		log:      log,
		adapters: adapters,
		probe:    probe,
		guard:    make(chan struct{}, 1),
		models:   make(map[string]*LoadedModel),
		statuses: make(map[string]*statusRecord),
	}
	o.guard <- struct{}{}
	return o
}

func (o *Orchestrator) lock(ctx context.Context) bool {
	select {
	case <-o.guard:
		return true
	case <-ctx.Done():
		return false
	}
}

func (o *Orchestrator) unlock() {
	o.guard <- struct{}{}
}

func (o *Orchestrator) setStatus(id string, t ModelType, status ModelStatus, errMsg string) {
	rec, ok := o.statuses[id]
	if !ok {
		rec = &statusRecord{Type: t}
		o.statuses[id] = rec
	}
	rec.Status = status
	rec.Error = errMsg
	if status == StatusLoaded {
		rec.LoadedAt = time.Now()
	}
}

// Load brings modelID onto the accelerator. If already resident and
// !force, it touches last_used and returns the existing entry. If
// force, the existing instance is unloaded first. Otherwise it
// estimates memory, evicts as needed, invokes the adapter, and
// records the result.
//
// o.guard is held for the entire call: releasing it mid-Load would
// let two concurrent Load calls for the same unresident modelID both
// pass the residency check, both invoke the adapter, and race to
// populate o.models, leaking the loser's instance and overshooting
// the memory budget. Every nested step — the eviction walk and its
// unloads included — therefore goes through the *Locked helpers below
// instead of the public, self-locking Load/Unload.
func (o *Orchestrator) Load(ctx context.Context, modelID string, t ModelType, force bool) (*LoadedModel, error) {
	adapter, err := o.adapters.Get(t)
	if err != nil {
		return nil, err
	}

	if !o.lock(ctx) {
		return nil, ctx.Err()
	}
	defer o.unlock()

	if existing, ok := o.models[modelID]; ok {
		if !force {
			existing.LastUsed = time.Now()
			return existing, nil
		}
		if _, err := o.unloadLocked(ctx, modelID); err != nil {
			return nil, fmt.Errorf("force reload: unloading %s: %w", modelID, err)
		}
	}

	estimated, err := adapter.Estimate(ctx, modelID)
	if err != nil {
		o.log.Warnf("orchestrator: estimate failed for %s: %v, proceeding without admission hint", modelID, err)
		estimated = 0
	}

	if err := o.ensureMemoryLocked(ctx, estimated, modelID); err != nil {
		return nil, fmt.Errorf("ensuring memory for %s: %w", modelID, err)
	}

	o.setStatus(modelID, t, StatusLoading, "")

	instance, memoryMB, metadata, err := adapter.Load(ctx, modelID)
	if err != nil {
		o.setStatus(modelID, t, StatusError, err.Error())
		return nil, fmt.Errorf("loading %s: %w", modelID, err)
	}

	now := time.Now()
	lm := &LoadedModel{
		ModelID:  modelID,
		Type:     t,
		Instance: instance,
		MemoryMB: memoryMB,
		LoadedAt: now,
		LastUsed: now,
		Metadata: metadata,
	}

	o.models[modelID] = lm
	o.setStatus(modelID, t, StatusLoaded, "")

	return lm, nil
}

// Unload releases modelID's resident instance. Idempotent on a
// non-resident id: logs a warning and returns 0.
func (o *Orchestrator) Unload(ctx context.Context, modelID string) (uint64, error) {
	if !o.lock(ctx) {
		return 0, ctx.Err()
	}
	defer o.unlock()
	return o.unloadLocked(ctx, modelID)
}

// unloadLocked is Unload's body, callable with o.guard already held —
// by the public Unload itself, and by Load's force-reload path and
// ensureMemoryLocked's eviction loop, so a single Load never releases
// the lock partway through (see the Load doc comment).
func (o *Orchestrator) unloadLocked(ctx context.Context, modelID string) (uint64, error) {
	lm, ok := o.models[modelID]
	if !ok {
		o.log.Warnf("orchestrator: unload of non-resident model %s", modelID)
		return 0, nil
	}
	o.setStatus(modelID, lm.Type, StatusUnloading, "")

	adapter, err := o.adapters.Get(lm.Type)
	if err != nil {
		return 0, err
	}

	freedMB, err := adapter.Unload(ctx, lm.Instance)
	if err != nil {
		o.log.Warnf("orchestrator: unload of %s reported error: %v", modelID, err)
	}

	delete(o.models, modelID)
	o.setStatus(modelID, lm.Type, StatusNotLoaded, "")

	return freedMB, nil
}

// EnsureLoaded is the fast-path/slow-path accessor used by handlers:
// resident, touch, return; otherwise Load.
func (o *Orchestrator) EnsureLoaded(ctx context.Context, modelID string, t ModelType) (*LoadedModel, error) {
	if !o.lock(ctx) {
		return nil, ctx.Err()
	}
	if lm, ok := o.models[modelID]; ok {
		lm.LastUsed = time.Now()
		o.unlock()
		return lm, nil
	}
	o.unlock()
	return o.Load(ctx, modelID, t, false)
}

// EnsureMemory frees accelerator memory for an incoming load: if free
// memory already covers requiredMB, it returns immediately; otherwise
// it evicts residents (excluding exclude) in ascending last_used
// order, re-sampling free memory after each eviction, until satisfied
// or the candidate list is exhausted.
func (o *Orchestrator) EnsureMemory(ctx context.Context, requiredMB uint64, exclude string) error {
	if !o.lock(ctx) {
		return ctx.Err()
	}
	defer o.unlock()
	return o.ensureMemoryLocked(ctx, requiredMB, exclude)
}

// ensureMemoryLocked is EnsureMemory's body, callable with o.guard
// already held — by EnsureMemory itself and by Load, so the admission
// check and the eviction it triggers happen under the same lock
// acquisition as the load that follows (see Load's doc comment).
func (o *Orchestrator) ensureMemoryLocked(ctx context.Context, requiredMB uint64, exclude string) error {
	status, err := o.probe.GetStatus(ctx)
	if err != nil {
		return fmt.Errorf("sampling gpu status: %w", err)
	}
	if status.FreeMB >= requiredMB {
		return nil
	}

	for {
		victim, ok := o.lruVictimLocked(exclude)
		if !ok {
			o.log.Warnf("orchestrator: eviction candidates exhausted, still need %d MB", requiredMB)
			return nil
		}
		if _, err := o.unloadLocked(ctx, victim); err != nil {
			o.log.Warnf("orchestrator: eviction of %s failed, trying next candidate: %v", victim, err)
		}
		status, err = o.probe.GetStatus(ctx)
		if err != nil {
			return fmt.Errorf("sampling gpu status: %w", err)
		}
		if status.FreeMB >= requiredMB {
			return nil
		}
	}
}

// lruVictimLocked returns the resident (other than exclude) with the
// smallest LastUsed, or false if there are no candidates. Callable
// with o.guard already held.
func (o *Orchestrator) lruVictimLocked(exclude string) (string, bool) {
	ids := make([]string, 0, len(o.models))
	for id := range o.models {
		if id == exclude {
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return "", false
	}
	sort.Slice(ids, func(i, j int) bool {
		return o.models[ids[i]].LastUsed.Before(o.models[ids[j]].LastUsed)
	})
	return ids[0], true
}

// Get returns the resident model for id, touching LastUsed.
func (o *Orchestrator) Get(id string) (*LoadedModel, error) {
	if !o.lock(context.Background()) {
		return nil, context.Canceled
	}
	defer o.unlock()
	lm, ok := o.models[id]
	if !ok {
		return nil, ErrModelNotFound
	}
	lm.LastUsed = time.Now()
	return lm, nil
}

// GetByType returns all resident models of type t, touching LastUsed
// on each.
func (o *Orchestrator) GetByType(t ModelType) []*LoadedModel {
	if !o.lock(context.Background()) {
		return nil
	}
	defer o.unlock()

	now := time.Now()
	var out []*LoadedModel
	for _, lm := range o.models {
		if lm.Type == t {
			lm.LastUsed = now
			out = append(out, lm)
		}
	}
	return out
}

// ListLoaded returns every resident model, sorted by model_id so
// callers that match against the list iterate deterministically.
func (o *Orchestrator) ListLoaded() []*LoadedModel {
	if !o.lock(context.Background()) {
		return nil
	}
	defer o.unlock()

	out := make([]*LoadedModel, 0, len(o.models))
	for _, lm := range o.models {
		out = append(out, lm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out
}

// IsLoaded reports whether id is currently resident.
func (o *Orchestrator) IsLoaded(id string) bool {
	if !o.lock(context.Background()) {
		return false
	}
	defer o.unlock()
	_, ok := o.models[id]
	return ok
}

// GetStatus returns the tracked ModelStatus for id, including Error
// and transitional states retained after the resident entry is gone.
func (o *Orchestrator) GetStatus(id string) (ModelStatus, string, bool) {
	if !o.lock(context.Background()) {
		return "", "", false
	}
	defer o.unlock()
	rec, ok := o.statuses[id]
	if !ok {
		return StatusNotLoaded, "", false
	}
	return rec.Status, rec.Error, true
}

// GetGpuStatus samples the memory probe.
func (o *Orchestrator) GetGpuStatus(ctx context.Context) (GPUStatus, error) {
	s, err := o.probe.GetStatus(ctx)
	if err != nil {
		return GPUStatus{}, err
	}
	return GPUStatus{TotalMB: s.TotalMB, UsedMB: s.UsedMB, FreeMB: s.FreeMB}, nil
}
