package orchestrator

import "time"

// ModelType identifies a family of models, each backed by its own
// adapter.
type ModelType string

const (
	ModelTypeLLM         ModelType = "llm"
	ModelTypeImage       ModelType = "image"
	ModelTypeImage2Image ModelType = "image2image"
	ModelTypeVideo       ModelType = "video"
)

// ModelStatus is the lifecycle state of a model identifier, tracked
// independently of whether a LoadedModel currently exists for it so
// that operators can see Error and transitional states after the
// resident entry has been removed.
type ModelStatus string

const (
	StatusNotLoaded ModelStatus = "not_loaded"
	StatusLoading   ModelStatus = "loading"
	StatusLoaded    ModelStatus = "loaded"
	StatusUnloading ModelStatus = "unloading"
	StatusError     ModelStatus = "error"
)

// LoadedModel is an accelerator-resident instance.
type LoadedModel struct {
	ModelID  string
	Type     ModelType
	Instance any
	MemoryMB uint64
	LoadedAt time.Time
	LastUsed time.Time
	Metadata map[string]any
}

// statusRecord is the parallel bookkeeping entry kept for every model
// identifier ever seen, independent of residency.
type statusRecord struct {
	Type     ModelType
	Status   ModelStatus
	Error    string
	LoadedAt time.Time
}

// GPUStatus is the derived memory snapshot sampled from the memory
// probe. Never stored, always sampled fresh.
type GPUStatus struct {
	TotalMB uint64
	UsedMB  uint64
	FreeMB  uint64
}
