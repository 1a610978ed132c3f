package orchestrator

import "errors"

var (
	// ErrUnknownModelType is returned when no adapter is registered for
	// a requested ModelType.
	ErrUnknownModelType = errors.New("orchestrator: unknown model type")
	// ErrModelNotFound is returned by accessors for a model_id with no
	// resident LoadedModel.
	ErrModelNotFound = errors.New("orchestrator: model not resident")
)
