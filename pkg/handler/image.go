package handler

import (
	"context"
	"fmt"

	"github.com/modelgate/modelgate/pkg/adapter"
	"github.com/modelgate/modelgate/pkg/logging"
	"github.com/modelgate/modelgate/pkg/orchestrator"
	"github.com/modelgate/modelgate/pkg/taskqueue"
)

// ImageHandler implements TaskTypeImage.
type ImageHandler struct {
	log          logging.Logger
	orch         *orchestrator.Orchestrator
	adapter      orchestrator.ModelAdapter
	store        *taskqueue.Store
	defaultModel string
}

// NewImageHandler constructs an ImageHandler. defaultModel is used
// when a task's params omit model_id.
func NewImageHandler(log logging.Logger, orch *orchestrator.Orchestrator, ad orchestrator.ModelAdapter, store *taskqueue.Store, defaultModel string) *ImageHandler {
	return &ImageHandler{log: log, orch: orch, adapter: ad, store: store, defaultModel: defaultModel}
}

// Handle decodes params, ensures the image model is resident,
// generates, and returns {image_base64, seed}.
func (h *ImageHandler) Handle(ctx context.Context, task *taskqueue.Task) (map[string]any, error) {
	modelID := getString(task.Params, "model_id", h.defaultModel)
	h.reportProgress(ctx, task.ID, 5)

	lm, err := h.orch.EnsureLoaded(ctx, modelID, orchestrator.ModelTypeImage)
	if err != nil {
		return nil, fmt.Errorf("loading image model %s: %w", modelID, err)
	}
	h.reportProgress(ctx, task.ID, 40)

	params := adapter.GenerateImageParams{
		Prompt:         getString(task.Params, "prompt", ""),
		NegativePrompt: getString(task.Params, "negative_prompt", ""),
		Width:          getInt(task.Params, "width", 512),
		Height:         getInt(task.Params, "height", 512),
		Steps:          getInt(task.Params, "steps", 30),
		CFG:            getFloat(task.Params, "cfg", 7.0),
		Seed:           getSeed(task.Params, "seed"),
	}

	result, err := h.adapter.Generate(ctx, lm.Instance, params)
	if err != nil {
		return nil, fmt.Errorf("generating image: %w", err)
	}
	h.reportProgress(ctx, task.ID, 90)

	res, ok := result.(adapter.GenerateImageResult)
	if !ok {
		return nil, fmt.Errorf("handler/image: unexpected result type %T", result)
	}
	return map[string]any{"image_base64": res.ImageBase64, "seed": res.Seed}, nil
}

// reportProgress is a best-effort mid-flight progress update; a
// failure here never aborts generation, it just means the client saw
// a stale percentage until the Worker's final Update lands.
func (h *ImageHandler) reportProgress(ctx context.Context, taskID string, pct float64) {
	if _, err := h.store.Update(ctx, taskID, taskqueue.Update{Progress: &pct}); err != nil {
		h.log.Warnf("handler/image: reporting progress for %s: %v", taskID, err)
	}
}
