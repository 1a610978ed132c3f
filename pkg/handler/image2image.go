package handler

import (
	"context"
	"fmt"

	"github.com/modelgate/modelgate/pkg/adapter"
	"github.com/modelgate/modelgate/pkg/logging"
	"github.com/modelgate/modelgate/pkg/orchestrator"
	"github.com/modelgate/modelgate/pkg/taskqueue"
)

// Image2ImageHandler implements TaskTypeImage2Image. Structurally the
// same flow as ImageHandler plus the source image and strength.
type Image2ImageHandler struct {
	log          logging.Logger
	orch         *orchestrator.Orchestrator
	adapter      orchestrator.ModelAdapter
	store        *taskqueue.Store
	defaultModel string
}

func NewImage2ImageHandler(log logging.Logger, orch *orchestrator.Orchestrator, ad orchestrator.ModelAdapter, store *taskqueue.Store, defaultModel string) *Image2ImageHandler {
	return &Image2ImageHandler{log: log, orch: orch, adapter: ad, store: store, defaultModel: defaultModel}
}

func (h *Image2ImageHandler) Handle(ctx context.Context, task *taskqueue.Task) (map[string]any, error) {
	modelID := getString(task.Params, "model_id", h.defaultModel)
	h.reportProgress(ctx, task.ID, 5)

	lm, err := h.orch.EnsureLoaded(ctx, modelID, orchestrator.ModelTypeImage2Image)
	if err != nil {
		return nil, fmt.Errorf("loading image2image model %s: %w", modelID, err)
	}
	h.reportProgress(ctx, task.ID, 40)

	params := adapter.GenerateImage2ImageParams{
		Prompt:         getString(task.Params, "prompt", ""),
		NegativePrompt: getString(task.Params, "negative_prompt", ""),
		SourceImageB64: getString(task.Params, "source_image_base64", ""),
		Strength:       getFloat(task.Params, "strength", 0.75),
		Steps:          getInt(task.Params, "steps", 30),
		CFG:            getFloat(task.Params, "cfg", 7.0),
		Seed:           getSeed(task.Params, "seed"),
	}
	if params.SourceImageB64 == "" {
		return nil, fmt.Errorf("handler/image2image: source_image_base64 is required")
	}

	result, err := h.adapter.Generate(ctx, lm.Instance, params)
	if err != nil {
		return nil, fmt.Errorf("generating image2image: %w", err)
	}
	h.reportProgress(ctx, task.ID, 90)

	res, ok := result.(adapter.GenerateImageResult)
	if !ok {
		return nil, fmt.Errorf("handler/image2image: unexpected result type %T", result)
	}
	return map[string]any{"image_base64": res.ImageBase64, "seed": res.Seed}, nil
}

func (h *Image2ImageHandler) reportProgress(ctx context.Context, taskID string, pct float64) {
	if _, err := h.store.Update(ctx, taskID, taskqueue.Update{Progress: &pct}); err != nil {
		h.log.Warnf("handler/image2image: reporting progress for %s: %v", taskID, err)
	}
}
