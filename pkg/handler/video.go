package handler

import (
	"context"
	"fmt"

	"github.com/modelgate/modelgate/pkg/adapter"
	"github.com/modelgate/modelgate/pkg/logging"
	"github.com/modelgate/modelgate/pkg/orchestrator"
	"github.com/modelgate/modelgate/pkg/taskqueue"
)

// VideoHandler implements TaskTypeVideo. Family-specific parameter
// normalization (resolution rounding, frame-count shaping, rapid-mode
// overrides) happens inside VideoAdapter.Generate, keyed off the
// VideoInstance's Family (the same value the adapter reports as
// video_family in LoadedModel's metadata at load time); this handler
// reads that metadata only to log which family it dispatched to.
type VideoHandler struct {
	log          logging.Logger
	orch         *orchestrator.Orchestrator
	adapter      orchestrator.ModelAdapter
	store        *taskqueue.Store
	defaultModel string
}

func NewVideoHandler(log logging.Logger, orch *orchestrator.Orchestrator, ad orchestrator.ModelAdapter, store *taskqueue.Store, defaultModel string) *VideoHandler {
	return &VideoHandler{log: log, orch: orch, adapter: ad, store: store, defaultModel: defaultModel}
}

func (h *VideoHandler) Handle(ctx context.Context, task *taskqueue.Task) (map[string]any, error) {
	modelID := getString(task.Params, "model_id", h.defaultModel)
	h.reportProgress(ctx, task.ID, 5)

	lm, err := h.orch.EnsureLoaded(ctx, modelID, orchestrator.ModelTypeVideo)
	if err != nil {
		return nil, fmt.Errorf("loading video model %s: %w", modelID, err)
	}
	family, _ := lm.Metadata["video_family"].(string)
	h.log.Infof("handler/video: task %s dispatching to family %q", task.ID, family)
	h.reportProgress(ctx, task.ID, 20)

	params := adapter.GenerateVideoParams{
		Prompt:         getString(task.Params, "prompt", ""),
		SourceImageB64: getString(task.Params, "source_image_base64", ""),
		Steps:          getInt(task.Params, "steps", 30),
		CFG:            getFloat(task.Params, "cfg", 7.0),
		NumFrames:      getInt(task.Params, "num_frames", 49),
		Width:          getInt(task.Params, "width", 768),
		Height:         getInt(task.Params, "height", 768),
		Seed:           getSeed(task.Params, "seed"),
	}

	result, err := h.adapter.Generate(ctx, lm.Instance, params)
	if err != nil {
		return nil, fmt.Errorf("generating video: %w", err)
	}
	h.reportProgress(ctx, task.ID, 95)

	res, ok := result.(adapter.GenerateVideoResult)
	if !ok {
		return nil, fmt.Errorf("handler/video: unexpected result type %T", result)
	}
	return map[string]any{
		"video_base64": res.VideoBase64,
		"seed":         res.Seed,
		"fps":          res.FPS,
	}, nil
}

func (h *VideoHandler) reportProgress(ctx context.Context, taskID string, pct float64) {
	if _, err := h.store.Update(ctx, taskID, taskqueue.Update{Progress: &pct}); err != nil {
		h.log.Warnf("handler/video: reporting progress for %s: %v", taskID, err)
	}
}
