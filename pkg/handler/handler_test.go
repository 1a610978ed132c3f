package handler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/modelgate/modelgate/pkg/adapter"
	"github.com/modelgate/modelgate/pkg/gpu"
	"github.com/modelgate/modelgate/pkg/logging"
	"github.com/modelgate/modelgate/pkg/orchestrator"
	"github.com/modelgate/modelgate/pkg/taskqueue"
)

type fakeProbe struct{}

func (fakeProbe) GetStatus(ctx context.Context) (gpu.Status, error) {
	return gpu.Status{TotalMB: 100_000, UsedMB: 0, FreeMB: 100_000}, nil
}

type fakeImageAdapter struct{}

func (fakeImageAdapter) Estimate(ctx context.Context, modelID string) (uint64, error) {
	return 1_000, nil
}

func (fakeImageAdapter) Load(ctx context.Context, modelID string) (any, uint64, map[string]any, error) {
	return &adapter.DiffusionInstance{ModelID: modelID}, 1_000, nil, nil
}

func (fakeImageAdapter) Unload(ctx context.Context, instance any) (uint64, error) {
	return 1_000, nil
}

func (fakeImageAdapter) Generate(ctx context.Context, instance any, params any) (any, error) {
	p := params.(adapter.GenerateImageParams)
	seed := int64(7)
	if p.Seed != nil {
		seed = *p.Seed
	}
	return adapter.GenerateImageResult{ImageBase64: "b64", Seed: seed}, nil
}

func newTestStore(t *testing.T) *taskqueue.Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return taskqueue.New(logging.New(logrus.New()), rdb, time.Hour)
}

func TestImageHandlerHappyPath(t *testing.T) {
	log := logging.New(logrus.New())
	store := newTestStore(t)
	ctx := context.Background()

	adapters := orchestrator.NewAdapterRegistry()
	adapters.Register(orchestrator.ModelTypeImage, fakeImageAdapter{})
	orch := orchestrator.New(log, adapters, fakeProbe{})

	h := NewImageHandler(log, orch, fakeImageAdapter{}, store, "default-model")

	task, err := store.Create(ctx, taskqueue.TaskTypeImage, map[string]any{
		"prompt": "a cat", "width": float64(512), "height": float64(512), "seed": float64(42),
	}, "")
	require.NoError(t, err)

	result, err := h.Handle(ctx, task)
	require.NoError(t, err)
	require.Equal(t, "b64", result["image_base64"])
	require.Equal(t, int64(42), result["seed"])
	require.True(t, orch.IsLoaded("default-model"))
}

type fakeLLMAdapter struct{}

func (fakeLLMAdapter) Estimate(ctx context.Context, modelID string) (uint64, error) { return 1, nil }
func (fakeLLMAdapter) Load(ctx context.Context, modelID string) (any, uint64, map[string]any, error) {
	return modelID, 1, nil, nil
}
func (fakeLLMAdapter) Unload(ctx context.Context, instance any) (uint64, error) { return 1, nil }
func (fakeLLMAdapter) Generate(ctx context.Context, instance any, params any) (any, error) {
	return adapter.GenerateTextResult{Content: "hello from " + instance.(string)}, nil
}

func TestLLMCompareResolvesBySubstringAndReportsMissing(t *testing.T) {
	log := logging.New(logrus.New())
	store := newTestStore(t)
	ctx := context.Background()

	adapters := orchestrator.NewAdapterRegistry()
	adapters.Register(orchestrator.ModelTypeLLM, fakeLLMAdapter{})
	orch := orchestrator.New(log, adapters, fakeProbe{})

	_, err := orch.Load(ctx, "llama-3-8b", orchestrator.ModelTypeLLM, false)
	require.NoError(t, err)

	h := NewLLMCompareHandler(log, orch, fakeLLMAdapter{}, store)

	task, err := store.Create(ctx, taskqueue.TaskTypeLLMCompare, map[string]any{
		"prompt":      "hi",
		"model_names": []any{"llama-3", "mistral-7b"},
	}, "")
	require.NoError(t, err)

	result, err := h.Handle(ctx, task)
	require.NoError(t, err)

	results := result["results"].(map[string]any)
	llama := results["llama-3"].(map[string]any)
	require.Equal(t, "hello from llama-3-8b", llama["content"])

	missing := results["mistral-7b"].(map[string]any)
	require.Contains(t, missing["error"], "not resident")
}
