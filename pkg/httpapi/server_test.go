package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/modelgate/modelgate/pkg/adapter"
	"github.com/modelgate/modelgate/pkg/config"
	"github.com/modelgate/modelgate/pkg/gpu"
	"github.com/modelgate/modelgate/pkg/handler"
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
	return adapter.GenerateImageResult{ImageBase64: "stub", Seed: 42}, nil
}

type fakeLLMAdapter struct{}

func (fakeLLMAdapter) Estimate(ctx context.Context, modelID string) (uint64, error) { return 1, nil }

func (fakeLLMAdapter) Load(ctx context.Context, modelID string) (any, uint64, map[string]any, error) {
	return modelID, 1, nil, nil
}

func (fakeLLMAdapter) Unload(ctx context.Context, instance any) (uint64, error) { return 1, nil }

func (fakeLLMAdapter) Generate(ctx context.Context, instance any, params any) (any, error) {
	return adapter.GenerateTextResult{Content: "hi from " + instance.(string)}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	log := logging.New(logrus.New())

	store := taskqueue.New(log, rdb, time.Hour)

	adapters := orchestrator.NewAdapterRegistry()
	adapters.Register(orchestrator.ModelTypeImage, fakeImageAdapter{})
	adapters.Register(orchestrator.ModelTypeLLM, fakeLLMAdapter{})
	orch := orchestrator.New(log, adapters, fakeProbe{})

	handlers := handler.NewRegistry()
	handlers.Register(taskqueue.TaskTypeImage,
		handler.NewImageHandler(log, orch, fakeImageAdapter{}, store, "stub-image-model").Handle)
	handlers.Register(taskqueue.TaskTypeLLMCompare,
		handler.NewLLMCompareHandler(log, orch, fakeLLMAdapter{}, store).Handle)

	return NewServer(log, config.Default(), orch, store, adapters, handlers, nil)
}

func doRequest(t *testing.T, s *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestLoadAndListModels(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/models/load", map[string]any{
		"model_id": "sdxl-base", "model_type": "image",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/models/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	models, ok := body["models"].([]any)
	require.True(t, ok)
	require.Len(t, models, 1)
}

func TestImageGenerateSyncReturnsResultDirectly(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/image/generate", map[string]any{
		"model_id": "sdxl-base", "prompt": "a cat",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "stub", body["image_base64"])
	require.True(t, s.orch.IsLoaded("sdxl-base"))
}

func TestImageGenerateAsyncReturnsTaskID(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/image/generate", map[string]any{
		"model_id": "sdxl-base", "prompt": "a cat", "async_mode": true,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body["task_id"])
	require.Equal(t, "pending", body["status"])

	rec = doRequest(t, s, http.MethodGet, "/tasks/"+body["task_id"], nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestTaskCancelAndNotFound(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/tasks", map[string]any{
		"type": "image", "params": map[string]any{"prompt": "x"}, "user_id": "u1",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	createdID, _ := created["id"].(string)

	rec = doRequest(t, s, http.MethodPost, "/tasks/"+createdID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/tasks/does-not-exist", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatGeneratesWithRequestedModel(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/chat", map[string]any{
		"model_id": "llama-3-8b", "prompt": "hi",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "llama-3-8b", body["model_id"])
	require.Equal(t, "hi from llama-3-8b", body["content"])
	require.True(t, s.orch.IsLoaded("llama-3-8b"))
}

func TestChatRequiresModelWhenNoDefaults(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/chat", map[string]any{"prompt": "hi"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompareRunsSynchronously(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/models/load", map[string]any{
		"model_id": "llama-3-8b", "model_type": "llm",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/compare", map[string]any{
		"prompt": "hi", "model_names": []string{"llama"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	results, ok := body["results"].(map[string]any)
	require.True(t, ok)
	entry, ok := results["llama"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "hi from llama-3-8b", entry["content"])
}

func TestQueueStats(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/tasks/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
