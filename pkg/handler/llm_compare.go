package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelgate/modelgate/pkg/adapter"
	"github.com/modelgate/modelgate/pkg/logging"
	"github.com/modelgate/modelgate/pkg/orchestrator"
	"github.com/modelgate/modelgate/pkg/taskqueue"
)

// LLMCompareHandler implements TaskTypeLLMCompare: iterates supplied
// model names, resolves each to a resident LLM by partial name match,
// generates serially, and returns a map model -> {content} or
// {error}.
//
// Partial name matching against resident ids is ambiguous when two
// residents share a substring. Rather than requiring exact match, the
// ambiguity is resolved deterministically: ListLoaded returns
// residents sorted by model_id, and the first match in that order
// wins.
type LLMCompareHandler struct {
	log     logging.Logger
	orch    *orchestrator.Orchestrator
	adapter orchestrator.ModelAdapter
	store   *taskqueue.Store
}

func NewLLMCompareHandler(log logging.Logger, orch *orchestrator.Orchestrator, ad orchestrator.ModelAdapter, store *taskqueue.Store) *LLMCompareHandler {
	return &LLMCompareHandler{log: log, orch: orch, adapter: ad, store: store}
}

func (h *LLMCompareHandler) Handle(ctx context.Context, task *taskqueue.Task) (map[string]any, error) {
	names := getStringSlice(task.Params, "model_names")
	if len(names) == 0 {
		return nil, fmt.Errorf("handler/llm_compare: no model_names supplied")
	}
	prompt := getString(task.Params, "prompt", "")

	results := make(map[string]any, len(names))
	for i, name := range names {
		pct := float64(i) / float64(len(names)) * 100
		if _, err := h.store.Update(ctx, task.ID, taskqueue.Update{Progress: &pct}); err != nil {
			h.log.Warnf("handler/llm_compare: reporting progress for %s: %v", task.ID, err)
		}

		lm, ok := h.resolve(name)
		if !ok {
			results[name] = map[string]any{"error": fmt.Sprintf("model %q is not resident", name)}
			continue
		}

		out, err := h.adapter.Generate(ctx, lm.Instance, adapter.GenerateTextParams{Prompt: prompt})
		if err != nil {
			results[name] = map[string]any{"error": err.Error()}
			continue
		}
		res, ok := out.(adapter.GenerateTextResult)
		if !ok {
			results[name] = map[string]any{"error": fmt.Sprintf("unexpected result type %T", out)}
			continue
		}
		results[name] = map[string]any{"content": res.Content}
	}

	return map[string]any{"results": results}, nil
}

// resolve matches name by substring against the model_id of every
// resident LLM, in ascending model_id order, returning the first hit.
func (h *LLMCompareHandler) resolve(name string) (*orchestrator.LoadedModel, bool) {
	for _, lm := range h.orch.ListLoaded() {
		if lm.Type != orchestrator.ModelTypeLLM {
			continue
		}
		if strings.Contains(lm.ModelID, name) {
			return lm, true
		}
	}
	return nil, false
}

func getStringSlice(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
