package httpapi

import (
	"net/http"

	"github.com/modelgate/modelgate/pkg/adapter"
	"github.com/modelgate/modelgate/pkg/orchestrator"
	"github.com/modelgate/modelgate/pkg/taskqueue"
)

// handleChat is POST /chat: resolve the requested LLM, generate, and
// return the completion as a single JSON object. The full streaming
// chat wire format belongs to the frontends sitting in front of this
// gateway; what matters here is model acquisition going through the
// orchestrator.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := decodeGenerateRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	modelID, _ := req.Params["model_id"].(string)
	if modelID == "" && len(s.cfg.ModelIDs) > 0 {
		modelID = s.cfg.ModelIDs[0]
	}
	if modelID == "" {
		writeError(w, http.StatusBadRequest, "model_id is required when no default models are configured")
		return
	}
	prompt, _ := req.Params["prompt"].(string)
	if prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	lm, err := s.orch.EnsureLoaded(r.Context(), modelID, orchestrator.ModelTypeLLM)
	if err != nil {
		s.writeOrchestratorError(w, err)
		return
	}

	ad, err := s.adapters.Get(orchestrator.ModelTypeLLM)
	if err != nil {
		s.writeOrchestratorError(w, err)
		return
	}

	params := adapter.GenerateTextParams{Prompt: prompt}
	if v, ok := req.Params["temperature"].(float64); ok {
		params.Temperature = v
	}
	if v, ok := req.Params["top_p"].(float64); ok {
		params.TopP = v
	}
	if v, ok := req.Params["max_tokens"].(float64); ok {
		params.MaxTokens = int(v)
	}

	out, err := ad.Generate(r.Context(), lm.Instance, params)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	res, ok := out.(adapter.GenerateTextResult)
	if !ok {
		writeError(w, http.StatusInternalServerError, "unexpected generation result")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"model_id": lm.ModelID, "content": res.Content})
}

// handleCompare is POST /compare: run the same prompt through several
// resident LLMs. Synchronous by default, with the same async_mode
// escape hatch as the image endpoints.
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	req, err := decodeGenerateRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.runSyncOrQueue(w, r, taskqueue.TaskTypeLLMCompare, req, false)
}
