package httpapi

import (
	"errors"
	"net/http"

	"github.com/modelgate/modelgate/pkg/orchestrator"
)

type loadModelRequest struct {
	ModelID   string `json:"model_id"`
	ModelType string `json:"model_type"`
	Force     bool   `json:"force"`
}

type unloadModelRequest struct {
	ModelID string `json:"model_id"`
}

type loadedModelView struct {
	ModelID  string `json:"model_id"`
	Type     string `json:"model_type"`
	MemoryMB uint64 `json:"memory_mb"`
	LoadedAt string `json:"loaded_at"`
	LastUsed string `json:"last_used"`
}

func toView(lm *orchestrator.LoadedModel) loadedModelView {
	return loadedModelView{
		ModelID:  lm.ModelID,
		Type:     string(lm.Type),
		MemoryMB: lm.MemoryMB,
		LoadedAt: lm.LoadedAt.Format(timeFormat),
		LastUsed: lm.LastUsed.Format(timeFormat),
	}
}

const timeFormat = "2006-01-02T15:04:05.999999999Z07:00"

// handleListModels is GET /models.
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models := s.orch.ListLoaded()
	views := make([]loadedModelView, 0, len(models))
	for _, lm := range models {
		views = append(views, toView(lm))
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": views})
}

// handleLoadModel is POST /models/load.
func (s *Server) handleLoadModel(w http.ResponseWriter, r *http.Request) {
	var req loadModelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ModelID == "" || req.ModelType == "" {
		writeError(w, http.StatusBadRequest, "model_id and model_type are required")
		return
	}

	lm, err := s.orch.Load(r.Context(), req.ModelID, orchestrator.ModelType(req.ModelType), req.Force)
	if err != nil {
		s.writeOrchestratorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toView(lm))
}

// handleUnloadModel is POST /models/unload. Unload is idempotent on a
// non-resident id, so an unknown model_id still returns 200 with
// freed_mb 0; a malformed body is a 400, and an orchestrator error is
// mapped by writeOrchestratorError.
func (s *Server) handleUnloadModel(w http.ResponseWriter, r *http.Request) {
	var req unloadModelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ModelID == "" {
		writeError(w, http.StatusBadRequest, "model_id is required")
		return
	}

	freedMB, err := s.orch.Unload(r.Context(), req.ModelID)
	if err != nil {
		s.writeOrchestratorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"freed_mb": freedMB})
}

// handleSwitchModel is POST /models/switch, an alias of /models/load:
// Load already evicts whatever has to go to admit the requested
// model, so switching needs no separate unload step.
func (s *Server) handleSwitchModel(w http.ResponseWriter, r *http.Request) {
	s.handleLoadModel(w, r)
}

// handleModelStatus is GET /models/status?model_id=....
func (s *Server) handleModelStatus(w http.ResponseWriter, r *http.Request) {
	modelID := r.URL.Query().Get("model_id")
	if modelID == "" {
		writeError(w, http.StatusBadRequest, "model_id query parameter is required")
		return
	}
	status, errMsg, _ := s.orch.GetStatus(modelID)
	resp := map[string]any{"model_id": modelID, "status": string(status)}
	if errMsg != "" {
		resp["error"] = errMsg
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGPUStatus is GET /models/gpu.
func (s *Server) handleGPUStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.orch.GetGpuStatus(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// writeOrchestratorError maps orchestrator errors to HTTP status:
// load/unload errors surface as 5xx with the preserved message,
// except unknown model type which is a client error.
func (s *Server) writeOrchestratorError(w http.ResponseWriter, err error) {
	if errors.Is(err, orchestrator.ErrUnknownModelType) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
