package httpapi

import (
	"encoding/base64"
	"io"
	"net/http"
	"strconv"

	"github.com/modelgate/modelgate/pkg/taskqueue"
)

// generateRequest is the common shape of the three generation
// endpoints: arbitrary model params plus the two request-scoped
// fields every task needs.
type generateRequest struct {
	UserID    string         `json:"user_id"`
	AsyncMode bool           `json:"async_mode"`
	Params    map[string]any `json:"-"`
}

// decodeGenerateRequest reads the whole JSON body as a flat params map
// and lifts out user_id/async_mode, so callers can pass through
// whatever model-specific fields they like without this package
// needing to know every one of them; params are opaque to everything
// except the handler.
func decodeGenerateRequest(r *http.Request) (generateRequest, error) {
	var raw map[string]any
	if err := decodeJSON(r, &raw); err != nil {
		return generateRequest{}, err
	}
	req := generateRequest{Params: raw}
	if v, ok := raw["user_id"].(string); ok {
		req.UserID = v
		delete(raw, "user_id")
	}
	if v, ok := raw["async_mode"].(bool); ok {
		req.AsyncMode = v
		delete(raw, "async_mode")
	}
	return req, nil
}

// runSyncOrQueue either dispatches directly to the in-process handler
// (the default for image/image2image) or creates a durable task
// record and returns its id for async polling (always the path for
// video).
func (s *Server) runSyncOrQueue(w http.ResponseWriter, r *http.Request, t taskqueue.TaskType, req generateRequest, forceAsync bool) {
	ctx := r.Context()

	if req.AsyncMode || forceAsync {
		task, err := s.store.Create(ctx, t, req.Params, req.UserID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"task_id": task.ID, "status": string(task.Status)})
		return
	}

	fn, err := s.handlers.Get(t)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task := &taskqueue.Task{Type: t, Status: taskqueue.StatusProcessing, Params: req.Params, UserID: req.UserID}
	result, err := fn(ctx, task)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleImageGenerate is POST /image/generate.
func (s *Server) handleImageGenerate(w http.ResponseWriter, r *http.Request) {
	req, err := decodeGenerateRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.runSyncOrQueue(w, r, taskqueue.TaskTypeImage, req, false)
}

// handleImage2ImageGenerate is POST /image2image/generate. The source
// image may travel as a multipart file part rather than a base64 JSON
// field; it is re-encoded to base64 here so the rest of the pipeline
// (handler, adapter) only ever deals with the JSON task-params shape.
func (s *Server) handleImage2ImageGenerate(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")
	if len(contentType) >= len("multipart/") && contentType[:len("multipart/")] == "multipart/" {
		s.handleImage2ImageMultipart(w, r)
		return
	}
	req, err := decodeGenerateRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.runSyncOrQueue(w, r, taskqueue.TaskTypeImage2Image, req, false)
}

func (s *Server) handleImage2ImageMultipart(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	params := map[string]any{
		"model_id":        r.FormValue("model_id"),
		"prompt":          r.FormValue("prompt"),
		"negative_prompt": r.FormValue("negative_prompt"),
	}
	for _, key := range []string{"strength", "cfg"} {
		if v := r.FormValue(key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				params[key] = f
			}
		}
	}
	if v := r.FormValue("steps"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			params["steps"] = n
		}
	}
	if v := r.FormValue("seed"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			params["seed"] = f
		}
	}

	file, _, err := r.FormFile("source_image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "source_image file part is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading source_image")
		return
	}
	params["source_image_base64"] = base64.StdEncoding.EncodeToString(data)

	req := generateRequest{
		UserID:    r.FormValue("user_id"),
		AsyncMode: r.FormValue("async_mode") == "true",
		Params:    params,
	}
	s.runSyncOrQueue(w, r, taskqueue.TaskTypeImage2Image, req, false)
}

// handleVideoGenerate is POST /video/generate. Video generation is
// always dispatched through the task queue, never synchronously; it
// runs far too long to hold a request open.
func (s *Server) handleVideoGenerate(w http.ResponseWriter, r *http.Request) {
	req, err := decodeGenerateRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.runSyncOrQueue(w, r, taskqueue.TaskTypeVideo, req, true)
}
