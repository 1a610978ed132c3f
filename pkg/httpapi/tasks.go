package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/modelgate/modelgate/pkg/taskqueue"
)

type taskView struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Status    string         `json:"status"`
	Progress  float64        `json:"progress"`
	Result    map[string]any `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
}

func toTaskView(t *taskqueue.Task) taskView {
	return taskView{
		ID:        t.ID,
		Type:      string(t.Type),
		Status:    string(t.Status),
		Progress:  t.Progress,
		Result:    t.Result,
		Error:     t.Error,
		CreatedAt: t.CreatedAt.Format(timeFormat),
		UpdatedAt: t.UpdatedAt.Format(timeFormat),
	}
}

type createTaskRequest struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params"`
	UserID string         `json:"user_id"`
}

// handleCreateTask is POST /tasks, the generic task-creation route
// behind the per-modality /image, /image2image, /video conveniences.
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}

	task, err := s.store.Create(r.Context(), taskqueue.TaskType(req.Type), req.Params, req.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, toTaskView(task))
}

// handleGetTask is GET /tasks/{id} (and the video-status alias).
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if task == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, toTaskView(task))
}

// handleGetTaskResult is GET /tasks/{id}/result: the result payload
// alone once completed, 422 with the error message if the task failed,
// and 409 with the current status otherwise (pending, processing or
// cancelled).
func (s *Server) handleGetTaskResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if task == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	switch task.Status {
	case taskqueue.StatusCompleted:
		writeJSON(w, http.StatusOK, map[string]any{"result": task.Result})
	case taskqueue.StatusFailed:
		writeError(w, http.StatusUnprocessableEntity, task.Error)
	default:
		writeJSON(w, http.StatusConflict, map[string]string{"status": string(task.Status)})
	}
}

// handleCancelTask is POST /tasks/{id}/cancel. Cancelling an
// already-terminal task is a no-op that reports the current status;
// a processing task's handler is not preempted.
func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := s.store.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if task == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, toTaskView(task))
}

// handleListUserTasks is GET /tasks?user_id=...&limit=....
func (s *Server) handleListUserTasks(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id query parameter is required")
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	tasks, err := s.store.GetUserTasks(r.Context(), userID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, toTaskView(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": views})
}

// handleQueueStats is GET /tasks/stats, exposed for operator polling
// alongside the /metrics gauges.
func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.QueueStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
