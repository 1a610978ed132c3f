// Package httpapi is the thin HTTP surface of the gateway: it only
// translates requests into orchestrator, task-store, and handler
// calls. All interesting state lives behind those collaborators.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/modelgate/modelgate/pkg/config"
	"github.com/modelgate/modelgate/pkg/handler"
	"github.com/modelgate/modelgate/pkg/logging"
	"github.com/modelgate/modelgate/pkg/orchestrator"
	"github.com/modelgate/modelgate/pkg/taskqueue"
)

// Server holds every collaborator the HTTP surface translates
// requests into. None of its own state is mutable beyond these
// references — all state lives in the Orchestrator and Task Store.
type Server struct {
	log      logging.Logger
	cfg      config.Config
	orch     *orchestrator.Orchestrator
	store    *taskqueue.Store
	adapters *orchestrator.AdapterRegistry
	handlers *handler.Registry
	metrics  http.Handler
}

// NewServer constructs a Server. metrics may be nil to disable the
// /metrics route entirely.
func NewServer(log logging.Logger, cfg config.Config, orch *orchestrator.Orchestrator, store *taskqueue.Store, adapters *orchestrator.AdapterRegistry, handlers *handler.Registry, metrics http.Handler) *Server {
	return &Server{log: log, cfg: cfg, orch: orch, store: store, adapters: adapters, handlers: handlers, metrics: metrics}
}

// Router builds the chi router mounting every route.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/health", s.handleHealth)

	r.Route("/models", func(r chi.Router) {
		r.Get("/", s.handleListModels)
		r.Get("/gpu", s.handleGPUStatus)
		r.Get("/status", s.handleModelStatus)
		r.Post("/load", s.handleLoadModel)
		r.Post("/unload", s.handleUnloadModel)
		r.Post("/switch", s.handleSwitchModel)
	})

	r.Route("/chat", func(r chi.Router) {
		r.Post("/", s.handleChat)
	})
	r.Route("/compare", func(r chi.Router) {
		r.Post("/", s.handleCompare)
	})

	r.Route("/image", func(r chi.Router) {
		r.Post("/generate", s.handleImageGenerate)
	})
	r.Route("/image2image", func(r chi.Router) {
		r.Post("/generate", s.handleImage2ImageGenerate)
	})
	r.Route("/video", func(r chi.Router) {
		r.Post("/generate", s.handleVideoGenerate)
		r.Get("/status/{id}", s.handleGetTask)
	})

	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", s.handleListUserTasks)
		r.Get("/stats", s.handleQueueStats)
		r.Post("/", s.handleCreateTask)
		r.Get("/{id}", s.handleGetTask)
		r.Get("/{id}/result", s.handleGetTaskResult)
		r.Post("/{id}/cancel", s.handleCancelTask)
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
