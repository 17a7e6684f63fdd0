package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AgentMesh-Net/bulkops/internal/bulk"
	"github.com/AgentMesh-Net/bulkops/internal/config"
	"github.com/AgentMesh-Net/bulkops/internal/logging"
	"github.com/AgentMesh-Net/bulkops/internal/store"
)

// MatrixReader builds the attribute matrix for a set of assessments.
type MatrixReader interface {
	Read(ctx context.Context, assessmentIDs []int64) (*bulk.Matrix, error)
}

// TaskSubmitter queues a background task and returns its handle.
type TaskSubmitter interface {
	Submit(ctx context.Context, name string, params json.RawMessage) (*store.Task, error)
}

// NewRouter creates the HTTP router with all bulk operation endpoints.
func NewRouter(matrix MatrixReader, submitter TaskSubmitter, taskRepo store.TaskRepo, cfg config.Config, log *logging.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(log))
	r.Use(middleware.Timeout(30 * time.Second))

	h := &handlers{
		matrix:    matrix,
		submitter: submitter,
		taskRepo:  taskRepo,
		maxBody:   cfg.MaxBodyBytes,
		log:       log,
	}

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.GetHealth)
		r.Get("/info", h.GetInfo)

		r.Post("/bulk_operations/cavs/search", h.PostMatrixSearch)
		r.Post("/bulk_operations/complete", h.PostBulkTask(bulk.OpComplete))
		r.Post("/bulk_operations/verify", h.PostBulkTask(bulk.OpVerify))
		r.Post("/bulk_operations/cavs/save", h.PostBulkTask(bulk.OpSaveAttributes))

		r.Get("/background_tasks", h.ListTasks)
		r.Get("/background_tasks/{taskID}", h.GetTask)
	})

	return r
}

type handlers struct {
	matrix    MatrixReader
	submitter TaskSubmitter
	taskRepo  store.TaskRepo
	maxBody   int64
	log       *logging.Logger
}
