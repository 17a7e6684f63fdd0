package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AgentMesh-Net/bulkops/internal/api"
	"github.com/AgentMesh-Net/bulkops/internal/bulk"
	"github.com/AgentMesh-Net/bulkops/internal/config"
	"github.com/AgentMesh-Net/bulkops/internal/importengine"
	"github.com/AgentMesh-Net/bulkops/internal/logging"
	"github.com/AgentMesh-Net/bulkops/internal/notify"
	"github.com/AgentMesh-Net/bulkops/internal/store"
	"github.com/AgentMesh-Net/bulkops/internal/taskqueue"
	"github.com/AgentMesh-Net/bulkops/migrations"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("bulkops exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *logging.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := store.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()

	applied, err := store.RunMigrations(ctx, pool, migrations.FS)
	if err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	logger.Info("migrations applied", "files", applied)

	assessments := store.NewPostgresAssessmentRepo(pool)

	var taskRepo store.TaskRepo = store.NewPostgresTaskRepo(pool)
	if cfg.TaskStore == config.TaskStoreMemory {
		taskRepo = store.NewMemoryTaskRepo()
		logger.Warn("using in-memory task store, task history is lost on restart")
	}

	var notifier bulk.Notifier = notify.NewLog(logger)
	if cfg.NotifyURL != "" {
		notifier = notify.NewWebhook(cfg.NotifyURL, cfg.NotifyTimeout)
	}

	importer := importengine.New(cfg.ImportURL, cfg.ImportTimeout)
	pipeline := bulk.NewPipeline(assessments, assessments, importer, notifier, logger)
	matrix := bulk.NewMatrixReader(assessments, assessments)

	queue := taskqueue.New(taskRepo, cfg.QueueSize, cfg.Workers, logger)
	queue.Register(bulk.OpComplete, bulkHandler(pipeline.Complete))
	queue.Register(bulk.OpVerify, bulkHandler(pipeline.Verify))
	queue.Register(bulk.OpSaveAttributes, bulkHandler(pipeline.SaveAttributes))
	queue.Start(ctx)

	router := api.NewRouter(matrix, queue, taskRepo, cfg, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("bulkops listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		return fmt.Errorf("listen: %w", err)
	}
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	cancel()
	queue.Wait()
	logger.Info("server stopped")
	return nil
}

// bulkHandler adapts a pipeline operation to a queue handler.
func bulkHandler(op func(context.Context, *bulk.Request) (*bulk.Notification, error)) taskqueue.Handler {
	return func(ctx context.Context, params json.RawMessage) (any, error) {
		var req bulk.Request
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, fmt.Errorf("%w: %v", bulk.ErrMalformedRequest, err)
		}
		n, err := op(ctx, &req)
		return n, err
	}
}
