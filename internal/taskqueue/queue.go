// Package taskqueue runs bulk operations as background tasks. Callers get a
// persisted task handle immediately; a fixed pool of workers executes tasks
// and records their outcome.
package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/AgentMesh-Net/bulkops/internal/core/canonicaljson"
	"github.com/AgentMesh-Net/bulkops/internal/logging"
	"github.com/AgentMesh-Net/bulkops/internal/metrics"
	"github.com/AgentMesh-Net/bulkops/internal/store"
)

// ErrQueueFull is returned by Submit when no slot is free.
var ErrQueueFull = errors.New("task queue is full")

// ErrUnknownTask is returned by Submit for a name with no registered handler.
var ErrUnknownTask = errors.New("unknown task name")

// Handler executes one task. Its result is stored as the task result.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

type job struct {
	id     string
	name   string
	params json.RawMessage
}

// Queue is a bounded in-process task queue backed by a TaskRepo.
type Queue struct {
	repo     store.TaskRepo
	log      *logging.Logger
	workers  int
	jobs     chan job
	handlers map[string]Handler
	wg       sync.WaitGroup
}

// New creates a Queue holding at most size waiting tasks.
func New(repo store.TaskRepo, size, workers int, log *logging.Logger) *Queue {
	return &Queue{
		repo:     repo,
		log:      log,
		workers:  workers,
		jobs:     make(chan job, size),
		handlers: map[string]Handler{},
	}
}

// Register binds a handler to a task name. It must be called before Start.
func (q *Queue) Register(name string, h Handler) {
	q.handlers[name] = h
}

// Submit persists a Pending task and enqueues it.
func (q *Queue) Submit(ctx context.Context, name string, params json.RawMessage) (*store.Task, error) {
	if _, ok := q.handlers[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	hash, err := canonicaljson.Fingerprint(params)
	if err != nil {
		return nil, fmt.Errorf("fingerprint parameters: %w", err)
	}

	task := &store.Task{
		ID:             uuid.NewString(),
		Name:           name,
		Status:         store.TaskStatusPending,
		Parameters:     params,
		ParametersHash: hash,
	}
	if err := q.repo.InsertTask(ctx, task); err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	select {
	case q.jobs <- job{id: task.ID, name: name, params: params}:
		metrics.QueueDepth.Set(float64(len(q.jobs)))
	default:
		if err := q.repo.FinishTask(ctx, task.ID, store.TaskStatusFailure, nil, ErrQueueFull.Error()); err != nil {
			q.log.WithContext(ctx).Error("mark rejected task", "task_id", task.ID, "error", err)
		}
		return nil, ErrQueueFull
	}

	q.log.WithContext(ctx).Info("task queued", "task_id", task.ID, "name", name, "parameters_hash", hash)
	return task, nil
}

// Start re-enqueues tasks left Pending by a previous process and launches
// the workers. Workers stop taking new tasks when ctx is cancelled; a task
// already running is finished.
func (q *Queue) Start(ctx context.Context) {
	pending := q.pendingJobs(ctx)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func(worker int) {
			defer q.wg.Done()
			q.work(ctx, worker)
		}(i)
	}

	if len(pending) == 0 {
		return
	}
	q.log.Info("resuming pending tasks", "count", len(pending))
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for _, j := range pending {
			select {
			case <-ctx.Done():
				return
			case q.jobs <- j:
				metrics.QueueDepth.Set(float64(len(q.jobs)))
			}
		}
	}()
}

// pendingJobs lists Pending tasks oldest first.
func (q *Queue) pendingJobs(ctx context.Context) []job {
	const page = 100
	var tasks []*store.Task
	for offset := 0; ; offset += page {
		batch, err := q.repo.ListTasks(ctx, "", store.TaskStatusPending, page, offset)
		if err != nil {
			q.log.Error("list pending tasks", "error", err)
			break
		}
		tasks = append(tasks, batch...)
		if len(batch) < page {
			break
		}
	}

	var jobs []job
	for i := len(tasks) - 1; i >= 0; i-- {
		t := tasks[i]
		if _, ok := q.handlers[t.Name]; !ok {
			q.log.Warn("pending task has no handler", "task_id", t.ID, "name", t.Name)
			continue
		}
		jobs = append(jobs, job{id: t.ID, name: t.Name, params: t.Parameters})
	}
	return jobs
}

// Wait blocks until every worker has exited.
func (q *Queue) Wait() {
	q.wg.Wait()
}

func (q *Queue) work(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			q.log.Info("worker stopping", "worker", worker)
			return
		case j := <-q.jobs:
			metrics.QueueDepth.Set(float64(len(q.jobs)))
			if ctx.Err() != nil {
				// Left Pending; the next Start picks it up.
				q.log.Info("worker stopping", "worker", worker)
				return
			}
			q.run(ctx, j)
		}
	}
}

// run executes j once. A task already claimed by another run is skipped.
func (q *Queue) run(ctx context.Context, j job) {
	// Once claimed, a task runs to the end even during shutdown.
	ctx = logging.ContextWithTaskID(context.WithoutCancel(ctx), j.id)
	log := q.log.WithContext(ctx).With("name", j.name)

	claimed, err := q.repo.ClaimTask(ctx, j.id)
	if err != nil {
		log.Error("claim task", "error", err)
		return
	}
	if !claimed {
		log.Warn("task already claimed, skipping")
		return
	}

	result, runErr := q.invoke(ctx, j)

	status := store.TaskStatusSuccess
	errMsg := ""
	if runErr != nil {
		status = store.TaskStatusFailure
		errMsg = runErr.Error()
		log.Error("task failed", "error", runErr)
	}

	var raw []byte
	if result != nil {
		if raw, err = json.Marshal(result); err != nil {
			log.Error("marshal task result", "error", err)
			raw = nil
		}
	}

	if err := q.repo.FinishTask(ctx, j.id, status, raw, errMsg); err != nil {
		log.Error("finish task", "error", err)
	}
	metrics.Tasks.WithLabelValues(j.name, status).Inc()
	log.Info("task finished", "status", status)
}

func (q *Queue) invoke(ctx context.Context, j job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return q.handlers[j.name](ctx, j.params)
}
