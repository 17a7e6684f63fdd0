package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/AgentMesh-Net/bulkops/internal/store"
	"github.com/AgentMesh-Net/bulkops/internal/util"
)

type taskDetail struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Status         string          `json:"status"`
	ParametersHash string          `json:"parameters_hash"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func newTaskDetail(t *store.Task) taskDetail {
	d := taskDetail{
		ID:             t.ID,
		Name:           t.Name,
		Status:         t.Status,
		ParametersHash: t.ParametersHash,
		Error:          t.Error,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
	if len(t.Result) > 0 && json.Valid(t.Result) {
		d.Result = json.RawMessage(t.Result)
	}
	return d
}

// GetTask returns the status and result of one background task.
func (h *handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	if _, err := uuid.Parse(id); err != nil {
		util.WriteError(w, http.StatusNotFound, "not_found", "task not found")
		return
	}
	task, err := h.taskRepo.GetTask(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		util.WriteError(w, http.StatusNotFound, "not_found", "task not found")
		return
	}
	if err != nil {
		h.log.WithContext(r.Context()).Error("get task", "task_id", id, "error", err)
		util.WriteError(w, http.StatusInternalServerError, "internal_error", "failed to get task")
		return
	}
	util.WriteJSON(w, http.StatusOK, newTaskDetail(task))
}

// ListTasks lists background tasks, optionally filtered by name and status.
func (h *handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := util.ParseLimit(r, 20, 100)
	offset := util.ParseOffset(r)

	tasks, err := h.taskRepo.ListTasks(r.Context(), q.Get("name"), q.Get("status"), limit, offset)
	if err != nil {
		h.log.WithContext(r.Context()).Error("list tasks", "error", err)
		util.WriteError(w, http.StatusInternalServerError, "internal_error", "failed to list tasks")
		return
	}

	items := make([]taskDetail, 0, len(tasks))
	for _, t := range tasks {
		items = append(items, newTaskDetail(t))
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"limit":  limit,
		"offset": offset,
	})
}
