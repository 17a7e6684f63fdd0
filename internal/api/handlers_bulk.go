package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/AgentMesh-Net/bulkops/internal/bulk"
	"github.com/AgentMesh-Net/bulkops/internal/logging"
	"github.com/AgentMesh-Net/bulkops/internal/store"
	"github.com/AgentMesh-Net/bulkops/internal/taskqueue"
	"github.com/AgentMesh-Net/bulkops/internal/util"
)

type matrixSearchRequest struct {
	IDs []int64 `json:"ids"`
}

// taskResponse is the handle returned for an accepted bulk operation.
type taskResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// PostMatrixSearch returns the attribute matrix for the requested assessments.
func (h *handlers) PostMatrixSearch(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	var req matrixSearchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		util.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	matrix, err := h.matrix.Read(r.Context(), req.IDs)
	if err != nil {
		h.log.WithContext(r.Context()).Error("matrix search", "error", err, "ids", len(req.IDs))
		util.WriteError(w, http.StatusInternalServerError, "internal_error", "failed to build attribute matrix")
		return
	}
	util.WriteJSON(w, http.StatusOK, matrix)
}

// PostBulkTask validates a bulk request and queues it under the given
// operation name.
func (h *handlers) PostBulkTask(op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		body, ok := h.readBody(w, r)
		if !ok {
			return
		}

		var req bulk.Request
		if err := json.Unmarshal(body, &req); err != nil {
			util.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
			return
		}
		if err := req.Validate(); err != nil {
			util.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		task, err := h.submitter.Submit(ctx, op, body)
		switch {
		case errors.Is(err, taskqueue.ErrQueueFull):
			util.WriteError(w, http.StatusServiceUnavailable, "queue_full", "too many bulk operations in progress")
			return
		case err != nil:
			h.log.WithContext(ctx).Error("submit bulk task", "operation", op, "error", err)
			util.WriteError(w, http.StatusInternalServerError, "internal_error", "failed to queue bulk operation")
			return
		}

		h.log.WithContext(logging.ContextWithTaskID(ctx, task.ID)).Info("bulk operation accepted",
			"operation", op,
			"assessments", len(req.AssessmentIDs),
			"updates", len(req.Attributes),
		)
		util.WriteJSON(w, http.StatusAccepted, newTaskResponse(task))
	}
}

func (h *handlers) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := util.ReadBody(r, h.maxBody)
	if errors.Is(err, util.ErrBodyTooLarge) {
		util.WriteError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large")
		return nil, false
	}
	if err != nil {
		util.WriteError(w, http.StatusBadRequest, "invalid_request", "failed to read body")
		return nil, false
	}
	return body, true
}

func newTaskResponse(t *store.Task) taskResponse {
	return taskResponse{ID: t.ID, Name: t.Name, Status: t.Status, CreatedAt: t.CreatedAt}
}
