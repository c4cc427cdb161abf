package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/postpilot/internal/api/shared"
	"github.com/phrazzld/postpilot/internal/domain"
	"github.com/phrazzld/postpilot/internal/platform/logger"
	"github.com/phrazzld/postpilot/internal/store"
	"github.com/phrazzld/postpilot/internal/task"
)

// TaskEngine is the part of the task engine the REST API exposes.
type TaskEngine interface {
	Submit(ctx context.Context, spec task.Spec, opts ...task.SubmitOption) (uuid.UUID, error)
	GetStatus(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	CancelTask(ctx context.Context, id uuid.UUID) error
	Stats() task.Stats
}

// TaskHandler serves the /api/tasks routes.
type TaskHandler struct {
	engine TaskEngine
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(engine TaskEngine) *TaskHandler {
	return &TaskHandler{engine: engine}
}

// SubmitTask handles POST /api/tasks. The task runs asynchronously, so the
// response is 202 with the new task ID.
func (h *TaskHandler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req SubmitTaskRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	id, err := h.engine.Submit(r.Context(), req.toSpec())
	if err != nil {
		if store.IsNotFoundError(err) {
			shared.RespondWithErrorAndLog(w, r, http.StatusUnprocessableEntity,
				GetSafeErrorMessage(err), err)
			return
		}
		HandleAPIError(w, r, err)
		return
	}

	log.Info("task submitted", "task_id", id, "task_type", req.Type)
	shared.RespondWithJSON(w, r, http.StatusAccepted, SubmitTaskResponse{TaskID: id})
}

// GetTask handles GET /api/tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	t, err := h.engine.GetStatus(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(t))
}

// CancelTask handles POST /api/tasks/{id}/cancel. Cancellation is applied
// at the task's next step boundary, so the response is 202.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	if err := h.engine.CancelTask(r.Context(), id); err != nil {
		HandleAPIError(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Info("task cancellation requested", "task_id", id)
	shared.RespondWithJSON(w, r, http.StatusAccepted, SubmitTaskResponse{TaskID: id})
}
