package api

import (
	"errors"
	"net/http"

	"github.com/user/taskmarket/internal/hub"
	"github.com/user/taskmarket/internal/store"
	"github.com/user/taskmarket/internal/tasks"
)

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

type registerWorkerRequest struct {
	WorkerID         string `json:"worker_id"`
	CapabilitiesJSON string `json:"capabilities_json"`
}

func (h *handler) registerWorker(w http.ResponseWriter, r *http.Request) {
	var req registerWorkerRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var caps []string
	if req.CapabilitiesJSON != "" {
		if err := decodeJSONString(req.CapabilitiesJSON, &caps); err != nil {
			jsonError(w, http.StatusBadRequest, "capabilities_json must be a JSON array of strings")
			return
		}
	}

	if _, err := h.workers.Register(r.Context(), req.WorkerID, caps); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.hub.Publish(hub.Event{Type: hub.EventWorkerRegistered, Worker: req.WorkerID})
	jsonResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

type heartbeatRequest struct {
	WorkerID string `json:"worker_id"`
}

func (h *handler) heartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := h.workers.Heartbeat(r.Context(), req.WorkerID)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.hub.Publish(hub.Event{Type: hub.EventWorkerHeartbeat, Worker: req.WorkerID})
	jsonResponse(w, http.StatusOK, map[string]any{
		"ok": true,
		"ts": result.Timestamp,
	})
}

type createTaskRequest struct {
	Text                string `json:"text"`
	Type                string `json:"type"`
	RequiredSubmissions int    `json:"required_submissions"`
	MaxAttempts         int    `json:"max_attempts"`
}

func (h *handler) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	task, err := h.tasks.Create(r.Context(), tasks.CreateInput{
		Text:                req.Text,
		Type:                req.Type,
		RequiredSubmissions: req.RequiredSubmissions,
		MaxAttempts:         req.MaxAttempts,
	})
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.hub.Publish(hub.Event{Type: hub.EventTaskCreated, TaskID: task.ID})
	jsonResponse(w, http.StatusCreated, map[string]string{"task_id": task.ID})
}

func (h *handler) listTasks(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	items, err := h.tasks.List(r.Context(), status)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, newTaskViews(items))
}

func (h *handler) getTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	detail, err := h.tasks.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{
		"task":        newTaskView(detail.Task),
		"submissions": newSubmissionViews(detail.Submissions),
	})
}

type nextTaskRequest struct {
	WorkerID string `json:"worker_id"`
}

func (h *handler) nextTask(w http.ResponseWriter, r *http.Request) {
	var req nextTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	assignment, err := h.dispatch.NextTask(r.Context(), req.WorkerID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if assignment == nil {
		jsonResponse(w, http.StatusOK, map[string]any{"task_id": nil, "text": nil})
		return
	}

	h.hub.Publish(hub.Event{Type: hub.EventTaskAssigned, TaskID: assignment.TaskID, Worker: req.WorkerID})
	jsonResponse(w, http.StatusOK, map[string]any{"task_id": assignment.TaskID, "text": assignment.Text})
}

type submitRequest struct {
	WorkerID   string  `json:"worker_id"`
	TaskID     string  `json:"task_id"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

func (h *handler) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := h.aggregate.Submit(r.Context(), req.WorkerID, req.TaskID, req.Label, req.Confidence)
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if result.Finalized {
		h.hub.Publish(hub.Event{Type: hub.EventTaskFinalized, TaskID: req.TaskID, Label: result.FinalLabel})
	}
	jsonResponse(w, http.StatusOK, map[string]any{"ok": true, "duplicate": result.Duplicate})
}

func (h *handler) requeueStale(w http.ResponseWriter, r *http.Request) {
	result, err := h.reaper.Sweep(r.Context())
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, map[string]int{"requeued": result.TasksRequeued})
}

func (h *handler) reset(w http.ResponseWriter, r *http.Request) {
	if err := h.resetStore(r.Context()); err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.scores.Leaderboard(r.Context())
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, board)
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.buildStats(r.Context())
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, snapshot)
}

func (h *handler) listWorkers(w http.ResponseWriter, r *http.Request) {
	items, err := h.workers.List(r.Context())
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]workerView, 0, len(items))
	for _, wrk := range items {
		views = append(views, newWorkerView(wrk))
	}
	jsonResponse(w, http.StatusOK, views)
}

func (h *handler) events(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeStream(w, r)
}
