// Package api exposes the planner over HTTP.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/p-n-ai/pai-planner/internal/analytics"
	"github.com/p-n-ai/pai-planner/internal/lifecycle"
	"github.com/p-n-ai/pai-planner/internal/planner"
	"github.com/p-n-ai/pai-planner/internal/task"
)

const maxBodyBytes = 1 << 20

// Planner is the subset of planner.Engine the handlers call.
type Planner interface {
	CurrentTasks(ctx context.Context, learnerID string) (planner.Week, error)
	CurrentTask(ctx context.Context, learnerID string) (task.Task, bool, error)
	Complete(ctx context.Context, learnerID, taskID string, score *float64, meta map[string]any) (lifecycle.Completion, error)
	CompleteUnit(ctx context.Context, learnerID, unitID string) (task.Progress, error)
	Dashboard(ctx context.Context, learnerID string) (planner.Dashboard, error)
	Progress(ctx context.Context, learnerID string) (analytics.ProgressReport, error)
	Export(ctx context.Context, learnerID string, w io.Writer) error
	Preview(ctx context.Context, learnerID string, completedUnits []string) ([]task.Task, error)
}

// Handler serves the planner routes.
type Handler struct {
	planner Planner
}

// New creates a handler.
func New(p Planner) *Handler {
	return &Handler{planner: p}
}

// Register mounts the planner routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/users/{user_id}/tasks", h.listTasks)
	mux.HandleFunc("GET /v1/users/{user_id}/tasks/current", h.currentTask)
	mux.HandleFunc("POST /v1/users/{user_id}/tasks/{task_id}/complete", h.completeTask)
	mux.HandleFunc("GET /v1/users/{user_id}/dashboard", h.dashboard)
	mux.HandleFunc("GET /v1/users/{user_id}/progress", h.progress)
	mux.HandleFunc("GET /v1/users/{user_id}/progress.xlsx", h.export)
	mux.HandleFunc("POST /v1/users/{user_id}/chapters/{chapter_id}/complete", h.completeUnit)
	mux.HandleFunc("POST /v1/admin/tasks/preview", h.preview)
}

type completeRequest struct {
	Score       *float64       `json:"score"`
	AttemptData map[string]any `json:"attempt_data"`
}

type previewRequest struct {
	UserID            string   `json:"user_id"`
	CompletedChapters []string `json:"completed_chapters"`
}

// GET /v1/users/{user_id}/tasks
func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	week, err := h.planner.CurrentTasks(r.Context(), r.PathValue("user_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"week_start": week.WeekStart,
		"assigned":   week.Assigned,
		"tasks":      week.Tasks,
		"count":      len(week.Tasks),
	})
}

// GET /v1/users/{user_id}/tasks/current
func (h *Handler) currentTask(w http.ResponseWriter, r *http.Request) {
	t, ok, err := h.planner.CurrentTask(r.Context(), r.PathValue("user_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"current_task": nil,
			"message":      "No tasks available",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "current_task": t})
}

// POST /v1/users/{user_id}/tasks/{task_id}/complete
func (h *Handler) completeTask(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.planner.Complete(r.Context(), r.PathValue("user_id"), r.PathValue("task_id"), req.Score, req.AttemptData)
	if err != nil {
		writeError(w, r, err)
		return
	}
	msg := "Task marked as completed"
	if !c.Changed {
		msg = "Task already completed"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": msg,
		"changed": c.Changed,
		"task":    c.Task,
	})
}

// GET /v1/users/{user_id}/dashboard
func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.planner.Dashboard(r.Context(), r.PathValue("user_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "dashboard": d})
}

// GET /v1/users/{user_id}/progress
func (h *Handler) progress(w http.ResponseWriter, r *http.Request) {
	p, err := h.planner.Progress(r.Context(), r.PathValue("user_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "progress": p})
}

// GET /v1/users/{user_id}/progress.xlsx
func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	learnerID := r.PathValue("user_id")
	var buf bytes.Buffer
	if err := h.planner.Export(r.Context(), learnerID, &buf); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="progress-%s.xlsx"`, sanitizeFilename(learnerID)))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// POST /v1/users/{user_id}/chapters/{chapter_id}/complete
func (h *Handler) completeUnit(w http.ResponseWriter, r *http.Request) {
	unitID := r.PathValue("chapter_id")
	p, err := h.planner.CompleteUnit(r.Context(), r.PathValue("user_id"), unitID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  fmt.Sprintf("Chapter %s marked as completed", unitID),
		"progress": p,
	})
}

// POST /v1/admin/tasks/preview
func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, r, fmt.Errorf("%w: user_id required", task.ErrValidation))
		return
	}
	tasks, err := h.planner.Preview(r.Context(), req.UserID, req.CompletedChapters)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Preview assignment (not saved)",
		"tasks":   tasks,
		"count":   len(tasks),
	})
}

// decodeOptional decodes a JSON body into dst. An empty body leaves dst
// untouched.
func decodeOptional(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid JSON body: %v", task.ErrValidation, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

// StatusFor maps a planner error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, task.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, task.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, task.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, task.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal server error"
	} else {
		slog.Info("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func sanitizeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
