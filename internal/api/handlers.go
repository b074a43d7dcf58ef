// Package api exposes the engine over HTTP for editors and the CLI.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/Fintehhe/Pending-Changes-Reviewer/internal/baseline"
	apierrors "github.com/Fintehhe/Pending-Changes-Reviewer/internal/errors"
	"github.com/Fintehhe/Pending-Changes-Reviewer/internal/journal"
	"github.com/Fintehhe/Pending-Changes-Reviewer/internal/logging"
	"github.com/Fintehhe/Pending-Changes-Reviewer/internal/review"
	"github.com/Fintehhe/Pending-Changes-Reviewer/internal/workspace"
	shared "github.com/Fintehhe/Pending-Changes-Reviewer/shared/types"
)

// Handlers serves the engine's HTTP API.
type Handlers struct {
	svc     *review.Service
	ws      *workspace.Workspace
	buffers *workspace.Buffers
	bus     *workspace.Bus
	logger  *logging.Logger
}

// NewHandlers builds the handler set.
func NewHandlers(svc *review.Service, ws *workspace.Workspace, buffers *workspace.Buffers, bus *workspace.Bus, logger *logging.Logger) *Handlers {
	return &Handlers{svc: svc, ws: ws, buffers: buffers, bus: bus, logger: logger}
}

// Register installs all routes on mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("GET /api/changes", h.ListChanges)
	mux.HandleFunc("GET /api/changes/diff", h.Diff)
	mux.HandleFunc("POST /api/changes/accept", h.Accept)
	mux.HandleFunc("POST /api/changes/revert", h.Revert)
	mux.HandleFunc("POST /api/changes/untrack", h.Untrack)
	mux.HandleFunc("POST /api/changes/clear", h.Clear)

	mux.HandleFunc("GET /api/history", h.History)

	mux.HandleFunc("GET /api/tracking", h.TrackingState)
	mux.HandleFunc("POST /api/tracking/start", h.StartTracking)
	mux.HandleFunc("POST /api/tracking/stop", h.StopTracking)

	mux.HandleFunc("POST /api/documents/opened", h.DocumentOpened)
	mux.HandleFunc("POST /api/documents/will-save", h.DocumentWillSave)
	mux.HandleFunc("POST /api/documents/saved", h.DocumentSaved)
	mux.HandleFunc("POST /api/documents/closed", h.DocumentClosed)

	mux.HandleFunc("GET /api/events", h.Events)
}

type changesResponse struct {
	Changes []shared.ChangeEntry `json:"changes"`
}

type batchRequest struct {
	Paths []string `json:"paths,omitempty"`
	All   bool     `json:"all,omitempty"`
}

type batchResponse struct {
	Results []shared.Outcome `json:"results"`
}

type pathRequest struct {
	Path string `json:"path"`
}

type documentRequest struct {
	Path string `json:"path"`
	Text string `json:"text"`
}

type statusResponse struct {
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
}

type historyResponse struct {
	Entries []journal.Entry `json:"entries"`
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

// ListChanges returns the pending change set. With contents=0 the entry
// texts are stripped, which keeps status polls light.
func (h *Handlers) ListChanges(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Changes(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if r.URL.Query().Get("contents") == "0" {
		for i := range entries {
			entries[i].Original = ""
			entries[i].Current = ""
		}
	}
	writeJSON(w, http.StatusOK, changesResponse{Changes: entries})
}

// Diff renders one file's pending change as unified diff text.
func (h *Handlers) Diff(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		h.writeError(w, r, apierrors.ValidationError("path query parameter is required", nil))
		return
	}
	text, err := h.svc.Diff(path)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(text))
}

func (h *Handlers) Accept(w http.ResponseWriter, r *http.Request) {
	h.runBatch(w, r, h.svc.Accept, h.svc.AcceptAll)
}

func (h *Handlers) Revert(w http.ResponseWriter, r *http.Request) {
	h.runBatch(w, r, h.svc.Revert, h.svc.RevertAll)
}

func (h *Handlers) runBatch(w http.ResponseWriter, r *http.Request, one func(string) error, all func(context.Context) ([]shared.Outcome, error)) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apierrors.ValidationError("invalid request body", err.Error()))
		return
	}

	switch {
	case req.All:
		results, err := all(r.Context())
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, batchResponse{Results: results})
	case len(req.Paths) > 0:
		results := make([]shared.Outcome, 0, len(req.Paths))
		for _, path := range req.Paths {
			outcome := shared.Outcome{Path: path, OK: true}
			if err := one(path); err != nil {
				outcome.OK = false
				outcome.Error = err.Error()
			}
			results = append(results, outcome)
		}
		writeJSON(w, http.StatusOK, batchResponse{Results: results})
	default:
		h.writeError(w, r, apierrors.ValidationError("either paths or all must be set", nil))
	}
}

func (h *Handlers) Untrack(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		h.writeError(w, r, apierrors.ValidationError("path is required", nil))
		return
	}
	if err := h.svc.Untrack(req.Path); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "untracked", Path: req.Path})
}

func (h *Handlers) Clear(w http.ResponseWriter, r *http.Request) {
	h.svc.Clear()
	writeJSON(w, http.StatusOK, statusResponse{Status: "cleared"})
}

func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.writeError(w, r, apierrors.ValidationError("limit must be a non-negative integer", nil))
			return
		}
		limit = n
	}
	entries, err := h.svc.History(limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Entries: entries})
}

func (h *Handlers) TrackingState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.State())
}

func (h *Handlers) StartTracking(w http.ResponseWriter, r *http.Request) {
	h.svc.StartTracking()
	writeJSON(w, http.StatusOK, h.svc.State())
}

func (h *Handlers) StopTracking(w http.ResponseWriter, r *http.Request) {
	h.svc.StopTracking()
	writeJSON(w, http.StatusOK, h.svc.State())
}

func (h *Handlers) DocumentOpened(w http.ResponseWriter, r *http.Request) {
	ev, ok := h.decodeDocument(w, r)
	if !ok {
		return
	}
	h.buffers.Set(ev.Path, ev.Text)
	h.bus.Opened.Emit(ev)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) DocumentWillSave(w http.ResponseWriter, r *http.Request) {
	ev, ok := h.decodeDocument(w, r)
	if !ok {
		return
	}
	h.buffers.Set(ev.Path, ev.Text)
	h.bus.WillSave.Emit(ev)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) DocumentSaved(w http.ResponseWriter, r *http.Request) {
	ev, ok := h.decodeDocument(w, r)
	if !ok {
		return
	}
	h.buffers.Set(ev.Path, ev.Text)
	h.bus.Saved.Emit(ev)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) DocumentClosed(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		h.writeError(w, r, apierrors.ValidationError("path is required", nil))
		return
	}
	rel, err := h.ws.Rel(req.Path)
	if err != nil {
		h.writeError(w, r, apierrors.ValidationError(err.Error(), nil))
		return
	}
	h.buffers.Remove(rel)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) decodeDocument(w http.ResponseWriter, r *http.Request) (shared.DocumentEvent, bool) {
	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apierrors.ValidationError("invalid request body", err.Error()))
		return shared.DocumentEvent{}, false
	}
	if req.Path == "" {
		h.writeError(w, r, apierrors.ValidationError("path is required", nil))
		return shared.DocumentEvent{}, false
	}
	rel, err := h.ws.Rel(req.Path)
	if err != nil {
		h.writeError(w, r, apierrors.ValidationError(err.Error(), nil))
		return shared.DocumentEvent{}, false
	}
	return shared.DocumentEvent{Path: rel, Text: req.Text}, true
}

func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, baseline.ErrNotTracked), errors.Is(err, review.ErrNoPending):
		h.writeError(w, r, apierrors.NotFound(err.Error()))
	case errors.Is(err, review.ErrRevertFailed):
		h.writeError(w, r, apierrors.Conflict(err.Error()))
	default:
		h.writeError(w, r, apierrors.From(err))
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, apiErr *apierrors.Error) {
	h.logger.WithRequestID(r.Context()).Warn("request failed",
		zap.String("type", string(apiErr.Type)),
		zap.String("message", apiErr.Message),
	)
	writeJSON(w, apiErr.Code, apiErr)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
