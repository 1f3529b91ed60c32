package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/spc/internal/models"
	"github.com/desertthunder/spc/internal/shared"
)

// Instances is the workflow host as seen by the HTTP API.
type Instances interface {
	Start(ctx context.Context, input models.WorkflowInput) (*models.Checkpoint, error)
	Get(ctx context.Context, id string) (*models.Checkpoint, error)
	List(ctx context.Context, status models.Status) ([]*models.Checkpoint, error)
	History(ctx context.Context, id string) ([]models.HistoryEvent, error)
	Terminate(ctx context.Context, id, reason string) (*models.Checkpoint, error)
}

// Counters is the counter registry as seen by the HTTP API.
type Counters interface {
	Read(ctx context.Context, key string) (models.CounterState, error)
	Reset(ctx context.Context, key string) error
}

// CounterHistory lists applied counter operations, newest first.
type CounterHistory interface {
	History(ctx context.Context, key string, limit int) ([]models.CounterMutation, error)
}

// APIHandler serves the orchestration and counter endpoints.
type APIHandler struct {
	instances Instances
	counters  Counters
	history   CounterHistory
	logger    *log.Logger
}

// NewAPIHandler creates an APIHandler. history may be nil, which disables the counter history route.
func NewAPIHandler(instances Instances, counters Counters, history CounterHistory, logger *log.Logger) *APIHandler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &APIHandler{instances: instances, counters: counters, history: history, logger: logger}
}

// Register adds every API route to router.
func (h *APIHandler) Register(router Router) {
	router.HandleFunc(http.MethodPost, "/api/orchestrators/{functionName}", h.start)
	router.HandleFunc(http.MethodGet, "/api/instances", h.list)
	router.HandleFunc(http.MethodGet, "/api/instances/{id}", h.get)
	router.HandleFunc(http.MethodGet, "/api/instances/{id}/history", h.instanceHistory)
	router.HandleFunc(http.MethodPost, "/api/instances/{id}/terminate", h.terminate)
	router.HandleFunc(http.MethodGet, "/api/counters/{state}", h.counter)
	router.HandleFunc(http.MethodPost, "/api/counters/{state}/reset", h.resetCounter)
	if h.history != nil {
		router.HandleFunc(http.MethodGet, "/api/counters/{state}/history", h.counterHistory)
	}
	router.HandleFunc(http.MethodGet, "/health", h.health)
}

// start launches the cleanup orchestrator and answers 202 with the instance's status links.
func (h *APIHandler) start(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("functionName")
	if name != models.OrchestratorName {
		writeError(w, h.logger, http.StatusNotFound, fmt.Sprintf("unknown orchestrator %q", name))
		return
	}

	var input models.WorkflowInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	cp, err := h.instances.Start(r.Context(), input)
	if err != nil {
		h.fail(w, err)
		return
	}

	links := instanceLinks(r, cp.InstanceID)
	h.logger.Info("started orchestration", "instance", cp.InstanceID, "generation", cp.Generation)

	w.Header().Set("Location", links.StatusQueryGetURI)
	writeJSON(w, h.logger, http.StatusAccepted, links)
}

func (h *APIHandler) list(w http.ResponseWriter, r *http.Request) {
	status := models.Status(r.URL.Query().Get("status"))
	switch status {
	case "", models.StatusRunning, models.StatusFailed, models.StatusTerminated:
	default:
		writeError(w, h.logger, http.StatusBadRequest, fmt.Sprintf("unknown status %q", status))
		return
	}

	checkpoints, err := h.instances.List(r.Context(), status)
	if err != nil {
		h.fail(w, err)
		return
	}
	if checkpoints == nil {
		checkpoints = []*models.Checkpoint{}
	}
	writeJSON(w, h.logger, http.StatusOK, checkpoints)
}

func (h *APIHandler) get(w http.ResponseWriter, r *http.Request) {
	cp, err := h.instances.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, cp)
}

func (h *APIHandler) instanceHistory(w http.ResponseWriter, r *http.Request) {
	events, err := h.instances.History(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if events == nil {
		events = []models.HistoryEvent{}
	}
	writeJSON(w, h.logger, http.StatusOK, events)
}

func (h *APIHandler) terminate(w http.ResponseWriter, r *http.Request) {
	cp, err := h.instances.Terminate(r.Context(), r.PathValue("id"), r.URL.Query().Get("reason"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, cp)
}

func (h *APIHandler) counter(w http.ResponseWriter, r *http.Request) {
	st, err := h.counters.Read(r.Context(), models.CounterKey(r.PathValue("state")))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, st)
}

func (h *APIHandler) resetCounter(w http.ResponseWriter, r *http.Request) {
	key := models.CounterKey(r.PathValue("state"))
	if err := h.counters.Reset(r.Context(), key); err != nil {
		h.fail(w, err)
		return
	}

	st, err := h.counters.Read(r.Context(), key)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, st)
}

func (h *APIHandler) counterHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, h.logger, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := h.history.History(r.Context(), models.CounterKey(r.PathValue("state")), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	if entries == nil {
		entries = []models.CounterMutation{}
	}
	writeJSON(w, h.logger, http.StatusOK, entries)
}

func (h *APIHandler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *APIHandler) fail(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	writeError(w, h.logger, status, err.Error())
}

// errorStatus maps sentinel errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, shared.ErrInvalidInput), errors.Is(err, shared.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrInstanceNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrHostClosed), errors.Is(err, shared.ErrRegistryClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, shared.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// instanceLinks builds the status and terminate URIs for id relative to the request's host.
func instanceLinks(r *http.Request, id string) models.InstanceLinks {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	base := scheme + "://" + r.Host + "/api/instances/" + url.PathEscape(id)
	return models.InstanceLinks{
		ID:                id,
		StatusQueryGetURI: base,
		TerminatePostURI:  base + "/terminate?reason={text}",
	}
}

func writeJSON(w http.ResponseWriter, logger *log.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "status", status, "error", err)
	}
}

func writeError(w http.ResponseWriter, logger *log.Logger, status int, msg string) {
	writeJSON(w, logger, status, map[string]string{"error": msg})
}
