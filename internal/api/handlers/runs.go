package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/smartflow/internal/audit"
	"github.com/wonny/smartflow/pkg/logger"
)

// RunHandler serves pipeline run records
type RunHandler struct {
	repo   *audit.Repository
	logger *logger.Logger
}

// NewRunHandler creates a new run handler; repo is nil without a database
func NewRunHandler(repo *audit.Repository, log *logger.Logger) *RunHandler {
	return &RunHandler{
		repo:   repo,
		logger: log.Component("api.runs"),
	}
}

// List returns recent runs
// GET /api/runs?kind=train&limit=20
func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		respondError(w, http.StatusServiceUnavailable, "Run history requires DATABASE_URL")
		return
	}

	runs, err := h.repo.ListRuns(r.Context(), r.URL.Query().Get("kind"), queryInt(r, "limit", 20))
	if err != nil {
		h.logger.WithError(err).Error("Failed to list runs")
		respondError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	respondJSON(w, http.StatusOK, runs)
}

// Get returns one run
// GET /api/runs/{id}
func (h *RunHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		respondError(w, http.StatusServiceUnavailable, "Run history requires DATABASE_URL")
		return
	}

	run, err := h.repo.GetRun(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, audit.ErrRunNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to get run")
		respondError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}
	respondJSON(w, http.StatusOK, run)
}
