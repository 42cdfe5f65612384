package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/smartflow/internal/contracts"
	"github.com/wonny/smartflow/internal/training"
	"github.com/wonny/smartflow/pkg/logger"
)

// ModelHandler serves stored model artifacts
// ⭐ SSOT: 모델 조회 API 핸들러는 이 구조체에서만
type ModelHandler struct {
	store  *training.ModelStore
	logger *logger.Logger
}

// NewModelHandler creates a new model handler
func NewModelHandler(store *training.ModelStore, log *logger.Logger) *ModelHandler {
	return &ModelHandler{
		store:  store,
		logger: log.Component("api.models"),
	}
}

// ModelSummary is the JSON view of an artifact (without the classifier bytes)
type ModelSummary struct {
	ID         string                `json:"id"`
	Horizon    contracts.Horizon     `json:"horizon"`
	TrainedOn  time.Time             `json:"trained_on"`
	Version    int                   `json:"version"`
	Kind       string                `json:"kind"`
	Features   int                   `json:"features"`
	Rows       int                   `json:"rows"`
	Positives  int                   `json:"positives"`
	CV         training.CVReport     `json:"cv"`
	Importance []training.Importance `json:"importance"`
	ConfigHash string                `json:"config_hash"`
}

func summarize(m *training.Model) ModelSummary {
	return ModelSummary{
		ID:         m.ID(),
		Horizon:    m.Horizon,
		TrainedOn:  m.TrainedOn,
		Version:    m.Version,
		Kind:       m.Kind,
		Features:   len(m.FeatureNames),
		Rows:       m.Rows,
		Positives:  m.Positives,
		CV:         m.CV,
		Importance: m.Importance,
		ConfigHash: m.ConfigHash,
	}
}

// List returns every artifact of a horizon
// GET /api/models/{horizon}
func (h *ModelHandler) List(w http.ResponseWriter, r *http.Request) {
	horizon := mux.Vars(r)["horizon"]

	artifacts, err := h.store.List(horizon)
	if err != nil {
		h.logger.WithError(err).WithField("horizon", horizon).Error("Failed to list models")
		respondError(w, http.StatusInternalServerError, "Failed to list models")
		return
	}
	if len(artifacts) == 0 {
		respondError(w, http.StatusNotFound, "No models for horizon "+horizon)
		return
	}
	respondJSON(w, http.StatusOK, artifacts)
}

// Get returns one artifact's summary; version "latest" follows the pointer
// GET /api/models/{horizon}/{version}
func (h *ModelHandler) Get(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	version := vars["version"]
	if version == "latest" {
		version = ""
	}

	m, _, err := h.store.Load(vars["horizon"], version)
	if errors.Is(err, contracts.ErrModelNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, summarize(m))
}
