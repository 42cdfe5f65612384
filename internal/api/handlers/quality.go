package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/smartflow/internal/contracts"
	"github.com/wonny/smartflow/internal/s0_data/quality"
	"github.com/wonny/smartflow/pkg/logger"
)

// QualityHandler serves stored data quality reports
// ⭐ SSOT: 품질 리포트 API 핸들러는 이 구조체에서만
type QualityHandler struct {
	store  *quality.Store
	logger *logger.Logger
}

// NewQualityHandler creates a new quality handler
func NewQualityHandler(store *quality.Store, log *logger.Logger) *QualityHandler {
	return &QualityHandler{
		store:  store,
		logger: log.Component("api.quality"),
	}
}

// ListDates returns every date with a report and whether it was admitted
// GET /api/quality
func (h *QualityHandler) ListDates(w http.ResponseWriter, r *http.Request) {
	dates, err := h.store.Dates()
	if err != nil {
		h.logger.WithError(err).Error("Failed to list quality reports")
		respondError(w, http.StatusInternalServerError, "Failed to list quality reports")
		return
	}

	keys := make([]string, len(dates))
	for i, d := range dates {
		keys[i] = contracts.DateKey(d)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"dates": keys,
		"count": len(keys),
	})
}

// GetLatest returns the newest report
// GET /api/quality/latest
func (h *QualityHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	report, err := h.store.Latest()
	if err != nil {
		respondError(w, http.StatusNotFound, "No quality reports available")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// GetByDate returns the report of one date
// GET /api/quality/{date}
func (h *QualityHandler) GetByDate(w http.ResponseWriter, r *http.Request) {
	date, ok := parseDate(mux.Vars(r)["date"])
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid date (YYYY-MM-DD)")
		return
	}

	report, err := h.store.Load(date)
	if err != nil {
		respondError(w, http.StatusNotFound, "No quality report for "+contracts.DateKey(date))
		return
	}
	respondJSON(w, http.StatusOK, report)
}
