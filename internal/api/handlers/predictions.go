package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/smartflow/internal/contracts"
	"github.com/wonny/smartflow/internal/selection"
	"github.com/wonny/smartflow/pkg/logger"
	"github.com/wonny/smartflow/pkg/redis"
)

// PredictionHandler serves ranked prediction tables
// ⭐ SSOT: 예측 조회 API 핸들러는 이 구조체에서만
type PredictionHandler struct {
	output *selection.Output
	cache  *redis.Cache
	logger *logger.Logger
}

// NewPredictionHandler creates a new prediction handler; cache may be nil
func NewPredictionHandler(output *selection.Output, cache *redis.Cache, log *logger.Logger) *PredictionHandler {
	return &PredictionHandler{
		output: output,
		cache:  cache,
		logger: log.Component("api.predictions"),
	}
}

// GetLatest returns the most recent ranked table
// GET /api/predictions/latest?horizon=daily&limit=5
func (h *PredictionHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	table, err := h.output.Latest()
	if err != nil {
		respondError(w, http.StatusNotFound, "No predictions available")
		return
	}
	h.respondTable(w, r, table)
}

// GetByDate returns the ranked table of one as-of date
// GET /api/predictions/{date}?horizon=weekly
func (h *PredictionHandler) GetByDate(w http.ResponseWriter, r *http.Request) {
	date, ok := parseDate(mux.Vars(r)["date"])
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid date (YYYY-MM-DD)")
		return
	}

	table, err := h.load(r, date)
	if err != nil {
		respondError(w, http.StatusNotFound, "No predictions for "+contracts.DateKey(date))
		return
	}
	h.respondTable(w, r, table)
}

func (h *PredictionHandler) load(r *http.Request, date time.Time) (*contracts.RankedTable, error) {
	key := redis.PredictionsKey(contracts.DateKey(date))

	var cached contracts.RankedTable
	hit, err := h.cache.Get(r.Context(), key, &cached)
	if err != nil {
		h.logger.WithError(err).Warn("Prediction cache read failed")
	}
	if hit {
		return &cached, nil
	}

	table, err := h.output.Load(date)
	if err != nil {
		return nil, err
	}
	if err := h.cache.Set(r.Context(), key, table, redis.TTLPredictions); err != nil {
		h.logger.WithError(err).Warn("Prediction cache write failed")
	}
	return table, nil
}

// respondTable applies the optional horizon filter and limit
func (h *PredictionHandler) respondTable(w http.ResponseWriter, r *http.Request, table *contracts.RankedTable) {
	horizon := r.URL.Query().Get("horizon")
	limit := queryInt(r, "limit", 0)

	if horizon == "" && limit == 0 {
		respondJSON(w, http.StatusOK, table)
		return
	}

	var preds []contracts.Prediction
	switch horizon {
	case "", selection.CombinedList:
		preds = table.Combined
	default:
		var ok bool
		if preds, ok = table.ByHorizon[horizon]; !ok {
			respondError(w, http.StatusNotFound, "Horizon not predicted: "+horizon)
			return
		}
	}
	if limit > 0 && limit < len(preds) {
		preds = preds[:limit]
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":      table.RunID,
		"as_of":       contracts.DateKey(table.AsOf),
		"horizon":     horizon,
		"predictions": preds,
	})
}
