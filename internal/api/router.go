package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/smartflow/internal/api/handlers"
	"github.com/wonny/smartflow/pkg/logger"
	"github.com/wonny/smartflow/pkg/metrics"
)

// Handlers groups the endpoint handlers of the read API
type Handlers struct {
	Predictions *handlers.PredictionHandler
	Quality     *handlers.QualityHandler
	Models      *handlers.ModelHandler
	Runs        *handlers.RunHandler
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(h Handlers, limiter *RateLimiter, rec *metrics.Recorder, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	// Prometheus
	if rec != nil {
		r.Handle("/metrics", rec.Handler()).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()

	// Predictions
	api.HandleFunc("/predictions/latest", h.Predictions.GetLatest).Methods("GET")
	api.HandleFunc("/predictions/{date}", h.Predictions.GetByDate).Methods("GET")

	// Quality
	api.HandleFunc("/quality", h.Quality.ListDates).Methods("GET")
	api.HandleFunc("/quality/latest", h.Quality.GetLatest).Methods("GET")
	api.HandleFunc("/quality/{date}", h.Quality.GetByDate).Methods("GET")

	// Models
	api.HandleFunc("/models/{horizon}", h.Models.List).Methods("GET")
	api.HandleFunc("/models/{horizon}/{version}", h.Models.Get).Methods("GET")

	// Runs
	api.HandleFunc("/runs", h.Runs.List).Methods("GET")
	api.HandleFunc("/runs/{id}", h.Runs.Get).Methods("GET")

	if limiter != nil {
		api.Use(limiter.Middleware)
	}

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "smartflow-api",
	})
}

// statusRecorder captures the response code for logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
