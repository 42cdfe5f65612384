package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/wonny/smartflow/internal/contracts"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// parseDate accepts YYYY-MM-DD or YYYYMMDD
func parseDate(s string) (time.Time, bool) {
	if d, err := contracts.ParseDate(s); err == nil {
		return d, true
	}
	if d, err := time.ParseInLocation("20060102", s, time.UTC); err == nil {
		return d, true
	}
	return time.Time{}, false
}

// queryInt reads a positive integer query parameter
func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
