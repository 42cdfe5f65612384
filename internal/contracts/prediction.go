package contracts

import "time"

// Prediction is one scored symbol under one horizon
// ⭐ SSOT: 최종 출력 단위 (생성 후 변경 없음)
type Prediction struct {
	AsOf           time.Time          `json:"as_of"`
	Symbol         string             `json:"symbol"`
	Horizon        string             `json:"horizon"`
	Probability    float64            `json:"probability"`
	Rank           int                `json:"rank"`
	DeliveryZScore *float64           `json:"delivery_zscore,omitempty"` // nil 이면 모름
	ModelVersion   string             `json:"model_version"`
	Snapshot       map[string]float64 `json:"snapshot"` // known features only
}

// RankedTable is the output of a prediction run
type RankedTable struct {
	RunID      string                  `json:"run_id"`
	AsOf       time.Time               `json:"as_of"`
	ConfigHash string                  `json:"config_hash"`
	TopN       int                     `json:"top_n"`
	ByHorizon  map[string][]Prediction `json:"by_horizon"`
	Combined   []Prediction            `json:"combined"`
	Skipped    map[string]string       `json:"skipped_horizons,omitempty"` // horizon → reason
	Anomalies  []AnomalyFlag           `json:"anomalies,omitempty"`
}
