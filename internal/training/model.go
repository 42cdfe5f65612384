package training

import (
	"fmt"
	"sort"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/wonny/smartflow/internal/classifier"
	"github.com/wonny/smartflow/internal/contracts"
)

// topImportance is how many features a model summary keeps
const topImportance = 20

// Importance is one feature's share of split gain
type Importance struct {
	Feature string  `json:"feature" msgpack:"feature"`
	Share   float64 `json:"share" msgpack:"share"`
}

// Model is the persisted artifact of one horizon
// ⭐ SSOT: 저장된 바이트 = 다시 읽은 바이트
type Model struct {
	Horizon       contracts.Horizon `msgpack:"horizon"`
	TrainedOn     time.Time         `msgpack:"trained_on"`
	Version       int               `msgpack:"version"`
	FeatureNames  []string          `msgpack:"feature_names"`
	Normalization Normalization     `msgpack:"normalization"`
	Kind          string            `msgpack:"kind"`
	Classifier    []byte            `msgpack:"classifier"`
	Rows          int               `msgpack:"rows"`
	Positives     int               `msgpack:"positives"`
	CV            CVReport          `msgpack:"cv"`
	Importance    []Importance      `msgpack:"importance"`
	ConfigHash    string            `msgpack:"config_hash"`

	predictor contracts.Predictor
}

// ID names the artifact, e.g. daily_20240315_v2
func (m *Model) ID() string {
	return fmt.Sprintf("%s_%s_v%d", m.Horizon.Name, m.TrainedOn.Format(fileLayout), m.Version)
}

// Predict scores one raw feature row. Rows with a different
// feature ordering must be realigned by the caller.
func (m *Model) Predict(values []float64) (float64, error) {
	if m.predictor == nil {
		p, err := classifier.Decode(m.Kind, m.Classifier)
		if err != nil {
			return 0, fmt.Errorf("model %s: %w", m.ID(), err)
		}
		m.predictor = p
	}
	if len(values) != len(m.FeatureNames) {
		return 0, fmt.Errorf("model %s: %d features, want %d", m.ID(), len(values), len(m.FeatureNames))
	}
	return m.predictor.PredictProba(m.Normalization.Apply(values)), nil
}

// Align reorders a vector from names into the model's feature order.
// Features the model knows but the vector lacks become Unknown.
func (m *Model) Align(names []string, values []float64) []float64 {
	pos := make(map[string]int, len(names))
	for i, n := range names {
		pos[n] = i
	}
	out := make([]float64, len(m.FeatureNames))
	for i, n := range m.FeatureNames {
		j, ok := pos[n]
		if !ok || j >= len(values) {
			out[i] = contracts.Unknown
			continue
		}
		out[i] = values[j]
	}
	return out
}

// Encode serializes the artifact
func (m *Model) Encode() ([]byte, error) {
	data, err := msgpack.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode model: %w", err)
	}
	return data, nil
}

// DecodeModel restores an artifact written by Encode
func DecodeModel(data []byte) (*Model, error) {
	var m Model
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	m.TrainedOn = m.TrainedOn.UTC()
	if len(m.Normalization.Mean) != len(m.FeatureNames) || len(m.Normalization.Std) != len(m.FeatureNames) {
		return nil, fmt.Errorf("decode model %s: normalization does not match %d features", m.ID(), len(m.FeatureNames))
	}
	return &m, nil
}

// rankImportance pairs gain shares with names and keeps the top entries
func rankImportance(names []string, shares []float64) []Importance {
	out := make([]Importance, 0, len(names))
	for i, n := range names {
		if i < len(shares) {
			out = append(out, Importance{Feature: n, Share: shares[i]})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Share != out[j].Share {
			return out[i].Share > out[j].Share
		}
		return out[i].Feature < out[j].Feature
	})
	if len(out) > topImportance {
		out = out[:topImportance]
	}
	return out
}
