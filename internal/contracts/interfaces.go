package contracts

import "context"

// QualityGate evaluates one trading date (S0). history holds the accepted
// rows (date ordering); baseline holds the ingested bars the statistical
// checks compare against.
// ⭐ SSOT: S0 데이터 품질 검증 인터페이스
type QualityGate interface {
	Check(ctx context.Context, batch *DateBatch, history History, baseline *Baseline) (*QualityReport, error)
}

// Classifier trains a binary model on a numeric matrix.
// Unknown (NaN) cells must be accepted as missing values.
// ⭐ SSOT: 모델 구현은 이 인터페이스 뒤에서 교체 가능
type Classifier interface {
	Fit(ctx context.Context, X [][]float64, y []int) (Predictor, error)
}

// Predictor is a fitted binary classifier
type Predictor interface {
	Kind() string
	PredictProba(x []float64) float64
	FeatureImportance() []float64
	MarshalBinary() ([]byte, error)
}
