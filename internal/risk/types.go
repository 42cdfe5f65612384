package risk

// VaRConvention VaR 부호 규약
// ⭐ SSOT: Loss를 양수로 표현 (VaR=0.05 → 5% 손실 가능)
// 전체 시스템에서 이 규약을 일관되게 사용
const VaRConvention = "loss_positive"

// VaRResult VaR 계산 결과
// ⭐ SSOT: VaR/CVaR는 손실을 양수로 표현
// - VaR=0.05 → 95% 신뢰수준에서 최대 5% 손실 가능
// - CVaR=0.07 → 5% tail에서 평균 7% 손실 예상
type VaRResult struct {
	Confidence float64 `json:"confidence"` // 신뢰수준 (예: 0.95, 0.99)
	Samples    int     `json:"samples"`
	VaR        float64 `json:"var"`  // Value at Risk (손실, 양수)
	CVaR       float64 `json:"cvar"` // Conditional VaR (Expected Shortfall, 양수)
}

// CalibrationBin 캘리브레이션 빈 (신뢰도 다이어그램용)
// 예측 확률 구간별로 실제 양성 비율을 비교
type CalibrationBin struct {
	Bin          int     `json:"bin"` // 0..bins-1
	Lower        float64 `json:"lower"`
	Upper        float64 `json:"upper"`
	SampleCount  int     `json:"sample_count"`
	AvgPredicted float64 `json:"avg_predicted"` // 평균 예측 확률
	HitRate      float64 `json:"hit_rate"`      // 실제 양성 비율
}

// Gap is the signed miscalibration of the bin (positive = overconfident)
func (b CalibrationBin) Gap() float64 {
	return b.AvgPredicted - b.HitRate
}

// CalibrationReport summarises predicted probabilities against realized labels
type CalibrationReport struct {
	Samples int              `json:"samples"`
	Brier   float64          `json:"brier"` // mean squared error of the probabilities
	ECE     float64          `json:"ece"`   // sample-weighted mean |gap|
	Bins    []CalibrationBin `json:"bins"`  // empty bins omitted
}
