package risk

import (
	"math"
	"sort"
)

// =============================================================================
// VaR (Value at Risk) Calculation
// =============================================================================

// CalculateVaR 과거 수익률 기반 VaR 계산 (Historical Simulation)
// returns: 실현 수익률 배열 (양수=이익, 음수=손실), NaN 은 무시
// confidence: 신뢰수준 (예: 0.95, 0.99)
// 반환값: VaR는 손실을 양수로 표현 (예: 0.05 = 5% 손실 가능)
func CalculateVaR(returns []float64, confidence float64) VaRResult {
	// 수익률 정렬 (오름차순: 손실이 앞에)
	sorted := make([]float64, 0, len(returns))
	for _, r := range returns {
		if !math.IsNaN(r) {
			sorted = append(sorted, r)
		}
	}
	if len(sorted) == 0 {
		return VaRResult{Confidence: confidence}
	}
	sort.Float64s(sorted)

	// VaR: (1-confidence) 백분위수
	// 예: 95% VaR = 하위 5% 백분위수
	idx := int(math.Floor((1.0 - confidence) * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	return VaRResult{
		Confidence: confidence,
		Samples:    len(sorted),
		VaR:        lossPositive(sorted[idx]),
		CVaR:       CalculateCVaR(sorted, idx),
	}
}

// CalculateCVaR Conditional VaR (Expected Shortfall) 계산
// sorted: 오름차순 정렬된 수익률
// varIdx: VaR 인덱스 (이 인덱스 이하의 수익률이 tail)
func CalculateCVaR(sorted []float64, varIdx int) float64 {
	if len(sorted) == 0 || varIdx < 0 {
		return 0
	}
	if varIdx >= len(sorted) {
		varIdx = len(sorted) - 1
	}

	// VaR 인덱스까지의 수익률 평균 (tail 평균)
	var sum float64
	for i := 0; i <= varIdx; i++ {
		sum += sorted[i]
	}
	return lossPositive(sum / float64(varIdx+1))
}

// lossPositive 손실을 양수로, 이익은 0 으로
func lossPositive(r float64) float64 {
	if r < 0 {
		return -r
	}
	return 0
}
