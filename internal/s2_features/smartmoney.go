package s2_features

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/wonny/smartflow/internal/contracts"
)

const (
	zscoreWindow   = 20
	minZScorePts   = 5
	trendWindow    = 5
	minTrendPts    = 3
	recencyHorizon = 20
)

// fieldAt extracts one companion field from a record
type fieldAt func(r *contracts.DailyRecord) contracts.Field

func deliveryPct(r *contracts.DailyRecord) contracts.Field { return r.DeliveryPct }
func fiiNet(r *contracts.DailyRecord) contracts.Field      { return r.FIINet }
func diiNet(r *contracts.DailyRecord) contracts.Field      { return r.DIINet }

// known collects the known values of a field over the last n records,
// with their positions relative to the window start
func known(recs []contracts.DailyRecord, n int, get fieldAt) (xs, ys []float64) {
	start := len(recs) - n
	if start < 0 {
		start = 0
	}
	for i := start; i < len(recs); i++ {
		if v, ok := get(&recs[i]).Get(); ok {
			xs = append(xs, float64(i-start))
			ys = append(ys, v)
		}
	}
	return xs, ys
}

func value(f contracts.Field) float64 {
	if v, ok := f.Get(); ok {
		return v
	}
	return contracts.Unknown
}

// meanKnown averages the known values over the last n records
func meanKnown(recs []contracts.DailyRecord, n int, get fieldAt) float64 {
	_, ys := known(recs, n, get)
	if len(ys) == 0 {
		return contracts.Unknown
	}
	return stat.Mean(ys, nil)
}

// smartMoney computes delivery, institutional flow, OI and deal features
func smartMoney(s *series, out map[string]float64) {
	recs := s.recs
	today := &recs[len(recs)-1]

	// 인도율
	pct := value(today.DeliveryPct)
	out[DeliveryPct] = pct
	out[DeliveryConfidence] = today.DeliveryPct.Weight

	_, hist := known(recs, zscoreWindow, deliveryPct)
	if len(hist) >= minZScorePts && !math.IsNaN(pct) {
		mean, std := stat.MeanStdDev(hist, nil)
		out[DeliveryVsMA20] = pct - mean
		if std > 0 {
			out[DeliveryZScore20D] = (pct - mean) / std
		}
	}

	if xs, ys := known(recs, trendWindow, deliveryPct); len(ys) >= minTrendPts {
		_, slope := stat.LinearRegression(xs, ys, nil, false)
		out[DeliveryTrend5D] = slope
	}

	// 기관 수급 (시장 전체)
	fii, dii := value(today.FIINet), value(today.DIINet)
	out[FIINet] = fii
	out[DIINet] = dii
	out[FIINetMA5] = meanKnown(recs, 5, fiiNet)
	out[FIINetMA20] = meanKnown(recs, 20, fiiNet)
	out[DIINetMA5] = meanKnown(recs, 5, diiNet)
	out[DIINetMA20] = meanKnown(recs, 20, diiNet)
	if !math.IsNaN(fii) && !math.IsNaN(dii) {
		out[FIIDIIDivergence] = fii - dii
	}
	out[InstFlowStrength] = flowStrength(out)
	out[FlowConfidence] = math.Min(today.FIINet.Weight, today.DIINet.Weight)

	// 참여자별 미결제약정
	out[OILongShortFII] = oiRatio(today.OI.FIILong, today.OI.FIIShort)
	out[OILongShortClient] = oiRatio(today.OI.ClientLong, today.OI.ClientShort)
	out[OIChange5D] = oiChange(recs, 5)

	// 대량/블록 딜: 부재 = 없음
	out[BulkBlockFlag] = 0
	if today.BulkBlock {
		out[BulkBlockFlag] = 1
	}
	out[BulkBlockRecency] = bulkRecency(recs)

	if v20 := tail(s.volume, 20); v20 != nil {
		out[AvgVolume20D] = stat.Mean(v20, nil)
	}
	out[SpreadProxy] = spreadProxy(s, 20)
}

// flowStrength is the 5-day combined flow relative to the 20-day gross flow
func flowStrength(out map[string]float64) float64 {
	f5, d5 := out[FIINetMA5], out[DIINetMA5]
	f20, d20 := out[FIINetMA20], out[DIINetMA20]
	if math.IsNaN(f5) || math.IsNaN(d5) || math.IsNaN(f20) || math.IsNaN(d20) {
		return contracts.Unknown
	}
	return safeDiv(f5+d5, math.Abs(f20)+math.Abs(d20))
}

func oiRatio(long, short contracts.Field) float64 {
	l, lok := long.Get()
	s, sok := short.Get()
	if !lok || !sok || s <= 0 {
		return contracts.Unknown
	}
	return l / s
}

// oiChange is the change of FII net OI over lag sessions scaled by today's gross OI
func oiChange(recs []contracts.DailyRecord, lag int) float64 {
	t := len(recs) - 1
	if t-lag < 0 {
		return contracts.Unknown
	}
	netAt := func(r *contracts.DailyRecord) (net, gross float64, ok bool) {
		l, lok := r.OI.FIILong.Get()
		s, sok := r.OI.FIIShort.Get()
		return l - s, l + s, lok && sok
	}
	now, gross, ok1 := netAt(&recs[t])
	then, _, ok2 := netAt(&recs[t-lag])
	if !ok1 || !ok2 {
		return contracts.Unknown
	}
	return safeDiv(now-then, gross)
}

// bulkRecency counts sessions since the last deal, capped at the horizon
func bulkRecency(recs []contracts.DailyRecord) float64 {
	t := len(recs) - 1
	for age := 0; age <= recencyHorizon && t-age >= 0; age++ {
		if recs[t-age].BulkBlock {
			return float64(age)
		}
	}
	return recencyHorizon
}

// spreadProxy is the mean high-low range over n sessions
func spreadProxy(s *series, n int) float64 {
	if len(s.close) < n {
		return contracts.Unknown
	}
	ranges := make([]float64, 0, n)
	for i := len(s.close) - n; i < len(s.close); i++ {
		if s.close[i] <= 0 {
			return contracts.Unknown
		}
		ranges = append(ranges, (s.high[i]-s.low[i])/s.close[i])
	}
	return stat.Mean(ranges, nil)
}
