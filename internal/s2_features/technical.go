package s2_features

import (
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"github.com/wonny/smartflow/internal/contracts"
)

// series holds the trailing window of one symbol, oldest first.
// The last element is the feature date.
type series struct {
	open, high, low, close, volume []float64
	recs                           []contracts.DailyRecord
}

func newSeries(recs []contracts.DailyRecord) *series {
	s := &series{
		open:   make([]float64, len(recs)),
		high:   make([]float64, len(recs)),
		low:    make([]float64, len(recs)),
		close:  make([]float64, len(recs)),
		volume: make([]float64, len(recs)),
		recs:   recs,
	}
	for i, r := range recs {
		s.open[i], s.high[i], s.low[i], s.close[i], s.volume[i] = r.Open, r.High, r.Low, r.Close, r.Volume
	}
	return s
}

func (s *series) last() int { return len(s.close) - 1 }

// tail returns the last n values of xs, or nil when xs is shorter
func tail(xs []float64, n int) []float64 {
	if n <= 0 || len(xs) < n {
		return nil
	}
	return xs[len(xs)-n:]
}

// ratio returns a/b - 1, Unknown when b is not positive
func ratio(a, b float64) float64 {
	if b <= 0 || math.IsNaN(a) || math.IsNaN(b) {
		return contracts.Unknown
	}
	return a/b - 1
}

func safeDiv(a, b float64) float64 {
	if b == 0 || math.IsNaN(a) || math.IsNaN(b) {
		return contracts.Unknown
	}
	return a / b
}

func lastOf(xs []float64) float64 {
	if len(xs) == 0 {
		return contracts.Unknown
	}
	return xs[len(xs)-1]
}

// technical computes price/volume features
func technical(s *series, out map[string]float64) {
	t := s.last()
	c := s.close[t]

	out[Returns1D] = lagReturn(s.close, 1)
	out[Returns5D] = lagReturn(s.close, 5)
	out[Returns20D] = lagReturn(s.close, 20)

	out[LogVolume] = math.Log1p(s.volume[t])
	if v5 := tail(s.volume, 5); v5 != nil {
		out[VolumeMA5Ratio] = safeDiv(s.volume[t], lastOf(talib.Sma(v5, 5)))
	}
	if v20 := tail(s.volume, 20); v20 != nil {
		out[VolumeMA20Ratio] = safeDiv(s.volume[t], lastOf(talib.Sma(v20, 20)))
	}

	out[HighLowRange] = safeDiv(s.high[t]-s.low[t], c)
	out[VWAPDeviation] = vwapDeviation(s, 20)
	out[OBVNorm] = obvNorm(s, 20)
	out[NR7Flag] = nr7(s)

	if len(s.close) > 15 {
		out[ATRNorm] = safeDiv(lastOf(talib.Atr(s.high, s.low, s.close, 14)), c)
	}
	if c20 := tail(s.close, 20); c20 != nil {
		upper, middle, lower := talib.BBands(c20, 20, 2, 2, talib.SMA)
		out[BBWidthNorm] = safeDiv(lastOf(upper)-lastOf(lower), lastOf(middle))
	}

	sma5, sma20, sma50 := smaLast(s.close, 5), smaLast(s.close, 20), smaLast(s.close, 50)
	out[SMA20Ratio] = ratio(c, sma20)
	out[SMA50Ratio] = ratio(c, sma50)
	out[SMA5To20Ratio] = ratio(sma5, sma20)

	out[Volatility20D] = volatility(s.close, 20)
	if len(s.close) > 15 {
		out[RSI14] = lastOf(talib.Rsi(s.close, 14))
	}
}

func lagReturn(close []float64, lag int) float64 {
	t := len(close) - 1
	if t-lag < 0 {
		return contracts.Unknown
	}
	return ratio(close[t], close[t-lag])
}

func smaLast(xs []float64, period int) float64 {
	w := tail(xs, period)
	if w == nil {
		return contracts.Unknown
	}
	return lastOf(talib.Sma(w, period))
}

// volatility is the sample std-dev of the last n daily returns
func volatility(close []float64, n int) float64 {
	if len(close) < n+1 {
		return contracts.Unknown
	}
	w := close[len(close)-n-1:]
	rets := make([]float64, 0, n)
	for i := 1; i < len(w); i++ {
		if w[i-1] <= 0 {
			return contracts.Unknown
		}
		rets = append(rets, w[i]/w[i-1]-1)
	}
	return stat.StdDev(rets, nil)
}

// vwapDeviation compares the close with a volume-weighted typical price
func vwapDeviation(s *series, n int) float64 {
	if len(s.close) < n {
		return contracts.Unknown
	}
	start := len(s.close) - n
	typical := make([]float64, 0, n)
	for i := start; i < len(s.close); i++ {
		typical = append(typical, (s.high[i]+s.low[i]+s.close[i])/3)
	}
	weights := s.volume[start:]
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return contracts.Unknown
	}
	return ratio(s.close[s.last()], stat.Mean(typical, weights))
}

// obvNorm is the n-day OBV change scaled by n-day traded volume
func obvNorm(s *series, n int) float64 {
	if len(s.close) < n+1 {
		return contracts.Unknown
	}
	obv := talib.Obv(s.close, s.volume)
	t := s.last()
	total := 0.0
	for _, v := range s.volume[t-n+1:] {
		total += v
	}
	return safeDiv(obv[t]-obv[t-n], total)
}

// nr7 flags the narrowest high-low range of the last seven sessions
func nr7(s *series) float64 {
	if len(s.close) < 7 {
		return contracts.Unknown
	}
	t := s.last()
	today := s.high[t] - s.low[t]
	for i := t - 6; i < t; i++ {
		if s.high[i]-s.low[i] <= today {
			return 0
		}
	}
	return 1
}
