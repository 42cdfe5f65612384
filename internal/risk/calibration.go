package risk

import (
	"math"
)

// Calibrate bins probabilities into equal-width buckets on [0, 1] and
// compares each bucket's mean probability with its realized positive rate.
// Pairs with a NaN probability are skipped.
func Calibrate(probs []float64, labels []int, bins int) CalibrationReport {
	if bins < 1 {
		bins = 10
	}

	type acc struct {
		n    int
		sumP float64
		hits int
	}
	buckets := make([]acc, bins)

	var report CalibrationReport
	var sq float64
	for i, p := range probs {
		if i >= len(labels) || math.IsNaN(p) {
			continue
		}
		y := float64(labels[i])
		sq += (p - y) * (p - y)
		report.Samples++

		b := int(p * float64(bins))
		if b >= bins {
			b = bins - 1 // p == 1.0
		}
		if b < 0 {
			b = 0
		}
		buckets[b].n++
		buckets[b].sumP += p
		buckets[b].hits += labels[i]
	}
	if report.Samples == 0 {
		return report
	}
	report.Brier = sq / float64(report.Samples)

	width := 1.0 / float64(bins)
	for i, a := range buckets {
		if a.n == 0 {
			continue
		}
		bin := CalibrationBin{
			Bin:          i,
			Lower:        float64(i) * width,
			Upper:        float64(i+1) * width,
			SampleCount:  a.n,
			AvgPredicted: a.sumP / float64(a.n),
			HitRate:      float64(a.hits) / float64(a.n),
		}
		report.ECE += float64(a.n) / float64(report.Samples) * math.Abs(bin.Gap())
		report.Bins = append(report.Bins, bin)
	}
	return report
}
