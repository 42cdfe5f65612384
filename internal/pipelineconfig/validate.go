package pipelineconfig

import (
	"fmt"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks all required constraints
func Validate(cfg *Config) error {
	// === Ingest ===
	if err := validateFraction(cfg.Ingest.MaxMalformedFraction, "ingest.max_malformed_fraction"); err != nil {
		return err
	}

	// === Quality ===
	q := cfg.Quality
	if err := validateFraction(q.MinSymbolOverlap, "quality.min_symbol_overlap"); err != nil {
		return err
	}
	if q.MaxPriceJump <= 0 {
		return ValidationError{"quality.max_price_jump", "must be > 0"}
	}
	if q.MaxVolumeMultiple <= 1 {
		return ValidationError{"quality.max_volume_multiple", "must be > 1"}
	}
	if q.VolumeWindow < 2 {
		return ValidationError{"quality.volume_window", "must be >= 2"}
	}
	if q.MaxFlowAbsCrore <= 0 {
		return ValidationError{"quality.max_flow_abs_crore", "must be > 0"}
	}
	if q.OutlierZ <= 0 {
		return ValidationError{"quality.outlier_z", "must be > 0"}
	}

	// === Reconcile ===
	if cfg.Reconcile.LookbackDays < 0 {
		return ValidationError{"reconcile.lookback_days", "must be >= 0"}
	}
	if cfg.Reconcile.Decay <= 0 || cfg.Reconcile.Decay > 1 {
		return ValidationError{"reconcile.decay", "must be in (0, 1]"}
	}

	// === Universe ===
	if cfg.Universe.MinLiquidity < 0 {
		return ValidationError{"universe.min_liquidity", "must be >= 0"}
	}
	if cfg.Universe.MinDeliveryPct < 0 || cfg.Universe.MinDeliveryPct > 100 {
		return ValidationError{"universe.min_delivery_pct", "must be in [0, 100]"}
	}
	if cfg.Universe.Window < 1 {
		return ValidationError{"universe.window", "must be >= 1"}
	}

	// === Features ===
	if cfg.Features.MinLookback < cfg.Universe.Window {
		return ValidationError{"features.min_lookback", fmt.Sprintf("must be >= universe.window=%d", cfg.Universe.Window)}
	}

	// === Labels ===
	if len(cfg.Labels.Horizons) == 0 {
		return ValidationError{"labels.horizons", "required"}
	}
	seen := make(map[string]bool)
	for i, h := range cfg.Labels.Horizons {
		field := fmt.Sprintf("labels.horizons[%d]", i)
		if h.Name == "" {
			return ValidationError{field + ".name", "required"}
		}
		if seen[h.Name] {
			return ValidationError{field + ".name", fmt.Sprintf("duplicate horizon %q", h.Name)}
		}
		seen[h.Name] = true
		if h.Days < 1 {
			return ValidationError{field + ".days", "must be >= 1"}
		}
		if h.Threshold <= 0 {
			return ValidationError{field + ".threshold", "must be > 0"}
		}
	}

	// === Anomaly ===
	a := cfg.Anomaly
	if a.PriceJump <= 0 {
		return ValidationError{"anomaly.price_jump", "must be > 0"}
	}
	if a.VolumeSpike <= 1 {
		return ValidationError{"anomaly.volume_spike", "must be > 1"}
	}
	if a.CorroborationSpike <= 1 {
		return ValidationError{"anomaly.corroboration_spike", "must be > 1"}
	}
	if a.MinDeliverySupport < 0 {
		return ValidationError{"anomaly.min_delivery_support", "must be >= 0"}
	}
	if a.LowDeliveryPct < 0 || a.LowDeliveryPct > 100 {
		return ValidationError{"anomaly.low_delivery_pct", "must be in [0, 100]"}
	}

	// === Training ===
	t := cfg.Training
	if t.MinRows < 1 {
		return ValidationError{"training.min_rows", "must be >= 1"}
	}
	if t.MaxImbalanceRatio < 1 {
		return ValidationError{"training.max_imbalance_ratio", "must be >= 1"}
	}
	if t.CVSplits < 0 {
		return ValidationError{"training.cv_splits", "must be >= 0"}
	}
	c := t.Classifier
	if c.NEstimators < 1 {
		return ValidationError{"training.classifier.n_estimators", "must be >= 1"}
	}
	if c.MaxDepth < 1 || c.MaxDepth > 12 {
		return ValidationError{"training.classifier.max_depth", "must be in [1, 12]"}
	}
	if c.LearningRate <= 0 || c.LearningRate > 1 {
		return ValidationError{"training.classifier.learning_rate", "must be in (0, 1]"}
	}
	if c.Subsample <= 0 || c.Subsample > 1 {
		return ValidationError{"training.classifier.subsample", "must be in (0, 1]"}
	}
	if c.MaxBins < 2 || c.MaxBins > 255 {
		return ValidationError{"training.classifier.max_bins", "must be in [2, 255]"}
	}

	// === Ranking ===
	if cfg.Ranking.TopN < 1 {
		return ValidationError{"ranking.top_n", "must be >= 1"}
	}

	return nil
}

// validateFraction checks that v is within [0, 1]
func validateFraction(v float64, field string) error {
	if v < 0 || v > 1 {
		return ValidationError{field, fmt.Sprintf("must be in [0, 1], got %.4f", v)}
	}
	return nil
}
