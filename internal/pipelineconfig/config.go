package pipelineconfig

import "github.com/wonny/smartflow/internal/contracts"

// Config는 파이프라인 전체 임계값/하이퍼파라미터
type Config struct {
	Meta      Meta      `yaml:"meta" json:"meta"`
	Ingest    Ingest    `yaml:"ingest" json:"ingest"`
	Quality   Quality   `yaml:"quality" json:"quality"`
	Reconcile Reconcile `yaml:"reconcile" json:"reconcile"`
	Universe  Universe  `yaml:"universe" json:"universe"`
	Features  Features  `yaml:"features" json:"features"`
	Labels    Labels    `yaml:"labels" json:"labels"`
	Anomaly   Anomaly   `yaml:"anomaly" json:"anomaly"`
	Training  Training  `yaml:"training" json:"training"`
	Ranking   Ranking   `yaml:"ranking" json:"ranking"`
}

// Meta 메타 정보
type Meta struct {
	PipelineID string `yaml:"pipeline_id" json:"pipeline_id"`
	Version    string `yaml:"version" json:"version"`
}

// Ingest raw 파일 파싱
type Ingest struct {
	MaxMalformedFraction float64 `yaml:"max_malformed_fraction" json:"max_malformed_fraction"`
}

// Quality S0 품질 게이트 임계값
type Quality struct {
	MinSymbolOverlap  float64 `yaml:"min_symbol_overlap" json:"min_symbol_overlap"`
	MaxPriceJump      float64 `yaml:"max_price_jump" json:"max_price_jump"`
	MaxVolumeMultiple float64 `yaml:"max_volume_multiple" json:"max_volume_multiple"`
	VolumeWindow      int     `yaml:"volume_window" json:"volume_window"`
	MaxFlowAbsCrore   float64 `yaml:"max_flow_abs_crore" json:"max_flow_abs_crore"`
	OutlierZ          float64 `yaml:"outlier_z" json:"outlier_z"`
	MinOutlierSymbols int     `yaml:"min_outlier_symbols" json:"min_outlier_symbols"`
}

// Reconcile 부분 데이터 보정
type Reconcile struct {
	LookbackDays int     `yaml:"lookback_days" json:"lookback_days"`
	Decay        float64 `yaml:"decay" json:"decay"`
}

// Universe 유동성 게이트
type Universe struct {
	MinLiquidity   float64 `yaml:"min_liquidity" json:"min_liquidity"`
	MinDeliveryPct float64 `yaml:"min_delivery_pct" json:"min_delivery_pct"`
	Window         int     `yaml:"window" json:"window"`
}

// Features 피처 엔진
type Features struct {
	MinLookback int `yaml:"min_lookback" json:"min_lookback"`
}

// Labels 호라이즌별 라벨 정의
type Labels struct {
	Horizons []contracts.Horizon `yaml:"horizons" json:"horizons"`
}

// Anomaly 조작성 가격 이상치 규칙
type Anomaly struct {
	PriceJump          float64 `yaml:"price_jump" json:"price_jump"`
	MinDeliverySupport float64 `yaml:"min_delivery_support" json:"min_delivery_support"`
	VolumeSpike        float64 `yaml:"volume_spike" json:"volume_spike"`
	CorroborationSpike float64 `yaml:"corroboration_spike" json:"corroboration_spike"`
	LowDeliveryPct     float64 `yaml:"low_delivery_pct" json:"low_delivery_pct"`
}

// Training 호라이즌별 모델 학습
type Training struct {
	MinRows           int        `yaml:"min_rows" json:"min_rows"`
	MaxImbalanceRatio float64    `yaml:"max_imbalance_ratio" json:"max_imbalance_ratio"`
	CVSplits          int        `yaml:"cv_splits" json:"cv_splits"`
	Classifier        Classifier `yaml:"classifier" json:"classifier"`
}

// Classifier 부스팅 트리 하이퍼파라미터
type Classifier struct {
	NEstimators    int     `yaml:"n_estimators" json:"n_estimators"`
	MaxDepth       int     `yaml:"max_depth" json:"max_depth"`
	LearningRate   float64 `yaml:"learning_rate" json:"learning_rate"`
	Subsample      float64 `yaml:"subsample" json:"subsample"`
	MinChildWeight float64 `yaml:"min_child_weight" json:"min_child_weight"`
	MaxBins        int     `yaml:"max_bins" json:"max_bins"`
	Seed           int64   `yaml:"seed" json:"seed"`
}

// Ranking 최종 랭킹
type Ranking struct {
	TopN            int    `yaml:"top_n" json:"top_n"`
	TieBreakFeature string `yaml:"tie_break_feature" json:"tie_break_feature"`
}

// Default returns the production defaults
func Default() *Config {
	return &Config{
		Meta: Meta{PipelineID: "nse_smartmoney", Version: "1"},
		Ingest: Ingest{
			MaxMalformedFraction: 0.05,
		},
		Quality: Quality{
			MinSymbolOverlap:  0.5,
			MaxPriceJump:      0.20,
			MaxVolumeMultiple: 50,
			VolumeWindow:      20,
			MaxFlowAbsCrore:   50000,
			OutlierZ:          8,
			MinOutlierSymbols: 20,
		},
		Reconcile: Reconcile{
			LookbackDays: 5,
			Decay:        0.8,
		},
		Universe: Universe{
			MinLiquidity:   100000,
			MinDeliveryPct: 30,
			Window:         20,
		},
		Features: Features{
			MinLookback: 60,
		},
		Labels: Labels{
			Horizons: contracts.DefaultHorizons(),
		},
		Anomaly: Anomaly{
			PriceJump:          0.05,
			MinDeliverySupport: 0.5,
			VolumeSpike:        3.0,
			CorroborationSpike: 2.0,
			LowDeliveryPct:     40,
		},
		Training: Training{
			MinRows:           200,
			MaxImbalanceRatio: 10,
			CVSplits:          5,
			Classifier: Classifier{
				NEstimators:    200,
				MaxDepth:       4,
				LearningRate:   0.05,
				Subsample:      0.8,
				MinChildWeight: 1,
				MaxBins:        32,
				Seed:           42,
			},
		},
		Ranking: Ranking{
			TopN:            10,
			TieBreakFeature: "delivery_zscore_20d",
		},
	}
}

// Horizon looks up a configured horizon by name
func (c *Config) Horizon(name string) (contracts.Horizon, bool) {
	for _, h := range c.Labels.Horizons {
		if h.Name == name {
			return h, true
		}
	}
	return contracts.Horizon{}, false
}

// MaxHorizonDays returns the longest forward window
func (c *Config) MaxHorizonDays() int {
	max := 0
	for _, h := range c.Labels.Horizons {
		if h.Days > max {
			max = h.Days
		}
	}
	return max
}
