package classifier

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/wonny/smartflow/internal/contracts"
	"github.com/wonny/smartflow/internal/pipelineconfig"
)

// Kind is the codec tag of the boosted-tree model
const Kind = "gbt"

const (
	lambda  = 1.0   // L2 정규화
	minGain = 1e-12 // 이보다 작은 gain 의 분할은 무시
	probEps = 1e-6
)

// Params are the boosting hyperparameters
type Params struct {
	NEstimators    int     `msgpack:"n_estimators"`
	MaxDepth       int     `msgpack:"max_depth"`
	LearningRate   float64 `msgpack:"learning_rate"`
	Subsample      float64 `msgpack:"subsample"`
	MinChildWeight float64 `msgpack:"min_child_weight"`
	MaxBins        int     `msgpack:"max_bins"`
	Seed           uint64  `msgpack:"seed"`
}

// ParamsFrom maps the pipeline classifier section
func ParamsFrom(c pipelineconfig.Classifier) Params {
	return Params{
		NEstimators:    c.NEstimators,
		MaxDepth:       c.MaxDepth,
		LearningRate:   c.LearningRate,
		Subsample:      c.Subsample,
		MinChildWeight: c.MinChildWeight,
		MaxBins:        c.MaxBins,
		Seed:           uint64(c.Seed),
	}
}

// GBT fits gradient-boosted regression trees under logistic loss.
// NaN cells are routed by a learned default direction per split.
// ⭐ SSOT: 기본 Classifier 구현 (같은 입력 + 같은 seed = 같은 모델)
type GBT struct {
	params Params
}

var _ contracts.Classifier = (*GBT)(nil)

// New creates a boosted-tree classifier
func New(params Params) *GBT {
	if params.MaxBins < 2 || params.MaxBins > missingBin {
		params.MaxBins = 32
	}
	return &GBT{params: params}
}

// Fit trains a model on X (rows × features) and binary y
func (g *GBT) Fit(ctx context.Context, X [][]float64, y []int) (contracts.Predictor, error) {
	if len(X) == 0 {
		return nil, fmt.Errorf("fit: empty training set")
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("fit: %d rows but %d labels", len(X), len(y))
	}
	nFeatures := len(X[0])
	var pos int
	for i, row := range X {
		if len(row) != nFeatures {
			return nil, fmt.Errorf("fit: row %d has %d features, want %d", i, len(row), nFeatures)
		}
		if y[i] != 0 && y[i] != 1 {
			return nil, fmt.Errorf("fit: row %d label %d is not binary", i, y[i])
		}
		pos += y[i]
	}

	p := clamp(float64(pos) / float64(len(y)))
	model := &Model{
		Params:     g.params,
		NFeatures:  nFeatures,
		BaseScore:  math.Log(p / (1 - p)),
		Importance: make([]float64, nFeatures),
	}

	bn := newBinner(X, nFeatures, g.params.MaxBins)
	binned := bn.transform(X)
	rng := rand.New(rand.NewPCG(g.params.Seed, g.params.Seed))

	n := len(X)
	margin := make([]float64, n)
	for i := range margin {
		margin[i] = model.BaseScore
	}
	grad := make([]float64, n)
	hess := make([]float64, n)
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}

	for t := 0; t < g.params.NEstimators; t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for i := 0; i < n; i++ {
			pr := sigmoid(margin[i])
			grad[i] = pr - float64(y[i])
			hess[i] = math.Max(pr*(1-pr), 1e-16)
		}

		gr := &grower{
			params:   g.params,
			binner:   bn,
			binned:   binned,
			grad:     grad,
			hess:     hess,
			gains:    model.Importance,
			features: nFeatures,
		}
		gr.grow(g.sample(rng, all), 0)
		tree := Tree{Nodes: gr.nodes}
		model.Trees = append(model.Trees, tree)

		for i := 0; i < n; i++ {
			margin[i] += tree.predict(X[i])
		}
	}

	return model, nil
}

// sample draws the row subset of one boosting round
func (g *GBT) sample(rng *rand.Rand, all []int) []int {
	if g.params.Subsample >= 1 {
		return all
	}
	rows := make([]int, 0, int(float64(len(all))*g.params.Subsample)+1)
	for _, r := range all {
		if rng.Float64() < g.params.Subsample {
			rows = append(rows, r)
		}
	}
	if len(rows) == 0 {
		rows = append(rows, all[rng.IntN(len(all))])
	}
	return rows
}

// Model is a fitted boosted-tree ensemble
type Model struct {
	Params     Params    `msgpack:"params"`
	NFeatures  int       `msgpack:"n_features"`
	BaseScore  float64   `msgpack:"base_score"`
	Trees      []Tree    `msgpack:"trees"`
	Importance []float64 `msgpack:"importance"` // 특성별 누적 split gain
}

var _ contracts.Predictor = (*Model)(nil)

// Kind implements contracts.Predictor
func (m *Model) Kind() string { return Kind }

// Margin is the raw log-odds for one row
func (m *Model) Margin(x []float64) float64 {
	s := m.BaseScore
	for i := range m.Trees {
		s += m.Trees[i].predict(x)
	}
	return s
}

// PredictProba returns P(label = 1)
func (m *Model) PredictProba(x []float64) float64 {
	if len(x) != m.NFeatures {
		return contracts.Unknown
	}
	return sigmoid(m.Margin(x))
}

// FeatureImportance returns gain shares summing to 1 (all zero for a stump-only model)
func (m *Model) FeatureImportance() []float64 {
	out := make([]float64, len(m.Importance))
	var total float64
	for _, g := range m.Importance {
		total += g
	}
	if total <= 0 {
		return out
	}
	for i, g := range m.Importance {
		out[i] = g / total
	}
	return out
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func clamp(p float64) float64 {
	return math.Min(math.Max(p, probEps), 1-probEps)
}
