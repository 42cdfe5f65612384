package classifier

import "math"

// Node is one node of a regression tree stored in a flat slice.
// Leaves carry the learning-rate-scaled output.
type Node struct {
	Leaf        bool    `msgpack:"leaf"`
	Value       float64 `msgpack:"v"`
	Feature     int     `msgpack:"f"`
	Threshold   float64 `msgpack:"t"`
	DefaultLeft bool    `msgpack:"dl"`
	Left        int     `msgpack:"l"`
	Right       int     `msgpack:"r"`
}

// Tree is a regression tree; Nodes[0] is the root
type Tree struct {
	Nodes []Node `msgpack:"nodes"`
}

// predict walks the tree for one raw feature row
func (t *Tree) predict(x []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		v := x[n.Feature]
		switch {
		case math.IsNaN(v):
			if n.DefaultLeft {
				i = n.Left
			} else {
				i = n.Right
			}
		case v <= n.Threshold:
			i = n.Left
		default:
			i = n.Right
		}
	}
}

// split is the best candidate found for one node
type split struct {
	feature     int
	bin         int
	defaultLeft bool
	gain        float64
}

// histogram accumulates gradient statistics per bin of one feature
type histogram struct {
	g, h         []float64
	gMiss, hMiss float64
}

// grower builds one tree from binned data and per-row gradients
type grower struct {
	params   Params
	binner   *binner
	binned   [][]uint8
	grad     []float64
	hess     []float64
	gains    []float64 // 특성별 누적 gain
	nodes    []Node
	features int
}

func (gr *grower) leafValue(G, H float64) float64 {
	return -G / (H + lambda) * gr.params.LearningRate
}

func score(G, H float64) float64 {
	return G * G / (H + lambda)
}

// grow builds a subtree over rows and returns its node index
func (gr *grower) grow(rows []int, depth int) int {
	var G, H float64
	for _, r := range rows {
		G += gr.grad[r]
		H += gr.hess[r]
	}

	idx := len(gr.nodes)
	gr.nodes = append(gr.nodes, Node{Leaf: true, Value: gr.leafValue(G, H)})

	if depth >= gr.params.MaxDepth || len(rows) < 2 || H < 2*gr.params.MinChildWeight {
		return idx
	}

	best, ok := gr.bestSplit(rows, G, H)
	if !ok {
		return idx
	}

	left := make([]int, 0, len(rows))
	right := make([]int, 0, len(rows))
	col := gr.binned[best.feature]
	for _, r := range rows {
		b := col[r]
		goLeft := b != missingBin && int(b) <= best.bin
		if b == missingBin {
			goLeft = best.defaultLeft
		}
		if goLeft {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return idx
	}

	gr.gains[best.feature] += best.gain
	l := gr.grow(left, depth+1)
	r := gr.grow(right, depth+1)
	gr.nodes[idx] = Node{
		Feature:     best.feature,
		Threshold:   gr.binner.cuts[best.feature][best.bin],
		DefaultLeft: best.defaultLeft,
		Left:        l,
		Right:       r,
	}
	return idx
}

// bestSplit scans every feature histogram in feature order. A later
// candidate replaces the current best only with strictly higher gain.
func (gr *grower) bestSplit(rows []int, G, H float64) (split, bool) {
	parent := score(G, H)
	best := split{gain: minGain}
	found := false
	minChild := gr.params.MinChildWeight

	for f := 0; f < gr.features; f++ {
		nb := gr.binner.bins(f)
		if nb < 2 {
			continue
		}
		hist := gr.histogram(f, nb, rows)

		var gl, hl float64
		for b := 0; b < nb-1; b++ {
			gl += hist.g[b]
			hl += hist.h[b]

			for _, missLeft := range [2]bool{false, true} {
				GL, HL := gl, hl
				if missLeft {
					GL += hist.gMiss
					HL += hist.hMiss
				}
				GR, HR := G-GL, H-HL
				if HL < minChild || HR < minChild {
					continue
				}
				gain := score(GL, HL) + score(GR, HR) - parent
				if gain > best.gain {
					best = split{feature: f, bin: b, defaultLeft: missLeft, gain: gain}
					found = true
				}
			}
		}
	}
	return best, found
}

func (gr *grower) histogram(f, nb int, rows []int) histogram {
	hist := histogram{g: make([]float64, nb), h: make([]float64, nb)}
	col := gr.binned[f]
	for _, r := range rows {
		b := col[r]
		if b == missingBin {
			hist.gMiss += gr.grad[r]
			hist.hMiss += gr.hess[r]
			continue
		}
		hist.g[b] += gr.grad[r]
		hist.h[b] += gr.hess[r]
	}
	return hist
}
