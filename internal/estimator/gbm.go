package estimator

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// BoostingParams configures the gradient-boosted regression trees.
type BoostingParams struct {
	Rounds          int
	MaxDepth        int
	LearningRate    float64
	NumLeaves       int
	MinChildSamples int
	Subsample       float64
	ColSample       float64
	MaxBins         int
	Seed            int64
}

func DefaultBoostingParams() BoostingParams {
	return BoostingParams{
		Rounds:          200,
		MaxDepth:        5,
		LearningRate:    0.05,
		NumLeaves:       20,
		MinChildSamples: 10,
		Subsample:       0.8,
		ColSample:       0.8,
		MaxBins:         255,
		Seed:            42,
	}
}

type treeNode struct {
	feature   int
	threshold float64
	left      int
	right     int
	value     float64
	leaf      bool
}

type regressionTree struct {
	nodes []treeNode
}

func (t *regressionTree) predict(x []float64) float64 {
	i := 0
	for !t.nodes[i].leaf {
		n := t.nodes[i]
		if x[n.feature] <= n.threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
	return t.nodes[i].value
}

// boostedTrees is a fitted additive tree ensemble on squared error.
type boostedTrees struct {
	base       float64
	trees      []*regressionTree
	splitCount []int
}

func (m *boostedTrees) predict(x []float64) float64 {
	out := m.base
	for _, t := range m.trees {
		out += t.predict(x)
	}
	return out
}

// binMapper quantizes one feature into ordered bins; bin b holds values in
// (upper[b-1], upper[b]].
type binMapper struct {
	upper []float64
}

func newBinMapper(values []float64, maxBins int) binMapper {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	distinct := make([]float64, 0, len(sorted))
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			distinct = append(distinct, v)
		}
	}

	var upper []float64
	if len(distinct) <= maxBins {
		upper = append(upper, distinct[:len(distinct)-1]...)
	} else {
		for b := 1; b < maxBins; b++ {
			v := distinct[b*len(distinct)/maxBins-1]
			if len(upper) == 0 || v > upper[len(upper)-1] {
				upper = append(upper, v)
			}
		}
	}
	upper = append(upper, math.Inf(1))
	return binMapper{upper: upper}
}

func (m binMapper) bin(v float64) int32 {
	return int32(sort.SearchFloat64s(m.upper, v))
}

type split struct {
	gain    float64
	feature int
	bin     int
	valid   bool
}

type growingLeaf struct {
	node  int
	rows  []int
	depth int
	sum   float64
	best  split
}

type grower struct {
	params  BoostingParams
	mappers []binMapper
	bins    [][]int32
	sums    []float64
	counts  []int
}

// fitBoostedTrees grows trees leaf-wise on histogram bins, the way
// LightGBM-style learners do for squared error.
func fitBoostedTrees(X [][]float64, y []float64, p BoostingParams) *boostedTrees {
	n := len(X)
	m := &boostedTrees{}
	if n == 0 {
		return m
	}
	nf := len(X[0])
	m.base = stat.Mean(y, nil)
	m.splitCount = make([]int, nf)

	if p.MaxBins < 2 {
		p.MaxBins = 2
	}
	if p.MinChildSamples < 1 {
		p.MinChildSamples = 1
	}

	g := &grower{
		params:  p,
		mappers: make([]binMapper, nf),
		bins:    make([][]int32, nf),
		sums:    make([]float64, p.MaxBins),
		counts:  make([]int, p.MaxBins),
	}
	column := make([]float64, n)
	for f := 0; f < nf; f++ {
		for i := range X {
			column[i] = X[i][f]
		}
		g.mappers[f] = newBinMapper(column, p.MaxBins)
		g.bins[f] = make([]int32, n)
		for i := range X {
			g.bins[f][i] = g.mappers[f].bin(X[i][f])
		}
	}

	rng := rand.New(rand.NewSource(p.Seed))
	pred := make([]float64, n)
	for i := range pred {
		pred[i] = m.base
	}
	residual := make([]float64, n)

	for r := 0; r < p.Rounds; r++ {
		for i := range residual {
			residual[i] = y[i] - pred[i]
		}
		rows := sampleRows(rng, n, p.Subsample)
		feats := sampleFeatures(rng, nf, p.ColSample)

		tree := g.grow(rows, feats, residual, m.splitCount)
		for i := range X {
			pred[i] += tree.predict(X[i])
		}
		m.trees = append(m.trees, tree)
	}
	return m
}

func sampleRows(rng *rand.Rand, n int, fraction float64) []int {
	rows := make([]int, 0, n)
	if fraction >= 1 || fraction <= 0 {
		for i := 0; i < n; i++ {
			rows = append(rows, i)
		}
		return rows
	}
	for i := 0; i < n; i++ {
		if rng.Float64() < fraction {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		rows = append(rows, rng.Intn(n))
	}
	return rows
}

func sampleFeatures(rng *rand.Rand, nf int, fraction float64) []int {
	k := nf
	if fraction > 0 && fraction < 1 {
		k = int(fraction * float64(nf))
		if k < 1 {
			k = 1
		}
	}
	feats := rng.Perm(nf)[:k]
	sort.Ints(feats)
	return feats
}

func (g *grower) grow(rows, feats []int, residual []float64, splitCount []int) *regressionTree {
	t := &regressionTree{}
	leaves := []*growingLeaf{g.newLeaf(t, rows, 0, feats, residual)}

	for len(leaves) < g.params.NumLeaves {
		pick := -1
		for i, l := range leaves {
			if l.best.valid && (pick < 0 || l.best.gain > leaves[pick].best.gain) {
				pick = i
			}
		}
		if pick < 0 {
			break
		}

		l := leaves[pick]
		f, b := l.best.feature, l.best.bin
		var left, right []int
		for _, r := range l.rows {
			if int(g.bins[f][r]) <= b {
				left = append(left, r)
			} else {
				right = append(right, r)
			}
		}

		ll := g.newLeaf(t, left, l.depth+1, feats, residual)
		rl := g.newLeaf(t, right, l.depth+1, feats, residual)
		t.nodes[l.node] = treeNode{
			feature:   f,
			threshold: g.mappers[f].upper[b],
			left:      ll.node,
			right:     rl.node,
		}
		splitCount[f]++

		leaves[pick] = ll
		leaves = append(leaves, rl)
	}
	return t
}

func (g *grower) newLeaf(t *regressionTree, rows []int, depth int, feats []int, residual []float64) *growingLeaf {
	var sum float64
	for _, r := range rows {
		sum += residual[r]
	}
	l := &growingLeaf{node: len(t.nodes), rows: rows, depth: depth, sum: sum}

	value := 0.0
	if len(rows) > 0 {
		value = g.params.LearningRate * sum / float64(len(rows))
	}
	t.nodes = append(t.nodes, treeNode{leaf: true, value: value})

	depthOK := g.params.MaxDepth <= 0 || depth < g.params.MaxDepth
	if depthOK && len(rows) >= 2*g.params.MinChildSamples {
		l.best = g.bestSplit(rows, sum, feats, residual)
	}
	return l
}

// bestSplit maximizes the squared-error reduction over all bin boundaries.
func (g *grower) bestSplit(rows []int, total float64, feats []int, residual []float64) split {
	n := len(rows)
	parent := total * total / float64(n)
	minChild := g.params.MinChildSamples
	var best split

	for _, f := range feats {
		nb := len(g.mappers[f].upper)
		if nb < 2 {
			continue
		}
		sums, counts := g.sums[:nb], g.counts[:nb]
		for b := range sums {
			sums[b], counts[b] = 0, 0
		}
		col := g.bins[f]
		for _, r := range rows {
			b := col[r]
			sums[b] += residual[r]
			counts[b]++
		}

		var leftSum float64
		leftCount := 0
		for b := 0; b < nb-1; b++ {
			leftSum += sums[b]
			leftCount += counts[b]
			if counts[b] == 0 || leftCount < minChild {
				continue
			}
			rightCount := n - leftCount
			if rightCount < minChild {
				break
			}
			rightSum := total - leftSum
			gain := leftSum*leftSum/float64(leftCount) + rightSum*rightSum/float64(rightCount) - parent
			if gain > 1e-12 && (!best.valid || gain > best.gain) {
				best = split{gain: gain, feature: f, bin: b, valid: true}
			}
		}
	}
	return best
}
