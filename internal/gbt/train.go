package gbt

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"
)

const minHessian = 1e-16

var ErrEmptyTrainingSet = errors.New("empty training set")

// Fit trains a model on X (rows of equal width) and binary labels y.
func Fit(X [][]float64, y []float64, p Params) (*Model, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if len(X) == 0 {
		return nil, ErrEmptyTrainingSet
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("features and labels size mismatch: %d vs %d", len(X), len(y))
	}
	nf := len(X[0])
	if nf == 0 {
		return nil, fmt.Errorf("training rows have no features")
	}
	for i, row := range X {
		if len(row) != nf {
			return nil, fmt.Errorf("row %d: %w: expected %d, got %d", i, ErrFeatureCount, nf, len(row))
		}
		if y[i] != 0 && y[i] != 1 {
			return nil, fmt.Errorf("row %d: label must be 0 or 1, got %v", i, y[i])
		}
	}

	d := newBinnedData(X, p.MaxBins)
	n := len(X)

	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1
		if y[i] == 1 {
			weights[i] = p.ScalePosWeight
		}
	}

	model := &Model{Params: p, NumFeatures: nf}
	margins := make([]float64, n)
	grad := make([]float64, n)
	hess := make([]float64, n)
	rng := rand.New(rand.NewSource(p.Seed))
	allRows := make([]int, n)
	for i := range allRows {
		allRows[i] = i
	}

	for round := 0; round < p.NEstimators; round++ {
		for i := 0; i < n; i++ {
			prob := sigmoid(margins[i])
			grad[i] = weights[i] * (prob - y[i])
			hess[i] = math.Max(weights[i]*prob*(1-prob), minHessian)
		}

		rows := sampleRows(rng, allRows, p.Subsample)
		cols := sampleCols(rng, nf, p.ColsampleByTree)

		b := &builder{data: d, grad: grad, hess: hess, params: p, cols: cols}
		b.grow(rows, 0)
		tree := Tree{Nodes: b.nodes}
		model.Trees = append(model.Trees, tree)

		for i := 0; i < n; i++ {
			margins[i] += tree.predict(X[i])
		}
	}
	return model, nil
}

func sampleRows(rng *rand.Rand, all []int, ratio float64) []int {
	if ratio >= 1 {
		return all
	}
	rows := make([]int, 0, int(float64(len(all))*ratio)+1)
	for _, i := range all {
		if rng.Float64() < ratio {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		rows = append(rows, all[rng.Intn(len(all))])
	}
	return rows
}

func sampleCols(rng *rand.Rand, nf int, ratio float64) []int {
	if ratio >= 1 {
		cols := make([]int, nf)
		for i := range cols {
			cols[i] = i
		}
		return cols
	}
	k := int(math.Max(1, math.Round(float64(nf)*ratio)))
	cols := rng.Perm(nf)[:k]
	sort.Ints(cols)
	return cols
}

// binnedData maps every feature value to a histogram bin. Bin b of feature
// f holds values x with cuts[f][b-1] <= x < cuts[f][b].
type binnedData struct {
	cuts [][]float64
	bins [][]uint16 // [feature][row]
}

func newBinnedData(X [][]float64, maxBins int) *binnedData {
	nf := len(X[0])
	d := &binnedData{cuts: make([][]float64, nf), bins: make([][]uint16, nf)}
	col := make([]float64, len(X))
	for f := 0; f < nf; f++ {
		for i, row := range X {
			col[i] = row[f]
		}
		cuts := computeCuts(col, maxBins)
		d.cuts[f] = cuts
		bins := make([]uint16, len(X))
		for i, v := range col {
			if math.IsNaN(v) {
				continue
			}
			bins[i] = uint16(sort.Search(len(cuts), func(j int) bool { return cuts[j] > v }))
		}
		d.bins[f] = bins
	}
	return d
}

// computeCuts returns the ascending split candidates for one feature: every
// distinct value but the smallest when there are few, quantiles otherwise.
func computeCuts(col []float64, maxBins int) []float64 {
	vals := make([]float64, 0, len(col))
	for _, v := range col {
		if !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return nil
	}
	sort.Float64s(vals)

	uniq := make([]float64, 0, len(vals))
	for i, v := range vals {
		if i == 0 || v != vals[i-1] {
			uniq = append(uniq, v)
		}
	}
	if len(uniq) <= 1 {
		return nil
	}
	if len(uniq) <= maxBins {
		return append([]float64(nil), uniq[1:]...)
	}

	cuts := make([]float64, 0, maxBins-1)
	for k := 1; k < maxBins; k++ {
		q := stat.Quantile(float64(k)/float64(maxBins), stat.Empirical, vals, nil)
		if q <= uniq[0] || (len(cuts) > 0 && q <= cuts[len(cuts)-1]) {
			continue
		}
		cuts = append(cuts, q)
	}
	return cuts
}

type builder struct {
	data   *binnedData
	grad   []float64
	hess   []float64
	params Params
	cols   []int
	nodes  []Node
}

type split struct {
	feature int
	bin     int
	gain    float64
}

// grow appends the subtree for rows and returns its root index.
func (b *builder) grow(rows []int, depth int) int {
	var G, H float64
	for _, i := range rows {
		G += b.grad[i]
		H += b.hess[i]
	}

	idx := len(b.nodes)
	b.nodes = append(b.nodes, Node{
		Feature: -1,
		Left:    -1,
		Right:   -1,
		Leaf:    true,
		Value:   -G / (H + b.params.Lambda) * b.params.LearningRate,
		Cover:   H,
	})

	if depth >= b.params.MaxDepth || len(rows) < 2 || H < 2*b.params.MinChildWeight {
		return idx
	}

	best, ok := b.bestSplit(rows, G, H)
	if !ok {
		return idx
	}

	bins := b.data.bins[best.feature]
	left := make([]int, 0, len(rows))
	right := make([]int, 0, len(rows))
	for _, i := range rows {
		if int(bins[i]) <= best.bin {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	li := b.grow(left, depth+1)
	ri := b.grow(right, depth+1)
	b.nodes[idx] = Node{
		Feature:   best.feature,
		Threshold: b.data.cuts[best.feature][best.bin],
		Left:      li,
		Right:     ri,
		Gain:      best.gain,
		Cover:     H,
	}
	return idx
}

func (b *builder) bestSplit(rows []int, G, H float64) (split, bool) {
	lambda := b.params.Lambda
	parent := G * G / (H + lambda)
	best := split{gain: 0}
	found := false

	for _, f := range b.cols {
		cuts := b.data.cuts[f]
		if len(cuts) == 0 {
			continue
		}
		nb := len(cuts) + 1
		gh := make([]float64, nb)
		hh := make([]float64, nb)
		bins := b.data.bins[f]
		for _, i := range rows {
			gh[bins[i]] += b.grad[i]
			hh[bins[i]] += b.hess[i]
		}

		var GL, HL float64
		for bin := 0; bin < nb-1; bin++ {
			GL += gh[bin]
			HL += hh[bin]
			GR, HR := G-GL, H-HL
			if HL < b.params.MinChildWeight || HR < b.params.MinChildWeight {
				continue
			}
			gain := 0.5 * (GL*GL/(HL+lambda) + GR*GR/(HR+lambda) - parent)
			if gain > best.gain+1e-12 {
				best = split{feature: f, bin: bin, gain: gain}
				found = true
			}
		}
	}
	return best, found
}
