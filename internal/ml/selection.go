package ml

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// StrategyKind names how the feature list of a bundle was chosen.
type StrategyKind string

const (
	// StrategyFixedList keeps the preferred features present in the data,
	// in preferred order.
	StrategyFixedList StrategyKind = "fixed_list"
	// StrategyTopKANOVA keeps the K columns with the highest ANOVA F score
	// against the target, in column order.
	StrategyTopKANOVA StrategyKind = "top_k_anova"
)

// FeatureScore is the ANOVA F test of one column against the target.
type FeatureScore struct {
	Name   string  `json:"name"`
	F      float64 `json:"f"`
	PValue float64 `json:"p_value"`
}

// Selection is the recorded outcome of feature selection.
type Selection struct {
	Strategy StrategyKind   `json:"strategy"`
	Features []string       `json:"features"`
	K        int            `json:"k,omitempty"`
	Scores   []FeatureScore `json:"scores,omitempty"`
}

// SelectFeatures intersects preferred with the available columns. When the
// intersection is empty it falls back to the top min(topK, n) columns by
// ANOVA F score. Ties keep column order.
func SelectFeatures(cols NumericColumns, y []float64, preferred []string, topK int) (Selection, error) {
	if len(cols.Names) == 0 {
		return Selection{}, ErrNoNumericFeatures
	}

	available := make(map[string]bool, len(cols.Names))
	for _, n := range cols.Names {
		available[n] = true
	}
	var fixed []string
	seen := make(map[string]bool)
	for _, p := range preferred {
		if available[p] && !seen[p] {
			fixed = append(fixed, p)
			seen[p] = true
		}
	}
	if len(fixed) > 0 {
		return Selection{Strategy: StrategyFixedList, Features: fixed}, nil
	}

	if topK <= 0 {
		return Selection{}, fmt.Errorf("top-k must be positive, got %d", topK)
	}
	k := topK
	if len(cols.Names) < k {
		k = len(cols.Names)
	}

	scores := make([]FeatureScore, len(cols.Names))
	for i, name := range cols.Names {
		f, p := anovaF(cols.Values[name], y)
		scores[i] = FeatureScore{Name: name, F: f, PValue: p}
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]].F > scores[order[b]].F
	})
	chosen := append([]int(nil), order[:k]...)
	sort.Ints(chosen)

	features := make([]string, k)
	for i, idx := range chosen {
		features[i] = cols.Names[idx]
	}
	return Selection{Strategy: StrategyTopKANOVA, Features: features, K: k, Scores: scores}, nil
}

// anovaF computes the one-way ANOVA F statistic of x grouped by the binary
// label y, ignoring NaN values of x. Degenerate inputs score 0 with p = 1;
// a perfect separation scores MaxFloat64 so the result stays JSON safe.
func anovaF(x, y []float64) (float64, float64) {
	var groups [2][]float64
	var all []float64
	for i, v := range x {
		if math.IsNaN(v) {
			continue
		}
		g := 0
		if y[i] == 1 {
			g = 1
		}
		groups[g] = append(groups[g], v)
		all = append(all, v)
	}

	n := len(all)
	const k = 2
	if len(groups[0]) == 0 || len(groups[1]) == 0 || n <= k {
		return 0, 1
	}

	grand := stat.Mean(all, nil)
	var ssb, ssw float64
	for _, g := range groups {
		mean, variance := stat.MeanVariance(g, nil)
		ssb += float64(len(g)) * (mean - grand) * (mean - grand)
		if len(g) > 1 {
			ssw += float64(len(g)-1) * variance
		}
	}

	switch {
	case ssw == 0 && ssb == 0:
		return 0, 1
	case ssw == 0:
		return math.MaxFloat64, 0
	}

	dfb, dfw := float64(k-1), float64(n-k)
	f := (ssb / dfb) / (ssw / dfw)
	p := distuv.F{D1: dfb, D2: dfw}.Survival(f)
	if math.IsNaN(p) {
		p = 1
	}
	return f, p
}
