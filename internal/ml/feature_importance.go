package ml

import (
	"math"
	"sort"
	"sync"
	"time"
)

// FeatureStats describes one bundle feature: its gain importance from the
// classifier and running statistics of the values it was served with.
type FeatureStats struct {
	Name              string    `json:"name"`
	ImportanceScore   float64   `json:"importance_score"`
	Rank              int       `json:"rank"`
	UsageCount        int64     `json:"usage_count"`
	AverageValue      float64   `json:"average_value"`
	StandardDeviation float64   `json:"standard_deviation"`
	MinValue          float64   `json:"min_value"`
	MaxValue          float64   `json:"max_value"`
	LastUpdated       time.Time `json:"last_updated,omitempty"`

	m2 float64
}

// RankFeatures returns the bundle features ordered by normalised gain
// importance, ties in feature order.
func RankFeatures(b *Bundle) []FeatureStats {
	if b == nil || b.Model == nil {
		return nil
	}
	imp := b.Model.FeatureImportance()
	out := make([]FeatureStats, len(b.Features))
	for j, name := range b.Features {
		out[j] = FeatureStats{Name: name}
		if j < len(imp) {
			out[j].ImportanceScore = imp[j]
		}
	}
	sort.SliceStable(out, func(a, c int) bool {
		return out[a].ImportanceScore > out[c].ImportanceScore
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// FeatureImportance tracks the values requests were scored with, per
// feature of the current bundle.
type FeatureImportance struct {
	mu    sync.RWMutex
	stats map[string]*FeatureStats
	order []string
}

// NewFeatureImportance starts tracking the features of b.
func NewFeatureImportance(b *Bundle) *FeatureImportance {
	fi := &FeatureImportance{}
	fi.Reset(b)
	return fi
}

// Reset drops collected statistics and re-seeds from b's features.
func (fi *FeatureImportance) Reset(b *Bundle) {
	fi.mu.Lock()
	defer fi.mu.Unlock()

	fi.stats = make(map[string]*FeatureStats)
	fi.order = nil
	for _, s := range RankFeatures(b) {
		s := s
		s.MinValue = math.Inf(1)
		s.MaxValue = math.Inf(-1)
		fi.stats[s.Name] = &s
		fi.order = append(fi.order, s.Name)
	}
}

// Observe records one scored request. Unknown features are ignored.
func (fi *FeatureImportance) Observe(features []string, x []float64) {
	fi.mu.Lock()
	defer fi.mu.Unlock()

	now := time.Now()
	for j, name := range features {
		s, ok := fi.stats[name]
		if !ok || j >= len(x) {
			continue
		}
		v := x[j]
		s.UsageCount++
		delta := v - s.AverageValue
		s.AverageValue += delta / float64(s.UsageCount)
		s.m2 += delta * (v - s.AverageValue)
		if s.UsageCount > 1 {
			s.StandardDeviation = math.Sqrt(s.m2 / float64(s.UsageCount-1))
		}
		s.MinValue = math.Min(s.MinValue, v)
		s.MaxValue = math.Max(s.MaxValue, v)
		s.LastUpdated = now
	}
}

// Snapshot returns the statistics in importance order. Features never
// observed report zero bounds.
func (fi *FeatureImportance) Snapshot() []FeatureStats {
	fi.mu.RLock()
	defer fi.mu.RUnlock()

	out := make([]FeatureStats, 0, len(fi.order))
	for _, name := range fi.order {
		s := *fi.stats[name]
		if s.UsageCount == 0 {
			s.MinValue, s.MaxValue = 0, 0
		}
		out = append(out, s)
	}
	return out
}
