package ml

import (
	"math"

	"accident-severity/internal/dataset"
)

// NumericColumns is the numeric view of a table used for training.
type NumericColumns struct {
	Names   []string             // kept columns, table order
	Values  map[string][]float64 // NaN marks a missing value
	Coerced []string             // kept after lenient coercion
	Dropped []string             // too few convertible values, or no value at all
}

// CoerceColumns converts the candidate columns of t (restricted to rows
// where keep is true) to floats. A column whose non-missing cells all parse
// is kept as is. Other columns are parsed leniently and kept when at least
// minRatio of all rows convert. Columns without any value are dropped.
func CoerceColumns(t *dataset.Table, candidates []string, keep []bool, minRatio float64) NumericColumns {
	rows := make([]int, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		if keep == nil || keep[i] {
			rows = append(rows, i)
		}
	}

	out := NumericColumns{Values: make(map[string][]float64)}
	for _, col := range candidates {
		if !t.Has(col) {
			continue
		}

		values, strict := parseColumn(t, col, rows, dataset.ParseFloat)
		lenient := false
		if !strict {
			values, _ = parseColumn(t, col, rows, dataset.Coerce)
			if convertedShare(values) < minRatio {
				out.Dropped = append(out.Dropped, col)
				continue
			}
			lenient = true
		}
		if convertedShare(values) == 0 {
			out.Dropped = append(out.Dropped, col)
			continue
		}

		out.Names = append(out.Names, col)
		out.Values[col] = values
		if lenient {
			out.Coerced = append(out.Coerced, col)
		}
	}
	return out
}

// parseColumn parses col for the given rows. The boolean reports whether
// every non-missing cell parsed.
func parseColumn(t *dataset.Table, col string, rows []int, parse func(string) (float64, bool)) ([]float64, bool) {
	values := make([]float64, len(rows))
	all := true
	for k, i := range rows {
		cell := t.Value(i, col)
		v, ok := parse(cell)
		if !ok {
			values[k] = math.NaN()
			if !dataset.IsMissing(cell) {
				all = false
			}
			continue
		}
		values[k] = v
	}
	return values, all
}

func convertedShare(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	n := 0
	for _, v := range values {
		if !math.IsNaN(v) {
			n++
		}
	}
	return float64(n) / float64(len(values))
}
