package pipeline

import (
	"fmt"

	"accident-severity/internal/common"
	"accident-severity/internal/dataset"
	"accident-severity/internal/features"
)

type JoinKind int

const (
	// InnerJoin keeps only left rows that have at least one match.
	InnerJoin JoinKind = iota
	// LeftJoin keeps every left row, with missing right cells when unmatched.
	LeftJoin
)

func (k JoinKind) String() string {
	if k == InnerJoin {
		return "inner"
	}
	return "left"
}

// Join merges right into left on key. Each left row is paired with every
// matching right row in right-table order. Overlapping non-key columns are
// suffixed _x (left) and _y (right).
func Join(left, right *dataset.Table, key string, kind JoinKind) (*dataset.Table, error) {
	li, ok := left.Index(key)
	if !ok {
		return nil, fmt.Errorf("%s join: key %q missing from left table", kind, key)
	}
	ri, ok := right.Index(key)
	if !ok {
		return nil, fmt.Errorf("%s join: key %q missing from right table", kind, key)
	}

	leftCols := left.Columns()
	rightCols := right.Columns()
	overlap := make(map[string]bool)
	for _, c := range rightCols {
		if c != key && left.Has(c) {
			overlap[c] = true
		}
	}

	outCols := make([]string, 0, len(leftCols)+len(rightCols)-1)
	for _, c := range leftCols {
		if overlap[c] {
			c += "_x"
		}
		outCols = append(outCols, c)
	}
	rightKeep := make([]int, 0, len(rightCols))
	for j, c := range rightCols {
		if j == ri {
			continue
		}
		if overlap[c] {
			c += "_y"
		}
		outCols = append(outCols, c)
		rightKeep = append(rightKeep, j)
	}

	lookup := make(map[string][]int, right.Len())
	for i := 0; i < right.Len(); i++ {
		id := features.NormalizeID(right.Row(i)[ri])
		if id == "" {
			continue
		}
		lookup[id] = append(lookup[id], i)
	}

	out := dataset.New(outCols...)
	row := make([]string, len(outCols))
	for i := 0; i < left.Len(); i++ {
		lrow := left.Row(i)
		matches := lookup[features.NormalizeID(lrow[li])]
		if len(matches) == 0 && kind == InnerJoin {
			continue
		}

		copy(row, lrow)
		if len(matches) == 0 {
			for k := range rightKeep {
				row[len(lrow)+k] = ""
			}
			if err := out.AppendRow(row); err != nil {
				return nil, err
			}
			continue
		}
		for _, m := range matches {
			rrow := right.Row(m)
			for k, j := range rightKeep {
				row[len(lrow)+k] = rrow[j]
			}
			if err := out.AppendRow(row); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// Tables groups the inputs of JoinAll.
type Tables struct {
	Characteristics *dataset.Table
	Severity        *dataset.Table
	Occupants       *dataset.Table // per-accident occupant aggregates
	Vehicles        *dataset.Table // per-accident vehicle aggregates
	Locations       *dataset.Table
}

// JoinAll builds the analytic table: characteristics inner-joined with the
// per-accident severity, then left-joined with occupant aggregates, vehicle
// aggregates and locations, in that order.
func JoinAll(t Tables) (*dataset.Table, error) {
	steps := []struct {
		name  string
		right *dataset.Table
		kind  JoinKind
	}{
		{"severity", t.Severity, InnerJoin},
		{"occupants", t.Occupants, LeftJoin},
		{"vehicles", t.Vehicles, LeftJoin},
		{"locations", t.Locations, LeftJoin},
	}

	merged := t.Characteristics
	for _, s := range steps {
		var err error
		merged, err = Join(merged, s.right, common.ColAccidentID, s.kind)
		if err != nil {
			return nil, fmt.Errorf("failed to join %s: %w", s.name, err)
		}
	}
	return merged, nil
}
