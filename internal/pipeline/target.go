package pipeline

import (
	"fmt"
	"math"

	"accident-severity/internal/common"
	"accident-severity/internal/dataset"
)

// DeriveTarget coerces grav to an integer code, drops rows where it does not
// parse and appends grave (1 for killed or hospitalised, else 0). It returns
// the new table and the number of rows dropped.
func DeriveTarget(t *dataset.Table) (*dataset.Table, int, error) {
	if !t.Has(common.ColSeverity) {
		return nil, 0, fmt.Errorf("required column %q not found", common.ColSeverity)
	}
	if t.Has(common.ColTarget) {
		return nil, 0, fmt.Errorf("column %q already present", common.ColTarget)
	}

	codes := make([]int, t.Len())
	valid := make([]bool, t.Len())
	for i := 0; i < t.Len(); i++ {
		v, ok := dataset.Coerce(t.Value(i, common.ColSeverity))
		if !ok {
			continue
		}
		codes[i] = int(math.Round(v))
		valid[i] = true
	}

	out := t.Filter(func(i int) bool { return valid[i] })
	dropped := t.Len() - out.Len()

	target := make([]string, 0, out.Len())
	for i := 0; i < t.Len(); i++ {
		if !valid[i] {
			continue
		}
		n := len(target)
		out.Set(n, common.ColSeverity, dataset.FormatInt(codes[i]))
		grave := 0
		if common.SevereCodes[codes[i]] {
			grave = 1
		}
		target = append(target, dataset.FormatInt(grave))
	}
	if err := out.AddColumn(common.ColTarget, target); err != nil {
		return nil, 0, err
	}
	return out, dropped, nil
}
