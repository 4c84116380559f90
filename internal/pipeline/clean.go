package pipeline

import (
	"fmt"

	"accident-severity/internal/cfg"
	"accident-severity/internal/common"
	"accident-severity/internal/dataset"
)

// Cleaner removes every missing cell from the analytic table.
type Cleaner struct {
	Mode        cfg.CleanMode
	DropColumns []string
	Sentinel    string
	Target      string
}

// CleanReport records what a Clean call changed.
type CleanReport struct {
	Mode           cfg.CleanMode     `json:"mode"`
	RowsIn         int               `json:"rows_in"`
	RowsOut        int               `json:"rows_out"`
	DroppedColumns []string          `json:"dropped_columns,omitempty"`
	NumericColumns []string          `json:"numeric_columns,omitempty"`
	Filled         map[string]int    `json:"filled"`
	Medians        map[string]string `json:"medians,omitempty"`
}

func NewCleaner(settings cfg.Settings) *Cleaner {
	return &Cleaner{
		Mode:        settings.CleanMode,
		DropColumns: settings.DropColumns,
		Sentinel:    settings.FillSentinel,
		Target:      common.ColSeverity,
	}
}

// Clean returns a cleaned copy of t; t itself is not modified.
func (c *Cleaner) Clean(t *dataset.Table) (*dataset.Table, *CleanReport, error) {
	target := c.Target
	if target == "" {
		target = common.ColSeverity
	}
	if !t.Has(target) {
		return nil, nil, fmt.Errorf("target column %q not found", target)
	}

	report := &CleanReport{Mode: c.Mode, RowsIn: t.Len(), Filled: make(map[string]int)}

	var out *dataset.Table
	switch c.Mode {
	case cfg.CleanStrict:
		out = c.cleanStrict(t, target, report)
	case cfg.CleanNumeric, "":
		report.Mode = cfg.CleanNumeric
		out = c.cleanNumeric(t, target, report)
	default:
		return nil, nil, fmt.Errorf("unknown clean mode %q", c.Mode)
	}

	report.RowsOut = out.Len()
	if n := out.Missing(); n != 0 {
		return nil, nil, fmt.Errorf("cleaning left %d missing cells", n)
	}
	return out, report, nil
}

func (c *Cleaner) cleanStrict(t *dataset.Table, target string, report *CleanReport) *dataset.Table {
	out := t.Filter(func(i int) bool { return !dataset.IsMissing(t.Value(i, target)) })
	for _, col := range out.Columns() {
		fillMissing(out, col, "0", report)
	}
	return out
}

func (c *Cleaner) cleanNumeric(t *dataset.Table, target string, report *CleanReport) *dataset.Table {
	work := t.Clone()
	var drop []string
	for _, col := range c.DropColumns {
		if col != target {
			drop = append(drop, col)
		}
	}
	report.DroppedColumns = work.DropColumns(drop...)

	keep := make([]bool, work.Len())
	for i := range keep {
		if v, ok := dataset.Coerce(work.Value(i, target)); ok {
			keep[i] = true
			work.Set(i, target, dataset.FormatFloat(v))
		}
	}
	out := work.Filter(func(i int) bool { return keep[i] })

	sentinel := c.Sentinel
	if sentinel == "" {
		sentinel = common.DefaultFillSentinel
	}
	report.Medians = make(map[string]string)

	for _, col := range out.Columns() {
		values, numeric := numericColumn(out, col)
		if !numeric {
			fillMissing(out, col, sentinel, report)
			continue
		}
		report.NumericColumns = append(report.NumericColumns, col)
		if len(values) == out.Len() {
			continue
		}
		med := dataset.FormatFloat(dataset.Median(values))
		report.Medians[col] = med
		fillMissing(out, col, med, report)
	}
	return out
}

// numericColumn returns the parsed non-missing values of col and whether
// every one of them parsed. A column with no values is not numeric.
func numericColumn(t *dataset.Table, col string) ([]float64, bool) {
	cells, _ := t.Column(col)
	values := make([]float64, 0, len(cells))
	for _, s := range cells {
		if dataset.IsMissing(s) {
			continue
		}
		v, ok := dataset.ParseFloat(s)
		if !ok {
			return nil, false
		}
		values = append(values, v)
	}
	return values, len(values) > 0
}

func fillMissing(t *dataset.Table, col, value string, report *CleanReport) {
	for i := 0; i < t.Len(); i++ {
		if dataset.IsMissing(t.Value(i, col)) {
			t.Set(i, col, value)
			report.Filled[col]++
		}
	}
}
