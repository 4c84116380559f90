// Package pipeline turns the four raw accident tables into one cleaned,
// labelled analytic table keyed by Num_Acc.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"accident-severity/internal/common"
	"accident-severity/internal/dataset"
	"accident-severity/internal/features"
)

// ErrMissingInputs is returned when one or more raw tables do not exist.
var ErrMissingInputs = errors.New("missing input files")

// Inputs are the paths of the four raw tables.
type Inputs struct {
	Characteristics string
	Occupants       string
	Vehicles        string
	Locations       string
}

func (in Inputs) paths() []string {
	return []string{in.Characteristics, in.Occupants, in.Vehicles, in.Locations}
}

// Options control a pipeline run.
type Options struct {
	Separator     rune
	ReferenceYear int
	Cleaner       *Cleaner
	OutputPath    string // empty skips writing
}

// MetricsInterface is the subset of metrics the pipeline reports to.
type MetricsInterface interface {
	StageRowsSet(stage string, rows int)
	PipelineDurationObserve(d time.Duration)
	PipelineRunsInc(status string)
}

// RunSummary describes one completed run.
type RunSummary struct {
	RunID        string                 `json:"run_id"`
	StartedAt    time.Time              `json:"started_at"`
	Duration     time.Duration          `json:"duration"`
	Rows         map[string]int         `json:"rows"`
	Severity     features.SeverityStats `json:"severity"`
	TargetDrops  int                    `json:"target_drops"`
	Clean        *CleanReport           `json:"clean"`
	PositiveRate float64                `json:"positive_rate"`
	OutputPath   string                 `json:"output_path,omitempty"`
}

// Result is a run summary plus the final table.
type Result struct {
	Summary *RunSummary
	Table   *dataset.Table
}

type Runner struct {
	opts    Options
	metrics MetricsInterface
}

func NewRunner(opts Options, metrics MetricsInterface) *Runner {
	if opts.Separator == 0 {
		opts.Separator = ';'
	}
	if opts.ReferenceYear == 0 {
		opts.ReferenceYear = common.DefaultReferenceYear
	}
	if opts.Cleaner == nil {
		opts.Cleaner = &Cleaner{Sentinel: common.DefaultFillSentinel, DropColumns: common.DefaultDropColumns}
	}
	return &Runner{opts: opts, metrics: metrics}
}

// Run executes load, aggregate, join, target and clean, then writes the
// output. Nothing is written unless every stage succeeds.
func (r *Runner) Run(ctx context.Context, in Inputs) (*Result, error) {
	start := time.Now()
	summary := &RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: start.UTC(),
		Rows:      make(map[string]int),
	}

	res, err := r.run(ctx, in, summary)
	summary.Duration = time.Since(start)
	if r.metrics != nil {
		r.metrics.PipelineDurationObserve(summary.Duration)
		status := "success"
		if err != nil {
			status = "error"
		}
		r.metrics.PipelineRunsInc(status)
	}
	if err != nil {
		log.Error().Err(err).Str("run_id", summary.RunID).Msg("Preparation run failed")
		return nil, err
	}

	log.Info().
		Str("run_id", summary.RunID).
		Int("rows", res.Table.Len()).
		Int("columns", res.Table.Width()).
		Float64("positive_rate", summary.PositiveRate).
		Dur("duration", summary.Duration).
		Msg("Preparation run completed")
	return res, nil
}

func (r *Runner) run(ctx context.Context, in Inputs, summary *RunSummary) (*Result, error) {
	if err := checkInputs(in); err != nil {
		return nil, err
	}

	tables := make([]*dataset.Table, 0, 4)
	for _, p := range in.paths() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, err := dataset.ReadCSV(p, r.opts.Separator)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("path", p).Int("rows", t.Len()).Strs("columns", t.Columns()).Msg("Loaded table")
		tables = append(tables, t)
	}
	chars, occ, veh, loc := tables[0], tables[1], tables[2], tables[3]
	r.stage(summary, "characteristics", chars.Len())
	r.stage(summary, "occupants", occ.Len())
	r.stage(summary, "vehicles", veh.Len())
	r.stage(summary, "locations", loc.Len())

	if chars.Has(common.ColRawAccidentID) && !chars.Has(common.ColAccidentID) {
		if err := chars.RenameColumn(common.ColRawAccidentID, common.ColAccidentID); err != nil {
			return nil, err
		}
	}

	severity, stats, err := features.SeverityByAccident(occ)
	if err != nil {
		return nil, fmt.Errorf("occupants: %w", err)
	}
	summary.Severity = stats
	if stats.Skipped > 0 {
		log.Warn().Int("accidents", stats.Skipped).Msg("Accidents without a parseable occupant severity were skipped")
	}

	occAgg, err := features.AggregateOccupants(occ, r.opts.ReferenceYear)
	if err != nil {
		return nil, fmt.Errorf("occupants: %w", err)
	}
	vehAgg, err := features.AggregateVehicles(veh)
	if err != nil {
		return nil, fmt.Errorf("vehicles: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	merged, err := JoinAll(Tables{
		Characteristics: chars,
		Severity:        severity,
		Occupants:       occAgg,
		Vehicles:        vehAgg,
		Locations:       loc,
	})
	if err != nil {
		return nil, err
	}
	r.stage(summary, "joined", merged.Len())

	labelled, drops, err := DeriveTarget(merged)
	if err != nil {
		return nil, err
	}
	summary.TargetDrops = drops
	r.stage(summary, "labelled", labelled.Len())

	cleaned, report, err := r.opts.Cleaner.Clean(labelled)
	if err != nil {
		return nil, fmt.Errorf("clean: %w", err)
	}
	summary.Clean = report
	r.stage(summary, "cleaned", cleaned.Len())
	summary.PositiveRate = positiveRate(cleaned)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.opts.OutputPath != "" {
		if err := dataset.WriteCSV(r.opts.OutputPath, cleaned, r.opts.Separator); err != nil {
			return nil, err
		}
		summary.OutputPath = r.opts.OutputPath
	}

	return &Result{Summary: summary, Table: cleaned}, nil
}

func (r *Runner) stage(summary *RunSummary, name string, rows int) {
	summary.Rows[name] = rows
	if r.metrics != nil {
		r.metrics.StageRowsSet(name, rows)
	}
	log.Info().Str("stage", name).Int("rows", rows).Msg("Stage complete")
}

// checkInputs fails with every missing path listed, before anything is read.
func checkInputs(in Inputs) error {
	var missing []string
	for _, p := range in.paths() {
		if p == "" {
			missing = append(missing, "(empty path)")
			continue
		}
		if _, err := os.Stat(p); err != nil {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingInputs, strings.Join(missing, ", "))
	}
	return nil
}

func positiveRate(t *dataset.Table) float64 {
	if t.Len() == 0 {
		return 0
	}
	pos := 0
	for i := 0; i < t.Len(); i++ {
		if t.Value(i, common.ColTarget) == "1" {
			pos++
		}
	}
	return float64(pos) / float64(t.Len())
}
