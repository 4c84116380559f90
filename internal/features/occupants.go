// Package features derives per-accident aggregates from the occupant and
// vehicle tables.
package features

import (
	"fmt"
	"math"

	"accident-severity/internal/common"
	"accident-severity/internal/dataset"
)

// SeverityStats describes what SeverityByAccident kept and skipped.
type SeverityStats struct {
	Accidents       int
	Skipped         int // accidents whose severities all failed to parse
	InvalidSeverity int // occupant rows whose severity failed to parse
}

// SeverityByAccident returns one row per accident with the worst (lowest)
// parseable occupant severity as grav.
func SeverityByAccident(occupants *dataset.Table) (*dataset.Table, SeverityStats, error) {
	var stats SeverityStats
	if err := requireColumns(occupants, common.ColAccidentID, common.ColSeverity); err != nil {
		return nil, stats, err
	}

	order, groups := groupRows(occupants)
	out := dataset.New(common.ColAccidentID, common.ColSeverity)
	for _, id := range order {
		worst := math.Inf(1)
		for _, i := range groups[id] {
			v, ok := dataset.Coerce(occupants.Value(i, common.ColSeverity))
			if !ok {
				stats.InvalidSeverity++
				continue
			}
			worst = math.Min(worst, v)
		}
		if math.IsInf(worst, 1) {
			stats.Skipped++
			continue
		}
		if err := out.AppendRow([]string{id, dataset.FormatFloat(worst)}); err != nil {
			return nil, stats, err
		}
	}
	stats.Accidents = out.Len()
	return out, stats, nil
}

// AggregateOccupants computes nb_usagers, age_moyen and presence_pieton per
// accident. age_moyen is left missing when no birth year parses.
func AggregateOccupants(occupants *dataset.Table, referenceYear int) (*dataset.Table, error) {
	if err := requireColumns(occupants, common.ColAccidentID, common.ColUserCategory, common.ColBirthYear); err != nil {
		return nil, err
	}

	order, groups := groupRows(occupants)
	out := dataset.New(common.ColAccidentID, common.ColOccupantCount, common.ColMeanAge, common.ColPedestrian)
	for _, id := range order {
		rows := groups[id]

		var sum float64
		var n int
		pedestrian := 0
		for _, i := range rows {
			if year, ok := dataset.Coerce(occupants.Value(i, common.ColBirthYear)); ok {
				sum += year
				n++
			}
			if cat, ok := dataset.Coerce(occupants.Value(i, common.ColUserCategory)); ok && cat == common.PedestrianCategory {
				pedestrian = 1
			}
		}

		meanAge := math.NaN()
		if n > 0 {
			meanAge = float64(referenceYear) - sum/float64(n)
		}

		err := out.AppendRow([]string{
			id,
			dataset.FormatInt(len(rows)),
			dataset.FormatFloat(meanAge),
			dataset.FormatInt(pedestrian),
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// groupRows buckets row indices by accident id, keeping first-seen order.
// Rows without an id are ignored.
func groupRows(t *dataset.Table) ([]string, map[string][]int) {
	var order []string
	groups := make(map[string][]int)
	for i := 0; i < t.Len(); i++ {
		id := NormalizeID(t.Value(i, common.ColAccidentID))
		if id == "" {
			continue
		}
		if _, seen := groups[id]; !seen {
			order = append(order, id)
		}
		groups[id] = append(groups[id], i)
	}
	return order, groups
}

func requireColumns(t *dataset.Table, cols ...string) error {
	for _, c := range cols {
		if !t.Has(c) {
			return fmt.Errorf("required column %q not found", c)
		}
	}
	return nil
}
