package features

import (
	"strings"

	"accident-severity/internal/common"
	"accident-severity/internal/dataset"
)

// AggregateVehicles counts vehicle-id occurrences per accident. A repeated
// vehicle id is counted each time it appears.
func AggregateVehicles(vehicles *dataset.Table) (*dataset.Table, error) {
	if err := requireColumns(vehicles, common.ColAccidentID, common.ColVehicleID); err != nil {
		return nil, err
	}

	order, groups := groupRows(vehicles)
	out := dataset.New(common.ColAccidentID, common.ColVehicleCount)
	for _, id := range order {
		count := 0
		for _, i := range groups[id] {
			if !dataset.IsMissing(vehicles.Value(i, common.ColVehicleID)) {
				count++
			}
		}
		if err := out.AppendRow([]string{id, dataset.FormatInt(count)}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// NormalizeID is the key normalisation used by every join on Num_Acc:
// surrounding blanks are trimmed and NA-like ids become "".
func NormalizeID(s string) string {
	s = strings.TrimSpace(s)
	if dataset.IsMissing(s) {
		return ""
	}
	return s
}
