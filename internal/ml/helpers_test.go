package ml

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"accident-severity/internal/dataset"
	"accident-severity/internal/gbt"
)

// trainingTable builds a prepared dataset where an accident is severe when
// it involves a single vehicle at a high speed limit.
func trainingTable(t *testing.T, n int, seed int64) *dataset.Table {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	tbl := dataset.New("Num_Acc", "agg", "col", "nb_usagers", "nb_vehicules", "vma", "lum", "adr", "grav", "grave")
	for i := 0; i < n; i++ {
		vehicles := 1 + rng.Intn(3)
		vma := []int{30, 50, 80, 110}[rng.Intn(4)]
		severe := vehicles == 1 && vma >= 80
		grav, grave := "4", "0"
		if severe {
			grav, grave = "2", "1"
		}
		row := []string{
			fmt.Sprintf("2023%08d", i),
			fmt.Sprint(1 + rng.Intn(2)),
			fmt.Sprint(1 + rng.Intn(7)),
			fmt.Sprint(1 + rng.Intn(4)),
			fmt.Sprint(vehicles),
			fmt.Sprint(vma),
			fmt.Sprint(1 + rng.Intn(5)),
			fmt.Sprintf("rue %d", i),
			grav,
			grave,
		}
		require.NoError(t, tbl.AppendRow(row))
	}
	return tbl
}

func quickConfig() TrainConfig {
	c := DefaultTrainConfig()
	c.Params.NEstimators = 25
	c.Params.MaxDepth = 3
	return c
}

// constantBundle scores every input with prob.
func constantBundle(features []string, prob, threshold float64) *Bundle {
	return &Bundle{
		Version:   "test",
		Features:  features,
		Threshold: threshold,
		Selection: Selection{Strategy: StrategyFixedList, Features: features},
		Imputer:   &MedianImputer{Features: features, Medians: make([]float64, len(features))},
		Model: &gbt.Model{
			NumFeatures: len(features),
			BaseMargin:  math.Log(prob / (1 - prob)),
			Trees:       []gbt.Tree{{Nodes: []gbt.Node{{Leaf: true}}}},
		},
	}
}
