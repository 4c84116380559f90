package evaluate

import (
	"fmt"
	"math"
	"math/rand"

	"accident-severity/internal/common"
	"accident-severity/internal/dataset"
)

// Split divides the labelled rows of t into a training and a test table.
// Each class contributes round(testRatio * n) rows to the test table, so
// both parts keep the class balance. The same seed gives the same split.
func Split(t *dataset.Table, testRatio float64, seed int64) (train, test *dataset.Table, err error) {
	if testRatio <= 0 || testRatio >= 1 {
		return nil, nil, fmt.Errorf("test ratio must be in (0, 1), got %f", testRatio)
	}
	labels, err := Labels(t)
	if err != nil {
		return nil, nil, err
	}

	var byClass [2][]int
	for i, y := range labels {
		if math.IsNaN(y) {
			continue
		}
		byClass[int(y)] = append(byClass[int(y)], i)
	}

	rng := rand.New(rand.NewSource(seed))
	inTest := make([]bool, t.Len())
	inTrain := make([]bool, t.Len())
	for _, rows := range byClass {
		rng.Shuffle(len(rows), func(a, b int) { rows[a], rows[b] = rows[b], rows[a] })
		n := int(math.Round(testRatio * float64(len(rows))))
		for k, i := range rows {
			if k < n {
				inTest[i] = true
			} else {
				inTrain[i] = true
			}
		}
	}

	train = t.Filter(func(i int) bool { return inTrain[i] })
	test = t.Filter(func(i int) bool { return inTest[i] })
	if train.Len() == 0 || test.Len() == 0 {
		return nil, nil, fmt.Errorf("split of %d labelled rows left an empty part", train.Len()+test.Len())
	}
	return train, test, nil
}

// Labels returns the target of every row: 0, 1 or NaN when the row has no
// usable label.
func Labels(t *dataset.Table) ([]float64, error) {
	if !t.Has(common.ColTarget) {
		return nil, fmt.Errorf("column %s not found", common.ColTarget)
	}
	labels := make([]float64, t.Len())
	for i := range labels {
		v, ok := dataset.Coerce(t.Value(i, common.ColTarget))
		if !ok || (v != 0 && v != 1) {
			labels[i] = math.NaN()
			continue
		}
		labels[i] = v
	}
	return labels, nil
}
