package main

import (
	"fmt"
	"strconv"

	"github.com/sybl-ml/sybl-go/internal/dataset"
	"github.com/sybl-ml/sybl-go/internal/protocol"
)

// baselinePredictor predicts the mean of the training target when it
// is numeric, and its most frequent value otherwise. The target is the
// last training column.
func baselinePredictor(train, predict dataset.Table, offer *protocol.JobOffer) (dataset.Table, error) {
	if len(train.Columns) == 0 {
		return dataset.Table{}, fmt.Errorf("baseline: training set has no columns")
	}
	if train.NumRows() == 0 {
		return dataset.Table{}, fmt.Errorf("baseline: training set has no rows")
	}

	target := train.Columns[len(train.Columns)-1]
	values, err := train.Column(target)
	if err != nil {
		return dataset.Table{}, err
	}

	prediction, ok := meanOf(values)
	if !ok {
		prediction = modeOf(values)
	}

	rows := make([][]string, predict.NumRows())
	for i := range rows {
		rows[i] = []string{prediction}
	}
	return dataset.Table{Columns: []string{target}, Rows: rows}, nil
}

func meanOf(values []string) (string, bool) {
	var sum float64
	for _, v := range values {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return "", false
		}
		sum += f
	}
	return strconv.FormatFloat(sum/float64(len(values)), 'g', -1, 64), true
}

func modeOf(values []string) string {
	counts := make(map[string]int, len(values))
	best := values[0]
	for _, v := range values {
		counts[v]++
		if counts[v] > counts[best] {
			best = v
		}
	}
	return best
}
