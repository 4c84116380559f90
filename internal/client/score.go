package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"accident-severity/internal/dataset"
)

// Output columns appended by ScoreTable.
const (
	ColProbability         = "probability"
	ColPredictionDefault   = "prediction_default"
	ColPredictionThreshold = "prediction_threshold"
	ColError               = "error"
)

// ScoreStats counts the outcome of a batch.
type ScoreStats struct {
	Rows     int `json:"rows"`
	Scored   int `json:"scored"`
	Rejected int `json:"rejected"`
}

// ScoreTable posts every row of t, restricted to the service's features,
// and returns a copy of t with the results appended. Rows the service
// rejects keep the message in the error column. Transport failures and
// cancellation stop the batch.
func ScoreTable(ctx context.Context, c *Client, t *dataset.Table) (*dataset.Table, ScoreStats, error) {
	var stats ScoreStats
	fl, err := c.Features(ctx)
	if err != nil {
		return nil, stats, fmt.Errorf("failed to fetch features: %w", err)
	}
	if len(fl.Features) == 0 {
		return nil, stats, fmt.Errorf("service has no model loaded")
	}

	n := t.Len()
	prob := make([]string, n)
	def := make([]string, n)
	thr := make([]string, n)
	msg := make([]string, n)

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		stats.Rows++

		input := make(map[string]any, len(fl.Features))
		for _, name := range fl.Features {
			if v := t.Value(i, name); !dataset.IsMissing(v) {
				input[name] = v
			}
		}

		pred, err := c.Predict(ctx, input)
		var apiErr *APIError
		switch {
		case errors.As(err, &apiErr):
			stats.Rejected++
			msg[i] = apiErr.Message
			continue
		case err != nil:
			return nil, stats, fmt.Errorf("row %d: %w", i+1, err)
		}

		stats.Scored++
		prob[i] = fmt.Sprintf("%.6f", pred.Probability)
		def[i] = dataset.FormatInt(pred.PredictionDefault)
		thr[i] = dataset.FormatInt(pred.PredictionThreshold)
	}

	out := t.Clone()
	for _, col := range []struct {
		name   string
		values []string
	}{
		{ColProbability, prob},
		{ColPredictionDefault, def},
		{ColPredictionThreshold, thr},
		{ColError, msg},
	} {
		if err := out.AddColumn(col.name, col.values); err != nil {
			return nil, stats, err
		}
	}

	log.Info().Int("rows", stats.Rows).Int("scored", stats.Scored).Int("rejected", stats.Rejected).Msg("Batch scored")
	return out, stats, nil
}
