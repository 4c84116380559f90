// Package storage keeps the history of the accident-severity tools in a
// BoltDB file: preparation runs, training runs and served predictions.
//
// Keys start with a zero-padded UnixNano timestamp so that cursor order is
// time order in every bucket.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"accident-severity/internal/ml"
	"accident-severity/internal/pipeline"
)

const (
	dbFileName        = "accident-severity.db"
	runsBucket        = "pipeline_runs" // preparation run summaries
	trainingsBucket   = "trainings"     // training run records
	predictionsBucket = "predictions"   // served predictions
)

// TrainingRecord is the stored outcome of one training run.
type TrainingRecord struct {
	Version    string          `json:"version"`
	TrainedAt  time.Time       `json:"trained_at"`
	Dataset    string          `json:"dataset"`
	BundlePath string          `json:"bundle_path"`
	Features   []string        `json:"features"`
	Strategy   string          `json:"strategy"`
	Report     *ml.TrainReport `json:"report"`
	Metrics    ml.ModelMetrics `json:"metrics"`
}

// Store provides persistent storage backed by BoltDB.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the database in dataPath.
func New(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	dbPath := filepath.Join(dataPath, dbFileName)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{runsBucket, trainingsBucket, predictionsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database. Closing twice is a no-op.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func timeKey(ts time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%020d_%s", ts.UnixNano(), id))
}

func (s *Store) put(bucket string, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", bucket, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Put(key, data)
	})
}

// latest walks bucket newest first and hands at most limit values to fn.
// Malformed records are skipped.
func (s *Store) latest(bucket string, limit int, fn func([]byte) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(bucket)).Cursor()
		n := 0
		for k, v := c.Last(); k != nil && (limit <= 0 || n < limit); k, v = c.Prev() {
			if err := fn(v); err != nil {
				continue
			}
			n++
		}
		return nil
	})
}

// SaveRun stores a preparation run summary.
func (s *Store) SaveRun(summary *pipeline.RunSummary) error {
	return s.put(runsBucket, timeKey(summary.StartedAt, summary.RunID), summary)
}

// ListRuns returns up to limit run summaries, newest first. A limit of
// zero returns all of them.
func (s *Store) ListRuns(limit int) ([]pipeline.RunSummary, error) {
	var runs []pipeline.RunSummary
	err := s.latest(runsBucket, limit, func(data []byte) error {
		var r pipeline.RunSummary
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		runs = append(runs, r)
		return nil
	})
	return runs, err
}

// SaveTraining stores a training run record.
func (s *Store) SaveTraining(rec TrainingRecord) error {
	return s.put(trainingsBucket, timeKey(rec.TrainedAt, rec.Version), rec)
}

// ListTrainings returns up to limit training records, newest first.
func (s *Store) ListTrainings(limit int) ([]TrainingRecord, error) {
	var recs []TrainingRecord
	err := s.latest(trainingsBucket, limit, func(data []byte) error {
		var r TrainingRecord
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		recs = append(recs, r)
		return nil
	})
	return recs, err
}

// SavePrediction stores a served prediction.
func (s *Store) SavePrediction(ev ml.PredictionEvent) error {
	return s.put(predictionsBucket, timeKey(ev.Timestamp, ev.ID), ev)
}

// RecentPredictions returns up to limit predictions, newest first.
func (s *Store) RecentPredictions(limit int) ([]ml.PredictionEvent, error) {
	var events []ml.PredictionEvent
	err := s.latest(predictionsBucket, limit, func(data []byte) error {
		var ev ml.PredictionEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		events = append(events, ev)
		return nil
	})
	return events, err
}

// PrunePredictions deletes predictions older than cutoff and returns how
// many were removed.
func (s *Store) PrunePredictions(cutoff time.Time) (int, error) {
	removed := 0
	end := []byte(fmt.Sprintf("%020d", cutoff.UnixNano()))
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(predictionsBucket))
		var stale [][]byte
		c := b.Cursor()
		for k, _ := c.First(); k != nil && string(k[:len(end)]) < string(end); k, _ = c.Next() {
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}
