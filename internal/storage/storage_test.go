package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"accident-severity/internal/ml"
	"accident-severity/internal/pipeline"
)

func TestNew(t *testing.T) {
	tempDir := t.TempDir()

	store, err := New(filepath.Join(tempDir, "nested"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	if store.db == nil {
		t.Error("Store database is nil")
	}

	dbPath := filepath.Join(tempDir, "nested", "accident-severity.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestNew_InvalidPath(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := New(file)
	if err == nil {
		t.Error("Expected error for invalid path, got nil")
	}
}

func TestStore_Close(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Errorf("Error closing store: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("Error closing already closed store: %v", err)
	}

	var nilStore *Store
	if err := nilStore.Close(); err != nil {
		t.Errorf("Expected no error for nil store, got: %v", err)
	}
}

func TestRuns(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"first", "second", "third"} {
		summary := &pipeline.RunSummary{
			RunID:     id,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			Rows:      map[string]int{"final": 10 * (i + 1)},
		}
		if err := store.SaveRun(summary); err != nil {
			t.Fatalf("Failed to save run: %v", err)
		}
	}

	runs, err := store.ListRuns(2)
	if err != nil {
		t.Fatalf("Failed to list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}
	if runs[0].RunID != "third" || runs[1].RunID != "second" {
		t.Errorf("Expected newest first, got %s, %s", runs[0].RunID, runs[1].RunID)
	}
	if runs[0].Rows["final"] != 30 {
		t.Errorf("Expected 30 final rows, got %d", runs[0].Rows["final"])
	}

	all, err := store.ListRuns(0)
	if err != nil || len(all) != 3 {
		t.Errorf("Expected all 3 runs, got %d (%v)", len(all), err)
	}
}

func TestTrainings(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	rec := TrainingRecord{
		Version:   "20240301-120000",
		TrainedAt: time.Now().UTC(),
		Features:  []string{"agg", "vma"},
		Strategy:  "fixed_list",
		Report:    &ml.TrainReport{Rows: 100, Positives: 20, Negatives: 80},
		Metrics:   ml.ModelMetrics{AUCScore: 0.81},
	}
	if err := store.SaveTraining(rec); err != nil {
		t.Fatalf("Failed to save training: %v", err)
	}

	recs, err := store.ListTrainings(10)
	if err != nil {
		t.Fatalf("Failed to list trainings: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("Expected 1 training, got %d", len(recs))
	}
	if recs[0].Report.Positives != 20 || recs[0].Metrics.AUCScore != 0.81 {
		t.Errorf("Unexpected training record: %+v", recs[0])
	}
}

func TestPredictions(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		ev := ml.PredictionEvent{
			ID:          string(rune('a' + i)),
			Timestamp:   now.Add(time.Duration(i-4) * time.Hour),
			Features:    map[string]float64{"vma": float64(30 + 10*i)},
			Probability: float64(i) / 10,
		}
		if err := store.SavePrediction(ev); err != nil {
			t.Fatalf("Failed to save prediction: %v", err)
		}
	}

	recent, err := store.RecentPredictions(3)
	if err != nil {
		t.Fatalf("Failed to read predictions: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("Expected 3 predictions, got %d", len(recent))
	}
	if recent[0].ID != "e" || recent[2].ID != "c" {
		t.Errorf("Expected newest first, got %s..%s", recent[0].ID, recent[2].ID)
	}
	if recent[0].Features["vma"] != 70 {
		t.Errorf("Expected vma 70, got %v", recent[0].Features["vma"])
	}

	removed, err := store.PrunePredictions(now.Add(-150 * time.Minute))
	if err != nil {
		t.Fatalf("Failed to prune: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 2 pruned predictions, got %d", removed)
	}
	left, _ := store.RecentPredictions(0)
	if len(left) != 3 {
		t.Errorf("Expected 3 predictions left, got %d", len(left))
	}
}
