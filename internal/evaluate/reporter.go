package evaluate

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"accident-severity/internal/dataset"
	"accident-severity/internal/ml"
)

const (
	SummaryFile     = "evaluation_summary.txt"
	JSONFile        = "evaluation.json"
	PredictionsFile = "evaluation_predictions.csv"
)

// Reporter generates evaluation reports
type Reporter struct {
	eval       *Evaluation
	bundle     *ml.Bundle
	outputPath string
}

func NewReporter(eval *Evaluation, bundle *ml.Bundle, outputPath string) *Reporter {
	return &Reporter{
		eval:       eval,
		bundle:     bundle,
		outputPath: outputPath,
	}
}

// GenerateReport writes the summary, the JSON report and the per-row
// predictions to the output directory.
func (r *Reporter) GenerateReport() error {
	if err := os.MkdirAll(r.outputPath, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := r.generateSummary(); err != nil {
		return err
	}
	if err := r.generateJSONReport(); err != nil {
		return err
	}
	return r.generatePredictions()
}

func (r *Reporter) generateSummary() error {
	summaryPath := filepath.Join(r.outputPath, SummaryFile)
	file, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	r.writeSummary(file)

	log.Info().Str("file", summaryPath).Msg("Summary report generated")
	return nil
}

func (r *Reporter) writeSummary(w io.Writer) {
	e := r.eval
	fmt.Fprintf(w, "MODEL EVALUATION SUMMARY\n")
	fmt.Fprintf(w, "========================\n\n")
	fmt.Fprintf(w, "Model Version: %s\n", r.bundle.Version)
	fmt.Fprintf(w, "Features (%s): %v\n", r.bundle.Selection.Strategy, r.bundle.Features)
	fmt.Fprintf(w, "Rows: %d (%d severe, %.2f%%)\n", e.Rows, e.Positives, 100*ratio(e.Positives, e.Rows))
	if e.Skipped > 0 {
		fmt.Fprintf(w, "Skipped rows without label: %d\n", e.Skipped)
	}
	if e.AUCDefined {
		fmt.Fprintf(w, "ROC AUC: %.4f\n", e.AUC)
	} else {
		fmt.Fprintf(w, "ROC AUC: undefined (single class)\n")
	}

	for _, c := range []Confusion{e.Default, e.AtThreshold} {
		fmt.Fprintf(w, "\nCUT-OFF %.2f\n", c.Cutoff)
		fmt.Fprintf(w, "------------\n")
		fmt.Fprintf(w, "              predicted 0  predicted 1\n")
		fmt.Fprintf(w, "actual 0      %11d  %11d\n", c.TrueNegatives, c.FalsePositives)
		fmt.Fprintf(w, "actual 1      %11d  %11d\n", c.FalseNegatives, c.TruePositives)
		fmt.Fprintf(w, "Accuracy: %.4f  Precision: %.4f  Recall: %.4f  F1: %.4f\n",
			c.Accuracy, c.Precision, c.Recall, c.F1)
	}
}

func (r *Reporter) generateJSONReport() error {
	jsonPath := filepath.Join(r.outputPath, JSONFile)

	report := map[string]interface{}{
		"evaluation":   r.eval,
		"features":     r.bundle.Features,
		"threshold":    r.bundle.Threshold,
		"strategy":     r.bundle.Selection.Strategy,
		"generated_at": time.Now().UTC(),
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}

	log.Info().Str("file", jsonPath).Msg("JSON report generated")
	return nil
}

func (r *Reporter) generatePredictions() error {
	out := dataset.New("label", "probability", "prediction_default", "prediction_threshold")
	for i, y := range r.eval.Labels {
		p := r.eval.Probabilities[i]
		row := []string{
			dataset.FormatFloat(y),
			fmt.Sprintf("%.6f", p),
			decision(p, r.eval.Default.Cutoff),
			decision(p, r.eval.AtThreshold.Cutoff),
		}
		if err := out.AppendRow(row); err != nil {
			return err
		}
	}

	path := filepath.Join(r.outputPath, PredictionsFile)
	if err := dataset.WriteCSV(path, out, ','); err != nil {
		return fmt.Errorf("failed to write predictions: %w", err)
	}
	log.Info().Str("file", path).Msg("Prediction log generated")
	return nil
}

// PrintSummary prints the summary to stdout
func (r *Reporter) PrintSummary() {
	r.writeSummary(os.Stdout)
}

func decision(p, cutoff float64) string {
	if p >= cutoff {
		return "1"
	}
	return "0"
}
