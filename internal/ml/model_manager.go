package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const versionsFileName = "model_versions.json"

// ModelVersion is one registered bundle file
type ModelVersion struct {
	Version   string       `json:"version"`
	Path      string       `json:"path"`
	CreatedAt time.Time    `json:"created_at"`
	Metrics   ModelMetrics `json:"metrics"`
	IsActive  bool         `json:"is_active"`
}

// ModelMetrics contains holdout metrics recorded for a bundle
type ModelMetrics struct {
	Accuracy        float64 `json:"accuracy"`
	AUCScore        float64 `json:"auc_score"`
	F1Score         float64 `json:"f1_score"`
	Precision       float64 `json:"precision"`
	Recall          float64 `json:"recall"`
	PositiveRate    float64 `json:"positive_rate"`
	TrainingSamples int     `json:"training_samples"`
	Strategy        string  `json:"strategy"`
}

// ModelManager handles bundle versioning and rollback. Versions are kept
// newest first.
type ModelManager struct {
	mu           sync.RWMutex
	modelsDir    string
	versionsFile string
	versions     []ModelVersion
}

// NewModelManager opens the registry in modelsDir, creating it on first save
func NewModelManager(modelsDir string) (*ModelManager, error) {
	if modelsDir == "" {
		return nil, fmt.Errorf("models directory is required")
	}
	mm := &ModelManager{
		modelsDir:    modelsDir,
		versionsFile: filepath.Join(modelsDir, versionsFileName),
		versions:     make([]ModelVersion, 0),
	}

	if err := mm.loadVersions(); err != nil {
		log.Warn().Err(err).Str("file", mm.versionsFile).Msg("Failed to load model versions, starting fresh")
		mm.versions = mm.versions[:0]
	}

	return mm, nil
}

// AddVersion registers a saved bundle. The new version is not activated.
func (mm *ModelManager) AddVersion(version, bundlePath string, metrics ModelMetrics) (ModelVersion, error) {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	if version == "" {
		version = time.Now().UTC().Format("20060102-150405")
	}
	for _, v := range mm.versions {
		if v.Version == version {
			return ModelVersion{}, fmt.Errorf("version %s already registered", version)
		}
	}

	mv := ModelVersion{
		Version:   version,
		Path:      bundlePath,
		CreatedAt: time.Now().UTC(),
		Metrics:   metrics,
	}
	mm.versions = append([]ModelVersion{mv}, mm.versions...)

	return mv, mm.saveVersions()
}

// ActivateVersion marks version as the one served at startup
func (mm *ModelManager) ActivateVersion(version string) error {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.activate(version)
}

func (mm *ModelManager) activate(version string) error {
	found := false
	for i := range mm.versions {
		if mm.versions[i].Version == version {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("version %s not found", version)
	}
	for i := range mm.versions {
		mm.versions[i].IsActive = mm.versions[i].Version == version
	}

	log.Info().Str("version", version).Msg("Model version activated")
	return mm.saveVersions()
}

// Rollback activates the version registered before the active one
func (mm *ModelManager) Rollback() error {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	if len(mm.versions) < 2 {
		return fmt.Errorf("no previous version available for rollback")
	}

	currentIdx := -1
	for i, v := range mm.versions {
		if v.IsActive {
			currentIdx = i
			break
		}
	}
	if currentIdx == -1 {
		return fmt.Errorf("no active version found")
	}
	if currentIdx+1 >= len(mm.versions) {
		return fmt.Errorf("no previous version available")
	}

	return mm.activate(mm.versions[currentIdx+1].Version)
}

// GetCurrentVersion returns a copy of the active version, or nil
func (mm *ModelManager) GetCurrentVersion() *ModelVersion {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	for _, v := range mm.versions {
		if v.IsActive {
			cp := v
			return &cp
		}
	}
	return nil
}

// HasVersion reports whether version is registered
func (mm *ModelManager) HasVersion(version string) bool {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	for _, v := range mm.versions {
		if v.Version == version {
			return true
		}
	}
	return false
}

// ListVersions returns all versions, newest first
func (mm *ModelManager) ListVersions() []ModelVersion {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return append([]ModelVersion(nil), mm.versions...)
}

// LoadActive loads the bundle of the active version
func (mm *ModelManager) LoadActive() (*Bundle, *ModelVersion, error) {
	v := mm.GetCurrentVersion()
	if v == nil {
		return nil, nil, fmt.Errorf("no active version found")
	}
	b, err := LoadBundle(v.Path)
	if err != nil {
		return nil, v, err
	}
	return b, v, nil
}

func (mm *ModelManager) loadVersions() error {
	data, err := os.ReadFile(mm.versionsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	return json.Unmarshal(data, &mm.versions)
}

func (mm *ModelManager) saveVersions() error {
	if err := os.MkdirAll(mm.modelsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}
	data, err := json.MarshalIndent(mm.versions, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(mm.versionsFile, data, 0o600)
}
