package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"accident-severity/internal/common"
)

// CleanMode selects how the preparation pipeline fills missing cells.
type CleanMode string

const (
	// CleanStrict drops rows without a target and fills everything else with 0.
	CleanStrict CleanMode = "strict"
	// CleanNumeric drops position-reference columns, median-imputes numeric
	// columns and fills the rest with a sentinel.
	CleanNumeric CleanMode = "numeric"
)

type Settings struct {
	// Preparation
	DataDir             string
	CharacteristicsFile string
	OccupantsFile       string
	VehiclesFile        string
	LocationsFile       string
	OutputPath          string
	Separator           string
	ReferenceYear       int
	CleanMode           CleanMode
	DropColumns         []string
	FillSentinel        string

	// Training
	DatasetPath         string
	ModelPath           string
	ModelsDir           string
	Threshold           float64
	PreferredFeatures   []string
	TopK                int
	MinConvertibleRatio float64
	Seed                int64

	// Service
	StaticDir       string
	StorePath       string
	ServerPort      int
	ShutdownTimeout time.Duration
	LogLevel        string

	// Client
	ServiceURL    string
	ClientTimeout time.Duration
}

type ConfigFile struct {
	Data struct {
		Dir             string `yaml:"dir"`
		Characteristics string `yaml:"characteristics"`
		Occupants       string `yaml:"occupants"`
		Vehicles        string `yaml:"vehicles"`
		Locations       string `yaml:"locations"`
		Output          string `yaml:"output"`
		Separator       string `yaml:"separator"`
	} `yaml:"data"`

	Cleaning struct {
		Mode          string   `yaml:"mode"`
		DropColumns   []string `yaml:"dropColumns"`
		Sentinel      string   `yaml:"sentinel"`
		ReferenceYear int      `yaml:"referenceYear"`
	} `yaml:"cleaning"`

	ML struct {
		Dataset             string   `yaml:"dataset"`
		ModelPath           string   `yaml:"modelPath"`
		ModelsDir           string   `yaml:"modelsDir"`
		Threshold           float64  `yaml:"threshold"`
		PreferredFeatures   []string `yaml:"preferredFeatures"`
		TopK                int      `yaml:"topK"`
		MinConvertibleRatio float64  `yaml:"minConvertibleRatio"`
		Seed                int64    `yaml:"seed"`
	} `yaml:"ml"`

	Server struct {
		Port            int    `yaml:"port"`
		StaticDir       string `yaml:"staticDir"`
		StorePath       string `yaml:"storePath"`
		ShutdownTimeout string `yaml:"shutdownTimeout"`
		LogLevel        string `yaml:"logLevel"`
	} `yaml:"server"`

	Client struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"client"`
}

// Load reads an optional .env file, then either the YAML file named by
// CONFIG_FILE (with environment overrides) or the environment alone.
func Load() (Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("failed to read .env file: %w", err)
	}

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	shutdown, err := time.ParseDuration(config.Server.ShutdownTimeout)
	if err != nil {
		shutdown = 10 * time.Second
	}
	clientTimeout, err := time.ParseDuration(config.Client.Timeout)
	if err != nil {
		clientTimeout = 5 * time.Second
	}

	settings := Settings{
		DataDir:             getStringFromEnvOrConfig(common.EnvDataDir, config.Data.Dir, common.DefaultDataDir),
		CharacteristicsFile: getStringFromEnvOrConfig(common.EnvCharacteristicsFile, config.Data.Characteristics, common.DefaultCharacteristicsFile),
		OccupantsFile:       getStringFromEnvOrConfig(common.EnvOccupantsFile, config.Data.Occupants, common.DefaultOccupantsFile),
		VehiclesFile:        getStringFromEnvOrConfig(common.EnvVehiclesFile, config.Data.Vehicles, common.DefaultVehiclesFile),
		LocationsFile:       getStringFromEnvOrConfig(common.EnvLocationsFile, config.Data.Locations, common.DefaultLocationsFile),
		OutputPath:          getStringFromEnvOrConfig(common.EnvOutputPath, config.Data.Output, common.DefaultOutputPath),
		Separator:           getStringFromEnvOrConfig(common.EnvSeparator, config.Data.Separator, common.DefaultSeparator),
		ReferenceYear:       getIntFromEnvOrConfig(common.EnvReferenceYear, config.Cleaning.ReferenceYear, common.DefaultReferenceYear),
		CleanMode:           CleanMode(getStringFromEnvOrConfig(common.EnvCleanMode, config.Cleaning.Mode, common.DefaultCleanMode)),
		DropColumns:         getListFromEnvOrConfig(common.EnvDropColumns, config.Cleaning.DropColumns, common.DefaultDropColumns),
		FillSentinel:        getStringFromEnvOrConfig(common.EnvFillSentinel, config.Cleaning.Sentinel, common.DefaultFillSentinel),
		ModelPath:           getStringFromEnvOrConfig(common.EnvModelPath, config.ML.ModelPath, common.DefaultModelPath),
		ModelsDir:           getStringFromEnvOrConfig(common.EnvModelsDir, config.ML.ModelsDir, common.DefaultModelsDir),
		Threshold:           getFloatFromEnvOrConfig(common.EnvThreshold, config.ML.Threshold, common.DefaultThreshold),
		PreferredFeatures:   getListFromEnvOrConfig(common.EnvPreferredFeatures, config.ML.PreferredFeatures, common.DefaultPreferredFeatures),
		TopK:                getIntFromEnvOrConfig(common.EnvTopK, config.ML.TopK, common.DefaultTopK),
		MinConvertibleRatio: getFloatFromEnvOrConfig(common.EnvMinConvertibleRatio, config.ML.MinConvertibleRatio, common.DefaultMinConvertibleRatio),
		Seed:                int64(getIntFromEnvOrConfig(common.EnvSeed, int(config.ML.Seed), common.DefaultSeed)),
		StaticDir:           getStringFromEnvOrConfig(common.EnvStaticDir, config.Server.StaticDir, common.DefaultStaticDir),
		StorePath:           getStringFromEnvOrConfig(common.EnvStorePath, config.Server.StorePath, ""),
		ServerPort:          getIntFromEnvOrConfig(common.EnvServerPort, config.Server.Port, common.DefaultServerPort),
		ShutdownTimeout:     getDurationOrDefault(common.EnvShutdownTimeout, shutdown),
		LogLevel:            getStringFromEnvOrConfig(common.EnvLogLevel, config.Server.LogLevel, common.DefaultLogLevel),
		ServiceURL:          getStringFromEnvOrConfig(common.EnvServiceURL, config.Client.URL, common.DefaultServiceURL),
		ClientTimeout:       getDurationOrDefault(common.EnvClientTimeout, clientTimeout),
	}
	settings.DatasetPath = getStringFromEnvOrConfig(common.EnvDatasetPath, config.ML.Dataset, settings.OutputPath)

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		DataDir:             getEnvOrDefault(common.EnvDataDir, common.DefaultDataDir),
		CharacteristicsFile: getEnvOrDefault(common.EnvCharacteristicsFile, common.DefaultCharacteristicsFile),
		OccupantsFile:       getEnvOrDefault(common.EnvOccupantsFile, common.DefaultOccupantsFile),
		VehiclesFile:        getEnvOrDefault(common.EnvVehiclesFile, common.DefaultVehiclesFile),
		LocationsFile:       getEnvOrDefault(common.EnvLocationsFile, common.DefaultLocationsFile),
		OutputPath:          getEnvOrDefault(common.EnvOutputPath, common.DefaultOutputPath),
		Separator:           getEnvOrDefault(common.EnvSeparator, common.DefaultSeparator),
		ReferenceYear:       getIntOrDefault(common.EnvReferenceYear, common.DefaultReferenceYear),
		CleanMode:           CleanMode(getEnvOrDefault(common.EnvCleanMode, common.DefaultCleanMode)),
		DropColumns:         splitOrDefault(os.Getenv(common.EnvDropColumns), common.DefaultDropColumns),
		FillSentinel:        getEnvOrDefault(common.EnvFillSentinel, common.DefaultFillSentinel),
		ModelPath:           getEnvOrDefault(common.EnvModelPath, common.DefaultModelPath),
		ModelsDir:           getEnvOrDefault(common.EnvModelsDir, common.DefaultModelsDir),
		Threshold:           getFloatOrDefault(common.EnvThreshold, common.DefaultThreshold),
		PreferredFeatures:   splitOrDefault(os.Getenv(common.EnvPreferredFeatures), common.DefaultPreferredFeatures),
		TopK:                getIntOrDefault(common.EnvTopK, common.DefaultTopK),
		MinConvertibleRatio: getFloatOrDefault(common.EnvMinConvertibleRatio, common.DefaultMinConvertibleRatio),
		Seed:                int64(getIntOrDefault(common.EnvSeed, common.DefaultSeed)),
		StaticDir:           getEnvOrDefault(common.EnvStaticDir, common.DefaultStaticDir),
		StorePath:           os.Getenv(common.EnvStorePath), // optional
		ServerPort:          getIntOrDefault(common.EnvServerPort, common.DefaultServerPort),
		ShutdownTimeout:     getDurationOrDefault(common.EnvShutdownTimeout, 10*time.Second),
		LogLevel:            getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		ServiceURL:          getEnvOrDefault(common.EnvServiceURL, common.DefaultServiceURL),
		ClientTimeout:       getDurationOrDefault(common.EnvClientTimeout, 5*time.Second),
	}
	settings.DatasetPath = getEnvOrDefault(common.EnvDatasetPath, settings.OutputPath)

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// InputPaths returns the four raw table paths resolved against DataDir.
func (s *Settings) InputPaths() (characteristics, occupants, vehicles, locations string) {
	return s.resolve(s.CharacteristicsFile), s.resolve(s.OccupantsFile),
		s.resolve(s.VehiclesFile), s.resolve(s.LocationsFile)
}

// SeparatorRune returns the CSV delimiter as a rune.
func (s *Settings) SeparatorRune() rune {
	r := []rune(s.Separator)
	if len(r) == 0 {
		return ';'
	}
	return r[0]
}

func (s *Settings) resolve(name string) string {
	if filepath.IsAbs(name) || s.DataDir == "" {
		return name
	}
	return filepath.Join(s.DataDir, name)
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func splitOrDefault(v string, def []string) []string {
	if v == "" {
		return append([]string(nil), def...)
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getStringFromEnvOrConfig(key, configValue, defaultValue string) string {
	if env := os.Getenv(key); env != "" {
		return env
	}
	if configValue != "" {
		return configValue
	}
	return defaultValue
}

func getListFromEnvOrConfig(key string, configValue, defaultValue []string) []string {
	if env := os.Getenv(key); env != "" {
		return splitOrDefault(env, defaultValue)
	}
	if len(configValue) > 0 {
		return configValue
	}
	return append([]string(nil), defaultValue...)
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

// validateSettings checks ranges and enumerations of configuration values
func validateSettings(settings *Settings) error {
	if settings.CharacteristicsFile == "" || settings.OccupantsFile == "" ||
		settings.VehiclesFile == "" || settings.LocationsFile == "" {
		return fmt.Errorf("all four input table paths are required")
	}
	if settings.OutputPath == "" {
		return fmt.Errorf("output path cannot be empty")
	}
	if len([]rune(settings.Separator)) != 1 {
		return fmt.Errorf("CSV separator must be a single character, got %q", settings.Separator)
	}

	switch settings.CleanMode {
	case CleanStrict, CleanNumeric:
	default:
		return fmt.Errorf("clean mode must be %q or %q, got %q", CleanStrict, CleanNumeric, settings.CleanMode)
	}
	if settings.CleanMode == CleanNumeric && settings.FillSentinel == "" {
		return fmt.Errorf("fill sentinel cannot be empty in numeric clean mode")
	}

	if settings.ReferenceYear < common.MinReferenceYear || settings.ReferenceYear > common.MaxReferenceYear {
		return fmt.Errorf("reference year must be between %d and %d, got %d",
			common.MinReferenceYear, common.MaxReferenceYear, settings.ReferenceYear)
	}
	if settings.Threshold < common.MinThreshold || settings.Threshold > common.MaxThreshold {
		return fmt.Errorf("probability threshold must be between %.2f and %.2f, got %f",
			common.MinThreshold, common.MaxThreshold, settings.Threshold)
	}
	if settings.TopK <= 0 || settings.TopK > common.MaxTopK {
		return fmt.Errorf("top-k must be between 1 and %d, got %d", common.MaxTopK, settings.TopK)
	}
	if settings.MinConvertibleRatio <= 0 || settings.MinConvertibleRatio > 1 {
		return fmt.Errorf("min convertible ratio must be in (0, 1], got %f", settings.MinConvertibleRatio)
	}
	if settings.ModelPath == "" {
		return fmt.Errorf("model path cannot be empty")
	}

	if settings.ServerPort < common.MinServerPort || settings.ServerPort > common.MaxServerPort {
		return fmt.Errorf("server port must be between %d and %d, got %d",
			common.MinServerPort, common.MaxServerPort, settings.ServerPort)
	}
	if settings.ShutdownTimeout < time.Second || settings.ShutdownTimeout > time.Minute {
		return fmt.Errorf("shutdown timeout must be between 1s and 1m, got %v", settings.ShutdownTimeout)
	}
	if settings.ClientTimeout < 100*time.Millisecond || settings.ClientTimeout > time.Minute {
		return fmt.Errorf("client timeout must be between 100ms and 1m, got %v", settings.ClientTimeout)
	}

	return nil
}
