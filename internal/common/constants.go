package common

// Column names shared by the preparation pipeline, the trainer and the service.
const (
	ColAccidentID      = "Num_Acc"
	ColRawAccidentID   = "Accident_Id"
	ColSeverity        = "grav"
	ColTarget          = "grave"
	ColUserCategory    = "catu"
	ColBirthYear       = "an_nais"
	ColVehicleID       = "id_vehicule"
	ColOccupantCount   = "nb_usagers"
	ColMeanAge         = "age_moyen"
	ColPedestrian      = "presence_pieton"
	ColVehicleCount    = "nb_vehicules"
	PedestrianCategory = 3
)

// SevereCodes lists the severity codes that make an accident "grave".
// Codes are ordered so that a lower value is a worse outcome: 1 unharmed,
// 2 killed, 3 hospitalised, 4 lightly injured.
var SevereCodes = map[int]bool{2: true, 3: true}

// Environment variable keys
const (
	EnvConfigFile          = "CONFIG_FILE"
	EnvDataDir             = "DATA_DIR"
	EnvCharacteristicsFile = "CHARACTERISTICS_FILE"
	EnvOccupantsFile       = "OCCUPANTS_FILE"
	EnvVehiclesFile        = "VEHICLES_FILE"
	EnvLocationsFile       = "LOCATIONS_FILE"
	EnvOutputPath          = "OUTPUT_PATH"
	EnvDatasetPath         = "DATASET_PATH"
	EnvSeparator           = "CSV_SEPARATOR"
	EnvReferenceYear       = "REFERENCE_YEAR"
	EnvCleanMode           = "CLEAN_MODE"
	EnvDropColumns         = "DROP_COLUMNS"
	EnvFillSentinel        = "FILL_SENTINEL"
	EnvModelPath           = "MODEL_PATH"
	EnvModelsDir           = "MODELS_DIR"
	EnvThreshold           = "PROB_THRESHOLD"
	EnvPreferredFeatures   = "PREFERRED_FEATURES"
	EnvTopK                = "TOP_K"
	EnvMinConvertibleRatio = "MIN_CONVERTIBLE_RATIO"
	EnvSeed                = "SEED"
	EnvStaticDir           = "STATIC_DIR"
	EnvStorePath           = "STORE_PATH"
	EnvServerPort          = "SERVER_PORT"
	EnvLogLevel            = "LOG_LEVEL"
	EnvShutdownTimeout     = "SHUTDOWN_TIMEOUT"
	EnvServiceURL          = "SERVICE_URL"
	EnvClientTimeout       = "CLIENT_TIMEOUT"
)

// Configuration defaults
const (
	DefaultDataDir             = "data"
	DefaultCharacteristicsFile = "caract-2023.csv"
	DefaultOccupantsFile       = "usagers-2023.csv"
	DefaultVehiclesFile        = "vehicules-2023.csv"
	DefaultLocationsFile       = "lieux-2023.csv"
	DefaultOutputPath          = "data/accidents_dataset_final.csv"
	DefaultSeparator           = ";"
	DefaultReferenceYear       = 2024
	DefaultCleanMode           = "numeric"
	DefaultFillSentinel        = "missing"
	DefaultModelPath           = "models/model_bundle.json"
	DefaultModelsDir           = "models"
	DefaultThreshold           = 0.67
	DefaultTopK                = 8
	DefaultSeed                = 42
	DefaultStaticDir           = "static"
	DefaultServerPort          = 8000
	DefaultLogLevel            = "info"
	DefaultServiceURL          = "http://localhost:8000"

	// DefaultMinConvertibleRatio is the minimum share of values in a
	// non-numeric column that must convert to a number for the column to be
	// kept as a feature.
	DefaultMinConvertibleRatio = 0.8

	// DefaultDecisionThreshold is the fixed cut-off reported as
	// prediction_default alongside the tuned threshold.
	DefaultDecisionThreshold = 0.5
)

// DefaultDropColumns are the position-reference columns removed by the
// numeric-aware cleaner.
var DefaultDropColumns = []string{"pr", "pr1"}

// DefaultPreferredFeatures is the fixed feature list tried before falling
// back to statistical selection.
var DefaultPreferredFeatures = []string{"agg", "col", "nb_usagers", "nb_vehicules", "v1", "plan", "situ", "vma"}

// Classifier hyperparameters
const (
	DefaultColsampleByTree = 1.0
	DefaultLearningRate    = 0.1
	DefaultMaxDepth        = 5
	DefaultNEstimators     = 200
	DefaultSubsample       = 1.0
)

// Common error messages
const (
	ErrMsgModelUnavailable = "model not available"
	ErrMsgInvalidJSON      = "invalid JSON body"
	ErrMsgMissingFeature   = "missing or invalid feature values"
)

// Validation constants
const (
	MinServerPort    = 1024
	MaxServerPort    = 65535
	MinThreshold     = 0.01
	MaxThreshold     = 0.99
	MinReferenceYear = 1900
	MaxReferenceYear = 2100
	MaxTopK          = 64
)
