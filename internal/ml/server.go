package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"accident-severity/internal/common"
)

// PredictionEvent is one served prediction, as stored and broadcast.
type PredictionEvent struct {
	ID                  string             `json:"id"`
	RequestID           string             `json:"request_id,omitempty"`
	Timestamp           time.Time          `json:"timestamp"`
	ModelVersion        string             `json:"model_version"`
	Features            map[string]float64 `json:"features"`
	Probability         float64            `json:"probability"`
	PredictionDefault   int                `json:"prediction_default"`
	PredictionThreshold int                `json:"prediction_threshold"`
	Threshold           float64            `json:"threshold"`
}

// PredictionStore keeps a history of served predictions.
type PredictionStore interface {
	SavePrediction(PredictionEvent) error
	RecentPredictions(limit int) ([]PredictionEvent, error)
}

// PredictionFeed receives every served prediction, e.g. a live dashboard.
type PredictionFeed interface {
	Publish(PredictionEvent)
}

// ReloadFunc resolves a new bundle to serve.
type ReloadFunc func() (*Bundle, Source, error)

// ServerOptions wires optional collaborators into the model server.
type ServerOptions struct {
	Port     int
	Reload   ReloadFunc
	Store    PredictionStore
	Feed     PredictionFeed
	Gatherer prometheus.Gatherer
	Source   Source
}

// ModelServer provides the HTTP API for predictions
type ModelServer struct {
	predictor  *Predictor
	opts       ServerOptions
	importance *FeatureImportance
	router     *mux.Router
	server     *http.Server
	startedAt  time.Time

	reloadMu sync.Mutex
	sourceMu sync.RWMutex
	source   Source
}

type errorResponse struct {
	Error            string   `json:"error"`
	RequiredFeatures []string `json:"required_features,omitempty"`
}

type featuresResponse struct {
	Features  []string `json:"features"`
	Threshold float64  `json:"threshold"`
}

type healthResponse struct {
	Status       string  `json:"status"`
	ModelLoaded  bool    `json:"model_loaded"`
	ModelVersion string  `json:"model_version,omitempty"`
	Source       Source  `json:"source"`
	Uptime       float64 `json:"uptime_seconds"`
}

type modelInfoResponse struct {
	Version      string         `json:"version"`
	TrainedAt    time.Time      `json:"trained_at"`
	Source       Source         `json:"source"`
	Features     []string       `json:"features"`
	Threshold    float64        `json:"threshold"`
	Strategy     StrategyKind   `json:"strategy"`
	K            int            `json:"k,omitempty"`
	Scores       []FeatureScore `json:"scores,omitempty"`
	TrainingRows int            `json:"training_rows"`
	ClassWeight  float64        `json:"class_weight"`
	Trees        int            `json:"trees"`
	Importance   []FeatureStats `json:"importance"`
}

type reloadResponse struct {
	Version string `json:"version"`
	Source  Source `json:"source"`
}

// NewModelServer builds the router. Extra routes (the dashboard) can be
// added through Router before Start.
func NewModelServer(predictor *Predictor, opts ServerOptions) *ModelServer {
	if opts.Port == 0 {
		opts.Port = common.DefaultServerPort
	}
	if opts.Source == "" {
		opts.Source = SourceNone
		if predictor.Available() {
			opts.Source = SourceFile
		}
	}

	ms := &ModelServer{
		predictor:  predictor,
		opts:       opts,
		importance: NewFeatureImportance(predictor.Current()),
		router:     mux.NewRouter(),
		startedAt:  time.Now(),
		source:     opts.Source,
	}

	ms.router.HandleFunc("/features", ms.handleFeatures).Methods(http.MethodGet)
	ms.router.HandleFunc("/predict", ms.handlePredict).Methods(http.MethodPost)
	ms.router.HandleFunc("/health", ms.handleHealth).Methods(http.MethodGet)
	ms.router.HandleFunc("/model/info", ms.handleModelInfo).Methods(http.MethodGet)
	ms.router.HandleFunc("/predictions/recent", ms.handleRecent).Methods(http.MethodGet)
	ms.router.HandleFunc("/reload", ms.handleReload).Methods(http.MethodPost)

	metricsHandler := promhttp.Handler()
	if opts.Gatherer != nil {
		metricsHandler = promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})
	}
	ms.router.Handle("/metrics", metricsHandler).Methods(http.MethodGet)

	ms.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      ms.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return ms
}

// Router exposes the mux router for additional routes.
func (ms *ModelServer) Router() *mux.Router {
	return ms.router
}

// Handler is the router wrapped in the middleware chain.
func (ms *ModelServer) Handler() http.Handler {
	return recovery(accessLog(cors(ms.router)))
}

// Start begins serving HTTP requests
func (ms *ModelServer) Start() error {
	log.Info().Str("addr", ms.server.Addr).Msg("Starting model server")
	return ms.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (ms *ModelServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}

func (ms *ModelServer) currentSource() Source {
	ms.sourceMu.RLock()
	defer ms.sourceMu.RUnlock()
	return ms.source
}

func (ms *ModelServer) handleFeatures(w http.ResponseWriter, r *http.Request) {
	b := ms.predictor.Current()
	if b == nil {
		writeJSON(w, http.StatusOK, featuresResponse{Features: []string{}, Threshold: common.DefaultThreshold})
		return
	}
	writeJSON(w, http.StatusOK, featuresResponse{Features: b.Features, Threshold: b.Threshold})
}

func (ms *ModelServer) handlePredict(w http.ResponseWriter, r *http.Request) {
	b := ms.predictor.Current()
	if b == nil {
		ms.predictor.fail()
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: common.ErrMsgModelUnavailable})
		return
	}

	var input map[string]any
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&input); err != nil || input == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:            fmt.Sprintf("%s; required features: %s", common.ErrMsgInvalidJSON, strings.Join(b.Features, ", ")),
			RequiredFeatures: b.Features,
		})
		return
	}

	pred, err := ms.predictor.Predict(input)
	if err != nil {
		var verr *ValidationError
		switch {
		case errors.As(err, &verr):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error(), RequiredFeatures: verr.Required})
		case errors.Is(err, ErrModelUnavailable):
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: common.ErrMsgModelUnavailable})
		default:
			log.Error().Err(err).Str("request_id", RequestID(r.Context())).Msg("Prediction failed")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		return
	}

	ms.record(r.Context(), input, pred)
	writeJSON(w, http.StatusOK, pred)
}

// record feeds a served prediction to the importance tracker, the store
// and the live feed. Store failures are logged only.
func (ms *ModelServer) record(ctx context.Context, input map[string]any, pred *Prediction) {
	x, err := ExtractFeatures(input, pred.UsedFeatures)
	if err != nil {
		return
	}
	ms.importance.Observe(pred.UsedFeatures, x)

	if ms.opts.Store == nil && ms.opts.Feed == nil {
		return
	}
	values := make(map[string]float64, len(x))
	for j, name := range pred.UsedFeatures {
		values[name] = x[j]
	}
	ev := PredictionEvent{
		ID:                  uuid.NewString(),
		RequestID:           RequestID(ctx),
		Timestamp:           time.Now().UTC(),
		ModelVersion:        pred.ModelVersion,
		Features:            values,
		Probability:         pred.Probability,
		PredictionDefault:   pred.PredictionDefault,
		PredictionThreshold: pred.PredictionThreshold,
		Threshold:           pred.Threshold,
	}
	if ms.opts.Store != nil {
		if err := ms.opts.Store.SavePrediction(ev); err != nil {
			log.Warn().Err(err).Str("id", ev.ID).Msg("Failed to store prediction")
		}
	}
	if ms.opts.Feed != nil {
		ms.opts.Feed.Publish(ev)
	}
}

func (ms *ModelServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	b := ms.predictor.Current()
	resp := healthResponse{
		Status:      "ok",
		ModelLoaded: b != nil,
		Source:      ms.currentSource(),
		Uptime:      time.Since(ms.startedAt).Seconds(),
	}
	status := http.StatusOK
	if b == nil {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	} else {
		resp.ModelVersion = b.Version
	}
	writeJSON(w, status, resp)
}

func (ms *ModelServer) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	b := ms.predictor.Current()
	if b == nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: common.ErrMsgModelUnavailable})
		return
	}
	writeJSON(w, http.StatusOK, modelInfoResponse{
		Version:      b.Version,
		TrainedAt:    b.TrainedAt,
		Source:       ms.currentSource(),
		Features:     b.Features,
		Threshold:    b.Threshold,
		Strategy:     b.Selection.Strategy,
		K:            b.Selection.K,
		Scores:       b.Selection.Scores,
		TrainingRows: b.TrainingRows,
		ClassWeight:  b.ClassWeight,
		Trees:        len(b.Model.Trees),
		Importance:   ms.importance.Snapshot(),
	})
}

func (ms *ModelServer) handleRecent(w http.ResponseWriter, r *http.Request) {
	if ms.opts.Store == nil {
		writeJSON(w, http.StatusOK, []PredictionEvent{})
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	events, err := ms.opts.Store.RecentPredictions(limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read recent predictions")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to read predictions"})
		return
	}
	if events == nil {
		events = []PredictionEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// handleReload resolves a bundle again and swaps it in. The current
// bundle stays installed when the reload fails.
func (ms *ModelServer) handleReload(w http.ResponseWriter, r *http.Request) {
	if ms.opts.Reload == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "reload is not configured"})
		return
	}
	ms.reloadMu.Lock()
	defer ms.reloadMu.Unlock()

	b, source, err := ms.opts.Reload()
	if b == nil {
		msg := common.ErrMsgModelUnavailable
		if err != nil {
			msg = fmt.Sprintf("%s: %v", msg, err)
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: msg})
		return
	}

	ms.predictor.Swap(b)
	ms.importance.Reset(b)
	ms.sourceMu.Lock()
	ms.source = source
	ms.sourceMu.Unlock()

	writeJSON(w, http.StatusOK, reloadResponse{Version: b.Version, Source: source})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}
