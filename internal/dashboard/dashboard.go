// Package dashboard serves the static prediction page of the service and a
// websocket feed that pushes every served prediction to connected browsers.
package dashboard

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"accident-severity/internal/ml"
)

const (
	broadcastBuffer = 100
	writeTimeout    = 5 * time.Second
)

// MetricsInterface is the dashboard's view of the metrics wrapper.
type MetricsInterface interface {
	DashboardClientsSet(int)
}

// Message is the envelope of every websocket frame.
type Message struct {
	Type    string              `json:"type"` // "hello" or "prediction"
	Time    time.Time           `json:"time"`
	Clients int                 `json:"clients,omitempty"`
	Data    *ml.PredictionEvent `json:"data,omitempty"`
}

// Dashboard serves "/", "/static/" and the "/ws" live feed.
type Dashboard struct {
	staticDir        string
	metrics          MetricsInterface
	upgrader         websocket.Upgrader
	clients          map[*websocket.Conn]bool
	clientsMu        sync.Mutex
	broadcastChannel chan ml.PredictionEvent
	stopChannel      chan struct{}
	isRunning        bool
	mu               sync.Mutex
}

func New(staticDir string, metrics MetricsInterface) *Dashboard {
	return &Dashboard{
		staticDir:        staticDir,
		metrics:          metrics,
		upgrader:         websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:          make(map[*websocket.Conn]bool),
		broadcastChannel: make(chan ml.PredictionEvent, broadcastBuffer),
		stopChannel:      make(chan struct{}),
	}
}

// RegisterRoutes adds the dashboard routes to r.
func (d *Dashboard) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/", d.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/ws", d.handleWebSocket).Methods(http.MethodGet)
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.Dir(d.staticDir))))
}

// Start runs the broadcaster.
func (d *Dashboard) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isRunning {
		return fmt.Errorf("dashboard is already running")
	}
	go d.clientBroadcaster()
	d.isRunning = true
	return nil
}

// Stop ends the broadcaster and disconnects every client.
func (d *Dashboard) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.isRunning {
		return
	}
	close(d.stopChannel)

	d.clientsMu.Lock()
	for client := range d.clients {
		client.Close()
	}
	d.clients = make(map[*websocket.Conn]bool)
	d.clientsMu.Unlock()
	d.reportClients(0)

	d.isRunning = false
	log.Info().Msg("Dashboard stopped")
}

// Publish queues ev for connected clients. It never blocks: when the
// buffer is full the event is dropped.
func (d *Dashboard) Publish(ev ml.PredictionEvent) {
	select {
	case d.broadcastChannel <- ev:
	default:
		log.Debug().Str("id", ev.ID).Msg("Dashboard buffer full, dropping prediction event")
	}
}

// Clients returns the number of connected websocket clients.
func (d *Dashboard) Clients() int {
	d.clientsMu.Lock()
	defer d.clientsMu.Unlock()
	return len(d.clients)
}

func (d *Dashboard) clientBroadcaster() {
	for {
		select {
		case ev := <-d.broadcastChannel:
			d.broadcastToClients(Message{Type: "prediction", Time: time.Now().UTC(), Data: &ev})
		case <-d.stopChannel:
			return
		}
	}
}

// broadcastToClients writes msg to every client and drops the ones that
// fail.
func (d *Dashboard) broadcastToClients(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal dashboard message")
		return
	}

	d.clientsMu.Lock()
	defer d.clientsMu.Unlock()
	for client := range d.clients {
		client.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Warn().Err(err).Msg("Dropping dashboard client")
			client.Close()
			delete(d.clients, client)
		}
	}
	d.reportClientsLocked()
}

func (d *Dashboard) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	// the hello frame is written before the client is shared with the
	// broadcaster, which owns all later writes
	d.clientsMu.Lock()
	hello, _ := json.Marshal(Message{Type: "hello", Time: time.Now().UTC(), Clients: len(d.clients) + 1})
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
		d.clientsMu.Unlock()
		return
	}
	d.clients[conn] = true
	d.reportClientsLocked()
	d.clientsMu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	d.clientsMu.Lock()
	delete(d.clients, conn)
	d.reportClientsLocked()
	d.clientsMu.Unlock()
}

func (d *Dashboard) reportClientsLocked() {
	d.reportClients(len(d.clients))
}

func (d *Dashboard) reportClients(n int) {
	if d.metrics != nil {
		d.metrics.DashboardClientsSet(n)
	}
}

var notFoundPage = template.Must(template.New("notfound").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>Accident severity</title></head>
<body>
<h1>Page not found</h1>
<p>No index.html was found in {{.}}. The prediction API is still available at <code>POST /predict</code>.</p>
</body>
</html>
`))

// handleIndex serves index.html from the static directory, or a 404 page.
func (d *Dashboard) handleIndex(w http.ResponseWriter, r *http.Request) {
	index := filepath.Join(d.staticDir, "index.html")
	if info, err := os.Stat(index); err == nil && !info.IsDir() {
		http.ServeFile(w, r, index)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	if err := notFoundPage.Execute(w, d.staticDir); err != nil {
		log.Warn().Err(err).Msg("Failed to render not found page")
	}
}
