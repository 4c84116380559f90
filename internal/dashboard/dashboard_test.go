package dashboard

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accident-severity/internal/ml"
)

type clientGauge struct {
	mu sync.Mutex
	n  int
}

func (g *clientGauge) DashboardClientsSet(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = n
}

func (g *clientGauge) get() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}

func newServer(t *testing.T, staticDir string, gauge MetricsInterface) (*Dashboard, *httptest.Server) {
	t.Helper()
	d := New(staticDir, gauge)
	r := mux.NewRouter()
	d.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return d, srv
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestIndexAndStatic(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>severity</h1>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644))
	_, srv := newServer(t, dir, nil)

	code, body := get(t, srv.URL+"/")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "severity")

	code, body = get(t, srv.URL+"/static/app.js")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "console.log(1)", body)

	code, _ = get(t, srv.URL+"/static/missing.js")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestIndexMissing(t *testing.T) {
	_, srv := newServer(t, filepath.Join(t.TempDir(), "nothing"), nil)

	code, body := get(t, srv.URL+"/")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, body, "Page not found")
}

func TestLiveFeed(t *testing.T) {
	gauge := &clientGauge{}
	d, srv := newServer(t, t.TempDir(), gauge)
	require.NoError(t, d.Start())
	defer d.Stop()
	assert.Error(t, d.Start(), "second start fails")

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var hello Message
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "hello", hello.Type)
	assert.Equal(t, 1, hello.Clients)
	assert.Eventually(t, func() bool { return d.Clients() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, gauge.get())

	d.Publish(ml.PredictionEvent{ID: "p1", Probability: 0.7, PredictionThreshold: 1, Threshold: 0.67})

	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "prediction", msg.Type)
	require.NotNil(t, msg.Data)
	assert.Equal(t, "p1", msg.Data.ID)
	assert.Equal(t, 0.7, msg.Data.Probability)

	conn.Close()
	assert.Eventually(t, func() bool { return d.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestPublishNeverBlocks(t *testing.T) {
	d := New(t.TempDir(), nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < broadcastBuffer*3; i++ {
			d.Publish(ml.PredictionEvent{ID: "x"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked without a running broadcaster")
	}
	d.Stop()
}
