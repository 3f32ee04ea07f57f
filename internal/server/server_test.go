package server

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/heysubinoy/pyazkv/internal/client"
	"github.com/heysubinoy/pyazkv/pkg/config"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.Store.SweepInterval = 10 * time.Millisecond
	cfg.Reliability.ShutdownTimeout = 5 * time.Second
	return cfg
}

func startServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	s := New(cfg, zap.NewNop())
	require.NoError(t, s.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, s.Shutdown(ctx))
	})
	return s
}

func request(t *testing.T, method, url, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func TestServer_HTTPScenario(t *testing.T) {
	s := startServer(t, testConfig())
	base := "http://" + s.HTTPAddr()

	code, _ := request(t, http.MethodPost, base+"/set?key=a", "b")
	assert.Equal(t, 200, code)
	code, body := request(t, http.MethodGet, base+"/get?key=a", "")
	assert.Equal(t, 200, code)
	assert.Equal(t, "b", body)
	code, _ = request(t, http.MethodGet, base+"/get?key=z", "")
	assert.Equal(t, 404, code)
	code, _ = request(t, http.MethodGet, base+"/set", "")
	assert.Equal(t, 400, code)
	code, _ = request(t, http.MethodGet, base+"/set?key=", "")
	assert.Equal(t, 400, code)
	code, _ = request(t, http.MethodPost, base+"/set?key=c", "")
	assert.Equal(t, 200, code)
	code, body = request(t, http.MethodGet, base+"/get?key=c", "")
	assert.Equal(t, 200, code)
	assert.Equal(t, "", body)
	code, _ = request(t, http.MethodDelete, base+"/delete?key=c", "")
	assert.Equal(t, 200, code)
	code, _ = request(t, http.MethodGet, base+"/get?key=c", "")
	assert.Equal(t, 404, code)
}

func TestServer_TransportsShareStore(t *testing.T) {
	s := startServer(t, testConfig())

	code, _ := request(t, http.MethodPost, "http://"+s.HTTPAddr()+"/set?key=shared", "from-http")
	require.Equal(t, 200, code)

	c, err := client.Dial(s.GRPCAddr())
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	value, found, err := c.Get(ctx, "shared")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "from-http", value)

	require.NoError(t, c.Set(ctx, "other", "from-grpc", time.Time{}))
	code, body := request(t, http.MethodGet, "http://"+s.HTTPAddr()+"/get?key=other", "")
	assert.Equal(t, 200, code)
	assert.Equal(t, "from-grpc", body)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	s := startServer(t, testConfig())

	request(t, http.MethodPost, "http://"+s.HTTPAddr()+"/set?key=a", "b")

	code, body := request(t, http.MethodGet, "http://"+s.MetricsAddr()+"/metrics", "")
	assert.Equal(t, 200, code)
	assert.Contains(t, body, `pyazkv_http_request_total{code="200",route="/set"} 1`)
	assert.Contains(t, body, "pyazkv_storage_keys 1")

	code, body = request(t, http.MethodGet, "http://"+s.MetricsAddr()+"/health", "")
	assert.Equal(t, 200, code)
	assert.Equal(t, "OK\n", body)
}

func TestServer_JanitorSweeps(t *testing.T) {
	s := startServer(t, testConfig())

	require.NoError(t, s.store.SetWithExpiry("short", "v", time.Now().Add(50*time.Millisecond)))
	require.NoError(t, s.store.Set("long", "v"))

	require.Eventually(t, func() bool { return s.store.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestServer_DisabledListeners(t *testing.T) {
	cfg := testConfig()
	cfg.DisableGRPC = true
	cfg.DisableMetrics = true
	s := startServer(t, cfg)

	assert.Empty(t, s.GRPCAddr())
	assert.Empty(t, s.MetricsAddr())

	code, _ := request(t, http.MethodPost, "http://"+s.HTTPAddr()+"/set?key=a", "b")
	assert.Equal(t, 200, code)
}

func TestServer_StartFailsOnBusyPort(t *testing.T) {
	first := startServer(t, testConfig())

	cfg := testConfig()
	cfg.HTTPAddr = first.HTTPAddr()
	assert.Error(t, New(cfg, zap.NewNop()).Start())
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	s := New(testConfig(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-s.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}
	assert.NotEmpty(t, s.HTTPAddr())
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
