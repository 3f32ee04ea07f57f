package api_test

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/heysubinoy/pyazkv/internal/api"
	"github.com/heysubinoy/pyazkv/internal/store"
	"github.com/heysubinoy/pyazkv/pkg/metrics"
)

func newTestServer(t *testing.T, opts ...api.ServerOption) (*httptest.Server, *store.MemStore) {
	t.Helper()
	s := store.NewMemStore()
	ts := httptest.NewServer(api.NewServer(s, opts...).Handler())
	t.Cleanup(ts.Close)
	return ts, s
}

func do(t *testing.T, ts *httptest.Server, method, target, body string) (int, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+target, r)
	require.NoError(t, err)

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func TestHTTP_Scenario(t *testing.T) {
	ts, _ := newTestServer(t)

	steps := []struct {
		method, target, body string
		wantCode             int
		wantBody             *string
	}{
		{http.MethodPost, "/set?key=a", "b", 200, nil},
		{http.MethodGet, "/get?key=a", "", 200, ptr("b")},
		{http.MethodGet, "/get?key=z", "", 404, nil},
		{http.MethodGet, "/set", "", 400, nil},
		{http.MethodGet, "/set?key=", "", 400, nil},
		{http.MethodPost, "/set?key=c", "", 200, nil},
		{http.MethodGet, "/get?key=c", "", 200, ptr("")},
		{http.MethodPost, "/set?key=x", "y", 200, nil},
		{http.MethodDelete, "/delete?key=c", "", 200, nil},
		{http.MethodGet, "/get?key=c", "", 404, nil},
		{http.MethodGet, "/get?key=x", "", 200, ptr("y")},
	}

	for _, st := range steps {
		code, body := do(t, ts, st.method, st.target, st.body)
		assert.Equal(t, st.wantCode, code, "%s %s", st.method, st.target)
		if st.wantBody != nil {
			assert.Equal(t, *st.wantBody, body, "%s %s", st.method, st.target)
		}
	}
}

func ptr(s string) *string { return &s }

func TestHTTP_InvalidKeyDoesNotMutate(t *testing.T) {
	ts, s := newTestServer(t)

	code, _ := do(t, ts, http.MethodPost, "/set", "value")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, ts, http.MethodPost, "/set?key=", "value")
	assert.Equal(t, http.StatusBadRequest, code)

	assert.Equal(t, 0, s.Len())
}

func TestHTTP_GetAndDeleteRequireKey(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, target := range []string{"/get", "/get?key="} {
		code, _ := do(t, ts, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, code, target)
	}
	for _, target := range []string{"/delete", "/delete?key="} {
		code, _ := do(t, ts, http.MethodDelete, target, "")
		assert.Equal(t, http.StatusBadRequest, code, target)
	}
}

func TestHTTP_DeleteAbsentKey(t *testing.T) {
	ts, _ := newTestServer(t)

	code, _ := do(t, ts, http.MethodDelete, "/delete?key=never-set", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestHTTP_SetOverwrites(t *testing.T) {
	ts, _ := newTestServer(t)

	do(t, ts, http.MethodPost, "/set?key=k", "one")
	code, _ := do(t, ts, http.MethodPut, "/set?key=k", "two")
	require.Equal(t, http.StatusOK, code)

	code, body := do(t, ts, http.MethodGet, "/get?key=k", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "two", body)
}

func TestHTTP_ValueIsVerbatim(t *testing.T) {
	ts, _ := newTestServer(t)

	value := "line one\nline two\t\"quoted\" ünïcode"
	code, _ := do(t, ts, http.MethodPost, "/set?key=multi%20word", value)
	require.Equal(t, http.StatusOK, code)

	code, body := do(t, ts, http.MethodGet, "/get?key=multi+word", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, value, body)
}

func TestHTTP_MethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/get?key=a", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, []string{http.MethodGet}, resp.Header.Values("Allow"))

	code, _ := do(t, ts, http.MethodGet, "/set?key=a", "")
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}

func TestHTTP_UnknownPath(t *testing.T) {
	ts, _ := newTestServer(t)

	code, _ := do(t, ts, http.MethodGet, "/nope?key=a", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHTTP_ValueTooLarge(t *testing.T) {
	ts, s := newTestServer(t, api.WithMaxValueBytes(4))

	code, body := do(t, ts, http.MethodPost, "/set?key=k", "too large")
	assert.Equal(t, http.StatusRequestEntityTooLarge, code)
	assert.Contains(t, body, "4 B")
	assert.Equal(t, 0, s.Len())

	code, _ = do(t, ts, http.MethodPost, "/set?key=k", "fits")
	assert.Equal(t, http.StatusOK, code)
}

func TestHTTP_Expire(t *testing.T) {
	ts, _ := newTestServer(t)

	future := time.Now().Add(time.Hour).UnixMilli()
	code, _ := do(t, ts, http.MethodPost, fmt.Sprintf("/set?key=k&expire=%d", future), "v")
	require.Equal(t, http.StatusOK, code)
	code, body := do(t, ts, http.MethodGet, "/get?key=k", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "v", body)

	past := time.Now().Add(-time.Second).UnixMilli()
	code, _ = do(t, ts, http.MethodPost, "/set?key=k&expire="+strconv.FormatInt(past, 10), "v2")
	require.Equal(t, http.StatusOK, code)
	code, _ = do(t, ts, http.MethodGet, "/get?key=k", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, ts, http.MethodPost, "/set?key=k&expire=soon", "v")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHTTP_RateLimit(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	ts, _ := newTestServer(t,
		api.WithMetrics(m),
		api.WithRateLimiter(rate.NewLimiter(rate.Every(time.Hour), 1)),
	)

	code, _ := do(t, ts, http.MethodGet, "/get?key=a", "")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = do(t, ts, http.MethodGet, "/get?key=a", "")
	assert.Equal(t, http.StatusTooManyRequests, code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitHits.WithLabelValues("http")))
}

func TestHTTP_RequestID(t *testing.T) {
	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/get?key=a", nil)
	require.NoError(t, err)
	req.Header.Set(api.RequestIDHeader, "req-123")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "req-123", resp.Header.Get(api.RequestIDHeader))

	resp, err = ts.Client().Get(ts.URL + "/get?key=a")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get(api.RequestIDHeader))
}

func TestHTTP_RecordsMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	ts, _ := newTestServer(t, api.WithMetrics(m))

	do(t, ts, http.MethodPost, "/set?key=a", "b")
	do(t, ts, http.MethodGet, "/get?key=a", "")
	do(t, ts, http.MethodGet, "/get?key=z", "")
	do(t, ts, http.MethodGet, "/elsewhere", "")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestTotal.WithLabelValues("/set", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestTotal.WithLabelValues("/get", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestTotal.WithLabelValues("/get", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestTotal.WithLabelValues("unmatched", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HTTPRequestInFlight))
}

// panicStore panics on every call.
type panicStore struct{}

func (panicStore) Get(string) (string, bool)                     { panic("boom") }
func (panicStore) Set(string, string) error                      { panic("boom") }
func (panicStore) SetWithExpiry(string, string, time.Time) error { panic("boom") }
func (panicStore) Delete(string) error                           { panic("boom") }

func TestHTTP_RecoversPanics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	ts := httptest.NewServer(api.NewServer(panicStore{}, api.WithMetrics(m)).Handler())
	defer ts.Close()

	code, _ := do(t, ts, http.MethodGet, "/get?key=a", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PanicsRecovered.WithLabelValues("http")))

	// The server keeps serving after a panic.
	code, _ = do(t, ts, http.MethodDelete, "/delete?key=a", "")
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestHTTP_ConcurrentDistinctKeys(t *testing.T) {
	ts, _ := newTestServer(t)

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			code, _ := do(t, ts, http.MethodPost, fmt.Sprintf("/set?key=k%d", i), fmt.Sprintf("v%d", i))
			assert.Equal(t, http.StatusOK, code)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		code, body := do(t, ts, http.MethodGet, fmt.Sprintf("/get?key=k%d", i), "")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, fmt.Sprintf("v%d", i), body)
	}
}
