package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colinvwood/taxa-barplot/internal/testutil"
)

type recordedRequest struct {
	method, route string
	status        int
}

type fakeRecorder struct {
	mu   sync.Mutex
	seen []recordedRequest
}

func (f *fakeRecorder) RecordHTTPRequest(method, route string, status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, recordedRequest{method, route, status})
}

func newLoggedRouter(log *testutil.MockLogger, rec RequestRecorder, cfg LoggingConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestLogging(log, cfg, rec))
	r.Get("/taxa/{id}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) })
	r.Get("/ok", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Get("/boom", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusInternalServerError) })
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {})
	return r
}

func TestRequestLogging_LevelsByStatus(t *testing.T) {
	log := testutil.NewMockLogger()
	rec := &fakeRecorder{}
	h := newLoggedRouter(log, rec, DefaultLoggingConfig())

	for _, path := range []string{"/ok", "/taxa/7", "/boom"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.True(t, log.HasMessage("info", "HTTP request completed"))
	assert.True(t, log.HasMessage("warn", "HTTP request completed with client error"))
	assert.True(t, log.HasMessage("error", "HTTP request completed with server error"))

	require.Len(t, rec.seen, 3)
	assert.Equal(t, recordedRequest{"GET", "/ok", 200}, rec.seen[0])
	assert.Equal(t, recordedRequest{"GET", "/taxa/{id}", 404}, rec.seen[1])
	assert.Equal(t, 500, rec.seen[2].status)
}

func TestRequestLogging_SkipsProbes(t *testing.T) {
	log := testutil.NewMockLogger()
	rec := &fakeRecorder{}
	h := newLoggedRouter(log, rec, DefaultLoggingConfig())

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Empty(t, log.GetMessages())
	assert.Empty(t, rec.seen)
}

func TestRequestLogging_Slow(t *testing.T) {
	log := testutil.NewMockLogger()
	r := chi.NewRouter()
	r.Use(RequestLogging(log, LoggingConfig{SlowThreshold: time.Nanosecond}, nil))
	r.Get("/slow", func(w http.ResponseWriter, _ *http.Request) { time.Sleep(time.Millisecond) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/slow", nil))
	assert.True(t, log.HasMessage("warn", "HTTP request completed (slow)"))
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })

	tests := []struct {
		name       string
		origins    []string
		origin     string
		method     string
		wantStatus int
		wantAllow  string
	}{
		{"no origin", []string{"https://a.example"}, "", http.MethodGet, http.StatusTeapot, ""},
		{"listed origin", []string{"https://a.example/"}, "https://A.example", http.MethodGet, http.StatusTeapot, "https://A.example"},
		{"unlisted origin", []string{"https://a.example"}, "https://b.example", http.MethodGet, http.StatusTeapot, ""},
		{"wildcard", []string{"*"}, "https://b.example", http.MethodGet, http.StatusTeapot, "*"},
		{"preflight", []string{"*"}, "https://b.example", http.MethodOptions, http.StatusNoContent, "*"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(tt.method, "/api/v1/view", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.method == http.MethodOptions {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			w := httptest.NewRecorder()
			CORS(tt.origins)(next).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantAllow, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}
