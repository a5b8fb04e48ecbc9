package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colinvwood/taxa-barplot/pkg/errors"
)

func TestLiveness(t *testing.T) {
	h := NewHealthHandler("v1.2.3", ReadyFunc("dataset", func() bool { return false }))

	w := do(h.Liveness, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp LivenessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alive", resp.Status)
	assert.Equal(t, "v1.2.3", resp.Version)
}

func TestReadiness(t *testing.T) {
	ready := false
	h := NewHealthHandler("dev",
		ReadyFunc("dataset", func() bool { return ready }),
		CheckFunc("redis", func(context.Context) error { return nil }),
	)

	w := do(h.Readiness, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "not_ready", resp.Status)
	assert.Equal(t, "unhealthy", resp.Components["dataset"].Status)
	assert.Equal(t, "healthy", resp.Components["redis"].Status)

	ready = true
	w = do(h.Readiness, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadiness_FailingDependency(t *testing.T) {
	h := NewHealthHandler("dev", CheckFunc("postgres", func(context.Context) error {
		return errors.New(errors.ErrCodeDatabaseError, "connection refused")
	}))

	w := do(h.Readiness, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestReadiness_NoCheckers(t *testing.T) {
	w := do(NewHealthHandler("dev").Readiness, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
