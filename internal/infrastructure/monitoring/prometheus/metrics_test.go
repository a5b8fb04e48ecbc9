package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAppMetrics_Recorders(t *testing.T) {
	c := newTestCollector(t)
	m := NewAppMetrics(c)

	m.RecordHTTPRequest("GET", "/api/v1/view", 200, 10*time.Millisecond)
	m.RecordRender(time.Millisecond, 4, 12, nil)
	m.RecordRender(0, 0, 0, errors.New("boom"))
	m.RecordOverride("expansion", "accepted")
	m.RecordOverride("expansion", "accepted")
	m.SetDisplayDepth(3)
	m.RecordDatasetLoad("file", time.Second, nil)
	m.RecordCacheHit("dataset")
	m.RecordCacheMiss("dataset")
	m.RecordEventPublished("taxabar.view.events", "ok")
	m.RecordError("http", "TAX_003")

	out := scrapeMetrics(t, c)
	for _, want := range []string{
		`test_unit_http_requests_total{method="GET",route="/api/v1/view",status_code="200"} 1`,
		`test_unit_renders_total{status="ok"} 1`,
		`test_unit_renders_total{status="error"} 1`,
		`test_unit_view_units_per_render_sum 12`,
		`test_unit_samples_rendered 4`,
		`test_unit_override_requests_total{operation="expansion",outcome="accepted"} 2`,
		`test_unit_display_depth 3`,
		`test_unit_dataset_loads_total{source="file",status="ok"} 1`,
		`test_unit_cache_hits_total{cache="dataset"} 1`,
		`test_unit_cache_misses_total{cache="dataset"} 1`,
		`test_unit_events_published_total{status="ok",topic="taxabar.view.events"} 1`,
		`test_unit_errors_total{code="TAX_003",component="http"} 1`,
	} {
		assert.Contains(t, out, want)
	}
}

func TestNopAppMetrics(t *testing.T) {
	m := NewNopAppMetrics()
	assert.NotPanics(t, func() {
		m.RecordHTTPRequest("GET", "/", 500, time.Second)
		m.RecordRender(time.Second, 1, 1, nil)
		m.RecordOverride("collapse", "rejected")
		m.SetDisplayDepth(2)
		m.RecordDatasetLoad("minio", time.Second, errors.New("x"))
		m.RecordCacheHit("dataset")
		m.RecordEventPublished("t", "error")
		m.RecordError("cli", "X")
	})
}
