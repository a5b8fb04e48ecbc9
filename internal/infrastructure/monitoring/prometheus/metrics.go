package prometheus

import (
	"strconv"
	"time"
)

// AppMetrics holds every series the service records.
type AppMetrics struct {
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec

	RendersTotal        CounterVec
	RenderDuration      HistogramVec
	ViewUnitsPerRender  HistogramVec
	SamplesRendered     GaugeVec
	OverrideRequests    CounterVec
	DisplayDepth        GaugeVec
	DatasetLoadsTotal   CounterVec
	DatasetLoadDuration HistogramVec

	CacheHitsTotal   CounterVec
	CacheMissesTotal CounterVec
	EventsPublished  CounterVec
	ErrorsTotal      CounterVec
}

var (
	DefaultHTTPDurationBuckets   = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}
	DefaultRenderDurationBuckets = []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5}
	DefaultCountBuckets          = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000}
)

func NewAppMetrics(c MetricsCollector) *AppMetrics {
	return &AppMetrics{
		HTTPRequestsTotal:   c.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "route", "status_code"),
		HTTPRequestDuration: c.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "route"),

		RendersTotal:        c.RegisterCounter("renders_total", "Render passes by status", "status"),
		RenderDuration:      c.RegisterHistogram("render_duration_seconds", "Render pass duration", DefaultRenderDurationBuckets),
		ViewUnitsPerRender:  c.RegisterHistogram("view_units_per_render", "View units produced by one render pass", DefaultCountBuckets),
		SamplesRendered:     c.RegisterGauge("samples_rendered", "Samples kept by the last render pass"),
		OverrideRequests:    c.RegisterCounter("override_requests_total", "View change requests by operation and outcome", "operation", "outcome"),
		DisplayDepth:        c.RegisterGauge("display_depth", "Current global display depth"),
		DatasetLoadsTotal:   c.RegisterCounter("dataset_loads_total", "Dataset loads by source and status", "source", "status"),
		DatasetLoadDuration: c.RegisterHistogram("dataset_load_duration_seconds", "Dataset load duration", nil, "source"),

		CacheHitsTotal:   c.RegisterCounter("cache_hits_total", "Cache hits", "cache"),
		CacheMissesTotal: c.RegisterCounter("cache_misses_total", "Cache misses", "cache"),
		EventsPublished:  c.RegisterCounter("events_published_total", "Published events by topic and status", "topic", "status"),
		ErrorsTotal:      c.RegisterCounter("errors_total", "Errors by component and code", "component", "code"),
	}
}

func (m *AppMetrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordRender records one render pass. units is the total across samples.
func (m *AppMetrics) RecordRender(d time.Duration, samples, units int, err error) {
	if err != nil {
		m.RendersTotal.WithLabelValues("error").Inc()
		return
	}
	m.RendersTotal.WithLabelValues("ok").Inc()
	m.RenderDuration.WithLabelValues().Observe(d.Seconds())
	m.ViewUnitsPerRender.WithLabelValues().Observe(float64(units))
	m.SamplesRendered.WithLabelValues().Set(float64(samples))
}

func (m *AppMetrics) RecordOverride(operation, outcome string) {
	m.OverrideRequests.WithLabelValues(operation, outcome).Inc()
}

func (m *AppMetrics) SetDisplayDepth(depth int) {
	m.DisplayDepth.WithLabelValues().Set(float64(depth))
}

func (m *AppMetrics) RecordDatasetLoad(source string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.DatasetLoadsTotal.WithLabelValues(source, status).Inc()
	m.DatasetLoadDuration.WithLabelValues(source).Observe(d.Seconds())
}

func (m *AppMetrics) RecordCacheHit(cache string)  { m.CacheHitsTotal.WithLabelValues(cache).Inc() }
func (m *AppMetrics) RecordCacheMiss(cache string) { m.CacheMissesTotal.WithLabelValues(cache).Inc() }

func (m *AppMetrics) RecordEventPublished(topic, status string) {
	m.EventsPublished.WithLabelValues(topic, status).Inc()
}

func (m *AppMetrics) RecordError(component, code string) {
	m.ErrorsTotal.WithLabelValues(component, code).Inc()
}

// NewNopAppMetrics returns metrics that record nothing, for callers running
// without an exposition endpoint.
func NewNopAppMetrics() *AppMetrics {
	return &AppMetrics{
		HTTPRequestsTotal:   noopCounterVec{},
		HTTPRequestDuration: noopHistogramVec{},
		RendersTotal:        noopCounterVec{},
		RenderDuration:      noopHistogramVec{},
		ViewUnitsPerRender:  noopHistogramVec{},
		SamplesRendered:     noopGaugeVec{},
		OverrideRequests:    noopCounterVec{},
		DisplayDepth:        noopGaugeVec{},
		DatasetLoadsTotal:   noopCounterVec{},
		DatasetLoadDuration: noopHistogramVec{},
		CacheHitsTotal:      noopCounterVec{},
		CacheMissesTotal:    noopCounterVec{},
		EventsPublished:     noopCounterVec{},
		ErrorsTotal:         noopCounterVec{},
	}
}
