// Package e2e_test drives the HTTP API end to end. By default it serves an
// embedded stack (SQLite store, fixture dataset); set TAXABAR_E2E_BASE_URL to
// run against a deployed server loaded with the same fixture.
package e2e_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/colinvwood/taxa-barplot/internal/application/barplot"
	"github.com/colinvwood/taxa-barplot/internal/bootstrap"
	"github.com/colinvwood/taxa-barplot/internal/config"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/monitoring/logging"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/monitoring/prometheus"
	httpserver "github.com/colinvwood/taxa-barplot/internal/interfaces/http"
	"github.com/colinvwood/taxa-barplot/internal/interfaces/http/handlers"
	"github.com/colinvwood/taxa-barplot/internal/interfaces/http/middleware"
	"github.com/colinvwood/taxa-barplot/internal/testutil"
)

type testEnv struct {
	baseURL      string
	httpClient   *http.Client
	embedded     bool
	cleanupFuncs []func()
}

var env *testEnv

func TestMain(m *testing.M) {
	var err error
	env, err = setupTestEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "E2E test setup failed: %v\n", err)
		os.Exit(1)
	}
	code := m.Run()
	cleanup()
	os.Exit(code)
}

func setupTestEnv() (*testEnv, error) {
	e := &testEnv{httpClient: &http.Client{Timeout: 10 * time.Second}}
	if base := os.Getenv("TAXABAR_E2E_BASE_URL"); base != "" {
		e.baseURL = base
		return e, nil
	}
	if err := e.startEmbedded(); err != nil {
		e.cleanup()
		return nil, err
	}
	return e, nil
}

func (e *testEnv) startEmbedded() error {
	dir, err := os.MkdirTemp("", "taxabar-e2e-")
	if err != nil {
		return err
	}
	e.cleanupFuncs = append(e.cleanupFuncs, func() { _ = os.RemoveAll(dir) })
	for name, content := range map[string]string{
		"taxonomy.tsv":      testutil.FixtureTaxonomyTSV,
		"feature-table.csv": testutil.FixtureFeatureCSV,
		"metadata.csv":      testutil.FixtureMetadataCSV,
		"color-schemes.csv": testutil.FixtureSchemesCSV,
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return err
		}
	}

	cfg := config.NewDefaultConfig()
	cfg.SQLite.Path = ":memory:"
	cfg.Dataset.Dir = dir
	cfg.Dataset.ID = testutil.FixtureDatasetID
	cfg.Dataset.Name = "Fixture"
	cfg.View.DefaultDisplayDepth = 2

	logger := logging.NewNopLogger()
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "taxabar"}, logger)
	if err != nil {
		return err
	}
	metrics := prometheus.NewAppMetrics(collector)

	ctx := context.Background()
	stack, err := bootstrap.Open(ctx, cfg, logger, bootstrap.Options{Store: bootstrap.StoreSQLite, Metrics: metrics})
	if err != nil {
		return err
	}
	e.cleanupFuncs = append(e.cleanupFuncs, func() { _ = stack.Close() })

	svc := barplot.NewService(stack.ServiceOptions())
	if _, err := svc.Import(ctx, stack.DirectorySource(), bootstrap.SourceFile); err != nil {
		return err
	}

	checkers := []handlers.HealthChecker{handlers.ReadyFunc("dataset", svc.Ready)}
	for _, c := range stack.Checks {
		checkers = append(checkers, handlers.CheckFunc(c.Name, c.Fn))
	}
	router := httpserver.NewRouter(httpserver.RouterConfig{
		ViewHandler:      handlers.NewViewHandler(svc, logger),
		HealthHandler:    handlers.NewHealthHandler("e2e", checkers...),
		Logging:          middleware.DefaultLoggingConfig(),
		Requests:         metrics,
		Logger:           logger,
		MetricsCollector: collector,
	})
	srv := httptest.NewServer(router)
	e.cleanupFuncs = append(e.cleanupFuncs, srv.Close)
	e.baseURL = srv.URL
	e.embedded = true
	return nil
}

func (e *testEnv) cleanup() {
	for i := len(e.cleanupFuncs) - 1; i >= 0; i-- {
		e.cleanupFuncs[i]()
	}
	e.cleanupFuncs = nil
}

func cleanup() {
	if env != nil {
		env.cleanup()
	}
}
