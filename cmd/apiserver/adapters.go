package main

import (
	"context"
	"sync"

	"github.com/colinvwood/taxa-barplot/internal/application/barplot"
	"github.com/colinvwood/taxa-barplot/internal/bootstrap"
	"github.com/colinvwood/taxa-barplot/internal/config"
	"github.com/colinvwood/taxa-barplot/internal/domain/dataset"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/messaging/kafka"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/monitoring/logging"
	"github.com/colinvwood/taxa-barplot/internal/interfaces/http/handlers"
)

func healthCheckers(svc barplot.Service, stack *bootstrap.Stack) []handlers.HealthChecker {
	checkers := []handlers.HealthChecker{handlers.ReadyFunc("dataset", svc.Ready)}
	for _, c := range stack.Checks {
		checkers = append(checkers, handlers.CheckFunc(c.Name, c.Fn))
	}
	return checkers
}

func servedID(svc barplot.Service, configured string) string {
	if configured != "" {
		return configured
	}
	if sum, ok := svc.Current(); ok {
		return sum.ID
	}
	return ""
}

// configReloader applies a changed config file. View defaults are pushed to
// the service only when they differ from the last applied values, so an
// unrelated edit does not undo a scheme chosen over the API.
func configReloader(view config.ViewConfig, svc barplot.Service, logger logging.Logger) func(*config.Config) {
	var mu sync.Mutex
	return func(c *config.Config) {
		if logger.SetLevel(c.Log.Level) {
			logger.Info("Log level changed", logging.String("level", c.Log.Level))
		}
		mu.Lock()
		defer mu.Unlock()
		if c.View == view {
			return
		}
		depth, scheme := 0, ""
		if c.View.DefaultDisplayDepth != view.DefaultDisplayDepth {
			depth = c.View.DefaultDisplayDepth
		}
		if c.View.ColorScheme != view.ColorScheme {
			scheme = c.View.ColorScheme
		}
		if err := svc.ApplyViewDefaults(context.Background(), depth, scheme); err != nil {
			logger.Warn("Failed to apply view defaults", logging.Err(err))
			return
		}
		view = c.View
		logger.Info("View defaults changed",
			logging.Int("default_display_depth", view.DefaultDisplayDepth),
			logging.String("color_scheme", view.ColorScheme))
	}
}

func reloadInto(svc barplot.Service, label string, logger logging.Logger) func(*dataset.Dataset) {
	return func(d *dataset.Dataset) {
		if err := svc.Load(context.Background(), d, label); err != nil {
			logger.Warn("Reloaded dataset rejected", logging.String("dataset_id", d.ID), logging.Err(err))
		}
	}
}

// importedHandler reloads the served dataset from the store when another
// process imports a new version of it. With no configured datasetID the ID of
// the currently served dataset is matched.
func importedHandler(svc barplot.Service, repo dataset.Repository, datasetID string, logger logging.Logger) kafka.EventHandler {
	return func(ctx context.Context, ev *kafka.ReceivedEvent) error {
		if ev.Type != dataset.EventImported || ev.DatasetID == "" || ev.DatasetID != servedID(svc, datasetID) {
			return nil
		}
		var payload dataset.ImportedPayload
		if err := ev.DecodePayload(&payload); err != nil {
			return err
		}
		d, err := repo.Get(ctx, ev.DatasetID)
		if err != nil {
			return err
		}
		if err := svc.Load(ctx, d, payload.Source); err != nil {
			return err
		}
		logger.Info("Dataset reloaded after import",
			logging.String("dataset_id", ev.DatasetID),
			logging.String("event_id", ev.ID))
		return nil
	}
}
