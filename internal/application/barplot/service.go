// Package barplot is the application service behind every surface: it owns
// the loaded dataset, the taxon tree and the view projector, and serializes
// override edits against render passes.
package barplot

import (
	"context"
	"sync"
	"time"

	"github.com/colinvwood/taxa-barplot/internal/domain/dataset"
	"github.com/colinvwood/taxa-barplot/internal/domain/palette"
	"github.com/colinvwood/taxa-barplot/internal/domain/taxonomy"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/monitoring/logging"
	"github.com/colinvwood/taxa-barplot/pkg/errors"
)

// Publisher receives state-change events. The kafka EventPublisher satisfies
// it.
type Publisher interface {
	Publish(ctx context.Context, ev *dataset.Event) error
}

// Metrics is the subset of prometheus.AppMetrics the service records.
type Metrics interface {
	RecordRender(d time.Duration, samples, units int, err error)
	RecordOverride(operation, outcome string)
	SetDisplayDepth(depth int)
	RecordDatasetLoad(source string, d time.Duration, err error)
	RecordError(component, code string)
}

// Mutex is a cross-process lock held for the duration of an import.
type Mutex interface {
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

// MutexFactory returns the lock guarding imports of datasetID.
type MutexFactory func(datasetID string) Mutex

// Service is the barplot use-case surface.
type Service interface {
	// Load replaces the current dataset. Overrides are dropped; the display
	// depth is kept when the new tree is deep enough.
	Load(ctx context.Context, d *dataset.Dataset, source string) error
	// Import loads src under the dataset lock, saves it when a repository is
	// configured, makes it current and publishes dataset.imported.
	Import(ctx context.Context, src dataset.Source, source string) (*dataset.Summary, error)
	Current() (dataset.Summary, bool)
	Ready() bool

	ViewState(ctx context.Context) (*ViewState, error)
	SetDisplayDepth(ctx context.Context, depth int) (taxonomy.Outcome, error)
	RequestExpansion(ctx context.Context, taxon string, toDepth int) (taxonomy.Outcome, error)
	RequestCollapse(ctx context.Context, taxon string, toDepth int) (taxonomy.Outcome, error)
	ClearExpansion(ctx context.Context, taxon string) error
	ClearCollapse(ctx context.Context, taxon string) error
	Reset(ctx context.Context) error

	// ApplyViewDefaults replaces the configured default display depth and
	// color scheme. A positive depth also becomes the current display depth;
	// an empty scheme is ignored.
	ApplyViewDefaults(ctx context.Context, depth int, scheme string) error
	SetColorScheme(ctx context.Context, name string) error
	SetCustomColor(ctx context.Context, taxon, color string) error
	Schemes() []string

	Render(ctx context.Context, opts RenderOptions) (*RenderResult, error)
	DescribeTaxon(ctx context.Context, taxon string) (*TaxonDescription, error)
}

// Options wires the optional collaborators. Nil members are skipped.
type Options struct {
	DefaultDepth int
	ColorScheme  string
	Repository   dataset.Repository
	Publisher    Publisher
	Metrics      Metrics
	Locks        MutexFactory
	Logger       logging.Logger
}

type serviceImpl struct {
	mu sync.Mutex

	current   *dataset.Dataset
	tree      *taxonomy.Tree
	projector *taxonomy.Projector
	palette   *palette.Palette
	depth     int

	repo      dataset.Repository
	publisher Publisher
	metrics   Metrics
	locks     MutexFactory
	logger    logging.Logger
}

// NewService returns a Service with no dataset loaded.
func NewService(opts Options) Service {
	log := opts.Logger
	if log == nil {
		log = logging.NewNopLogger()
	}
	p := palette.New()
	if opts.ColorScheme != "" {
		if err := p.SetScheme(opts.ColorScheme); err != nil {
			log.Warn("Unknown default color scheme, keeping built-in",
				logging.String("scheme", opts.ColorScheme))
		}
	}
	return &serviceImpl{
		palette:   p,
		depth:     opts.DefaultDepth,
		repo:      opts.Repository,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		locks:     opts.Locks,
		logger:    log.Named("barplot"),
	}
}

var errNoDataset = errors.New(errors.ErrCodeServiceUnavailable, "no dataset loaded")

// requireLoaded must be called with s.mu held.
func (s *serviceImpl) requireLoaded() error {
	if s.projector == nil {
		return errNoDataset
	}
	return nil
}

func (s *serviceImpl) Load(ctx context.Context, d *dataset.Dataset, source string) error {
	start := time.Now()
	err := s.load(d)
	if s.metrics != nil {
		s.metrics.RecordDatasetLoad(source, time.Since(start), err)
	}
	if err != nil {
		s.recordError("service", err)
		return err
	}
	s.logger.Info("Dataset loaded",
		logging.String("dataset_id", d.ID),
		logging.String("source", source),
		logging.Int("features", len(d.Rows)),
		logging.Int("samples", len(d.Samples)),
		logging.Duration("elapsed", time.Since(start)))
	return nil
}

func (s *serviceImpl) load(d *dataset.Dataset) error {
	if d == nil {
		return errors.InvalidParam("dataset is nil")
	}
	if err := d.Validate(); err != nil {
		return err
	}
	tree, err := d.BuildTree()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	projector := taxonomy.NewProjector(tree, s.depth)
	if s.projector != nil {
		// a rejected depth leaves the clamped default in place
		projector.SetDisplayDepth(s.projector.DisplayDepth())
	}
	s.current = d
	s.tree = tree
	s.projector = projector
	s.palette.LoadSchemes(d.Schemes)
	if s.metrics != nil {
		s.metrics.SetDisplayDepth(s.projector.DisplayDepth())
	}
	return nil
}

func (s *serviceImpl) Import(ctx context.Context, src dataset.Source, source string) (*dataset.Summary, error) {
	var lock Mutex
	d, err := src.Load(ctx)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordDatasetLoad(source, 0, err)
		}
		s.recordError("import", err)
		return nil, err
	}

	if s.locks != nil {
		lock = s.locks(d.ID)
		if err := lock.Lock(ctx); err != nil {
			s.recordError("import", err)
			return nil, err
		}
		defer func() {
			if err := lock.Unlock(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("Failed to release dataset lock",
					logging.String("dataset_id", d.ID), logging.Err(err))
			}
		}()
	}

	if s.repo != nil {
		if err := s.repo.Save(ctx, d); err != nil {
			s.recordError("import", err)
			return nil, err
		}
	}
	if err := s.Load(ctx, d, source); err != nil {
		return nil, err
	}

	sum := d.Summary()
	s.publish(ctx, dataset.NewEvent(dataset.EventImported, d.ID, dataset.ImportedPayload{
		Name:         d.Name,
		Source:       source,
		FeatureCount: sum.FeatureCount,
		SampleCount:  sum.SampleCount,
	}))
	return &sum, nil
}

func (s *serviceImpl) Current() (dataset.Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return dataset.Summary{}, false
	}
	return s.current.Summary(), true
}

func (s *serviceImpl) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projector != nil
}

func (s *serviceImpl) Schemes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.palette.Schemes()
}

func (s *serviceImpl) SetColorScheme(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.palette.SetScheme(name)
}

// SetCustomColor pins color to taxon; an empty color removes the pin.
func (s *serviceImpl) SetCustomColor(_ context.Context, taxon, color string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLoaded(); err != nil {
		return err
	}
	id, err := s.tree.FindByPath(taxon)
	if err != nil {
		return err
	}
	full, err := s.tree.FullName(id)
	if err != nil {
		return err
	}
	if color == "" {
		s.palette.RemoveCustomColor(full)
		return nil
	}
	s.palette.SetCustomColor(full, color)
	return nil
}

// publish never fails the caller; failures are logged and counted.
func (s *serviceImpl) publish(ctx context.Context, ev *dataset.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("Failed to publish event",
			logging.String("event_type", string(ev.Type)),
			logging.String("dataset_id", ev.DatasetID),
			logging.Err(err))
		s.recordError("publisher", err)
	}
}

func (s *serviceImpl) recordError(component string, err error) {
	if s.metrics == nil {
		return
	}
	code := errors.GetCode(err).String()
	if code == "" {
		code = "unknown"
	}
	s.metrics.RecordError(component, code)
}
