package barplot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/colinvwood/taxa-barplot/internal/domain/controls"
	"github.com/colinvwood/taxa-barplot/internal/domain/dataset"
	"github.com/colinvwood/taxa-barplot/internal/domain/taxonomy"
	"github.com/colinvwood/taxa-barplot/internal/testutil"
	pkgerrors "github.com/colinvwood/taxa-barplot/pkg/errors"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, ev *dataset.Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func eventOfType(t dataset.EventType) interface{} {
	return mock.MatchedBy(func(ev *dataset.Event) bool { return ev.Type == t })
}

type fakeMetrics struct {
	mu        sync.Mutex
	renders   int
	overrides map[string]int
	depth     int
	loads     int
	errors    map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{overrides: map[string]int{}, errors: map[string]int{}}
}

func (f *fakeMetrics) RecordRender(time.Duration, int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renders++
}

func (f *fakeMetrics) RecordOverride(op, outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[op+"/"+outcome]++
}

func (f *fakeMetrics) SetDisplayDepth(d int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.depth = d
}

func (f *fakeMetrics) RecordDatasetLoad(string, time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
}

func (f *fakeMetrics) RecordError(component, code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors[component+"/"+code]++
}

type fakeMutex struct {
	lockErr  error
	locked   int
	unlocked int
}

func (m *fakeMutex) Lock(context.Context) error {
	if m.lockErr != nil {
		return m.lockErr
	}
	m.locked++
	return nil
}

func (m *fakeMutex) Unlock(context.Context) error {
	m.unlocked++
	return nil
}

type fixture struct {
	svc     Service
	pub     *MockPublisher
	metrics *fakeMetrics
	log     *testutil.MockLogger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{pub: new(MockPublisher), metrics: newFakeMetrics(), log: testutil.NewMockLogger()}
	f.svc = NewService(Options{DefaultDepth: 1, Publisher: f.pub, Metrics: f.metrics, Logger: f.log})
	require.NoError(t, f.svc.Load(context.Background(), testutil.NewFixtureDataset(), "test"))
	return f
}

func unitNames(b Bar) []string {
	out := make([]string, len(b.Units))
	for i, u := range b.Units {
		out[i] = u.FullName
	}
	return out
}

func TestService_NotLoaded(t *testing.T) {
	svc := NewService(Options{})
	ctx := context.Background()

	assert.False(t, svc.Ready())
	_, ok := svc.Current()
	assert.False(t, ok)

	_, err := svc.ViewState(ctx)
	assert.True(t, pkgerrors.IsUnavailable(err))
	_, err = svc.Render(ctx, RenderOptions{})
	assert.True(t, pkgerrors.IsUnavailable(err))
	_, err = svc.RequestExpansion(ctx, "k__Bacteria", 2)
	assert.True(t, pkgerrors.IsUnavailable(err))
}

func TestService_LoadRejectsInvalidDataset(t *testing.T) {
	svc := NewService(Options{})
	d := testutil.NewFixtureDataset()
	d.Rows = d.Rows[:1]

	err := svc.Load(context.Background(), d, "test")
	assert.True(t, pkgerrors.IsValidation(err))
	assert.False(t, svc.Ready())
}

func TestService_RenderDefaultDepth(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Render(context.Background(), RenderOptions{})
	require.NoError(t, err)

	assert.Equal(t, testutil.FixtureDatasetID, res.DatasetID)
	assert.Equal(t, 1, res.DisplayDepth)
	require.Len(t, res.Bars, 3)
	assert.Equal(t, []string{"k__Bacteria"}, unitNames(res.Bars[0]))
	assert.InDelta(t, 1.0, res.Bars[0].Units[0].RelAbun, 1e-9)
	assert.Equal(t, []string{"k__Bacteria", "k__Archaea"}, unitNames(res.Bars[1]))

	bacteria := res.Bars[1].Units[0]
	assert.Equal(t, 3, bacteria.Prevalence)
	assert.InDelta(t, 2.0/3.0, bacteria.MeanRelAbun, 1e-9)

	require.Len(t, res.Legend, 2)
	assert.NotEqual(t, res.Legend[0].Color, res.Legend[1].Color)
	assert.Equal(t, res.Legend[0].Color, res.Bars[2].Units[0].Color)
	assert.Equal(t, 1, f.metrics.renders)
}

func TestService_RenderWithControls(t *testing.T) {
	f := newFixture(t)
	opts := RenderOptions{
		Samples: controls.SampleOptions{
			Filters: []controls.SampleFilterOption{{Kind: "categorical", Column: "site", Levels: []string{"gut"}, Keep: true}},
			Sorts:   []controls.SampleSortOption{{Kind: "metadata", Column: "ph", Ascending: false}},
			Labels:  []string{"site"},
		},
		Features: controls.FeatureOptions{
			Filters: []controls.FeatureFilterOption{{Kind: "abundance", Operator: "<", Value: 0.4}},
		},
	}

	res, err := f.svc.Render(context.Background(), opts)
	require.NoError(t, err)

	require.Len(t, res.Bars, 2)
	assert.Equal(t, "s3", res.Bars[0].SampleID)
	assert.Equal(t, []string{"gut"}, res.Bars[0].Labels)
	assert.Equal(t, []string{"k__Bacteria", "k__Archaea"}, unitNames(res.Bars[0]))
	assert.Equal(t, "s1", res.Bars[1].SampleID)
	assert.Equal(t, []string{"site IN gut"}, res.SampleFilters)
	assert.Len(t, res.FeatureFilters, 1)
}

func TestService_RenderRejectsUnsupportedControl(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Render(context.Background(), RenderOptions{
		Features: controls.FeatureOptions{Sort: "alphabetical"},
	})
	assert.True(t, pkgerrors.IsValidation(err))
	assert.Equal(t, 1, f.metrics.errors["render/"+string(pkgerrors.ErrCodeControlUnsupported)])
}

func TestService_RenderEmptySampleSet(t *testing.T) {
	log := testutil.NewMockLogger()
	svc := NewService(Options{DefaultDepth: 2, Logger: log})
	d := testutil.NewFixtureDataset()
	d.Samples = nil
	require.NoError(t, svc.Load(context.Background(), d, "test"))

	res, err := svc.Render(context.Background(), RenderOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Bars)
	assert.True(t, log.HasMessage("warn", "Render over an empty sample set"))
}

func TestService_SetDisplayDepth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pub.On("Publish", mock.Anything, mock.MatchedBy(func(ev *dataset.Event) bool {
		p, ok := ev.Payload.(dataset.DepthPayload)
		return ev.Type == dataset.EventDisplayDepthChanged && ok && p.From == 1 && p.To == 2
	})).Return(nil).Once()

	out, err := f.svc.SetDisplayDepth(ctx, 2)
	require.NoError(t, err)
	assert.True(t, out.Accepted)

	out, err = f.svc.SetDisplayDepth(ctx, 9)
	require.NoError(t, err)
	assert.False(t, out.Accepted)
	assert.Equal(t, taxonomy.ReasonExceedsMaximum, out.Reason)

	state, err := f.svc.ViewState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, state.DisplayDepth)
	assert.Equal(t, 3, state.MaxDepth)
	assert.Equal(t, 2, f.metrics.depth)
	assert.Equal(t, 1, f.metrics.overrides["display_depth/accepted"])
	assert.Equal(t, 1, f.metrics.overrides["display_depth/rejected"])
	f.pub.AssertExpectations(t)
}

func TestService_ExpansionLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pub.On("Publish", mock.Anything, mock.MatchedBy(func(ev *dataset.Event) bool {
		p, ok := ev.Payload.(dataset.OverridePayload)
		return ev.Type == dataset.EventExpansionAdded && ok && p.Taxon == "k__Bacteria" && p.ToDepth == 3
	})).Return(nil).Once()
	f.pub.On("Publish", mock.Anything, eventOfType(dataset.EventExpansionCleared)).Return(nil).Once()

	out, err := f.svc.RequestExpansion(ctx, "k__Bacteria", 3)
	require.NoError(t, err)
	require.True(t, out.Accepted)

	res, err := f.svc.Render(ctx, RenderOptions{})
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{"k__Bacteria;p__Proteobacteria;c__Gamma", "k__Bacteria;p__Firmicutes;c__Clostridia", "k__Bacteria;p__Firmicutes;c__Bacilli"},
		unitNames(res.Bars[0]))
	assert.True(t, res.Bars[0].Units[0].Expanded)
	require.Len(t, res.Overrides, 1)

	require.NoError(t, f.svc.ClearExpansion(ctx, "k__Bacteria"))
	// a second clear is a no-op and publishes nothing
	require.NoError(t, f.svc.ClearExpansion(ctx, "k__Bacteria"))

	state, err := f.svc.ViewState(ctx)
	require.NoError(t, err)
	assert.Empty(t, state.Overrides)
	f.pub.AssertExpectations(t)
}

func TestService_RejectedOverrideIsNotPublished(t *testing.T) {
	f := newFixture(t)

	out, err := f.svc.RequestExpansion(context.Background(), "k__Bacteria", 1)
	require.NoError(t, err)
	assert.False(t, out.Accepted)
	assert.Equal(t, taxonomy.ReasonTargetNotDeeper, out.Reason)
	f.pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	assert.Equal(t, 1, f.metrics.overrides["expansion/rejected"])
}

func TestService_UnknownTaxon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RequestCollapse(ctx, "k__Fungi", 1)
	assert.True(t, pkgerrors.IsNotFound(err))
	assert.True(t, pkgerrors.IsNotFound(f.svc.ClearCollapse(ctx, "k__Fungi")))
	_, err = f.svc.DescribeTaxon(ctx, "k__Fungi")
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestService_CollapseAndReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pub.On("Publish", mock.Anything, mock.Anything).Return(nil)

	out, err := f.svc.SetDisplayDepth(ctx, 3)
	require.NoError(t, err)
	require.True(t, out.Accepted)
	out, err = f.svc.RequestCollapse(ctx, "k__Bacteria;p__Firmicutes;c__Bacilli", 2)
	require.NoError(t, err)
	require.True(t, out.Accepted)

	res, err := f.svc.Render(ctx, RenderOptions{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"k__Bacteria;p__Firmicutes", "k__Bacteria;p__Proteobacteria;c__Gamma"}, unitNames(res.Bars[0]))

	require.NoError(t, f.svc.Reset(ctx))
	state, err := f.svc.ViewState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, state.DisplayDepth)
	assert.Empty(t, state.Overrides)
	f.pub.AssertCalled(t, "Publish", mock.Anything, eventOfType(dataset.EventViewReset))
}

func TestService_PublishFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	f.pub.On("Publish", mock.Anything, mock.Anything).
		Return(pkgerrors.New(pkgerrors.ErrCodeExternalService, "broker down"))

	out, err := f.svc.SetDisplayDepth(context.Background(), 2)
	require.NoError(t, err)
	assert.True(t, out.Accepted)
	assert.True(t, f.log.HasMessage("warn", "Failed to publish event"))
	assert.Equal(t, 1, f.metrics.errors["publisher/"+string(pkgerrors.ErrCodeExternalService)])
}

func TestService_DescribeTaxon(t *testing.T) {
	f := newFixture(t)

	desc, err := f.svc.DescribeTaxon(context.Background(), "k__Bacteria; p__Firmicutes")
	require.NoError(t, err)
	assert.Equal(t, "p__Firmicutes", desc.Name)
	assert.Equal(t, "k__Bacteria;p__Firmicutes", desc.FullName)
	assert.Equal(t, 2, desc.Depth)
	assert.False(t, desc.IsLeaf)
	assert.Equal(t, []string{"c__Bacilli", "c__Clostridia"}, desc.Children)
	assert.Equal(t, []string{"k__Bacteria"}, desc.Ancestors)
	assert.Equal(t, 2, desc.LeafCount)
	assert.False(t, desc.Override.IsActive())

	leaf, err := f.svc.DescribeTaxon(context.Background(), "k__Archaea")
	require.NoError(t, err)
	assert.True(t, leaf.IsLeaf)
	assert.Equal(t, []string{"f4"}, leaf.LeafIDs)
	assert.Empty(t, leaf.Ancestors)
}

func TestService_ColorControls(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Contains(t, f.svc.Schemes(), "mono")
	require.NoError(t, f.svc.SetColorScheme(ctx, "mono"))
	assert.True(t, pkgerrors.IsNotFound(f.svc.SetColorScheme(ctx, "neon")))
	require.NoError(t, f.svc.SetCustomColor(ctx, "k__Archaea", "#ff0000"))

	res, err := f.svc.Render(ctx, RenderOptions{})
	require.NoError(t, err)
	assert.Equal(t, "mono", res.Scheme)
	assert.Equal(t, "#000000", res.Bars[0].Units[0].Color)
	assert.Equal(t, "#ff0000", res.Bars[1].Units[1].Color)
}

func TestService_ApplyViewDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pub.On("Publish", mock.Anything, mock.MatchedBy(func(ev *dataset.Event) bool {
		p, ok := ev.Payload.(dataset.DepthPayload)
		return ev.Type == dataset.EventDisplayDepthChanged && ok && p.From == 1 && p.To == 2
	})).Return(nil).Once()
	f.pub.On("Publish", mock.Anything, mock.MatchedBy(func(ev *dataset.Event) bool {
		p, ok := ev.Payload.(dataset.DepthPayload)
		return ev.Type == dataset.EventDisplayDepthChanged && ok && p.From == 2 && p.To == 3
	})).Return(nil).Once()
	f.pub.On("Publish", mock.Anything, eventOfType(dataset.EventViewReset)).Return(nil).Once()

	require.NoError(t, f.svc.ApplyViewDefaults(ctx, 2, "mono"))
	require.NoError(t, f.svc.ApplyViewDefaults(ctx, 2, ""))
	assert.True(t, pkgerrors.IsNotFound(f.svc.ApplyViewDefaults(ctx, 0, "neon")))

	state, err := f.svc.ViewState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, state.DisplayDepth)
	assert.Equal(t, "mono", state.Scheme)
	assert.Equal(t, 2, f.metrics.depth)

	_, err = f.svc.SetDisplayDepth(ctx, 3)
	require.NoError(t, err)
	require.NoError(t, f.svc.Reset(ctx))
	state, err = f.svc.ViewState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, state.DisplayDepth)
	f.pub.AssertExpectations(t)
}

func TestService_ApplyViewDefaultsBeforeLoad(t *testing.T) {
	svc := NewService(Options{DefaultDepth: 1})
	require.NoError(t, svc.ApplyViewDefaults(context.Background(), 2, ""))
	require.NoError(t, svc.Load(context.Background(), testutil.NewFixtureDataset(), "test"))

	state, err := svc.ViewState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, state.DisplayDepth)
}

func TestService_LoadKeepsDisplayDepth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pub.On("Publish", mock.Anything, mock.Anything).Return(nil)
	_, err := f.svc.SetDisplayDepth(ctx, 2)
	require.NoError(t, err)
	_, err = f.svc.RequestExpansion(ctx, "k__Bacteria;p__Firmicutes", 3)
	require.NoError(t, err)

	require.NoError(t, f.svc.Load(ctx, testutil.NewFixtureDataset(), "reload"))

	state, err := f.svc.ViewState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, state.DisplayDepth)
	assert.Empty(t, state.Overrides)
	assert.Equal(t, 2, f.metrics.loads)
}

func TestService_Import(t *testing.T) {
	repo := testutil.NewMemoryRepository()
	pub := new(MockPublisher)
	mu := &fakeMutex{}
	var lockedID string
	svc := NewService(Options{
		DefaultDepth: 2,
		Repository:   repo,
		Publisher:    pub,
		Locks: func(id string) Mutex {
			lockedID = id
			return mu
		},
	})
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(ev *dataset.Event) bool {
		p, ok := ev.Payload.(dataset.ImportedPayload)
		return ev.Type == dataset.EventImported && ok && p.Source == "file" && p.SampleCount == 3
	})).Return(nil).Once()

	src := dataset.SourceFunc(func(context.Context) (*dataset.Dataset, error) {
		return testutil.NewFixtureDataset(), nil
	})
	sum, err := svc.Import(context.Background(), src, "file")
	require.NoError(t, err)

	assert.Equal(t, testutil.FixtureDatasetID, sum.ID)
	assert.Equal(t, testutil.FixtureDatasetID, lockedID)
	assert.Equal(t, 1, mu.locked)
	assert.Equal(t, 1, mu.unlocked)
	_, err = repo.Get(context.Background(), testutil.FixtureDatasetID)
	assert.NoError(t, err)
	cur, ok := svc.Current()
	assert.True(t, ok)
	assert.Equal(t, 4, cur.FeatureCount)
	pub.AssertExpectations(t)
}

func TestService_ImportLockHeldElsewhere(t *testing.T) {
	repo := testutil.NewMemoryRepository()
	mu := &fakeMutex{lockErr: pkgerrors.New(pkgerrors.ErrCodeDatasetLocked, "dataset is locked")}
	svc := NewService(Options{Repository: repo, Locks: func(string) Mutex { return mu }})

	_, err := svc.Import(context.Background(), dataset.SourceFunc(func(context.Context) (*dataset.Dataset, error) {
		return testutil.NewFixtureDataset(), nil
	}), "file")
	assert.True(t, pkgerrors.IsConflict(err))

	list, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.False(t, svc.Ready())
}

func TestService_ImportSourceFailure(t *testing.T) {
	m := newFakeMetrics()
	svc := NewService(Options{Metrics: m})

	_, err := svc.Import(context.Background(), dataset.SourceFunc(func(context.Context) (*dataset.Dataset, error) {
		return nil, errors.New("read failed")
	}), "minio")
	assert.Error(t, err)
	assert.Equal(t, 1, m.loads)
	assert.Equal(t, 1, m.errors["import/unknown"])
}

func TestService_ConcurrentRenderAndEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pub.On("Publish", mock.Anything, mock.Anything).Return(nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			res, err := f.svc.Render(ctx, RenderOptions{})
			if assert.NoError(t, err) {
				for _, b := range res.Bars {
					var total float64
					for _, u := range b.Units {
						total += u.RelAbun
					}
					assert.InDelta(t, 1.0, total, 1e-9)
				}
			}
		}()
		go func(depth int) {
			defer wg.Done()
			_, err := f.svc.SetDisplayDepth(ctx, depth)
			assert.NoError(t, err)
		}(i%3 + 1)
	}
	wg.Wait()
}
