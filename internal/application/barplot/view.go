package barplot

import (
	"context"

	"github.com/colinvwood/taxa-barplot/internal/domain/dataset"
	"github.com/colinvwood/taxa-barplot/internal/domain/taxonomy"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/monitoring/logging"
)

// ViewState is the current projector configuration.
type ViewState struct {
	DatasetID    string                  `json:"dataset_id"`
	DisplayDepth int                     `json:"display_depth"`
	MaxDepth     int                     `json:"max_depth"`
	Overrides    []taxonomy.NodeOverride `json:"overrides"`
	Scheme       string                  `json:"scheme"`
}

// TaxonDescription is the inspection view of one taxon.
type TaxonDescription struct {
	Name      string            `json:"name"`
	FullName  string            `json:"full_name"`
	Depth     int               `json:"depth"`
	IsLeaf    bool              `json:"is_leaf"`
	Children  []string          `json:"children"`
	Ancestors []string          `json:"ancestors"`
	LeafCount int               `json:"leaf_count"`
	LeafIDs   []string          `json:"leaf_ids,omitempty"`
	Override  taxonomy.Override `json:"override"`
	Color     string            `json:"color,omitempty"`
}

const (
	opDepth     = "display_depth"
	opExpansion = "expansion"
	opCollapse  = "collapse"
)

func outcomeLabel(o taxonomy.Outcome, err error) string {
	switch {
	case err != nil:
		return "error"
	case o.Accepted:
		return "accepted"
	default:
		return "rejected"
	}
}

func (s *serviceImpl) recordOverride(op string, o taxonomy.Outcome, err error) {
	if s.metrics != nil {
		s.metrics.RecordOverride(op, outcomeLabel(o, err))
	}
	if err != nil {
		s.recordError("projector", err)
	}
}

func (s *serviceImpl) ViewState(_ context.Context) (*ViewState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLoaded(); err != nil {
		return nil, err
	}
	return &ViewState{
		DatasetID:    s.current.ID,
		DisplayDepth: s.projector.DisplayDepth(),
		MaxDepth:     s.tree.MaxLeafDepth(),
		Overrides:    s.projector.ActiveOverrides(),
		Scheme:       s.palette.Scheme(),
	}, nil
}

func (s *serviceImpl) SetDisplayDepth(ctx context.Context, depth int) (taxonomy.Outcome, error) {
	s.mu.Lock()
	if err := s.requireLoaded(); err != nil {
		s.mu.Unlock()
		return taxonomy.Outcome{}, err
	}
	from := s.projector.DisplayDepth()
	out := s.projector.SetDisplayDepth(depth)
	id := s.current.ID
	s.mu.Unlock()

	s.recordOverride(opDepth, out, nil)
	if !out.Accepted {
		return out, nil
	}
	if s.metrics != nil {
		s.metrics.SetDisplayDepth(depth)
	}
	s.publish(ctx, dataset.NewEvent(dataset.EventDisplayDepthChanged, id, dataset.DepthPayload{From: from, To: depth}))
	return out, nil
}

func (s *serviceImpl) ApplyViewDefaults(ctx context.Context, depth int, scheme string) error {
	s.mu.Lock()
	if scheme != "" {
		if err := s.palette.SetScheme(scheme); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	if depth <= 0 {
		s.mu.Unlock()
		return nil
	}
	s.depth = depth
	if s.projector == nil {
		s.mu.Unlock()
		return nil
	}
	from := s.projector.DisplayDepth()
	s.projector.SetDefaultDepth(depth)
	to := s.projector.DefaultDepth()
	s.projector.SetDisplayDepth(to)
	id := s.current.ID
	s.mu.Unlock()

	if from == to {
		return nil
	}
	if s.metrics != nil {
		s.metrics.SetDisplayDepth(to)
	}
	s.publish(ctx, dataset.NewEvent(dataset.EventDisplayDepthChanged, id, dataset.DepthPayload{From: from, To: to}))
	return nil
}

type overrideRequest func(p *taxonomy.Projector, id taxonomy.ID, toDepth int) (taxonomy.Outcome, error)

func (s *serviceImpl) requestOverride(ctx context.Context, op string, evType dataset.EventType,
	req overrideRequest, taxon string, toDepth int) (taxonomy.Outcome, error) {
	s.mu.Lock()
	if err := s.requireLoaded(); err != nil {
		s.mu.Unlock()
		return taxonomy.Outcome{}, err
	}
	id, err := s.tree.FindByPath(taxon)
	if err != nil {
		s.mu.Unlock()
		return taxonomy.Outcome{}, err
	}
	full, _ := s.tree.FullName(id)
	out, err := req(s.projector, id, toDepth)
	datasetID := s.current.ID
	s.mu.Unlock()

	s.recordOverride(op, out, err)
	if err != nil {
		return out, err
	}
	if !out.Accepted {
		s.logger.Debug("Override rejected",
			logging.String("operation", op),
			logging.String("taxon", full),
			logging.String("reason", out.Reason.String()))
		return out, nil
	}
	s.publish(ctx, dataset.NewEvent(evType, datasetID, dataset.OverridePayload{Taxon: full, ToDepth: toDepth}))
	return out, nil
}

func (s *serviceImpl) RequestExpansion(ctx context.Context, taxon string, toDepth int) (taxonomy.Outcome, error) {
	return s.requestOverride(ctx, opExpansion, dataset.EventExpansionAdded,
		(*taxonomy.Projector).RequestExpansion, taxon, toDepth)
}

func (s *serviceImpl) RequestCollapse(ctx context.Context, taxon string, toDepth int) (taxonomy.Outcome, error) {
	return s.requestOverride(ctx, opCollapse, dataset.EventCollapseAdded,
		(*taxonomy.Projector).RequestCollapse, taxon, toDepth)
}

func (s *serviceImpl) clearOverride(ctx context.Context, kind taxonomy.OverrideKind, evType dataset.EventType, taxon string) error {
	s.mu.Lock()
	if err := s.requireLoaded(); err != nil {
		s.mu.Unlock()
		return err
	}
	id, err := s.tree.FindByPath(taxon)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	full, _ := s.tree.FullName(id)
	held, _ := s.projector.Override(id)
	if kind == taxonomy.OverrideExpand {
		err = s.projector.ClearExpansion(id)
	} else {
		err = s.projector.ClearCollapse(id)
	}
	datasetID := s.current.ID
	s.mu.Unlock()

	if err != nil {
		return err
	}
	// clearing a taxon without the override is a no-op and publishes nothing
	if held.Kind() == kind {
		s.publish(ctx, dataset.NewEvent(evType, datasetID, dataset.OverridePayload{Taxon: full}))
	}
	return nil
}

func (s *serviceImpl) ClearExpansion(ctx context.Context, taxon string) error {
	return s.clearOverride(ctx, taxonomy.OverrideExpand, dataset.EventExpansionCleared, taxon)
}

func (s *serviceImpl) ClearCollapse(ctx context.Context, taxon string) error {
	return s.clearOverride(ctx, taxonomy.OverrideCollapse, dataset.EventCollapseCleared, taxon)
}

// Reset drops every override and restores the configured default depth.
func (s *serviceImpl) Reset(ctx context.Context) error {
	s.mu.Lock()
	if err := s.requireLoaded(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.projector.Reset()
	depth := s.projector.DisplayDepth()
	datasetID := s.current.ID
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetDisplayDepth(depth)
	}
	s.publish(ctx, dataset.NewEvent(dataset.EventViewReset, datasetID, nil))
	return nil
}

func (s *serviceImpl) DescribeTaxon(_ context.Context, taxon string) (*TaxonDescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLoaded(); err != nil {
		return nil, err
	}
	id, err := s.tree.FindByPath(taxon)
	if err != nil {
		return nil, err
	}
	t, err := s.tree.Taxon(id)
	if err != nil {
		return nil, err
	}
	desc := &TaxonDescription{
		Name:     t.Name,
		FullName: t.FullName,
		Depth:    t.Depth,
		IsLeaf:   t.IsLeaf(),
		Children: make([]string, 0, len(t.Children)),
		LeafIDs:  t.LeafIDs,
	}
	for _, c := range t.Children {
		child, err := s.tree.Taxon(c)
		if err != nil {
			return nil, err
		}
		desc.Children = append(desc.Children, child.Name)
	}
	lineage, err := s.tree.Ancestors(id)
	if err != nil {
		return nil, err
	}
	desc.Ancestors = make([]string, 0, len(lineage))
	for _, a := range lineage[:len(lineage)-1] {
		name, err := s.tree.FullName(a)
		if err != nil {
			return nil, err
		}
		desc.Ancestors = append(desc.Ancestors, name)
	}
	if desc.LeafCount, err = s.tree.LeafCount(id); err != nil {
		return nil, err
	}
	if desc.Override, err = s.projector.Override(id); err != nil {
		return nil, err
	}
	desc.Color, _ = s.palette.Lookup(t.FullName)
	return desc, nil
}
