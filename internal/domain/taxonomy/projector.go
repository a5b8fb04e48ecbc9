package taxonomy

import "sort"

// Projector maps leaf taxa to the taxa they are displayed as, given a global
// display depth and per-taxon overrides. It is not safe for concurrent use;
// callers serialise access.
type Projector struct {
	tree         *Tree
	overrides    map[ID]Override
	displayDepth int
	defaultDepth int
}

// Resolution is the display taxon for one leaf plus which override, if any,
// produced it.
type Resolution struct {
	Taxon     ID
	Expanded  bool
	Collapsed bool
}

// NewProjector returns a projector over tree. defaultDepth is clamped into
// [1, tree.MaxLeafDepth()].
func NewProjector(tree *Tree, defaultDepth int) *Projector {
	if maxDepth := tree.MaxLeafDepth(); defaultDepth > maxDepth {
		defaultDepth = maxDepth
	}
	if defaultDepth < 1 {
		defaultDepth = 1
	}
	return &Projector{
		tree:         tree,
		overrides:    make(map[ID]Override),
		displayDepth: defaultDepth,
		defaultDepth: defaultDepth,
	}
}

// Tree returns the hierarchy the projector operates on.
func (p *Projector) Tree() *Tree { return p.tree }

// DisplayDepth returns the current global display depth.
func (p *Projector) DisplayDepth() int { return p.displayDepth }

// Override returns the override held by id (Inactive when none).
func (p *Projector) Override(id ID) (Override, error) {
	if !p.tree.valid(id) {
		return Inactive(), errUnknownTaxon(id)
	}
	return p.overrides[id], nil
}

// ActiveOverrides lists every active override ordered by handle.
func (p *Projector) ActiveOverrides() []NodeOverride {
	out := make([]NodeOverride, 0, len(p.overrides))
	for id, o := range p.overrides {
		out = append(out, NodeOverride{Taxon: id, FullName: p.tree.nodes[id].fullName, Override: o})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Taxon < out[j].Taxon })
	return out
}

// DefaultDepth is the depth Reset restores.
func (p *Projector) DefaultDepth() int { return p.defaultDepth }

// SetDefaultDepth changes the depth Reset restores, clamped like the
// constructor argument. The current display depth is left alone.
func (p *Projector) SetDefaultDepth(depth int) {
	if maxDepth := p.tree.MaxLeafDepth(); depth > maxDepth {
		depth = maxDepth
	}
	if depth < 1 {
		depth = 1
	}
	p.defaultDepth = depth
}

// Reset clears every override and restores the default display depth.
func (p *Projector) Reset() {
	p.overrides = make(map[ID]Override)
	p.displayDepth = p.defaultDepth
}

// SetDisplayDepth changes the global display depth.
func (p *Projector) SetDisplayDepth(depth int) Outcome {
	if depth < 1 {
		return rejected(ReasonBelowMinimum, "display depth %d is below the minimum of 1", depth)
	}
	if maxDepth := p.tree.MaxLeafDepth(); depth > maxDepth {
		return rejected(ReasonExceedsMaximum, "display depth %d exceeds the maximum leaf depth %d", depth, maxDepth)
	}
	p.displayDepth = depth
	return accepted()
}

// RequestExpansion shows the descendants of id down to toDepth.
func (p *Projector) RequestExpansion(id ID, toDepth int) (Outcome, error) {
	depth, err := p.tree.Depth(id)
	if err != nil {
		return Outcome{}, err
	}
	if toDepth <= depth {
		return rejected(ReasonTargetNotDeeper,
			"expansion depth %d must be deeper than the taxon depth %d", toDepth, depth), nil
	}
	targets, err := p.tree.DescendantsAtDepth(id, toDepth)
	if err != nil {
		return Outcome{}, err
	}
	if len(targets) == 0 {
		return rejected(ReasonNoDescendantsAtDepth,
			"%s has no descendants at depth %d", p.tree.nodes[id].fullName, toDepth), nil
	}
	if holder, ok := p.firstOverride(id, toDepth); ok {
		return rejected(ReasonSubtreeNotClear,
			"%s already holds an override within depth %d", p.tree.nodes[holder].fullName, toDepth), nil
	}
	p.overrides[id] = ExpandTo(toDepth)
	return accepted(), nil
}

// RequestCollapse folds id into its ancestor at toDepth. The override is
// recorded on that ancestor as CollapseFrom(depth(id)).
func (p *Projector) RequestCollapse(id ID, toDepth int) (Outcome, error) {
	depth, err := p.tree.Depth(id)
	if err != nil {
		return Outcome{}, err
	}
	if toDepth < 1 {
		return rejected(ReasonBelowMinimum, "collapse depth %d is below the minimum of 1", toDepth), nil
	}
	if toDepth >= depth {
		return rejected(ReasonTargetNotShallower,
			"collapse depth %d must be shallower than the taxon depth %d", toDepth, depth), nil
	}
	ancestor, err := p.tree.AncestorAtDepth(id, toDepth)
	if err != nil {
		return Outcome{}, err
	}
	if holder, ok := p.firstOverride(ancestor, depth); ok {
		return rejected(ReasonSubtreeNotClear,
			"%s already holds an override within depth %d", p.tree.nodes[holder].fullName, depth), nil
	}
	p.overrides[ancestor] = CollapseFrom(depth)
	return accepted(), nil
}

// ClearExpansion removes an expansion held by id. Clearing a taxon without
// one is a no-op.
func (p *Projector) ClearExpansion(id ID) error {
	if !p.tree.valid(id) {
		return errUnknownTaxon(id)
	}
	if p.overrides[id].Kind() == OverrideExpand {
		delete(p.overrides, id)
	}
	return nil
}

// ClearCollapse removes a collapse held by id. Clearing a taxon without one
// is a no-op.
func (p *Projector) ClearCollapse(id ID) error {
	if !p.tree.valid(id) {
		return errUnknownTaxon(id)
	}
	if p.overrides[id].Kind() == OverrideCollapse {
		delete(p.overrides, id)
	}
	return nil
}

// SubtreeClear reports whether no taxon in the subtree of ancestor, down to
// bound and including ancestor itself, holds an override.
func (p *Projector) SubtreeClear(ancestor ID, bound int) (bool, error) {
	if !p.tree.valid(ancestor) {
		return false, errUnknownTaxon(ancestor)
	}
	_, found := p.firstOverride(ancestor, bound)
	return !found, nil
}

func (p *Projector) firstOverride(ancestor ID, bound int) (ID, bool) {
	if len(p.overrides) == 0 {
		return NoTaxon, false
	}
	if p.tree.nodes[ancestor].depth > bound {
		return NoTaxon, false
	}
	holder, found := NoTaxon, false
	p.tree.walk(ancestor, bound, func(n ID) {
		if found {
			return
		}
		if p.overrides[n].IsActive() {
			holder, found = n, true
		}
	})
	return holder, found
}

// ResolveDisplayTaxon returns the taxon leaf is currently displayed as.
func (p *Projector) ResolveDisplayTaxon(leaf ID) (ID, error) {
	r, err := p.Resolve(leaf)
	if err != nil {
		return NoTaxon, err
	}
	return r.Taxon, nil
}

// Resolve is ResolveDisplayTaxon with the override that applied.
//
// The lineage is first cut at the display depth. An expansion on that cut
// point pushes the display down to its target (never past the leaf). Failing
// that, a collapse held anywhere on the cut lineage whose origin is at or
// below the display depth pulls the display up to its holder. Two such
// collapses on one lineage are an invariant violation.
func (p *Projector) Resolve(leaf ID) (Resolution, error) {
	leafDepth, err := p.tree.Depth(leaf)
	if err != nil {
		return Resolution{Taxon: NoTaxon}, err
	}

	base := leaf
	if leafDepth > p.displayDepth {
		if base, err = p.tree.AncestorAtDepth(leaf, p.displayDepth); err != nil {
			return Resolution{Taxon: NoTaxon}, err
		}
	}

	if e, ok := p.overrides[base].ExpandDepth(); ok {
		if e >= leafDepth {
			return Resolution{Taxon: leaf, Expanded: true}, nil
		}
		target, err := p.tree.AncestorAtDepth(leaf, e)
		if err != nil {
			return Resolution{Taxon: NoTaxon}, err
		}
		return Resolution{Taxon: target, Expanded: true}, nil
	}

	if len(p.overrides) == 0 {
		return Resolution{Taxon: base}, nil
	}
	lineage, err := p.tree.Ancestors(base)
	if err != nil {
		return Resolution{Taxon: NoTaxon}, err
	}
	var holders []ID
	for _, a := range lineage {
		if c, ok := p.overrides[a].CollapseDepth(); ok && c >= p.displayDepth {
			holders = append(holders, a)
		}
	}
	switch len(holders) {
	case 0:
		return Resolution{Taxon: base}, nil
	case 1:
		return Resolution{Taxon: holders[0], Collapsed: true}, nil
	default:
		return Resolution{Taxon: NoTaxon}, errInvariant("more than one collapsed ancestor qualifies").
			WithDetailf("leaf=%q holders=%v", p.tree.nodes[leaf].fullName, holders)
	}
}

// ResolveFeature looks up the taxon classifying leafID and resolves it.
func (p *Projector) ResolveFeature(leafID string) (Resolution, error) {
	leaf, err := p.tree.FindLeafByMeasurementID(leafID)
	if err != nil {
		return Resolution{Taxon: NoTaxon}, err
	}
	return p.Resolve(leaf)
}

// Taxon returns a snapshot of id from the underlying tree.
func (p *Projector) Taxon(id ID) (Taxon, error) { return p.tree.Taxon(id) }
