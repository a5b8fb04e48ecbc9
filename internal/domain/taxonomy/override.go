package taxonomy

import (
	"encoding/json"
	"fmt"
)

// OverrideKind tags the variant held by an Override.
type OverrideKind int

const (
	OverrideInactive OverrideKind = iota
	OverrideExpand
	OverrideCollapse
)

func (k OverrideKind) String() string {
	switch k {
	case OverrideExpand:
		return "expand"
	case OverrideCollapse:
		return "collapse"
	default:
		return "inactive"
	}
}

// Override is the per-taxon view override. It is exactly one of Inactive,
// ExpandTo(depth) or CollapseFrom(depth); the zero value is Inactive.
type Override struct {
	kind  OverrideKind
	depth int
}

// Inactive returns the empty override.
func Inactive() Override { return Override{} }

// ExpandTo shows the leaves under a taxon down to depth.
func ExpandTo(depth int) Override { return Override{kind: OverrideExpand, depth: depth} }

// CollapseFrom folds lineages that would display at depth or shallower into
// the taxon carrying the override.
func CollapseFrom(depth int) Override { return Override{kind: OverrideCollapse, depth: depth} }

func (o Override) Kind() OverrideKind { return o.kind }

// Depth is the target depth, 0 when inactive.
func (o Override) Depth() int { return o.depth }

func (o Override) IsActive() bool { return o.kind != OverrideInactive }

// ExpandDepth returns the expansion target when o is ExpandTo.
func (o Override) ExpandDepth() (int, bool) {
	return o.depth, o.kind == OverrideExpand
}

// CollapseDepth returns the collapse origin when o is CollapseFrom.
func (o Override) CollapseDepth() (int, bool) {
	return o.depth, o.kind == OverrideCollapse
}

func (o Override) String() string {
	switch o.kind {
	case OverrideExpand:
		return fmt.Sprintf("ExpandTo(%d)", o.depth)
	case OverrideCollapse:
		return fmt.Sprintf("CollapseFrom(%d)", o.depth)
	default:
		return "Inactive"
	}
}

type overrideJSON struct {
	Kind  string `json:"kind"`
	Depth int    `json:"depth,omitempty"`
}

func (o Override) MarshalJSON() ([]byte, error) {
	return json.Marshal(overrideJSON{Kind: o.kind.String(), Depth: o.depth})
}

// NodeOverride pairs an active override with the taxon holding it.
type NodeOverride struct {
	Taxon    ID       `json:"taxon"`
	FullName string   `json:"full_name"`
	Override Override `json:"override"`
}

// Reason classifies why a view request was rejected. Accepted outcomes carry
// ReasonNone.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonBelowMinimum
	ReasonExceedsMaximum
	ReasonTargetNotDeeper
	ReasonNoDescendantsAtDepth
	ReasonSubtreeNotClear
	ReasonTargetNotShallower
)

var reasonNames = map[Reason]string{
	ReasonNone:                 "none",
	ReasonBelowMinimum:         "below_minimum",
	ReasonExceedsMaximum:       "exceeds_maximum",
	ReasonTargetNotDeeper:      "target_not_deeper",
	ReasonNoDescendantsAtDepth: "no_descendants_at_depth",
	ReasonSubtreeNotClear:      "subtree_not_clear",
	ReasonTargetNotShallower:   "target_not_shallower",
}

func (r Reason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

func (r Reason) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Reason) UnmarshalText(text []byte) error {
	for k, v := range reasonNames {
		if v == string(text) {
			*r = k
			return nil
		}
	}
	return fmt.Errorf("unknown reason %q", text)
}

// Outcome reports whether a view request was applied. A rejected request
// leaves the projector unchanged; rejections are ordinary results, not errors.
type Outcome struct {
	Accepted bool   `json:"accepted"`
	Reason   Reason `json:"reason"`
	Message  string `json:"message,omitempty"`
}

func accepted() Outcome { return Outcome{Accepted: true, Reason: ReasonNone} }

func rejected(r Reason, format string, args ...interface{}) Outcome {
	return Outcome{Reason: r, Message: fmt.Sprintf(format, args...)}
}
