// Package sample turns per-sample leaf measurements into display units
// through a view projection and annotates them with cross-sample statistics.
package sample

import "sort"

// Feature is one leaf measurement within a sample.
type Feature struct {
	ID        string  `json:"id"`
	Abundance float64 `json:"abundance"`
}

// Sample is a sample identifier with its measured features in input order.
type Sample struct {
	ID       string    `json:"id"`
	Features []Feature `json:"features"`
}

// TotalAbundance sums every feature abundance.
func (s Sample) TotalAbundance() float64 {
	var total float64
	for _, f := range s.Features {
		total += f.Abundance
	}
	return total
}

// FeatureIDs returns the distinct feature identifiers of s, sorted.
func (s Sample) FeatureIDs() []string {
	seen := make(map[string]struct{}, len(s.Features))
	out := make([]string, 0, len(s.Features))
	for _, f := range s.Features {
		if _, ok := seen[f.ID]; ok {
			continue
		}
		seen[f.ID] = struct{}{}
		out = append(out, f.ID)
	}
	sort.Strings(out)
	return out
}
