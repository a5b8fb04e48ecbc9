// Package palette assigns display colors to view taxa in draw order.
//
// A Palette is reset at the start of every render. Colors are handed out by
// walking the active scheme; once a taxon has a color it keeps it for the
// rest of the render, and two consecutive draws never share a scheme color
// when the scheme has more than one.
package palette

import (
	"sort"

	"github.com/colinvwood/taxa-barplot/pkg/errors"
)

// DefaultScheme is the scheme active on a new Palette.
const DefaultScheme = "before-dawn"

var beforeDawn = []string{
	"#264653", "#2a9d8f", "#8ab17d", "#e9c46a", "#f4a261",
	"#e76f51", "#9b5de5", "#f15bb5", "#00bbf9", "#00f5d4",
	"#6d597a", "#b56576",
}

// Palette is not safe for concurrent use; the owning service serializes
// renders.
type Palette struct {
	schemes  map[string][]string
	scheme   string
	index    int
	previous string
	custom   map[string]string
	assigned map[string]string
}

// New returns a Palette holding the built-in scheme.
func New() *Palette {
	return &Palette{
		schemes:  map[string][]string{DefaultScheme: beforeDawn},
		scheme:   DefaultScheme,
		custom:   make(map[string]string),
		assigned: make(map[string]string),
	}
}

// AddScheme registers or replaces a named scheme. Empty schemes are ignored.
func (p *Palette) AddScheme(name string, colors []string) {
	if name == "" || len(colors) == 0 {
		return
	}
	p.schemes[name] = append([]string(nil), colors...)
}

// LoadSchemes registers every scheme in schemes.
func (p *Palette) LoadSchemes(schemes map[string][]string) {
	for name, colors := range schemes {
		p.AddScheme(name, colors)
	}
}

// Schemes returns the registered scheme names, sorted.
func (p *Palette) Schemes() []string {
	out := make([]string, 0, len(p.schemes))
	for name := range p.schemes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Scheme returns the active scheme name.
func (p *Palette) Scheme() string { return p.scheme }

// SetScheme activates a registered scheme and resets assignments.
func (p *Palette) SetScheme(name string) error {
	if _, ok := p.schemes[name]; !ok {
		return errors.New(errors.ErrCodeSchemeNotFound, "color scheme does not exist").
			WithDetailf("scheme=%q", name)
	}
	p.scheme = name
	p.Reset()
	return nil
}

// SetCustomColor pins taxon to color.
func (p *Palette) SetCustomColor(taxon, color string) { p.custom[taxon] = color }

// RemoveCustomColor unpins taxon.
func (p *Palette) RemoveCustomColor(taxon string) { delete(p.custom, taxon) }

// CustomColors returns a copy of the pinned colors.
func (p *Palette) CustomColors() map[string]string {
	out := make(map[string]string, len(p.custom))
	for k, v := range p.custom {
		out[k] = v
	}
	return out
}

// Reset forgets every assigned color and rewinds the scheme.
func (p *Palette) Reset() {
	p.assigned = make(map[string]string)
	p.index = 0
	p.previous = ""
}

func (p *Palette) next() string {
	colors := p.schemes[p.scheme]
	c := colors[p.index]
	p.index = (p.index + 1) % len(colors)
	return c
}

// Color returns the color for taxon in the current draw. Pinned colors win
// and still advance the scheme.
func (p *Palette) Color(taxon string) string {
	var color string
	if c, ok := p.custom[taxon]; ok {
		color = c
		p.next()
	} else if c, ok := p.assigned[taxon]; ok {
		color = c
	} else {
		color = p.next()
		if color == p.previous {
			color = p.next()
		}
		p.assigned[taxon] = color
	}
	p.previous = color
	return color
}

// Lookup returns the pinned or assigned color of taxon without drawing.
func (p *Palette) Lookup(taxon string) (string, bool) {
	if c, ok := p.custom[taxon]; ok {
		return c, true
	}
	c, ok := p.assigned[taxon]
	return c, ok
}
