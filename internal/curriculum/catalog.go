// Package curriculum holds the static curriculum unit and quiz facet
// catalogs. A Catalog is loaded once and is read-only afterwards.
package curriculum

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Catalog is an ordered, immutable set of curriculum units and quiz facets.
type Catalog struct {
	name          string
	units         []Unit
	facets        []Facet
	unitIndex     map[string]int
	facetIndex    map[string]int
	teachingNotes map[string]string
}

// NewCatalog validates units and facets and builds a catalog. Facet titles
// and subject labels left blank are derived from the facet id.
func NewCatalog(name string, units []Unit, facets []Facet) (*Catalog, error) {
	c := &Catalog{
		name:          name,
		units:         slices.Clone(units),
		facets:        make([]Facet, 0, len(facets)),
		unitIndex:     make(map[string]int, len(units)),
		facetIndex:    make(map[string]int, len(facets)),
		teachingNotes: make(map[string]string),
	}

	for i, u := range c.units {
		if u.ID == "" {
			return nil, fmt.Errorf("unit %d: id is required", i)
		}
		if u.Title == "" {
			return nil, fmt.Errorf("unit %s: title is required", u.ID)
		}
		if _, dup := c.unitIndex[u.ID]; dup {
			return nil, fmt.Errorf("unit %s: duplicate id", u.ID)
		}
		c.unitIndex[u.ID] = i
	}

	titler := cases.Title(language.English)
	for _, f := range facets {
		subject, topic, grade := f.Parts()
		if subject == "" || topic == "" || grade == "" || strings.Count(f.ID, "|") != 2 {
			return nil, fmt.Errorf("facet %q: id must be subject|topic|grade", f.ID)
		}
		if _, dup := c.facetIndex[f.ID]; dup {
			return nil, fmt.Errorf("facet %s: duplicate id", f.ID)
		}
		if f.Subject == "" {
			f.Subject = titler.String(subject)
		}
		if f.Title == "" {
			f.Title = titler.String(topic) + " Quiz"
		}
		c.facetIndex[f.ID] = len(c.facets)
		c.facets = append(c.facets, f)
	}

	return c, nil
}

// Name returns the catalog name, e.g. "SAT".
func (c *Catalog) Name() string { return c.name }

// Units returns the units in progression order.
func (c *Catalog) Units() []Unit { return slices.Clone(c.units) }

// Facets returns the facets in catalog order.
func (c *Catalog) Facets() []Facet { return slices.Clone(c.facets) }

// Unit looks up a unit by id.
func (c *Catalog) Unit(id string) (Unit, bool) {
	i, ok := c.unitIndex[id]
	if !ok {
		return Unit{}, false
	}
	return c.units[i], true
}

// Facet looks up a facet by id.
func (c *Catalog) Facet(id string) (Facet, bool) {
	i, ok := c.facetIndex[id]
	if !ok {
		return Facet{}, false
	}
	return c.facets[i], true
}

// NextUnit returns the first unit, in order, not present in completed.
func (c *Catalog) NextUnit(completed []string) (Unit, bool) {
	next := c.UpcomingUnits(completed, 1)
	if len(next) == 0 {
		return Unit{}, false
	}
	return next[0], true
}

// UpcomingUnits returns up to n distinct units, in order, that are not in
// completed. It returns fewer when the curriculum runs out.
func (c *Catalog) UpcomingUnits(completed []string, n int) []Unit {
	if n <= 0 {
		return nil
	}
	done := make(map[string]bool, len(completed))
	for _, id := range completed {
		done[id] = true
	}
	out := make([]Unit, 0, n)
	for _, u := range c.units {
		if done[u.ID] {
			continue
		}
		out = append(out, u)
		if len(out) == n {
			break
		}
	}
	return out
}

// CompletedCount counts how many ids in completed name catalog units.
func (c *Catalog) CompletedCount(completed []string) int {
	seen := make(map[string]bool, len(completed))
	for _, id := range completed {
		if _, ok := c.unitIndex[id]; ok {
			seen[id] = true
		}
	}
	return len(seen)
}

// TeachingNotes returns the teaching notes for a unit, if any were loaded.
func (c *Catalog) TeachingNotes(unitID string) (string, bool) {
	n, ok := c.teachingNotes[unitID]
	return n, ok
}
