package curriculum

import "strings"

// Unit is one sequential chapter of tutorial content.
type Unit struct {
	ID         string `yaml:"id"`
	Title      string `yaml:"title"`
	ContentRef string `yaml:"content_ref"`
	Subject    string `yaml:"subject"`
	Summary    string `yaml:"summary"`
	// NotesFile names a teaching notes file next to the catalog. When empty,
	// <id>.teaching.md is tried.
	NotesFile string `yaml:"teaching_notes"`
}

// Facet is a quiz topic keyed by "subject|topic|grade".
type Facet struct {
	ID      string `yaml:"id"`
	Subject string `yaml:"subject"`
	Title   string `yaml:"title"`
}

// Parts splits the facet id into subject, topic and grade band.
func (f Facet) Parts() (subject, topic, grade string) {
	parts := strings.SplitN(f.ID, "|", 3)
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	return parts[0], parts[1], parts[2]
}

// Topic returns the middle segment of the facet id.
func (f Facet) Topic() string {
	_, topic, _ := f.Parts()
	return topic
}

// document is the on-disk catalog layout.
type document struct {
	Name   string  `yaml:"name"`
	Units  []Unit  `yaml:"units"`
	Facets []Facet `yaml:"facets"`
}
