package tags

import (
	"fmt"
	"strings"
)

var topicTags = []struct {
	topic string
	tags  []string
}{
	{"algebra", []string{
		"linear_equations", "quadratic_equations", "polynomials", "factoring", "inequalities",
		"systems", "functions", "graphing", "slopes", "intercepts",
	}},
	{"data analysis", []string{
		"statistics", "probability", "mean_median_mode", "standard_deviation", "correlation",
		"scatter_plots", "histograms", "box_plots", "sampling", "percentiles",
	}},
	{"grammar", []string{
		"subject_verb_agreement", "pronouns", "modifiers", "punctuation", "comma_usage",
		"semicolons", "apostrophes", "parallel_structure", "sentence_fragments", "verb_tenses",
	}},
	{"vocabulary", []string{
		"context_clues", "word_meanings", "synonyms", "antonyms", "prefixes",
		"suffixes", "root_words", "figurative_language", "tone", "connotation",
	}},
}

// Fallback returns a deterministic placeholder tag set for a facet. Known
// topics map to a curated list; anything else gets numbered tags named
// after the facet subject.
func Fallback(facetID string, limit int) []string {
	if limit <= 0 || limit > MaxTags {
		limit = MaxTags
	}

	parts := strings.SplitN(facetID, "|", 3)
	subject := parts[0]
	if len(parts) > 1 {
		topic := strings.ToLower(parts[1])
		for _, tt := range topicTags {
			if strings.Contains(topic, tt.topic) {
				return append([]string(nil), tt.tags[:min(limit, len(tt.tags))]...)
			}
		}
	}

	slug := slugify(subject)
	if slug == "" {
		slug = "general"
	}
	out := make([]string, limit)
	for i := range out {
		out[i] = fmt.Sprintf("%s_topic_%d", slug, i+1)
	}
	return out
}

func slugify(s string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			underscore = false
		case b.Len() > 0 && !underscore:
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
