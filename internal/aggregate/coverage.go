package aggregate

import "github.com/acheong08/avtag/pkg/models"

// DefaultMaltaggedThreshold is the engine count a sample must exceed to enter category coverage
const DefaultMaltaggedThreshold = 3

// CategoryCoverage counts samples having at least one tag in each category
type CategoryCoverage struct {
	counts map[models.Category]int
}

// NewCategoryCoverage creates zeroed counters for the coverage categories
func NewCategoryCoverage() *CategoryCoverage {
	counts := make(map[models.Category]int, len(models.CoverageCategories))
	for _, c := range models.CoverageCategories {
		counts[c] = 0
	}
	return &CategoryCoverage{counts: counts}
}

// Observe adds one sample. Each category increments at most once; categories
// outside the coverage set are ignored.
func (c *CategoryCoverage) Observe(categories []models.Category) {
	seen := make(map[models.Category]struct{}, len(categories))
	for _, cat := range categories {
		if _, tracked := c.counts[cat]; !tracked {
			continue
		}
		if _, dup := seen[cat]; dup {
			continue
		}
		seen[cat] = struct{}{}
		c.counts[cat]++
	}
}

// Count returns the number of samples seen with cat
func (c *CategoryCoverage) Count(cat models.Category) int {
	return c.counts[cat]
}

// Counts returns a copy of all counters
func (c *CategoryCoverage) Counts() map[models.Category]int {
	out := make(map[models.Category]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}
