package aggregate

import "github.com/acheong08/avtag/pkg/models"

// Aggregator owns the corpus level accumulators of one run
type Aggregator struct {
	counters   Counters
	threshold  int
	aliases    *AliasCounter
	categories *CategoryCoverage
	vendors    *VendorTags

	trackAliases bool
	trackVendors bool
}

// Options select which optional accumulators are kept
type Options struct {
	MaltaggedThreshold int
	Aliases            bool
	Vendors            bool
}

// NewAggregator creates a new Aggregator instance. A zero MaltaggedThreshold
// puts every labeled sample into category coverage; a negative one selects
// DefaultMaltaggedThreshold.
func NewAggregator(opts Options) *Aggregator {
	threshold := opts.MaltaggedThreshold
	if threshold < 0 {
		threshold = DefaultMaltaggedThreshold
	}
	return &Aggregator{
		threshold:    threshold,
		aliases:      NewAliasCounter(),
		categories:   NewCategoryCoverage(),
		vendors:      NewVendorTags(),
		trackAliases: opts.Aliases,
		trackVendors: opts.Vendors,
	}
}

// SampleUpdate is everything one tagged or untagged sample contributes.
// It is built completely before Commit so a failing sample leaves no trace.
type SampleUpdate struct {
	Tagged     bool
	Support    int
	Categories []models.Category
	Alias      AliasUpdate
	Vendors    map[string][]string
}

// Threshold returns the engine count above which a sample is maltagged
func (a *Aggregator) Threshold() int {
	return a.threshold
}

// Maltagged reports whether a sample with this many engine labels enters category coverage
func (a *Aggregator) Maltagged(support int) bool {
	return support > a.threshold
}

// RecordRead counts one non-blank input line
func (a *Aggregator) RecordRead() {
	a.counters.Reads++
}

// RecordSkip counts a record without usable scan data
func (a *Aggregator) RecordSkip() {
	a.counters.NoScans++
}

// RecordFailure counts a sample whose processing failed
func (a *Aggregator) RecordFailure() {
	a.counters.Failed++
}

// RecordEmpty counts a sample emitted without engine labels
func (a *Aggregator) RecordEmpty() {
	a.counters.Untagged++
}

// Commit applies a completed sample update
func (a *Aggregator) Commit(u SampleUpdate) {
	if a.trackVendors && u.Vendors != nil {
		a.vendors.Observe(u.Vendors)
	}
	if !u.Tagged {
		a.counters.Untagged++
		return
	}

	a.counters.Tagged++
	if a.trackAliases {
		a.aliases.Apply(u.Alias)
	}
	if a.Maltagged(u.Support) {
		a.counters.Maltagged++
		a.categories.Observe(u.Categories)
	}
}

// Counters returns a copy of the record counters
func (a *Aggregator) Counters() Counters {
	return a.counters
}

// Aliases returns the alias counter
func (a *Aggregator) Aliases() *AliasCounter {
	return a.aliases
}

// Categories returns the category coverage counters
func (a *Aggregator) Categories() *CategoryCoverage {
	return a.categories
}

// Vendors returns the per-tag vendor counters
func (a *Aggregator) Vendors() *VendorTags {
	return a.vendors
}

// Stats builds a snapshot of the counters
func (a *Aggregator) Stats() *Stats {
	return &Stats{
		Counters:           a.counters,
		MaltaggedThreshold: a.threshold,
		Categories:         a.categories.Counts(),
	}
}
