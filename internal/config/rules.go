package config

import (
	"fmt"

	"github.com/acheong08/avtag/internal/labels"
	"github.com/acheong08/avtag/internal/rules"
	"github.com/acheong08/avtag/internal/taxonomy"
)

// RuleSet is the loaded taxonomy, rule files and engine whitelist
type RuleSet struct {
	Taxonomy  *taxonomy.Taxonomy
	Tagging   *rules.Tagging
	Expansion *rules.Expansion
	// Vendors is nil when every engine is accepted
	Vendors map[string]struct{}
}

// LoadRules reads every rule file named by the options. Missing paths yield empty rules.
func (o *Options) LoadRules() (*RuleSet, error) {
	tax, err := taxonomy.Load(o.Taxonomy)
	if err != nil {
		return nil, fmt.Errorf("failed to load taxonomy: %w", err)
	}
	tagging, err := rules.LoadTagging(o.Tagging)
	if err != nil {
		return nil, fmt.Errorf("failed to load tagging rules: %w", err)
	}
	expansion, err := rules.LoadExpansion(o.Expansion)
	if err != nil {
		return nil, fmt.Errorf("failed to load expansion rules: %w", err)
	}

	rs := &RuleSet{Taxonomy: tax, Tagging: tagging, Expansion: expansion}
	if o.AVs != "" {
		rs.Vendors, err = labels.ReadVendors(o.AVs)
		if err != nil {
			return nil, err
		}
	}
	return rs, nil
}

// Problems lists rule destinations that the taxonomy does not know
func (rs *RuleSet) Problems() []string {
	problems := rs.Tagging.Validate(rs.Taxonomy)
	return append(problems, rs.Expansion.Validate(rs.Taxonomy)...)
}

// Labeler builds a Labeler over the rule set
func (rs *RuleSet) Labeler(aliasDetect bool, cacheSize int) (*labels.Labeler, error) {
	return labels.New(rs.Taxonomy, rs.Tagging, rs.Expansion, labels.Options{
		AliasDetect: aliasDetect,
		Vendors:     rs.Vendors,
		CacheSize:   cacheSize,
	})
}
