package analysis

import "github.com/acheong08/avtag/internal/aggregate"

// AliasVerdict represents the AI judgement on one candidate tag pair
type AliasVerdict struct {
	IsAlias       bool    `json:"is_alias"`
	Canonical     string  `json:"canonical"`
	Confidence    float64 `json:"confidence"`
	Justification string  `json:"justification"`
}

// Review is a candidate pair with its verdict
type Review struct {
	Pair    aggregate.AliasRow `json:"pair"`
	Verdict AliasVerdict       `json:"verdict"`
	Cached  bool               `json:"cached"`
}

// Options tune candidate selection and review
type Options struct {
	// MinCount is the least co-occurrence count a pair needs to be reviewed
	MinCount int
	// MinF is the least share of the rarer tag's samples that also carry the other
	MinF float64
	// Concurrency limits parallel model calls
	Concurrency int
	// CachePath stores verdicts between runs. Empty disables caching.
	CachePath string
}

const (
	DefaultMinCount    = 20
	DefaultMinF        = 0.94
	DefaultConcurrency = 4
	// DefaultMinConfidence is the confidence a positive verdict needs to become a rule
	DefaultMinConfidence = 0.8
)
