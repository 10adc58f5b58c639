package pipeline

import (
	"github.com/acheong08/avtag/internal/aggregate"
	"github.com/acheong08/avtag/internal/clustering"
	"github.com/acheong08/avtag/pkg/models"
)

// Context owns the state of one pass. It is created fresh for every run and
// must not be shared between concurrent runs.
type Context struct {
	Kind models.IdentityKind
	// GroundTruth is nil when no ground truth was supplied
	GroundTruth map[string]string
	// FirstToken holds the family chosen for each sample
	FirstToken map[string]string
	Aggregate  *aggregate.Aggregator
}

// NewContext creates the state for one run
func NewContext(kind models.IdentityKind, groundTruth map[string]string, opts aggregate.Options) *Context {
	return &Context{
		Kind:        kind,
		GroundTruth: groundTruth,
		FirstToken:  make(map[string]string),
		Aggregate:   aggregate.NewAggregator(opts),
	}
}

// HasGroundTruth reports whether evaluation is enabled
func (c *Context) HasGroundTruth() bool {
	return c.GroundTruth != nil
}

// Evaluate scores the selected families against ground truth
func (c *Context) Evaluate() clustering.Result {
	return clustering.Evaluate(c.GroundTruth, c.FirstToken)
}
