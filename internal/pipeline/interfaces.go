package pipeline

import (
	"github.com/acheong08/avtag/internal/labels"
	"github.com/acheong08/avtag/pkg/models"
)

// Extractor decodes one raw JSON line into a sample or a skip reason
type Extractor interface {
	Extract(line []byte) labels.Extraction
}

// Tagger turns a sample's engine labels into ranked tags
type Tagger interface {
	SampleTags(info *models.SampleInfo) labels.TagVendors
	RankTags(tv labels.TagVendors) models.RankedTags
	IsPUP(tags models.RankedTags) bool
}

// Taxonomy resolves tag categories and display paths
type Taxonomy interface {
	Category(tag string) models.Category
	Path(tag string) string
}

// Progress observes a run
type Progress interface {
	SourceStarted(source string)
	RecordsRead(total int)
	SourceFinished(source string, total int)
}

type nopProgress struct{}

func (nopProgress) SourceStarted(string)       {}
func (nopProgress) RecordsRead(int)            {}
func (nopProgress) SourceFinished(string, int) {}
