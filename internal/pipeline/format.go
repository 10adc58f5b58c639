package pipeline

import (
	"fmt"
	"strings"

	"github.com/acheong08/avtag/pkg/models"
)

// Formatter renders one output line per sample
type Formatter struct {
	// Compat prints id and family only
	Compat bool
	// FullPaths prints taxonomy paths instead of bare tags
	FullPaths bool
	// GroundTruth adds the reference family column
	GroundTruth bool
	// PUP adds the 1/0 potentially unwanted column
	PUP bool
	// VendorTags adds the report's own tags column (ranked mode only)
	VendorTags bool

	Taxonomy Taxonomy
}

// Row is everything needed to render one sample
type Row struct {
	ID          string
	Support     int
	Tags        models.RankedTags
	Family      string
	GroundTruth string
	IsPUP       bool
	VendorTags  []string
}

// NoLabels renders a sample whose report carried no engine labels
func (f *Formatter) NoLabels(id string) string {
	return id + "\t-\t[]"
}

// Tags renders "tag|support,tag|support"
func (f *Formatter) Tags(tags models.RankedTags) string {
	parts := make([]string, len(tags))
	for i, t := range tags {
		name := t.Tag
		if f.FullPaths && f.Taxonomy != nil {
			name = f.Taxonomy.Path(t.Tag)
		}
		parts[i] = fmt.Sprintf("%s|%d", name, t.Support)
	}
	return strings.Join(parts, ",")
}

// Format renders a sample line
func (f *Formatter) Format(row Row) string {
	var sb strings.Builder
	sb.WriteString(row.ID)
	sb.WriteByte('\t')
	if f.Compat {
		sb.WriteString(row.Family)
	} else {
		fmt.Fprintf(&sb, "%d\t%s", row.Support, f.Tags(row.Tags))
	}

	if f.GroundTruth {
		sb.WriteByte('\t')
		sb.WriteString(row.GroundTruth)
	}
	if f.PUP {
		if row.IsPUP {
			sb.WriteString("\t1")
		} else {
			sb.WriteString("\t0")
		}
	}
	if f.VendorTags && !f.Compat {
		sb.WriteByte('\t')
		sb.WriteString(strings.Join(row.VendorTags, ", "))
	}
	return sb.String()
}
