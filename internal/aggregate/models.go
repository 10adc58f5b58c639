package aggregate

import "github.com/acheong08/avtag/pkg/models"

// TagPair is an unordered pair of tags stored with A < B
type TagPair struct {
	A string `json:"a"`
	B string `json:"b"`
}

// NewTagPair returns the canonical pair for x and y
func NewTagPair(x, y string) TagPair {
	if y < x {
		x, y = y, x
	}
	return TagPair{A: x, B: y}
}

// AliasRow is one line of the alias report. X is the rarer token.
type AliasRow struct {
	X        string  `json:"x"`
	Y        string  `json:"y"`
	XCount   int     `json:"x_count"`
	YCount   int     `json:"y_count"`
	Together int     `json:"together"`
	F        float64 `json:"f"`
	FInv     float64 `json:"f_inv"`
}

// VendorCount is how often one engine produced a tag
type VendorCount struct {
	Vendor string `json:"vendor"`
	Count  int    `json:"count"`
}

// Counters track the fate of every record read.
// Reads == Tagged + Untagged + NoScans + Failed.
type Counters struct {
	Reads     int `json:"reads"`
	Tagged    int `json:"tagged"`
	Untagged  int `json:"untagged"`
	NoScans   int `json:"noscans"`
	Failed    int `json:"failed"`
	Maltagged int `json:"maltagged"`
}

// NoTags is every record that produced no ranked tag
func (c Counters) NoTags() int {
	return c.Reads - c.Tagged
}

// Stats represents the aggregated statistics of one run
type Stats struct {
	Counters
	MaltaggedThreshold int                     `json:"maltagged_threshold"`
	Categories         map[models.Category]int `json:"categories"`
}
