package models

import (
	"fmt"
	"strings"
)

// IdentityKind selects which hash names a sample in every output
type IdentityKind int

const (
	MD5 IdentityKind = iota
	SHA1
	SHA256
)

// String returns the flag spelling of the identity kind
func (k IdentityKind) String() string {
	switch k {
	case SHA1:
		return "sha1"
	case SHA256:
		return "sha256"
	default:
		return "md5"
	}
}

// ParseIdentityKind converts "md5", "sha1" or "sha256" into an IdentityKind
func ParseIdentityKind(s string) (IdentityKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "md5":
		return MD5, nil
	case "sha1":
		return SHA1, nil
	case "sha256":
		return SHA256, nil
	}
	return MD5, fmt.Errorf("unknown hash type %q (want md5, sha1 or sha256)", s)
}

// GuessIdentityKind infers the hash type from the length of a hex digest
func GuessIdentityKind(hash string) (IdentityKind, bool) {
	switch len(strings.TrimSpace(hash)) {
	case 32:
		return MD5, true
	case 40:
		return SHA1, true
	case 64:
		return SHA256, true
	}
	return MD5, false
}

// Category is the taxonomy class of a tag
type Category string

const (
	CategoryFamily        Category = "FAM"
	CategoryClass         Category = "CLASS"
	CategoryBehavior      Category = "BEH"
	CategoryFile          Category = "FILE"
	CategoryUnknown       Category = "UNK"
	CategoryGeneric       Category = "GEN"
	CategoryUncategorized Category = "UNC"
)

// CoverageCategories lists the categories tracked by corpus statistics, in report order
var CoverageCategories = []Category{
	CategoryFile,
	CategoryClass,
	CategoryBehavior,
	CategoryFamily,
	CategoryUnknown,
}

// VendorLabel is one engine's raw detection string
type VendorLabel struct {
	Vendor string `json:"vendor"`
	Label  string `json:"label"`
}

// SampleInfo is the normalized view of one scan report
type SampleInfo struct {
	MD5        string        `json:"md5"`
	SHA1       string        `json:"sha1"`
	SHA256     string        `json:"sha256"`
	Labels     []VendorLabel `json:"labels"`
	VendorTags []string      `json:"vendor_tags,omitempty"`
}

// ID returns the hash selected by kind
func (s *SampleInfo) ID(kind IdentityKind) string {
	switch kind {
	case SHA1:
		return s.SHA1
	case SHA256:
		return s.SHA256
	default:
		return s.MD5
	}
}

// Hashes returns all three digests, used to prune hash fragments from labels
func (s *SampleInfo) Hashes() []string {
	return []string{s.MD5, s.SHA1, s.SHA256}
}

// RankedTag is a tag and the number of engines supporting it
type RankedTag struct {
	Tag     string `json:"tag"`
	Support int    `json:"support"`
}

// RankedTags is ordered by descending support
type RankedTags []RankedTag

// Names returns the tag strings in rank order
func (r RankedTags) Names() []string {
	names := make([]string, len(r))
	for i, t := range r {
		names[i] = t.Tag
	}
	return names
}
