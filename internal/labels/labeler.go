package labels

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/acheong08/avtag/internal/rules"
	"github.com/acheong08/avtag/internal/taxonomy"
	"github.com/acheong08/avtag/pkg/models"
)

const (
	// RankThreshold is the support a tag must exceed to be ranked
	RankThreshold = 1
	// PUPThreshold is the share of the top support a grayware class needs
	PUPThreshold = 0.5
	// DefaultCacheSize bounds the label tokenization cache
	DefaultCacheSize = 4096
)

// Engines whose labels end in a variant suffix after the last '.'
var suffixRemovalVendors = map[string]struct{}{
	"Norman":               {},
	"Avast":                {},
	"Avira":                {},
	"Kaspersky":            {},
	"ESET-NOD32":           {},
	"Fortinet":             {},
	"Jiangmin":             {},
	"Comodo":               {},
	"GData":                {},
	"Sophos":               {},
	"TrendMicro-HouseCall": {},
	"TrendMicro":           {},
	"NANO-Antivirus":       {},
	"Microsoft":            {},
}

var avgSuffix = regexp.MustCompile(`^[A-Z0-9]+$`)

// TagVendors maps each tag of a sample to the engines that produced it
type TagVendors map[string][]string

// Options tune a Labeler
type Options struct {
	// AliasDetect disables expansion so raw co-occurrence can be measured
	AliasDetect bool
	// Vendors restricts labeling to these engines when non-empty
	Vendors   map[string]struct{}
	CacheSize int
}

// tokenTags is one label token and the tags it contributes when it is not a hash fragment
type tokenTags struct {
	token string
	tags  []string
}

// Labeler turns engine labels into ranked tags. Safe for concurrent use once built.
type Labeler struct {
	tax       *taxonomy.Taxonomy
	tagging   *rules.Tagging
	expansion *rules.Expansion
	vendors   map[string]struct{}
	alias     bool
	cache     *lru.Cache[string, []tokenTags]
}

// New creates a Labeler over loaded taxonomy and rules. Nil arguments mean empty.
func New(tax *taxonomy.Taxonomy, tagging *rules.Tagging, expansion *rules.Expansion, opts Options) (*Labeler, error) {
	if tax == nil {
		tax = taxonomy.New()
	}
	if tagging == nil {
		tagging = &rules.Tagging{Rules: rules.New()}
	}
	if expansion == nil {
		expansion = &rules.Expansion{Rules: rules.New()}
	}
	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, []tokenTags](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create label cache: %w", err)
	}

	return &Labeler{
		tax:       tax,
		tagging:   tagging,
		expansion: expansion,
		vendors:   opts.Vendors,
		alias:     opts.AliasDetect,
		cache:     cache,
	}, nil
}

// Taxonomy returns the taxonomy used for lookups
func (l *Labeler) Taxonomy() *taxonomy.Taxonomy {
	return l.tax
}

// ReadVendors loads an engine whitelist, one name per line
func ReadVendors(path string) (map[string]struct{}, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vendor list: %w", err)
	}
	defer file.Close()

	vendors := make(map[string]struct{})
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if name := strings.TrimSpace(scanner.Text()); name != "" {
			vendors[name] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading vendor list: %w", err)
	}
	return vendors, nil
}

// tokenize splits a label on non-alphanumerics, lowercases, and strips trailing digits
func tokenize(label string) []string {
	fields := strings.FieldsFunc(label, func(r rune) bool {
		return r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r))
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, strings.TrimRight(strings.ToLower(f), "0123456789"))
	}
	return out
}

func (l *Labeler) resolveTokens(label string) []tokenTags {
	if cached, ok := l.cache.Get(label); ok {
		return cached
	}

	var resolved []tokenTags
	for _, token := range tokenize(label) {
		if token == "" || l.tax.IsGeneric(token) {
			continue
		}
		var tags []string
		if dsts := l.tagging.Dst(token); len(dsts) > 0 {
			for _, d := range dsts {
				if !l.tax.IsGeneric(d) {
					tags = append(tags, d)
				}
			}
		} else if len(token) > 3 {
			tags = []string{token}
		}
		resolved = append(resolved, tokenTags{token: token, tags: tags})
	}

	l.cache.Add(label, resolved)
	return resolved
}

func isHashFragment(token string, hashes []string) bool {
	for _, h := range hashes {
		if strings.HasPrefix(h, token) {
			return true
		}
	}
	return false
}

// LabelTags returns the sorted distinct tags of one label. Tokens that are a
// prefix of any of the sample's hashes are ignored.
func (l *Labeler) LabelTags(label string, hashes []string) []string {
	if label == "" {
		return nil
	}
	set := make(map[string]struct{})
	for _, tt := range l.resolveTokens(label) {
		if isHashFragment(tt.token, hashes) {
			continue
		}
		for _, t := range tt.tags {
			set[t] = struct{}{}
		}
	}
	return sortedKeys(set)
}

func (l *Labeler) expand(tags []string) []string {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
		for _, d := range l.expansion.Dst(t) {
			set[d] = struct{}{}
		}
		for _, p := range l.tax.Expand(t) {
			set[p] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// removeSuffixes trims engine specific variant suffixes
func removeSuffixes(vendor, label string) string {
	if _, ok := suffixRemovalVendors[vendor]; ok {
		if i := strings.LastIndex(label, "."); i >= 0 {
			label = label[:i]
		}
	}

	if vendor == "AVG" {
		if i := strings.LastIndex(label, "."); i >= 0 && avgSuffix.MatchString(label[i+1:]) {
			label = label[:i]
		}
	}

	if vendor == "Agnitum" {
		if i := strings.LastIndex(label, "!"); i >= 0 {
			label = label[:i]
		}
	}

	return label
}

// SampleTags collects the tags of every engine label of a sample
func (l *Labeler) SampleTags(info *models.SampleInfo) TagVendors {
	seen := make(map[string]struct{})
	out := make(TagVendors)
	hashes := info.Hashes()

	for _, vl := range info.Labels {
		label := vl.Label
		if label == "" {
			continue
		}
		if len(l.vendors) > 0 {
			if _, ok := l.vendors[vl.Vendor]; !ok {
				continue
			}
		}

		// Emsisoft repeats other engines' labels with a " (B)" suffix
		label = strings.TrimSuffix(label, " (B)")
		// F-Secure prefixes Avira's labels
		label = strings.TrimPrefix(label, "Malware.")

		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}

		label = removeSuffixes(vl.Vendor, label)

		tags := l.LabelTags(label, hashes)
		if !l.alias {
			tags = l.expand(tags)
		}
		for _, t := range tags {
			out[t] = append(out[t], vl.Vendor)
		}
	}
	return out
}

// RankTags keeps tags supported by more than RankThreshold engines, ordered by
// support then tag, both descending
func (l *Labeler) RankTags(tv TagVendors) models.RankedTags {
	ranked := make(models.RankedTags, 0, len(tv))
	for tag, vendors := range tv {
		if len(vendors) > RankThreshold {
			ranked = append(ranked, models.RankedTag{Tag: tag, Support: len(vendors)})
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Support != ranked[j].Support {
			return ranked[i].Support > ranked[j].Support
		}
		return ranked[i].Tag > ranked[j].Tag
	})
	return ranked
}

// IsPUP classifies a sample as potentially unwanted when its first CLASS tag
// is grayware and carries at least half of the top support
func (l *Labeler) IsPUP(tags models.RankedTags) bool {
	if len(tags) == 0 {
		return false
	}
	top := tags[0].Support
	for _, t := range tags {
		path, cat := l.tax.Info(t.Tag)
		if cat != models.CategoryClass {
			continue
		}
		if !strings.Contains(path, "grayware") {
			return false
		}
		return float64(t.Support) >= float64(top)*PUPThreshold
	}
	return false
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
