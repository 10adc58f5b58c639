package taxonomy

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/acheong08/avtag/pkg/models"
)

// PlatformPrefix marks tags describing an operating system
const PlatformPrefix = "FILE:os:"

// Tag is one taxonomy entry, e.g. FAM:zbot or CLASS:grayware:adware
type Tag struct {
	Name     string
	Category models.Category
	Path     string
	Prefixes []string
}

// ParseTag builds a Tag from its path form. A bare word becomes an uncategorized tag.
func ParseTag(s string) Tag {
	words := strings.Split(strings.TrimSpace(s), ":")
	if len(words) == 1 {
		name := strings.ToLower(words[0])
		return Tag{Name: name, Category: models.CategoryUncategorized, Path: name}
	}

	name := strings.ToLower(words[len(words)-1])
	cat := models.Category(strings.ToUpper(words[0]))
	prefixes := make([]string, 0, len(words)-2)
	for _, w := range words[1 : len(words)-1] {
		prefixes = append(prefixes, strings.ToLower(w))
	}

	parts := append([]string{string(cat)}, prefixes...)
	parts = append(parts, name)
	return Tag{Name: name, Category: cat, Path: strings.Join(parts, ":"), Prefixes: prefixes}
}

// Taxonomy resolves tag names and paths to categories. Not safe for concurrent
// mutation; read-only use after loading is fine.
type Taxonomy struct {
	byName map[string]*Tag
	byPath map[string]*Tag
}

// New creates an empty taxonomy
func New() *Taxonomy {
	return &Taxonomy{
		byName: make(map[string]*Tag),
		byPath: make(map[string]*Tag),
	}
}

// Load reads a taxonomy file. An empty path yields an empty taxonomy.
func Load(path string) (*Taxonomy, error) {
	t := New()
	if path == "" {
		return t, nil
	}
	if err := t.ReadFile(path); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Taxonomy) lookup(tag string) *Tag {
	if e, ok := t.byName[tag]; ok {
		return e
	}
	return t.byPath[tag]
}

// Len returns the number of distinct tags
func (t *Taxonomy) Len() int {
	return len(t.byName)
}

// Add inserts a tag. A name collision with a different path is only replaced when override is set.
func (t *Taxonomy) Add(s string, override bool) {
	tag := ParseTag(s)
	if existing, ok := t.byName[tag.Name]; ok && existing.Path != tag.Path {
		if !override {
			return
		}
		log.Printf("[WARN] taxonomy: replacing %s with %s", existing.Path, tag.Path)
		delete(t.byPath, existing.Path)
	}
	t.byName[tag.Name] = &tag
	t.byPath[tag.Path] = &tag
}

// Remove deletes a tag by name or path and reports whether it was present
func (t *Taxonomy) Remove(tag string) bool {
	e := t.lookup(tag)
	if e == nil {
		return false
	}
	delete(t.byName, e.Name)
	delete(t.byPath, e.Path)
	return true
}

// IsTag reports whether tag is a known name or path
func (t *Taxonomy) IsTag(tag string) bool {
	return t.lookup(tag) != nil
}

// IsGeneric reports whether tag belongs to the GEN category
func (t *Taxonomy) IsGeneric(tag string) bool {
	e := t.lookup(tag)
	return e != nil && e.Category == models.CategoryGeneric
}

// Category returns the tag's category, UNK when unknown
func (t *Taxonomy) Category(tag string) models.Category {
	if e := t.lookup(tag); e != nil {
		return e.Category
	}
	return models.CategoryUnknown
}

// Path returns the full path of a tag, UNK:<tag> when unknown
func (t *Taxonomy) Path(tag string) string {
	if e := t.lookup(tag); e != nil {
		return e.Path
	}
	return "UNK:" + tag
}

// Info returns path and category in one lookup
func (t *Taxonomy) Info(tag string) (string, models.Category) {
	if e := t.lookup(tag); e != nil {
		return e.Path, e.Category
	}
	return "UNK:" + tag, models.CategoryUnknown
}

// Prefixes returns the intermediate path components of a tag
func (t *Taxonomy) Prefixes(tag string) []string {
	if e := t.lookup(tag); e != nil {
		return e.Prefixes
	}
	return nil
}

// Depth is the number of path components, 0 for unknown tags
func (t *Taxonomy) Depth(tag string) int {
	if e := t.lookup(tag); e != nil {
		return len(e.Prefixes) + 2
	}
	return 0
}

// Expand returns the prefixes of tag that are tags themselves
func (t *Taxonomy) Expand(tag string) []string {
	e := t.lookup(tag)
	if e == nil {
		return nil
	}
	var out []string
	for _, p := range e.Prefixes {
		if t.IsTag(p) {
			out = append(out, p)
		}
	}
	return out
}

// PlatformTags returns the names of all FILE:os: tags
func (t *Taxonomy) PlatformTags() map[string]struct{} {
	out := make(map[string]struct{})
	for _, e := range t.byName {
		if strings.HasPrefix(e.Path, PlatformPrefix) {
			out[e.Name] = struct{}{}
		}
	}
	return out
}

// Overlaps reports whether one tag is a prefix of the other
func (t *Taxonomy) Overlaps(t1, t2 string) bool {
	return slices.Contains(t.Prefixes(t2), t1) || slices.Contains(t.Prefixes(t1), t2)
}

// RemoveOverlaps keeps the deepest tags and drops any tag overlapping one already kept
func (t *Taxonomy) RemoveOverlaps(tags []string) []string {
	if len(tags) == 0 {
		return tags
	}
	sorted := slices.Clone(tags)
	sort.Slice(sorted, func(i, j int) bool {
		di, dj := t.Depth(sorted[i]), t.Depth(sorted[j])
		if di != dj {
			return di > dj
		}
		return sorted[i] > sorted[j]
	})

	out := []string{sorted[0]}
	for _, tag := range sorted[1:] {
		overlap := false
		for _, kept := range out {
			if t.Overlaps(tag, kept) {
				overlap = true
				break
			}
		}
		if !overlap {
			out = append(out, tag)
		}
	}
	return out
}

// Read loads tags from r, one path per line, skipping blanks and # comments
func (t *Taxonomy) Read(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		t.Add(line, false)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading taxonomy: %w", err)
	}
	return nil
}

// ReadFile loads tags from a file
func (t *Taxonomy) ReadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open taxonomy: %w", err)
	}
	defer file.Close()

	return t.Read(file)
}

// Paths returns every tag path in sorted order
func (t *Taxonomy) Paths() []string {
	paths := make([]string, 0, len(t.byName))
	for _, e := range t.byName {
		paths = append(paths, e.Path)
	}
	sort.Strings(paths)
	return paths
}

// Write emits the sorted tag paths, one per line
func (t *Taxonomy) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, p := range t.Paths() {
		if _, err := fmt.Fprintln(bw, p); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile normalizes the taxonomy into path
func (t *Taxonomy) WriteFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create taxonomy file: %w", err)
	}
	if err := t.Write(file); err != nil {
		file.Close()
		return fmt.Errorf("failed to write taxonomy: %w", err)
	}
	return file.Close()
}
