package rules

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/acheong08/avtag/internal/taxonomy"
)

// Rules maps a source tag to a set of destination tags
type Rules struct {
	rmap map[string]map[string]struct{}
}

// New creates an empty rule set
func New() *Rules {
	return &Rules{rmap: make(map[string]map[string]struct{})}
}

// Len returns the number of sources
func (r *Rules) Len() int {
	return len(r.rmap)
}

// Add maps src to dsts. Self mappings are dropped; overwrite replaces any existing destinations.
func (r *Rules) Add(src string, dsts []string, overwrite bool) {
	srcName := taxonomy.ParseTag(src).Name
	var kept []string
	for _, d := range dsts {
		if name := taxonomy.ParseTag(d).Name; name != srcName {
			kept = append(kept, name)
		}
	}
	if len(kept) == 0 {
		return
	}

	cur := r.rmap[srcName]
	if cur == nil || overwrite {
		cur = make(map[string]struct{}, len(kept))
	}
	for _, d := range kept {
		cur[d] = struct{}{}
	}
	r.rmap[srcName] = cur
}

// Remove deletes the rule for src
func (r *Rules) Remove(src string) bool {
	if len(r.rmap[src]) == 0 {
		return false
	}
	delete(r.rmap, src)
	return true
}

// Dst returns the sorted destinations of src
func (r *Rules) Dst(src string) []string {
	set := r.rmap[src]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Sources returns all rule sources in sorted order
func (r *Rules) Sources() []string {
	out := make([]string, 0, len(r.rmap))
	for s := range r.rmap {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Read parses "src dst1 dst2 ..." lines, skipping blanks and # comments
func (r *Rules) Read(rd io.Reader) error {
	scanner := bufio.NewScanner(rd)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words := strings.Fields(line)
		if len(words) > 1 {
			r.Add(words[0], words[1:], false)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading rules: %w", err)
	}
	return nil
}

// ReadFile parses a rules file
func (r *Rules) ReadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open rules file: %w", err)
	}
	defer file.Close()

	return r.Read(file)
}

// Write emits one tab-separated rule per line. When tax is non-nil tags are written as full paths.
func (r *Rules) Write(w io.Writer, tax *taxonomy.Taxonomy) error {
	bw := bufio.NewWriter(w)
	for _, src := range r.Sources() {
		fields := append([]string{src}, r.Dst(src)...)
		if tax != nil {
			for i, f := range fields {
				fields[i] = tax.Path(f)
			}
		}
		if _, err := fmt.Fprintln(bw, strings.Join(fields, "\t")); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile normalizes the rules into path
func (r *Rules) WriteFile(path string, tax *taxonomy.Taxonomy) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create rules file: %w", err)
	}
	if err := r.Write(file, tax); err != nil {
		file.Close()
		return fmt.Errorf("failed to write rules: %w", err)
	}
	return file.Close()
}

// ExpandSrc follows rule chains from src and returns the terminal destinations
func (r *Rules) ExpandSrc(src string) []string {
	pending := r.Dst(src)
	seen := map[string]struct{}{src: {}}
	out := make(map[string]struct{})

	for len(pending) > 0 {
		dst := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if _, ok := seen[dst]; ok {
			continue
		}
		seen[dst] = struct{}{}

		next := r.Dst(dst)
		if len(next) == 0 {
			out[dst] = struct{}{}
			continue
		}
		pending = append(pending, next...)
	}

	result := make([]string, 0, len(out))
	for d := range out {
		result = append(result, d)
	}
	sort.Strings(result)
	return result
}

// ExpandAll replaces every rule's destinations by their terminal expansion
func (r *Rules) ExpandAll() {
	expanded := make(map[string][]string, len(r.rmap))
	for src := range r.rmap {
		expanded[src] = r.ExpandSrc(src)
	}
	for src, dsts := range expanded {
		set := make(map[string]struct{}, len(dsts))
		for _, d := range dsts {
			set[d] = struct{}{}
		}
		r.rmap[src] = set
	}
}

// Tagging rules translate label tokens into taxonomy tags
type Tagging struct {
	*Rules
}

// LoadTagging reads a tagging file. An empty path yields no rules.
func LoadTagging(path string) (*Tagging, error) {
	r, err := load(path)
	if err != nil {
		return nil, err
	}
	return &Tagging{Rules: r}, nil
}

// Validate reports destinations absent from the taxonomy
func (t *Tagging) Validate(tax *taxonomy.Taxonomy) []string {
	var problems []string
	for _, src := range t.Sources() {
		for _, d := range t.Dst(src) {
			if !tax.IsTag(d) {
				problems = append(problems, fmt.Sprintf("[Tagging] %s not in taxonomy", d))
			}
		}
	}
	return problems
}

// Expansion rules add implied tags to a tag
type Expansion struct {
	*Rules
}

// LoadExpansion reads an expansion file. An empty path yields no rules.
func LoadExpansion(path string) (*Expansion, error) {
	r, err := load(path)
	if err != nil {
		return nil, err
	}
	return &Expansion{Rules: r}, nil
}

// Validate reports sources and destinations absent from the taxonomy
func (e *Expansion) Validate(tax *taxonomy.Taxonomy) []string {
	var problems []string
	for _, src := range e.Sources() {
		if !tax.IsTag(src) {
			problems = append(problems, fmt.Sprintf("[Expansion] %s not in taxonomy", src))
		}
		for _, d := range e.Dst(src) {
			if !tax.IsTag(d) {
				problems = append(problems, fmt.Sprintf("[Expansion] %s not in taxonomy", d))
			}
		}
	}
	return problems
}

func load(path string) (*Rules, error) {
	r := New()
	if path == "" {
		return r, nil
	}
	if err := r.ReadFile(path); err != nil {
		return nil, err
	}
	return r, nil
}
