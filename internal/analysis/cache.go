package analysis

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/acheong08/avtag/internal/aggregate"
)

// VerdictCache stores verdicts by tag pair in a JSON file
type VerdictCache struct {
	path     string
	mu       sync.Mutex
	verdicts map[string]AliasVerdict
	dirty    bool
}

func cacheKey(x, y string) string {
	p := aggregate.NewTagPair(x, y)
	return p.A + "|" + p.B
}

// LoadVerdictCache reads path if it exists. An empty path keeps verdicts in memory only.
func LoadVerdictCache(path string) (*VerdictCache, error) {
	c := &VerdictCache{path: path, verdicts: make(map[string]AliasVerdict)}
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read verdict cache: %w", err)
	}
	if err := json.Unmarshal(data, &c.verdicts); err != nil {
		return nil, fmt.Errorf("failed to parse verdict cache: %w", err)
	}
	return c, nil
}

// Get returns the verdict of the pair in either order
func (c *VerdictCache) Get(x, y string) (AliasVerdict, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.verdicts[cacheKey(x, y)]
	return v, ok
}

// Put records a verdict
func (c *VerdictCache) Put(x, y string, v AliasVerdict) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verdicts[cacheKey(x, y)] = v
	c.dirty = true
}

// Len returns the number of cached verdicts
func (c *VerdictCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.verdicts)
}

// Save writes the cache when it changed
func (c *VerdictCache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.path == "" || !c.dirty {
		return nil
	}

	jsonBytes, err := json.MarshalIndent(c.verdicts, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal verdicts: %w", err)
	}
	if err := os.WriteFile(c.path, jsonBytes, 0o644); err != nil {
		return fmt.Errorf("failed to write verdict cache: %w", err)
	}
	c.dirty = false
	return nil
}
