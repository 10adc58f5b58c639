package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ListDir returns the regular files of dir in name order
func ListDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// ValidateInputs checks that every input file exists and is not a directory
func ValidateInputs(paths []string) error {
	for _, p := range paths {
		info, err := os.Stat(p)
		if os.IsNotExist(err) {
			return fmt.Errorf("input file not found: %s", p)
		}
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if info.IsDir() {
			return fmt.Errorf("input is a directory: %s", p)
		}
	}
	return nil
}

// OutputPrefix derives report file names from the first input: its base name without extension
func OutputPrefix(firstInput string) string {
	base := filepath.Base(firstInput)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
