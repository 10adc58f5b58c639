package parser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/acheong08/avtag/pkg/models"
)

// GroundTruth maps a sample hash to its reference family
type GroundTruth struct {
	Families map[string]string
	// First is the first hash read, used to guess the identity kind
	First string
}

// Len returns the number of labelled samples
func (g *GroundTruth) Len() int {
	if g == nil {
		return 0
	}
	return len(g.Families)
}

// Kind guesses the identity kind from the first hash
func (g *GroundTruth) Kind() (models.IdentityKind, error) {
	kind, ok := models.GuessIdentityKind(g.First)
	if !ok {
		return models.MD5, fmt.Errorf("cannot guess hash type of ground truth entry %q", g.First)
	}
	return kind, nil
}

// ParseGroundTruth reads "hash<TAB>family" lines
func ParseGroundTruth(r io.Reader) (*GroundTruth, error) {
	gt := &GroundTruth{Families: make(map[string]string)}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		hash, family, ok := strings.Cut(line, "\t")
		if !ok {
			return nil, fmt.Errorf("ground truth line %d: expected hash<TAB>family", lineNo)
		}
		if gt.First == "" {
			gt.First = hash
		}
		gt.Families[hash] = family
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading ground truth: %w", err)
	}
	return gt, nil
}

// ReadGroundTruth loads a ground-truth file
func ReadGroundTruth(path string) (*GroundTruth, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ground truth: %w", err)
	}
	defer file.Close()

	return ParseGroundTruth(file)
}
