package analysis

import (
	"fmt"
	"io"
	"sort"

	"github.com/acheong08/avtag/internal/rules"
)

// Confirmed turns positive verdicts into a tagging rule set mapping each alias
// to its canonical tag. A canonical name outside the pair falls back to the
// more frequent tag.
func Confirmed(reviews []Review, minConfidence float64) *rules.Rules {
	confirmed := make([]Review, 0, len(reviews))
	for _, rv := range reviews {
		if rv.Verdict.IsAlias && rv.Verdict.Confidence >= minConfidence {
			confirmed = append(confirmed, rv)
		}
	}
	// Stronger pairs first so a tag keeps its best supported canonical
	sort.SliceStable(confirmed, func(i, j int) bool {
		return confirmed[i].Pair.Together > confirmed[j].Pair.Together
	})

	out := rules.New()
	for _, rv := range confirmed {
		alias, canonical := rv.Pair.X, rv.Pair.Y
		if rv.Verdict.Canonical == rv.Pair.X {
			alias, canonical = rv.Pair.Y, rv.Pair.X
		}
		if len(out.Dst(alias)) > 0 {
			continue
		}
		out.Add(alias, []string{canonical}, false)
	}
	return out
}

// WriteRules writes confirmed aliases in tagging file format
func WriteRules(w io.Writer, reviews []Review, minConfidence float64) error {
	if err := Confirmed(reviews, minConfidence).Write(w, nil); err != nil {
		return fmt.Errorf("failed to write rules: %w", err)
	}
	return nil
}
