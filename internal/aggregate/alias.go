package aggregate

import "sort"

// AliasCounter counts how often tags occur and co-occur across samples
type AliasCounter struct {
	tokens map[string]int
	pairs  map[TagPair]int
}

// NewAliasCounter creates an empty AliasCounter
func NewAliasCounter() *AliasCounter {
	return &AliasCounter{
		tokens: make(map[string]int),
		pairs:  make(map[TagPair]int),
	}
}

// AliasUpdate is the pending contribution of one sample
type AliasUpdate struct {
	Tokens []string
	Pairs  []TagPair
}

// PlanAliasUpdate computes the distinct tokens and pairs of a tag list without touching any counter
func PlanAliasUpdate(tags []string) AliasUpdate {
	seen := make(map[string]struct{}, len(tags))
	var u AliasUpdate
	for _, t := range tags {
		if _, dup := seen[t]; dup {
			continue
		}
		for _, prev := range u.Tokens {
			u.Pairs = append(u.Pairs, NewTagPair(prev, t))
		}
		seen[t] = struct{}{}
		u.Tokens = append(u.Tokens, t)
	}
	return u
}

// Apply commits a planned update
func (a *AliasCounter) Apply(u AliasUpdate) {
	for _, t := range u.Tokens {
		a.tokens[t]++
	}
	for _, p := range u.Pairs {
		a.pairs[p]++
	}
}

// Observe plans and applies the update for one sample's tags
func (a *AliasCounter) Observe(tags []string) {
	a.Apply(PlanAliasUpdate(tags))
}

// Token returns how many samples carried tag
func (a *AliasCounter) Token(tag string) int {
	return a.tokens[tag]
}

// Pair returns how many samples carried both tags
func (a *AliasCounter) Pair(x, y string) int {
	return a.pairs[NewTagPair(x, y)]
}

// Len returns the number of distinct pairs
func (a *AliasCounter) Len() int {
	return len(a.pairs)
}

// Aliases derives the alias table, ascending by co-occurrence count
func (a *AliasCounter) Aliases() []AliasRow {
	rows := make([]AliasRow, 0, len(a.pairs))
	for p, c := range a.pairs {
		n1, n2 := a.tokens[p.A], a.tokens[p.B]
		row := AliasRow{X: p.B, Y: p.A, XCount: n2, YCount: n1, Together: c}
		if n1 < n2 {
			row = AliasRow{X: p.A, Y: p.B, XCount: n1, YCount: n2, Together: c}
		}
		row.F = float64(c) / float64(row.XCount)
		row.FInv = float64(c) / float64(row.YCount)
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Together != rows[j].Together {
			return rows[i].Together < rows[j].Together
		}
		if rows[i].X != rows[j].X {
			return rows[i].X < rows[j].X
		}
		return rows[i].Y < rows[j].Y
	})
	return rows
}
