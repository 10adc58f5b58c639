package aggregate

import (
	"math/rand"
	"testing"

	"github.com/acheong08/avtag/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTagPair(t *testing.T) {
	assert.Equal(t, TagPair{A: "banker", B: "zeus"}, NewTagPair("zeus", "banker"))
	assert.Equal(t, TagPair{A: "banker", B: "zeus"}, NewTagPair("banker", "zeus"))
}

func TestPlanAliasUpdate(t *testing.T) {
	u := PlanAliasUpdate([]string{"zeus", "banker", "zeus", "spy"})
	assert.Equal(t, []string{"zeus", "banker", "spy"}, u.Tokens)
	assert.ElementsMatch(t, []TagPair{
		{A: "banker", B: "zeus"},
		{A: "spy", B: "zeus"},
		{A: "banker", B: "spy"},
	}, u.Pairs)

	assert.Empty(t, PlanAliasUpdate(nil).Pairs)
}

func TestAliasCounterTwoSamples(t *testing.T) {
	a := NewAliasCounter()
	a.Observe([]string{"zeus", "banker"})
	a.Observe([]string{"banker", "zeus"})

	assert.Equal(t, 2, a.Token("zeus"))
	assert.Equal(t, 2, a.Token("banker"))
	assert.Equal(t, 2, a.Pair("zeus", "banker"))
	assert.Equal(t, 1, a.Len())

	rows := a.Aliases()
	require.Len(t, rows, 1)
	assert.Equal(t, AliasRow{X: "zeus", Y: "banker", XCount: 2, YCount: 2, Together: 2, F: 1.0, FInv: 1.0}, rows[0])
}

func TestAliasCounterInvariants(t *testing.T) {
	vocab := []string{"zbot", "zeus", "spy", "banker", "trojan", "agent"}
	rng := rand.New(rand.NewSource(42))
	a := NewAliasCounter()

	for i := 0; i < 200; i++ {
		n := rng.Intn(len(vocab) + 1)
		tags := make([]string, n)
		for j := range tags {
			tags[j] = vocab[rng.Intn(len(vocab))]
		}
		a.Observe(tags)

		for p, c := range a.pairs {
			assert.LessOrEqual(t, c, a.tokens[p.A])
			assert.LessOrEqual(t, c, a.tokens[p.B])
			assert.Less(t, p.A, p.B)
		}
	}

	rows := a.Aliases()
	for i, r := range rows {
		assert.Greater(t, r.F, 0.0)
		assert.LessOrEqual(t, r.F, 1.0)
		assert.Greater(t, r.FInv, 0.0)
		assert.LessOrEqual(t, r.FInv, 1.0)
		assert.LessOrEqual(t, r.XCount, r.YCount)
		if i > 0 {
			assert.LessOrEqual(t, rows[i-1].Together, r.Together)
		}
	}
}

func TestAliasCounterPermutationInvariance(t *testing.T) {
	tags := []string{"a", "b", "c", "d"}
	reversed := []string{"d", "c", "b", "a"}

	x := NewAliasCounter()
	x.Observe(tags)
	y := NewAliasCounter()
	y.Observe(reversed)

	assert.Equal(t, x.pairs, y.pairs)
	assert.Equal(t, x.tokens, y.tokens)
}

func TestAliasRowsTieOrder(t *testing.T) {
	a := NewAliasCounter()
	a.Observe([]string{"b", "c"})
	a.Observe([]string{"a", "d"})
	a.Observe([]string{"a"})

	rows := a.Aliases()
	require.Len(t, rows, 2)
	assert.Equal(t, "c", rows[0].X, "equal totals take the second token as x")
	assert.Equal(t, "d", rows[1].X)
	assert.Equal(t, 0.5, rows[1].FInv)
}

func TestCategoryCoverage(t *testing.T) {
	c := NewCategoryCoverage()
	c.Observe([]models.Category{models.CategoryFamily, models.CategoryFamily, models.CategoryClass, models.CategoryGeneric})
	c.Observe([]models.Category{models.CategoryFamily})
	c.Observe(nil)

	assert.Equal(t, 2, c.Count(models.CategoryFamily))
	assert.Equal(t, 1, c.Count(models.CategoryClass))
	assert.Equal(t, 0, c.Count(models.CategoryBehavior))
	assert.Equal(t, 0, c.Count(models.CategoryGeneric))
	assert.Len(t, c.Counts(), 5)
}

func TestVendorTags(t *testing.T) {
	v := NewVendorTags()
	v.Observe(map[string][]string{"zbot": {"Kaspersky", "Avast"}, "spy": {"Avast"}})
	v.Observe(map[string][]string{"zbot": {"Avast", "ESET-NOD32"}})

	assert.Equal(t, []string{"spy", "zbot"}, v.Tags())
	assert.Equal(t, []VendorCount{
		{Vendor: "Avast", Count: 2},
		{Vendor: "ESET-NOD32", Count: 1},
		{Vendor: "Kaspersky", Count: 1},
	}, v.Vendors("zbot"))
	assert.Empty(t, v.Vendors("missing"))
}

func TestAggregatorCommit(t *testing.T) {
	a := NewAggregator(Options{MaltaggedThreshold: DefaultMaltaggedThreshold, Aliases: true, Vendors: true})
	assert.Equal(t, DefaultMaltaggedThreshold, a.Threshold())

	a.RecordRead()
	a.Commit(SampleUpdate{
		Tagged:     true,
		Support:    4,
		Categories: []models.Category{models.CategoryFamily, models.CategoryBehavior},
		Alias:      PlanAliasUpdate([]string{"zbot", "spy"}),
		Vendors:    map[string][]string{"zbot": {"Avast", "Kaspersky"}},
	})

	a.RecordRead()
	a.Commit(SampleUpdate{
		Tagged:     true,
		Support:    3,
		Categories: []models.Category{models.CategoryClass},
		Alias:      PlanAliasUpdate([]string{"virus"}),
	})

	a.RecordRead()
	a.Commit(SampleUpdate{Vendors: map[string][]string{"solo": {"Bkav"}}})

	a.RecordRead()
	a.RecordSkip()
	a.RecordRead()
	a.RecordFailure()
	a.RecordRead()
	a.RecordEmpty()

	c := a.Counters()
	assert.Equal(t, Counters{Reads: 6, Tagged: 2, Untagged: 2, NoScans: 1, Failed: 1, Maltagged: 1}, c)
	assert.Equal(t, c.Reads, c.Tagged+c.Untagged+c.NoScans+c.Failed)
	assert.Equal(t, 4, c.NoTags())

	assert.Equal(t, 1, a.Categories().Count(models.CategoryFamily))
	assert.Equal(t, 0, a.Categories().Count(models.CategoryClass), "support 3 does not exceed the threshold")
	assert.Equal(t, 1, a.Aliases().Pair("zbot", "spy"))
	assert.Equal(t, 1, a.Aliases().Token("virus"))
	assert.Equal(t, []string{"solo", "zbot"}, a.Vendors().Tags())

	stats := a.Stats()
	assert.Equal(t, 3, stats.MaltaggedThreshold)
	assert.Equal(t, 1, stats.Categories[models.CategoryBehavior])
}

func TestAggregatorOptionalTracking(t *testing.T) {
	a := NewAggregator(Options{MaltaggedThreshold: 1})
	a.Commit(SampleUpdate{
		Tagged:     true,
		Support:    2,
		Categories: []models.Category{models.CategoryFile},
		Alias:      PlanAliasUpdate([]string{"x", "y"}),
		Vendors:    map[string][]string{"x": {"Avast"}},
	})

	assert.Equal(t, 0, a.Aliases().Len())
	assert.Empty(t, a.Vendors().Tags())
	assert.Equal(t, 1, a.Categories().Count(models.CategoryFile))
}

func TestAggregatorThreshold(t *testing.T) {
	tests := []struct {
		name      string
		threshold int
		want      int
		support   int
		maltagged bool
	}{
		{name: "zero counts every labeled sample", threshold: 0, want: 0, support: 1, maltagged: true},
		{name: "explicit threshold", threshold: 5, want: 5, support: 5, maltagged: false},
		{name: "negative selects default", threshold: -1, want: DefaultMaltaggedThreshold, support: 4, maltagged: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAggregator(Options{MaltaggedThreshold: tt.threshold})
			assert.Equal(t, tt.want, a.Threshold())
			assert.Equal(t, tt.maltagged, a.Maltagged(tt.support))
			assert.Equal(t, tt.want, a.Stats().MaltaggedThreshold)
		})
	}
}
