package pipeline

import (
	"bytes"
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/acheong08/avtag/internal/aggregate"
	"github.com/acheong08/avtag/internal/labels"
	"github.com/acheong08/avtag/internal/rules"
	"github.com/acheong08/avtag/internal/taxonomy"
	"github.com/acheong08/avtag/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	idA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	idB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	idC = "cccccccccccccccccccccccccccccccc"
)

func testTaxonomy(t *testing.T) *taxonomy.Taxonomy {
	t.Helper()
	tax := taxonomy.New()
	require.NoError(t, tax.Read(strings.NewReader(`
GEN:trojan
GEN:win
CLASS:grayware
CLASS:grayware:adware
BEH:spy
FAM:zbot
FILE:os:windows
`)))
	return tax
}

type harness struct {
	tax    *taxonomy.Taxonomy
	runner *Runner
	pc     *Context
	out    bytes.Buffer
	logs   []string
}

func newHarness(t *testing.T, fmtr *Formatter, gt map[string]string, tagger Tagger) *harness {
	t.Helper()
	h := &harness{tax: testTaxonomy(t)}
	if tagger == nil {
		l, err := labels.New(h.tax, &rules.Tagging{Rules: rules.New()}, &rules.Expansion{Rules: rules.New()}, labels.Options{})
		require.NoError(t, err)
		tagger = l
	}
	if fmtr == nil {
		fmtr = &Formatter{}
	}
	fmtr.Taxonomy = h.tax
	fmtr.GroundTruth = gt != nil

	h.runner = NewRunner(Config{
		Extractor: labels.NewExtractor(labels.FormatVT2, models.MD5),
		Tagger:    tagger,
		Taxonomy:  h.tax,
		Formatter: fmtr,
		Logger:    log.New(io.Discard, "", 0),
		LogCallback: func(message, level string) {
			h.logs = append(h.logs, level+": "+message)
		},
	})
	h.pc = NewContext(models.MD5, gt, aggregate.Options{
		MaltaggedThreshold: aggregate.DefaultMaltaggedThreshold,
		Aliases:            true,
		Vendors:            true,
	})
	return h
}

func (h *harness) run(t *testing.T, input string) []string {
	t.Helper()
	require.NoError(t, h.runner.RunReader(context.Background(), h.pc, "test.json", strings.NewReader(input), &h.out))
	text := strings.TrimSuffix(h.out.String(), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func vt2(id string, scans ...string) string {
	var parts []string
	for i := 0; i+1 < len(scans); i += 2 {
		parts = append(parts, `"`+scans[i]+`":{"detected":true,"result":"`+scans[i+1]+`"}`)
	}
	return `{"md5":"` + id + `","sha1":"","sha256":"","scans":{` + strings.Join(parts, ",") + `}}`
}

func TestEmptyScansEmitsPlaceholder(t *testing.T) {
	h := newHarness(t, nil, nil, nil)
	lines := h.run(t, `{"md5":"`+idA+`","scans":{}}`+"\n")

	assert.Equal(t, []string{idA + "\t-\t[]"}, lines)
	c := h.pc.Aggregate.Counters()
	assert.Equal(t, 1, c.Reads)
	assert.Equal(t, 0, c.NoScans)
	assert.Equal(t, 0, c.Tagged)
	assert.Equal(t, 1, c.Untagged)
}

func TestTwoSamplesShareAliasPair(t *testing.T) {
	h := newHarness(t, nil, nil, nil)
	input := vt2(idA, "McAfee", "Zeus-Banker", "Symantec", "Banker.Zeus") + "\n" +
		vt2(idB, "McAfee", "Banker!Zeus", "Symantec", "Zeus/Banker") + "\n"

	lines := h.run(t, input)
	assert.Equal(t, []string{
		idA + "\t2\tzeus|2,banker|2",
		idB + "\t2\tzeus|2,banker|2",
	}, lines)

	aliases := h.pc.Aggregate.Aliases()
	assert.Equal(t, 2, aliases.Pair("zeus", "banker"))
	rows := aliases.Aliases()
	require.Len(t, rows, 1)
	assert.Equal(t, 1.0, rows[0].F)
	assert.Equal(t, 1.0, rows[0].FInv)
}

func TestZeroTagSampleStillEmitted(t *testing.T) {
	h := newHarness(t, nil, nil, nil)
	lines := h.run(t, vt2(idA, "McAfee", "Trojan.Win32", "Symantec", "Zbot.gen")+"\n")

	assert.Equal(t, []string{idA + "\t2\t"}, lines)
	c := h.pc.Aggregate.Counters()
	assert.Equal(t, 0, c.Tagged)
	assert.Equal(t, 1, c.Untagged)
	assert.Equal(t, 0, c.Maltagged)
	assert.Equal(t, 0, h.pc.Aggregate.Aliases().Len())
	assert.Equal(t, []string{"zbot"}, h.pc.Aggregate.Vendors().Tags(), "vendor usage counts unranked tags")
}

func TestCategoryCoverageAboveThreshold(t *testing.T) {
	h := newHarness(t, nil, nil, nil)
	input := vt2(idA,
		"McAfee", "Zbot.Spy",
		"Symantec", "Spy-Zbot",
		"Sophos", "Troj/Zbot-Spy",
		"Ikarus", "Spy.Zbot.Win",
	) + "\n" + vt2(idB, "McAfee", "Zbot.Spy", "Symantec", "Spy-Zbot") + "\n"

	h.run(t, input)
	agg := h.pc.Aggregate
	assert.Equal(t, 2, agg.Counters().Tagged)
	assert.Equal(t, 1, agg.Counters().Maltagged)
	assert.Equal(t, 1, agg.Categories().Count(models.CategoryFamily))
	assert.Equal(t, 0, agg.Categories().Count(models.CategoryBehavior), "spy has three letters and never becomes a tag")
}

func TestGroundTruthSingletons(t *testing.T) {
	gt := map[string]string{idA: SingletonPrefix + idA, idB: SingletonPrefix + idB}
	h := newHarness(t, nil, gt, nil)
	input := vt2(idA, "McAfee", "Adware.Gen", "Symantec", "Adware-X") + "\n" +
		vt2(idB, "McAfee", "Win.Adware", "Symantec", "Adware.Win") + "\n"

	lines := h.run(t, input)
	assert.Equal(t, idA+"\t2\tgrayware|2,adware|2\t"+SingletonPrefix+idA, lines[0])
	assert.Equal(t, SingletonPrefix+idA, h.pc.FirstToken[idA])
	assert.Equal(t, SingletonPrefix+idB, h.pc.FirstToken[idB])

	res := h.pc.Evaluate()
	assert.Equal(t, 1.0, res.Precision)
	assert.Equal(t, 1.0, res.Recall)
	assert.Equal(t, 1.0, res.F1)
}

type panickingTagger struct{}

func (panickingTagger) SampleTags(*models.SampleInfo) labels.TagVendors {
	return labels.TagVendors{"zbot": {"a", "b"}}
}

func (panickingTagger) RankTags(labels.TagVendors) models.RankedTags {
	panic("ranker exploded")
}

func (panickingTagger) IsPUP(models.RankedTags) bool { return false }

func TestFailingSampleLeavesNoTrace(t *testing.T) {
	h := newHarness(t, &Formatter{Compat: true}, nil, panickingTagger{})
	lines := h.run(t, vt2(idA, "McAfee", "Zbot", "Symantec", "Zbot")+"\n")

	assert.Empty(t, lines)
	c := h.pc.Aggregate.Counters()
	assert.Equal(t, 1, c.Reads)
	assert.Equal(t, 1, c.Failed)
	assert.Equal(t, 0, c.Tagged)
	assert.Equal(t, c.Reads, c.Tagged+c.Untagged+c.NoScans+c.Failed)
	assert.Equal(t, 0, h.pc.Aggregate.Aliases().Len())
	assert.Empty(t, h.pc.Aggregate.Vendors().Tags())
	assert.Empty(t, h.pc.FirstToken)
	require.Len(t, h.logs, 1)
	assert.Contains(t, h.logs[0], "ranker exploded")
	assert.Contains(t, h.logs[0], idA)
}

func TestSkippedRecords(t *testing.T) {
	h := newHarness(t, nil, nil, nil)
	input := "{not json\n\n" + `{"md5":"` + idC + `"}` + "\n" + vt2(idA, "McAfee", "Zbot", "Symantec", "Zbot.B") + "\n"

	lines := h.run(t, input)
	assert.Equal(t, []string{idA + "\t2\tzbot|2"}, lines)

	c := h.pc.Aggregate.Counters()
	assert.Equal(t, 3, c.Reads, "blank lines are not records")
	assert.Equal(t, 2, c.NoScans)
	assert.Equal(t, 1, c.Tagged)
	require.Len(t, h.logs, 2)
	assert.Contains(t, h.logs[0], "could not process")
	assert.Contains(t, h.logs[1], idC)
}

func TestOversizedRecordIsSkipped(t *testing.T) {
	h := newHarness(t, nil, nil, nil)
	h.runner.maxRecordSize = 512
	input := vt2(idA, "McAfee", "Zbot", "Symantec", "Zbot.B") + "\n" +
		strings.Repeat("\x00\x7f", 1024) + "\n" +
		vt2(idB, "McAfee", "Zbot", "Symantec", "Zbot.C") + "\n"

	lines := h.run(t, input)
	assert.Equal(t, []string{idA + "\t2\tzbot|2", idB + "\t2\tzbot|2"}, lines)

	c := h.pc.Aggregate.Counters()
	assert.Equal(t, 3, c.Reads)
	assert.Equal(t, 1, c.NoScans)
	assert.Equal(t, 2, c.Tagged)
	assert.Equal(t, c.Reads, c.Tagged+c.Untagged+c.NoScans+c.Failed)
	require.Len(t, h.logs, 1)
	assert.Contains(t, h.logs[0], "test.json:2")
	assert.Contains(t, h.logs[0], "exceeds 512 bytes")
}

func TestFormatterColumns(t *testing.T) {
	fmtr := &Formatter{FullPaths: true, PUP: true, VendorTags: true}
	h := newHarness(t, fmtr, map[string]string{idA: "adfam"}, nil)
	line := `{"md5":"` + idA + `","scans":{"McAfee":{"detected":true,"result":"Adware.Fooware"},"Symantec":{"detected":true,"result":"Adware-Fooware"}},"tags":["peexe","overlay"]}`

	lines := h.run(t, line+"\n")
	assert.Equal(t, []string{
		idA + "\t2\tCLASS:grayware|2,UNK:fooware|2,CLASS:grayware:adware|2\tadfam\t1\tpeexe, overlay",
	}, lines)
	assert.Equal(t, "fooware", h.pc.FirstToken[idA])
}

func TestCompatibilityMode(t *testing.T) {
	h := newHarness(t, &Formatter{Compat: true, PUP: true}, nil, nil)
	input := vt2(idA, "McAfee", "Zbot.A", "Symantec", "Zbot-B") + "\n" +
		vt2(idB, "McAfee", "Adware.Gen", "Symantec", "Adware-X") + "\n"

	lines := h.run(t, input)
	assert.Equal(t, []string{
		idA + "\tzbot\t0",
		idB + "\t" + SingletonPrefix + idB + "\t1",
	}, lines)
}

func TestSelectFamily(t *testing.T) {
	tax := testTaxonomy(t)
	tests := []struct {
		name     string
		tags     models.RankedTags
		expected string
	}{
		{"family first", models.RankedTags{{Tag: "spy", Support: 5}, {Tag: "zbot", Support: 3}}, "zbot"},
		{"unknown counts", models.RankedTags{{Tag: "adware", Support: 5}, {Tag: "mystery", Support: 2}}, "mystery"},
		{"none", models.RankedTags{{Tag: "adware", Support: 5}}, SingletonPrefix + idA},
		{"empty", nil, SingletonPrefix + idA},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SelectFamily(idA, tt.tags, tax))
		})
	}
}

type recordingProgress struct {
	events []string
}

func (p *recordingProgress) SourceStarted(source string) {
	p.events = append(p.events, "start "+source)
}

func (p *recordingProgress) RecordsRead(total int) {
	p.events = append(p.events, "read "+strings.Repeat("x", total))
}

func (p *recordingProgress) SourceFinished(source string, total int) {
	p.events = append(p.events, "done "+source+" "+strings.Repeat("x", total))
}

func TestRunFilesAndProgress(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.json")
	second := filepath.Join(dir, "b.json")
	require.NoError(t, os.WriteFile(first, []byte(vt2(idA, "McAfee", "Zbot", "Symantec", "Zbot.B")+"\n"+`{"md5":"`+idB+`","scans":{}}`+"\n"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte(vt2(idC, "McAfee", "Zbot", "Symantec", "Zbot.B")+"\n"), 0o644))

	tax := testTaxonomy(t)
	l, err := labels.New(tax, nil, nil, labels.Options{})
	require.NoError(t, err)
	progress := &recordingProgress{}
	runner := NewRunner(Config{
		Extractor:     labels.NewExtractor(labels.FormatVT2, models.MD5),
		Tagger:        l,
		Taxonomy:      tax,
		Progress:      progress,
		ProgressEvery: 2,
		Logger:        log.New(io.Discard, "", 0),
	})
	pc := NewContext(models.MD5, nil, aggregate.Options{})

	var out bytes.Buffer
	require.NoError(t, runner.Run(context.Background(), pc, []string{first, second}, &out))

	assert.Equal(t, idA+"\t2\tzbot|2\n"+idB+"\t-\t[]\n"+idC+"\t2\tzbot|2\n", out.String())
	assert.Equal(t, []string{
		"start " + first,
		"read xx",
		"done " + first + " xx",
		"start " + second,
		"done " + second + " xxx",
	}, progress.events)

	err = runner.Run(context.Background(), pc, []string{filepath.Join(dir, "missing.json")}, &out)
	assert.Error(t, err)
}

func TestRunCancelled(t *testing.T) {
	h := newHarness(t, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.runner.RunReader(ctx, h.pc, "test.json", strings.NewReader(vt2(idA, "McAfee", "Zbot")+"\n"), &h.out)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, h.pc.Aggregate.Counters().Reads)
}
