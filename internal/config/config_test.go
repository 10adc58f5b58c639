package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acheong08/avtag/internal/errors"
	"github.com/acheong08/avtag/internal/labels"
	"github.com/acheong08/avtag/internal/parser"
	"github.com/acheong08/avtag/pkg/models"
)

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "avtag.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
vt: [a.json, b.json]
tagging: rules/tagging
taxonomy: rules/taxonomy
pup: true
aliasdetect: true
`), 0o644))

	t.Setenv("AVTAG_TAXONOMY", "/etc/avtag/taxonomy")
	t.Setenv("AVTAG_MALTAGGED_THRESHOLD", "5")

	opts, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.json", "b.json"}, opts.VT)
	assert.Equal(t, "rules/tagging", opts.Tagging)
	assert.Equal(t, "/etc/avtag/taxonomy", opts.Taxonomy)
	assert.True(t, opts.PUP)
	assert.True(t, opts.AliasDetect)
	assert.Equal(t, 5, opts.MaltaggedThreshold)
	assert.Equal(t, labels.DefaultCacheSize, opts.CacheSize)
	assert.NoError(t, opts.Validate())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("AVTAG_MALTAGGED_THRESHOLD", "many")
	_, err = Load("")
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfig))
}

func TestLoadMaltaggedThreshold(t *testing.T) {
	dir := t.TempDir()
	zeroFile := filepath.Join(dir, "zero.yaml")
	require.NoError(t, os.WriteFile(zeroFile, []byte("maltagged_threshold: 0\n"), 0o644))
	plainFile := filepath.Join(dir, "plain.yaml")
	require.NoError(t, os.WriteFile(plainFile, []byte("pup: true\n"), 0o644))

	tests := []struct {
		name string
		path string
		env  string
		want int
	}{
		{name: "unset uses default", want: 3},
		{name: "file without threshold uses default", path: plainFile, want: 3},
		{name: "zero from file", path: zeroFile, want: 0},
		{name: "zero from environment", env: "0", want: 0},
		{name: "environment overrides file", path: zeroFile, env: "7", want: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AVTAG_MALTAGGED_THRESHOLD", tt.env)
			opts, err := Load(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, opts.MaltaggedThreshold)
			assert.Equal(t, tt.want, opts.AggregateOptions().MaltaggedThreshold)
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	opts := &Options{}
	opts.ApplyDefaults()
	assert.Equal(t, 0, opts.MaltaggedThreshold, "zero is a valid threshold")
	assert.Equal(t, labels.DefaultCacheSize, opts.CacheSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		field   string
		wantErr bool
	}{
		{name: "vt files", opts: Options{VT: []string{"a"}}},
		{name: "lb dir", opts: Options{LBDir: "dir"}},
		{name: "no input", opts: Options{}, field: "input", wantErr: true},
		{name: "mixed inputs", opts: Options{VT: []string{"a"}, LB: []string{"b"}}, field: "input", wantErr: true},
		{name: "vt3 with lb", opts: Options{LB: []string{"a"}, VT3: true}, field: "vt3", wantErr: true},
		{name: "bad hash", opts: Options{VT: []string{"a"}, Hash: "crc32"}, field: "hash", wantErr: true},
		{name: "negative threshold", opts: Options{VT: []string{"a"}, MaltaggedThreshold: -1}, field: "maltagged_threshold", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var cfgErr *errors.ConfigError
			require.True(t, stderrors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
			assert.True(t, stderrors.Is(err, errors.ErrInvalidConfig))
		})
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, labels.FormatVT2, (&Options{VT: []string{"a"}}).Format())
	assert.Equal(t, labels.FormatVT3, (&Options{VTDir: "d", VT3: true}).Format())
	assert.Equal(t, labels.FormatLB, (&Options{LB: []string{"a"}}).Format())
}

func TestInputs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.json", "a.json"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	files, err := (&Options{VTDir: dir}).Inputs()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.json"), filepath.Join(dir, "b.json")}, files)

	files, err = (&Options{LB: []string{"x", "x"}}).Inputs()
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "x"}, files)

	_, err = (&Options{VTDir: t.TempDir()}).Inputs()
	assert.Error(t, err)
}

func TestIdentityKind(t *testing.T) {
	kind, err := (&Options{}).IdentityKind(nil)
	require.NoError(t, err)
	assert.Equal(t, models.MD5, kind)

	kind, err = (&Options{Hash: "sha1"}).IdentityKind(nil)
	require.NoError(t, err)
	assert.Equal(t, models.SHA1, kind)

	gt := &parser.GroundTruth{
		Families: map[string]string{"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855": "zbot"},
		First:    "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
	}
	kind, err = (&Options{Hash: "md5"}).IdentityKind(gt)
	require.NoError(t, err)
	assert.Equal(t, models.SHA256, kind)
}

func TestOutputPrefixAndAggregateOptions(t *testing.T) {
	opts := &Options{VendorTags: true, MaltaggedThreshold: 4}
	assert.Equal(t, "scans", opts.OutputPrefix([]string{"/data/scans.json"}))
	opts.Output = "run1"
	assert.Equal(t, "run1", opts.OutputPrefix([]string{"/data/scans.json"}))

	agg := opts.AggregateOptions()
	assert.Equal(t, 4, agg.MaltaggedThreshold)
	assert.True(t, agg.Vendors)
	assert.False(t, agg.Aliases)
}

func TestLoadRules(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		return p
	}
	opts := &Options{
		Taxonomy:  write("taxonomy", "FAM:zbot\nCLASS:malware\n"),
		Tagging:   write("tagging", "zeus FAM:zbot\nbanker CLASS:banker\n"),
		Expansion: write("expansion", "FAM:zbot CLASS:malware\n"),
		AVs:       write("avs", "Kaspersky\nAvast\n"),
	}

	rs, err := opts.LoadRules()
	require.NoError(t, err)
	assert.Len(t, rs.Vendors, 2)
	assert.Equal(t, []string{"[Tagging] banker not in taxonomy"}, rs.Problems())

	lab, err := rs.Labeler(false, 0)
	require.NoError(t, err)
	assert.Same(t, rs.Taxonomy, lab.Taxonomy())

	_, err = (&Options{Tagging: filepath.Join(dir, "missing")}).LoadRules()
	assert.Error(t, err)
}
