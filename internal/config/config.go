// Package config holds the options of a labeling run and loads them from
// YAML, the environment and a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/acheong08/avtag/internal/aggregate"
	"github.com/acheong08/avtag/internal/errors"
	"github.com/acheong08/avtag/internal/labels"
	"github.com/acheong08/avtag/internal/parser"
	"github.com/acheong08/avtag/pkg/models"
)

// Options are all settings of a labeling run
type Options struct {
	// Inputs. Exactly one of the four groups may be set.
	VT    []string `yaml:"vt"`
	LB    []string `yaml:"lb"`
	VTDir string   `yaml:"vtdir"`
	LBDir string   `yaml:"lbdir"`
	VT3   bool     `yaml:"vt3"`

	GroundTruth string `yaml:"gt"`

	// Rule files
	Tagging   string `yaml:"tagging"`
	Expansion string `yaml:"expansion"`
	Taxonomy  string `yaml:"taxonomy"`
	AVs       string `yaml:"avs"`

	// Identity hash: md5, sha1 or sha256. Empty means md5 unless ground truth decides.
	Hash string `yaml:"hash"`

	// Output features
	FullPaths   bool `yaml:"path"`
	Compat      bool `yaml:"compat"`
	PUP         bool `yaml:"pup"`
	VTTags      bool `yaml:"vtt"`
	VendorTags  bool `yaml:"avtags"`
	AliasDetect bool `yaml:"aliasdetect"`
	Stats       bool `yaml:"stats"`

	MaltaggedThreshold int    `yaml:"maltagged_threshold"`
	CacheSize          int    `yaml:"cache_size"`
	Output             string `yaml:"out"`
}

// Load reads the optional YAML file at path, then overlays AVTAG_* variables
// from the environment and a .env file in the working directory
func Load(path string) (*Options, error) {
	_ = godotenv.Load()

	opts := &Options{MaltaggedThreshold: aggregate.DefaultMaltaggedThreshold}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, opts); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := opts.applyEnv(); err != nil {
		return nil, err
	}
	opts.ApplyDefaults()
	return opts, nil
}

func (o *Options) applyEnv() error {
	o.Tagging = getEnv("AVTAG_TAGGING", o.Tagging)
	o.Expansion = getEnv("AVTAG_EXPANSION", o.Expansion)
	o.Taxonomy = getEnv("AVTAG_TAXONOMY", o.Taxonomy)
	o.AVs = getEnv("AVTAG_AVS", o.AVs)
	o.Hash = getEnv("AVTAG_HASH", o.Hash)

	if raw := strings.TrimSpace(os.Getenv("AVTAG_MALTAGGED_THRESHOLD")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return errors.NewConfigError("maltagged_threshold", fmt.Sprintf("AVTAG_MALTAGGED_THRESHOLD is not a number: %q", raw))
		}
		o.MaltaggedThreshold = n
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// ApplyDefaults fills zero values. MaltaggedThreshold is left alone since 0
// is a valid threshold; Load seeds it before the file and environment are read.
func (o *Options) ApplyDefaults() {
	if o.CacheSize == 0 {
		o.CacheSize = labels.DefaultCacheSize
	}
}

func (o *Options) inputGroups() int {
	n := 0
	for _, set := range []bool{len(o.VT) > 0, len(o.LB) > 0, o.VTDir != "", o.LBDir != ""} {
		if set {
			n++
		}
	}
	return n
}

// Validate reports the first configuration problem found
func (o *Options) Validate() error {
	switch o.inputGroups() {
	case 0:
		return errors.NewConfigError("input", "one of -vt, -lb, -vtdir or -lbdir is required")
	case 1:
	default:
		return errors.NewConfigError("input", "-vt, -lb, -vtdir and -lbdir are mutually exclusive")
	}
	if o.VT3 && o.IsLB() {
		return errors.NewConfigError("vt3", "-vt3 only applies to VirusTotal inputs")
	}
	if o.Hash != "" {
		if _, err := models.ParseIdentityKind(o.Hash); err != nil {
			return errors.NewConfigError("hash", err.Error())
		}
	}
	if o.MaltaggedThreshold < 0 {
		return errors.NewConfigError("maltagged_threshold", "must not be negative")
	}
	if o.CacheSize < 0 {
		return errors.NewConfigError("cache_size", "must not be negative")
	}
	return nil
}

// IsLB reports whether inputs are in the simplified label format
func (o *Options) IsLB() bool {
	return len(o.LB) > 0 || o.LBDir != ""
}

// Format returns the record format implied by the inputs
func (o *Options) Format() labels.Format {
	switch {
	case o.IsLB():
		return labels.FormatLB
	case o.VT3:
		return labels.FormatVT3
	default:
		return labels.FormatVT2
	}
}

// Inputs lists the input files in processing order. Duplicates are kept.
func (o *Options) Inputs() ([]string, error) {
	var files []string
	switch {
	case len(o.VT) > 0:
		files = o.VT
	case len(o.LB) > 0:
		files = o.LB
	case o.VTDir != "":
		listed, err := parser.ListDir(o.VTDir)
		if err != nil {
			return nil, err
		}
		files = listed
	case o.LBDir != "":
		listed, err := parser.ListDir(o.LBDir)
		if err != nil {
			return nil, err
		}
		files = listed
	}
	if len(files) == 0 {
		return nil, errors.NewConfigError("input", "no input files found")
	}
	return files, nil
}

// IdentityKind picks the hash that names samples. A ground truth file
// overrides the flag, since its hashes must match the output ids.
func (o *Options) IdentityKind(gt *parser.GroundTruth) (models.IdentityKind, error) {
	if gt != nil && gt.Len() > 0 {
		return gt.Kind()
	}
	if o.Hash == "" {
		return models.MD5, nil
	}
	return models.ParseIdentityKind(o.Hash)
}

// OutputPrefix is the base name of the report files
func (o *Options) OutputPrefix(inputs []string) string {
	if o.Output != "" {
		return o.Output
	}
	return parser.OutputPrefix(inputs[0])
}

// AggregateOptions selects the corpus accumulators a run needs
func (o *Options) AggregateOptions() aggregate.Options {
	return aggregate.Options{
		MaltaggedThreshold: o.MaltaggedThreshold,
		Aliases:            o.AliasDetect,
		Vendors:            o.VendorTags,
	}
}
