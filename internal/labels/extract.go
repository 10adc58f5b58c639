package labels

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	apperrors "github.com/acheong08/avtag/internal/errors"
	"github.com/acheong08/avtag/pkg/models"
)

// Format identifies the JSON schema of the input reports
type Format int

const (
	// FormatVT2 is a VirusTotal v2 file report
	FormatVT2 Format = iota
	// FormatVT3 is a VirusTotal v3 file object
	FormatVT3
	// FormatLB is the simplified {md5,sha1,sha256,av_labels} schema
	FormatLB
)

func (f Format) String() string {
	switch f {
	case FormatVT3:
		return "vt3"
	case FormatLB:
		return "lb"
	default:
		return "vt2"
	}
}

// ParseFormat converts "vt", "vt2", "vt3" or "lb" into a Format
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "vt", "vt2":
		return FormatVT2, nil
	case "vt3":
		return FormatVT3, nil
	case "lb":
		return FormatLB, nil
	}
	return FormatVT2, fmt.Errorf("unknown input format %q (want vt2, vt3 or lb)", s)
}

// Extraction is the outcome of decoding one record: either a sample or the reason it was skipped
type Extraction struct {
	Sample *models.SampleInfo
	Err    error
	// Hint names the record in logs when no sample could be built
	Hint string
}

// OK reports whether a sample was extracted
func (e Extraction) OK() bool {
	return e.Err == nil && e.Sample != nil
}

func skip(err error, hint string) Extraction {
	return Extraction{Err: err, Hint: hint}
}

// Extractor turns raw JSON lines into SampleInfo values
type Extractor struct {
	format Format
	kind   models.IdentityKind
}

// NewExtractor creates an extractor for one input format. Records lacking the
// hash selected by kind are skipped.
func NewExtractor(format Format, kind models.IdentityKind) *Extractor {
	return &Extractor{format: format, kind: kind}
}

// Format returns the schema this extractor decodes
func (x *Extractor) Format() Format {
	return x.format
}

// Extract decodes one JSON record
func (x *Extractor) Extract(line []byte) Extraction {
	var ext Extraction
	switch x.format {
	case FormatLB:
		ext = extractLB(line)
	case FormatVT3:
		ext = extractVT3(line)
	default:
		ext = extractVT2(line)
	}
	if !ext.OK() {
		return ext
	}
	if ext.Sample.ID(x.kind) == "" {
		return skip(apperrors.ErrNoIdentity, ext.Hint)
	}
	return ext
}

type lbRecord struct {
	MD5      string     `json:"md5"`
	SHA1     string     `json:"sha1"`
	SHA256   string     `json:"sha256"`
	AVLabels [][]string `json:"av_labels"`
}

func extractLB(line []byte) Extraction {
	var rec lbRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return skip(fmt.Errorf("%w: %v", apperrors.ErrMalformedRecord, err), "")
	}
	if rec.AVLabels == nil {
		return skip(apperrors.ErrNoScanData, rec.MD5)
	}

	info := &models.SampleInfo{MD5: rec.MD5, SHA1: rec.SHA1, SHA256: rec.SHA256}
	for _, pair := range rec.AVLabels {
		if len(pair) < 2 {
			continue
		}
		info.Labels = append(info.Labels, models.VendorLabel{Vendor: pair[0], Label: CleanLabel(pair[1])})
	}
	return Extraction{Sample: info, Hint: rec.MD5}
}

type vt2Record struct {
	MD5    string          `json:"md5"`
	SHA1   string          `json:"sha1"`
	SHA256 string          `json:"sha256"`
	Scans  json.RawMessage `json:"scans"`
	Tags   []string        `json:"tags"`
}

type vt2Scan struct {
	Detected bool    `json:"detected"`
	Result   *string `json:"result"`
}

func extractVT2(line []byte) Extraction {
	var rec vt2Record
	if err := json.Unmarshal(line, &rec); err != nil {
		return skip(fmt.Errorf("%w: %v", apperrors.ErrMalformedRecord, err), "")
	}
	if isNull(rec.Scans) {
		return skip(apperrors.ErrNoScanData, rec.MD5)
	}

	info := &models.SampleInfo{MD5: rec.MD5, SHA1: rec.SHA1, SHA256: rec.SHA256, VendorTags: rec.Tags}
	err := forEachOrdered(rec.Scans, func(vendor string, dec *json.Decoder) error {
		var scan vt2Scan
		if err := dec.Decode(&scan); err != nil {
			return err
		}
		if scan.Detected && scan.Result != nil {
			info.Labels = append(info.Labels, models.VendorLabel{Vendor: vendor, Label: CleanLabel(*scan.Result)})
		}
		return nil
	})
	if err != nil {
		return skip(fmt.Errorf("%w: scans: %v", apperrors.ErrMalformedRecord, err), rec.MD5)
	}
	return Extraction{Sample: info, Hint: rec.MD5}
}

type vt3Record struct {
	Data struct {
		Attributes struct {
			MD5     string          `json:"md5"`
			SHA1    string          `json:"sha1"`
			SHA256  string          `json:"sha256"`
			Results json.RawMessage `json:"last_analysis_results"`
			Tags    []string        `json:"tags"`
		} `json:"attributes"`
	} `json:"data"`
	// Top-level md5 only names skipped records in logs
	MD5 string `json:"md5"`
}

type vt3Result struct {
	Result *string `json:"result"`
}

func extractVT3(line []byte) Extraction {
	var rec vt3Record
	if err := json.Unmarshal(line, &rec); err != nil {
		return skip(fmt.Errorf("%w: %v", apperrors.ErrMalformedRecord, err), "")
	}
	attrs := rec.Data.Attributes
	hint := attrs.MD5
	if hint == "" {
		hint = rec.MD5
	}
	if isNull(attrs.Results) {
		return skip(apperrors.ErrNoScanData, hint)
	}

	info := &models.SampleInfo{MD5: attrs.MD5, SHA1: attrs.SHA1, SHA256: attrs.SHA256, VendorTags: attrs.Tags}
	err := forEachOrdered(attrs.Results, func(vendor string, dec *json.Decoder) error {
		var res vt3Result
		if err := dec.Decode(&res); err != nil {
			return err
		}
		if res.Result != nil {
			info.Labels = append(info.Labels, models.VendorLabel{Vendor: vendor, Label: CleanLabel(*res.Result)})
		}
		return nil
	})
	if err != nil {
		return skip(fmt.Errorf("%w: last_analysis_results: %v", apperrors.ErrMalformedRecord, err), hint)
	}
	return Extraction{Sample: info, Hint: hint}
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// forEachOrdered walks a JSON object in document order. Engine order decides
// which vendor keeps a label shared by several engines, so map decoding is not enough.
func forEachOrdered(raw json.RawMessage, fn func(key string, dec *json.Decoder) error) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		if err := fn(key, dec); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	_, err = dec.Token()
	return err
}

// CleanLabel folds compatibility characters, drops anything outside printable
// ASCII, and trims surrounding whitespace
func CleanLabel(label string) string {
	folded := norm.NFKC.String(label)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if isPrintableASCII(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func isPrintableASCII(r rune) bool {
	return (r >= 0x20 && r < 0x7f) || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
}
