// Package report writes the corpus level files produced at the end of a run.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/acheong08/avtag/internal/aggregate"
	"github.com/acheong08/avtag/internal/clustering"
	"github.com/acheong08/avtag/pkg/models"
)

// AliasHeader is the first line of an alias file
const AliasHeader = "# t1\tt2\t|t1|\t|t2|\t|t1^t2|\t|t1^t2|/|t1|\t|t1^t2|/|t2|"

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// WriteStats writes sample and category coverage counts
func WriteStats(w io.Writer, stats *aggregate.Stats) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Samples: %d\n", stats.Reads)
	fmt.Fprintf(bw, "Tagged (all): %d (%.01f%%)\n", stats.Tagged, percent(stats.Tagged, stats.Reads))
	fmt.Fprintf(bw, "Tagged (VT>%d): %d (%.01f%%)\n", stats.MaltaggedThreshold, stats.Maltagged, percent(stats.Maltagged, stats.Reads))
	for _, c := range models.CoverageCategories {
		n := stats.Categories[c]
		fmt.Fprintf(bw, "%s: %d (%.01f%%)\n", c, n, percent(n, stats.Maltagged))
	}
	return bw.Flush()
}

// WriteVendorTags writes, per tag, the engines that produced it
func WriteVendorTags(w io.Writer, vt *aggregate.VendorTags) error {
	bw := bufio.NewWriter(w)
	for _, tag := range vt.Tags() {
		bw.WriteString(tag)
		bw.WriteByte('\t')
		for _, vc := range vt.Vendors(tag) {
			fmt.Fprintf(bw, "%s|%d,", vc.Vendor, vc.Count)
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// WriteAliases writes the alias table with its header
func WriteAliases(w io.Writer, rows []aggregate.AliasRow) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, AliasHeader)
	for _, r := range rows {
		fmt.Fprintf(bw, "%s\t%s\t%d\t%d\t%d\t%0.2f\t%0.2f\n", r.X, r.Y, r.XCount, r.YCount, r.Together, r.F, r.FInv)
	}
	return bw.Flush()
}

// ReadAliases parses an alias file back into rows
func ReadAliases(r io.Reader) ([]aggregate.AliasRow, error) {
	var rows []aggregate.AliasRow
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		row, err := parseAliasRow(line)
		if err != nil {
			return nil, fmt.Errorf("alias line %d: %w", lineNo, err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading aliases: %w", err)
	}
	return rows, nil
}

func parseAliasRow(line string) (aggregate.AliasRow, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != 7 {
		return aggregate.AliasRow{}, fmt.Errorf("expected 7 fields, got %d", len(fields))
	}
	ints := make([]int, 3)
	for i := range ints {
		n, err := strconv.Atoi(fields[2+i])
		if err != nil {
			return aggregate.AliasRow{}, fmt.Errorf("invalid count %q: %w", fields[2+i], err)
		}
		ints[i] = n
	}
	f, err := strconv.ParseFloat(fields[5], 64)
	if err != nil {
		return aggregate.AliasRow{}, fmt.Errorf("invalid ratio %q: %w", fields[5], err)
	}
	finv, err := strconv.ParseFloat(fields[6], 64)
	if err != nil {
		return aggregate.AliasRow{}, fmt.Errorf("invalid ratio %q: %w", fields[6], err)
	}
	return aggregate.AliasRow{
		X: fields[0], Y: fields[1],
		XCount: ints[0], YCount: ints[1], Together: ints[2],
		F: f, FInv: finv,
	}, nil
}

// ReadAliasFile parses an alias file from disk
func ReadAliasFile(path string) ([]aggregate.AliasRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open alias file: %w", err)
	}
	defer file.Close()

	return ReadAliases(file)
}

// Summary is the one-line run summary printed to stderr
func Summary(c aggregate.Counters, groundTruth int) string {
	return fmt.Sprintf("[-] Samples: %d NoScans: %d NoTags: %d Failed: %d GroundTruth: %d",
		c.Reads, c.NoScans, c.NoTags(), c.Failed, groundTruth)
}

// Evaluation renders clustering accuracy as percentages
func Evaluation(res clustering.Result) string {
	p, r, f := res.Percent()
	return fmt.Sprintf("Precision: %.2f\tRecall: %.2f\tF1-Measure: %.2f", p, r, f)
}

// WriteFile creates path and fills it with write, returning any write or close error
func WriteFile(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(file); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}
