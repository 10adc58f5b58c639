package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/acheong08/avtag/internal/config"
	"github.com/acheong08/avtag/internal/labels"
	"github.com/acheong08/avtag/internal/parser"
	"github.com/acheong08/avtag/internal/pipeline"
	"github.com/acheong08/avtag/internal/report"
)

// cliProgress reports progress on stderr
type cliProgress struct {
	w io.Writer
}

func (p *cliProgress) SourceStarted(source string) {
	fmt.Fprintf(p.w, "[-] Processing input file %s\n", source)
}

func (p *cliProgress) RecordsRead(total int) {
	fmt.Fprintf(p.w, "\r[-] %d JSON read", total)
}

func (p *cliProgress) SourceFinished(_ string, total int) {
	fmt.Fprintf(p.w, "\r[-] %d JSON read\n", total)
}

func labelFlags(opts *config.Options, vt, lb *stringList) *flag.FlagSet {
	fs := flag.NewFlagSet("label", flag.ExitOnError)

	fs.Var(vt, "vt", "file with VirusTotal reports, one JSON per line (repeatable)")
	fs.Var(lb, "lb", "file with simplified reports {md5,sha1,sha256,av_labels}, one JSON per line (repeatable)")
	fs.StringVar(&opts.VTDir, "vtdir", opts.VTDir, "directory of VirusTotal report files")
	fs.StringVar(&opts.LBDir, "lbdir", opts.LBDir, "directory of simplified report files")
	fs.BoolVar(&opts.VT3, "vt3", opts.VT3, "input reports are VirusTotal API v3")
	fs.StringVar(&opts.GroundTruth, "gt", opts.GroundTruth, "ground truth file, hash<TAB>family per line")
	fs.BoolVar(&opts.VTTags, "vtt", opts.VTTags, "print the report's own tags column")
	fs.StringVar(&opts.Tagging, "tag", opts.Tagging, "tagging rules file")
	fs.StringVar(&opts.Taxonomy, "tax", opts.Taxonomy, "taxonomy file")
	fs.StringVar(&opts.Expansion, "exp", opts.Expansion, "expansion rules file")
	fs.StringVar(&opts.AVs, "av", opts.AVs, "file with the engine names to use, one per line")
	fs.BoolVar(&opts.VendorTags, "avtags", opts.VendorTags, "write the engines contributing each tag to <prefix>.avtags")
	fs.BoolVar(&opts.PUP, "pup", opts.PUP, "print whether each sample is potentially unwanted")
	fs.BoolVar(&opts.FullPaths, "p", opts.FullPaths, "print full taxonomy paths")
	fs.BoolVar(&opts.FullPaths, "path", opts.FullPaths, "print full taxonomy paths")
	fs.StringVar(&opts.Hash, "hash", opts.Hash, "hash naming each sample: md5, sha1 or sha256")
	fs.BoolVar(&opts.Compat, "c", opts.Compat, "compatibility mode: print id and family only")
	fs.BoolVar(&opts.AliasDetect, "aliasdetect", opts.AliasDetect, "write tag co-occurrence to <prefix>.alias")
	fs.BoolVar(&opts.Stats, "stats", opts.Stats, "write tag category coverage to <prefix>.stats")
	fs.IntVar(&opts.MaltaggedThreshold, "maltagged", opts.MaltaggedThreshold, "engine labels a sample needs to count in category coverage")
	fs.StringVar(&opts.Output, "out", opts.Output, "report file prefix (default: first input's base name)")
	fs.String("config", "", "YAML config file")

	return fs
}

func runLabelCommand(args []string) {
	opts, err := config.Load(configPath(args))
	if err != nil {
		log.Fatalf("avtag: %v", err)
	}

	var vt, lb stringList
	fs := labelFlags(opts, &vt, &lb)
	fs.Parse(args)
	if len(vt) > 0 {
		opts.VT = vt
	}
	if len(lb) > 0 {
		opts.LB = lb
	}

	if err := opts.Validate(); err != nil {
		log.Fatalf("avtag: %v", err)
	}
	inputs, err := opts.Inputs()
	if err != nil {
		log.Fatalf("avtag: %v", err)
	}
	if err := parser.ValidateInputs(inputs); err != nil {
		log.Fatalf("avtag: %v", err)
	}

	var gt *parser.GroundTruth
	if opts.GroundTruth != "" {
		gt, err = parser.ReadGroundTruth(opts.GroundTruth)
		if err != nil {
			log.Fatalf("avtag: %v", err)
		}
	}
	kind, err := opts.IdentityKind(gt)
	if err != nil {
		log.Fatalf("avtag: %v", err)
	}

	rs, err := opts.LoadRules()
	if err != nil {
		log.Fatalf("avtag: %v", err)
	}
	labeler, err := rs.Labeler(opts.AliasDetect, opts.CacheSize)
	if err != nil {
		log.Fatalf("avtag: %v", err)
	}

	var gtFamilies map[string]string
	if gt != nil {
		gtFamilies = gt.Families
	}
	pc := pipeline.NewContext(kind, gtFamilies, opts.AggregateOptions())

	runner := pipeline.NewRunner(pipeline.Config{
		Extractor: labels.NewExtractor(opts.Format(), kind),
		Tagger:    labeler,
		Taxonomy:  rs.Taxonomy,
		Formatter: &pipeline.Formatter{
			Compat:      opts.Compat,
			FullPaths:   opts.FullPaths,
			GroundTruth: pc.HasGroundTruth(),
			PUP:         opts.PUP,
			VendorTags:  opts.VTTags,
			Taxonomy:    rs.Taxonomy,
		},
		Progress: &cliProgress{w: os.Stderr},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out := bufio.NewWriter(os.Stdout)
	runErr := runner.Run(ctx, pc, inputs, out)
	if err := out.Flush(); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to write output: %w", err)
	}
	if runErr != nil {
		log.Fatalf("[ERROR] avtag: %v", runErr)
	}

	fmt.Fprintln(os.Stderr, report.Summary(pc.Aggregate.Counters(), gt.Len()))
	if pc.HasGroundTruth() {
		fmt.Fprintln(os.Stderr, report.Evaluation(pc.Evaluate()))
	}

	if err := writeReports(opts, opts.OutputPrefix(inputs), pc); err != nil {
		log.Fatalf("[ERROR] avtag: %v", err)
	}
}

// writeReports writes the corpus files enabled by opts
func writeReports(opts *config.Options, prefix string, pc *pipeline.Context) error {
	agg := pc.Aggregate
	if opts.Stats {
		if err := report.WriteFile(prefix+".stats", func(w io.Writer) error {
			return report.WriteStats(w, agg.Stats())
		}); err != nil {
			return err
		}
	}
	if opts.VendorTags {
		if err := report.WriteFile(prefix+".avtags", func(w io.Writer) error {
			return report.WriteVendorTags(w, agg.Vendors())
		}); err != nil {
			return err
		}
	}
	if opts.AliasDetect {
		if err := report.WriteFile(prefix+".alias", func(w io.Writer) error {
			return report.WriteAliases(w, agg.Aliases().Aliases())
		}); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "[-] Alias data in %s.alias\n", prefix)
	}
	return nil
}
