package pipeline

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/acheong08/avtag/internal/aggregate"
	apperrors "github.com/acheong08/avtag/internal/errors"
	"github.com/acheong08/avtag/internal/labels"
	"github.com/acheong08/avtag/internal/parser"
	"github.com/acheong08/avtag/pkg/models"
)

// DefaultProgressEvery is how many records pass between progress reports
const DefaultProgressEvery = 100

// Config wires a Runner
type Config struct {
	Extractor Extractor
	Tagger    Tagger
	Taxonomy  Taxonomy
	Formatter *Formatter

	Progress      Progress
	ProgressEvery int
	// MaxRecordSize bounds one input line; 0 means parser.MaxRecordSize
	MaxRecordSize int
	Logger        *log.Logger
	// LogCallback receives every log line, e.g. to forward it to a client
	LogCallback func(message, level string)
}

// Runner streams records through extraction, tagging and output
type Runner struct {
	extractor Extractor
	tagger    Tagger
	tax       Taxonomy
	formatter *Formatter

	progress      Progress
	progressEvery int
	maxRecordSize int
	logger        *log.Logger
	logCallback   func(message, level string)
}

// NewRunner creates a Runner
func NewRunner(cfg Config) *Runner {
	r := &Runner{
		extractor:     cfg.Extractor,
		tagger:        cfg.Tagger,
		tax:           cfg.Taxonomy,
		formatter:     cfg.Formatter,
		progress:      cfg.Progress,
		progressEvery: cfg.ProgressEvery,
		maxRecordSize: cfg.MaxRecordSize,
		logger:        cfg.Logger,
		logCallback:   cfg.LogCallback,
	}
	if r.progress == nil {
		r.progress = nopProgress{}
	}
	if r.progressEvery <= 0 {
		r.progressEvery = DefaultProgressEvery
	}
	if r.maxRecordSize <= 0 {
		r.maxRecordSize = parser.MaxRecordSize
	}
	if r.logger == nil {
		r.logger = log.Default()
	}
	if r.formatter == nil {
		r.formatter = &Formatter{Taxonomy: cfg.Taxonomy}
	}
	return r
}

func (r *Runner) log(message, level string) {
	if r.logCallback != nil {
		r.logCallback(message, level)
	}

	prefix := "[INFO]"
	switch level {
	case "warning":
		prefix = "[WARN]"
	case "error":
		prefix = "[ERROR]"
	}
	r.logger.Printf("%s %s", prefix, message)
}

func (r *Runner) logf(level, format string, args ...any) {
	r.log(fmt.Sprintf(format, args...), level)
}

// Run processes every source in order, closing each before opening the next
func (r *Runner) Run(ctx context.Context, pc *Context, sources []string, out io.Writer) error {
	for _, src := range sources {
		if err := r.RunFile(ctx, pc, src, out); err != nil {
			return err
		}
	}
	return nil
}

// RunFile processes one input file
func (r *Runner) RunFile(ctx context.Context, pc *Context, path string, out io.Writer) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return r.RunReader(ctx, pc, path, file, out)
}

// RunReader processes the records of one stream. Per-record problems are
// counted and logged; only I/O errors and cancellation end the run.
func (r *Runner) RunReader(ctx context.Context, pc *Context, source string, in io.Reader, out io.Writer) error {
	r.progress.SourceStarted(source)
	records := parser.NewRecordReaderSize(in, r.maxRecordSize)
	agg := pc.Aggregate

	for {
		rec, ok := records.Next()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		agg.RecordRead()
		if reads := agg.Counters().Reads; reads%r.progressEvery == 0 {
			r.progress.RecordsRead(reads)
		}

		if rec.Oversized {
			agg.RecordSkip()
			err := fmt.Errorf("%w: line exceeds %d bytes", apperrors.ErrMalformedRecord, r.maxRecordSize)
			r.logf("warning", "%v", apperrors.NewRecordError(source, rec.Line, "", err))
			continue
		}

		ext := r.extractor.Extract(rec.Data)
		if !ext.OK() {
			agg.RecordSkip()
			r.logSkip(source, rec, ext)
			continue
		}

		info := ext.Sample
		id := info.ID(pc.Kind)
		if len(info.Labels) == 0 {
			agg.RecordEmpty()
			if err := writeLine(out, r.formatter.NoLabels(id)); err != nil {
				return err
			}
			continue
		}

		res, err := r.processSample(pc, id, info)
		if err != nil {
			agg.RecordFailure()
			r.logf("error", "%v", apperrors.NewRecordError(source, rec.Line, id, err))
			continue
		}

		agg.Commit(res.update)
		if res.trackFamily {
			pc.FirstToken[id] = res.family
		}
		if err := writeLine(out, res.line); err != nil {
			return err
		}
	}

	if err := records.Err(); err != nil {
		return fmt.Errorf("%s: %w", source, err)
	}
	r.progress.SourceFinished(source, agg.Counters().Reads)
	return nil
}

func (r *Runner) logSkip(source string, rec parser.Record, ext labels.Extraction) {
	if ext.Hint != "" {
		r.logf("warning", "%v", apperrors.NewRecordError(source, rec.Line, ext.Hint, ext.Err))
		return
	}
	r.logf("warning", "%v: could not process: %.200s", apperrors.NewRecordError(source, rec.Line, "", ext.Err), rec.Data)
}

// sampleResult is the complete contribution of one sample, committed only on success
type sampleResult struct {
	line        string
	update      aggregate.SampleUpdate
	family      string
	trackFamily bool
}

func (r *Runner) processSample(pc *Context, id string, info *models.SampleInfo) (res sampleResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %w", apperrors.ErrSampleFailed, &apperrors.PanicError{Value: rec})
		}
	}()

	tv := r.tagger.SampleTags(info)
	ranked := r.tagger.RankTags(tv)
	support := len(info.Labels)

	update := aggregate.SampleUpdate{
		Tagged:  len(ranked) > 0,
		Support: support,
		Vendors: tv,
	}
	if update.Tagged {
		update.Alias = aggregate.PlanAliasUpdate(ranked.Names())
		update.Categories = make([]models.Category, 0, len(ranked))
		for _, t := range ranked {
			update.Categories = append(update.Categories, r.tax.Category(t.Tag))
		}
	}

	row := Row{
		ID:      id,
		Support: support,
		Tags:    ranked,
	}
	trackFamily := r.formatter.Compat || pc.HasGroundTruth()
	if trackFamily {
		row.Family = SelectFamily(id, ranked, r.tax)
	}
	if pc.HasGroundTruth() {
		row.GroundTruth = pc.GroundTruth[id]
	}
	if r.formatter.PUP {
		row.IsPUP = r.tagger.IsPUP(ranked)
	}
	if r.formatter.VendorTags {
		row.VendorTags = info.VendorTags
	}

	return sampleResult{
		line:        r.formatter.Format(row),
		update:      update,
		family:      row.Family,
		trackFamily: trackFamily,
	}, nil
}

func writeLine(w io.Writer, line string) error {
	if _, err := io.WriteString(w, line+"\n"); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
