package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/google/uuid"

	"github.com/acheong08/avtag/internal/aggregate"
	"github.com/acheong08/avtag/internal/config"
	"github.com/acheong08/avtag/internal/labels"
	"github.com/acheong08/avtag/internal/pipeline"
	"github.com/acheong08/avtag/internal/report"
	"github.com/acheong08/avtag/internal/taxonomy"
	"github.com/acheong08/avtag/pkg/models"
)

// ProgressSender interface for sending progress updates
type ProgressSender interface {
	SendMessage(msg Message)
	SendLog(message, level string)
	SendError(message string, err error)
}

type nopSender struct{}

func (nopSender) SendMessage(Message)     {}
func (nopSender) SendLog(string, string)  {}
func (nopSender) SendError(string, error) {}

// Engine holds the rules shared by every run
type Engine struct {
	tax          *taxonomy.Taxonomy
	labeler      *labels.Labeler
	aliasLabeler *labels.Labeler
	threshold    int
	metrics      *Metrics
}

// NewEngine builds the labelers once. Both are safe for concurrent runs.
func NewEngine(rs *config.RuleSet, threshold, cacheSize int, metrics *Metrics) (*Engine, error) {
	labeler, err := rs.Labeler(false, cacheSize)
	if err != nil {
		return nil, err
	}
	aliasLabeler, err := rs.Labeler(true, cacheSize)
	if err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Engine{
		tax:          rs.Taxonomy,
		labeler:      labeler,
		aliasLabeler: aliasLabeler,
		threshold:    threshold,
		metrics:      metrics,
	}, nil
}

// Metrics returns the engine's counters
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// Request is one labeling job
type Request struct {
	Format  labels.Format
	Kind    models.IdentityKind
	Options LabelOptions
}

// NewRequest validates the client's format and hash names
func NewRequest(format, hash string, opts LabelOptions) (Request, error) {
	f, err := labels.ParseFormat(format)
	if err != nil {
		return Request{}, err
	}
	kind, err := models.ParseIdentityKind(hash)
	if err != nil {
		return Request{}, err
	}
	return Request{Format: f, Kind: kind, Options: opts}, nil
}

// Result is the outcome of one run
type Result struct {
	RunID   string
	Lines   []string
	Summary *SummaryPayload
}

// Session runs one labeling request and streams its output to a sender
type Session struct {
	engine *Engine
	sender ProgressSender
	runID  string
}

// NewSession creates a session with a fresh run id. A nil sender discards messages.
func NewSession(engine *Engine, sender ProgressSender) *Session {
	if sender == nil {
		sender = nopSender{}
	}
	return &Session{
		engine: engine,
		sender: sender,
		runID:  uuid.NewString(),
	}
}

// RunID identifies the session in logs and messages
func (s *Session) RunID() string {
	return s.runID
}

// log sends a log message both to the client and to the console
func (s *Session) log(message, level string) {
	s.sender.SendLog(message, level)

	prefix := "[INFO]"
	switch level {
	case "warning":
		prefix = "[WARN]"
	case "error":
		prefix = "[ERROR]"
	}
	log.Printf("%s %s", prefix, message)
}

func (s *Session) logf(format string, args ...any) {
	s.log(fmt.Sprintf(format, args...), "info")
}

// Run labels every record of in. Each call gets its own pipeline context.
func (s *Session) Run(ctx context.Context, req Request, in io.Reader) (*Result, error) {
	s.logf("Run %s started (format %s, hash %s)", s.runID, req.Format, req.Kind)

	tagger := s.engine.labeler
	if req.Options.AliasDetect {
		tagger = s.engine.aliasLabeler
	}

	var gt map[string]string
	if len(req.Options.GroundTruth) > 0 {
		gt = req.Options.GroundTruth
	}
	pc := pipeline.NewContext(req.Kind, gt, aggregate.Options{
		MaltaggedThreshold: s.engine.threshold,
		Aliases:            req.Options.AliasDetect,
		Vendors:            req.Options.VendorTags,
	})

	runner := pipeline.NewRunner(pipeline.Config{
		Extractor: labels.NewExtractor(req.Format, req.Kind),
		Tagger:    tagger,
		Taxonomy:  s.engine.tax,
		Formatter: &pipeline.Formatter{
			Compat:      req.Options.Compat,
			FullPaths:   req.Options.FullPaths,
			GroundTruth: pc.HasGroundTruth(),
			PUP:         req.Options.PUP,
			VendorTags:  req.Options.VTTags,
			Taxonomy:    s.engine.tax,
		},
		Progress:    sessionProgress{s},
		LogCallback: s.sender.SendLog,
	})

	sink := &lineSink{
		lines: make([]string, 0),
		emit: func(line string) {
			s.sender.SendMessage(NewSampleMessage(s.runID, line))
		},
	}
	err := runner.RunReader(ctx, pc, "run "+s.runID, in, sink)
	counters := pc.Aggregate.Counters()
	s.engine.metrics.Observe(counters)
	if err != nil {
		status := "error"
		if errors.Is(err, context.Canceled) {
			status = "cancelled"
		}
		s.engine.metrics.RunFinished(status)
		return nil, fmt.Errorf("run %s: %w", s.runID, err)
	}
	s.engine.metrics.RunFinished("ok")

	summary := s.summary(pc, req)
	s.sender.SendMessage(NewSummaryMessage(summary))
	s.log(report.Summary(counters, len(gt)), "info")

	return &Result{RunID: s.runID, Lines: sink.lines, Summary: summary}, nil
}

func (s *Session) summary(pc *pipeline.Context, req Request) *SummaryPayload {
	agg := pc.Aggregate
	sum := &SummaryPayload{RunID: s.runID, Stats: agg.Stats()}
	if req.Options.AliasDetect {
		sum.Aliases = agg.Aliases().Aliases()
	}
	if req.Options.VendorTags {
		vt := agg.Vendors()
		sum.VendorTags = make(map[string][]aggregate.VendorCount)
		for _, tag := range vt.Tags() {
			sum.VendorTags[tag] = vt.Vendors(tag)
		}
	}
	if pc.HasGroundTruth() {
		p, r, f := pc.Evaluate().Percent()
		sum.Evaluation = &Evaluation{Precision: p, Recall: r, F1: f}
	}
	return sum
}

type sessionProgress struct {
	s *Session
}

func (p sessionProgress) SourceStarted(string) {}

func (p sessionProgress) RecordsRead(total int) {
	p.s.sender.SendMessage(NewProgressMessage(p.s.runID, total, fmt.Sprintf("%d JSON read", total)))
}

func (p sessionProgress) SourceFinished(_ string, total int) {
	p.s.sender.SendMessage(NewProgressMessage(p.s.runID, total, "All records read"))
}

// lineSink splits runner output into lines
type lineSink struct {
	buf   []byte
	lines []string
	emit  func(line string)
}

func (w *lineSink) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := string(w.buf[:i])
		w.buf = w.buf[i+1:]
		w.lines = append(w.lines, line)
		w.emit(line)
	}
	return len(p), nil
}
