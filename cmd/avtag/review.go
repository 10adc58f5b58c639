package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/acheong08/avtag/internal/analysis"
	"github.com/acheong08/avtag/internal/report"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// runReviewCommand asks a language model about alias candidates and writes
// confirmed aliases as tagging rules
func runReviewCommand(args []string) {
	// Load .env file if it exists
	_ = godotenv.Load()

	fs := flag.NewFlagSet("review", flag.ExitOnError)
	var (
		aliasPath     = fs.String("alias", "", "alias file written by 'avtag label -aliasdetect' (required)")
		outputPath    = fs.String("out", "", "tagging rules output file (default: stdout)")
		cachePath     = fs.String("cache", "", "JSON file caching verdicts between runs")
		minCount      = fs.Int("min-count", analysis.DefaultMinCount, "least co-occurrence count to review a pair")
		minF          = fs.Float64("min-f", analysis.DefaultMinF, "least |t1^t2|/|t1| to review a pair")
		minConfidence = fs.Float64("min-confidence", analysis.DefaultMinConfidence, "least model confidence to accept an alias")
		concurrency   = fs.Int("concurrency", analysis.DefaultConcurrency, "parallel model calls")
		baseURL       = fs.String("base-url", getEnv("AVTAG_LLM_BASE_URL", "https://api.openai.com/v1"), "OpenAI compatible endpoint")
		model         = fs.String("model", getEnv("AVTAG_LLM_MODEL", "gpt-5-mini"), "model name")
	)
	fs.Parse(args)

	if *aliasPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -alias is required")
		fs.Usage()
		os.Exit(1)
	}

	rows, err := report.ReadAliasFile(*aliasPath)
	if err != nil {
		log.Fatalf("avtag: %v", err)
	}

	judge, err := analysis.NewModelJudge(os.Getenv("OPENAI_API_KEY"), *baseURL, *model)
	if err != nil {
		log.Fatalf("avtag: %v", err)
	}
	reviewer, err := analysis.NewReviewer(judge, analysis.Options{
		MinCount:    *minCount,
		MinF:        *minF,
		Concurrency: *concurrency,
		CachePath:   *cachePath,
	})
	if err != nil {
		log.Fatalf("avtag: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	reviews, err := reviewer.Review(ctx, rows)
	if err != nil {
		log.Fatalf("avtag: %v", err)
	}

	confirmed := analysis.Confirmed(reviews, *minConfidence)
	fmt.Fprintf(os.Stderr, "[-] Pairs: %d Reviewed: %d Confirmed: %d\n", len(rows), len(reviews), confirmed.Len())

	write := func(w io.Writer) error {
		return analysis.WriteRules(w, reviews, *minConfidence)
	}
	if *outputPath == "" {
		if err := write(os.Stdout); err != nil {
			log.Fatalf("avtag: %v", err)
		}
		return
	}
	if err := report.WriteFile(*outputPath, write); err != nil {
		log.Fatalf("avtag: %v", err)
	}
}
