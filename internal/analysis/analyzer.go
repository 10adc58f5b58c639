// Package analysis asks a language model to confirm tag aliases found by
// co-occurrence and turns confirmed ones into tagging rules.
package analysis

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"charm.land/fantasy"
	"charm.land/fantasy/providers/openai"

	"github.com/acheong08/avtag/internal/aggregate"
)

const systemPrompt = `You are a malware analyst maintaining the tag vocabulary of an antivirus label normalizer. Antivirus engines name the same threat differently, so two tags that almost always appear on the same samples may be aliases of one concept.

For each pair you receive, decide whether both tags denote the same concept (the same malware family, class, behavior or file property), or whether they only co-occur because they describe different aspects of the same samples.

JUDGMENT CRITERIA:
- Family names that are spelling variants, abbreviations or vendor-specific names of one family are aliases
- A family and its class (for example a banking trojan family and "banker") are NOT aliases
- A platform or file type and a family are NOT aliases
- High co-occurrence alone is not proof; rely on your knowledge of vendor naming

If the tags are aliases, choose as canonical the name most widely used by the security community.

Use the submit_verdict tool to provide your verdict and a short justification.`

// Judge decides whether a pair of tags are aliases
type Judge interface {
	Judge(ctx context.Context, pair aggregate.AliasRow) (AliasVerdict, error)
}

// modelJudge asks a language model through a fantasy agent
type modelJudge struct {
	model fantasy.LanguageModel
}

// NewModelJudge creates a judge backed by an OpenAI compatible endpoint
func NewModelJudge(apiKey, baseURL, modelName string) (Judge, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required for alias review")
	}

	provider, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithAPIKey(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI provider: %w", err)
	}

	ctx := context.Background()
	model, err := provider.LanguageModel(ctx, modelName)
	if err != nil {
		return nil, fmt.Errorf("failed to create language model: %w", err)
	}

	return &modelJudge{model: model}, nil
}

func (j *modelJudge) Judge(ctx context.Context, pair aggregate.AliasRow) (AliasVerdict, error) {
	verdict := AliasVerdict{}
	submitted := false
	submitVerdictTool := fantasy.NewAgentTool(
		"submit_verdict",
		"Submit your verdict for this tag pair", func(
			_ context.Context,
			input AliasVerdict,
			_ fantasy.ToolCall,
		) (fantasy.ToolResponse, error) {
			verdict = input
			submitted = true
			return fantasy.ToolResponse{
				Content: "Verdict received",
			}, nil
		})

	agent := fantasy.NewAgent(j.model, fantasy.WithSystemPrompt(systemPrompt), fantasy.WithTools(submitVerdictTool))
	result, err := agent.Generate(ctx, fantasy.AgentCall{
		Prompt: formatReviewPrompt(pair),
	})
	if err != nil {
		return AliasVerdict{}, fmt.Errorf("agent generation failed: %w", err)
	}
	if !submitted {
		return AliasVerdict{}, fmt.Errorf("no verdict submitted, model said: %.200s", result.Response.Content.Text())
	}
	return verdict, nil
}

// formatReviewPrompt describes one candidate pair
func formatReviewPrompt(pair aggregate.AliasRow) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Are the antivirus label tags %q and %q aliases?\n\n", pair.X, pair.Y))
	sb.WriteString("CO-OCCURRENCE:\n")
	sb.WriteString(fmt.Sprintf("  - samples tagged %s: %d\n", pair.X, pair.XCount))
	sb.WriteString(fmt.Sprintf("  - samples tagged %s: %d\n", pair.Y, pair.YCount))
	sb.WriteString(fmt.Sprintf("  - samples tagged with both: %d\n", pair.Together))
	sb.WriteString(fmt.Sprintf("  - share of %s samples also tagged %s: %.2f\n", pair.X, pair.Y, pair.F))
	sb.WriteString(fmt.Sprintf("  - share of %s samples also tagged %s: %.2f\n", pair.Y, pair.X, pair.FInv))
	sb.WriteString("\nUse the submit_verdict tool to provide your verdict.")

	return sb.String()
}

// Candidates keeps pairs that co-occur often enough to be worth a review
func Candidates(rows []aggregate.AliasRow, minCount int, minF float64) []aggregate.AliasRow {
	var out []aggregate.AliasRow
	for _, r := range rows {
		if r.Together >= minCount && r.F >= minF {
			out = append(out, r)
		}
	}
	return out
}

// Reviewer runs a Judge over candidate pairs
type Reviewer struct {
	judge     Judge
	opts      Options
	cache     *VerdictCache
	semaphore chan struct{} // Limits concurrent model calls
}

// NewReviewer creates a reviewer, loading any cached verdicts
func NewReviewer(judge Judge, opts Options) (*Reviewer, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	cache, err := LoadVerdictCache(opts.CachePath)
	if err != nil {
		return nil, err
	}
	return &Reviewer{
		judge:     judge,
		opts:      opts,
		cache:     cache,
		semaphore: make(chan struct{}, opts.Concurrency),
	}, nil
}

// Review judges every candidate among rows in parallel. Results keep the
// order of rows. Verdicts obtained before a failure are still cached.
func (r *Reviewer) Review(ctx context.Context, rows []aggregate.AliasRow) ([]Review, error) {
	candidates := Candidates(rows, r.opts.MinCount, r.opts.MinF)
	if len(candidates) == 0 {
		return nil, nil
	}

	log.Printf("[INFO] Reviewing %d alias candidates (max %d concurrent)", len(candidates), cap(r.semaphore))

	reviews := make([]Review, len(candidates))
	var wg sync.WaitGroup
	errChan := make(chan error, len(candidates))

	for i, pair := range candidates {
		if v, ok := r.cache.Get(pair.X, pair.Y); ok {
			reviews[i] = Review{Pair: pair, Verdict: v, Cached: true}
			continue
		}

		wg.Add(1)
		go func(i int, p aggregate.AliasRow) {
			defer wg.Done()

			// Acquire semaphore
			select {
			case r.semaphore <- struct{}{}:
			case <-ctx.Done():
				errChan <- fmt.Errorf("review cancelled for %s/%s", p.X, p.Y)
				return
			}

			v, err := r.judge.Judge(ctx, p)
			<-r.semaphore // Release semaphore

			if err != nil {
				errChan <- fmt.Errorf("review failed for %s/%s: %w", p.X, p.Y, err)
				return
			}
			r.cache.Put(p.X, p.Y, v)
			reviews[i] = Review{Pair: p, Verdict: v}
			log.Printf("[INFO] %s/%s - alias: %v (confidence: %.2f)", p.X, p.Y, v.IsAlias, v.Confidence)
		}(i, pair)
	}

	wg.Wait()
	close(errChan)

	if err := r.cache.Save(); err != nil {
		return nil, err
	}

	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errs[0]
	}

	log.Printf("[INFO] Completed review of %d alias candidates", len(candidates))
	return reviews, nil
}
