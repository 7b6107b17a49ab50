package organizer

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"photo-curator/internal/ai"
	"photo-curator/internal/orchestrator"
)

// Report is the analytics summary of one curation run.
type Report struct {
	RunID          string         `json:"run_id"`
	Provider       string         `json:"provider"`
	StartedAt      time.Time      `json:"started_at"`
	Duration       time.Duration  `json:"duration_ns"`
	TotalPhotos    int            `json:"total_photos"`
	Analyzed       int            `json:"analyzed"`
	Cached         int            `json:"cached"`
	Failed         int            `json:"failed"`
	SkippedFormats int            `json:"skipped_formats"`
	FailureReasons map[string]int `json:"failure_reasons,omitempty"`
	Tiers          map[string]int `json:"tiers"`
	Categories     map[string]int `json:"categories"`
	AverageScore   float64        `json:"average_score"`
	Worthy         int            `json:"worthy"`
	Posts          int            `json:"posts"`
	InputTokens    int            `json:"input_tokens"`
	OutputTokens   int            `json:"output_tokens"`
	TotalCost      float64        `json:"total_cost_usd"`
}

// NewReport aggregates a finished run into a Report.
func NewReport(runID, provider string, startedAt time.Time, skippedFormats int,
	scored []ScoredPhoto, posts []Post, res *orchestrator.Result, usage *ai.Usage) *Report {
	r := &Report{
		RunID:          runID,
		Provider:       provider,
		StartedAt:      startedAt,
		Duration:       time.Since(startedAt),
		TotalPhotos:    len(res.Units),
		Analyzed:       res.Succeeded,
		Cached:         res.Cached,
		Failed:         res.Failed,
		SkippedFormats: skippedFormats,
		FailureReasons: res.FailureReasons,
		Tiers:          make(map[string]int),
		Categories:     make(map[string]int),
		Posts:          len(posts),
	}

	var sum float64
	for _, p := range scored {
		r.Tiers[string(p.Tier)]++
		if p.Analysis.Category != "" {
			r.Categories[p.Analysis.Category]++
		}
		if InstagramWorthy(p.Score) {
			r.Worthy++
		}
		sum += p.Score
	}
	if len(scored) > 0 {
		r.AverageScore = sum / float64(len(scored))
	}
	if usage != nil {
		r.InputTokens = usage.InputTokens
		r.OutputTokens = usage.OutputTokens
		r.TotalCost = usage.TotalCost
	}
	return r
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// WriteText renders the human-readable summary.
func (r *Report) WriteText(w io.Writer) {
	p := message.NewPrinter(language.English)

	p.Fprintf(w, "Curation report %s (provider: %s)\n", r.RunID, r.Provider)
	p.Fprintf(w, "  photos:    %d analyzed, %d from cache, %d failed", r.Analyzed, r.Cached, r.Failed)
	if r.SkippedFormats > 0 {
		p.Fprintf(w, ", %d unsupported skipped", r.SkippedFormats)
	}
	p.Fprintf(w, "\n")
	p.Fprintf(w, "  avg score: %.2f, %d worthy, %d posts\n", r.AverageScore, r.Worthy, r.Posts)

	if len(r.Tiers) > 0 {
		p.Fprintf(w, "  tiers:    ")
		for _, tier := range []Tier{TierPremium, TierExcellent, TierGood, TierAverage, TierPoor} {
			if n := r.Tiers[string(tier)]; n > 0 {
				p.Fprintf(w, " %s=%d", tier, n)
			}
		}
		p.Fprintf(w, "\n")
	}
	if len(r.Categories) > 0 {
		names := make([]string, 0, len(r.Categories))
		for name := range r.Categories {
			names = append(names, name)
		}
		sort.Strings(names)
		p.Fprintf(w, "  categories:")
		for _, name := range names {
			p.Fprintf(w, " %s=%d", name, r.Categories[name])
		}
		p.Fprintf(w, "\n")
	}
	if len(r.FailureReasons) > 0 {
		reasons := make([]string, 0, len(r.FailureReasons))
		for reason := range r.FailureReasons {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		p.Fprintf(w, "  failures: ")
		for _, reason := range reasons {
			p.Fprintf(w, " %s=%d", reason, r.FailureReasons[reason])
		}
		p.Fprintf(w, "\n")
	}
	if r.InputTokens > 0 || r.OutputTokens > 0 {
		p.Fprintf(w, "  usage:     %d input / %d output tokens, $%.4f\n",
			r.InputTokens, r.OutputTokens, r.TotalCost)
	}
	p.Fprintf(w, "  duration:  %s\n", r.Duration.Round(time.Millisecond))
}
