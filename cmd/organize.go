package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"photo-curator/internal/ai"
	"photo-curator/internal/cache"
	"photo-curator/internal/config"
	"photo-curator/internal/library"
	"photo-curator/internal/logger"
	"photo-curator/internal/orchestrator"
	"photo-curator/internal/organizer"
)

const defaultCachePath = "photo_analysis_cache.json"

var organizeCmd = &cobra.Command{
	Use:   "organize [source-folder]",
	Short: "Analyze photos with AI and assemble post groups",
	Long: `Analyze every photo in a folder with the selected AI provider,
rank the results and assemble Instagram-ready post folders with captions
plus an analytics report. Analyses are cached so re-runs only pay for new
or changed photos.`,
	Args: cobra.ExactArgs(1),
	RunE: runOrganize,
}

func init() {
	rootCmd.AddCommand(organizeCmd)

	organizeCmd.Flags().String("output", "output", "Folder to write post groups and the report into")
	organizeCmd.Flags().String("provider", "gemini", "AI provider to use: gemini, openai, llama, ollama")
	organizeCmd.Flags().Int("post-size", 10, "Photos per post (Instagram carousel limit is 10)")
	organizeCmd.Flags().Int("limit", 0, "Limit number of photos to process (0 = no limit)")
	organizeCmd.Flags().Int("workers", 0, "Concurrent workers (0 = provider default)")
	organizeCmd.Flags().Bool("dry-run", false, "Discover and plan without calling the AI provider")
	organizeCmd.Flags().Bool("no-cache", false, "Ignore cached analyses and do not persist new ones")
}

func runOrganize(cmd *cobra.Command, args []string) error {
	source := args[0]

	cfg := config.Load()
	log := logger.New(verbose)

	outputDir := mustGetString(cmd, "output")
	providerName := mustGetString(cmd, "provider")
	postSize := mustGetInt(cmd, "post-size")
	limit := mustGetInt(cmd, "limit")
	workers := mustGetInt(cmd, "workers")
	dryRun := mustGetBool(cmd, "dry-run")
	noCache := mustGetBool(cmd, "no-cache")

	tuning := cfg.GetProviderTuning(providerName)
	pricing := ai.RequestPricing{Input: tuning.InputPricePer1M, Output: tuning.OutputPricePer1M}

	// Create AI provider based on selection
	var provider ai.Provider
	switch providerName {
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return errors.New("GEMINI_API_KEY environment variable is required")
		}
		var err error
		provider, err = ai.NewGeminiProvider(context.Background(), cfg.Gemini.APIKey, pricing)
		if err != nil {
			return fmt.Errorf("failed to create Gemini provider: %w", err)
		}
	case "openai":
		if cfg.OpenAI.Token == "" {
			return errors.New("OPENAI_TOKEN environment variable is required")
		}
		provider = ai.NewOpenAIProvider(cfg.OpenAI.Token, pricing)
	case "llama":
		if cfg.Llama.APIKey == "" {
			return errors.New("LLAMA_API_KEY environment variable is required")
		}
		provider = ai.NewLlamaProvider(cfg.Llama.APIKey, cfg.Llama.URL, cfg.Llama.Model, pricing)
	case "ollama":
		provider = ai.NewOllamaProvider(cfg.Ollama.URL, cfg.Ollama.Model)
	default:
		return fmt.Errorf("unknown provider: %s (supported: gemini, openai, llama, ollama)", providerName)
	}

	// Set up context with signal handling for graceful cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal...")
		cancel()
	}()

	photos, skippedFormats, err := library.Discover(source)
	if err != nil {
		return err
	}
	if limit > 0 && len(photos) > limit {
		photos = photos[:limit]
	}

	fmt.Printf("Source: %s\n", source)
	fmt.Printf("Provider: %s\n", provider.Name())
	fmt.Printf("Photos found: %d", len(photos))
	if skippedFormats > 0 {
		fmt.Printf(" (%d unsupported files skipped)", skippedFormats)
	}
	fmt.Println()
	if dryRun {
		fmt.Println("Mode: DRY RUN (no provider calls, no output written)")
	}
	fmt.Println()

	if len(photos) == 0 {
		return errors.New("no supported photos found")
	}
	if dryRun {
		for _, p := range photos {
			fmt.Printf("  %s (%.1f KB)\n", p.Name, float64(p.Size)/1024)
		}
		return nil
	}

	store, err := openStore(cfg, noCache)
	if err != nil {
		return err
	}
	defer store.Close()

	units := library.LoadUnits(photos, log)
	if len(units) == 0 {
		return errors.New("no readable photos to analyze")
	}

	bar := progressbar.NewOptions(len(units),
		progressbar.OptionSetDescription("Analyzing photos"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	orch := buildOrchestrator(provider, store, tuning, workers, log, bar)

	startedAt := time.Now()
	res := orch.Run(ctx, units)
	_ = bar.Finish()
	fmt.Println()

	unitsByKey := make(map[string]*orchestrator.RequestUnit, len(units))
	for _, u := range units {
		unitsByKey[u.Key] = u
	}
	var scored []organizer.ScoredPhoto
	for key, ur := range res.Units {
		if ur.Analysis == nil {
			continue
		}
		u := unitsByKey[key]
		scored = append(scored, organizer.NewScoredPhoto(u.Path, u.Name, u.TakenAt, ur.Analysis, ur.Cached))
	}

	posts := organizer.BuildPosts(scored, postSize)

	runID := uuid.New().String()[:8]
	runDir := filepath.Join(outputDir, time.Now().Format("2006-01-02")+"-"+runID)
	if err := organizer.WritePosts(posts, runDir); err != nil {
		return err
	}

	report := organizer.NewReport(runID, provider.Name(), startedAt, skippedFormats,
		scored, posts, res, provider.GetUsage())
	if err := report.WriteJSON(filepath.Join(runDir, "report.json")); err != nil {
		return err
	}

	fmt.Println()
	report.WriteText(os.Stdout)
	if len(posts) > 0 {
		fmt.Printf("\nPosts written to %s\n", runDir)
	} else {
		fmt.Println("\nNo post-worthy photos found")
	}

	if res.Failed > 0 {
		fmt.Printf("\nFailed photos: %d\n", res.Failed)
		for key, ur := range res.Units {
			if ur.Err != nil {
				fmt.Printf("  - %s: %v\n", unitsByKey[key].Name, ur.Err)
			}
		}
	}
	if ctx.Err() != nil {
		return errors.New("run interrupted")
	}
	return nil
}

// openStore picks the cache backend: Postgres when DATABASE_URL is set, the
// JSON file otherwise. --no-cache swaps in a run-local memory store.
func openStore(cfg *config.Config, noCache bool) (cache.Store, error) {
	if noCache {
		return cache.NewMemoryStore(0), nil
	}
	ttl := time.Duration(cfg.Cache.DurationHours) * time.Hour
	if cfg.Cache.DatabaseURL != "" {
		store, err := cache.NewPostgresStore(&cfg.Cache)
		if err != nil {
			return nil, fmt.Errorf("failed to open cache database: %w", err)
		}
		return store, nil
	}
	path := cfg.Cache.Path
	if path == "" {
		path = defaultCachePath
	}
	store, err := cache.NewFileStore(path, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache file: %w", err)
	}
	return store, nil
}

func buildOrchestrator(provider ai.Provider, store cache.Store, tuning config.ProviderTuning,
	workers int, log zerolog.Logger, bar *progressbar.ProgressBar) *orchestrator.Orchestrator {
	breaker := orchestrator.NewCircuitBreaker(orchestrator.BreakerSettings{
		FailureThreshold: tuning.FailureThreshold,
		RecoveryTimeout:  time.Duration(tuning.RecoveryTimeoutSeconds) * time.Second,
		HalfOpenMaxCalls: tuning.HalfOpenMaxCalls,
	}, log)
	limiter := orchestrator.NewRateLimiter(orchestrator.LimiterSettings{
		RequestsPerSecond: tuning.MaxRequestsPerSecond,
		RequestsPerMinute: tuning.MaxRequestsPerMinute,
		MaxConcurrent:     tuning.MaxConcurrentRequests,
	}, log)
	backoff := orchestrator.NewBackoff(orchestrator.BackoffSettings{
		InitialDelay:   time.Duration(tuning.InitialDelayMS) * time.Millisecond,
		MaxDelay:       time.Duration(tuning.MaxDelayMS) * time.Millisecond,
		Multiplier:     tuning.Multiplier,
		JitterFraction: tuning.JitterFraction,
		MaxAttempts:    tuning.MaxAttempts,
	})
	sizer := orchestrator.NewBatchSizer(orchestrator.BatchSettings{
		MinSize: tuning.MinBatchSize,
		MaxSize: tuning.MaxBatchSize,
	}, log)

	if workers <= 0 {
		workers = tuning.MaxConcurrentRequests
	}
	return orchestrator.New(provider, store, breaker, limiter, backoff, sizer, log, orchestrator.Options{
		Workers:        workers,
		MaxRequeues:    tuning.MaxRequeues,
		RequestTimeout: time.Duration(tuning.RequestTimeoutSeconds) * time.Second,
		OnProgress: func(s orchestrator.Snapshot) {
			_ = bar.Set(s.Completed)
		},
	})
}
