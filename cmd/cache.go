package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"photo-curator/internal/cache"
	"photo-curator/internal/config"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the analysis cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show how many analyses are cached",
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all cached analyses",
	RunE:  runCacheClear,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Cache.DatabaseURL != "" {
		store, err := cache.NewPostgresStore(&cfg.Cache)
		if err != nil {
			return fmt.Errorf("failed to open cache database: %w", err)
		}
		defer store.Close()

		n, err := store.Count(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("Backend: postgres\nEntries: %d\n", n)
		return nil
	}

	path := cfg.Cache.Path
	if path == "" {
		path = defaultCachePath
	}
	store, err := cache.NewFileStore(path, 0)
	if err != nil {
		return fmt.Errorf("failed to open cache file: %w", err)
	}
	fmt.Printf("Backend: file (%s)\nEntries: %d\n", path, store.Len())
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Cache.DatabaseURL != "" {
		store, err := cache.NewPostgresStore(&cfg.Cache)
		if err != nil {
			return fmt.Errorf("failed to open cache database: %w", err)
		}
		defer store.Close()

		if err := store.Clear(context.Background()); err != nil {
			return err
		}
		fmt.Println("Cache cleared (postgres)")
		return nil
	}

	path := cfg.Cache.Path
	if path == "" {
		path = defaultCachePath
	}
	store, err := cache.NewFileStore(path, 0)
	if err != nil {
		return fmt.Errorf("failed to open cache file: %w", err)
	}
	if err := store.Clear(); err != nil {
		return err
	}
	fmt.Printf("Cache cleared (%s)\n", path)
	return nil
}
