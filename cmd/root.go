package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "photo-curator",
	Short: "A CLI tool for curating photo folders with AI",
	Long: `Photo Curator scans a folder of photos, scores every image with a
vision-capable AI model (Gemini, OpenAI, Llama API, Ollama) and assembles
Instagram-ready post groups plus an analytics report. Provider calls are
batched, rate limited and retried adaptively, so large folders survive
flaky APIs and strict quotas.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
