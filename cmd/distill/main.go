// Package main provides the distill CLI entry point.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/richinex/distill/cli"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	provider      string
	model         string
	maxRetries    int
	compact       bool
	timeout       time.Duration
	transcriptsDB string
	verbose       bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "distill",
		Short: "Schema-guided structured extraction from LLM output",
		Long: `A CLI for extracting validated structured data from text-generation models.

Describe the expected output shape in a schema file (YAML or JSON),
give the model instructions, and distill prompts the backend, parses
the reply, validates it field by field, and retries with corrective
feedback until the payload conforms or the retry budget runs out.`,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "openai", "LLM provider (openai, anthropic, deepseek, gemini)")
	rootCmd.PersistentFlags().StringVarP(&model, "model", "m", "", "Model override (defaults to the provider's standard model)")
	rootCmd.PersistentFlags().IntVarP(&maxRetries, "max-retries", "r", 2, "Corrective retries after the first attempt")
	rootCmd.PersistentFlags().BoolVar(&compact, "compact", false, "Render the schema on a single line (degrades conformance)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 60*time.Second, "Budget for the whole extraction, retries included")
	rootCmd.PersistentFlags().StringVar(&transcriptsDB, "transcripts", "", "SQLite file to record run transcripts in")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show verbose output")

	// Add commands
	rootCmd.AddCommand(extractCmd())
	rootCmd.AddCommand(schemaCmd())
	rootCmd.AddCommand(transcriptsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func options() cli.Options {
	return cli.Options{
		Provider:      provider,
		Model:         model,
		MaxRetries:    maxRetries,
		Compact:       compact,
		Timeout:       timeout,
		TranscriptsDB: transcriptsDB,
		Verbose:       verbose,
	}
}

func extractCmd() *cobra.Command {
	var schemaPath string

	cmd := &cobra.Command{
		Use:   "extract [instructions]",
		Short: "Extract a validated structured value",
		Long: `Prompt the backend with instructions and a schema, then parse and
validate the reply, retrying with corrective feedback on failure.

Example:
  distill extract --schema person.yaml "Create a profile for a fictional software developer."`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.RunExtract(cmd.Context(), schemaPath, args[0], options())
		},
	}

	cmd.Flags().StringVarP(&schemaPath, "schema", "s", "", "Schema file (YAML or JSON)")
	cmd.MarkFlagRequired("schema")
	return cmd
}

func schemaCmd() *cobra.Command {
	var schemaPath string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Preview how a schema file renders into the prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ShowSchema(schemaPath, options())
		},
	}

	cmd.Flags().StringVarP(&schemaPath, "schema", "s", "", "Schema file (YAML or JSON)")
	cmd.MarkFlagRequired("schema")
	return cmd
}

func transcriptsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "transcripts",
		Short: "List recorded extraction runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if transcriptsDB == "" {
				return fmt.Errorf("--transcripts database path is required")
			}
			return cli.ListTranscripts(cmd.Context(), transcriptsDB, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")
	return cmd
}
