// Command execution for CLI commands.
//
// Information Hiding:
// - Provider and extractor setup hidden
// - Output formatting hidden

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/richinex/distill/config"
	"github.com/richinex/distill/extract"
	"github.com/richinex/distill/llm"
	"github.com/richinex/distill/schema"
	"github.com/richinex/distill/storage"
)

// Options holds CLI execution options.
type Options struct {
	Provider      string
	Model         string
	MaxRetries    int
	Compact       bool
	Timeout       time.Duration
	TranscriptsDB string
	Verbose       bool
}

// DefaultOptions returns default CLI options.
func DefaultOptions() Options {
	return Options{
		MaxRetries: 2,
		Timeout:    60 * time.Second,
	}
}

// RunExtract loads a schema file, runs one extraction, and prints the
// validated JSON to stdout. A failure result prints its report to
// stderr and returns an error so the process exits non-zero.
func RunExtract(ctx context.Context, schemaPath, instructions string, opts Options) error {
	desc, err := schema.LoadFile(schemaPath)
	if err != nil {
		return err
	}

	settings, err := config.New(opts.Provider)
	if err != nil {
		return err
	}
	if opts.Model != "" {
		settings.LLM.Model = opts.Model
	}
	settings.Extract.MaxRetries = opts.MaxRetries
	if opts.Timeout > 0 {
		settings.Extract.Timeout = opts.Timeout
	}
	if opts.Compact {
		settings.Extract.Format = schema.FormatCompact
	}

	client, err := createClient(settings)
	if err != nil {
		return err
	}

	var extractorOpts []extract.Option
	if opts.TranscriptsDB != "" {
		store, err := storage.OpenTranscripts(opts.TranscriptsDB)
		if err != nil {
			return err
		}
		defer store.Close()
		extractorOpts = append(extractorOpts, extract.WithRecorder(store))
	}

	extractor := extract.New(client, settings, extractorOpts...)

	if opts.Verbose {
		fmt.Fprintf(os.Stderr, "Extracting with %s (%s), up to %d attempt(s)...\n",
			settings.LLM.Provider, settings.LLM.Model, settings.Extract.MaxRetries+1)
	}

	result, err := extractor.Extract(ctx, extract.Request{
		Instructions: instructions,
		Schema:       desc,
		MaxRetries:   settings.Extract.MaxRetries,
		Format:       settings.Extract.Format,
	})
	if err != nil {
		return err
	}

	if !result.Succeeded() {
		fmt.Fprint(os.Stderr, extract.FailureReport(result))
		if opts.Verbose && result.LastRaw != "" {
			fmt.Fprintf(os.Stderr, "last response:\n%s\n", result.LastRaw)
		}
		return fmt.Errorf("extraction failed after %d attempt(s)", result.Attempts)
	}

	output, err := json.MarshalIndent(result.Value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render result: %w", err)
	}
	fmt.Println(string(output))

	if opts.Verbose {
		fmt.Fprintf(os.Stderr, "(%d attempt(s), %d tokens)\n", result.Attempts, result.Usage.TotalTokens)
	}
	return nil
}

// ShowSchema prints a schema file the way it will appear in the
// prompt, in both modes when verbose.
func ShowSchema(schemaPath string, opts Options) error {
	desc, err := schema.LoadFile(schemaPath)
	if err != nil {
		return err
	}

	mode := schema.FormatIndented
	if opts.Compact {
		mode = schema.FormatCompact
	}
	fmt.Println(desc.Render(mode))

	if opts.Verbose && !opts.Compact {
		fmt.Println("\ncompact form:")
		fmt.Println(desc.Render(schema.FormatCompact))
	}
	return nil
}

// ListTranscripts prints recent extraction runs from a transcript database.
func ListTranscripts(ctx context.Context, dbPath string, limit int) error {
	store, err := storage.OpenTranscripts(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no recorded runs")
		return nil
	}

	for _, run := range runs {
		fmt.Printf("%s  %-8s %-10s %-26s attempts=%d  %s\n",
			run.ID, run.Outcome, run.Provider, run.Model, run.Attempts,
			run.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// createClient builds the provider and wraps it in a client.
func createClient(settings config.Settings) (*llm.Client, error) {
	providerType, err := llm.ParseProviderType(settings.LLM.Provider)
	if err != nil {
		return nil, err
	}

	provider, err := llm.NewProviderBuilder(providerType).
		Model(settings.LLM.Model).
		MaxTokens(settings.LLM.MaxTokens).
		Temperature(float32(settings.LLM.Temperature)).
		FromEnv()
	if err != nil {
		return nil, err
	}

	return llm.NewClient(provider), nil
}
