// Request and result types for schema-guided extraction.

package extract

import (
	"fmt"

	"github.com/richinex/distill/llm"
	"github.com/richinex/distill/schema"
)

// Request describes one extraction call. Created per call; never
// persisted or reused after Extract returns.
type Request struct {
	// Instructions is the caller's natural-language task description.
	Instructions string

	// Schema describes the expected output shape. Must have at least
	// one field.
	Schema schema.Descriptor

	// MaxRetries is the number of corrective retries after the first
	// attempt. Zero means a single attempt; must not be negative.
	MaxRetries int

	// Format selects how the schema is serialized into the prompt.
	// Empty means the extractor's configured default.
	Format schema.FormatMode
}

func (r Request) validate() error {
	if err := r.Schema.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if r.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative, got %d", ErrSchema, r.MaxRetries)
	}
	return nil
}

// ResultType tags an extraction result.
type ResultType int

const (
	// ResultSuccess means the payload validated against every schema
	// constraint.
	ResultSuccess ResultType = iota
	// ResultFailure means attempts were exhausted without a
	// conforming payload.
	ResultFailure
)

// Result is the tagged outcome of an extraction call. A success value
// always validates against the originating descriptor; a partially
// valid payload is never returned.
type Result struct {
	Type ResultType

	// Value is the validated payload. Set only on success.
	Value map[string]any

	// Reasons accumulates one entry per failed attempt, in order.
	// Set only on failure.
	Reasons []string

	// LastRaw is the raw text of the final backend response. Set only
	// on failure (and empty when the backend never answered).
	LastRaw string

	// Attempts is how many backend round trips were made.
	Attempts int

	// Usage aggregates token usage across all attempts.
	Usage llm.TokenUsage
}

// Succeeded reports whether the result carries a validated value.
func (r Result) Succeeded() bool {
	return r.Type == ResultSuccess
}
