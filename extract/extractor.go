// Package extract turns a schema plus natural-language instructions
// into a validated structured value, tolerating an unreliable
// text-generation backend.
//
// Each Extract call is a bounded loop: render the schema into a
// prompt, send it, locate and parse a JSON payload in the raw reply,
// validate it field by field, and on any failure re-prompt with the
// previous response and the exact violated constraints, up to the
// configured retry bound. Backend, parse, and validation failures are
// absorbed into the loop and reported as a Failure result; only a
// malformed request fails with a Go error.
//
// Extractors hold no mutable state: calls are independent and may run
// concurrently.
package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/richinex/distill/config"
	jsonx "github.com/richinex/distill/internal/json"
	"github.com/richinex/distill/llm"
	"github.com/richinex/distill/schema"
)

// Recorder persists extraction transcripts. Implemented by
// storage.TranscriptStore; nil disables recording. Recording is
// best-effort: a failing recorder never affects the extraction result.
type Recorder interface {
	BeginRun(ctx context.Context, provider, model, instructions, schemaText string) (string, error)
	RecordAttempt(ctx context.Context, runID string, number int, prompt, response, failure string) error
	FinishRun(ctx context.Context, runID, outcome string, attempts int) error
}

// Extractor performs schema-guided extraction against a backend.
type Extractor struct {
	client   *llm.Client
	settings config.Settings
	recorder Recorder
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithRecorder enables transcript recording.
func WithRecorder(r Recorder) Option {
	return func(e *Extractor) {
		e.recorder = r
	}
}

// New creates an Extractor. Settings are passed in explicitly; the
// extractor reads no environment variables and keeps no global state.
func New(client *llm.Client, settings config.Settings, options ...Option) *Extractor {
	e := &Extractor{
		client:   client,
		settings: settings,
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// Extract runs the bounded corrective-retry loop for one request.
//
// The only error return is ErrSchema for a malformed request. Every
// backend-side problem, including timeouts, becomes a Failure result.
// If the context has no deadline and the settings carry a timeout, the
// timeout is applied to the whole call, retries included.
func (e *Extractor) Extract(ctx context.Context, req Request) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}

	mode := req.Format
	if mode == "" {
		mode = e.settings.Extract.Format
	}
	if mode == "" {
		mode = schema.FormatIndented
	}

	if e.settings.Extract.Timeout > 0 {
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, e.settings.Extract.Timeout)
			defer cancel()
		}
	}

	prompt := buildPrompt(req.Instructions, req.Schema, mode)
	runID := e.beginRun(ctx, req, mode)

	messages := []llm.ChatMessage{llm.UserMessage(prompt)}
	lastSent := prompt

	var result Result
	var reasons []string
	var lastRaw string

	maxAttempts := req.MaxRetries + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt

		response, err := e.client.ChatWithFormat(ctx, messages, llm.NewJSONObjectFormat())
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				reasons = append(reasons, "backend timeout")
				e.recordAttempt(ctx, runID, attempt, lastSent, "", "backend timeout")
				break
			}
			if errors.Is(err, context.Canceled) {
				reasons = append(reasons, "backend call canceled")
				e.recordAttempt(ctx, runID, attempt, lastSent, "", "backend call canceled")
				break
			}
			backendErr := &BackendError{Err: err}
			reasons = append(reasons, backendErr.Error())
			e.recordAttempt(ctx, runID, attempt, lastSent, "", backendErr.Error())
			// The request itself was fine; resend it unchanged.
			continue
		}

		lastRaw = response.Content
		result.Usage.Add(response.Usage)

		attemptErr := e.evaluate(req.Schema, response.Content, &result)
		if attemptErr == nil {
			e.recordAttempt(ctx, runID, attempt, lastSent, lastRaw, "")
			e.finishRun(ctx, runID, "success", attempt)
			result.Type = ResultSuccess
			return result, nil
		}

		reasons = append(reasons, attemptErr.Error())
		e.recordAttempt(ctx, runID, attempt, lastSent, lastRaw, attemptErr.Error())

		if attempt < maxAttempts {
			corrective := buildCorrective(describeFailure(attemptErr), req.Schema, mode)
			messages = append(messages,
				llm.AssistantMessage(response.Content),
				llm.UserMessage(corrective),
			)
			lastSent = corrective
		}
	}

	e.finishRun(ctx, runID, "failure", result.Attempts)

	result.Type = ResultFailure
	result.Reasons = reasons
	result.LastRaw = lastRaw
	result.Value = nil
	return result, nil
}

// evaluate parses and validates one raw response. On success the
// validated payload is stored in the result; otherwise the returned
// error describes what to correct.
func (e *Extractor) evaluate(desc schema.Descriptor, raw string, result *Result) error {
	payload, err := jsonx.ExtractPayload(raw)
	if err != nil {
		return &ParseError{Err: err}
	}

	payload = desc.WithDefaults(payload)
	if violations := desc.Check(payload); len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}

	result.Value = payload
	return nil
}

func (e *Extractor) beginRun(ctx context.Context, req Request, mode schema.FormatMode) string {
	if e.recorder == nil {
		return ""
	}
	provider := e.settings.LLM.Provider
	model := e.settings.LLM.Model
	if p := e.client.Provider(); p != nil {
		provider = p.Name()
		model = p.Model()
	}
	runID, err := e.recorder.BeginRun(ctx, provider, model, req.Instructions, req.Schema.Render(mode))
	if err != nil {
		return ""
	}
	return runID
}

func (e *Extractor) recordAttempt(ctx context.Context, runID string, number int, prompt, response, failure string) {
	if e.recorder == nil || runID == "" {
		return
	}
	// Recording must survive the call's own deadline expiring.
	_ = e.recorder.RecordAttempt(context.WithoutCancel(ctx), runID, number, prompt, response, failure)
}

func (e *Extractor) finishRun(ctx context.Context, runID, outcome string, attempts int) {
	if e.recorder == nil || runID == "" {
		return
	}
	_ = e.recorder.FinishRun(context.WithoutCancel(ctx), runID, outcome, attempts)
}

// FailureReport renders a failure result for human consumption.
func FailureReport(result Result) string {
	if result.Type != ResultFailure {
		return ""
	}
	report := fmt.Sprintf("extraction failed after %d attempt(s):\n", result.Attempts)
	for i, reason := range result.Reasons {
		report += fmt.Sprintf("  attempt %d: %s\n", i+1, reason)
	}
	return report
}
