package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/richinex/distill/config"
	"github.com/richinex/distill/llm"
	"github.com/richinex/distill/schema"
)

// fakeProvider returns scripted responses and records every request.
type fakeProvider struct {
	responses []string
	errs      []error
	calls     int
	requests  [][]llm.ChatMessage
}

func (p *fakeProvider) Name() string  { return "fake" }
func (p *fakeProvider) Model() string { return "fake-model" }

func (p *fakeProvider) Chat(ctx context.Context, messages []llm.ChatMessage) (llm.LLMResponse, error) {
	return p.ChatWithFormat(ctx, messages, nil)
}

func (p *fakeProvider) ChatWithFormat(ctx context.Context, messages []llm.ChatMessage, _ *llm.ResponseFormat) (llm.LLMResponse, error) {
	i := p.calls
	p.calls++
	p.requests = append(p.requests, messages)
	if i < len(p.errs) && p.errs[i] != nil {
		return llm.LLMResponse{}, p.errs[i]
	}
	if i < len(p.responses) {
		return llm.LLMResponse{
			Content: p.responses[i],
			Usage:   &llm.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		}, nil
	}
	return llm.LLMResponse{}, errors.New("script exhausted")
}

func floatPtr(v float64) *float64 { return &v }

func personSchema() schema.Descriptor {
	return schema.New(
		schema.Field{Name: "name", Type: schema.TypeString, Required: true},
		schema.Field{Name: "age", Type: schema.TypeNumber, Required: true, Min: floatPtr(0), Max: floatPtr(150)},
	)
}

func testSettings() config.Settings {
	return config.Settings{
		LLM: config.LLMConfig{Provider: "fake", Model: "fake-model"},
		Extract: config.ExtractConfig{
			MaxRetries: 2,
			Format:     schema.FormatIndented,
		},
	}
}

func newTestExtractor(p *fakeProvider, options ...Option) *Extractor {
	client := llm.NewClient(p, llm.WithTransportRetries(1), llm.WithTransportDelay(time.Millisecond))
	return New(client, testSettings(), options...)
}

func TestExtractSuccessFirstAttempt(t *testing.T) {
	provider := &fakeProvider{responses: []string{`{"name": "Ana", "age": 34}`}}
	extractor := newTestExtractor(provider)

	result, err := extractor.Extract(context.Background(), Request{
		Instructions: "Extract the person from the text.",
		Schema:       personSchema(),
		MaxRetries:   2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Succeeded() {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", result.Attempts)
	}
	if result.Value["name"] != "Ana" || result.Value["age"] != float64(34) {
		t.Errorf("unexpected value: %v", result.Value)
	}
	if result.Usage.TotalTokens != 15 {
		t.Errorf("expected usage aggregated, got %+v", result.Usage)
	}
}

func TestExtractSchemaErrorFailsFast(t *testing.T) {
	provider := &fakeProvider{}
	extractor := newTestExtractor(provider)

	_, err := extractor.Extract(context.Background(), Request{
		Instructions: "anything",
		Schema:       schema.Descriptor{},
	})
	if !errors.Is(err, ErrSchema) {
		t.Fatalf("expected ErrSchema, got %v", err)
	}
	if provider.calls != 0 {
		t.Errorf("schema errors must not reach the backend, got %d calls", provider.calls)
	}

	_, err = extractor.Extract(context.Background(), Request{
		Instructions: "anything",
		Schema:       personSchema(),
		MaxRetries:   -1,
	})
	if !errors.Is(err, ErrSchema) {
		t.Fatalf("expected ErrSchema for negative retries, got %v", err)
	}
}

func TestExtractUnparsableExhaustsAttempts(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		"I cannot answer that.",
		"Still no JSON here.",
		"Nothing structured at all.",
	}}
	extractor := newTestExtractor(provider)

	result, err := extractor.Extract(context.Background(), Request{
		Instructions: "extract",
		Schema:       personSchema(),
		MaxRetries:   2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Succeeded() {
		t.Fatal("expected failure")
	}
	if result.Attempts != 3 {
		t.Errorf("expected exactly max_retries+1 = 3 attempts, got %d", result.Attempts)
	}
	if provider.calls != 3 {
		t.Errorf("expected 3 backend calls, got %d", provider.calls)
	}
	if len(result.Reasons) != 3 {
		t.Errorf("expected one reason per attempt, got %v", result.Reasons)
	}
	if result.LastRaw != "Nothing structured at all." {
		t.Errorf("expected last raw response preserved, got %q", result.LastRaw)
	}
}

func TestExtractCorrectiveRetryOnValidationFailure(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		`{"name": "Ana"}`,
		`{"name": "Ana", "age": 34}`,
	}}
	extractor := newTestExtractor(provider)

	result, err := extractor.Extract(context.Background(), Request{
		Instructions: "Extract the person.",
		Schema:       personSchema(),
		MaxRetries:   2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Succeeded() {
		t.Fatalf("expected success after corrective retry, got %+v", result)
	}
	if result.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", result.Attempts)
	}
	if result.Value["age"] != float64(34) {
		t.Errorf("unexpected value: %v", result.Value)
	}

	// The corrective request must carry the previous raw response and
	// name the violated constraint.
	if len(provider.requests) != 2 {
		t.Fatalf("expected 2 recorded requests, got %d", len(provider.requests))
	}
	second := provider.requests[1]
	if len(second) != 3 {
		t.Fatalf("expected prompt + assistant + corrective, got %d messages", len(second))
	}
	if second[1].Role != "assistant" || second[1].Content != `{"name": "Ana"}` {
		t.Errorf("expected previous response as assistant turn, got %+v", second[1])
	}
	if !strings.Contains(second[2].Content, "age: required field is missing") {
		t.Errorf("corrective prompt must name the violation, got:\n%s", second[2].Content)
	}
}

func TestExtractEnumFailureCitesValue(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		`{"status": "pending"}`,
		`{"status": "pending"}`,
	}}
	extractor := newTestExtractor(provider)

	result, err := extractor.Extract(context.Background(), Request{
		Instructions: "Classify the account status.",
		Schema: schema.New(
			schema.Field{Name: "status", Type: schema.TypeString, Required: true, Enum: []string{"active", "inactive"}},
		),
		MaxRetries: 1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Succeeded() {
		t.Fatal("expected failure")
	}
	if result.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", result.Attempts)
	}
	found := false
	for _, reason := range result.Reasons {
		if strings.Contains(reason, `"pending"`) {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a reason citing the invalid enum value, got %v", result.Reasons)
	}
}

func TestExtractBackendTimeout(t *testing.T) {
	provider := &fakeProvider{errs: []error{context.DeadlineExceeded}}
	extractor := newTestExtractor(provider)

	result, err := extractor.Extract(context.Background(), Request{
		Instructions: "extract",
		Schema:       personSchema(),
		MaxRetries:   3,
	})
	if err != nil {
		t.Fatalf("timeout must not escape as an error, got %v", err)
	}
	if result.Succeeded() {
		t.Fatal("expected failure")
	}
	if len(result.Reasons) != 1 || result.Reasons[0] != "backend timeout" {
		t.Errorf("expected single 'backend timeout' reason, got %v", result.Reasons)
	}
	if provider.calls != 1 {
		t.Errorf("expected no retries after timeout, got %d calls", provider.calls)
	}
}

func TestExtractBackendErrorConsumesAttempts(t *testing.T) {
	wireErr := errors.New("connection refused")
	provider := &fakeProvider{errs: []error{wireErr, wireErr}}
	extractor := newTestExtractor(provider)

	result, err := extractor.Extract(context.Background(), Request{
		Instructions: "extract",
		Schema:       personSchema(),
		MaxRetries:   1,
	})
	if err != nil {
		t.Fatalf("backend errors must not escape, got %v", err)
	}
	if result.Succeeded() {
		t.Fatal("expected failure")
	}
	if result.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", result.Attempts)
	}
	for _, reason := range result.Reasons {
		if !strings.Contains(reason, "backend error") {
			t.Errorf("expected backend error reason, got %q", reason)
		}
	}
}

func TestExtractDefaultsApplied(t *testing.T) {
	provider := &fakeProvider{responses: []string{`{"name": "Ana"}`}}
	extractor := newTestExtractor(provider)

	result, err := extractor.Extract(context.Background(), Request{
		Instructions: "extract",
		Schema: schema.New(
			schema.Field{Name: "name", Type: schema.TypeString, Required: true},
			schema.Field{Name: "language", Type: schema.TypeString, Default: "en"},
		),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Succeeded() {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Value["language"] != "en" {
		t.Errorf("expected default applied before validation, got %v", result.Value)
	}
}

func TestExtractFencedResponse(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		"Here you go:\n```json\n{\"name\": \"Ana\", \"age\": 34}\n```",
	}}
	extractor := newTestExtractor(provider)

	result, err := extractor.Extract(context.Background(), Request{
		Instructions: "extract",
		Schema:       personSchema(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Succeeded() {
		t.Fatalf("expected success for fenced response, got %+v", result)
	}
}

func TestExtractPromptUsesIndentedSchema(t *testing.T) {
	provider := &fakeProvider{responses: []string{`{"name": "Ana", "age": 34}`}}
	extractor := newTestExtractor(provider)

	_, err := extractor.Extract(context.Background(), Request{
		Instructions: "extract",
		Schema:       personSchema(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	prompt := provider.requests[0][0].Content
	if !strings.Contains(prompt, "```") {
		t.Error("schema must travel in a delimited block")
	}
	if !strings.Contains(prompt, "\n  \"name\"") {
		t.Errorf("schema must be rendered multi-line and indented by default:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Respond only with the JSON.") {
		t.Error("prompt must carry the conformance directive")
	}
}

// recordingStub captures recorder calls without a database.
type recordingStub struct {
	runs     int
	attempts int
	finished []string
}

func (r *recordingStub) BeginRun(ctx context.Context, provider, model, instructions, schemaText string) (string, error) {
	r.runs++
	return "run-1", nil
}

func (r *recordingStub) RecordAttempt(ctx context.Context, runID string, number int, prompt, response, failure string) error {
	r.attempts++
	return nil
}

func (r *recordingStub) FinishRun(ctx context.Context, runID, outcome string, attempts int) error {
	r.finished = append(r.finished, outcome)
	return nil
}

func TestExtractRecordsTranscript(t *testing.T) {
	provider := &fakeProvider{responses: []string{
		`{"name": "Ana"}`,
		`{"name": "Ana", "age": 34}`,
	}}
	recorder := &recordingStub{}
	extractor := newTestExtractor(provider, WithRecorder(recorder))

	result, err := extractor.Extract(context.Background(), Request{
		Instructions: "extract",
		Schema:       personSchema(),
		MaxRetries:   2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Succeeded() {
		t.Fatalf("expected success, got %+v", result)
	}
	if recorder.runs != 1 {
		t.Errorf("expected 1 run recorded, got %d", recorder.runs)
	}
	if recorder.attempts != 2 {
		t.Errorf("expected 2 attempts recorded, got %d", recorder.attempts)
	}
	if len(recorder.finished) != 1 || recorder.finished[0] != "success" {
		t.Errorf("expected success outcome recorded, got %v", recorder.finished)
	}
}

func TestExtractConcurrentCalls(t *testing.T) {
	// Each call gets its own provider; the extractor itself is shared
	// and must hold no per-call state.
	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			provider := &fakeProvider{responses: []string{`{"name": "Ana", "age": 34}`}}
			extractor := newTestExtractor(provider)
			result, err := extractor.Extract(context.Background(), Request{
				Instructions: "extract",
				Schema:       personSchema(),
			})
			if err == nil && !result.Succeeded() {
				err = errors.New("expected success")
			}
			done <- err
		}()
	}
	for i := 0; i < 8; i++ {
		if err := <-done; err != nil {
			t.Errorf("concurrent call failed: %v", err)
		}
	}
}
