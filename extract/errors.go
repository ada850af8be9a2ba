// Error taxonomy for schema-guided extraction.
//
// Only ErrSchema ever escapes Extract as a Go error: a malformed
// descriptor is a caller bug and fails fast before any network call.
// Everything else (backend, parse, validation failures) is absorbed
// into the bounded retry loop and surfaced as reasons inside a
// Failure result.

package extract

import (
	"errors"
	"strings"

	"github.com/richinex/distill/schema"
)

// ErrSchema marks a request whose descriptor or retry bound is
// malformed. Test with errors.Is.
var ErrSchema = errors.New("invalid extraction request")

// BackendError wraps a transport-level failure from the
// text-generation service.
type BackendError struct {
	Err error
}

func (e *BackendError) Error() string {
	return "backend error: " + e.Err.Error()
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// ParseError reports that a response contained no extractable payload.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "no structured payload in response: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ValidationError reports a parsed payload that violated schema
// constraints. It carries every violation so the corrective prompt can
// enumerate them all.
type ValidationError struct {
	Violations []schema.Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return "payload failed validation: " + strings.Join(parts, "; ")
}
