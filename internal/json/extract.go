// Package json locates and decodes JSON payloads inside raw
// text-generation output.
//
// Backends rarely return bare JSON: the payload tends to arrive
// wrapped in markdown code fences, prefixed with commentary, or
// trailed by an explanation. This package tolerates those patterns and
// hands the extractor a decoded object to validate.
package json

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractPayload locates a JSON object in raw backend output and
// decodes it into a generic map for schema validation.
//
// Resolution order:
//  1. strip markdown code fences if present
//  2. try the whole text as JSON
//  3. fall back to the slice between the first '{' and the last '}'
//
// Only objects are handled; the extraction contract is always an
// object-shaped payload. Brace matching is positional, so a payload
// whose string values contain unbalanced braces can defeat it.
func ExtractPayload(response string) (map[string]any, error) {
	raw, err := locate(response)
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("failed to decode JSON object: %w", err)
	}
	return payload, nil
}

// ExtractRaw returns the JSON portion of the response as text,
// without decoding it.
func ExtractRaw(response string) (string, error) {
	return locate(response)
}

// ExtractInto decodes the located payload into the caller's type.
func ExtractInto[T any](response string) (T, error) {
	var result T
	raw, err := locate(response)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return result, nil
}

func locate(response string) (string, error) {
	response = stripCodeFences(response)

	var probe map[string]any
	if err := json.Unmarshal([]byte(response), &probe); err == nil {
		return response, nil
	}

	start := strings.Index(response, "{")
	if start != -1 {
		end := strings.LastIndex(response, "}")
		if end > start {
			candidate := response[start : end+1]
			if err := json.Unmarshal([]byte(candidate), &probe); err == nil {
				return candidate, nil
			}
		}
	}

	preview := response
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("no JSON object found in response: %q", preview)
}

// stripCodeFences removes leading/trailing markdown fences, with or
// without a language tag (```json ... ```).
func stripCodeFences(response string) string {
	trimmed := strings.TrimSpace(response)

	if strings.HasPrefix(trimmed, "```json") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```json"))
	} else if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
	}
	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "```"))
	}
	return trimmed
}
