// Prompt construction for extraction requests.
//
// The schema travels inside a delimited code-fence block and, by
// default, in indented multi-line form. The wording of the guideline
// list is part of the contract with the backend: it is what makes
// "return only the JSON" stick often enough that the retry loop stays
// short.

package extract

import (
	"fmt"
	"strings"

	"github.com/richinex/distill/schema"
)

const promptGuidelines = `Important guidelines:
1. Your response must be valid JSON that strictly conforms to this schema
2. Don't include any explanatory text before or after the JSON
3. Required fields must be included
4. Respect all type constraints, formats, and validations`

// buildPrompt assembles the initial request message: instructions,
// delimited schema block, and the conformance directive.
func buildPrompt(instructions string, desc schema.Descriptor, mode schema.FormatMode) string {
	var b strings.Builder

	b.WriteString("I need you to respond with JSON that matches the following schema:\n\n")
	fmt.Fprintf(&b, "```\n%s\n```\n\n", desc.Render(mode))
	b.WriteString(promptGuidelines)
	fmt.Fprintf(&b, "\n\nTask: %s\n\n", instructions)
	b.WriteString("Respond only with the JSON.")

	return b.String()
}

// buildCorrective assembles the follow-up message after a rejected
// attempt. The previous raw response travels as the assistant turn in
// the conversation; this message names exactly which constraints
// failed and restates the schema.
func buildCorrective(failure string, desc schema.Descriptor, mode schema.FormatMode) string {
	var b strings.Builder

	b.WriteString("Your previous response did not conform to the schema. The following problems were found:\n\n")
	b.WriteString(failure)
	b.WriteString("\n\nAs a reminder, the schema is:\n\n")
	fmt.Fprintf(&b, "```\n%s\n```\n\n", desc.Render(mode))
	b.WriteString("Respond again with only the corrected JSON, nothing else.")

	return b.String()
}

// describeFailure renders an attempt error into prompt-ready text.
// Validation failures enumerate each violated constraint on its own
// line; parse failures get a fixed explanation.
func describeFailure(err error) string {
	switch e := err.(type) {
	case *ValidationError:
		return schema.ViolationList(e.Violations)
	case *ParseError:
		return "- the response did not contain a parseable JSON object"
	default:
		return "- " + err.Error()
	}
}
