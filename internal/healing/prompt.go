package healing

import (
	"fmt"
	"strings"

	"github.com/kamilpajak/fring/internal/failure"
	"github.com/kamilpajak/fring/internal/llm"
	"github.com/kamilpajak/fring/internal/specdiff"
)

const healingSystemPrompt = `You are an expert API test engineer. You repair tests that broke because the API specification changed.

You are given the failing test source, the classified failure, and the relevant spec changes. Produce the corrected test.

Rules:
- Change only what is needed to make the test pass against the new spec.
- Preserve the test's intent, structure, and naming.
- If the test cannot be repaired (the feature it covers was removed), respond with exactly UNHEALABLE and one line explaining why.
- Otherwise respond with a one-line summary, then the full corrected test source in a single fenced code block.`

const maxPromptSource = 16000

// buildPrompt assembles the structured healing prompt from the test
// source, failure analysis, and relevant spec changes.
func buildPrompt(source string, analysis *failure.FailureAnalysis, changes []specdiff.Change) llm.Prompt {
	var b strings.Builder

	b.WriteString("## Failure\n")
	fmt.Fprintf(&b, "Type: %s (confidence %.2f)\n", analysis.Type, analysis.Confidence)
	if analysis.Context.TestFile != "" {
		fmt.Fprintf(&b, "Location: %s:%d\n", analysis.Context.TestFile, analysis.Context.LineNumber)
	}
	for _, fix := range analysis.PotentialFixes {
		fmt.Fprintf(&b, "Hint: %s\n", fix.Description)
	}

	if len(changes) > 0 {
		b.WriteString("\n## Spec changes\n")
		for _, ch := range changes {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", ch.Severity, ch.Type, ch.Description)
			if ch.SuggestedFix != "" {
				fmt.Fprintf(&b, "  fix: %s\n", ch.SuggestedFix)
			}
		}
	}

	if len(source) > maxPromptSource {
		source = source[:maxPromptSource]
	}
	b.WriteString("\n## Test source\n```\n")
	b.WriteString(source)
	b.WriteString("\n```\n")

	return llm.Prompt{System: healingSystemPrompt, User: b.String()}
}

// parseCompletion extracts a patch from the model's response text.
// Returns nil when the model declared the test unhealable or produced
// no usable source.
func parseCompletion(text string) *Patch {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || strings.HasPrefix(trimmed, "UNHEALABLE") {
		return nil
	}

	source, summary := extractFencedBlock(trimmed)
	if source == "" {
		return nil
	}
	return &Patch{Summary: summary, Source: source}
}

// extractFencedBlock returns the first fenced code block and the text
// preceding it (used as the summary).
func extractFencedBlock(text string) (block, before string) {
	start := strings.Index(text, "```")
	if start < 0 {
		return "", ""
	}
	before = strings.TrimSpace(text[:start])

	rest := text[start+3:]
	// Skip an optional language tag on the fence line.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", ""
	}
	return strings.TrimSpace(rest[:end]), firstLine(before)
}

func firstLine(s string) string {
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		return strings.TrimSpace(s[:nl])
	}
	return s
}
