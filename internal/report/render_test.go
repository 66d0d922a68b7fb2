package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kamilpajak/fring/internal/failure"
	"github.com/kamilpajak/fring/internal/healing"
	"github.com/kamilpajak/fring/internal/specdiff"
)

func sampleDiffReport() *specdiff.DiffReport {
	return &specdiff.DiffReport{
		OldVersion:  "1.0.0",
		NewVersion:  "2.0.0",
		Summary:     specdiff.Summary{TotalChanges: 2, BreakingChanges: 1, MinorChanges: 1},
		SummaryText: "2 changes between 1.0.0 and 2.0.0 (1 breaking, 0 major, 1 minor, 0 patch): NOT backward compatible",
		Changes: map[specdiff.Severity][]string{
			specdiff.SeverityBreaking: {"removed endpoint DELETE /products/{id}"},
			specdiff.SeverityMinor:    {"added optional field description"},
		},
		MigrationNotes:  []string{"paths.DELETE /products/{id}: use POST /products/{id}/archive instead"},
		Recommendations: []string{"bump the major version: breaking changes require client migration"},
	}
}

func TestRenderer_Diff_Text(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, FormatText)
	r.Diff(sampleDiffReport())

	out := buf.String()
	assert.Contains(t, out, "NOT backward compatible")
	assert.Contains(t, out, "BREAKING")
	assert.Contains(t, out, "removed endpoint DELETE /products/{id}")
	assert.Contains(t, out, "MINOR")
	assert.Contains(t, out, "Migration notes")
	assert.Contains(t, out, "bump the major version")
	// Buffers are not terminals, so no ANSI escapes.
	assert.NotContains(t, out, "\x1b[")
}

func TestRenderer_Diff_Markdown(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, FormatMarkdown)
	r.Diff(sampleDiffReport())

	out := buf.String()
	assert.Contains(t, out, "| BREAKING |")
	assert.Contains(t, out, "### Migration notes")
}

func TestRenderer_Diff_NoChanges(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, FormatText)
	r.Diff(&specdiff.DiffReport{
		SummaryText:     "0 changes between 1.0.0 and 1.0.0 (0 breaking, 0 major, 0 minor, 0 patch): backward compatible",
		Recommendations: []string{"no changes detected: no version bump needed"},
	})

	out := buf.String()
	assert.Contains(t, out, "backward compatible")
	assert.NotContains(t, out, "SEVERITY")
}

func TestRenderer_Healing(t *testing.T) {
	start := time.Now()
	attempts := []healing.Attempt{
		{
			TestRef:       "products.spec.ts::should create a product",
			Strategy:      healing.StrategyAIPowered,
			State:         healing.StateHealed,
			StartTime:     start,
			EndTime:       start.Add(1200 * time.Millisecond),
			Success:       true,
			TokensUsed:    1500,
			EstimatedCost: 0.0009,
			FailureType:   failure.TypeAssertion,
		},
		{
			TestRef:     "orders.spec.ts::should cancel an order",
			Strategy:    healing.StrategyRuleBased,
			State:       healing.StateFailed,
			StartTime:   start,
			EndTime:     start.Add(40 * time.Millisecond),
			CacheHit:    true,
			FailureType: failure.TypeTimeout,
		},
	}

	var buf bytes.Buffer
	NewRenderer(&buf, FormatText).Healing(attempts)

	out := buf.String()
	assert.Contains(t, out, "products.spec.ts::should create a product")
	assert.Contains(t, out, "ai_powered")
	assert.Contains(t, out, "healed")
	assert.Contains(t, out, "hit")
	// Footers are upper-cased by the table style.
	assert.Contains(t, strings.ToLower(out), "1/2 healed")
	assert.Contains(t, out, "1500")
	assert.Contains(t, out, "$0.0009")
}

func TestRenderer_Healing_Empty(t *testing.T) {
	var buf bytes.Buffer
	NewRenderer(&buf, FormatText).Healing(nil)
	assert.True(t, strings.Contains(buf.String(), "No healing attempts."))
}
