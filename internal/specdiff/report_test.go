package specdiff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamilpajak/fring/internal/openapi"
)

func TestBuildReport_BreakingChanges(t *testing.T) {
	oldSpec := specWithPaths("3.0.3", map[string]openapi.PathItem{
		"/products/{p}": {Put: &openapi.Operation{Responses: okResponse()}},
	})
	newSpec := specWithPaths("3.0.3", map[string]openapi.PathItem{
		"/products/{p}": {Patch: &openapi.Operation{Responses: okResponse()}},
	})

	diff := Compare(oldSpec, newSpec)
	report := BuildReport(diff)

	assert.Contains(t, report.SummaryText, "NOT backward compatible")
	assert.NotEmpty(t, report.Changes[SeverityBreaking])

	var recommendsMajorBump bool
	for _, r := range report.Recommendations {
		if r == "bump the major version: breaking changes require client migration" {
			recommendsMajorBump = true
		}
	}
	assert.True(t, recommendsMajorBump)
	assert.NotEmpty(t, report.MigrationNotes)
}

func TestBuildReport_NoChanges(t *testing.T) {
	spec := specWithPaths("3.0.3", map[string]openapi.PathItem{
		"/products": {Get: &openapi.Operation{Responses: okResponse()}},
	})

	report := BuildReport(Compare(spec, spec))

	assert.Contains(t, report.SummaryText, "0 changes")
	require.Len(t, report.Recommendations, 1)
	assert.Contains(t, report.Recommendations[0], "no version bump")
	assert.Empty(t, report.MigrationNotes)
}

func TestBuildReport_DoesNotMutateDiff(t *testing.T) {
	oldSpec := specWithPaths("3.0.3", map[string]openapi.PathItem{
		"/a": {Get: &openapi.Operation{Responses: okResponse()}},
	})
	newSpec := specWithPaths("3.0.3", map[string]openapi.PathItem{})

	diff := Compare(oldSpec, newSpec)
	before := diff.Summary

	_ = BuildReport(diff)
	_ = BuildReport(diff)

	assert.Equal(t, before, diff.Summary)
}
