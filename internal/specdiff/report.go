package specdiff

import (
	"fmt"
	"sort"
	"time"
)

// DiffReport is a pure projection of a SpecDiff for human consumption.
type DiffReport struct {
	GeneratedAt     time.Time           `json:"generated_at"`
	OldVersion      string              `json:"old_version"`
	NewVersion      string              `json:"new_version"`
	Summary         Summary             `json:"summary"`
	SummaryText     string              `json:"summary_text"`
	Changes         map[Severity][]string `json:"changes"`
	Recommendations []string            `json:"recommendations"`
	MigrationNotes  []string            `json:"migration_notes,omitempty"`
}

// BuildReport projects a diff into a report. It does not mutate the diff.
func BuildReport(diff *SpecDiff) *DiffReport {
	report := &DiffReport{
		GeneratedAt: time.Now().UTC(),
		OldVersion:  diff.OldVersion,
		NewVersion:  diff.NewVersion,
		Summary:     diff.Summary,
		Changes:     make(map[Severity][]string),
	}

	changes := diff.AllChanges()
	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].Severity.rank() < changes[j].Severity.rank()
	})
	for _, c := range changes {
		report.Changes[c.Severity] = append(report.Changes[c.Severity], c.Description)
		if c.SuggestedFix != "" && c.Severity == SeverityBreaking {
			report.MigrationNotes = append(report.MigrationNotes,
				fmt.Sprintf("%s: %s", c.Path, c.SuggestedFix))
		}
	}

	s := diff.Summary
	compat := "backward compatible"
	if !s.IsBackwardCompatible() {
		compat = "NOT backward compatible"
	}
	report.SummaryText = fmt.Sprintf(
		"%d changes between %s and %s (%d breaking, %d major, %d minor, %d patch): %s",
		s.TotalChanges, diff.OldVersion, diff.NewVersion,
		s.BreakingChanges, s.MajorChanges, s.MinorChanges, s.PatchChanges, compat)

	switch {
	case s.BreakingChanges > 0:
		report.Recommendations = append(report.Recommendations,
			"bump the major version: breaking changes require client migration")
		report.Recommendations = append(report.Recommendations,
			"re-run the healing pipeline against the new spec before release")
	case s.MajorChanges > 0 || s.MinorChanges > 0:
		report.Recommendations = append(report.Recommendations,
			"bump the minor version: additive or widening changes only")
	case s.TotalChanges > 0:
		report.Recommendations = append(report.Recommendations,
			"bump the patch version: metadata-only changes")
	default:
		report.Recommendations = append(report.Recommendations,
			"no changes detected: no version bump needed")
	}

	return report
}
