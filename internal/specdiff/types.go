// Package specdiff computes classified, severity-ranked diffs between two
// versions of an OpenAPI document.
package specdiff

// ChangeType tags the kind of difference detected between two specs.
type ChangeType string

const (
	ChangeFieldRenamed      ChangeType = "field_renamed"
	ChangeTypeChanged       ChangeType = "type_changed"
	ChangeFieldAdded        ChangeType = "field_added"
	ChangeFieldRemoved      ChangeType = "field_removed"
	ChangeValueChanged      ChangeType = "value_changed"
	ChangeRequiredChanged   ChangeType = "required_changed"
	ChangeDeprecatedChanged ChangeType = "deprecated_changed"
	ChangeEnumChanged       ChangeType = "enum_changed"
)

// Severity classifies the client impact of a change.
type Severity string

const (
	SeverityBreaking Severity = "breaking"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
	SeverityPatch    Severity = "patch"
)

// rank orders severities from most to least impactful.
func (s Severity) rank() int {
	switch s {
	case SeverityBreaking:
		return 0
	case SeverityMajor:
		return 1
	case SeverityMinor:
		return 2
	default:
		return 3
	}
}

// Change is a single detected difference. Immutable once produced.
type Change struct {
	Type              ChangeType `json:"type"`
	Path              string     `json:"path"`
	OldValue          any        `json:"old_value,omitempty"`
	NewValue          any        `json:"new_value,omitempty"`
	Severity          Severity   `json:"severity"`
	Description       string     `json:"description"`
	AffectedEndpoints []string   `json:"affected_endpoints,omitempty"`
	SuggestedFix      string     `json:"suggested_fix,omitempty"`
}

// ChangeSet groups changes within one diff bucket.
type ChangeSet struct {
	Added    []Change `json:"added,omitempty"`
	Removed  []Change `json:"removed,omitempty"`
	Modified []Change `json:"modified,omitempty"`
}

// Len returns the total number of changes in the set.
func (cs *ChangeSet) Len() int {
	return len(cs.Added) + len(cs.Removed) + len(cs.Modified)
}

// All returns every change in the set.
func (cs *ChangeSet) All() []Change {
	out := make([]Change, 0, cs.Len())
	out = append(out, cs.Added...)
	out = append(out, cs.Removed...)
	out = append(out, cs.Modified...)
	return out
}

// Summary counts changes per severity. TotalChanges always equals the sum
// of all bucket lengths; backward compatibility is derived from the
// breaking count alone.
type Summary struct {
	TotalChanges    int `json:"total_changes"`
	BreakingChanges int `json:"breaking_changes"`
	MajorChanges    int `json:"major_changes"`
	MinorChanges    int `json:"minor_changes"`
	PatchChanges    int `json:"patch_changes"`
}

// IsBackwardCompatible reports whether the new spec can serve existing clients.
func (s Summary) IsBackwardCompatible() bool {
	return s.BreakingChanges == 0
}

// SpecDiff aggregates the classified changes between two spec versions.
// Created once per comparison and never mutated afterwards.
type SpecDiff struct {
	OldVersion string    `json:"old_version"`
	NewVersion string    `json:"new_version"`
	Endpoints  ChangeSet `json:"endpoints"`
	Parameters ChangeSet `json:"parameters"`
	Schemas    ChangeSet `json:"schemas"`
	Auth       ChangeSet `json:"auth"`
	Metadata   ChangeSet `json:"metadata"`
	Summary    Summary   `json:"summary"`
}

func (d *SpecDiff) buckets() []*ChangeSet {
	return []*ChangeSet{&d.Endpoints, &d.Parameters, &d.Schemas, &d.Auth, &d.Metadata}
}

// AllChanges returns every change across all buckets.
func (d *SpecDiff) AllChanges() []Change {
	var out []Change
	for _, b := range d.buckets() {
		out = append(out, b.All()...)
	}
	return out
}

// ChangesForEndpoint returns the changes whose affected endpoints include
// the given "METHOD /path" reference.
func (d *SpecDiff) ChangesForEndpoint(endpoint string) []Change {
	var out []Change
	for _, c := range d.AllChanges() {
		for _, e := range c.AffectedEndpoints {
			if e == endpoint {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// recount recomputes the summary from the buckets.
func (d *SpecDiff) recount() {
	var s Summary
	for _, b := range d.buckets() {
		for _, c := range b.All() {
			s.TotalChanges++
			switch c.Severity {
			case SeverityBreaking:
				s.BreakingChanges++
			case SeverityMajor:
				s.MajorChanges++
			case SeverityMinor:
				s.MinorChanges++
			case SeverityPatch:
				s.PatchChanges++
			}
		}
	}
	d.Summary = s
}
