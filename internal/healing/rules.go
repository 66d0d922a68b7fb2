package healing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kamilpajak/fring/internal/failure"
	"github.com/kamilpajak/fring/internal/specdiff"
)

// RuleEngine proposes deterministic patches from spec-diff changes and
// failure classifications, without external calls.
type RuleEngine struct{}

// Propose returns a patch when the diff yields a deterministic mapping
// for the observed failure, or nil when no rule applies.
func (RuleEngine) Propose(analysis *failure.FailureAnalysis, changes []specdiff.Change) *Patch {
	if p := proposeRename(changes); p != nil {
		return p
	}
	if p := proposeMethodSwap(changes); p != nil {
		return p
	}
	if p := proposeStatusAdjust(analysis, changes); p != nil {
		return p
	}
	return nil
}

// Fallback returns the degraded no-AI patch: currently only a timeout
// bump for timeout failures. Nil means the test is reported unhealable.
func (RuleEngine) Fallback(analysis *failure.FailureAnalysis) *Patch {
	if analysis == nil || analysis.Type != failure.TypeTimeout || analysis.Specific.Timeout == nil {
		return nil
	}
	ms := analysis.Specific.Timeout.TimeoutMS
	if ms <= 0 {
		return nil
	}
	return &Patch{
		Summary: fmt.Sprintf("double the %dms timeout", ms),
		Edits: []Edit{{
			Find:        strconv.Itoa(ms),
			Replace:     strconv.Itoa(ms * 2),
			Description: "increase timeout to absorb slow responses",
		}},
	}
}

// proposeRename maps field/parameter renames straight to text edits.
// A rename detected in the diff is the strongest repair signal there is.
func proposeRename(changes []specdiff.Change) *Patch {
	var edits []Edit
	for _, ch := range changes {
		if ch.Type != specdiff.ChangeFieldRenamed {
			continue
		}
		oldName, okOld := ch.OldValue.(string)
		newName, okNew := ch.NewValue.(string)
		if !okOld || !okNew || oldName == "" || oldName == newName {
			continue
		}
		edits = append(edits, Edit{
			Find:        oldName,
			Replace:     newName,
			Description: fmt.Sprintf("rename %s to %s per %s", oldName, newName, ch.Path),
		})
	}
	if len(edits) == 0 {
		return nil
	}
	return &Patch{Summary: "apply field renames from spec diff", Edits: edits}
}

// proposeMethodSwap detects an endpoint removed and re-added under a
// different HTTP method at the same path (e.g. PUT replaced by PATCH).
func proposeMethodSwap(changes []specdiff.Change) *Patch {
	removed := map[string]string{} // path -> method
	added := map[string]string{}
	for _, ch := range changes {
		method, path, ok := splitEndpoint(ch.Path)
		if !ok {
			continue
		}
		switch {
		case ch.Type == specdiff.ChangeFieldRemoved && ch.Severity == specdiff.SeverityBreaking:
			removed[path] = method
		case ch.Type == specdiff.ChangeFieldAdded:
			added[path] = method
		}
	}

	var edits []Edit
	for path, oldMethod := range removed {
		newMethod, ok := added[path]
		if !ok || newMethod == oldMethod {
			continue
		}
		// Target the call site so prose or identifiers containing the
		// method name are left alone.
		edits = append(edits, Edit{
			Find:        "." + strings.ToLower(oldMethod) + "(",
			Replace:     "." + strings.ToLower(newMethod) + "(",
			Description: fmt.Sprintf("%s %s replaced by %s", oldMethod, path, newMethod),
		})
	}
	if len(edits) == 0 {
		return nil
	}
	return &Patch{Summary: "swap HTTP method per spec diff", Edits: edits}
}

// proposeStatusAdjust rewrites the test's expected status code when the
// assertion observed a code the new spec now declares for the endpoint.
func proposeStatusAdjust(analysis *failure.FailureAnalysis, changes []specdiff.Change) *Patch {
	if analysis == nil || analysis.Type != failure.TypeAssertion || analysis.Specific.Assertion == nil {
		return nil
	}
	expected, errExp := strconv.Atoi(analysis.Specific.Assertion.Expected)
	observed, errObs := strconv.Atoi(analysis.Specific.Assertion.Actual)
	if errExp != nil || errObs != nil || expected == observed {
		return nil
	}

	for _, ch := range changes {
		if ch.Type != specdiff.ChangeFieldAdded || !strings.Contains(ch.Path, "responses.") {
			continue
		}
		idx := strings.LastIndex(ch.Path, "responses.")
		code := ch.Path[idx+len("responses."):]
		// Only deterministic when the observed code is now spec-declared.
		if n, err := strconv.Atoi(code); err == nil && n == observed {
			return &Patch{
				Summary: fmt.Sprintf("expect status %d instead of %d", observed, expected),
				Edits: []Edit{{
					Find:        strconv.Itoa(expected),
					Replace:     strconv.Itoa(observed),
					Description: fmt.Sprintf("response code changed per %s", ch.Path),
				}},
			}
		}
	}
	return nil
}

// splitEndpoint parses the "METHOD /path" form used for endpoint changes.
func splitEndpoint(s string) (method, path string, ok bool) {
	method, path, found := strings.Cut(s, " ")
	if !found || !strings.HasPrefix(path, "/") {
		return "", "", false
	}
	return method, path, true
}
