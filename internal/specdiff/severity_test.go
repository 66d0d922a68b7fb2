package specdiff

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamilpajak/fring/internal/openapi"
)

func TestSeverityPolicy_Defaults(t *testing.T) {
	policy := DefaultSeverityPolicy()

	assert.Equal(t, SeverityMajor, policy.ForTypeChange("integer", "number"), "widening")
	assert.Equal(t, SeverityBreaking, policy.ForTypeChange("number", "integer"), "narrowing")
	assert.Equal(t, SeverityBreaking, policy.ForTypeChange("string", "integer"), "narrowing")
	assert.Equal(t, SeverityBreaking, policy.ForTypeChange("object", "array"), "unlisted transition")
	assert.Equal(t, SeverityPatch, policy.ForTypeChange("string", "string"), "no change")
}

func TestLoadSeverityPolicy_MergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
transitions:
  - from: number
    to: integer
    severity: major
  - from: string
    to: boolean
    severity: minor
`), 0644))

	policy, err := LoadSeverityPolicy(path)
	require.NoError(t, err)

	assert.Equal(t, SeverityMajor, policy.ForTypeChange("number", "integer"), "override")
	assert.Equal(t, SeverityMinor, policy.ForTypeChange("string", "boolean"), "new entry")
	assert.Equal(t, SeverityMajor, policy.ForTypeChange("integer", "number"), "default kept")
}

func TestLoadSeverityPolicy_RejectsInvalidSeverity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
transitions:
  - from: a
    to: b
    severity: catastrophic
`), 0644))

	_, err := LoadSeverityPolicy(path)
	assert.Error(t, err)
}

func TestCompare_WithCustomPolicy(t *testing.T) {
	policy := DefaultSeverityPolicy()
	policy[TypeTransition{From: "string", To: "integer"}] = SeverityMajor

	oldSpec := specWithSchema("Product", &openapi.Schema{Type: "string"})
	newSpec := specWithSchema("Product", &openapi.Schema{Type: "integer"})

	diff := Compare(oldSpec, newSpec, WithSeverityPolicy(policy))

	require.Len(t, diff.Schemas.Modified, 1)
	assert.Equal(t, SeverityMajor, diff.Schemas.Modified[0].Severity)
}
