package specdiff

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TypeTransition is a schema/parameter type change from one primitive to another.
type TypeTransition struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// SeverityPolicy maps type transitions to severities. Transitions absent
// from the table are treated as narrowing and classified Breaking.
type SeverityPolicy map[TypeTransition]Severity

// DefaultSeverityPolicy returns the built-in widen/narrow table. Widening
// transitions keep existing client values valid and rank Major; everything
// else is Breaking.
func DefaultSeverityPolicy() SeverityPolicy {
	return SeverityPolicy{
		{From: "integer", To: "number"}: SeverityMajor,
		{From: "integer", To: "string"}: SeverityMajor,
		{From: "number", To: "string"}:  SeverityMajor,
		{From: "boolean", To: "string"}: SeverityMajor,
	}
}

// ForTypeChange returns the severity of changing a declared type.
func (p SeverityPolicy) ForTypeChange(from, to string) Severity {
	if from == to {
		return SeverityPatch
	}
	if sev, ok := p[TypeTransition{From: from, To: to}]; ok {
		return sev
	}
	return SeverityBreaking
}

// policyFile is the YAML shape of a severity policy override file.
type policyFile struct {
	Transitions []struct {
		From     string   `yaml:"from"`
		To       string   `yaml:"to"`
		Severity Severity `yaml:"severity"`
	} `yaml:"transitions"`
}

// LoadSeverityPolicy reads a policy YAML file and merges it over the defaults.
func LoadSeverityPolicy(path string) (SeverityPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read severity policy: %w", err)
	}

	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse severity policy: %w", err)
	}

	policy := DefaultSeverityPolicy()
	for _, t := range pf.Transitions {
		switch t.Severity {
		case SeverityBreaking, SeverityMajor, SeverityMinor, SeverityPatch:
		default:
			return nil, fmt.Errorf("invalid severity %q for transition %s->%s", t.Severity, t.From, t.To)
		}
		policy[TypeTransition{From: t.From, To: t.To}] = t.Severity
	}
	return policy, nil
}
