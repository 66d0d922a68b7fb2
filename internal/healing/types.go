// Package healing orchestrates the repair of tests broken by API changes.
// It combines a spec diff, a failure classification, a rule engine, and an
// AI completion capability into a decision per failing test, under a shared
// token/cost budget with fingerprint-keyed caching.
package healing

import (
	"regexp"
	"time"

	"github.com/kamilpajak/fring/internal/failure"
)

// Strategy identifies how a repair was (or would be) produced.
type Strategy string

const (
	StrategyAIPowered Strategy = "ai_powered"
	StrategyRuleBased Strategy = "rule_based"
	StrategyFallback  Strategy = "fallback"
)

// State is a healing attempt's position in its lifecycle.
type State string

const (
	StateDetected         State = "detected"
	StateAnalyzing        State = "analyzing"
	StateStrategySelected State = "strategy_selected"
	StateAIHealing        State = "ai_healing"
	StateRuleHealing      State = "rule_healing"
	StateValidating       State = "validating"
	StateHealed           State = "healed"
	StateFailed           State = "failed"
	StateBudgetExceeded   State = "budget_exceeded"
)

// Terminal reports whether the state ends an attempt.
func (s State) Terminal() bool {
	return s == StateHealed || s == StateFailed || s == StateBudgetExceeded
}

// Edit is a single find/replace applied to test source.
type Edit struct {
	Find        string `json:"find"`
	Replace     string `json:"replace"`
	Description string `json:"description,omitempty"`
}

// Patch is a proposed repair: either full replacement source, a set of
// edits, or both.
type Patch struct {
	Summary string `json:"summary,omitempty"`
	Source  string `json:"source,omitempty"`
	Edits   []Edit `json:"edits,omitempty"`
}

// Apply returns the patched source. Full-source patches win over edits.
// Edits whose ends fall on identifier characters are anchored on word
// boundaries, so a short token never rewrites the inside of a longer one.
func (p *Patch) Apply(source string) string {
	if p == nil {
		return source
	}
	if p.Source != "" {
		return p.Source
	}
	out := source
	for _, e := range p.Edits {
		out = replaceBounded(out, e.Find, e.Replace)
	}
	return out
}

func replaceBounded(source, find, replace string) string {
	if find == "" {
		return source
	}
	pat := regexp.QuoteMeta(find)
	if isWordByte(find[0]) {
		pat = `\b` + pat
	}
	if isWordByte(find[len(find)-1]) {
		pat += `\b`
	}
	return regexp.MustCompile(pat).ReplaceAllLiteralString(source, replace)
}

func isWordByte(b byte) bool {
	return b == '_' ||
		('0' <= b && b <= '9') ||
		('a' <= b && b <= 'z') ||
		('A' <= b && b <= 'Z')
}

// Decision is the cacheable outcome of strategy selection for one
// fingerprint. It carries no per-attempt identity.
type Decision struct {
	Strategy       Strategy `json:"strategy"`
	Healable       bool     `json:"healable"`
	Reason         string   `json:"reason,omitempty"`
	Patch          *Patch   `json:"patch,omitempty"`
	TokensUsed     int      `json:"tokens_used,omitempty"`
	EstimatedCost  float64  `json:"estimated_cost,omitempty"`
	BudgetExceeded bool     `json:"budget_exceeded,omitempty"`
}

// Attempt records one repair try. Appended to the healing history,
// never rewritten.
type Attempt struct {
	ID            string       `json:"id"`
	TestRef       string       `json:"test_ref"`
	Strategy      Strategy     `json:"strategy"`
	State         State        `json:"state"`
	StartTime     time.Time    `json:"start_time"`
	EndTime       time.Time    `json:"end_time"`
	Success       bool         `json:"success"`
	TokensUsed    int          `json:"tokens_used,omitempty"`
	EstimatedCost float64      `json:"estimated_cost,omitempty"`
	CacheHit      bool         `json:"cache_hit"`
	FailureType   failure.Type `json:"failure_type"`
	Reason        string       `json:"reason,omitempty"`
	Patched       string       `json:"patched,omitempty"`
}

// Duration returns the wall-clock time the attempt took.
func (a *Attempt) Duration() time.Duration {
	return a.EndTime.Sub(a.StartTime)
}

// Config tunes retry, budget, cache, and concurrency behavior for a run.
type Config struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterFactor      float64

	// MaxTokens and MaxCostPerRun bound the shared budget. Zero means
	// unlimited for that dimension.
	MaxTokens     int64
	MaxCostPerRun float64

	// CostPerMillionTokens converts token usage to an estimated cost.
	CostPerMillionTokens float64

	CacheTTL  time.Duration
	CacheSize int

	Concurrency       int
	RequestsPerSecond float64
}

// DefaultConfig returns the tuning used when the caller does not override.
func DefaultConfig() Config {
	return Config{
		MaxRetries:           3,
		InitialDelay:         500 * time.Millisecond,
		MaxDelay:             15 * time.Second,
		BackoffMultiplier:    2.0,
		JitterFactor:         0.2,
		MaxTokens:            500_000,
		MaxCostPerRun:        5.0,
		CostPerMillionTokens: 0.60,
		CacheTTL:             24 * time.Hour,
		CacheSize:            1024,
		Concurrency:          4,
		RequestsPerSecond:    2,
	}
}

// withDefaults fills zero fields so a partially specified Config is usable.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.BackoffMultiplier <= 1 {
		c.BackoffMultiplier = d.BackoffMultiplier
	}
	if c.JitterFactor < 0 || c.JitterFactor > 1 {
		c.JitterFactor = d.JitterFactor
	}
	if c.CostPerMillionTokens <= 0 {
		c.CostPerMillionTokens = d.CostPerMillionTokens
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = d.CacheTTL
	}
	if c.CacheSize <= 0 {
		c.CacheSize = d.CacheSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = d.RequestsPerSecond
	}
	return c
}
