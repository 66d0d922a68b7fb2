package healing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kamilpajak/fring/internal/failure"
	"github.com/kamilpajak/fring/internal/llm"
	"github.com/kamilpajak/fring/internal/specdiff"
	"github.com/kamilpajak/fring/pkg/models"
)

// ErrInvalidInput marks a caller contract violation: the request does not
// describe a failed test that can be healed.
var ErrInvalidInput = errors.New("invalid healing input")

// Request describes one failing test to heal.
type Request struct {
	Test        *models.TestResult
	Source      string            // test source text, patched on success
	Diff        *specdiff.SpecDiff // optional spec diff context
	SpecVersion string
}

// Validator re-executes a patched test and reports whether it passes.
// Implementations live outside this package; the orchestrator only
// consumes the pass/fail signal.
type Validator interface {
	Validate(ctx context.Context, test *models.TestResult, patched string) (bool, error)
}

// Orchestrator drives healing attempts through their state machine. The
// cache and budget it holds are the run's only shared mutable state;
// everything else is per-attempt.
type Orchestrator struct {
	cfg       Config
	completer llm.Completer
	store     Store
	validator Validator
	emitter   Emitter

	cache   *Cache
	budget  *Budget
	rules   RuleEngine
	limiter *rate.Limiter
	sleep   func(context.Context, time.Duration) error

	mu      sync.Mutex
	history []Attempt
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCompleter enables AI-powered healing through the given capability.
func WithCompleter(c llm.Completer) Option {
	return func(o *Orchestrator) { o.completer = c }
}

// WithStore backs the decision cache with a persistent store.
func WithStore(s Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithValidator re-executes patched tests before declaring them healed.
func WithValidator(v Validator) Option {
	return func(o *Orchestrator) { o.validator = v }
}

// WithEmitter routes progress events to the given emitter.
func WithEmitter(e Emitter) Option {
	return func(o *Orchestrator) { o.emitter = e }
}

// New creates an orchestrator for one healing run.
func New(cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:   cfg.withDefaults(),
		sleep: sleep,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.budget = NewBudget(o.cfg.MaxTokens, o.cfg.MaxCostPerRun)
	o.cache = NewCache(o.cfg.CacheSize, o.cfg.CacheTTL, o.store)
	o.limiter = rate.NewLimiter(rate.Limit(o.cfg.RequestsPerSecond), 1)
	return o
}

// Budget exposes the shared run budget for reporting.
func (o *Orchestrator) Budget() *Budget {
	return o.budget
}

// InvalidateSpecVersion drops cached decisions made against an outdated
// spec version.
func (o *Orchestrator) InvalidateSpecVersion(ctx context.Context, specVersion string) error {
	return o.cache.InvalidateSpecVersion(ctx, specVersion)
}

// Attempts returns a copy of the healing history accumulated so far.
func (o *Orchestrator) Attempts() []Attempt {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Attempt, len(o.history))
	copy(out, o.history)
	return out
}

// Heal runs the full state machine for one failing test. Degraded
// conditions (AI unavailable, budget exhausted, cache trouble) surface in
// the returned Attempt, not as errors; only an invalid request or
// cancellation returns a non-nil error.
func (o *Orchestrator) Heal(ctx context.Context, req Request) (*Attempt, error) {
	if req.Test == nil || req.Test.ID() == "" {
		return nil, fmt.Errorf("%w: missing test identity", ErrInvalidInput)
	}

	attempt := &Attempt{
		ID:        uuid.NewString(),
		TestRef:   req.Test.ID(),
		StartTime: time.Now(),
	}
	o.transition(attempt, StateDetected)

	o.transition(attempt, StateAnalyzing)
	analysis, err := failure.Analyze(req.Test)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	attempt.FailureType = analysis.Type

	fp := Fingerprint(req.Test.ID(), analysis.Type, req.Test.Error.Message, req.SpecVersion)
	changes := relevantChanges(req.Diff, req.Test)

	decision, hit, err := o.cache.Do(ctx, fp, req.SpecVersion, func(ctx context.Context) (*Decision, error) {
		return o.decide(ctx, attempt, req.Source, analysis, changes)
	})
	if err != nil {
		attempt.Reason = "cancelled"
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			attempt.Reason = err.Error()
		}
		o.finish(attempt, StateFailed)
		return attempt, err
	}

	attempt.CacheHit = hit
	attempt.Strategy = decision.Strategy
	attempt.Reason = decision.Reason
	if hit {
		// The leader emitted the selection transitions while computing;
		// a hit replays the selection so this attempt's state stream
		// still walks the machine.
		o.transition(attempt, StateStrategySelected)
	} else {
		// A cache hit never consumes tokens or cost.
		attempt.TokensUsed = decision.TokensUsed
		attempt.EstimatedCost = decision.EstimatedCost
	}

	if !decision.Healable {
		if decision.BudgetExceeded {
			o.finish(attempt, StateBudgetExceeded)
		} else {
			o.finish(attempt, StateFailed)
		}
		return attempt, nil
	}

	attempt.Patched = decision.Patch.Apply(req.Source)
	o.transition(attempt, StateValidating)
	if o.validator != nil {
		ok, verr := o.validator.Validate(ctx, req.Test, attempt.Patched)
		if verr != nil {
			attempt.Reason = "validation error: " + verr.Error()
			o.finish(attempt, StateFailed)
			return attempt, nil
		}
		if !ok {
			attempt.Reason = "patched test still fails"
			o.finish(attempt, StateFailed)
			return attempt, nil
		}
	}

	attempt.Success = true
	o.finish(attempt, StateHealed)
	return attempt, nil
}

// HealAll heals every request concurrently, bounded by the configured
// limit. Attempts are returned in request order; slots for requests that
// never produced an attempt are nil.
func (o *Orchestrator) HealAll(ctx context.Context, reqs []Request) ([]*Attempt, error) {
	attempts := make([]*Attempt, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)

	for i, req := range reqs {
		g.Go(func() error {
			a, err := o.Heal(ctx, req)
			attempts[i] = a
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		})
	}

	err := g.Wait()
	return attempts, err
}

// decide runs as the cache leader for a fingerprint: rule-based first,
// then AI within budget, then the degraded fallback. It only fails on
// cancellation; every other condition becomes a Decision.
func (o *Orchestrator) decide(ctx context.Context, attempt *Attempt, source string, analysis *failure.FailureAnalysis, changes []specdiff.Change) (*Decision, error) {
	if p := o.rules.Propose(analysis, changes); p != nil {
		o.transition(attempt, StateStrategySelected)
		o.transition(attempt, StateRuleHealing)
		return &Decision{Strategy: StrategyRuleBased, Healable: true, Reason: p.Summary, Patch: p}, nil
	}

	aiSkippedOnBudget := false
	if o.completer != nil {
		if o.budget.Exceeded() {
			aiSkippedOnBudget = true
		} else {
			d, err := o.aiDecision(ctx, attempt, source, analysis, changes)
			switch {
			case errors.Is(err, errBudgetRefused):
				aiSkippedOnBudget = true
			case err != nil:
				return nil, err
			case d != nil:
				return d, nil
			}
			// Otherwise retries were exhausted; degrade to fallback.
		}
	}

	o.transition(attempt, StateStrategySelected)
	if p := o.rules.Fallback(analysis); p != nil {
		return &Decision{
			Strategy:       StrategyFallback,
			Healable:       true,
			Reason:         p.Summary,
			Patch:          p,
			BudgetExceeded: aiSkippedOnBudget,
		}, nil
	}
	reason := "no applicable repair rule"
	if aiSkippedOnBudget {
		reason = "budget exhausted and no applicable repair rule"
	}
	return &Decision{
		Strategy:       StrategyFallback,
		Healable:       false,
		Reason:         reason,
		BudgetExceeded: aiSkippedOnBudget,
	}, nil
}

// errBudgetRefused signals that the budget could not cover the estimated
// reservation for an AI call. Internal to strategy selection.
var errBudgetRefused = errors.New("budget reservation refused")

// aiDecision reserves budget, then retries the completion capability with
// exponential backoff. A nil, nil return means retries were exhausted and
// the caller should fall back; errors are errBudgetRefused or
// cancellation only.
func (o *Orchestrator) aiDecision(ctx context.Context, attempt *Attempt, source string, analysis *failure.FailureAnalysis, changes []specdiff.Change) (*Decision, error) {
	prompt := buildPrompt(source, analysis, changes)
	reserved := estimateTokens(prompt)
	reservedCost := o.microsFor(reserved)
	if !o.budget.Reserve(reserved, reservedCost) {
		return nil, errBudgetRefused
	}

	o.transition(attempt, StateStrategySelected)
	o.transition(attempt, StateAIHealing)
	for try := 0; try < o.cfg.MaxRetries; try++ {
		if try > 0 {
			if err := o.sleep(ctx, backoffDelay(o.cfg, try-1)); err != nil {
				o.budget.Refund(reserved, reservedCost)
				return nil, err
			}
		}
		if err := o.limiter.Wait(ctx); err != nil {
			o.budget.Refund(reserved, reservedCost)
			return nil, err
		}

		out, err := o.completer.Complete(ctx, prompt)
		if err != nil {
			if ctx.Err() != nil {
				o.budget.Refund(reserved, reservedCost)
				return nil, ctx.Err()
			}
			o.emit(Event{Type: "retry", TestRef: attempt.TestRef, Try: try + 1, MaxTries: o.cfg.MaxRetries, Message: err.Error()})
			continue
		}

		// Settle the reservation against actual usage.
		used := int64(out.TotalTokens())
		usedCost := o.microsFor(used)
		if used <= reserved {
			o.budget.Refund(reserved-used, reservedCost-usedCost)
		} else {
			// Tokens are already spent; record the overrun even past
			// the ceiling.
			o.budget.Consume(used-reserved, usedCost-reservedCost)
		}

		d := &Decision{
			Strategy:      StrategyAIPowered,
			TokensUsed:    int(used),
			EstimatedCost: float64(usedCost) / 1e6,
		}
		if p := parseCompletion(out.Text); p != nil {
			d.Healable = true
			d.Patch = p
			d.Reason = p.Summary
		} else {
			d.Reason = "model declared test unhealable"
		}
		return d, nil
	}

	o.budget.Refund(reserved, reservedCost)
	return nil, nil
}

// estimateTokens sizes the reservation before the call: a rough 4 bytes
// per token for the prompt plus a response allowance.
func estimateTokens(p llm.Prompt) int64 {
	return int64((len(p.System)+len(p.User))/4) + 1024
}

// microsFor converts a token count to micro-dollars at the configured rate.
func (o *Orchestrator) microsFor(tokens int64) int64 {
	return int64(float64(tokens) * o.cfg.CostPerMillionTokens)
}

// relevantChanges narrows a diff to the changes touching the endpoint
// under test. Changes scoped to endpoints the test never mentions are
// dropped, never applied speculatively; a repair signal only counts at
// the failing test's own path. Changes with no endpoint scope (global
// schema or auth changes) are always in play.
func relevantChanges(diff *specdiff.SpecDiff, test *models.TestResult) []specdiff.Change {
	if diff == nil {
		return nil
	}

	hay := strings.ToLower(test.TestPath + " " + test.TestName)
	if test.Error != nil {
		hay += " " + strings.ToLower(test.Error.Message)
	}

	var out []specdiff.Change
	for _, ch := range diff.AllChanges() {
		if len(ch.AffectedEndpoints) == 0 {
			out = append(out, ch)
			continue
		}
		for _, ep := range ch.AffectedEndpoints {
			_, path, ok := splitEndpoint(ep)
			if ok && (strings.Contains(hay, strings.ToLower(ep)) || strings.Contains(hay, strings.ToLower(path))) {
				out = append(out, ch)
				break
			}
		}
	}
	return out
}

func (o *Orchestrator) transition(a *Attempt, s State) {
	a.State = s
	o.emit(Event{Type: "state", TestRef: a.TestRef, State: s, Strategy: a.Strategy})
}

func (o *Orchestrator) finish(a *Attempt, s State) {
	a.State = s
	a.EndTime = time.Now()
	o.mu.Lock()
	o.history = append(o.history, *a)
	o.mu.Unlock()
	o.emit(Event{Type: "done", TestRef: a.TestRef, State: s, Strategy: a.Strategy, Message: a.Reason})
}

func (o *Orchestrator) emit(ev Event) {
	if o.emitter != nil {
		o.emitter.Emit(ev)
	}
}
