package healing

import "sync/atomic"

// costMicros converts a dollar amount to integer micro-dollars so the
// budget can be updated atomically without floating-point races.
func costMicros(usd float64) int64 {
	return int64(usd * 1e6)
}

// Budget is the shared token/cost ceiling for one healing run. Reservations
// use add-then-check with rollback so two concurrent attempts cannot both
// slip past the ceiling.
type Budget struct {
	maxTokens int64
	maxCost   int64 // micro-dollars

	tokens atomic.Int64
	cost   atomic.Int64
}

// NewBudget creates a budget. Zero for either ceiling means unlimited
// in that dimension.
func NewBudget(maxTokens int64, maxCostUSD float64) *Budget {
	return &Budget{
		maxTokens: maxTokens,
		maxCost:   costMicros(maxCostUSD),
	}
}

// Reserve attempts to claim tokens and cost against the ceilings. It
// returns false, leaving the budget untouched, if either would be
// exceeded.
func (b *Budget) Reserve(tokens, micros int64) bool {
	if t := b.tokens.Add(tokens); b.maxTokens > 0 && t > b.maxTokens {
		b.tokens.Add(-tokens)
		return false
	}
	if c := b.cost.Add(micros); b.maxCost > 0 && c > b.maxCost {
		b.cost.Add(-micros)
		b.tokens.Add(-tokens)
		return false
	}
	return true
}

// Consume records usage unconditionally, past the ceilings if need be.
// Used to settle actual spend after the fact: the tokens are already
// gone, so there is nothing to refuse or roll back.
func (b *Budget) Consume(tokens, micros int64) {
	b.tokens.Add(tokens)
	b.cost.Add(micros)
}

// Refund returns a previously reserved amount, in whole or in part.
func (b *Budget) Refund(tokens, micros int64) {
	b.tokens.Add(-tokens)
	b.cost.Add(-micros)
}

// Exceeded reports whether either ceiling has been reached.
func (b *Budget) Exceeded() bool {
	if b.maxTokens > 0 && b.tokens.Load() >= b.maxTokens {
		return true
	}
	if b.maxCost > 0 && b.cost.Load() >= b.maxCost {
		return true
	}
	return false
}

// ConsumedTokens returns the tokens reserved so far.
func (b *Budget) ConsumedTokens() int64 {
	return b.tokens.Load()
}

// ConsumedCost returns the cost reserved so far, in dollars.
func (b *Budget) ConsumedCost() float64 {
	return float64(b.cost.Load()) / 1e6
}
