package toolwire

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MaxDecimal is a sentinel value representing an effectively unlimited
// remaining budget.
var MaxDecimal = decimal.New(1, 18) // 1e18

// CallStats holds cumulative accounting for one tool.
type CallStats struct {
	Provider string
	Calls    int
	Failures int
	Elapsed  time.Duration
}

// Tracker records per-tool call accounting across a registry: call counts,
// failures, cumulative wall-clock time, and — when a cost table is
// configured — cumulative USD cost. It is safe for concurrent use.
//
// Wire it into a registry with WithTracker; the registry records every
// ExecuteTool it routes.
type Tracker struct {
	maxBudget decimal.Decimal // 0 = unlimited
	costs     map[string]decimal.Decimal

	mu        sync.Mutex
	totalCost decimal.Decimal
	byTool    map[string]*CallStats
}

// NewTracker creates a tracker. maxBudget of zero means unlimited. costs
// maps tool name to USD cost per call; tools absent from the table are
// counted but cost nothing.
func NewTracker(maxBudget decimal.Decimal, costs map[string]decimal.Decimal) *Tracker {
	return &Tracker{
		maxBudget: maxBudget,
		costs:     costs,
		totalCost: decimal.Zero,
		byTool:    make(map[string]*CallStats),
	}
}

// Record accounts for a single completed call.
func (t *Tracker) Record(provider, tool string, elapsed time.Duration, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.byTool[tool]
	if !ok {
		s = &CallStats{Provider: provider}
		t.byTool[tool] = s
	}
	s.Calls++
	s.Elapsed += elapsed
	if err != nil {
		s.Failures++
	}

	if cost, ok := t.costs[tool]; ok {
		t.totalCost = t.totalCost.Add(cost)
	}
}

// Stats returns a copy of the accumulated per-tool stats.
func (t *Tracker) Stats() map[string]CallStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]CallStats, len(t.byTool))
	for name, s := range t.byTool {
		out[name] = *s
	}
	return out
}

// TotalCost returns the cumulative cost across all recorded calls.
func (t *Tracker) TotalCost() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalCost
}

// Remaining returns the remaining budget, or MaxDecimal when unlimited.
func (t *Tracker) Remaining() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.maxBudget.IsZero() {
		return MaxDecimal
	}
	return t.maxBudget.Sub(t.totalCost)
}

// Exhausted returns true once the total cost reaches maxBudget. Always
// false when the budget is unlimited.
func (t *Tracker) Exhausted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.maxBudget.IsZero() {
		return false
	}
	return t.totalCost.GreaterThanOrEqual(t.maxBudget)
}
