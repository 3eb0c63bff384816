package toolwire

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_RecordsCallsAndFailures(t *testing.T) {
	tr := NewTracker(decimal.Zero, nil)

	tr.Record("p1", "read", 10*time.Millisecond, nil)
	tr.Record("p1", "read", 20*time.Millisecond, errors.New("boom"))
	tr.Record("p2", "search", 5*time.Millisecond, nil)

	stats := tr.Stats()
	require.Contains(t, stats, "read")
	assert.Equal(t, 2, stats["read"].Calls)
	assert.Equal(t, 1, stats["read"].Failures)
	assert.Equal(t, 30*time.Millisecond, stats["read"].Elapsed)
	assert.Equal(t, "p1", stats["read"].Provider)

	assert.Equal(t, 1, stats["search"].Calls)
	assert.Equal(t, 0, stats["search"].Failures)
}

func TestTracker_CostAccounting(t *testing.T) {
	costs := map[string]decimal.Decimal{
		"search": decimal.RequireFromString("0.01"),
	}
	tr := NewTracker(decimal.RequireFromString("0.025"), costs)

	tr.Record("p1", "search", time.Millisecond, nil)
	tr.Record("p1", "free_tool", time.Millisecond, nil)

	assert.True(t, tr.TotalCost().Equal(decimal.RequireFromString("0.01")))
	assert.True(t, tr.Remaining().Equal(decimal.RequireFromString("0.015")))
	assert.False(t, tr.Exhausted())

	tr.Record("p1", "search", time.Millisecond, nil)
	tr.Record("p1", "search", time.Millisecond, nil)

	assert.True(t, tr.TotalCost().Equal(decimal.RequireFromString("0.03")))
	assert.True(t, tr.Exhausted())
}

func TestTracker_UnlimitedBudget(t *testing.T) {
	tr := NewTracker(decimal.Zero, map[string]decimal.Decimal{
		"x": decimal.RequireFromString("1000"),
	})

	for i := 0; i < 10; i++ {
		tr.Record("p1", "x", 0, nil)
	}

	assert.True(t, tr.Remaining().Equal(MaxDecimal))
	assert.False(t, tr.Exhausted())
}

func TestTracker_ConcurrentRecord(t *testing.T) {
	tr := NewTracker(decimal.Zero, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Record("p1", "tool", time.Microsecond, nil)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 800, tr.Stats()["tool"].Calls)
}
