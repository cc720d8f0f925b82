package coordination

import (
	"errors"
	"fmt"
	"time"
)

// costTTL is the TTL applied to a day's counter key. It outlives the 24h
// day it tracks so that timezone-adjacent readers (a process running
// slightly behind UTC midnight) still see the prior day's total.
const costTTL = 48 * time.Hour

// ErrNegativeAmount is returned when Add is called with a negative amount.
var ErrNegativeAmount = errors.New("cost amount must be non-negative")

// CostTracker maintains a daily cumulative cost counter keyed by UTC
// calendar date, with a budget predicate the pipeline driver consults
// before starting any scrape work.
type CostTracker struct {
	store      *Store
	budgetUSD  float64
}

// NewCostTracker builds a tracker enforcing the given daily budget in USD.
func NewCostTracker(store *Store, budgetUSD float64) *CostTracker {
	return &CostTracker{store: store, budgetUSD: budgetUSD}
}

func (c *CostTracker) key(date string) []byte {
	return []byte(fmt.Sprintf("cost:daily:%s", date))
}

func todayKey() string {
	return time.Now().UTC().Format("2006-01-02")
}

// Add records amount against today's counter and returns the new total.
// Rejects negative amounts; sets the key's TTL only on first write for the
// day.
func (c *CostTracker) Add(amount float64) (float64, error) {
	if amount < 0 {
		return 0, ErrNegativeAmount
	}
	total, err := c.store.incrByFloat(c.key(todayKey()), amount, costTTL)
	if err != nil {
		return 0, fmt.Errorf("cost tracker add: %w", err)
	}
	return total, nil
}

// Today returns today's cumulative cost without modifying it.
func (c *CostTracker) Today() (float64, error) {
	total, err := c.store.readFloatCounter(c.key(todayKey()))
	if err != nil {
		return 0, fmt.Errorf("cost tracker today: %w", err)
	}
	return total, nil
}

// IsBudgetExceeded reports whether today's total is at or above the
// configured daily budget.
func (c *CostTracker) IsBudgetExceeded() (bool, error) {
	total, err := c.Today()
	if err != nil {
		return false, err
	}
	return total >= c.budgetUSD, nil
}

// RemainingBudget returns the budget headroom left for today; never
// negative.
func (c *CostTracker) RemainingBudget() (float64, error) {
	total, err := c.Today()
	if err != nil {
		return 0, err
	}
	remaining := c.budgetUSD - total
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// ResetToday clears today's counter. Intended for operator use and tests.
func (c *CostTracker) ResetToday() error {
	return c.store.deleteKey(c.key(todayKey()))
}
