package service

import (
	"time"

	"github.com/shopspring/decimal"
)

// Throttle batches energy increments so a group publishes at most once per interval.
// The first increment flushes immediately, later ones accumulate until the
// window since the last flush has elapsed. An interval of 0 flushes every time.
type Throttle struct {
	interval   time.Duration
	lastFlush  time.Time
	flushed    bool
	pending    decimal.Decimal
	hasPending bool
}

func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{
		interval: interval,
		pending:  decimal.Zero,
	}
}

func (t *Throttle) Interval() time.Duration {
	return t.interval
}

func (t *Throttle) SetInterval(interval time.Duration) {
	t.interval = interval
}

// Add registers an increment and returns the amount to publish, if any.
func (t *Throttle) Add(delta decimal.Decimal, now time.Time) (decimal.Decimal, bool) {
	t.pending = t.pending.Add(delta)
	t.hasPending = true
	return t.flushIfDue(now)
}

// Tick flushes pending increments whose window has elapsed.
func (t *Throttle) Tick(now time.Time) (decimal.Decimal, bool) {
	if !t.hasPending {
		return decimal.Zero, false
	}
	return t.flushIfDue(now)
}

// NextFlush returns when pending increments become publishable.
func (t *Throttle) NextFlush() (time.Time, bool) {
	if !t.hasPending {
		return time.Time{}, false
	}
	return t.lastFlush.Add(t.interval), true
}

// Discard drops pending increments, used when the total is overwritten.
func (t *Throttle) Discard(now time.Time) {
	t.pending = decimal.Zero
	t.hasPending = false
	t.lastFlush = now
	t.flushed = true
}

func (t *Throttle) flushIfDue(now time.Time) (decimal.Decimal, bool) {
	if t.flushed && t.interval > 0 && now.Sub(t.lastFlush) < t.interval {
		return decimal.Zero, false
	}
	amount := t.pending
	t.pending = decimal.Zero
	t.hasPending = false
	t.lastFlush = now
	t.flushed = true
	return amount, true
}
