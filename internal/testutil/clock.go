package testutil

import (
	"fmt"
	"sync"
	"time"

	"pushback/internal/pushback"
)

// StubClock is a settable pushback.Clock that starts at a fixed instant and
// only moves when a test advances it. Safe for concurrent use.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewStubClock creates a StubClock set to t.
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock on Monday 2024-01-15 10:30 UTC, the start
// of ISO week 2024W03.
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// AdvanceToNextBucket moves the clock hour by hour until the time suffix
// for spec changes and returns the new suffix. It fails for snapshot modes
// without buckets.
func (c *StubClock) AdvanceToNextBucket(spec pushback.SnapshotSpec) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	start := pushback.TimeSuffix(spec, c.now)
	limit := 367 * 24
	if spec.Mode == pushback.SnapshotCustom && spec.CustomHours > limit {
		limit = spec.CustomHours
	}
	for i := 0; i < limit; i++ {
		c.now = c.now.Add(time.Hour)
		if next := pushback.TimeSuffix(spec, c.now); next != start {
			return next, nil
		}
	}
	return "", fmt.Errorf("snapshot mode %q has no time buckets", spec.Mode)
}

// StubIDGenerator hands out run IDs "run-1", "run-2" and so on.
type StubIDGenerator struct {
	mu   sync.Mutex
	next int
}

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("run-%d", g.next)
}

var (
	_ pushback.Clock       = (*StubClock)(nil)
	_ pushback.IDGenerator = (*StubIDGenerator)(nil)
)
