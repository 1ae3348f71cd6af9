// ABOUTME: Tests for the dedupe cache used to collapse repeated log lines.
// ABOUTME: Validates windows, repeat counting, eviction, sweeping and concurrency.

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

func newTestCache(ttl time.Duration, maxSize int) (*Cache, *testingclock.FakeClock) {
	clk := testingclock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return New(ttl, maxSize, clk), clk
}

func TestCache_CheckAndMark_FirstSightingIsNew(t *testing.T) {
	c, _ := newTestCache(time.Minute, 10)
	defer c.Close()

	assert.False(t, c.Check("conn reset"))
	assert.False(t, c.CheckAndMark("conn reset"))
	assert.True(t, c.Check("conn reset"))
}

func TestCache_CheckAndMark_CountsRepeatsInsideWindow(t *testing.T) {
	c, clk := newTestCache(time.Minute, 10)
	defer c.Close()

	require.False(t, c.CheckAndMark("timeout"))
	for i := 0; i < 3; i++ {
		clk.Step(10 * time.Second)
		assert.True(t, c.CheckAndMark("timeout"))
	}
	assert.Equal(t, 3, c.Repeats("timeout"))

	// Repeats do not extend the window: 30s elapsed, 30s more expires it.
	clk.Step(30 * time.Second)
	assert.False(t, c.Check("timeout"))
	assert.Zero(t, c.Repeats("timeout"))

	assert.False(t, c.CheckAndMark("timeout"))
	assert.Zero(t, c.Repeats("timeout"))
}

func TestCache_EvictsOldestAtCapacity(t *testing.T) {
	c, _ := newTestCache(time.Minute, 3)
	defer c.Close()

	for i := 0; i < 4; i++ {
		c.CheckAndMark(fmt.Sprintf("k%d", i))
	}

	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Check("k0"))
	assert.True(t, c.Check("k1"))
	assert.True(t, c.Check("k3"))
}

func TestCache_SweepRemovesExpired(t *testing.T) {
	c, clk := newTestCache(30*time.Second, 10)
	defer c.Close()

	c.CheckAndMark("a")
	c.CheckAndMark("b")
	require.Equal(t, 2, c.Len())

	clk.Step(cleanupInterval)
	require.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, time.Millisecond)
}

func TestCache_Concurrent(t *testing.T) {
	c, _ := newTestCache(time.Minute, 1000)
	defer c.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	fresh := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !c.CheckAndMark("same-error") {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fresh)
	assert.Equal(t, 49, c.Repeats("same-error"))
}

func TestCache_CloseIsIdempotent(t *testing.T) {
	c, _ := newTestCache(time.Minute, 10)
	c.Close()
	c.Close()
}
