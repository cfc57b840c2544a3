package timer

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAfterFiresOnce(t *testing.T) {
	r := New()
	var count int32

	r.After("once", 10*time.Millisecond, func() {
		atomic.AddInt32(&count, 1)
	})

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&count) == 1
	}, time.Second, time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&count))
}

func TestAfterReplacesPriorTimerUnderSameName(t *testing.T) {
	r := New()
	var fired int32

	r.After("dup", 5*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	r.After("dup", 50*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })

	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt32(&fired), "first timer should have been cancelled")

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&fired) == 1
	}, time.Second, time.Millisecond)
}

func TestCancelStopsPendingTimer(t *testing.T) {
	r := New()
	var fired int32

	r.After("cancelme", 20*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	r.Cancel("cancelme")

	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt32(&fired))
}

func TestCancelAllStopsEveryTimerAndTicker(t *testing.T) {
	r := New()
	var fired int32

	r.After("a", 20*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	r.Every("b", 5*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })

	time.Sleep(12 * time.Millisecond)
	r.CancelAll()
	snapshot := atomic.LoadInt32(&fired)

	time.Sleep(40 * time.Millisecond)
	assert.EqualValues(t, snapshot, atomic.LoadInt32(&fired))
	assert.Empty(t, r.Names())
}
