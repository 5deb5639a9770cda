package engine

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleFires(t *testing.T) {
	var s scheduler
	var fired atomic.Int32

	s.schedule(5*time.Millisecond, func() { fired.Add(1) })

	require.Eventually(t, func() bool {
		return fired.Load() == 1
	}, time.Second, time.Millisecond)
}

func TestScheduleReplacesPendingTimer(t *testing.T) {
	var s scheduler
	var first, second atomic.Int32

	s.schedule(20*time.Millisecond, func() { first.Add(1) })
	s.schedule(5*time.Millisecond, func() { second.Add(1) })

	require.Eventually(t, func() bool {
		return second.Load() == 1
	}, time.Second, time.Millisecond)

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), first.Load(), "superseded timer must not fire")
}

func TestCancelStopsPendingTimer(t *testing.T) {
	var s scheduler
	var fired atomic.Int32

	s.schedule(10*time.Millisecond, func() { fired.Add(1) })
	s.cancel()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestCancelWithNoTimerIsNoop(t *testing.T) {
	var s scheduler
	s.cancel()
	s.cancel()
}
