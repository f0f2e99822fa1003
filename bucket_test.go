package hashedwheel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTimerForBucket(t *testing.T) *Timer {
	t.Helper()
	tm, err := New(WithTickDuration(1), WithTicksPerWheel(4))
	require.NoError(t, err)
	return tm
}

func TestBucket_AddAndRemove(t *testing.T) {
	t.Parallel()

	tm := newTestTimerForBucket(t)
	b := &bucket{}

	h1 := newTimeout(tm, func(*Timeout) {}, 100)
	h2 := newTimeout(tm, func(*Timeout) {}, 200)
	h3 := newTimeout(tm, func(*Timeout) {}, 300)
	tm.pendingTimeouts.Store(3)

	b.addTimeout(h1)
	b.addTimeout(h2)
	b.addTimeout(h3)

	assert.Same(t, h1, b.head)
	assert.Same(t, h3, b.tail)
	assert.Same(t, b, h1.bucket)
	assert.Same(t, b, h2.bucket)
	assert.Same(t, b, h3.bucket)

	next := b.remove(h2)
	assert.Same(t, h3, next)
	assert.Nil(t, h2.bucket)
	assert.Nil(t, h2.prev)
	assert.Nil(t, h2.next)
	assert.Same(t, h1, b.head)
	assert.Same(t, h3, b.tail)
	assert.Same(t, h3, h1.next)
	assert.Same(t, h1, h3.prev)
	assert.Equal(t, int64(2), tm.PendingTimeouts())

	b.remove(h1)
	assert.Same(t, h3, b.head)
	assert.Nil(t, h3.prev)

	b.remove(h3)
	assert.Nil(t, b.head)
	assert.Nil(t, b.tail)
	assert.Equal(t, int64(0), tm.PendingTimeouts())
}

func TestBucket_ClearTimeouts_SkipsTerminalHandles(t *testing.T) {
	t.Parallel()

	tm := newTestTimerForBucket(t)
	b := &bucket{}

	live := newTimeout(tm, func(*Timeout) {}, 100)
	cancelled := newTimeout(tm, func(*Timeout) {}, 200)
	expired := newTimeout(tm, func(*Timeout) {}, 300)
	cancelled.state.store(uint64(handleCancelled))
	expired.state.store(uint64(handleExpired))

	b.addTimeout(live)
	b.addTimeout(cancelled)
	b.addTimeout(expired)

	var sink []*Timeout
	b.clearTimeouts(&sink)

	require.Len(t, sink, 1)
	assert.Same(t, live, sink[0])
	assert.Nil(t, b.head)
	assert.Nil(t, b.tail)
	assert.Nil(t, live.bucket)
}

func TestBucket_ExpireTimeouts_FiresWhenRoundsExhausted(t *testing.T) {
	t.Parallel()

	tm := newTestTimerForBucket(t)
	b := &bucket{}
	w := &worker{timer: tm}

	fired := make(chan struct{}, 1)
	h := newTimeout(tm, func(h *Timeout) { fired <- struct{}{} }, 50)
	h.remainingRounds = 0
	b.addTimeout(h)

	b.expireTimeouts(w, 50)

	select {
	case <-fired:
	default:
		t.Fatal("expected task to have fired")
	}
	assert.True(t, h.IsExpired())
	assert.Nil(t, b.head)
}

func TestBucket_ExpireTimeouts_DropsCancelledWithoutFiring(t *testing.T) {
	t.Parallel()

	tm := newTestTimerForBucket(t)
	b := &bucket{}
	w := &worker{timer: tm}

	h := newTimeout(tm, func(*Timeout) { t.Fatal("must not fire a cancelled handle") }, 50)
	h.state.store(uint64(handleCancelled))
	b.addTimeout(h)

	b.expireTimeouts(w, 50)

	assert.Nil(t, b.head)
}

func TestBucket_ExpireTimeouts_DecrementsRoundsWhenNotDue(t *testing.T) {
	t.Parallel()

	tm := newTestTimerForBucket(t)
	b := &bucket{}
	w := &worker{timer: tm}

	h := newTimeout(tm, func(*Timeout) { t.Fatal("must not fire before rounds are exhausted") }, 1000)
	h.remainingRounds = 2
	b.addTimeout(h)

	b.expireTimeouts(w, 10)

	assert.Equal(t, int64(1), h.remainingRounds)
	assert.Same(t, h, b.head)
	assert.Same(t, b, h.bucket)
}
