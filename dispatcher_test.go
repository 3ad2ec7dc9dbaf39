package remote

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventQueue(t *testing.T) {
	t.Run("fifo across producers", func(t *testing.T) {
		q := newEventQueue()
		var wg sync.WaitGroup
		for p := 0; p < 4; p++ {
			wg.Add(1)
			go func(p int) {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					q.push([2]int{p, i})
				}
			}(p)
		}
		wg.Wait()

		last := map[int]int{0: -1, 1: -1, 2: -1, 3: -1}
		for n := 0; n < 400; n++ {
			ev, ok := q.pop()
			require.True(t, ok)
			pair := ev.([2]int)
			assert.Equal(t, last[pair[0]]+1, pair[1])
			last[pair[0]] = pair[1]
		}
	})

	t.Run("pop blocks until push", func(t *testing.T) {
		q := newEventQueue()
		got := make(chan any)
		go func() {
			ev, _ := q.pop()
			got <- ev
		}()
		time.Sleep(10 * time.Millisecond)
		q.push("x")
		select {
		case ev := <-got:
			assert.Equal(t, "x", ev)
		case <-time.After(waitFor):
			t.Fatal("pop did not return")
		}
	})

	t.Run("close releases pop and rejects push", func(t *testing.T) {
		q := newEventQueue()
		q.push("dropped")
		q.close()
		_, ok := q.pop()
		assert.False(t, ok)
		assert.False(t, q.push("late"))
	})
}

func TestLoopTimers(t *testing.T) {
	s := newTestService(t, newFakeTransport())

	t.Run("fires once", func(t *testing.T) {
		fired := make(chan struct{}, 2)
		var slot *loopTimer
		onLoop(t, s, func() {
			s.arm(&slot, "test", 10*time.Millisecond, func() { fired <- struct{}{} })
			assert.True(t, s.armed(&slot))
		})
		select {
		case <-fired:
		case <-time.After(waitFor):
			t.Fatal("timer did not fire")
		}
		onLoop(t, s, func() { assert.False(t, s.armed(&slot)) })
	})

	t.Run("cancel discards a queued expiry", func(t *testing.T) {
		fired := false
		var slot *loopTimer
		onLoop(t, s, func() {
			s.arm(&slot, "test", time.Millisecond, func() { fired = true })
			// Let the expiry reach the queue while the loop is busy.
			time.Sleep(20 * time.Millisecond)
			s.cancelTimer(&slot)
		})
		barrier(t, s)
		onLoop(t, s, func() { assert.False(t, fired) })
	})

	t.Run("re-arming replaces", func(t *testing.T) {
		var calls []string
		var slot *loopTimer
		onLoop(t, s, func() {
			s.arm(&slot, "first", time.Millisecond, func() { calls = append(calls, "first") })
			s.arm(&slot, "second", 5*time.Millisecond, func() { calls = append(calls, "second") })
		})
		time.Sleep(50 * time.Millisecond)
		onLoop(t, s, func() { assert.Equal(t, []string{"second"}, calls) })
	})
}

func TestGoroutineID(t *testing.T) {
	id := goroutineID()
	assert.NotZero(t, id)
	assert.Equal(t, id, goroutineID())

	other := make(chan uint64)
	go func() { other <- goroutineID() }()
	assert.NotEqual(t, id, <-other)
}
