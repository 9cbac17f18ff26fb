package concurrency

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFastLockTimeout(t *testing.T) {
	var l FastLock
	require.True(t, l.Lock(0))
	assert.False(t, l.Lock(10*time.Millisecond))
	l.Unlock()
	assert.True(t, l.Lock(0))
	l.Unlock()
}

func TestEventPostThenWait(t *testing.T) {
	e := NewEvent()
	e.Post()
	assert.Equal(t, WaitSuccess, e.Wait(time.Second))
}

func TestEventWaitTimesOut(t *testing.T) {
	e := NewEvent()
	assert.Equal(t, WaitTimeout, e.Wait(10*time.Millisecond))
}

func TestEventCloseCancelsWaitAndPost(t *testing.T) {
	e := NewEvent()
	e.Close()
	assert.Equal(t, WaitCancelled, e.Wait(time.Second))
	e.Post() // no-op after close
	assert.Equal(t, WaitCancelled, e.Wait(time.Second))
}

// If all N participants call WaitForAll before any force call, all N
// must return success in a bounded number of wakeups.
func TestRendezvousLiveness(t *testing.T) {
	const n = 5
	r, err := NewRendezvous(n)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]RendezvousResult, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.WaitForAll(2 * time.Second)
		}(i)
	}
	wg.Wait()
	for _, res := range results {
		assert.Equal(t, RendezvousSuccess, res)
	}
}

func TestRendezvousForceReset(t *testing.T) {
	r, err := NewRendezvous(3)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]RendezvousResult, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.WaitForAll(2 * time.Second)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	r.ForceReset()
	wg.Wait()
	for _, res := range results {
		assert.Equal(t, RendezvousCancelled, res)
	}
}

func TestRendezvousResetFailsWhileWaiting(t *testing.T) {
	r, err := NewRendezvous(2)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		r.WaitForAll(2 * time.Second)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	assert.Error(t, r.Reset())
	r.ForcePass()
	<-done
}

// Get must return messages in the order Consume accepted them.
func TestMessageFilterFIFO(t *testing.T) {
	f := NewMessageFilter()
	f.Consume("m1")
	f.Consume("m2")
	f.Consume("m3")

	for _, want := range []string{"m1", "m2", "m3"} {
		got, ok := f.Get(time.Second)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestMessageFilterGetTimeout(t *testing.T) {
	f := NewMessageFilter()
	_, ok := f.Get(10 * time.Millisecond)
	assert.False(t, ok)
}

func TestMessageFilterCloseCancelsGet(t *testing.T) {
	f := NewMessageFilter()
	done := make(chan bool)
	go func() {
		_, ok := f.Get(2 * time.Second)
		done <- ok
	}()
	time.Sleep(20 * time.Millisecond)
	f.Close()
	assert.False(t, <-done)
}
