package embedded

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPoolGrowsOnBusy drives every thread to report Busy until the pool
// reaches its maximum size.
func TestPoolGrowsOnBusy(t *testing.T) {
	var everBusy int32
	factory := func(id int) Callable {
		return func(info ExecutionInfo) ErrorCode {
			if info.Stage == StageMain && atomic.LoadInt32(&everBusy) < 4 {
				atomic.AddInt32(&everBusy, 1)
				time.Sleep(time.Millisecond)
				return Busy
			}
			time.Sleep(time.Millisecond)
			return OK
		}
	}

	p, err := NewPool(1, 3, factory, time.Second)
	require.NoError(t, err)
	require.NoError(t, p.Start(time.Second))
	defer p.Stop()

	require.Eventually(t, func() bool { return p.Size() == 3 }, time.Second, time.Millisecond)
}

// TestPoolShrinksOnIdle starts above minimum via Busy signals, then drives
// every thread Idle and expects the pool to settle back at min.
func TestPoolShrinksOnIdle(t *testing.T) {
	var mode atomic.Int32 // 0 = busy phase, 1 = idle phase
	factory := func(id int) Callable {
		calls := 0
		return func(info ExecutionInfo) ErrorCode {
			if info.Stage != StageMain {
				return OK
			}
			calls++
			time.Sleep(time.Millisecond)
			if mode.Load() == 0 {
				if calls < 2 {
					return Busy
				}
				return OK
			}
			return Idle
		}
	}

	p, err := NewPool(1, 3, factory, time.Second)
	require.NoError(t, err)
	require.NoError(t, p.Start(time.Second))
	defer p.Stop()

	require.Eventually(t, func() bool { return p.Size() == 3 }, time.Second, time.Millisecond)

	mode.Store(1)
	require.Eventually(t, func() bool { return p.Size() == 1 }, 2*time.Second, time.Millisecond)
}

func TestPoolRejectsInvalidBounds(t *testing.T) {
	_, err := NewPool(0, 2, func(int) Callable { return nil }, time.Second)
	assert.Error(t, err)

	_, err = NewPool(3, 2, func(int) Callable { return nil }, time.Second)
	assert.Error(t, err)
}
