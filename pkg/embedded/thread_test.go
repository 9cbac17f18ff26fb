package embedded

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreadLifecycle(t *testing.T) {
	var mainCalls int32
	var stages []Stage
	th := NewThread("t1", func(info ExecutionInfo) ErrorCode {
		stages = append(stages, info.Stage)
		if info.Stage == StageMain {
			atomic.AddInt32(&mainCalls, 1)
			time.Sleep(time.Millisecond)
		}
		return OK
	}, true)

	require.NoError(t, th.Start(time.Second))
	assert.Equal(t, StateRunning, th.GetStatus())

	time.Sleep(20 * time.Millisecond)
	assert.True(t, atomic.LoadInt32(&mainCalls) > 0)

	assert.Equal(t, StateOff, th.Stop(time.Second))
	assert.Equal(t, StageStartUp, stages[0])
	assert.Equal(t, StageTermination, stages[len(stages)-1])
}

func TestThreadBadStartup(t *testing.T) {
	th := NewThread("t2", func(info ExecutionInfo) ErrorCode {
		return Fatal
	}, true)

	err := th.Start(time.Second)
	assert.Error(t, err)
	assert.Equal(t, StateBadTermination, th.GetStatus())
}

func TestThreadFatalDuringMain(t *testing.T) {
	var calls int32
	th := NewThread("t3", func(info ExecutionInfo) ErrorCode {
		if info.Stage == StageMain {
			n := atomic.AddInt32(&calls, 1)
			if n == 3 {
				return Fatal
			}
		}
		return OK
	}, true)

	require.NoError(t, th.Start(time.Second))

	require.Eventually(t, func() bool {
		return th.GetStatus() == StateBadTermination
	}, time.Second, time.Millisecond)
}

func TestThreadStopTimeoutThenKill(t *testing.T) {
	block := make(chan struct{})
	th := NewThread("t4", func(info ExecutionInfo) ErrorCode {
		if info.Stage == StageMain {
			<-block // never returns within the stop timeout
		}
		return OK
	}, true)

	require.NoError(t, th.Start(time.Second))
	time.Sleep(5 * time.Millisecond)

	assert.Equal(t, StateTimeoutStopping, th.Stop(10*time.Millisecond))
	assert.Equal(t, StateTimeoutKilling, th.Stop(10*time.Millisecond))
	close(block)
}

func TestThreadDoubleStartRejected(t *testing.T) {
	th := NewThread("t5", func(ExecutionInfo) ErrorCode { return OK }, true)
	require.NoError(t, th.Start(time.Second))
	defer th.Stop(time.Second)

	assert.Error(t, th.Start(time.Second))
}
