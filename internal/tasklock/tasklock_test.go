package tasklock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_SerializesSameTaskId(t *testing.T) {
	m := New()
	var active int32
	var maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.WithLock("task-1", func() error {
				n := atomic.AddInt32(&active, 1)
				if n > atomic.LoadInt32(&maxActive) {
					atomic.StoreInt32(&maxActive, n)
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxActive)
}

func TestManager_DistinctTaskIdsRunConcurrently(t *testing.T) {
	m := New()
	start := make(chan struct{})
	var wg sync.WaitGroup
	results := make(chan int, 2)

	for i := 0; i < 2; i++ {
		id := []string{"task-a", "task-b"}[i]
		wg.Add(1)
		go func(taskId string) {
			defer wg.Done()
			<-start
			_ = m.WithLock(taskId, func() error {
				results <- 1
				return nil
			})
		}(id)
	}
	close(start)
	wg.Wait()
	close(results)

	count := 0
	for range results {
		count++
	}
	assert.Equal(t, 2, count)
}

func TestManager_ErrorDoesNotBreakChainForWaiters(t *testing.T) {
	m := New()
	err1 := m.WithLock("task-1", func() error { return assertErr })
	require.Error(t, err1)

	ran := false
	err2 := m.WithLock("task-1", func() error {
		ran = true
		return nil
	})
	require.NoError(t, err2)
	assert.True(t, ran)
}

func TestManager_EntryDroppedWhenQueueEmpties(t *testing.T) {
	m := New()
	_ = m.WithLock("task-1", func() error { return nil })
	assert.Equal(t, 0, m.Len())
}

var assertErr = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
