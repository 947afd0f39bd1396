package async

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingLogger) Error(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

func (r *recordingLogger) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}

func TestGo_RecoversPanicWithoutCrashing(t *testing.T) {
	logger := &recordingLogger{}
	done := make(chan struct{})

	Go(logger, "warmLoop", func() {
		defer close(done)
		panic("boom")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine never completed")
	}

	assert.Eventually(t, func() bool { return len(logger.snapshot()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Contains(t, logger.snapshot()[0], "warmLoop")
	assert.Contains(t, logger.snapshot()[0], "boom")
}

func TestGo_NoPanicLogsNothing(t *testing.T) {
	logger := &recordingLogger{}
	done := make(chan struct{})

	Go(logger, "scheduler", func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine never completed")
	}
	assert.Empty(t, logger.snapshot())
}

func TestRecover_NilLoggerIsSafe(t *testing.T) {
	func() {
		defer Recover(nil, "x")
		panic("ignored")
	}()
}

func TestRecover_UnnamedStillLogs(t *testing.T) {
	logger := &recordingLogger{}
	func() {
		defer Recover(logger, "")
		panic("anon")
	}()
	assert.Contains(t, logger.snapshot()[0], "anon")
}
