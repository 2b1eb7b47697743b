package workers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPool_SubmitRunsTask(t *testing.T) {
	pool := NewPool("test", 2)
	defer pool.Shutdown()

	var ran int32
	done := make(chan struct{})
	pool.Submit(func() {
		atomic.StoreInt32(&ran, 1)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run in time")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
}

func TestPool_SubmitWithTimeoutSucceeds(t *testing.T) {
	pool := NewPool("test", 2)
	defer pool.Shutdown()

	err := pool.SubmitWithTimeout(context.Background(), func() {}, time.Second)
	assert.NoError(t, err)
}

func TestPool_SubmitWithTimeoutExpires(t *testing.T) {
	pool := NewPool("test", 1)
	defer pool.Shutdown()

	err := pool.SubmitWithTimeout(context.Background(), func() {
		time.Sleep(200 * time.Millisecond)
	}, 10*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_SubmitWithTimeoutRecoversPanic(t *testing.T) {
	pool := NewPool("test", 1)
	defer pool.Shutdown()

	err := pool.SubmitWithTimeout(context.Background(), func() {
		panic("boom")
	}, time.Second)
	assert.NoError(t, err)
}

func TestPool_NewPoolClampsMinConcurrency(t *testing.T) {
	pool := NewPool("test", 0)
	defer pool.Shutdown()

	err := pool.SubmitWithTimeout(context.Background(), func() {}, time.Second)
	assert.NoError(t, err)
}
