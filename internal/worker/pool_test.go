package worker

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// TestPool_ProcessesJobs 所有提交的作业都被处理
func TestPool_ProcessesJobs(t *testing.T) {
	var processed atomic.Int32
	var wg sync.WaitGroup

	pool := NewPool(2, 10, func(ctx context.Context, job *Job) error {
		processed.Add(1)
		wg.Done()
		return nil
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	for i := 0; i < 5; i++ {
		wg.Add(1)
		require.NoError(t, pool.Submit(&Job{ID: "job", Path: "/tmp/x.apk"}))
	}
	wg.Wait()
	pool.Stop()

	assert.Equal(t, int32(5), processed.Load())
}

// TestPool_SubmitAndWait 同步提交返回处理错误
func TestPool_SubmitAndWait(t *testing.T) {
	wantErr := errors.New("analysis failed")
	pool := NewPool(1, 10, func(ctx context.Context, job *Job) error {
		if job.Force {
			return nil
		}
		return wantErr
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Stop()

	err := pool.SubmitAndWait(ctx, &Job{ID: "a"})
	assert.ErrorIs(t, err, wantErr)

	err = pool.SubmitAndWait(ctx, &Job{ID: "b", Force: true})
	assert.NoError(t, err)
}

// TestPool_HandlerPanicRecovered handler panic 转为作业错误，worker 继续存活
func TestPool_HandlerPanicRecovered(t *testing.T) {
	pool := NewPool(1, 10, func(ctx context.Context, job *Job) error {
		if job.Path == "/tmp/evil.apk" {
			panic("malformed input")
		}
		return nil
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Stop()

	err := pool.SubmitAndWait(ctx, &Job{ID: "a", Path: "/tmp/evil.apk"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	// 同一个 worker 还能处理后续作业
	err = pool.SubmitAndWait(ctx, &Job{ID: "b", Path: "/tmp/ok.apk"})
	assert.NoError(t, err)
	assert.Equal(t, 0, pool.Active())
}

// TestPool_QueueFull 队列满时 Submit 立即报错不阻塞
func TestPool_QueueFull(t *testing.T) {
	block := make(chan struct{})
	pool := NewPool(1, 1, func(ctx context.Context, job *Job) error {
		<-block
		return nil
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	// 第一个作业占住 worker，第二个填满队列
	require.NoError(t, pool.Submit(&Job{ID: "1"}))
	// 等待第一个被取走
	require.Eventually(t, func() bool { return pool.QueueSize() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, pool.Submit(&Job{ID: "2"}))

	err := pool.Submit(&Job{ID: "3"})
	assert.Error(t, err)

	close(block)
	pool.Stop()
}

// TestPool_Stats 规模与活跃计数
func TestPool_Stats(t *testing.T) {
	started := make(chan struct{})
	block := make(chan struct{})
	pool := NewPool(3, 10, func(ctx context.Context, job *Job) error {
		started <- struct{}{}
		<-block
		return nil
	}, testLogger())

	assert.Equal(t, 3, pool.Size())
	assert.Equal(t, 0, pool.Active())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	require.NoError(t, pool.Submit(&Job{ID: "1"}))
	<-started
	assert.Equal(t, 1, pool.Active())

	close(block)
	pool.Stop()
	assert.Equal(t, 0, pool.Active())
}

// TestPool_ContextCancelStopsWorkers 上下文取消后 worker 退出
func TestPool_ContextCancelStopsWorkers(t *testing.T) {
	pool := NewPool(2, 10, func(ctx context.Context, job *Job) error {
		return nil
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		pool.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("workers did not exit after context cancel")
	}
}
