package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueDeliversPayloadToHandler(t *testing.T) {
	got := make(chan Job, 1)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		got <- job
		return nil
	}, QueueConfig{Workers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "job-1", Type: "csv", Payload: "job-1"}))

	select {
	case job := <-got:
		assert.Equal(t, "job-1", job.Payload)
		assert.False(t, job.Enqueued.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("handler never received the job")
	}
}

func TestQueueRejectsWhenBufferFull(t *testing.T) {
	handlerEntered := make(chan struct{}, 2)
	release := make(chan struct{})
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		handlerEntered <- struct{}{}
		<-release
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer func() {
		close(release)
		q.Stop()
	}()

	// First job occupies the worker, second fills the buffer.
	require.NoError(t, q.Enqueue(Job{ID: "job-1"}))
	<-handlerEntered
	require.NoError(t, q.Enqueue(Job{ID: "job-2"}))

	err := q.Enqueue(Job{ID: "job-3"})
	assert.True(t, errors.Is(err, ErrQueueFull))
}

func TestQueueRetriesFailedJob(t *testing.T) {
	var attempts atomic.Int32
	done := make(chan struct{})
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		if attempts.Add(1) == 1 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 2, RetryDelay: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "job-1", Payload: "job-1"}))

	select {
	case <-done:
		assert.Equal(t, int32(2), attempts.Load())
	case <-time.After(2 * time.Second):
		t.Fatal("job was never retried")
	}
}

func TestQueueEnqueueBeforeStartFails(t *testing.T) {
	q := NewQueue("test", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})
	assert.Error(t, q.Enqueue(Job{ID: "job-1"}))
}
