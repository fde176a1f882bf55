package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/z-wentao/speechflow/pkg/models"
)

func TestMemoryQueueFIFO(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(4)

	require.NoError(t, q.Enqueue(ctx, &models.TranscriptionJob{JobID: "a"}))
	require.NoError(t, q.Enqueue(ctx, &models.TranscriptionJob{JobID: "b"}))
	assert.Equal(t, 2, q.Len())

	var reporter StatsReporter = q
	stats, err := reporter.Stats()
	require.NoError(t, err)
	assert.Equal(t, Stats{Messages: 2}, stats)

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", first.JobID)

	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", second.JobID)
}

func TestMemoryQueueFull(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(1)

	require.NoError(t, q.Enqueue(ctx, &models.TranscriptionJob{JobID: "a"}))
	assert.Error(t, q.Enqueue(ctx, &models.TranscriptionJob{JobID: "b"}))
}

func TestMemoryQueueNackRequeues(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(2)
	job := &models.TranscriptionJob{JobID: "a"}

	require.NoError(t, q.Nack(job, false))
	assert.Equal(t, 0, q.Len())

	require.NoError(t, q.Nack(job, true))
	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Same(t, job, got)
	assert.NoError(t, q.Ack(got))
}

func TestMemoryQueueDequeueHonoursContext(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryQueueClose(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(1)

	done := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(ctx)
		done <- err
	}()

	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not return after Close")
	}
	assert.ErrorIs(t, q.Enqueue(ctx, &models.TranscriptionJob{}), ErrClosed)
}
