package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/z-wentao/speechflow/pkg/models"
	"github.com/z-wentao/speechflow/pkg/queue"
	"github.com/z-wentao/speechflow/pkg/storage"
	"github.com/z-wentao/speechflow/pkg/transcriber"
)

type fakeEngine struct {
	transcribe func(ctx context.Context, req transcriber.Request, progress func(transcriber.Progress)) (*transcriber.TranscriptionResult, error)
	resume     func(ctx context.Context, remoteID string, progress func(transcriber.Progress)) (*transcriber.TranscriptionResult, error)
}

func (f *fakeEngine) Transcribe(ctx context.Context, req transcriber.Request, progress func(transcriber.Progress)) (*transcriber.TranscriptionResult, error) {
	return f.transcribe(ctx, req, progress)
}

func (f *fakeEngine) Resume(ctx context.Context, remoteID string, progress func(transcriber.Progress)) (*transcriber.TranscriptionResult, error) {
	return f.resume(ctx, remoteID, progress)
}

type harness struct {
	queue *queue.MemoryQueue
	store *storage.JobStore
}

func newHarness(t *testing.T, engine Engine, poolSize int) (*harness, *Worker) {
	t.Helper()
	h := &harness{queue: queue.NewMemoryQueue(16), store: storage.NewJobStore()}
	w := NewWorker(h.queue, h.store, engine, Options{PoolSize: poolSize, JobTimeout: 5 * time.Second}, nil)
	return h, w
}

func (h *harness) submit(t *testing.T, job *models.TranscriptionJob) {
	t.Helper()
	ctx := context.Background()
	if job.Status == "" {
		job.Status = models.StatusPending
	}
	require.NoError(t, h.store.Save(ctx, job))
	require.NoError(t, h.queue.Enqueue(ctx, job))
}

func (h *harness) waitStatus(t *testing.T, jobID string, want models.JobStatus) *models.TranscriptionJob {
	t.Helper()
	var got *models.TranscriptionJob
	require.Eventually(t, func() bool {
		job, err := h.store.Get(context.Background(), jobID)
		if err != nil {
			return false
		}
		got = job
		return job.Status == want
	}, 2*time.Second, 10*time.Millisecond)
	return got
}

func TestWorkerSucceeded(t *testing.T) {
	var seen []models.JobStatus
	var mu sync.Mutex
	engine := &fakeEngine{
		transcribe: func(ctx context.Context, req transcriber.Request, progress func(transcriber.Progress)) (*transcriber.TranscriptionResult, error) {
			assert.Equal(t, "en-US", req.Locale)
			assert.Equal(t, []string{"https://example.com/a.wav"}, req.ContentURLs)
			for _, s := range []models.JobStatus{models.StatusNotStarted, models.StatusRunning} {
				progress(transcriber.Progress{RemoteID: "remote-1", Status: s, Percent: 50})
				mu.Lock()
				seen = append(seen, s)
				mu.Unlock()
			}
			return &transcriber.TranscriptionResult{
				RemoteID: "remote-1",
				Text:     "hello world",
				Segments: []models.Segment{{Index: 1, Speaker: 1, Text: "hello world"}},
				Duration: 1.5,
			}, nil
		},
	}

	h, w := newHarness(t, engine, 1)
	w.Start()
	defer w.Stop()

	h.submit(t, &models.TranscriptionJob{
		JobID:       "job-1",
		Locale:      "en-US",
		ContentURLs: []string{"https://example.com/a.wav"},
		CreatedAt:   time.Now(),
	})

	job := h.waitStatus(t, "job-1", models.StatusSucceeded)
	assert.Equal(t, "remote-1", job.RemoteID)
	assert.Equal(t, "hello world", job.Result)
	assert.Equal(t, 100, job.Progress)
	assert.Len(t, job.Segments, 1)
	assert.False(t, job.CompletedAt.IsZero())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []models.JobStatus{models.StatusNotStarted, models.StatusRunning}, seen)
}

func TestWorkerFailed(t *testing.T) {
	engine := &fakeEngine{
		transcribe: func(context.Context, transcriber.Request, func(transcriber.Progress)) (*transcriber.TranscriptionResult, error) {
			return &transcriber.TranscriptionResult{RemoteID: "remote-2"},
				fmt.Errorf("%w: %s", transcriber.ErrTranscriptionFailed, "audio could not be decoded")
		},
	}

	h, w := newHarness(t, engine, 1)
	w.Start()
	defer w.Stop()

	h.submit(t, &models.TranscriptionJob{JobID: "job-2", CreatedAt: time.Now()})

	job := h.waitStatus(t, "job-2", models.StatusFailed)
	assert.Equal(t, "remote-2", job.RemoteID)
	assert.Contains(t, job.Error, "audio could not be decoded")
	assert.Equal(t, 0, h.queue.Len(), "failed jobs are not requeued")
}

func TestWorkerResumesSubmittedJob(t *testing.T) {
	var transcribed atomic.Bool
	engine := &fakeEngine{
		transcribe: func(context.Context, transcriber.Request, func(transcriber.Progress)) (*transcriber.TranscriptionResult, error) {
			transcribed.Store(true)
			return nil, fmt.Errorf("unexpected submission")
		},
		resume: func(_ context.Context, remoteID string, _ func(transcriber.Progress)) (*transcriber.TranscriptionResult, error) {
			return &transcriber.TranscriptionResult{RemoteID: remoteID, Text: "resumed"}, nil
		},
	}

	h, w := newHarness(t, engine, 1)
	w.Start()
	defer w.Stop()

	h.submit(t, &models.TranscriptionJob{
		JobID:     "job-3",
		RemoteID:  "remote-3",
		Status:    models.StatusRunning,
		CreatedAt: time.Now(),
	})

	job := h.waitStatus(t, "job-3", models.StatusSucceeded)
	assert.Equal(t, "resumed", job.Result)
	assert.False(t, transcribed.Load())
}

func TestWorkerSkipsTerminalAndDeletedJobs(t *testing.T) {
	var calls atomic.Int32
	engine := &fakeEngine{
		transcribe: func(context.Context, transcriber.Request, func(transcriber.Progress)) (*transcriber.TranscriptionResult, error) {
			calls.Add(1)
			return &transcriber.TranscriptionResult{}, nil
		},
	}

	h, w := newHarness(t, engine, 1)
	h.submit(t, &models.TranscriptionJob{JobID: "done", Status: models.StatusSucceeded, CreatedAt: time.Now()})
	require.NoError(t, h.queue.Enqueue(context.Background(), &models.TranscriptionJob{JobID: "deleted"}))

	w.Start()
	require.Eventually(t, func() bool { return h.queue.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	w.Stop()

	assert.Zero(t, calls.Load())
}

func TestWorkerBoundsConcurrency(t *testing.T) {
	const poolSize = 2
	var running, peak atomic.Int32
	release := make(chan struct{})

	engine := &fakeEngine{
		transcribe: func(ctx context.Context, _ transcriber.Request, _ func(transcriber.Progress)) (*transcriber.TranscriptionResult, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			defer running.Add(-1)

			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return &transcriber.TranscriptionResult{Text: "ok"}, nil
		},
	}

	h, w := newHarness(t, engine, poolSize)
	for i := range 5 {
		h.submit(t, &models.TranscriptionJob{JobID: fmt.Sprintf("job-%d", i), CreatedAt: time.Now()})
	}

	w.Start()
	defer w.Stop()

	require.Eventually(t, func() bool { return running.Load() == poolSize }, 2*time.Second, 10*time.Millisecond)
	// Jobs beyond the pool size stay in the queue.
	assert.Equal(t, 3, h.queue.Len())

	close(release)
	for i := range 5 {
		h.waitStatus(t, fmt.Sprintf("job-%d", i), models.StatusSucceeded)
	}
	assert.Equal(t, int32(poolSize), peak.Load())
}

func TestWorkerStopRequeuesInFlightJob(t *testing.T) {
	started := make(chan struct{})
	engine := &fakeEngine{
		transcribe: func(ctx context.Context, _ transcriber.Request, progress func(transcriber.Progress)) (*transcriber.TranscriptionResult, error) {
			progress(transcriber.Progress{RemoteID: "remote-9", Status: models.StatusRunning, Percent: 50})
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	h, w := newHarness(t, engine, 1)
	w.Start()
	h.submit(t, &models.TranscriptionJob{JobID: "job-9", CreatedAt: time.Now()})

	<-started
	w.Stop()

	assert.Equal(t, 1, h.queue.Len())
	job, err := h.store.Get(context.Background(), "job-9")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, job.Status)
	assert.Equal(t, "remote-9", job.RemoteID, "the next worker resumes instead of resubmitting")
}

// brokenAckQueue is a memory queue whose broker refuses acknowledgements.
type brokenAckQueue struct {
	*queue.MemoryQueue
}

func (brokenAckQueue) Ack(*models.TranscriptionJob) error {
	return errors.New("channel closed")
}

func TestWorkerLogsAckFailure(t *testing.T) {
	engine := &fakeEngine{
		transcribe: func(context.Context, transcriber.Request, func(transcriber.Progress)) (*transcriber.TranscriptionResult, error) {
			return &transcriber.TranscriptionResult{RemoteID: "remote-1", Text: "ok"}, nil
		},
	}

	logger, hook := logtest.NewNullLogger()
	q := brokenAckQueue{queue.NewMemoryQueue(4)}
	store := storage.NewJobStore()
	w := NewWorker(q, store, engine, Options{PoolSize: 1}, logrus.NewEntry(logger))
	w.Start()
	defer w.Stop()

	job := &models.TranscriptionJob{JobID: "job-1", Status: models.StatusPending, CreatedAt: time.Now()}
	require.NoError(t, store.Save(context.Background(), job))
	require.NoError(t, q.Enqueue(context.Background(), job))

	require.Eventually(t, func() bool {
		for _, entry := range hook.AllEntries() {
			if entry.Level == logrus.ErrorLevel && entry.Data["job_id"] == "job-1" && entry.Data[logrus.ErrorKey] != nil {
				return entry.Data[logrus.ErrorKey].(error).Error() == "channel closed"
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}
