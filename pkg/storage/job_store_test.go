package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/z-wentao/speechflow/pkg/models"
)

func newJob(id string, created time.Time) *models.TranscriptionJob {
	return &models.TranscriptionJob{
		JobID:       id,
		DisplayName: "Simple transcription",
		Locale:      "en-US",
		ContentURLs: []string{"https://example.com/" + id + ".wav"},
		Status:      models.StatusPending,
		CreatedAt:   created,
	}
}

// storeContract runs the behaviour every Store implementation shares.
func storeContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(ctx, newJob("older", base)))
	require.NoError(t, store.Save(ctx, newJob("newer", base.Add(time.Minute))))

	got, err := store.Get(ctx, "older")
	require.NoError(t, err)
	assert.Equal(t, "en-US", got.Locale)
	assert.Equal(t, []string{"https://example.com/older.wav"}, got.ContentURLs)

	require.NoError(t, store.Update(ctx, "older", func(job *models.TranscriptionJob) {
		job.Status = models.StatusRunning
		job.RemoteID = "remote-1"
	}))
	got, err = store.Get(ctx, "older")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, got.Status)
	assert.Equal(t, "remote-1", got.RemoteID)

	jobs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "newer", jobs[0].JobID)
	assert.Equal(t, "older", jobs[1].JobID)

	require.NoError(t, store.Delete(ctx, "newer"))
	_, err = store.Get(ctx, "newer")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "newer"), ErrJobNotFound)
	assert.ErrorIs(t, store.Update(ctx, "missing", func(*models.TranscriptionJob) {}), ErrJobNotFound)
}

func TestJobStore(t *testing.T) {
	storeContract(t, NewJobStore())
}

func TestJobStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore()
	require.NoError(t, store.Save(ctx, newJob("a", time.Now())))

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	got.Status = models.StatusFailed
	got.ContentURLs[0] = "changed"

	again, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, again.Status)
	assert.Equal(t, "https://example.com/a.wav", again.ContentURLs[0])
}
