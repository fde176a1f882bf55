package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCleanupRemovesExpiredIndexEntries(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, store.Save(ctx, newJob("a", time.Now())))
	require.NoError(t, store.Save(ctx, newJob("b", time.Now())))
	mr.Del(redisKeyPrefix + "a")

	done := make(chan struct{})
	go func() {
		defer close(done)
		RunCleanup(ctx, store, 10*time.Millisecond, nil)
	}()

	assert.Eventually(t, func() bool {
		members, err := mr.ZMembers(redisIndexKey)
		return err == nil && len(members) == 1 && members[0] == "b"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunCleanup did not return after cancel")
	}
}

func TestRunCleanupSkipsStoresWithoutExpiry(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		RunCleanup(context.Background(), NewJobStore(), time.Millisecond, nil)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunCleanup should return for a memory store")
	}
}
