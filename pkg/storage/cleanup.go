package storage

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultCleanupInterval 索引清理的默认周期
const DefaultCleanupInterval = 10 * time.Minute

// Cleaner is implemented by stores whose entries expire on their own and
// leave index entries behind.
type Cleaner interface {
	CleanExpiredJobs(ctx context.Context) (int, error)
}

// RunCleanup calls CleanExpiredJobs every interval until ctx is done. It
// returns immediately when store has nothing to clean.
func RunCleanup(ctx context.Context, store Store, interval time.Duration, log *logrus.Entry) {
	cleaner, ok := store.(Cleaner)
	if !ok {
		return
	}
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := cleaner.CleanExpiredJobs(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.WithError(err).Warn("⚠️ 清理过期任务索引失败")
				}
				continue
			}
			if removed > 0 {
				log.Infof("🧹 清理了 %d 个过期任务索引", removed)
			}
		}
	}
}
