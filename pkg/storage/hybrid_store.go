package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/z-wentao/speechflow/pkg/models"
)

const (
	syncBatchSize = 50
	syncInterval  = 5 * time.Second
	syncTimeout   = 10 * time.Second
)

// HybridJobStore 混合存储：Redis（热数据）+ PostgreSQL（冷数据）。
// 进入终态的任务异步批量写入数据库。
type HybridJobStore struct {
	hot       Store
	cold      Store
	syncQueue chan *models.TranscriptionJob
	stopCh    chan struct{}
	done      chan struct{}
	log       *logrus.Entry

	closeOnce sync.Once
	closeErr  error
}

// NewHybridJobStore 创建混合存储并启动后台同步
func NewHybridJobStore(hot, cold Store, log *logrus.Entry) *HybridJobStore {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	store := &HybridJobStore{
		hot:       hot,
		cold:      cold,
		syncQueue: make(chan *models.TranscriptionJob, 100),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
		log:       log.WithField("component", "hybrid_store"),
	}

	go store.syncWorker()

	store.log.Info("✓ 混合存储初始化成功")
	return store
}

// Save 立即写热存储，终态任务异步写数据库
func (s *HybridJobStore) Save(ctx context.Context, job *models.TranscriptionJob) error {
	if err := s.hot.Save(ctx, job); err != nil {
		// 热存储失败时直接写数据库，保证任务可查
		s.log.WithError(err).Warn("⚠️ 热存储写入失败，改为直接写数据库")
		return s.cold.Save(ctx, job)
	}

	if job.Status.IsTerminal() {
		s.enqueueSync(job)
	}
	return nil
}

// Get 优先热存储，未命中查数据库并回写
func (s *HybridJobStore) Get(ctx context.Context, jobID string) (*models.TranscriptionJob, error) {
	job, err := s.hot.Get(ctx, jobID)
	if err == nil {
		return job, nil
	}

	s.log.WithField("job_id", jobID).Debug("热存储未命中，查询数据库")
	job, err = s.cold.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if err := s.hot.Save(ctx, job); err != nil {
		s.log.WithError(err).Warn("⚠️ 回写热存储失败")
	}
	return job, nil
}

// Update 更新热存储，完成时同步数据库
func (s *HybridJobStore) Update(ctx context.Context, jobID string, updateFn func(*models.TranscriptionJob)) error {
	err := s.hot.Update(ctx, jobID, updateFn)
	if errors.Is(err, ErrJobNotFound) {
		// 热数据已过期，从数据库加载后再更新
		if _, getErr := s.Get(ctx, jobID); getErr != nil {
			return getErr
		}
		err = s.hot.Update(ctx, jobID, updateFn)
	}
	if err != nil {
		s.log.WithError(err).Warn("⚠️ 热存储更新失败，尝试更新数据库")
		return s.cold.Update(ctx, jobID, updateFn)
	}

	job, err := s.hot.Get(ctx, jobID)
	if err == nil && job.Status.IsTerminal() {
		s.enqueueSync(job)
	}
	return nil
}

// List 优先热存储，失败降级到数据库
func (s *HybridJobStore) List(ctx context.Context) ([]*models.TranscriptionJob, error) {
	jobs, err := s.hot.List(ctx)
	if err != nil {
		s.log.WithError(err).Warn("⚠️ 热存储列表查询失败，降级到数据库")
		return s.cold.List(ctx)
	}
	return jobs, nil
}

// ListAll 历史数据以数据库为准
func (s *HybridJobStore) ListAll(ctx context.Context) ([]*models.TranscriptionJob, error) {
	return s.cold.ListAll(ctx)
}

// Delete 同时删除两层数据，任一层存在即视为成功
func (s *HybridJobStore) Delete(ctx context.Context, jobID string) error {
	hotErr := s.hot.Delete(ctx, jobID)
	if hotErr != nil && !errors.Is(hotErr, ErrJobNotFound) {
		s.log.WithError(hotErr).Warn("⚠️ 热存储删除失败")
	}

	coldErr := s.cold.Delete(ctx, jobID)
	if errors.Is(coldErr, ErrJobNotFound) && hotErr == nil {
		return nil
	}
	return coldErr
}

// CleanExpiredJobs 清理热存储的过期索引
func (s *HybridJobStore) CleanExpiredJobs(ctx context.Context) (int, error) {
	cleaner, ok := s.hot.(Cleaner)
	if !ok {
		return 0, nil
	}
	return cleaner.CleanExpiredJobs(ctx)
}

// Close 停止同步（写完剩余批次）后关闭两层存储，可重复调用
func (s *HybridJobStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCh)

		select {
		case <-s.done:
		case <-time.After(syncTimeout):
			s.log.Warnf("⚠️ 同步队列清空超时，剩余 %d 个任务", len(s.syncQueue))
		}

		s.closeErr = errors.Join(s.hot.Close(), s.cold.Close())
	})
	return s.closeErr
}

func (s *HybridJobStore) enqueueSync(job *models.TranscriptionJob) {
	select {
	case s.syncQueue <- job:
	default:
		s.log.Warn("⚠️ 同步队列已满，同步写入数据库")
		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		defer cancel()
		if err := s.cold.Save(ctx, job); err != nil {
			s.log.WithError(err).WithField("job_id", job.JobID).Error("❌ 同步写入数据库失败")
		}
	}
}

// syncWorker 批量写入（50 条或 5 秒）
func (s *HybridJobStore) syncWorker() {
	defer close(s.done)

	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	batch := make([]*models.TranscriptionJob, 0, syncBatchSize)
	flush := func() {
		s.batchSave(batch)
		batch = batch[:0]
	}

	for {
		select {
		case job := <-s.syncQueue:
			batch = append(batch, job)
			if len(batch) >= syncBatchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-s.stopCh:
			// 取走队列中剩余的任务
			for {
				select {
				case job := <-s.syncQueue:
					batch = append(batch, job)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (s *HybridJobStore) batchSave(jobs []*models.TranscriptionJob) {
	if len(jobs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	successCount := 0
	for _, job := range jobs {
		if err := s.cold.Save(ctx, job); err != nil {
			s.log.WithError(err).WithField("job_id", job.JobID).Error("❌ 同步任务失败")
			continue
		}
		successCount++
	}

	s.log.Debugf("✓ 成功同步 %d/%d 个任务到数据库", successCount, len(jobs))
}
