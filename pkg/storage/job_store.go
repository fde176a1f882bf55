package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/z-wentao/speechflow/pkg/models"
)

// JobStore 任务存储（内存实现），读写锁保证并发安全
type JobStore struct {
	jobs map[string]*models.TranscriptionJob
	mu   sync.RWMutex
}

// NewJobStore 创建内存任务存储
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]*models.TranscriptionJob),
	}
}

// Save 保存任务
func (js *JobStore) Save(_ context.Context, job *models.TranscriptionJob) error {
	js.mu.Lock()
	defer js.mu.Unlock()

	js.jobs[job.JobID] = cloneJob(job)
	return nil
}

// Get 获取任务
func (js *JobStore) Get(_ context.Context, jobID string) (*models.TranscriptionJob, error) {
	js.mu.RLock()
	defer js.mu.RUnlock()

	job, exists := js.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return cloneJob(job), nil
}

// Update 更新任务
func (js *JobStore) Update(_ context.Context, jobID string, updateFn func(*models.TranscriptionJob)) error {
	js.mu.Lock()
	defer js.mu.Unlock()

	job, exists := js.jobs[jobID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	updateFn(job)
	return nil
}

// List 列出所有任务（按创建时间倒序）
func (js *JobStore) List(_ context.Context) ([]*models.TranscriptionJob, error) {
	js.mu.RLock()
	defer js.mu.RUnlock()

	jobs := make([]*models.TranscriptionJob, 0, len(js.jobs))
	for _, job := range js.jobs {
		jobs = append(jobs, cloneJob(job))
	}
	slices.SortFunc(jobs, func(a, b *models.TranscriptionJob) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return jobs, nil
}

// ListAll 内存存储里 List 即全部
func (js *JobStore) ListAll(ctx context.Context) ([]*models.TranscriptionJob, error) {
	return js.List(ctx)
}

// Delete 删除任务
func (js *JobStore) Delete(_ context.Context, jobID string) error {
	js.mu.Lock()
	defer js.mu.Unlock()

	if _, exists := js.jobs[jobID]; !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	delete(js.jobs, jobID)
	return nil
}

// Close 内存存储无需关闭
func (js *JobStore) Close() error {
	return nil
}

func cloneJob(job *models.TranscriptionJob) *models.TranscriptionJob {
	c := *job
	c.ContentURLs = slices.Clone(job.ContentURLs)
	c.Segments = slices.Clone(job.Segments)
	return &c
}
