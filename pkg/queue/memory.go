package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/z-wentao/speechflow/pkg/models"
)

// MemoryQueue 基于 channel 的内存队列，单进程部署使用
type MemoryQueue struct {
	queue     chan *models.TranscriptionJob
	closed    chan struct{}
	closeOnce sync.Once
}

// NewMemoryQueue 创建内存队列
func NewMemoryQueue(bufferSize int) *MemoryQueue {
	return &MemoryQueue{
		queue:  make(chan *models.TranscriptionJob, bufferSize),
		closed: make(chan struct{}),
	}
}

// Enqueue 将任务加入队列，队列满时立即返回错误
func (mq *MemoryQueue) Enqueue(_ context.Context, job *models.TranscriptionJob) error {
	select {
	case <-mq.closed:
		return ErrClosed
	default:
	}

	select {
	case mq.queue <- job:
		return nil
	default:
		return fmt.Errorf("队列已满 (容量 %d)", cap(mq.queue))
	}
}

// Dequeue 从队列取出任务（阻塞等待）
func (mq *MemoryQueue) Dequeue(ctx context.Context) (*models.TranscriptionJob, error) {
	select {
	case job := <-mq.queue:
		return job, nil
	case <-mq.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ack 内存队列无需确认
func (mq *MemoryQueue) Ack(*models.TranscriptionJob) error {
	return nil
}

// Nack 需要时把任务放回队尾
func (mq *MemoryQueue) Nack(job *models.TranscriptionJob, requeue bool) error {
	if !requeue {
		return nil
	}
	return mq.Enqueue(context.Background(), job)
}

// Len 当前排队的任务数
func (mq *MemoryQueue) Len() int {
	return len(mq.queue)
}

// Stats 内存队列只统计排队数
func (mq *MemoryQueue) Stats() (Stats, error) {
	return Stats{Messages: mq.Len()}, nil
}

// Close 关闭队列，可重复调用
func (mq *MemoryQueue) Close() error {
	mq.closeOnce.Do(func() { close(mq.closed) })
	return nil
}
