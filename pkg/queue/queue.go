package queue

import (
	"context"
	"errors"

	"github.com/z-wentao/speechflow/pkg/models"
)

// ErrClosed 队列已关闭
var ErrClosed = errors.New("queue closed")

// Queue 转录任务队列
type Queue interface {
	Enqueue(ctx context.Context, job *models.TranscriptionJob) error

	// Dequeue 阻塞直到取到任务、ctx 结束或队列关闭
	Dequeue(ctx context.Context) (*models.TranscriptionJob, error)

	// Ack 确认任务处理完成
	Ack(job *models.TranscriptionJob) error

	// Nack 拒绝任务，requeue 为 true 时重新入队
	Nack(job *models.TranscriptionJob, requeue bool) error

	Close() error
}

// Stats 队列状态
type Stats struct {
	Messages  int `json:"messages"`            // 等待处理的任务数
	Consumers int `json:"consumers,omitempty"` // 仅 RabbitMQ
}

// StatsReporter is implemented by queues that can report their depth.
type StatsReporter interface {
	Stats() (Stats, error)
}
