package storage

import (
	"context"
	"errors"

	"github.com/z-wentao/speechflow/pkg/models"
)

// ErrJobNotFound 任务不存在
var ErrJobNotFound = errors.New("job not found")

// Store 转录任务存储接口
type Store interface {
	Save(ctx context.Context, job *models.TranscriptionJob) error

	// Get 返回任务副本，调用方修改不会影响存储
	Get(ctx context.Context, jobID string) (*models.TranscriptionJob, error)

	// Update 读取-修改-写回（回调函数模式）
	Update(ctx context.Context, jobID string, updateFn func(*models.TranscriptionJob)) error

	// List 最近的任务，按创建时间倒序
	List(ctx context.Context) ([]*models.TranscriptionJob, error)

	// ListAll 全部历史任务
	ListAll(ctx context.Context) ([]*models.TranscriptionJob, error)

	Delete(ctx context.Context, jobID string) error

	Close() error
}
