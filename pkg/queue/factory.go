package queue

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/z-wentao/speechflow/pkg/config"
)

// New 根据配置创建队列，prefetch 对齐 Worker 池大小
func New(cfg config.QueueConfig, poolSize int, log *logrus.Entry) (Queue, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryQueue(cfg.BufferSize), nil
	case "rabbitmq":
		prefetch := cfg.RabbitMQ.Prefetch
		if prefetch <= 0 {
			prefetch = poolSize
		}
		return NewRabbitMQQueue(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName, prefetch, log)
	default:
		return nil, fmt.Errorf("不支持的队列类型: %s", cfg.Type)
	}
}
