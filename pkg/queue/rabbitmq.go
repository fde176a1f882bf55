package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/z-wentao/speechflow/pkg/models"
)

const publishTimeout = 5 * time.Second

// RabbitMQQueue RabbitMQ 队列实现
// 1. 发布与消费使用独立连接
// 2. 所有 Worker 共享一个 consumer，通过 QoS prefetch 控制并发
// 3. 手动 Ack/Nack 保证任务不丢失
type RabbitMQQueue struct {
	url       string
	queueName string
	prefetch  int
	closed    chan struct{}
	closeOnce sync.Once
	log       *logrus.Entry

	publishConn    *amqp.Connection
	publishChannel *amqp.Channel
	publishMu      sync.Mutex

	consumeConn    *amqp.Connection
	consumeChannel *amqp.Channel
	deliveries     <-chan amqp.Delivery

	// amqp.Channel 不是并发安全的
	ackMu sync.Mutex
}

// NewRabbitMQQueue 创建 RabbitMQ 队列，prefetch 一般等于 Worker 池大小
func NewRabbitMQQueue(url, queueName string, prefetch int, log *logrus.Entry) (*RabbitMQQueue, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if prefetch <= 0 {
		prefetch = 1
	}

	rq := &RabbitMQQueue{
		url:       url,
		queueName: queueName,
		prefetch:  prefetch,
		closed:    make(chan struct{}),
		log:       log.WithFields(logrus.Fields{"component": "rabbitmq", "queue": queueName}),
	}

	if err := rq.setupPublisher(); err != nil {
		return nil, fmt.Errorf("初始化发布者失败: %w", err)
	}
	if err := rq.setupConsumer(); err != nil {
		rq.closePublisher()
		return nil, fmt.Errorf("初始化消费者失败: %w", err)
	}

	rq.log.WithField("prefetch", prefetch).Info("✓ RabbitMQ 队列初始化成功")
	return rq, nil
}

// declare 声明持久化队列（幂等操作）
func (rq *RabbitMQQueue) declare(ch *amqp.Channel) error {
	_, err := ch.QueueDeclare(
		rq.queueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	return err
}

func (rq *RabbitMQQueue) setupPublisher() error {
	conn, err := amqp.Dial(rq.url)
	if err != nil {
		return fmt.Errorf("连接失败: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("创建 channel 失败: %w", err)
	}

	if err := rq.declare(ch); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("声明队列失败: %w", err)
	}

	rq.publishConn = conn
	rq.publishChannel = ch
	return nil
}

func (rq *RabbitMQQueue) setupConsumer() error {
	conn, err := amqp.Dial(rq.url)
	if err != nil {
		return fmt.Errorf("连接失败: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("创建 channel 失败: %w", err)
	}

	if err := rq.declare(ch); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("声明队列失败: %w", err)
	}

	// 预取数量 = 同时处理的任务数
	if err := ch.Qos(rq.prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("设置 QoS 失败: %w", err)
	}

	deliveries, err := ch.Consume(
		rq.queueName,
		"",    // consumer tag 由服务端生成
		false, // autoAck: 手动确认
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("启动消费失败: %w", err)
	}

	rq.consumeConn = conn
	rq.consumeChannel = ch
	rq.deliveries = deliveries
	return nil
}

// newPublishing 将任务编码为持久化消息
func newPublishing(job *models.TranscriptionJob) (amqp.Publishing, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("序列化任务失败: %w", err)
	}
	return amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    job.JobID,
		Body:         body,
		Timestamp:    time.Now(),
	}, nil
}

// decodeDelivery 解码消息并记录 delivery，用于之后的 Ack/Nack
func decodeDelivery(delivery amqp.Delivery) (*models.TranscriptionJob, error) {
	var job models.TranscriptionJob
	if err := json.Unmarshal(delivery.Body, &job); err != nil {
		return nil, fmt.Errorf("反序列化任务失败: %w", err)
	}
	job.DeliveryTag = delivery.DeliveryTag
	job.RabbitMQDelivery = delivery
	return &job, nil
}

// Enqueue 发布任务
func (rq *RabbitMQQueue) Enqueue(ctx context.Context, job *models.TranscriptionJob) error {
	msg, err := newPublishing(job)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	rq.publishMu.Lock()
	defer rq.publishMu.Unlock()

	if err := rq.publishChannel.PublishWithContext(ctx, "", rq.queueName, false, false, msg); err != nil {
		return fmt.Errorf("发布消息失败: %w", err)
	}
	return nil
}

// Dequeue 所有 Worker 共享同一个 deliveries channel，每条消息只会被一个 Worker 读到
func (rq *RabbitMQQueue) Dequeue(ctx context.Context) (*models.TranscriptionJob, error) {
	for {
		select {
		case <-rq.closed:
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		case delivery, ok := <-rq.deliveries:
			if !ok {
				return nil, fmt.Errorf("消费通道已关闭: %w", ErrClosed)
			}

			job, err := decodeDelivery(delivery)
			if err != nil {
				// 无法解析的消息直接丢弃，不重新入队
				rq.log.WithError(err).Warn("⚠️ 丢弃无法解析的消息")
				rq.nack(delivery.DeliveryTag, false)
				continue
			}
			return job, nil
		}
	}
}

// Ack 确认消息
func (rq *RabbitMQQueue) Ack(job *models.TranscriptionJob) error {
	delivery, ok := job.RabbitMQDelivery.(amqp.Delivery)
	if !ok {
		return nil
	}

	rq.ackMu.Lock()
	defer rq.ackMu.Unlock()
	return rq.consumeChannel.Ack(delivery.DeliveryTag, false)
}

// Nack 拒绝消息
func (rq *RabbitMQQueue) Nack(job *models.TranscriptionJob, requeue bool) error {
	delivery, ok := job.RabbitMQDelivery.(amqp.Delivery)
	if !ok {
		return nil
	}
	return rq.nack(delivery.DeliveryTag, requeue)
}

func (rq *RabbitMQQueue) nack(tag uint64, requeue bool) error {
	rq.ackMu.Lock()
	defer rq.ackMu.Unlock()
	return rq.consumeChannel.Nack(tag, false, requeue)
}

// Stats 返回排队消息数与消费者数
func (rq *RabbitMQQueue) Stats() (Stats, error) {
	rq.publishMu.Lock()
	defer rq.publishMu.Unlock()

	q, err := rq.publishChannel.QueueDeclarePassive(rq.queueName, true, false, false, false, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("查询队列状态失败: %w", err)
	}
	return Stats{Messages: q.Messages, Consumers: q.Consumers}, nil
}

// Close 关闭队列，可重复调用
func (rq *RabbitMQQueue) Close() error {
	rq.closeOnce.Do(func() {
		close(rq.closed)

		if rq.consumeChannel != nil {
			rq.consumeChannel.Close()
		}
		if rq.consumeConn != nil {
			rq.consumeConn.Close()
		}
		rq.closePublisher()

		rq.log.Info("✓ RabbitMQ 队列已关闭")
	})
	return nil
}

func (rq *RabbitMQQueue) closePublisher() {
	if rq.publishChannel != nil {
		rq.publishChannel.Close()
	}
	if rq.publishConn != nil {
		rq.publishConn.Close()
	}
}
