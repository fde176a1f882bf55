package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/z-wentao/speechflow/pkg/models"
)

const (
	redisKeyPrefix = "speechflow:job:"
	redisIndexKey  = "speechflow:jobs:index"

	// 乐观锁冲突时的最大重试次数
	maxUpdateRetries = 5
)

// RedisJobStore Redis 任务存储，任务以 JSON 保存并设置 TTL，
// 有序集合按创建时间索引
type RedisJobStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisJobStore 创建 Redis 任务存储
func NewRedisJobStore(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisJobStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}

	return &RedisJobStore{client: client, ttl: ttl}, nil
}

func (rs *RedisJobStore) key(jobID string) string {
	return redisKeyPrefix + jobID
}

// Save 保存任务到 Redis
func (rs *RedisJobStore) Save(ctx context.Context, job *models.TranscriptionJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("序列化任务失败: %w", err)
	}

	_, err = rs.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, rs.key(job.JobID), data, rs.ttl)
		pipe.ZAdd(ctx, redisIndexKey, redis.Z{
			Score:  float64(job.CreatedAt.UnixMilli()),
			Member: job.JobID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("保存到 Redis 失败: %w", err)
	}
	return nil
}

// Get 从 Redis 获取任务
func (rs *RedisJobStore) Get(ctx context.Context, jobID string) (*models.TranscriptionJob, error) {
	return decodeJob(rs.client.Get(ctx, rs.key(jobID)), jobID)
}

// Update 使用 WATCH 保证读-改-写期间没有其他写入
func (rs *RedisJobStore) Update(ctx context.Context, jobID string, updateFn func(*models.TranscriptionJob)) error {
	key := rs.key(jobID)

	txf := func(tx *redis.Tx) error {
		job, err := decodeJob(tx.Get(ctx, key), jobID)
		if err != nil {
			return err
		}

		updateFn(job)

		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("序列化任务失败: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, rs.ttl)
			return nil
		})
		return err
	}

	for range maxUpdateRetries {
		err := rs.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("更新任务 %s 失败: 并发冲突", jobID)
}

// List 列出索引中的任务，已过期的任务顺便从索引移除
func (rs *RedisJobStore) List(ctx context.Context) ([]*models.TranscriptionJob, error) {
	jobIDs, err := rs.client.ZRevRange(ctx, redisIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("获取任务索引失败: %w", err)
	}

	jobs := make([]*models.TranscriptionJob, 0, len(jobIDs))
	for _, jobID := range jobIDs {
		job, err := rs.Get(ctx, jobID)
		if errors.Is(err, ErrJobNotFound) {
			rs.client.ZRem(ctx, redisIndexKey, jobID)
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// ListAll Redis 只保存 TTL 内的任务
func (rs *RedisJobStore) ListAll(ctx context.Context) ([]*models.TranscriptionJob, error) {
	return rs.List(ctx)
}

// Delete 删除任务
func (rs *RedisJobStore) Delete(ctx context.Context, jobID string) error {
	deleted, err := rs.client.Del(ctx, rs.key(jobID)).Result()
	if err != nil {
		return fmt.Errorf("删除任务失败: %w", err)
	}
	rs.client.ZRem(ctx, redisIndexKey, jobID)

	if deleted == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return nil
}

// Close 关闭 Redis 连接
func (rs *RedisJobStore) Close() error {
	return rs.client.Close()
}

// CleanExpiredJobs 清理索引中已过期的任务，返回清理数量
func (rs *RedisJobStore) CleanExpiredJobs(ctx context.Context) (int, error) {
	jobIDs, err := rs.client.ZRange(ctx, redisIndexKey, 0, -1).Result()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, jobID := range jobIDs {
		exists, err := rs.client.Exists(ctx, rs.key(jobID)).Result()
		if err != nil {
			return removed, err
		}
		if exists == 0 {
			rs.client.ZRem(ctx, redisIndexKey, jobID)
			removed++
		}
	}
	return removed, nil
}

func decodeJob(cmd *redis.StringCmd, jobID string) (*models.TranscriptionJob, error) {
	data, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("从 Redis 获取失败: %w", err)
	}

	var job models.TranscriptionJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("反序列化任务失败: %w", err)
	}
	return &job, nil
}
