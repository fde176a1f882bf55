package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/z-wentao/speechflow/pkg/models"
)

//go:embed schema.sql
var schemaSQL string

const jobColumns = `job_id, remote_id, display_name, locale, content_urls, status, progress,
	result, segments, subtitle_path, vtt_path, duration, error, summary,
	created_at, completed_at`

// PostgresJobStore PostgreSQL 任务存储（持久化）
type PostgresJobStore struct {
	db *sql.DB
}

// NewPostgresJobStore 创建 PostgreSQL 任务存储，并确保表结构存在
func NewPostgresJobStore(ctx context.Context, dsn string) (*PostgresJobStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库连接失败: %w", err)
	}
	return newPostgresJobStore(ctx, db)
}

func newPostgresJobStore(ctx context.Context, db *sql.DB) (*PostgresJobStore, error) {
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化表结构失败: %w", err)
	}

	return &PostgresJobStore{db: db}, nil
}

// Save UPSERT 任务
func (s *PostgresJobStore) Save(ctx context.Context, job *models.TranscriptionJob) error {
	return upsertJob(ctx, s.db, job)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertJob(ctx context.Context, db execer, job *models.TranscriptionJob) error {
	contentURLs, err := json.Marshal(job.ContentURLs)
	if err != nil {
		return fmt.Errorf("序列化 content_urls 失败: %w", err)
	}
	segments, err := json.Marshal(job.Segments)
	if err != nil {
		return fmt.Errorf("序列化 segments 失败: %w", err)
	}

	var completedAt sql.NullTime
	if !job.CompletedAt.IsZero() {
		completedAt = sql.NullTime{Time: job.CompletedAt, Valid: true}
	}

	query := `
	INSERT INTO transcription_jobs (` + jobColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	ON CONFLICT (job_id)
	DO UPDATE SET
	remote_id = EXCLUDED.remote_id,
	status = EXCLUDED.status,
	progress = EXCLUDED.progress,
	result = EXCLUDED.result,
	segments = EXCLUDED.segments,
	subtitle_path = EXCLUDED.subtitle_path,
	vtt_path = EXCLUDED.vtt_path,
	duration = EXCLUDED.duration,
	error = EXCLUDED.error,
	summary = EXCLUDED.summary,
	completed_at = EXCLUDED.completed_at
	`

	_, err = db.ExecContext(ctx, query,
		job.JobID,
		job.RemoteID,
		job.DisplayName,
		job.Locale,
		contentURLs,
		job.Status,
		job.Progress,
		job.Result,
		segments,
		job.SubtitlePath,
		job.VTTPath,
		job.Duration,
		job.Error,
		job.Summary,
		job.CreatedAt,
		completedAt,
	)
	if err != nil {
		return fmt.Errorf("保存到数据库失败: %w", err)
	}
	return nil
}

// Get 获取任务
func (s *PostgresJobStore) Get(ctx context.Context, jobID string) (*models.TranscriptionJob, error) {
	query := `SELECT ` + jobColumns + ` FROM transcription_jobs WHERE job_id = $1`

	job, err := scanJob(s.db.QueryRowContext(ctx, query, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("查询数据库失败: %w", err)
	}
	return job, nil
}

// Update 在事务中读取并加行锁，更新后写回
func (s *PostgresJobStore) Update(ctx context.Context, jobID string, updateFn func(*models.TranscriptionJob)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + jobColumns + ` FROM transcription_jobs WHERE job_id = $1 FOR UPDATE`
	job, err := scanJob(tx.QueryRowContext(ctx, query, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return fmt.Errorf("查询数据库失败: %w", err)
	}

	updateFn(job)

	if err := upsertJob(ctx, tx, job); err != nil {
		return err
	}
	return tx.Commit()
}

// List 最近 100 个任务（按创建时间倒序）
func (s *PostgresJobStore) List(ctx context.Context) ([]*models.TranscriptionJob, error) {
	return s.query(ctx, `SELECT `+jobColumns+` FROM transcription_jobs ORDER BY created_at DESC LIMIT 100`)
}

// ListAll 全部历史任务
func (s *PostgresJobStore) ListAll(ctx context.Context) ([]*models.TranscriptionJob, error) {
	return s.query(ctx, `SELECT `+jobColumns+` FROM transcription_jobs ORDER BY created_at DESC`)
}

// Delete 删除任务
func (s *PostgresJobStore) Delete(ctx context.Context, jobID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM transcription_jobs WHERE job_id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("删除任务失败: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("获取删除结果失败: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return nil
}

// Close 关闭数据库连接
func (s *PostgresJobStore) Close() error {
	return s.db.Close()
}

func (s *PostgresJobStore) query(ctx context.Context, query string) ([]*models.TranscriptionJob, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("查询数据库失败: %w", err)
	}
	defer rows.Close()

	jobs := make([]*models.TranscriptionJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("读取任务失败: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.TranscriptionJob, error) {
	var job models.TranscriptionJob
	var contentURLs, segments []byte
	var remoteID, result, subtitlePath, vttPath, errorMsg, summary sql.NullString
	var duration sql.NullFloat64
	var completedAt sql.NullTime

	err := row.Scan(
		&job.JobID,
		&remoteID,
		&job.DisplayName,
		&job.Locale,
		&contentURLs,
		&job.Status,
		&job.Progress,
		&result,
		&segments,
		&subtitlePath,
		&vttPath,
		&duration,
		&errorMsg,
		&summary,
		&job.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	// 处理 NULL 值
	job.RemoteID = remoteID.String
	job.Result = result.String
	job.SubtitlePath = subtitlePath.String
	job.VTTPath = vttPath.String
	job.Error = errorMsg.String
	job.Summary = summary.String
	job.Duration = duration.Float64
	if completedAt.Valid {
		job.CompletedAt = completedAt.Time
	}

	if len(contentURLs) > 0 {
		if err := json.Unmarshal(contentURLs, &job.ContentURLs); err != nil {
			return nil, fmt.Errorf("反序列化 content_urls 失败: %w", err)
		}
	}
	if len(segments) > 0 {
		if err := json.Unmarshal(segments, &job.Segments); err != nil {
			return nil, fmt.Errorf("反序列化 segments 失败: %w", err)
		}
	}
	return &job, nil
}
