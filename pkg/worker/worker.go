package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/sirupsen/logrus"
	"github.com/z-wentao/speechflow/pkg/models"
	"github.com/z-wentao/speechflow/pkg/queue"
	"github.com/z-wentao/speechflow/pkg/storage"
	"github.com/z-wentao/speechflow/pkg/transcriber"
)

// Engine 转录引擎
type Engine interface {
	Transcribe(ctx context.Context, req transcriber.Request, progress func(transcriber.Progress)) (*transcriber.TranscriptionResult, error)
	Resume(ctx context.Context, remoteID string, progress func(transcriber.Progress)) (*transcriber.TranscriptionResult, error)
}

// Options Worker 参数
type Options struct {
	PoolSize   int
	JobTimeout time.Duration

	// 每个任务提交时使用的属性
	Properties *models.TranscriptionProperties
}

// Worker 从队列取任务，在固定大小的池中运行，并把状态写回存储
type Worker struct {
	queue  queue.Queue
	store  storage.Store
	engine Engine
	opts   Options
	log    *logrus.Entry

	pool  *workerpool.WorkerPool
	slots chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker 创建 Worker
func NewWorker(q queue.Queue, store storage.Store, engine Engine, opts Options, log *logrus.Entry) *Worker {
	if opts.PoolSize <= 0 {
		opts.PoolSize = 1
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		queue:  q,
		store:  store,
		engine: engine,
		opts:   opts,
		log:    log.WithField("component", "worker"),
		pool:   workerpool.New(opts.PoolSize),
		slots:  make(chan struct{}, opts.PoolSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start 在独立的 goroutine 中运行分发循环
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.run()
}

// Stop 取消进行中的任务并等待它们退出
func (w *Worker) Stop() {
	w.log.Info("正在停止 Worker...")
	w.cancel()
	w.wg.Wait()
	w.pool.StopWait()
	w.log.Info("Worker 已停止")
}

// run 分发循环：有空闲槽位才取下一个任务，其余任务留在队列里
func (w *Worker) run() {
	defer w.wg.Done()
	w.log.WithField("pool_size", w.opts.PoolSize).Info("Worker 已启动，等待任务...")

	for {
		select {
		case w.slots <- struct{}{}:
		case <-w.ctx.Done():
			return
		}

		job, err := w.queue.Dequeue(w.ctx)
		if err != nil {
			<-w.slots
			if w.ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			w.log.WithError(err).Warn("从队列获取任务失败")
			select {
			case <-time.After(time.Second):
			case <-w.ctx.Done():
				return
			}
			continue
		}

		w.pool.Submit(func() {
			defer func() { <-w.slots }()
			w.processJob(job)
		})
	}
}

// processJob 处理单个任务
func (w *Worker) processJob(job *models.TranscriptionJob) {
	log := w.log.WithField("job_id", job.JobID)

	// 以存储中的记录为准，重新投递的任务可能已经提交过
	stored, err := w.store.Get(w.ctx, job.JobID)
	if errors.Is(err, storage.ErrJobNotFound) {
		// 任务已被删除，丢弃消息
		log.Warn("⚠️ 任务不存在，丢弃")
		w.ack(job, log)
		return
	}
	if err != nil {
		log.WithError(err).Error("❌ 读取任务失败")
		w.nack(job, true, log)
		return
	}
	if stored.Status.IsTerminal() {
		w.ack(job, log)
		return
	}

	ctx := w.ctx
	if w.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(w.ctx, w.opts.JobTimeout)
		defer cancel()
	}

	progress := func(p transcriber.Progress) {
		w.update(job.JobID, func(j *models.TranscriptionJob) {
			j.RemoteID = p.RemoteID
			j.Status = p.Status
			j.Progress = p.Percent
		})
		log.WithFields(logrus.Fields{"remote_id": p.RemoteID, "status": p.Status}).Debugf("进度: %d%%", p.Percent)
	}

	start := time.Now()
	var result *transcriber.TranscriptionResult
	if stored.RemoteID != "" {
		log.WithField("remote_id", stored.RemoteID).Info("📝 继续等待已提交的任务")
		result, err = w.engine.Resume(ctx, stored.RemoteID, progress)
	} else {
		log.Info("📝 开始处理任务")
		result, err = w.engine.Transcribe(ctx, w.request(stored), progress)
	}

	switch {
	case err == nil:
		srt, vtt := result.SubtitlePaths()
		w.update(job.JobID, func(j *models.TranscriptionJob) {
			j.RemoteID = result.RemoteID
			j.Status = models.StatusSucceeded
			j.Progress = 100
			j.Result = result.Text
			j.Segments = result.Segments
			j.Duration = result.Duration
			j.SubtitlePath = srt
			j.VTTPath = vtt
			j.Error = ""
			j.CompletedAt = time.Now()
		})
		log.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info("🎉 任务完成")
		w.ack(job, log)

	case w.ctx.Err() != nil:
		// Worker 正在停止，保留当前状态，交给下一个 Worker 继续
		log.Warn("⚠️ Worker 停止，任务重新入队")
		w.nack(job, true, log)

	default:
		w.update(job.JobID, func(j *models.TranscriptionJob) {
			if result != nil && result.RemoteID != "" {
				j.RemoteID = result.RemoteID
			}
			j.Status = models.StatusFailed
			j.Error = err.Error()
			j.CompletedAt = time.Now()
		})
		log.WithError(err).Error("❌ 任务失败")
		// 提交不重试
		w.nack(job, false, log)
	}
}

func (w *Worker) ack(job *models.TranscriptionJob, log *logrus.Entry) {
	if err := w.queue.Ack(job); err != nil {
		log.WithError(err).Error("❌ 确认消息失败")
	}
}

func (w *Worker) nack(job *models.TranscriptionJob, requeue bool, log *logrus.Entry) {
	if err := w.queue.Nack(job, requeue); err != nil {
		log.WithError(err).WithField("requeue", requeue).Error("❌ 拒绝消息失败")
	}
}

func (w *Worker) request(job *models.TranscriptionJob) transcriber.Request {
	return transcriber.Request{
		DisplayName: job.DisplayName,
		Locale:      job.Locale,
		ContentURLs: job.ContentURLs,
		Properties:  w.opts.Properties,
	}
}

// update 写存储失败只记录日志，不中断任务
func (w *Worker) update(jobID string, fn func(*models.TranscriptionJob)) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.store.Update(ctx, jobID, fn); err != nil {
		w.log.WithError(err).WithField("job_id", jobID).Warn("⚠️ 更新任务状态失败")
	}
}
