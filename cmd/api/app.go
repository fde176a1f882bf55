package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/z-wentao/speechflow/pkg/intent"
	"github.com/z-wentao/speechflow/pkg/models"
	"github.com/z-wentao/speechflow/pkg/queue"
	"github.com/z-wentao/speechflow/pkg/storage"
	"github.com/z-wentao/speechflow/pkg/summary"
	"github.com/z-wentao/speechflow/pkg/transcriber"
)

const version = "0.3.0"

// Summarizer 生成转录摘要
type Summarizer interface {
	Summarize(ctx context.Context, text string, segments []models.Segment) (*summary.Summary, error)
}

// IntentResolver 意图识别
type IntentResolver interface {
	Resolve(ctx context.Context, query string) (*intent.Prediction, error)
}

// App 应用上下文（依赖注入）
type App struct {
	queue      queue.Queue
	store      storage.Store
	summarizer Summarizer     // 未配置 OpenAI 时为 nil
	intents    IntentResolver // 未配置 LUIS 时为 nil
	locale     string
	display    string
	log        *logrus.Entry
}

// setupRouter 设置路由
func (app *App) setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), app.requestLogger())

	api := r.Group("/api")
	{
		api.GET("/ping", app.handlePing)
		api.POST("/transcriptions", app.handleCreateTranscription)
		api.GET("/transcriptions", app.handleListTranscriptions)
		api.GET("/transcriptions/:job_id", app.handleGetTranscription)
		api.GET("/transcriptions/:job_id/subtitles", app.handleSubtitles)
		api.POST("/transcriptions/:job_id/summary", app.handleSummary)
		api.POST("/intent", app.handleIntent)
	}

	return r
}

// requestLogger 使用 logrus 记录请求
func (app *App) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		app.log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Round(time.Microsecond),
		}).Debug("request")
	}
}

// handlePing 健康检查
func (app *App) handlePing(c *gin.Context) {
	resp := gin.H{
		"message": "pong",
		"version": version,
	}

	if reporter, ok := app.queue.(queue.StatsReporter); ok {
		stats, err := reporter.Stats()
		if err != nil {
			app.log.WithError(err).Warn("⚠️ 查询队列状态失败")
		} else {
			resp["queue"] = stats
		}
	}

	c.JSON(http.StatusOK, resp)
}

// CreateTranscriptionRequest 创建转录任务的请求
type CreateTranscriptionRequest struct {
	ContentURLs []string `json:"content_urls" binding:"required,min=1"`
	DisplayName string   `json:"display_name"`
	Locale      string   `json:"locale"`
}

// handleCreateTranscription 创建任务并加入队列
func (app *App) handleCreateTranscription(c *gin.Context) {
	// 1. 解析请求
	var req CreateTranscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误: " + err.Error()})
		return
	}
	for _, raw := range req.ContentURLs {
		if !validContentURL(raw) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("无效的音频地址: %s", raw)})
			return
		}
	}

	// 2. 创建任务
	job := &models.TranscriptionJob{
		JobID:       uuid.New().String(),
		DisplayName: req.DisplayName,
		Locale:      req.Locale,
		ContentURLs: req.ContentURLs,
		Status:      models.StatusPending,
		CreatedAt:   time.Now(),
	}
	if job.DisplayName == "" {
		job.DisplayName = app.display
	}
	if job.Locale == "" {
		job.Locale = app.locale
	}

	ctx := c.Request.Context()

	// 3. 先保存再入队，Worker 以存储中的记录为准
	if err := app.store.Save(ctx, job); err != nil {
		app.log.WithError(err).Error("❌ 保存任务失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "保存任务失败"})
		return
	}
	if err := app.queue.Enqueue(ctx, job); err != nil {
		app.log.WithError(err).Error("❌ 任务加入队列失败")
		if err := app.store.Delete(ctx, job.JobID); err != nil {
			app.log.WithError(err).WithField("job_id", job.JobID).Warn("⚠️ 删除未入队的任务失败")
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "任务加入队列失败"})
		return
	}

	app.log.WithField("job_id", job.JobID).Info("✓ 任务已加入队列")

	c.JSON(http.StatusAccepted, gin.H{
		"job_id": job.JobID,
		"status": job.Status,
	})
}

// handleListTranscriptions 列出任务，?all=true 返回全部历史
func (app *App) handleListTranscriptions(c *gin.Context) {
	list := app.store.List
	if c.Query("all") == "true" {
		list = app.store.ListAll
	}

	jobs, err := list(c.Request.Context())
	if err != nil {
		app.log.WithError(err).Error("❌ 查询任务列表失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询任务列表失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"total": len(jobs),
	})
}

// handleGetTranscription 获取任务状态
func (app *App) handleGetTranscription(c *gin.Context) {
	job, ok := app.loadJob(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, job)
}

// handleSubtitles 下载字幕，format=srt|vtt
func (app *App) handleSubtitles(c *gin.Context) {
	job, ok := app.loadJob(c)
	if !ok {
		return
	}
	if job.Status != models.StatusSucceeded {
		c.JSON(http.StatusConflict, gin.H{"error": "任务尚未完成"})
		return
	}

	var body, contentType string
	switch c.DefaultQuery("format", "srt") {
	case "srt":
		body, contentType = transcriber.RenderSRT(job.Segments), "application/x-subrip; charset=utf-8"
	case "vtt":
		body, contentType = transcriber.RenderVTT(job.Segments), "text/vtt; charset=utf-8"
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format 只支持 srt 或 vtt"})
		return
	}

	c.Data(http.StatusOK, contentType, []byte(body))
}

// handleSummary 生成并保存摘要
func (app *App) handleSummary(c *gin.Context) {
	if app.summarizer == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "未配置 OpenAI"})
		return
	}

	job, ok := app.loadJob(c)
	if !ok {
		return
	}
	if job.Status != models.StatusSucceeded || job.Result == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "任务尚未完成，无法生成摘要"})
		return
	}

	ctx := c.Request.Context()
	result, err := app.summarizer.Summarize(ctx, job.Result, job.Segments)
	if err != nil {
		app.log.WithError(err).WithField("job_id", job.JobID).Error("❌ 生成摘要失败")
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("生成摘要失败: %v", err)})
		return
	}

	text := result.String()
	if err := app.store.Update(ctx, job.JobID, func(j *models.TranscriptionJob) {
		j.Summary = text
	}); err != nil {
		app.log.WithError(err).Warn("⚠️ 保存摘要失败")
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id":   job.JobID,
		"summary":  result.Summary,
		"speakers": result.Speakers,
	})
}

// IntentRequest 意图识别请求
type IntentRequest struct {
	Query string `json:"query" binding:"required"`
}

// handleIntent 识别一句话的意图
func (app *App) handleIntent(c *gin.Context) {
	if app.intents == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "未配置 LUIS"})
		return
	}

	var req IntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数错误: " + err.Error()})
		return
	}

	prediction, err := app.intents.Resolve(c.Request.Context(), req.Query)
	if err != nil {
		app.log.WithError(err).Error("❌ 意图识别失败")
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("意图识别失败: %v", err)})
		return
	}

	c.JSON(http.StatusOK, prediction)
}

// loadJob 读取路径中的任务，失败时已写好响应
func (app *App) loadJob(c *gin.Context) (*models.TranscriptionJob, bool) {
	job, err := app.store.Get(c.Request.Context(), c.Param("job_id"))
	if errors.Is(err, storage.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "任务不存在"})
		return nil, false
	}
	if err != nil {
		app.log.WithError(err).Error("❌ 查询任务失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询任务失败"})
		return nil, false
	}
	return job, true
}

func validContentURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "https" || u.Scheme == "http") && u.Host != ""
}
