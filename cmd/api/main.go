package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/z-wentao/speechflow/pkg/batch"
	"github.com/z-wentao/speechflow/pkg/config"
	"github.com/z-wentao/speechflow/pkg/intent"
	"github.com/z-wentao/speechflow/pkg/logging"
	"github.com/z-wentao/speechflow/pkg/queue"
	"github.com/z-wentao/speechflow/pkg/storage"
	"github.com/z-wentao/speechflow/pkg/summary"
	"github.com/z-wentao/speechflow/pkg/transcriber"
	"github.com/z-wentao/speechflow/pkg/worker"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	envFile := flag.String("env", ".env", ".env 文件路径")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.LoadConfig(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ 加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.Log)
	log := logging.Component(logger, "api")
	log.Info("✓ 配置加载成功")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. 初始化存储与队列
	store, err := storage.New(ctx, cfg.Storage, logger.WithField("component", "storage"))
	if err != nil {
		log.WithError(err).Fatal("❌ 初始化存储失败")
	}
	log.WithField("type", cfg.Storage.Type).Info("✓ 存储初始化成功")

	// Redis 中过期的任务会在索引里留下残留
	go storage.RunCleanup(ctx, store, storage.DefaultCleanupInterval, logger.WithField("component", "storage"))

	q, err := queue.New(cfg.Queue, cfg.Worker.PoolSize, logger.WithField("component", "queue"))
	if err != nil {
		log.WithError(err).Fatal("❌ 初始化队列失败")
	}
	log.WithField("type", cfg.Queue.Type).Info("✓ 队列初始化成功")

	// 3. 初始化批量转录客户端与引擎
	client, err := batch.NewClientFromConfig(cfg.Azure, nil, logger.WithField("region", cfg.Azure.Region))
	if err != nil {
		log.WithError(err).Fatal("❌ 初始化转录客户端失败")
	}
	engine := transcriber.NewTranscriptionEngine(client, transcriber.EngineOptions{
		PollInterval:        cfg.Transcription.PollInterval,
		PollTimeout:         cfg.Transcription.PollTimeout,
		DownloadConcurrency: cfg.Transcription.DownloadConcurrency,
		OutputDir:           cfg.Transcription.OutputDir,
	}, logrus.NewEntry(logger))

	app := &App{
		queue:   q,
		store:   store,
		locale:  cfg.Transcription.Locale,
		display: cfg.Transcription.DisplayName,
		log:     log,
	}

	// 4. 可选组件
	if cfg.OpenAI.APIKey != "" {
		app.summarizer = summary.NewSummarizer(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
		log.Info("✓ 摘要生成已启用")
	}
	if cfg.LUIS.AppID != "" {
		resolver, err := intent.NewClient(cfg.LUISEndpoint(), cfg.LUIS.AppID, cfg.LUIS.SubscriptionKey, cfg.LUIS.Staging, nil, log)
		if err != nil {
			log.WithError(err).Fatal("❌ 初始化 LUIS 失败")
		}
		app.intents = resolver
		log.Info("✓ 意图识别已启用")
	}

	// 5. 启动 Worker
	w := worker.NewWorker(q, store, engine, worker.Options{
		PoolSize:   cfg.Worker.PoolSize,
		JobTimeout: cfg.Worker.JobTimeout,
		Properties: cfg.TranscriptionProperties(),
	}, logrus.NewEntry(logger))
	w.Start()

	// 6. 启动 HTTP 服务器
	if logger.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           app.setupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("❌ 服务器启动失败")
		}
	}()
	log.WithFields(logrus.Fields{
		"port":      cfg.Server.Port,
		"pool_size": cfg.Worker.PoolSize,
		"locale":    cfg.Transcription.Locale,
	}).Infof("🚀 SpeechFlow 服务器启动在 http://localhost:%d", cfg.Server.Port)

	// 7. 优雅关闭
	<-ctx.Done()
	log.Info("🛑 正在关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("⚠️ HTTP 服务器关闭失败")
	}

	w.Stop()
	q.Close()
	if err := store.Close(); err != nil {
		log.WithError(err).Warn("⚠️ 关闭存储失败")
	}
	log.Info("✓ 服务器已关闭")
}
