package logging

import (
	"io"
	"os"
	"strings"

	"github.com/DeRuina/timberjack"
	"github.com/sirupsen/logrus"
	"github.com/z-wentao/speechflow/pkg/config"
)

// NewLogger 根据配置创建 logrus.Logger
func NewLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()

	// 1. 日志级别，无法解析时退回 info
	level := logrus.InfoLevel
	if cfg.Level != "" {
		if lv, err := logrus.ParseLevel(strings.ToLower(cfg.Level)); err == nil {
			level = lv
		}
	}
	logger.SetLevel(level)

	// 2. 输出：stdout，配置了文件时同时写入滚动日志文件
	var output io.Writer = os.Stdout
	if cfg.File != "" {
		output = io.MultiWriter(os.Stdout, &timberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		})
	}
	logger.SetOutput(output)

	// 3. 格式
	switch strings.ToLower(cfg.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return logger
}

// Component returns an entry tagged with the component name.
func Component(logger *logrus.Logger, name string) *logrus.Entry {
	return logger.WithField("component", name)
}
