package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"github.com/z-wentao/speechflow/pkg/batch"
	"github.com/z-wentao/speechflow/pkg/config"
	"github.com/z-wentao/speechflow/pkg/logging"
	"github.com/z-wentao/speechflow/pkg/speech"
)

// RecognizerFactory builds the streaming recognizer. The Azure SDK needs
// cgo, so the binary injects it instead of this package importing it.
type RecognizerFactory func(key, region string, log *logrus.Entry) (speech.Recognizer, error)

// AppContext 命令共用的上下文
type AppContext struct {
	Config *config.Config
	Logger *logrus.Logger
	Out    io.Writer
}

// NewAppContext 加载配置并初始化日志
func NewAppContext(cmd *cli.Command) (*AppContext, error) {
	cfg, err := config.LoadConfig(cmd.String("config"), cmd.String("env"))
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger(cfg.Log)
	if cmd.Bool("verbose") {
		logger.SetLevel(logrus.DebugLevel)
	}
	out := cmd.Root().Writer
	logger.SetOutput(cmd.Root().ErrWriter)

	return &AppContext{Config: cfg, Logger: logger, Out: out}, nil
}

// BatchClient 创建批量转录客户端
func (a *AppContext) BatchClient() (*batch.Client, error) {
	client, err := batch.NewClientFromConfig(a.Config.Azure, nil, a.Logger.WithField("region", a.Config.Azure.Region))
	if err != nil {
		return nil, fmt.Errorf("初始化转录客户端失败: %w", err)
	}
	return client, nil
}

func requireArg(cmd *cli.Command, name string) (string, error) {
	v := cmd.Args().First()
	if v == "" {
		return "", fmt.Errorf("缺少参数 <%s>", name)
	}
	return v, nil
}

// withApp adapts an action that needs the loaded configuration.
func withApp(fn func(ctx context.Context, cmd *cli.Command, app *AppContext) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		app, err := NewAppContext(cmd)
		if err != nil {
			return err
		}
		return fn(ctx, cmd, app)
	}
}
