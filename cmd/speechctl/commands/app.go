package commands

import (
	"time"

	"github.com/urfave/cli/v3"
	"github.com/z-wentao/speechflow/pkg/batch"
)

// NewApp 构建 speechctl 命令树
func NewApp(newRecognizer RecognizerFactory) *cli.Command {
	return &cli.Command{
		Name:  "speechctl",
		Usage: "Azure 语音批量转录、连续识别与意图识别命令行工具",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "配置文件路径",
				Value: "config/config.yaml",
			},
			&cli.StringFlag{
				Name:  "env",
				Usage: "环境变量文件路径",
				Value: ".env",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "输出调试日志",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "batch",
				Usage: "批量转录任务管理",
				Commands: []*cli.Command{
					{
						Name:  "submit",
						Usage: "提交转录任务",
						Flags: []cli.Flag{
							&cli.StringSliceFlag{
								Name:     "url",
								Usage:    "音频文件地址（可重复）",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "locale",
								Usage: "语言（默认取配置）",
							},
							&cli.StringFlag{
								Name:  "name",
								Usage: "任务显示名称",
							},
							&cli.BoolFlag{
								Name:  "wait",
								Usage: "等待任务结束并列出结果文件",
							},
							&cli.DurationFlag{
								Name:  "interval",
								Usage: "轮询间隔（默认取配置）",
							},
						},
						Action: withApp(BatchSubmitAction),
					},
					{
						Name:      "status",
						Usage:     "查询任务状态",
						ArgsUsage: "<job-id>",
						Action:    withApp(BatchStatusAction),
					},
					{
						Name:      "wait",
						Usage:     "轮询直到任务结束",
						ArgsUsage: "<job-id>",
						Flags: []cli.Flag{
							&cli.DurationFlag{
								Name:  "interval",
								Usage: "轮询间隔",
								Value: batch.DefaultPollInterval,
							},
							&cli.DurationFlag{
								Name:  "timeout",
								Usage: "最长等待时间",
								Value: 2 * time.Hour,
							},
						},
						Action: withApp(BatchWaitAction),
					},
					{
						Name:      "files",
						Usage:     "列出任务的结果文件",
						ArgsUsage: "<job-id>",
						Flags: []cli.Flag{
							&cli.BoolFlag{
								Name:  "all",
								Usage: "包含转录报告等非转录文件",
							},
						},
						Action: withApp(BatchFilesAction),
					},
					{
						Name:      "fetch",
						Usage:     "下载转录结果并生成字幕",
						ArgsUsage: "<job-id>",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "out",
								Usage: "字幕输出目录（为空则只输出文本）",
							},
							&cli.BoolFlag{
								Name:  "speakers",
								Usage: "按说话人输出文本",
							},
						},
						Action: withApp(BatchFetchAction),
					},
					{
						Name:   "list",
						Usage:  "列出资源下的所有转录任务",
						Action: withApp(BatchListAction),
					},
					{
						Name:      "delete",
						Usage:     "删除转录任务",
						ArgsUsage: "<job-id>",
						Action:    withApp(BatchDeleteAction),
					},
				},
			},
			{
				Name:  "recognize",
				Usage: "对 WAV 文件进行连续识别或会话转录",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Usage:    "WAV 文件路径",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "locale",
						Usage: "识别语言（默认取配置）",
					},
					&cli.BoolFlag{
						Name:  "speakers",
						Usage: "会话转录，区分说话人",
					},
				},
				Action: withApp(RecognizeAction(newRecognizer)),
			},
			{
				Name:  "intent",
				Usage: "识别一句话的意图（LUIS）",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "query",
						Usage:    "要识别的句子",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "输出完整 JSON",
					},
				},
				Action: withApp(IntentAction),
			},
		},
	}
}
