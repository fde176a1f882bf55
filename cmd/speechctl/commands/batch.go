package commands

import (
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
	"github.com/z-wentao/speechflow/pkg/batch"
	"github.com/z-wentao/speechflow/pkg/models"
	"github.com/z-wentao/speechflow/pkg/transcriber"
)

// BatchSubmitAction 提交转录任务
func BatchSubmitAction(ctx context.Context, cmd *cli.Command, app *AppContext) error {
	client, err := app.BatchClient()
	if err != nil {
		return err
	}

	tc := app.Config.Transcription
	req := transcriber.Request{
		DisplayName: tc.DisplayName,
		Description: tc.Description,
		Locale:      tc.Locale,
		ContentURLs: cmd.StringSlice("url"),
		Properties:  app.Config.TranscriptionProperties(),
	}
	if v := cmd.String("locale"); v != "" {
		req.Locale = v
	}
	if v := cmd.String("name"); v != "" {
		req.DisplayName = v
	}

	jobID, err := client.Submit(ctx, req.Definition())
	if err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "Created transcription %s\n", jobID)

	if !cmd.Bool("wait") {
		return nil
	}

	interval := cmd.Duration("interval")
	if interval <= 0 {
		interval = tc.PollInterval
	}
	job, err := client.AwaitCompletionFunc(ctx, jobID, interval, func(j *models.Transcription) {
		fmt.Fprintf(app.Out, "Transcription status: %s\n", j.Status)
	})
	if err != nil {
		return err
	}
	if job.Status == models.StatusFailed {
		return fmt.Errorf("transcription %s failed: %s", jobID, job.ErrorMessage())
	}

	files, err := transcriptionFiles(ctx, app, jobID, false)
	if err != nil {
		return err
	}
	return renderFiles(app.Out, files)
}

// BatchStatusAction 查询一次任务状态
func BatchStatusAction(ctx context.Context, cmd *cli.Command, app *AppContext) error {
	jobID, err := requireArg(cmd, "job-id")
	if err != nil {
		return err
	}
	client, err := app.BatchClient()
	if err != nil {
		return err
	}

	job, err := client.Poll(ctx, jobID)
	if err != nil {
		return err
	}
	renderTranscription(app.Out, job)
	return nil
}

// BatchWaitAction 轮询直到任务进入终态
func BatchWaitAction(ctx context.Context, cmd *cli.Command, app *AppContext) error {
	jobID, err := requireArg(cmd, "job-id")
	if err != nil {
		return err
	}
	client, err := app.BatchClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	job, err := client.AwaitCompletionFunc(ctx, jobID, cmd.Duration("interval"), func(j *models.Transcription) {
		fmt.Fprintf(app.Out, "Transcription status: %s\n", j.Status)
	})
	if err != nil {
		return err
	}
	if job.Status == models.StatusFailed {
		return fmt.Errorf("transcription %s failed: %s", jobID, job.ErrorMessage())
	}
	return nil
}

// BatchFilesAction 列出结果文件
func BatchFilesAction(ctx context.Context, cmd *cli.Command, app *AppContext) error {
	jobID, err := requireArg(cmd, "job-id")
	if err != nil {
		return err
	}

	files, err := transcriptionFiles(ctx, app, jobID, cmd.Bool("all"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintln(app.Out, "没有结果文件")
		return nil
	}
	return renderFiles(app.Out, files)
}

// BatchFetchAction 下载并合并转录结果
func BatchFetchAction(ctx context.Context, cmd *cli.Command, app *AppContext) error {
	jobID, err := requireArg(cmd, "job-id")
	if err != nil {
		return err
	}
	client, err := app.BatchClient()
	if err != nil {
		return err
	}

	engine := transcriber.NewTranscriptionEngine(client, transcriber.EngineOptions{
		PollInterval:        app.Config.Transcription.PollInterval,
		DownloadConcurrency: app.Config.Transcription.DownloadConcurrency,
		OutputDir:           cmd.String("out"),
	}, app.Logger.WithField("job_id", jobID))

	result, err := engine.Resume(ctx, jobID, nil)
	if err != nil {
		return err
	}

	if cmd.Bool("speakers") {
		fmt.Fprintln(app.Out, transcriber.SpeakerText(result.Segments))
	} else {
		fmt.Fprintln(app.Out, result.Text)
	}
	for _, f := range result.Files {
		if f.SubtitlePath != "" {
			fmt.Fprintf(app.Out, "Subtitles: %s, %s\n", f.SubtitlePath, f.VTTPath)
		}
	}
	return nil
}

// BatchListAction 列出资源下的所有任务
func BatchListAction(ctx context.Context, cmd *cli.Command, app *AppContext) error {
	client, err := app.BatchClient()
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(app.Out)
	table.Header("ID", "Name", "Locale", "Status", "Created At")

	count := 0
	for t, err := range client.ListTranscriptions(ctx) {
		if err != nil {
			return err
		}
		table.Append(t.ID(), t.DisplayName, t.Locale, string(t.Status), formatTime(t.CreatedDateTime))
		count++
	}

	if count == 0 {
		fmt.Fprintln(app.Out, "没有转录任务")
		return nil
	}
	return table.Render()
}

// BatchDeleteAction 删除任务
func BatchDeleteAction(ctx context.Context, cmd *cli.Command, app *AppContext) error {
	jobID, err := requireArg(cmd, "job-id")
	if err != nil {
		return err
	}
	client, err := app.BatchClient()
	if err != nil {
		return err
	}

	if err := client.Delete(ctx, jobID); err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "Deleted transcription %s\n", jobID)
	return nil
}

func transcriptionFiles(ctx context.Context, app *AppContext, jobID string, all bool) ([]models.File, error) {
	client, err := app.BatchClient()
	if err != nil {
		return nil, err
	}

	files, err := batch.Collect(client.ListResults(ctx, jobID))
	if err != nil || all {
		return files, err
	}
	return slices.DeleteFunc(files, func(f models.File) bool {
		return f.Kind != models.FileKindTranscription
	}), nil
}

func renderTranscription(w io.Writer, t *models.Transcription) {
	fmt.Fprintf(w, "Transcription status: %s\n", t.Status)
	if t.DisplayName != "" {
		fmt.Fprintf(w, "Name: %s\n", t.DisplayName)
	}
	if t.Properties != nil && t.Properties.Duration != "" {
		fmt.Fprintf(w, "Duration: %s\n", t.Properties.Duration)
	}
	if msg := t.ErrorMessage(); msg != "" {
		fmt.Fprintf(w, "Error: %s\n", msg)
	}
}

func renderFiles(w io.Writer, files []models.File) error {
	table := tablewriter.NewWriter(w)
	table.Header("Name", "Kind", "Size", "Created At")
	for _, f := range files {
		table.Append(f.Name, f.Kind, fmt.Sprintf("%d", f.Properties.Size), formatTime(f.CreatedDateTime))
	}
	return table.Render()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
