package transcriber

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/z-wentao/speechflow/pkg/batch"
	"github.com/z-wentao/speechflow/pkg/models"
)

// ErrTranscriptionFailed is wrapped by Transcribe when the remote job ends Failed.
var ErrTranscriptionFailed = errors.New("transcription failed")

// TranscriptionEngine runs the batch pipeline end to end: submit, wait for
// a terminal status, then download and merge the transcription files.
type TranscriptionEngine struct {
	client              *batch.Client
	pollInterval        time.Duration
	pollTimeout         time.Duration
	downloadConcurrency int
	outputDir           string
	log                 *logrus.Entry
}

// EngineOptions 引擎参数
type EngineOptions struct {
	PollInterval        time.Duration
	PollTimeout         time.Duration // 0 表示只受调用方 context 限制
	DownloadConcurrency int
	OutputDir           string // 字幕输出目录，为空则不生成字幕
}

// NewTranscriptionEngine 创建转换引擎
func NewTranscriptionEngine(client *batch.Client, opts EngineOptions, log *logrus.Entry) *TranscriptionEngine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = batch.DefaultPollInterval
	}
	if opts.DownloadConcurrency <= 0 {
		opts.DownloadConcurrency = 3
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	return &TranscriptionEngine{
		client:              client,
		pollInterval:        opts.PollInterval,
		pollTimeout:         opts.PollTimeout,
		downloadConcurrency: opts.DownloadConcurrency,
		outputDir:           opts.OutputDir,
		log:                 log.WithField("component", "engine"),
	}
}

// Request describes the audio to transcribe.
type Request struct {
	DisplayName         string
	Description         string
	Locale              string
	ContentURLs         []string
	ContentContainerURL string
	Properties          *models.TranscriptionProperties
}

// Definition converts the request into the service's job definition.
func (r Request) Definition() *models.Transcription {
	return &models.Transcription{
		DisplayName:         r.DisplayName,
		Description:         r.Description,
		Locale:              r.Locale,
		ContentURLs:         r.ContentURLs,
		ContentContainerURL: r.ContentContainerURL,
		Properties:          r.Properties,
	}
}

// Progress is reported as the job moves through its lifecycle.
type Progress struct {
	RemoteID string
	Status   models.JobStatus
	Percent  int
}

// FileResult 单个音频文件的转录结果
type FileResult struct {
	Name         string
	Source       string
	Text         string
	Segments     []models.Segment
	Duration     float64
	SubtitlePath string
	VTTPath      string
}

// TranscriptionResult 转录结果
type TranscriptionResult struct {
	RemoteID string
	Text     string
	Segments []models.Segment
	Duration float64
	Files    []FileResult
}

// SubtitlePaths returns the SRT and VTT paths of the first file, if any.
func (r *TranscriptionResult) SubtitlePaths() (string, string) {
	for _, f := range r.Files {
		if f.SubtitlePath != "" {
			return f.SubtitlePath, f.VTTPath
		}
	}
	return "", ""
}

// Transcribe submits req and blocks until its results are downloaded.
// 1. Submit the job definition
// 2. Poll at a fixed interval, bounded by ctx and the poll timeout
// 3. List result files only after the job succeeded
// 4. Download and parse transcription files concurrently
func (te *TranscriptionEngine) Transcribe(
	ctx context.Context,
	req Request,
	progressCallback func(Progress),
) (*TranscriptionResult, error) {
	report := func(p Progress) {
		if progressCallback != nil {
			progressCallback(p)
		}
	}

	remoteID, err := te.client.Submit(ctx, req.Definition())
	if err != nil {
		return nil, err
	}
	report(Progress{RemoteID: remoteID, Status: models.StatusNotStarted, Percent: 10})

	return te.Resume(ctx, remoteID, progressCallback)
}

// Resume waits for an already submitted job and collects its results. It is
// used when a worker picks up a job whose remote id is already known.
func (te *TranscriptionEngine) Resume(
	ctx context.Context,
	remoteID string,
	progressCallback func(Progress),
) (*TranscriptionResult, error) {
	report := func(p Progress) {
		if progressCallback != nil {
			progressCallback(p)
		}
	}
	log := te.log.WithField("job_id", remoteID)

	waitCtx := ctx
	if te.pollTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, te.pollTimeout)
		defer cancel()
	}

	job, err := te.client.AwaitCompletionFunc(waitCtx, remoteID, te.pollInterval, func(j *models.Transcription) {
		percent := 10
		if j.Status == models.StatusRunning {
			percent = 50
		}
		if !j.Status.IsTerminal() {
			report(Progress{RemoteID: remoteID, Status: j.Status, Percent: percent})
		}
	})
	if err != nil {
		return nil, err
	}
	if job.Status == models.StatusFailed {
		report(Progress{RemoteID: remoteID, Status: models.StatusFailed, Percent: 100})
		return &TranscriptionResult{RemoteID: remoteID}, fmt.Errorf("%w: %s", ErrTranscriptionFailed, job.ErrorMessage())
	}

	var files []models.File
	for file, err := range te.client.ListResults(ctx, remoteID) {
		if err != nil {
			return nil, err
		}
		if file.Kind != models.FileKindTranscription {
			continue
		}
		files = append(files, file)
	}
	log.Infof("✓ 转录完成，共 %d 个结果文件", len(files))
	report(Progress{RemoteID: remoteID, Status: models.StatusRunning, Percent: 80})

	fileResults, err := te.downloadAll(ctx, files)
	if err != nil {
		return nil, err
	}

	result := &TranscriptionResult{RemoteID: remoteID, Files: fileResults}
	texts := make([]string, 0, len(fileResults))
	for i := range fileResults {
		fr := &fileResults[i]
		if te.outputDir != "" {
			if err := te.writeSubtitles(remoteID, i, len(fileResults), fr); err != nil {
				// 不影响主流程
				log.WithError(err).Warn("⚠️ 生成字幕文件失败")
			}
		}
		texts = append(texts, fr.Text)
		result.Segments = append(result.Segments, fr.Segments...)
		result.Duration += fr.Duration
	}
	result.Text = strings.Join(texts, "\n\n")

	report(Progress{RemoteID: remoteID, Status: models.StatusSucceeded, Percent: 100})
	return result, nil
}

type downloadResult struct {
	index  int
	result FileResult
	err    error
}

// downloadAll fetches and parses files with at most downloadConcurrency
// requests in flight. Results keep the listing order.
func (te *TranscriptionEngine) downloadAll(ctx context.Context, files []models.File) ([]FileResult, error) {
	taskChan := make(chan int, len(files))
	resultChan := make(chan downloadResult, len(files))

	var wg sync.WaitGroup
	for i := 0; i < te.downloadConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range taskChan {
				if ctx.Err() != nil {
					resultChan <- downloadResult{index: idx, err: ctx.Err()}
					continue
				}
				fr, err := te.fetchFile(ctx, files[idx])
				resultChan <- downloadResult{index: idx, result: fr, err: err}
			}
		}()
	}

	for i := range files {
		taskChan <- i
	}
	close(taskChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	results := make([]FileResult, len(files))
	var errs []error
	for r := range resultChan {
		if r.err != nil {
			errs = append(errs, fmt.Errorf("file %s: %w", files[r.index].Name, r.err))
			continue
		}
		results[r.index] = r.result
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return results, nil
}

func (te *TranscriptionEngine) fetchFile(ctx context.Context, file models.File) (FileResult, error) {
	data, err := te.client.Download(ctx, file)
	if err != nil {
		return FileResult{}, err
	}
	transcript, err := ParseTranscript(data)
	if err != nil {
		return FileResult{}, err
	}

	return FileResult{
		Name:     file.Name,
		Source:   transcript.Source,
		Text:     transcript.Text(),
		Segments: transcript.Segments(),
		Duration: transcript.Duration(),
	}, nil
}

func (te *TranscriptionEngine) writeSubtitles(remoteID string, index, total int, fr *FileResult) error {
	base := filepath.Join(te.outputDir, remoteID)
	if total > 1 {
		base = fmt.Sprintf("%s_%d", base, index)
	}
	srtPath, vttPath := base+".srt", base+".vtt"

	if err := GenerateSRT(fr.Segments, srtPath); err != nil {
		return fmt.Errorf("生成 SRT 失败: %w", err)
	}
	if err := GenerateVTT(fr.Segments, vttPath); err != nil {
		return fmt.Errorf("生成 VTT 失败: %w", err)
	}

	fr.SubtitlePath, fr.VTTPath = srtPath, vttPath
	return nil
}
