package batch

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/z-wentao/speechflow/pkg/models"
)

// DefaultPollInterval matches the fixed five second wait between status checks.
const DefaultPollInterval = 5 * time.Second

// Client drives batch transcription jobs: submit, poll until terminal, then
// walk the paginated result files.
type Client struct {
	b   Backend
	log *logrus.Entry
}

// NewClient 创建批量转录客户端
func NewClient(backend Backend, log *logrus.Entry) *Client {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Client{
		b:   backend,
		log: log.WithField("component", "batch"),
	}
}

// ExtractJobID returns the final path segment of a job resource URI.
func ExtractJobID(location string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(location))
	if err != nil {
		return "", fmt.Errorf("invalid job location %q: %w", location, err)
	}

	id := path.Base(strings.TrimRight(u.Path, "/"))
	if id == "" || id == "." || id == "/" {
		return "", fmt.Errorf("job location %q has no id segment", location)
	}
	return id, nil
}

// Submit sends a job definition and returns the id the service assigned.
func (c *Client) Submit(ctx context.Context, definition *models.Transcription) (string, error) {
	var created models.Transcription
	header, err := c.b.Call(ctx, http.MethodPost, "transcriptions", definition, &created)
	if err != nil {
		return "", &SubmissionError{Err: err}
	}

	var jobID string
	if location := header.Get("Location"); location != "" {
		jobID, err = ExtractJobID(location)
		if err != nil {
			return "", &SubmissionError{Err: err}
		}
	} else {
		jobID = created.ID()
	}
	if jobID == "" {
		return "", &SubmissionError{Err: errors.New("response carries neither a location header nor a self link")}
	}

	// Include this id when asking for support.
	c.log.WithField("job_id", jobID).Info("created new transcription")
	return jobID, nil
}

// Poll fetches the current job status once.
func (c *Client) Poll(ctx context.Context, jobID string) (*models.Transcription, error) {
	var job models.Transcription
	if _, err := c.b.Call(ctx, http.MethodGet, "transcriptions/"+url.PathEscape(jobID), nil, &job); err != nil {
		return nil, &PollError{JobID: jobID, Err: err}
	}
	if job.Status == "" {
		return nil, &PollError{JobID: jobID, Err: errors.New("status response carries no status")}
	}
	return &job, nil
}

// AwaitCompletion polls every interval until the job is Succeeded or Failed
// and returns the terminal job. A failed job is a result, not an error. ctx
// bounds the wait; when it ends first the job is nil. The last status seen is
// available to AwaitCompletionFunc's observer.
func (c *Client) AwaitCompletion(ctx context.Context, jobID string, interval time.Duration) (*models.Transcription, error) {
	return c.AwaitCompletionFunc(ctx, jobID, interval, nil)
}

// AwaitCompletionFunc is AwaitCompletion with an observer called after every poll.
func (c *Client) AwaitCompletionFunc(
	ctx context.Context,
	jobID string,
	interval time.Duration,
	observe func(*models.Transcription),
) (*models.Transcription, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	log := c.log.WithField("job_id", jobID)

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for polls := 1; ; polls++ {
		job, err := c.Poll(ctx, jobID)
		if err != nil {
			return nil, err
		}
		log.WithField("poll", polls).Infof("transcription status: %s", job.Status)
		if observe != nil {
			observe(job)
		}

		if job.Status.IsTerminal() {
			if job.Status == models.StatusFailed {
				log.Warnf("transcription failed: %s", job.ErrorMessage())
			}
			return job, nil
		}

		timer.Reset(interval)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for transcription %s: %w", jobID, ctx.Err())
		case <-timer.C:
		}
	}
}

// ListResults lazily yields every result file of a job, following
// continuation links. Call it again to restart from the first page.
func (c *Client) ListResults(ctx context.Context, jobID string) iter.Seq2[models.File, error] {
	return Paginate[models.File](ctx, c.b, "transcriptions/"+url.PathEscape(jobID)+"/files")
}

// ListTranscriptions lazily yields every job visible to the credentials.
func (c *Client) ListTranscriptions(ctx context.Context) iter.Seq2[models.Transcription, error] {
	return Paginate[models.Transcription](ctx, c.b, "transcriptions")
}

// Delete removes a job and its results from the service.
func (c *Client) Delete(ctx context.Context, jobID string) error {
	if _, err := c.b.Call(ctx, http.MethodDelete, "transcriptions/"+url.PathEscape(jobID), nil, nil); err != nil {
		return fmt.Errorf("delete transcription %s: %w", jobID, err)
	}
	c.log.WithField("job_id", jobID).Info("deleted transcription")
	return nil
}

// Download fetches the payload of a result file.
func (c *Client) Download(ctx context.Context, file models.File) ([]byte, error) {
	if file.Links.ContentURL == "" {
		return nil, fmt.Errorf("file %q has no content url", file.Name)
	}
	data, err := c.b.Download(ctx, file.Links.ContentURL)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", file.Name, err)
	}
	return data, nil
}
