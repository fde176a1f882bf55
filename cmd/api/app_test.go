package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/z-wentao/speechflow/pkg/intent"
	"github.com/z-wentao/speechflow/pkg/models"
	"github.com/z-wentao/speechflow/pkg/queue"
	"github.com/z-wentao/speechflow/pkg/storage"
	"github.com/z-wentao/speechflow/pkg/summary"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSummarizer struct {
	result *summary.Summary
	err    error
}

func (f *fakeSummarizer) Summarize(context.Context, string, []models.Segment) (*summary.Summary, error) {
	return f.result, f.err
}

type fakeResolver struct{}

func (fakeResolver) Resolve(_ context.Context, query string) (*intent.Prediction, error) {
	return &intent.Prediction{
		Query:            query,
		TopScoringIntent: &intent.Intent{Intent: "Weather.GetForecast", Score: 0.92},
	}, nil
}

type testApp struct {
	app   *App
	queue *queue.MemoryQueue
	store *storage.JobStore
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	ta := &testApp{queue: queue.NewMemoryQueue(4), store: storage.NewJobStore()}
	ta.app = &App{
		queue:   ta.queue,
		store:   ta.store,
		locale:  "en-US",
		display: "Simple transcription",
		log:     logrus.NewEntry(logrus.New()),
	}
	return ta
}

func (ta *testApp) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader([]byte(body)))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ta.app.setupRouter().ServeHTTP(rec, req)
	return rec
}

func (ta *testApp) seedSucceeded(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, ta.store.Save(context.Background(), &models.TranscriptionJob{
		JobID:  id,
		Status: models.StatusSucceeded,
		Result: "Good morning everyone.",
		Segments: []models.Segment{
			{Index: 1, Speaker: 1, Start: 0.5, End: 2.25, Text: "Good morning everyone."},
		},
		CreatedAt: time.Now(),
	}))
}

func TestPing(t *testing.T) {
	ta := newTestApp(t)
	rec := ta.do(t, http.MethodPost, "/api/transcriptions", `{"content_urls":["https://example.com/a.wav"]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = ta.do(t, http.MethodGet, "/api/ping", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Message string      `json:"message"`
		Queue   queue.Stats `json:"queue"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pong", resp.Message)
	assert.Equal(t, 1, resp.Queue.Messages)
}

func TestCreateTranscription(t *testing.T) {
	ta := newTestApp(t)
	rec := ta.do(t, http.MethodPost, "/api/transcriptions", `{"content_urls":["https://example.com/a.wav"]}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Pending", resp.Status)

	job, err := ta.store.Get(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, "en-US", job.Locale)
	assert.Equal(t, "Simple transcription", job.DisplayName)
	assert.Equal(t, 1, ta.queue.Len())
}

func TestCreateTranscriptionValidation(t *testing.T) {
	ta := newTestApp(t)
	for _, body := range []string{
		`{}`,
		`{"content_urls":[]}`,
		`{"content_urls":["not a url"]}`,
		`{"content_urls":["ftp://example.com/a.wav"]}`,
	} {
		rec := ta.do(t, http.MethodPost, "/api/transcriptions", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Equal(t, 0, ta.queue.Len())
}

func TestCreateTranscriptionQueueFull(t *testing.T) {
	ta := newTestApp(t)
	ta.queue = queue.NewMemoryQueue(0)
	ta.app.queue = ta.queue

	rec := ta.do(t, http.MethodPost, "/api/transcriptions", `{"content_urls":["https://example.com/a.wav"]}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	jobs, err := ta.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs, "rejected jobs are not kept")
}

func TestGetAndListTranscriptions(t *testing.T) {
	ta := newTestApp(t)
	ta.seedSucceeded(t, "job-1")

	rec := ta.do(t, http.MethodGet, "/api/transcriptions/job-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"Succeeded"`)

	rec = ta.do(t, http.MethodGet, "/api/transcriptions/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ta.do(t, http.MethodGet, "/api/transcriptions?all=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)
}

func TestSubtitles(t *testing.T) {
	ta := newTestApp(t)
	ta.seedSucceeded(t, "job-1")

	rec := ta.do(t, http.MethodGet, "/api/transcriptions/job-1/subtitles", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1\n00:00:00,500 --> 00:00:02,250\n[Speaker 1] Good morning everyone.\n\n", rec.Body.String())

	rec = ta.do(t, http.MethodGet, "/api/transcriptions/job-1/subtitles?format=vtt", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "WEBVTT\n\n"))
	assert.Contains(t, rec.Body.String(), "<v Speaker 1>Good morning everyone.")

	rec = ta.do(t, http.MethodGet, "/api/transcriptions/job-1/subtitles?format=txt", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.NoError(t, ta.store.Save(context.Background(), &models.TranscriptionJob{JobID: "running", Status: models.StatusRunning}))
	rec = ta.do(t, http.MethodGet, "/api/transcriptions/running/subtitles", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSummary(t *testing.T) {
	ta := newTestApp(t)
	ta.seedSucceeded(t, "job-1")

	rec := ta.do(t, http.MethodPost, "/api/transcriptions/job-1/summary", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	ta.app.summarizer = &fakeSummarizer{result: &summary.Summary{Summary: "A greeting."}}
	rec = ta.do(t, http.MethodPost, "/api/transcriptions/job-1/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "A greeting.")

	job, err := ta.store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "A greeting.", job.Summary)

	ta.app.summarizer = &fakeSummarizer{err: errors.New("rate limited")}
	rec = ta.do(t, http.MethodPost, "/api/transcriptions/job-1/summary", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestIntent(t *testing.T) {
	ta := newTestApp(t)

	rec := ta.do(t, http.MethodPost, "/api/intent", `{"query":"what's the weather like"}`)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	ta.app.intents = fakeResolver{}
	rec = ta.do(t, http.MethodPost, "/api/intent", `{"query":"what's the weather like"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Weather.GetForecast")

	rec = ta.do(t, http.MethodPost, "/api/intent", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
