package models

import "time"

// Segment 带说话人的转录片段
type Segment struct {
	Index      int     `json:"index"`
	Speaker    int     `json:"speaker,omitempty"`
	Channel    int     `json:"channel"`
	Start      float64 `json:"start"` // 秒
	End        float64 `json:"end"`   // 秒
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// TranscriptionJob is the locally tracked record of one batch transcription
// request, from enqueue until the remote job reaches a terminal state.
type TranscriptionJob struct {
	JobID        string    `json:"job_id"`
	RemoteID     string    `json:"remote_id"`
	DisplayName  string    `json:"display_name"`
	Locale       string    `json:"locale"`
	ContentURLs  []string  `json:"content_urls"`
	Status       JobStatus `json:"status"`
	Progress     int       `json:"progress"`
	Result       string    `json:"result"`
	Segments     []Segment `json:"segments"`
	SubtitlePath string    `json:"subtitle_path"` // SRT
	VTTPath      string    `json:"vtt_path"`
	Duration     float64   `json:"duration"`
	Error        string    `json:"error"`
	Summary      string    `json:"summary"`
	CreatedAt    time.Time `json:"created_at"`
	CompletedAt  time.Time `json:"completed_at"`

	// RabbitMQ 相关（不序列化到 JSON）
	DeliveryTag      uint64 `json:"-"`
	RabbitMQDelivery any    `json:"-"`
}
