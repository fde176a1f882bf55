package models

import (
	"path"
	"strings"
	"time"
)

// JobStatus 任务状态. The remote values mirror the batch transcription API;
// StatusPending only exists locally, before a job has been submitted.
type JobStatus string

const (
	StatusPending    JobStatus = "Pending"
	StatusNotStarted JobStatus = "NotStarted"
	StatusRunning    JobStatus = "Running"
	StatusSucceeded  JobStatus = "Succeeded"
	StatusFailed     JobStatus = "Failed"
)

// IsTerminal reports whether no further transition can leave the status.
func (s JobStatus) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// EntityReference points at another service resource, e.g. a custom model.
type EntityReference struct {
	Self string `json:"self"`
}

// EntityError is the error detail the service attaches to a failed job.
type EntityError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// SpeakerCount bounds the number of speakers diarization may detect.
type SpeakerCount struct {
	MinCount int `json:"minCount"`
	MaxCount int `json:"maxCount"`
}

// DiarizationProperties tunes speaker separation.
type DiarizationProperties struct {
	Speakers SpeakerCount `json:"speakers"`
}

// TranscriptionProperties 任务属性
type TranscriptionProperties struct {
	DiarizationEnabled         bool                   `json:"diarizationEnabled,omitempty"`
	WordLevelTimestampsEnabled bool                   `json:"wordLevelTimestampsEnabled,omitempty"`
	PunctuationMode            string                 `json:"punctuationMode,omitempty"`
	ProfanityFilterMode        string                 `json:"profanityFilterMode,omitempty"`
	DestinationContainerURL    string                 `json:"destinationContainerUrl,omitempty"`
	TimeToLive                 string                 `json:"timeToLive,omitempty"`
	Channels                   []int                  `json:"channels,omitempty"`
	Diarization                *DiarizationProperties `json:"diarization,omitempty"`

	// Set by the service.
	Duration string       `json:"duration,omitempty"`
	Error    *EntityError `json:"error,omitempty"`
}

// TranscriptionLinks holds the resource links returned with a job.
type TranscriptionLinks struct {
	Files string `json:"files,omitempty"`
}

// Transcription is a batch transcription job as the service reports it. The
// same type is used as the submission definition.
type Transcription struct {
	Self                string                   `json:"self,omitempty"`
	DisplayName         string                   `json:"displayName"`
	Description         string                   `json:"description,omitempty"`
	Locale              string                   `json:"locale"`
	ContentURLs         []string                 `json:"contentUrls,omitempty"`
	ContentContainerURL string                   `json:"contentContainerUrl,omitempty"`
	Model               *EntityReference         `json:"model,omitempty"`
	Properties          *TranscriptionProperties `json:"properties,omitempty"`
	Status              JobStatus                `json:"status,omitempty"`
	CreatedDateTime     *time.Time               `json:"createdDateTime,omitempty"`
	LastActionDateTime  *time.Time               `json:"lastActionDateTime,omitempty"`
	Links               *TranscriptionLinks      `json:"links,omitempty"`
}

// ID returns the job identifier, the last path segment of Self.
func (t *Transcription) ID() string {
	if t == nil || t.Self == "" {
		return ""
	}
	return path.Base(strings.TrimRight(t.Self, "/"))
}

// ErrorMessage returns the failure message reported under
// properties.error.message, if any.
func (t *Transcription) ErrorMessage() string {
	if t == nil || t.Properties == nil || t.Properties.Error == nil {
		return ""
	}
	return t.Properties.Error.Message
}
