package models

import "time"

// Kinds of files a finished transcription exposes.
const (
	FileKindTranscription       = "Transcription"
	FileKindTranscriptionReport = "TranscriptionReport"
)

// Page is one page of a paginated collection. NextLink is the continuation
// token; an empty value ends the collection.
type Page[T any] struct {
	Values   []T    `json:"values"`
	NextLink string `json:"@nextLink,omitempty"`
}

// FileProperties 文件属性
type FileProperties struct {
	Size int64 `json:"size"`
}

// FileLinks 文件链接
type FileLinks struct {
	ContentURL string `json:"contentUrl"`
}

// File is one result item of a transcription job.
type File struct {
	Self            string         `json:"self"`
	Name            string         `json:"name"`
	Kind            string         `json:"kind"`
	Properties      FileProperties `json:"properties"`
	CreatedDateTime *time.Time     `json:"createdDateTime,omitempty"`
	Links           FileLinks      `json:"links"`
}
