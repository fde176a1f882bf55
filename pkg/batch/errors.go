package batch

import (
	"encoding/json"
	"fmt"
	"strings"
)

// APIError is a structured non-2xx response from the service.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("speech service: status=%d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("speech service: status=%d: %s", e.StatusCode, e.Message)
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	// Both {"code","message"} and {"error":{"code","message"}} shapes occur.
	var wrapped struct {
		Code    string    `json:"code"`
		Message string    `json:"message"`
		Error   *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil {
		switch {
		case wrapped.Error != nil:
			apiErr.Code, apiErr.Message = wrapped.Error.Code, wrapped.Error.Message
		default:
			apiErr.Code, apiErr.Message = wrapped.Code, wrapped.Message
		}
	}
	if apiErr.Code == "" && apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

// SubmissionError is returned when the service rejects a job definition.
// Submissions are never retried.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit transcription: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// PollError is returned when a status response is unreachable or malformed.
type PollError struct {
	JobID string
	Err   error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("poll transcription %s: %v", e.JobID, e.Err)
}

func (e *PollError) Unwrap() error { return e.Err }

// PaginationError is returned when fetching a result page fails. Items of
// earlier pages have already been delivered.
type PaginationError struct {
	Link string
	Page int
	Err  error
}

func (e *PaginationError) Error() string {
	return fmt.Sprintf("could not receive paginated data (page %d, %s): %v", e.Page, e.Link, e.Err)
}

func (e *PaginationError) Unwrap() error { return e.Err }
