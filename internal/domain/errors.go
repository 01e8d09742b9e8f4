package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoUpload is returned when generation is requested before any
	// upload has completed.
	ErrNoUpload = errors.New("no uploaded image")
	// ErrNoResult is returned when a download is requested before a job
	// has produced an artifact.
	ErrNoResult = errors.New("no generated result")
	// ErrGenerateInFlight rejects a second generate while one is running.
	ErrGenerateInFlight = errors.New("generation already in flight")
	// ErrSelectionSuperseded marks an upload whose result arrived after a
	// newer file selection and was therefore discarded.
	ErrSelectionSuperseded = errors.New("file selection superseded")
)

// Upload stages reported by UploadError.
const (
	UploadStageSign     = "sign"
	UploadStageTransfer = "transfer"
)

// UploadError reports a failure while obtaining the signed write URL or
// transferring the file bytes to it.
type UploadError struct {
	Stage string
	Err   error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Stage, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// SubmitError reports a generation request rejected by the job service.
type SubmitError struct {
	StatusCode int
	Body       string
}

func (e *SubmitError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("submit job: status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("submit job: status %d", e.StatusCode)
}

// JobFailedError carries the failure message reported by the job service.
type JobFailedError struct {
	Message string
}

func (e *JobFailedError) Error() string { return e.Message }

// JobTimeoutError is returned when the poll ceiling is reached without the
// job ever becoming terminal.
type JobTimeoutError struct {
	Polls int
}

func (e *JobTimeoutError) Error() string {
	return fmt.Sprintf("job timed out after %d polls", e.Polls)
}

// ResultMissingError marks a completed job whose result payload carries no
// recognizable media field.
type ResultMissingError struct {
	JobID string
}

func (e *ResultMissingError) Error() string {
	return fmt.Sprintf("job %s: no media url in result", e.JobID)
}

// DownloadExhaustedError is returned when every download strategy,
// including the last-resort link file, has failed.
type DownloadExhaustedError struct {
	URL string
}

func (e *DownloadExhaustedError) Error() string {
	return fmt.Sprintf("all download strategies failed for %s", e.URL)
}
