package domain

// JobStatus enumerates the lifecycle states reported by the job service.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusError      JobStatus = "error"
)

// Terminal reports whether the status ends the polling loop.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusError:
		return true
	}
	return false
}

// Phase enumerates the pipeline controller states.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseUploading  Phase = "uploading"
	PhaseReady      Phase = "ready"
	PhaseSubmitting Phase = "submitting"
	PhasePolling    Phase = "polling"
	PhaseComplete   Phase = "complete"
	PhaseError      Phase = "error"
)
