package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"stencil/internal/domain"
	"stencil/internal/download"
	"stencil/internal/infra"
	"stencil/internal/render"
)

// Status labels published through the status observer. The observer is the
// single cross-cutting signal the UI layer consumes.
const (
	StatusUploading  = "UPLOADING..."
	StatusReady      = "READY"
	StatusSubmitting = "SUBMITTING JOB..."
	StatusQueued     = "JOB QUEUED..."
	StatusComplete   = "COMPLETE"
	StatusError      = "ERROR"
)

// StatusProcessing formats the progress label emitted on every pending poll.
func StatusProcessing(polls int) string {
	return fmt.Sprintf("PROCESSING... (%d)", polls)
}

// Uploader transfers file bytes to object storage and returns the public
// read URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, mimeType, originalName string) (string, error)
}

// JobClient submits a generation job and polls it to a terminal state.
type JobClient interface {
	Submit(ctx context.Context, sourceURL string) (string, error)
	Poll(ctx context.Context, jobID string) (*domain.Artifact, error)
}

// Downloader retrieves a result URL as a locally saved file.
type Downloader interface {
	Download(ctx context.Context, rawURL string) (*download.SavedFile, error)
}

// Options wires the controller's collaborators.
type Options struct {
	Uploader   Uploader
	Jobs       JobClient
	Renderer   *render.Renderer
	Downloader Downloader
	Logger     *infra.Logger
	// OnStatus observes the textual status signal.
	OnStatus func(status string)
	// OnAlert receives user-facing error notifications.
	OnAlert func(message string)
}

// Controller owns the pipeline state machine: it reacts to file selection
// and generate requests, holds the single uploaded-URL slot, and exposes
// the current phase. Exactly one generation job may be in flight at a time.
type Controller struct {
	uploader   Uploader
	jobs       JobClient
	renderer   *render.Renderer
	downloader Downloader
	logger     *infra.Logger
	onStatus   func(string)
	onAlert    func(string)

	selectionSeq atomic.Uint64

	mu          sync.Mutex
	phase       domain.Phase
	selection   uint64
	uploadedURL string
	resultURL   string
	generating  bool
}

// New constructs an idle controller.
func New(opts Options) *Controller {
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Controller{
		uploader:   opts.Uploader,
		jobs:       opts.Jobs,
		renderer:   opts.Renderer,
		downloader: opts.Downloader,
		logger:     logger,
		onStatus:   opts.OnStatus,
		onAlert:    opts.OnAlert,
		phase:      domain.PhaseIdle,
	}
}

// Phase returns the current pipeline phase.
func (c *Controller) Phase() domain.Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// UploadedURL returns the current uploaded source URL, empty when none.
func (c *Controller) UploadedURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uploadedURL
}

// ResultURL returns the armed download URL, empty before the first
// completed generation.
func (c *Controller) ResultURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resultURL
}

// SelectFile uploads a newly selected file and, on success, arms the
// uploaded URL for generation. Selecting during an active upload is
// allowed: each selection claims a fresh token and a stale upload
// completing afterwards is discarded rather than overwriting the newer
// URL.
func (c *Controller) SelectFile(ctx context.Context, name, mimeType string, data []byte) (string, error) {
	token := c.selectionSeq.Add(1)

	c.mu.Lock()
	c.selection = token
	c.phase = domain.PhaseUploading
	c.uploadedURL = ""
	c.resultURL = ""
	c.mu.Unlock()

	if c.renderer != nil {
		c.renderer.HideAll()
	}
	c.setStatus(StatusUploading)

	readURL, err := c.uploader.Upload(ctx, data, mimeType, name)

	c.mu.Lock()
	stale := c.selection != token
	c.mu.Unlock()
	if stale {
		c.logger.Debug().Str("name", name).Msg("pipeline: upload superseded by newer selection")
		return "", domain.ErrSelectionSuperseded
	}

	if err != nil {
		c.logger.Error().Err(err).Str("name", name).Msg("pipeline: upload failed")
		c.fail(err)
		return "", err
	}

	c.mu.Lock()
	c.uploadedURL = readURL
	c.phase = domain.PhaseReady
	c.mu.Unlock()
	c.setStatus(StatusReady)
	c.logger.Info().Str("read_url", readURL).Msg("pipeline: upload complete")
	return readURL, nil
}

// Generate submits a job for the uploaded URL and polls it to completion,
// rendering the artifact and arming the download URL. It is a guarded
// no-op without an uploaded URL and rejects concurrent invocations.
func (c *Controller) Generate(ctx context.Context) (*domain.Artifact, error) {
	c.mu.Lock()
	if c.uploadedURL == "" {
		c.mu.Unlock()
		c.alert("Please upload an image first.")
		return nil, domain.ErrNoUpload
	}
	if c.generating {
		c.mu.Unlock()
		return nil, domain.ErrGenerateInFlight
	}
	c.generating = true
	sourceURL := c.uploadedURL
	c.phase = domain.PhaseSubmitting
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.generating = false
		c.mu.Unlock()
	}()

	c.setStatus(StatusSubmitting)
	jobID, err := c.jobs.Submit(ctx, sourceURL)
	if err != nil {
		c.logger.Error().Err(err).Msg("pipeline: submit failed")
		c.fail(err)
		return nil, err
	}

	c.mu.Lock()
	c.phase = domain.PhasePolling
	c.mu.Unlock()
	c.setStatus(StatusQueued)

	artifact, err := c.jobs.Poll(ctx, jobID)
	if err != nil {
		c.logger.Error().Err(err).Str("job_id", jobID).Msg("pipeline: job did not complete")
		c.fail(err)
		return nil, err
	}

	if c.renderer != nil {
		c.renderer.Render(artifact.URL)
	}
	c.mu.Lock()
	c.resultURL = artifact.URL
	c.phase = domain.PhaseComplete
	c.mu.Unlock()
	c.setStatus(StatusComplete)
	c.logger.Info().
		Str("job_id", jobID).
		Str("result_url", artifact.URL).
		Str("kind", string(artifact.Kind)).
		Msg("pipeline: generation complete")
	return artifact, nil
}

// Download exports the armed result URL through the download chain. An
// exhausted chain surfaces as a manual-save prompt, not a hard failure.
func (c *Controller) Download(ctx context.Context) (*download.SavedFile, error) {
	c.mu.Lock()
	resultURL := c.resultURL
	c.mu.Unlock()
	if resultURL == "" {
		return nil, domain.ErrNoResult
	}
	saved, err := c.downloader.Download(ctx, resultURL)
	if err != nil {
		c.alert("If the download did not start, please save the result manually: " + resultURL)
		return nil, err
	}
	if saved.Note != "" {
		c.alert(saved.Note)
	}
	return saved, nil
}

// Reset returns the pipeline to its initial state: uploaded URL cleared,
// rendered result removed, status restored.
func (c *Controller) Reset() {
	c.selectionSeq.Add(1)
	c.mu.Lock()
	c.selection = c.selectionSeq.Load()
	c.phase = domain.PhaseIdle
	c.uploadedURL = ""
	c.resultURL = ""
	c.mu.Unlock()
	if c.renderer != nil {
		c.renderer.Reset()
	}
	c.setStatus(StatusReady)
}

// fail surfaces one user-visible notification and recovers the phase to
// the nearest valid prior state: ready when an upload survives, idle
// otherwise.
func (c *Controller) fail(err error) {
	c.setStatus(StatusError)
	c.alert(err.Error())
	c.mu.Lock()
	if c.uploadedURL != "" {
		c.phase = domain.PhaseReady
	} else {
		c.phase = domain.PhaseIdle
	}
	c.mu.Unlock()
	c.setStatus(StatusReady)
}

func (c *Controller) setStatus(status string) {
	if c.onStatus != nil {
		c.onStatus(status)
	}
}

func (c *Controller) alert(message string) {
	if c.onAlert != nil {
		c.onAlert(message)
	}
}
