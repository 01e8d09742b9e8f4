package studio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stencil/internal/domain"
	"stencil/internal/infra"
)

// Mode selects which generation endpoint and request body the client uses.
type Mode string

const (
	ModeImage Mode = "image-effects"
	ModeVideo Mode = "video-effects"
)

// Options configures the generation job client.
type Options struct {
	BaseURL      string
	UserID       string
	EffectID     string
	Mode         Mode
	PollInterval time.Duration
	MaxPolls     int
	HTTPClient   *http.Client
	Logger       *infra.Logger
	// Sleep waits between polls; injectable so tests run without timers.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnProgress receives the running poll count while the job is pending.
	OnProgress func(polls int)
}

// Client submits generation jobs and polls the status endpoint until the
// job reaches a terminal state or the poll ceiling.
type Client struct {
	baseURL      string
	userID       string
	effectID     string
	mode         Mode
	pollInterval time.Duration
	maxPolls     int
	httpClient   *http.Client
	logger       *infra.Logger
	sleep        func(ctx context.Context, d time.Duration) error
	onProgress   func(polls int)
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	userID := strings.TrimSpace(opts.UserID)
	if userID == "" {
		return nil, errors.New("studio: user id is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 45 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.chromastudio.ai"
	}
	effectID := strings.TrimSpace(opts.EffectID)
	if effectID == "" {
		effectID = "stencilMaker"
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeImage
	}
	if mode != ModeImage && mode != ModeVideo {
		return nil, fmt.Errorf("studio: unsupported mode %q", mode)
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	maxPolls := opts.MaxPolls
	if maxPolls <= 0 {
		maxPolls = 60
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		baseURL:      baseURL,
		userID:       userID,
		effectID:     effectID,
		mode:         mode,
		pollInterval: pollInterval,
		maxPolls:     maxPolls,
		httpClient:   httpClient,
		logger:       logger,
		sleep:        sleep,
		onProgress:   opts.OnProgress,
	}, nil
}

type imageJobRequest struct {
	Model           string `json:"model"`
	ToolType        string `json:"toolType"`
	EffectID        string `json:"effectId"`
	ImageURL        string `json:"imageUrl"`
	UserID          string `json:"userId"`
	RemoveWatermark bool   `json:"removeWatermark"`
	IsPrivate       bool   `json:"isPrivate"`
}

// videoJobRequest wraps the source URL in a single-element list and omits
// toolType. The mode that selects it is accepted by the client but never
// chosen by the default pipeline configuration.
type videoJobRequest struct {
	ImageURL        []string `json:"imageUrl"`
	EffectID        string   `json:"effectId"`
	UserID          string   `json:"userId"`
	RemoveWatermark bool     `json:"removeWatermark"`
	Model           string   `json:"model"`
	IsPrivate       bool     `json:"isPrivate"`
}

type submitResponse struct {
	JobID string `json:"jobId"`
}

type statusResponse struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

type resultItem struct {
	MediaURL string `json:"mediaUrl"`
	Video    string `json:"video"`
	Image    string `json:"image"`
}

// artifactFields resolves the result URL from the first field present, in
// priority order.
var artifactFields = []func(resultItem) string{
	func(it resultItem) string { return it.MediaURL },
	func(it resultItem) string { return it.Video },
	func(it resultItem) string { return it.Image },
}

func (c *Client) endpoint() string {
	if c.mode == ModeVideo {
		return c.baseURL + "/video-gen"
	}
	return c.baseURL + "/image-gen"
}

// Submit posts a generation request for the uploaded source URL and returns
// the service-assigned job id.
func (c *Client) Submit(ctx context.Context, sourceURL string) (string, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return "", errors.New("studio: source url is required")
	}

	var payload any
	if c.mode == ModeVideo {
		payload = videoJobRequest{
			ImageURL:        []string{sourceURL},
			EffectID:        c.effectID,
			UserID:          c.userID,
			RemoveWatermark: true,
			Model:           string(ModeVideo),
			IsPrivate:       true,
		}
	} else {
		payload = imageJobRequest{
			Model:           string(ModeImage),
			ToolType:        string(ModeImage),
			EffectID:        c.effectID,
			ImageURL:        sourceURL,
			UserID:          c.userID,
			RemoveWatermark: true,
			IsPrivate:       true,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("studio: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("studio: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("studio: submit job: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("studio: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", &domain.SubmitError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var decoded submitResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("studio: decode response: %w", err)
	}
	if decoded.JobID == "" {
		return "", errors.New("studio: response carries no job id")
	}
	c.logger.Debug().
		Str("job_id", decoded.JobID).
		Str("source_url", sourceURL).
		Str("mode", string(c.mode)).
		Msg("studio: job submitted")
	return decoded.JobID, nil
}

// Poll issues status requests at the configured interval until the job
// completes, fails, or the ceiling is reached. Completion latency is
// bounded service-side, so a fixed interval with a hard poll cap keeps the
// total cost capped without backoff.
func (c *Client) Poll(ctx context.Context, jobID string) (*domain.Artifact, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, errors.New("studio: job id is required")
	}
	for polls := 0; polls < c.maxPolls; polls++ {
		st, err := c.status(ctx, jobID)
		if err != nil {
			return nil, err
		}
		switch domain.JobStatus(st.Status) {
		case domain.JobStatusCompleted:
			return resolveArtifact(jobID, st.Result)
		case domain.JobStatusFailed, domain.JobStatusError:
			msg := strings.TrimSpace(st.Error)
			if msg == "" {
				msg = "job processing failed"
			}
			return nil, &domain.JobFailedError{Message: msg}
		}
		if c.onProgress != nil {
			c.onProgress(polls + 1)
		}
		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return nil, err
		}
	}
	c.logger.Warn().Str("job_id", jobID).Int("polls", c.maxPolls).Msg("studio: poll ceiling reached")
	return nil, &domain.JobTimeoutError{Polls: c.maxPolls}
}

func (c *Client) status(ctx context.Context, jobID string) (*statusResponse, error) {
	endpoint := c.endpoint() + "/" + c.userID + "/" + jobID + "/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("studio: build status request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("studio: check status: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("studio: read status: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("studio: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var decoded statusResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("studio: decode status: %w", err)
	}
	return &decoded, nil
}

// resolveArtifact extracts the media URL from a result payload that may be
// either a list or a single object.
func resolveArtifact(jobID string, raw json.RawMessage) (*domain.Artifact, error) {
	item, ok := firstResultItem(raw)
	if !ok {
		return nil, &domain.ResultMissingError{JobID: jobID}
	}
	for _, field := range artifactFields {
		if u := strings.TrimSpace(field(item)); u != "" {
			return &domain.Artifact{URL: u, Kind: domain.KindForURL(u)}, nil
		}
	}
	return nil, &domain.ResultMissingError{JobID: jobID}
}

func firstResultItem(raw json.RawMessage) (resultItem, bool) {
	if len(raw) == 0 {
		return resultItem{}, false
	}
	var list []resultItem
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return resultItem{}, false
		}
		return list[0], true
	}
	var single resultItem
	if err := json.Unmarshal(raw, &single); err == nil {
		return single, true
	}
	return resultItem{}, false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
