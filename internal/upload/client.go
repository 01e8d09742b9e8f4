package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stencil/internal/domain"
	"stencil/internal/infra"
	"stencil/internal/nanoid"
)

// Options configures the object-storage upload client.
type Options struct {
	APIBaseURL string
	CDNBaseURL string
	HTTPClient *http.Client
	Logger     *infra.Logger
	Timeout    time.Duration
}

// Client pushes file bytes to object storage through the studio signing
// endpoint and derives the public read URL.
type Client struct {
	apiBase    string
	cdnBase    string
	httpClient *http.Client
	logger     *infra.Logger
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 45 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	apiBase := strings.TrimRight(opts.APIBaseURL, "/")
	if apiBase == "" {
		apiBase = "https://api.chromastudio.ai"
	}
	cdnBase := strings.TrimRight(opts.CDNBaseURL, "/")
	if cdnBase == "" {
		cdnBase = "https://contents.maxstudio.ai"
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
		apiBase:    apiBase,
		cdnBase:    cdnBase,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Upload transfers the file bytes to object storage and returns the public
// read URL. A fresh filename is generated on every call, so re-uploading the
// same file never overwrites an earlier object.
func (c *Client) Upload(ctx context.Context, data []byte, mimeType, originalName string) (string, error) {
	fileName := nanoid.New(nanoid.DefaultLength) + "." + extension(originalName)

	writeURL, err := c.signedWriteURL(ctx, fileName)
	if err != nil {
		return "", &domain.UploadError{Stage: domain.UploadStageSign, Err: err}
	}
	if err := c.transfer(ctx, writeURL, data, mimeType); err != nil {
		return "", &domain.UploadError{Stage: domain.UploadStageTransfer, Err: err}
	}

	// The storage service makes objects readable immediately after a
	// successful PUT, so no confirmation round trip is made.
	readURL := c.cdnBase + "/" + fileName
	c.logger.Debug().
		Str("file_name", fileName).
		Str("read_url", readURL).
		Int("bytes", len(data)).
		Msg("upload: object stored")
	return readURL, nil
}

func (c *Client) signedWriteURL(ctx context.Context, fileName string) (string, error) {
	endpoint := c.apiBase + "/get-emd-upload-url?fileName=" + url.QueryEscape(fileName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build sign request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request signed url: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read signed url: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("signing status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	writeURL := strings.TrimSpace(string(raw))
	if writeURL == "" {
		return "", fmt.Errorf("empty signed url")
	}
	return writeURL, nil
}

func (c *Client) transfer(ctx context.Context, writeURL string, data []byte, mimeType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, writeURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build put request: %w", err)
	}
	if mimeType != "" {
		req.Header.Set("Content-Type", mimeType)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("put status %d", resp.StatusCode)
	}
	return nil
}

// extension returns the original file's extension without the dot, falling
// back to jpg when the name carries none.
func extension(name string) string {
	ext := strings.TrimPrefix(path.Ext(name), ".")
	if ext == "" {
		return "jpg"
	}
	return ext
}
