package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"

	"github.com/rs/zerolog"

	"stencil/internal/domain"
	"stencil/internal/infra"
	"stencil/internal/nanoid"
	"stencil/internal/render"
	"stencil/internal/storage"
)

// SavedFile describes a locally saved download.
type SavedFile struct {
	Name     string
	Path     string
	Strategy string
	Size     int
	// Note carries the manual-save prompt when only the link strategy
	// succeeded.
	Note string
}

// Options configures the download orchestrator.
type Options struct {
	APIBaseURL string
	HTTPClient *http.Client
	Store      *storage.FileStore
	Renderer   *render.Renderer
	Logger     *infra.Logger
	// OnFinalize restores the trigger control; it runs exactly once per
	// Download call, whatever the outcome.
	OnFinalize func()
	Now        func() time.Time
}

// Orchestrator retrieves a possibly cross-origin result URL as a locally
// saved file, trying a chain of strategies in order and stopping at the
// first success.
type Orchestrator struct {
	apiBase    string
	httpClient *http.Client
	store      *storage.FileStore
	renderer   *render.Renderer
	logger     *infra.Logger
	onFinalize func()
	now        func() time.Time
}

type strategy struct {
	name    string
	attempt func(ctx context.Context, rawURL string) (*SavedFile, error)
}

// New constructs an orchestrator. The store is required; the renderer is
// optional and only gates the re-encode strategy.
func New(opts Options) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, errors.New("download: file store is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 45 * time.Second}
	}
	apiBase := strings.TrimRight(opts.APIBaseURL, "/")
	if apiBase == "" {
		apiBase = "https://api.chromastudio.ai"
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Orchestrator{
		apiBase:    apiBase,
		httpClient: httpClient,
		store:      opts.Store,
		renderer:   opts.Renderer,
		logger:     logger,
		onFinalize: opts.OnFinalize,
		now:        now,
	}, nil
}

// Download runs the strategy chain for the given result URL. Intermediate
// failures are logged and swallowed; only total exhaustion surfaces as an
// error.
func (o *Orchestrator) Download(ctx context.Context, rawURL string) (*SavedFile, error) {
	defer func() {
		if o.onFinalize != nil {
			o.onFinalize()
		}
	}()
	if strings.TrimSpace(rawURL) == "" {
		return nil, errors.New("download: url is required")
	}
	for _, s := range o.strategies() {
		saved, err := s.attempt(ctx, rawURL)
		if err == nil {
			o.logger.Info().
				Str("strategy", s.name).
				Str("file", saved.Path).
				Msg("download: saved")
			saved.Strategy = s.name
			return saved, nil
		}
		o.logger.Warn().Str("strategy", s.name).Err(err).Msg("download: strategy failed")
	}
	return nil, &domain.DownloadExhaustedError{URL: rawURL}
}

func (o *Orchestrator) strategies() []strategy {
	return []strategy{
		{name: "proxy", attempt: o.proxyFetch},
		{name: "direct", attempt: o.directFetch},
		{name: "reencode", attempt: o.reencode},
		{name: "link", attempt: o.linkFile},
	}
}

// proxyFetch relays the resource through the server-side download proxy,
// which is same-origin from the caller's perspective.
func (o *Orchestrator) proxyFetch(ctx context.Context, rawURL string) (*SavedFile, error) {
	proxyURL := o.apiBase + "/download-proxy?url=" + url.QueryEscape(rawURL)
	data, contentType, err := o.fetch(ctx, proxyURL)
	if err != nil {
		return nil, err
	}
	return o.save(ctx, data, extensionFor(rawURL, contentType))
}

// directFetch requests the target URL itself with a cache-busting parameter.
func (o *Orchestrator) directFetch(ctx context.Context, rawURL string) (*SavedFile, error) {
	data, contentType, err := o.fetch(ctx, withParam(rawURL, "t", o.nowMillis()))
	if err != nil {
		return nil, err
	}
	return o.save(ctx, data, extensionFor(rawURL, contentType))
}

// reencode refetches the displayed image with a distinguishing query
// parameter, decodes it, and exports a fresh PNG. Only applicable while the
// renderer shows a loaded image.
func (o *Orchestrator) reencode(ctx context.Context, rawURL string) (*SavedFile, error) {
	if o.renderer == nil || !o.renderer.ShowingImage() {
		return nil, errors.New("no image element to re-encode")
	}
	data, _, err := o.fetch(ctx, withParam(rawURL, "crossorigin", o.nowMillis()))
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, errors.New("decoded image has no dimensions")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return o.save(ctx, buf.Bytes(), "png")
}

// linkFile is the last resort: it writes a shortcut file holding the raw
// URL so the user can open and save the resource manually.
func (o *Orchestrator) linkFile(ctx context.Context, rawURL string) (*SavedFile, error) {
	name := "stencil_" + nanoid.New(8) + ".url"
	key, err := o.store.WriteText(ctx, name, "[InternetShortcut]\nURL="+rawURL+"\n")
	if err != nil {
		return nil, err
	}
	path, err := o.store.Path(key)
	if err != nil {
		return nil, err
	}
	return &SavedFile{
		Name: name,
		Path: path,
		Note: "If the download did not start, open the saved link and save the media manually.",
	}, nil
}

func (o *Orchestrator) fetch(ctx context.Context, fetchURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, "", fmt.Errorf("fetch status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (o *Orchestrator) save(ctx context.Context, data []byte, ext string) (*SavedFile, error) {
	name := "stencil_" + nanoid.New(8) + "." + ext
	key, err := o.store.Write(ctx, name, data)
	if err != nil {
		return nil, err
	}
	path, err := o.store.Path(key)
	if err != nil {
		return nil, err
	}
	return &SavedFile{Name: name, Path: path, Size: len(data)}, nil
}

func (o *Orchestrator) nowMillis() string {
	return strconv.FormatInt(o.now().UnixMilli(), 10)
}

var extPattern = regexp.MustCompile(`(?i)\.(jpe?g|png|webp|mp4|webm)`)

// extensionFor infers a save extension from the Content-Type header first,
// then from the URL, defaulting to png.
func extensionFor(rawURL, contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "jpeg"), strings.Contains(ct, "jpg"):
		return "jpg"
	case strings.Contains(ct, "png"):
		return "png"
	case strings.Contains(ct, "mp4"):
		return "mp4"
	}
	if m := extPattern.FindStringSubmatch(rawURL); m != nil {
		ext := strings.ToLower(m[1])
		if ext == "jpeg" {
			ext = "jpg"
		}
		return ext
	}
	return "png"
}

func withParam(rawURL, key, value string) string {
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + key + "=" + value
}
