package render

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"stencil/internal/domain"
)

// Mount is a snapshot of one singleton result element. A mount is created
// lazily on first use and then reused; switching media kinds hides the
// other mount instead of removing it.
type Mount struct {
	Created bool
	Visible bool
	Source  string
}

// Options configures the renderer.
type Options struct {
	// Now stamps the cache-busting parameter on image sources; injectable
	// for tests.
	Now func() time.Time
}

// Renderer owns the result area: one image mount and one video mount, of
// which at most one is visible at a time.
type Renderer struct {
	mu      sync.Mutex
	image   Mount
	video   Mount
	lastURL string
	now     func() time.Time
}

// New constructs an empty renderer.
func New(opts Options) *Renderer {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Renderer{now: now}
}

// Render classifies the url and mounts the matching media element, hiding
// the other one. Image sources get a fresh cache-busting timestamp on every
// render so a reused filename is never served stale.
func (r *Renderer) Render(rawURL string) domain.Kind {
	kind := domain.KindForURL(rawURL)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastURL = rawURL
	switch kind {
	case domain.KindVideo:
		r.image.Visible = false
		r.video.Created = true
		r.video.Visible = true
		r.video.Source = rawURL
	default:
		r.video.Visible = false
		r.image.Created = true
		r.image.Visible = true
		r.image.Source = withCacheBust(rawURL, r.now())
	}
	return kind
}

// Current returns the artifact being shown, if any.
func (r *Renderer) Current() (domain.Artifact, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.video.Visible {
		return domain.Artifact{URL: r.lastURL, Kind: domain.KindVideo}, true
	}
	if r.image.Visible {
		return domain.Artifact{URL: r.lastURL, Kind: domain.KindImage}, true
	}
	return domain.Artifact{}, false
}

// ShowingImage reports whether the image mount is the visible one. The
// download chain uses it to gate the re-encode strategy.
func (r *Renderer) ShowingImage() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.image.Visible
}

// Image returns a snapshot of the image mount.
func (r *Renderer) Image() Mount {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.image
}

// Video returns a snapshot of the video mount.
func (r *Renderer) Video() Mount {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.video
}

// HideAll hides both mounts without removing them, as when a new file
// selection clears the previous result.
func (r *Renderer) HideAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.image.Visible = false
	r.video.Visible = false
	r.lastURL = ""
}

// Reset removes both mounts entirely, restoring the initial result area.
func (r *Renderer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.image = Mount{}
	r.video = Mount{}
	r.lastURL = ""
}

func withCacheBust(rawURL string, now time.Time) string {
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + "t=" + strconv.FormatInt(now.UnixMilli(), 10)
}
