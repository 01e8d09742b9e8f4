package domain

import (
	"net/url"
	"strings"
)

// Kind classifies a generated artifact by its media type.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Artifact is the final media produced by a completed generation job.
// Immutable once derived.
type Artifact struct {
	URL  string
	Kind Kind
}

// KindForURL classifies a result URL: video when its path (query string
// ignored) ends in .mp4 or .webm, image otherwise.
func KindForURL(rawURL string) Kind {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		p = u.Path
	} else if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	p = strings.ToLower(p)
	if strings.HasSuffix(p, ".mp4") || strings.HasSuffix(p, ".webm") {
		return KindVideo
	}
	return KindImage
}
