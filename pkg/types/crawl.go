package types

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Kind classifies a discovered resource.
type Kind string

const (
	KindHTML  Kind = "html"
	KindCSS   Kind = "css"
	KindJS    Kind = "js"
	KindImg   Kind = "img"
	KindFont  Kind = "font"
	KindMedia Kind = "media"
	KindLink  Kind = "link"
	KindOther Kind = "other"
)

var allKinds = []Kind{KindHTML, KindCSS, KindJS, KindImg, KindFont, KindMedia, KindLink, KindOther}

// Kinds returns every resource kind in reporting order.
func Kinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

// ParseKind maps a textual kind to its Kind value.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range allKinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown resource kind %q", s)
}

// IsDocument reports whether resources of this kind are parsed for further references.
func (k Kind) IsDocument() bool {
	return k == KindHTML || k == KindCSS
}

// Task models a work item held by the crawl frontier.
type Task struct {
	URL   string
	Kind  Kind
	Depth int
}

// SiteRecord describes a resource that was fetched and saved.
type SiteRecord struct {
	URL       string    `json:"url"`
	LocalPath string    `json:"local_path"`
	Kind      Kind      `json:"type"`
	Depth     int       `json:"depth"`
	FetchedAt time.Time `json:"timestamp"`
	Title     string    `json:"title,omitempty"`
}

// Response is the streamed result of a fetch. Callers must close Body.
type Response struct {
	URL           string
	StatusCode    int
	Header        http.Header
	ContentLength int64
	Body          io.ReadCloser
}

// ContentType returns the response Content-Type header.
func (r *Response) ContentType() string {
	if r == nil || r.Header == nil {
		return ""
	}
	return r.Header.Get("Content-Type")
}
