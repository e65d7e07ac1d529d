// Package extract finds the resources referenced by HTML and CSS documents.
//
// Extraction is purely lexical: references are reported exactly as written
// and are never resolved against a base URL.
package extract

import (
	"io"
	"iter"
	"mime"
	"path"
	"strings"

	"sitecloner/pkg/types"
)

// Reference is a raw resource reference found in a document.
type Reference struct {
	Kind types.Kind
	Raw  string
}

// Extract returns the references found in content, which is consumed in a
// single pass as the sequence is iterated. Media types other than HTML and
// CSS yield nothing.
func Extract(content io.Reader, mediaType string) iter.Seq[Reference] {
	kind, ok := DocumentKind(mediaType)
	if !ok {
		return func(func(Reference) bool) {}
	}
	if kind == types.KindCSS {
		return CSS(content)
	}
	return HTML(content)
}

// DocumentKind maps a Content-Type value onto the document kinds that can be
// parsed for references.
func DocumentKind(mediaType string) (types.Kind, bool) {
	mt, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(mediaType))
	}
	switch mt {
	case "text/html", "application/xhtml+xml":
		return types.KindHTML, true
	case "text/css":
		return types.KindCSS, true
	}
	return "", false
}

// KindForExtension classifies a stylesheet reference by its file extension.
func KindForExtension(raw string) types.Kind {
	p := raw
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico", ".avif", ".bmp":
		return types.KindImg
	case ".woff", ".woff2", ".ttf", ".eot", ".otf":
		return types.KindFont
	case ".css":
		return types.KindCSS
	}
	return types.KindOther
}
