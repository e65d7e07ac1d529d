// Package rewrite points references inside saved documents at their local
// copies.
package rewrite

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"sitecloner/internal/extract"
	"sitecloner/internal/urlmap"
)

// Rewriter rewrites references relative to one crawl's URL mapping.
type Rewriter struct {
	Mapper           urlmap.Mapper
	DownloadExternal bool
	// Allow reports whether a canonical URL is downloaded at all. URLs it
	// rejects keep their absolute form. Nil allows everything.
	Allow func(rawURL string) bool
}

// New returns a Rewriter for mapper.
func New(mapper urlmap.Mapper, downloadExternal bool) *Rewriter {
	return &Rewriter{Mapper: mapper, DownloadExternal: downloadExternal}
}

// Reference returns the replacement for ref found on pageURL. Data URIs,
// fragment-only references and non-HTTP schemes are returned unchanged.
// Out-of-scope references become absolute unless external resources are
// mirrored too, and so do URLs rejected by Allow. Everything else points
// at the local copy, keeping the fragment.
func (r *Rewriter) Reference(ref, pageURL string) string {
	raw := strings.TrimSpace(ref)
	if raw == "" || strings.HasPrefix(raw, "#") || hasPrefixFold(raw, "data:") {
		return ref
	}
	abs, err := urlmap.Resolve(raw, pageURL)
	if err != nil {
		return ref
	}
	u, err := url.Parse(abs)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ref
	}
	if !urlmap.IsInScope(abs, r.Mapper.BaseDomain) && !r.DownloadExternal {
		return abs
	}
	if r.Allow != nil {
		canonical, err := urlmap.Canonical(abs)
		if err != nil || !r.Allow(canonical) {
			return abs
		}
	}
	local, err := r.Mapper.Reference(abs)
	if err != nil {
		return abs
	}
	if u.Fragment != "" {
		local += "#" + u.EscapedFragment()
	}
	return local
}

var rewrittenAttrs = map[string]bool{
	"href":   true,
	"src":    true,
	"poster": true,
}

// HTML rewrites the references of an HTML document. Tags whose references
// do not change, and everything between tags, are copied byte for byte.
func (r *Rewriter) HTML(content []byte, pageURL string) ([]byte, error) {
	z := html.NewTokenizer(bytes.NewReader(content))
	var out bytes.Buffer
	out.Grow(len(content))
	inStyle := false

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				return out.Bytes(), nil
			}
			return nil, fmt.Errorf("tokenize html: %w", z.Err())
		}
		raw := bytes.Clone(z.Raw())

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			inStyle = tt == html.StartTagToken && tok.DataAtom == atom.Style
			if r.rewriteTag(&tok, pageURL) {
				out.WriteString(tok.String())
				continue
			}
		case html.EndTagToken:
			inStyle = false
		case html.TextToken:
			if inStyle {
				out.Write(r.CSS(raw, pageURL))
				continue
			}
		}
		out.Write(raw)
	}
}

func (r *Rewriter) rewriteTag(tok *html.Token, pageURL string) bool {
	if tok.DataAtom == atom.Base {
		return false
	}
	changed := false
	for i, a := range tok.Attr {
		if a.Namespace != "" {
			continue
		}
		key := strings.ToLower(a.Key)
		var next string
		switch {
		case rewrittenAttrs[key]:
			if strings.TrimSpace(a.Val) == "" {
				continue
			}
			next = r.Reference(a.Val, pageURL)
		case key == "style":
			if !strings.Contains(a.Val, "url(") {
				continue
			}
			next = string(r.CSS([]byte(a.Val), pageURL))
		default:
			continue
		}
		if next != a.Val {
			tok.Attr[i].Val = next
			changed = true
		}
	}
	return changed
}

// CSS rewrites every url(...) and @import reference of a stylesheet.
func (r *Rewriter) CSS(content []byte, pageURL string) []byte {
	var out bytes.Buffer
	last := 0
	for m := range extract.CSSMatches(content) {
		value := strings.TrimSpace(m.Raw)
		if value == "" {
			continue
		}
		next := r.Reference(value, pageURL)
		if next == value {
			continue
		}
		out.Write(content[last:m.Start])
		switch {
		case m.Quoted:
			quote := content[m.Start-1]
			out.WriteString(escapeQuote(next, quote))
		case strings.ContainsAny(next, " \t\n'\"()"):
			out.WriteByte('"')
			out.WriteString(escapeQuote(next, '"'))
			out.WriteByte('"')
		default:
			out.WriteString(next)
		}
		last = m.End
	}
	if last == 0 {
		return content
	}
	out.Write(content[last:])
	return out.Bytes()
}

func escapeQuote(s string, quote byte) string {
	switch quote {
	case '\'':
		return strings.ReplaceAll(s, "'", "%27")
	case '"':
		return strings.ReplaceAll(s, `"`, "%22")
	}
	return s
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
