package extract

import (
	"bytes"
	"io"
	"iter"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"sitecloner/pkg/types"
)

// HTML yields the references of an HTML document read from r. The document
// is tokenized rather than parsed into a tree, so malformed markup only
// affects the tag it occurs in.
func HTML(r io.Reader) iter.Seq[Reference] {
	return func(yield func(Reference) bool) {
		z := html.NewTokenizer(r)
		inStyle := false
		for {
			tt := z.Next()
			switch tt {
			case html.ErrorToken:
				return
			case html.StartTagToken, html.SelfClosingTagToken:
				tok := z.Token()
				inStyle = tt == html.StartTagToken && tok.DataAtom == atom.Style
				for _, ref := range tagReferences(tok) {
					if !yield(ref) {
						return
					}
				}
			case html.EndTagToken:
				inStyle = false
			case html.TextToken:
				if !inStyle {
					continue
				}
				for ref := range cssReferences(bytes.Clone(z.Text())) {
					if !yield(ref) {
						return
					}
				}
			}
		}
	}
}

func tagReferences(tok html.Token) []Reference {
	var refs []Reference
	add := func(kind types.Kind, key string) {
		if v, ok := attr(tok, key); ok {
			refs = append(refs, Reference{Kind: kind, Raw: v})
		}
	}

	switch tok.DataAtom {
	case atom.Link:
		rel := relTokens(tok)
		switch {
		case rel["stylesheet"]:
			add(types.KindCSS, "href")
		case rel["icon"] || rel["apple-touch-icon"]:
			add(types.KindImg, "href")
		case rel["canonical"]:
			add(types.KindLink, "href")
		}
	case atom.Script:
		add(types.KindJS, "src")
	case atom.Img:
		add(types.KindImg, "src")
	case atom.A:
		add(types.KindLink, "href")
	case atom.Source:
		add(types.KindMedia, "src")
	case atom.Video:
		add(types.KindMedia, "src")
		add(types.KindImg, "poster")
	case atom.Audio:
		add(types.KindMedia, "src")
	}

	if style, ok := attr(tok, "style"); ok && strings.Contains(style, "url(") {
		for m := range CSSMatches([]byte(style)) {
			if raw := strings.TrimSpace(m.Raw); raw != "" {
				refs = append(refs, Reference{Kind: types.KindImg, Raw: raw})
			}
		}
	}
	return refs
}

func attr(tok html.Token, key string) (string, bool) {
	for _, a := range tok.Attr {
		if a.Namespace == "" && a.Key == key {
			v := strings.TrimSpace(a.Val)
			return v, v != ""
		}
	}
	return "", false
}

func relTokens(tok html.Token) map[string]bool {
	rel, _ := attr(tok, "rel")
	out := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(rel)) {
		out[f] = true
	}
	return out
}

// Title returns the trimmed text of the document's <title> element.
func Title(content []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
