package extract

import (
	"io"
	"iter"
	"regexp"
	"strings"

	"sitecloner/pkg/types"
)

// cssRefPattern matches url(...) in its quoted and unquoted forms and the
// string form of @import.
var cssRefPattern = regexp.MustCompile(`url\(\s*(?:'([^']*)'|"([^"]*)"|([^'"()\s]+))\s*\)|@import\s+(?:'([^']*)'|"([^"]*)")`)

// CSSMatch locates a reference value inside a stylesheet. Start and End are
// the byte offsets of the value itself, excluding quotes.
type CSSMatch struct {
	Start  int
	End    int
	Raw    string
	Quoted bool
	Import bool
}

// CSSMatches yields every reference in content in document order.
func CSSMatches(content []byte) iter.Seq[CSSMatch] {
	return func(yield func(CSSMatch) bool) {
		offset := 0
		for offset < len(content) {
			loc := cssRefPattern.FindSubmatchIndex(content[offset:])
			if loc == nil {
				return
			}
			for group := 1; group <= 5; group++ {
				s, e := loc[2*group], loc[2*group+1]
				if s < 0 {
					continue
				}
				m := CSSMatch{
					Start:  offset + s,
					End:    offset + e,
					Raw:    string(content[offset+s : offset+e]),
					Quoted: group != 3,
					Import: group >= 4,
				}
				if !yield(m) {
					return
				}
				break
			}
			offset += loc[1]
		}
	}
}

// CSS yields the references of a stylesheet read from r.
func CSS(r io.Reader) iter.Seq[Reference] {
	return func(yield func(Reference) bool) {
		content, err := io.ReadAll(r)
		if err != nil {
			return
		}
		for ref := range cssReferences(content) {
			if !yield(ref) {
				return
			}
		}
	}
}

func cssReferences(content []byte) iter.Seq[Reference] {
	return func(yield func(Reference) bool) {
		for m := range CSSMatches(content) {
			raw := strings.TrimSpace(m.Raw)
			if raw == "" {
				continue
			}
			kind := KindForExtension(raw)
			if m.Import {
				kind = types.KindCSS
			}
			if !yield(Reference{Kind: kind, Raw: raw}) {
				return
			}
		}
	}
}
