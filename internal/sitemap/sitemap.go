// Package sitemap writes the reports that describe a finished mirror.
package sitemap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"sitecloner/internal/config"
	"sitecloner/internal/fsutil"
	"sitecloner/pkg/types"
)

// File names written into the output root.
const (
	JSONFile     = "sitemap.json"
	HTMLFile     = "sitemap.html"
	MarkdownFile = "sitemap.md"
)

// Report is the summary of one crawl.
type Report struct {
	BaseDomain string
	Start      time.Time
	End        time.Time
	Stats      map[types.Kind]int
	Records    []types.SiteRecord
	Failed     int
	Skipped    int
}

// KindCount pairs a kind with its count in reporting order.
type KindCount struct {
	Kind  types.Kind
	Label string
	Count int
}

var titleCaser = cases.Title(language.English)

// Counts lists every kind in reporting order, including zero counts.
func (r *Report) Counts() []KindCount {
	out := make([]KindCount, 0, len(types.Kinds()))
	for _, k := range types.Kinds() {
		out = append(out, KindCount{Kind: k, Label: Label(k), Count: r.Stats[k]})
	}
	return out
}

// Total is the number of saved resources.
func (r *Report) Total() int {
	total := 0
	for _, n := range r.Stats {
		total += n
	}
	return total
}

// Duration is the wall-clock length of the crawl.
func (r *Report) Duration() time.Duration {
	if r.End.Before(r.Start) {
		return 0
	}
	return r.End.Sub(r.Start)
}

// Label is the display name of a kind.
func Label(k types.Kind) string {
	switch k {
	case types.KindHTML, types.KindCSS, types.KindJS:
		return string(k)
	}
	return titleCaser.String(string(k))
}

type jsonReport struct {
	URLs      []types.SiteRecord `json:"urls"`
	StartTime string             `json:"start_time"`
	EndTime   string             `json:"end_time"`
	Stats     map[string]int     `json:"stats"`
	Failed    int                `json:"failed"`
	Skipped   int                `json:"skipped"`
}

// WriteJSON writes the machine-readable report.
func WriteJSON(w io.Writer, r *Report) error {
	stats := make(map[string]int, len(types.Kinds()))
	for _, k := range types.Kinds() {
		stats[string(k)] = r.Stats[k]
	}
	urls := r.Records
	if urls == nil {
		urls = []types.SiteRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonReport{
		URLs:      urls,
		StartTime: r.Start.Format(time.RFC3339),
		EndTime:   r.End.Format(time.RFC3339),
		Stats:     stats,
		Failed:    r.Failed,
		Skipped:   r.Skipped,
	})
}

// Write renders every report selected in sel into dir and returns the
// paths written.
func Write(dir string, r *Report, sel config.SitemapConfig) ([]string, error) {
	writers := []struct {
		enabled bool
		name    string
		write   func(io.Writer, *Report) error
	}{
		{sel.JSON, JSONFile, WriteJSON},
		{sel.HTML, HTMLFile, WriteHTML},
		{sel.Markdown, MarkdownFile, WriteMarkdown},
	}

	var written []string
	for _, wr := range writers {
		if !wr.enabled {
			continue
		}
		var buf bytes.Buffer
		if err := wr.write(&buf, r); err != nil {
			return written, fmt.Errorf("render %s: %w", wr.name, err)
		}
		path := filepath.Join(dir, wr.name)
		if err := fsutil.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", wr.name, err)
		}
		written = append(written, path)
	}
	return written, nil
}
