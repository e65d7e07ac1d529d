package sitemap

import (
	"html/template"
	"io"
	"time"

	"sitecloner/pkg/types"
)

var htmlTemplate = template.Must(template.New("sitemap").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Sitemap - {{.BaseDomain}}</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .stats { margin-bottom: 20px; }
        .url-list { list-style: none; padding: 0; }
        .url-item { margin: 10px 0; padding: 10px; border: 1px solid #ddd; }
        .url-item:hover { background-color: #f5f5f5; }
        .type-badge { display: inline-block; padding: 2px 6px; border-radius: 3px; font-size: 12px; color: white; margin-right: 10px; background-color: #6c757d; }
        .type-html { background-color: #007bff; }
        .type-css { background-color: #28a745; }
        .type-js { background-color: #ffc107; }
        .type-img { background-color: #dc3545; }
        .type-font { background-color: #6f42c1; }
        .type-media { background-color: #fd7e14; }
        .type-link { background-color: #17a2b8; }
    </style>
</head>
<body>
    <h1>Sitemap for {{.BaseDomain}}</h1>
    <div class="stats">
        <h2>Statistics</h2>
        <p>Start time: <time class="start">{{.Start}}</time></p>
        <p>End time: <time class="end">{{.End}}</time></p>
        <p>Failed: <span class="failed">{{.Failed}}</span>, skipped: <span class="skipped">{{.Skipped}}</span></p>
        <h3>Downloaded Resources:</h3>
        <ul class="kind-stats">
{{- range .Counts}}
            <li data-kind="{{.Kind}}">{{.Label}}: {{.Count}}</li>
{{- end}}
        </ul>
    </div>
    <h2>URLs</h2>
    <ul class="url-list">
{{- range .Records}}
        <li class="url-item">
            <span class="type-badge type-{{.Kind}}">{{.Kind}}</span>
            <a href="{{.LocalPath}}" target="_blank">{{.URL}}</a>
            {{- with .Title}} <em>{{.}}</em>{{end}}
            <small>(Depth: {{.Depth}})</small>
        </li>
{{- end}}
    </ul>
</body>
</html>
`))

type htmlView struct {
	BaseDomain string
	Start      string
	End        string
	Failed     int
	Skipped    int
	Counts     []KindCount
	Records    []types.SiteRecord
}

// WriteHTML writes a browsable index of the mirror. Links are relative to
// the output root, where the file is stored.
func WriteHTML(w io.Writer, r *Report) error {
	return htmlTemplate.Execute(w, htmlView{
		BaseDomain: r.BaseDomain,
		Start:      r.Start.Format(time.RFC3339),
		End:        r.End.Format(time.RFC3339),
		Failed:     r.Failed,
		Skipped:    r.Skipped,
		Counts:     r.Counts(),
		Records:    r.Records,
	})
}
