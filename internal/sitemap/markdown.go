package sitemap

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// WriteMarkdown writes a Markdown summary with a per-kind pie chart.
func WriteMarkdown(w io.Writer, r *Report) error {
	md := markdown.NewMarkdown(w)

	md.H1("Sitemap for " + r.BaseDomain)
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Start", r.Start.Format(time.RFC3339)},
			{"End", r.End.Format(time.RFC3339)},
			{"Duration", r.Duration().Round(time.Millisecond).String()},
			{"Saved", strconv.Itoa(r.Total())},
			{"Failed", strconv.Itoa(r.Failed)},
			{"Skipped", strconv.Itoa(r.Skipped)},
		},
	})
	md.PlainText("")

	writeKinds(md, r)
	writeRecords(md, r)

	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Generated by sitecloner at %s*", r.End.Format(time.RFC3339))
	return md.Build()
}

func writeKinds(md *markdown.Markdown, r *Report) {
	md.H2("Resources by kind")
	md.PlainText("")

	rows := make([][]string, 0, len(r.Stats))
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Saved resources"),
		piechart.WithShowData(true),
	)
	plotted := 0
	for _, kc := range r.Counts() {
		rows = append(rows, []string{kc.Label, strconv.Itoa(kc.Count)})
		if kc.Count > 0 {
			chart.LabelAndIntValue(kc.Label, uint64(kc.Count))
			plotted++
		}
	}
	md.Table(markdown.TableSet{Header: []string{"Kind", "Count"}, Rows: rows})
	md.PlainText("")

	if plotted > 0 {
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}
}

func writeRecords(md *markdown.Markdown, r *Report) {
	md.H2("Resources")
	md.PlainText("")
	if len(r.Records) == 0 {
		md.PlainText("Nothing was saved.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(r.Records))
	for _, rec := range r.Records {
		rows = append(rows, []string{
			rec.URL,
			"[" + rec.LocalPath + "](" + rec.LocalPath + ")",
			string(rec.Kind),
			strconv.Itoa(rec.Depth),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Local path", "Kind", "Depth"},
		Rows:   rows,
	})
	md.PlainText("")
}
