package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"sitecloner/internal/crawler"
	"sitecloner/pkg/types"
)

// printSummary writes the per-kind totals of a crawl.
func printSummary(w io.Writer, res *crawler.Result, output string) {
	fmt.Fprintf(w, "Crawl finished in %s (run %s)\n", res.End.Sub(res.Start).Round(time.Millisecond), res.RunID)
	for _, kind := range types.Kinds() {
		fmt.Fprintf(w, "  %-6s %8s\n", kind, humanize.Comma(int64(res.Counts[kind])))
	}
	fmt.Fprintf(w, "Saved %s resources to %s (%s failed, %s skipped)\n",
		humanize.Comma(int64(res.Total())), output,
		humanize.Comma(int64(res.Failed)), humanize.Comma(int64(res.Skipped)))
	if res.Compressed.Files > 0 {
		fmt.Fprintf(w, "Compressed %d files: %s -> %s\n", res.Compressed.Files,
			humanize.Bytes(uint64(res.Compressed.InBytes)), humanize.Bytes(uint64(res.Compressed.OutBytes)))
	}
	for _, report := range res.Reports {
		fmt.Fprintf(w, "Wrote %s\n", report)
	}
}
