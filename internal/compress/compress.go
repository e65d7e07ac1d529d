// Package compress writes precompressed siblings of mirrored text files so a
// static server can hand them out with Content-Encoding.
package compress

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"

	"sitecloner/internal/fsutil"
)

// Format selects the encoder.
type Format string

const (
	Gzip   Format = "gzip"
	Brotli Format = "brotli"
)

// Extension is the suffix appended to compressed siblings.
func (f Format) Extension() string {
	if f == Brotli {
		return ".br"
	}
	return ".gz"
}

var compressible = map[string]bool{
	".html": true,
	".htm":  true,
	".css":  true,
	".js":   true,
	".mjs":  true,
	".json": true,
	".xml":  true,
	".txt":  true,
	".svg":  true,
}

// Compressible reports whether path holds a text format worth compressing.
func Compressible(path string) bool {
	return compressible[strings.ToLower(filepath.Ext(path))]
}

// Result summarises a compression pass.
type Result struct {
	Files    int
	InBytes  int64
	OutBytes int64
}

// Files writes a compressed sibling for every compressible path. Originals
// are left in place. The first error stops the pass.
func Files(ctx context.Context, paths []string, format Format) (Result, error) {
	var res Result
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !Compressible(p) {
			continue
		}
		in, out, err := File(p, format)
		if err != nil {
			return res, err
		}
		res.Files++
		res.InBytes += in
		res.OutBytes += out
	}
	return res, nil
}

// File compresses path into path+format.Extension() and returns the input
// and output sizes.
func File(path string, format Format) (int64, int64, error) {
	src, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return 0, 0, err
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(encode(pw, src, format))
	}()

	n, err := fsutil.WriteStream(path+format.Extension(), pr, -1, 0o644)
	_ = pr.Close()
	if err != nil {
		return info.Size(), 0, fmt.Errorf("compress %s: %w", path, err)
	}
	return info.Size(), n, nil
}

func encode(w io.Writer, r io.Reader, format Format) error {
	var enc io.WriteCloser
	switch format {
	case Brotli:
		enc = brotli.NewWriterLevel(w, brotli.BestCompression)
	case Gzip, "":
		gz, err := gzip.NewWriterLevel(w, gzip.BestCompression)
		if err != nil {
			return err
		}
		enc = gz
	default:
		return fmt.Errorf("unsupported compression format %q", format)
	}
	if _, err := io.Copy(enc, r); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}
