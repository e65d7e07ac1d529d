package crawler

import (
	"errors"

	"sitecloner/internal/fetcher"
	"sitecloner/internal/urlmap"
)

var (
	// ErrFiltered marks a URL rejected by the include/exclude patterns.
	ErrFiltered = errors.New("excluded by pattern")
	// ErrOutOfScope marks a URL outside the base domain while external
	// resources are disabled.
	ErrOutOfScope = errors.New("out of scope")
	// ErrOversize marks a resource larger than max_file_size.
	ErrOversize = errors.New("resource exceeds max file size")
	// ErrWriteFailure wraps disk I/O errors.
	ErrWriteFailure = errors.New("write failure")
)

// errorClass names err for the error_class log attribute.
func errorClass(err error) string {
	switch {
	case errors.Is(err, ErrFiltered):
		return "filtered"
	case errors.Is(err, ErrOutOfScope):
		return "out_of_scope"
	case errors.Is(err, ErrOversize):
		return "oversize"
	case errors.Is(err, ErrWriteFailure):
		return "write_failure"
	case errors.Is(err, urlmap.ErrPathEscape):
		return "path_escape"
	case errors.Is(err, urlmap.ErrMalformedURL):
		return "malformed_url"
	}
	switch fetcher.Class(err) {
	case "transient":
		return "transient_fetch"
	case "fatal":
		return "fatal_fetch"
	case "cancelled":
		return "cancelled"
	}
	return "other"
}

// skippable reports whether err means the task was deliberately not
// fetched rather than failed.
func skippable(err error) bool {
	return errors.Is(err, ErrFiltered) || errors.Is(err, ErrOutOfScope)
}
