package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"sitecloner/internal/extract"
	"sitecloner/internal/fsutil"
	"sitecloner/internal/urlmap"
	"sitecloner/pkg/types"
)

// processTask runs one task to completion. Every failure is logged here and
// never escapes to the pool.
func (e *Engine) processTask(ctx context.Context, task types.Task) {
	defer func() {
		if r := recover(); r != nil {
			e.failed.Add(1)
			e.logger.Error("task panicked", "url", task.URL, "kind", task.Kind, "depth", task.Depth, "panic", r)
		}
	}()

	if ctx.Err() != nil {
		return
	}
	if err := e.handleTask(ctx, task); err != nil {
		e.reportFailure(ctx, task, err)
	}
}

func (e *Engine) reportFailure(ctx context.Context, task types.Task, err error) {
	class := errorClass(err)
	logger := e.logger.With("url", task.URL, "kind", task.Kind, "depth", task.Depth, "error_class", class)
	switch {
	case skippable(err):
		e.skipped.Add(1)
		logger.Debug("skipped", "reason", err.Error())
		return
	case ctx.Err() != nil:
		logger.Debug("abandoned on shutdown", "error", err)
		return
	}

	e.failed.Add(1)
	switch class {
	case "oversize", "malformed_url":
		logger.Warn("resource skipped", "error", err)
	default:
		logger.Error("resource failed", "error", err)
	}
}

func (e *Engine) handleTask(ctx context.Context, task types.Task) error {
	if !e.filter.Allow(task.URL) {
		return ErrFiltered
	}
	if !e.cfg.DownloadExternal && !urlmap.IsInScope(task.URL, e.mapper.BaseDomain) {
		return ErrOutOfScope
	}
	localPath, err := e.mapper.LocalPath(task.URL)
	if err != nil {
		return err
	}
	relPath, err := e.mapper.Relative(task.URL)
	if err != nil {
		return err
	}

	resp, err := e.fetcher.Fetch(ctx, task.URL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.ContentLength > e.cfg.MaxFileSize {
		return fmt.Errorf("%w: %d > %d bytes", ErrOversize, resp.ContentLength, e.cfg.MaxFileSize)
	}

	docKind, isDoc := documentKind(task.Kind, resp.ContentType())
	var content []byte
	if isDoc {
		content, err = io.ReadAll(io.LimitReader(resp.Body, e.cfg.MaxFileSize+1))
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		if int64(len(content)) > e.cfg.MaxFileSize {
			return fmt.Errorf("%w: more than %d bytes", ErrOversize, e.cfg.MaxFileSize)
		}
		if err := fsutil.WriteFile(localPath, content, 0o644); err != nil {
			return fmt.Errorf("%w: %v", ErrWriteFailure, err)
		}
	} else {
		_, err := fsutil.WriteStream(localPath, resp.Body, e.cfg.MaxFileSize, 0o644)
		switch {
		case errors.Is(err, fsutil.ErrTooLarge):
			return fmt.Errorf("%w: more than %d bytes", ErrOversize, e.cfg.MaxFileSize)
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			return fmt.Errorf("%w: %v", ErrWriteFailure, err)
		}
	}
	e.counters.Inc(task.Kind)

	rec := types.SiteRecord{
		URL:       task.URL,
		LocalPath: relPath,
		Kind:      task.Kind,
		Depth:     task.Depth,
	}

	if isDoc {
		e.discover(task, docKind, content)

		var rewritten []byte
		if docKind == types.KindHTML {
			rec.Title = extract.Title(content)
			rewritten, err = e.rewriter.HTML(content, task.URL)
			if err != nil {
				e.logger.Warn("rewrite failed, keeping original", "url", task.URL, "error", err)
				rewritten = content
			}
		} else {
			rewritten = e.rewriter.CSS(content, task.URL)
		}
		if !bytes.Equal(rewritten, content) {
			if err := fsutil.WriteFile(localPath, rewritten, 0o644); err != nil {
				return fmt.Errorf("%w: %v", ErrWriteFailure, err)
			}
		}
	}

	rec.FetchedAt = time.Now().UTC()
	e.records.Append(rec)
	if e.store != nil {
		if err := e.store.SaveRecord(ctx, e.runID, rec); err != nil {
			e.logger.Warn("record store write failed", "url", task.URL, "error", err)
		}
	}
	e.logger.Debug("saved", "url", task.URL, "kind", task.Kind, "depth", task.Depth, "path", relPath)
	return nil
}

// discover enqueues the references of a saved document. Hyperlinks consume
// depth budget; embedded resources inherit the page's depth.
func (e *Engine) discover(task types.Task, docKind types.Kind, content []byte) {
	mediaType := "text/html"
	if docKind == types.KindCSS {
		mediaType = "text/css"
	}
	for ref := range extract.Extract(bytes.NewReader(content), mediaType) {
		abs, err := urlmap.Resolve(ref.Raw, task.URL)
		if err != nil {
			e.logger.Debug("unresolvable reference", "page", task.URL, "ref", ref.Raw, "error_class", errorClass(err))
			continue
		}
		if !isHTTP(abs) {
			continue
		}
		canonical, err := urlmap.Canonical(abs)
		if err != nil {
			continue
		}

		next := types.Task{URL: canonical, Kind: ref.Kind, Depth: task.Depth}
		if ref.Kind == types.KindLink && task.Depth < e.cfg.Depth {
			next.Kind = types.KindHTML
			next.Depth = task.Depth + 1
		}
		if e.frontier.TryEnqueue(next) {
			e.logger.Debug("enqueued", "url", next.URL, "kind", next.Kind, "depth", next.Depth, "from", task.URL)
		}
	}
}

// documentKind decides whether a response is parsed for references. The
// Content-Type wins; tasks of a document kind without one are parsed as
// that kind.
func documentKind(kind types.Kind, contentType string) (types.Kind, bool) {
	if k, ok := extract.DocumentKind(contentType); ok {
		if kind == types.KindHTML || kind == types.KindCSS {
			return k, true
		}
		return "", false
	}
	if contentType == "" && kind.IsDocument() {
		return kind, true
	}
	return "", false
}

func isHTTP(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
