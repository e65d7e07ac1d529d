// Package crawler drives a mirror: it seeds the frontier, runs the worker
// pool until the site is exhausted and writes the final reports.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"sitecloner/internal/compress"
	"sitecloner/internal/config"
	"sitecloner/internal/fetcher"
	"sitecloner/internal/frontier"
	"sitecloner/internal/logging"
	"sitecloner/internal/rewrite"
	"sitecloner/internal/sitemap"
	"sitecloner/internal/storage"
	"sitecloner/internal/urlmap"
	"sitecloner/pkg/types"
)

// Engine orchestrates fetching, saving and rewriting one site.
type Engine struct {
	cfg      config.Config
	fetcher  fetcher.Fetcher
	store    storage.RecordStore
	logger   *slog.Logger
	mapper   urlmap.Mapper
	rewriter *rewrite.Rewriter
	filter   *Filter

	frontier *frontier.Frontier
	counters *Counters
	records  *recordLog
	failed   atomic.Int64
	skipped  atomic.Int64

	rootURL string
	runID   string

	closers   []func() error
	closeOnce sync.Once
}

// Option customises an Engine.
type Option func(*Engine)

// WithFetcher replaces the HTTP fetcher built from configuration.
func WithFetcher(f fetcher.Fetcher) Option {
	return func(e *Engine) { e.fetcher = f }
}

// WithLogger replaces the logger built from configuration.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithRecordStore sends every SiteRecord to s. The caller keeps ownership of
// s.
func WithRecordStore(s storage.RecordStore) Option {
	return func(e *Engine) { e.store = s }
}

// Result summarises a finished crawl.
type Result struct {
	RunID      string
	Start      time.Time
	End        time.Time
	Counts     map[types.Kind]int
	Records    []types.SiteRecord
	Failed     int
	Skipped    int
	Reports    []string
	Compressed compress.Result
}

// Total is the number of saved resources.
func (r *Result) Total() int {
	total := 0
	for _, n := range r.Counts {
		total += n
	}
	return total
}

// NewEngine builds a crawler engine from configuration.
func NewEngine(cfg config.Config, opts ...Option) (*Engine, error) {
	cfg.Normalise()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	root, err := urlmap.Canonical(cfg.URL)
	if err != nil {
		return nil, err
	}
	baseDomain, err := urlmap.Host(root)
	if err != nil {
		return nil, err
	}

	filter, err := NewFilter(cfg.IncludePatterns, cfg.ExcludePatterns)
	if err != nil {
		return nil, err
	}

	mapper := urlmap.Mapper{BaseDomain: baseDomain, OutputRoot: cfg.Output}
	rewriter := rewrite.New(mapper, cfg.DownloadExternal)
	rewriter.Allow = filter.Allow
	e := &Engine{
		cfg:      cfg,
		mapper:   mapper,
		rewriter: rewriter,
		filter:   filter,
		frontier: frontier.New(),
		counters: NewCounters(),
		records:  &recordLog{},
		rootURL:  root,
		runID:    storage.NewRunID(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		logger, err := logging.New(cfg.Logging, os.Stderr)
		if err != nil {
			return nil, err
		}
		e.logger = logger
	}
	e.logger = e.logger.With("run_id", e.runID)

	if e.fetcher == nil {
		httpFetcher, err := fetcher.NewHTTPFetcher(fetcherOptions(cfg))
		if err != nil {
			return nil, fmt.Errorf("http fetcher: %w", err)
		}
		e.fetcher = httpFetcher
	}

	if e.store == nil && cfg.DB.Driver != "" {
		sqlWriter, err := storage.NewSQLWriter(cfg.DB)
		if err != nil {
			return nil, err
		}
		e.store = sqlWriter
		e.closers = append(e.closers, sqlWriter.Close)
	}
	return e, nil
}

func fetcherOptions(cfg config.Config) fetcher.Options {
	return fetcher.Options{
		UserAgent:          cfg.UserAgent,
		Headers:            cfg.Headers,
		Timeout:            cfg.Timeout.Duration,
		ProxyURL:           cfg.ProxyURL,
		Username:           cfg.Auth.Username,
		Password:           cfg.Auth.Password,
		InsecureSkipVerify: !cfg.VerifySSL,
		MaxRetries:         cfg.MaxRetries,
		RetryBackoff:       cfg.RetryBackoff.Duration,
		RateLimit:          cfg.RateLimit,
		PerHostDelay:       cfg.PerHostDelay.Duration,
	}
}

// RunID identifies this crawl in logs and the record store.
func (e *Engine) RunID() string {
	return e.runID
}

// Run executes the crawl until the frontier is exhausted or ctx is
// cancelled. Reports are written in both cases; an interrupted crawl returns
// the partial result together with the context error.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	defer e.Close()

	start := time.Now().UTC()
	if err := os.MkdirAll(e.cfg.Output, 0o755); err != nil {
		return nil, fmt.Errorf("create output root: %w", err)
	}

	if e.store != nil {
		if err := e.store.BeginRun(ctx, storage.Run{ID: e.runID, BaseURL: e.rootURL, StartedAt: start}); err != nil {
			e.logger.Warn("record store unavailable", "error", err)
		}
	}

	e.logger.Info("crawl started",
		"url", e.rootURL,
		"depth", e.cfg.Depth,
		"threads", e.cfg.Threads,
		"output", e.cfg.Output,
	)
	e.frontier.TryEnqueue(types.Task{URL: e.rootURL, Kind: types.KindHTML, Depth: 0})

	pool, err := NewWorkerPool(e.cfg.Threads, e.frontier, e.processTask)
	if err != nil {
		return nil, err
	}
	runErr := pool.Run(ctx)
	if runErr != nil && ctx.Err() != nil {
		e.logger.Warn("context cancelled, shutting down", "error", runErr)
	}

	res := &Result{
		RunID:   e.runID,
		Start:   start,
		End:     time.Now().UTC(),
		Counts:  e.counters.Snapshot(),
		Records: e.records.Snapshot(),
		Failed:  int(e.failed.Load()),
		Skipped: int(e.skipped.Load()),
	}

	reports, err := sitemap.Write(e.cfg.Output, &sitemap.Report{
		BaseDomain: e.mapper.BaseDomain,
		Start:      res.Start,
		End:        res.End,
		Stats:      res.Counts,
		Records:    res.Records,
		Failed:     res.Failed,
		Skipped:    res.Skipped,
	}, e.cfg.Sitemap)
	res.Reports = reports
	if err != nil {
		return res, fmt.Errorf("write sitemap: %w", err)
	}

	if e.cfg.CompressFiles && ctx.Err() == nil {
		compressed, err := compress.Files(ctx, e.savedPaths(res.Records), compress.Format(e.cfg.CompressFormat))
		res.Compressed = compressed
		if err != nil {
			e.logger.Error("compression failed", "error", err)
		}
	}

	if e.store != nil {
		finishCtx := context.WithoutCancel(ctx)
		if err := e.store.FinishRun(finishCtx, storage.Run{
			ID:         e.runID,
			FinishedAt: res.End,
			Saved:      res.Total(),
			Failed:     res.Failed,
			Skipped:    res.Skipped,
		}); err != nil {
			e.logger.Warn("record store finish failed", "error", err)
		}
	}

	e.logger.Info("crawl finished",
		"saved", res.Total(),
		"failed", res.Failed,
		"skipped", res.Skipped,
		"duration", res.End.Sub(res.Start).Round(time.Millisecond).String(),
	)
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	return res, runErr
}

func (e *Engine) savedPaths(records []types.SiteRecord) []string {
	paths := make([]string, 0, len(records))
	for _, rec := range records {
		paths = append(paths, filepath.Join(e.cfg.Output, filepath.FromSlash(rec.LocalPath)))
	}
	return paths
}

// Close releases resources owned by the engine.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		for _, closer := range e.closers {
			if cerr := closer(); cerr != nil {
				err = errors.Join(err, cerr)
			}
		}
	})
	return err
}
