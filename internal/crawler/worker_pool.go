package crawler

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"sitecloner/internal/frontier"
	"sitecloner/pkg/types"
)

// TaskHandler processes one claimed task. Failures are handled inside; the
// pool never stops because of a task.
type TaskHandler func(ctx context.Context, task types.Task)

// WorkerPool runs a fixed number of workers that drain a frontier.
type WorkerPool struct {
	size     int
	frontier *frontier.Frontier
	handle   TaskHandler
}

// NewWorkerPool creates a pool with the given concurrency.
func NewWorkerPool(size int, f *frontier.Frontier, handle TaskHandler) (*WorkerPool, error) {
	if size <= 0 {
		return nil, errors.New("worker pool requires positive concurrency")
	}
	if f == nil || handle == nil {
		return nil, errors.New("worker pool requires a frontier and a handler")
	}
	return &WorkerPool{size: size, frontier: f, handle: handle}, nil
}

// Run blocks until the frontier is drained or ctx is cancelled.
func (p *WorkerPool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.size; i++ {
		g.Go(func() error {
			for {
				task, ok := p.frontier.Dequeue(gctx)
				if !ok {
					return nil
				}
				p.run(gctx, task)
			}
		})
	}
	err := g.Wait()
	if ctx.Err() != nil {
		p.frontier.Close()
		return ctx.Err()
	}
	return err
}

func (p *WorkerPool) run(ctx context.Context, task types.Task) {
	defer p.frontier.Done()
	p.handle(ctx, task)
}
