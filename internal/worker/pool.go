// Package worker renders batches of tiles in parallel.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/MeKo-Tech/noysway/internal/tile"
)

// Renderer produces the encoded bytes of one tile. Implementations must be
// safe for concurrent use; pipeline.TileRenderer is.
type Renderer interface {
	RenderTile(ctx context.Context, coords tile.Coords) ([]byte, error)
}

// Task is one tile to render.
type Task struct {
	Coords tile.Coords
}

// Result is the outcome of a Task.
type Result struct {
	Task     Task
	Data     []byte
	Err      error
	Attempts int
	Elapsed  time.Duration
}

// ProgressFunc is called after each task completes.
type ProgressFunc func(completed, total, failed int)

// ResultFunc receives every result on a single goroutine, in completion
// order. Returning an error marks that result failed.
type ResultFunc func(Result) error

// Config configures a Pool.
type Config struct {
	Workers  int
	Renderer Renderer
	// Retries is the number of extra attempts for a failed render.
	// Cancellation is never retried.
	Retries    int
	OnProgress ProgressFunc
	OnResult   ResultFunc
}

// Pool renders tasks on a fixed number of goroutines.
type Pool struct {
	cfg Config
}

// New creates a pool. Fewer than one worker means one.
func New(cfg Config) *Pool {
	cfg.Workers = max(cfg.Workers, 1)
	cfg.Retries = max(cfg.Retries, 0)
	return &Pool{cfg: cfg}
}

// indexed carries a result back with the position of its task.
type indexed struct {
	i int
	r Result
}

// Run renders every task and returns one result per task, in task order.
// It blocks until all tasks are done or ctx is cancelled; tasks not started
// before cancellation carry ctx's error. When OnResult is set the returned
// results carry no tile data.
func (p *Pool) Run(ctx context.Context, tasks []Task) []Result {
	if len(tasks) == 0 {
		return nil
	}

	next := make(chan int)
	done := make(chan indexed, p.cfg.Workers)

	var wg sync.WaitGroup
	for range p.cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				done <- indexed{i, p.render(ctx, tasks[i])}
			}
		}()
	}

	go func() {
		defer func() {
			close(next)
			wg.Wait()
			close(done)
		}()
		for i := range tasks {
			select {
			case next <- i:
			case <-ctx.Done():
				for j := i; j < len(tasks); j++ {
					done <- indexed{j, Result{Task: tasks[j], Err: ctx.Err()}}
				}
				return
			}
		}
	}()

	results := make([]Result, len(tasks))
	var completed, failed int
	for d := range done {
		r := d.r
		if r.Err == nil && p.cfg.OnResult != nil {
			r.Err = p.cfg.OnResult(r)
			r.Data = nil
		}
		results[d.i] = r

		completed++
		if r.Err != nil {
			failed++
		}
		if p.cfg.OnProgress != nil {
			p.cfg.OnProgress(completed, len(tasks), failed)
		}
	}
	return results
}

func (p *Pool) render(ctx context.Context, task Task) Result {
	start := time.Now()
	r := Result{Task: task}
	for r.Attempts <= p.cfg.Retries {
		if err := ctx.Err(); err != nil {
			r.Err = err
			break
		}
		r.Attempts++
		r.Data, r.Err = p.cfg.Renderer.RenderTile(ctx, task.Coords)
		if r.Err == nil || ctx.Err() != nil {
			break
		}
	}
	r.Elapsed = time.Since(start)
	return r
}
