package compile

import (
	"context"
	"sync"

	"jitopt/internal/ir"
)

// Queue runs independent compilations on a pool of workers. Graphs are never shared
// between workers; the type registry they refer to must not change while the queue
// runs.
type Queue struct {
	compiler *Compiler
	workers  int
}

// NewQueue returns a queue with the worker count of the compiler's options
func NewQueue(c *Compiler) *Queue {
	w := c.Options.Workers
	if w < 1 {
		w = 1
	}
	return &Queue{compiler: c, workers: w}
}

// Run compiles every graph and returns the results in input order
func (q *Queue) Run(ctx context.Context, graphs []*ir.Graph) []*Result {
	results := make([]*Result, len(graphs))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for range min(q.workers, len(graphs)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = q.compiler.Compile(ctx, graphs[i])
			}
		}()
	}
	for i := range graphs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	log.Debugf("queue compiled %d graphs on %d workers", len(graphs), q.workers)
	return results
}
