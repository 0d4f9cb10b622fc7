package transfer

import (
	"context"
	"sync"
	"sync/atomic"
)

// transferFunc moves one chunk's bytes between source and destination.
type transferFunc func(ctx context.Context, c *Chunk) error

// poolResult reports how many chunks a pool run finished or permanently
// failed. Chunks left waiting after cancellation are in neither count.
type poolResult struct {
	finished int
	errored  int
}

// runPool drains chunks with a fixed-size set of workers. Each worker
// repeatedly dequeues one chunk, marks it in progress and invokes fn. On
// failure the chunk is re-enqueued until its retry budget is spent, then
// marked errored. onDone is invoked after every terminal transition, with
// the chunk's final error for errored chunks.
//
// Cancellation is cooperative: ctx is checked only before dequeuing, so a
// chunk already in progress runs to completion and chunks still waiting stay
// waiting. Byte ranges are disjoint, so only the queue and counters are
// synchronized.
func runPool(ctx context.Context, chunks []*Chunk, threads, maxRetries int, fn transferFunc, onDone func(context.Context, *Chunk, error)) poolResult {
	if len(chunks) == 0 {
		return poolResult{}
	}
	if threads <= 0 {
		threads = 1
	}

	// Every chunk occupies at most one queue slot at a time, including
	// re-enqueues, so the queue never blocks a sender.
	queue := make(chan *Chunk, len(chunks))
	for _, c := range chunks {
		c.State = ChunkWaiting
		queue <- c
	}

	var outstanding atomic.Int64
	outstanding.Store(int64(len(chunks)))

	var finished, errored atomic.Int64
	// In-flight chunks must not be torn down mid-transfer; workers stop by
	// refusing to dequeue instead.
	runCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case c, ok := <-queue:
					if !ok {
						return
					}
					c.State = ChunkInProgress
					err := fn(runCtx, c)
					if err != nil {
						c.Retries++
						if c.Retries < maxRetries {
							c.State = ChunkWaiting
							queue <- c
							continue
						}
						c.State = ChunkErrored
						errored.Add(1)
					} else {
						c.State = ChunkFinished
						finished.Add(1)
					}
					if onDone != nil {
						onDone(runCtx, c, err)
					}
					if outstanding.Add(-1) == 0 {
						close(queue)
					}
				}
			}
		}()
	}
	wg.Wait()

	return poolResult{
		finished: int(finished.Load()),
		errored:  int(errored.Load()),
	}
}
