package transfer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func makeChunks(n int) []*Chunk {
	chunks := make([]*Chunk, n)
	for i := range chunks {
		chunks[i] = &Chunk{Index: i, Length: 1, State: ChunkWaiting}
	}
	return chunks
}

func TestRunPoolFinishesAll(t *testing.T) {
	chunks := makeChunks(50)

	var calls atomic.Int64
	res := runPool(context.Background(), chunks, 8, 3, func(ctx context.Context, c *Chunk) error {
		calls.Add(1)
		return nil
	}, nil)

	if res.finished != 50 || res.errored != 0 {
		t.Fatalf("result = %+v, want 50 finished", res)
	}
	if calls.Load() != 50 {
		t.Fatalf("fn called %d times, want 50", calls.Load())
	}
	for _, c := range chunks {
		if c.State != ChunkFinished {
			t.Fatalf("chunk %d state %q, want finished", c.Index, c.State)
		}
	}
}

func TestRunPoolRetries(t *testing.T) {
	chunks := makeChunks(1)

	var calls int64
	res := runPool(context.Background(), chunks, 2, 5, func(ctx context.Context, c *Chunk) error {
		if atomic.AddInt64(&calls, 1) < 3 {
			return errors.New("flaky")
		}
		return nil
	}, nil)

	if res.finished != 1 || res.errored != 0 {
		t.Fatalf("result = %+v, want 1 finished", res)
	}
	if calls != 3 {
		t.Fatalf("fn called %d times, want 3", calls)
	}
	if chunks[0].Retries != 2 {
		t.Fatalf("retries = %d, want 2", chunks[0].Retries)
	}
}

func TestRunPoolRetryBudgetExhausted(t *testing.T) {
	chunks := makeChunks(1)

	var calls int64
	var doneErr error
	res := runPool(context.Background(), chunks, 1, 3, func(ctx context.Context, c *Chunk) error {
		atomic.AddInt64(&calls, 1)
		return errors.New("broken")
	}, func(ctx context.Context, c *Chunk, err error) {
		doneErr = err
	})

	if res.errored != 1 || res.finished != 0 {
		t.Fatalf("result = %+v, want 1 errored", res)
	}
	if calls != 3 {
		t.Fatalf("fn called %d times, want 3", calls)
	}
	if chunks[0].State != ChunkErrored {
		t.Fatalf("state %q, want errored", chunks[0].State)
	}
	if doneErr == nil {
		t.Fatal("onDone got nil error for errored chunk")
	}
}

func TestRunPoolCancelLeavesWaiting(t *testing.T) {
	chunks := makeChunks(64)
	ctx, cancel := context.WithCancel(context.Background())

	var once sync.Once
	res := runPool(ctx, chunks, 1, 3, func(ctx context.Context, c *Chunk) error {
		once.Do(cancel)
		return nil
	}, nil)

	// One worker, cancelled during the first chunk: that chunk finishes, and
	// the worker stops dequeuing shortly after.
	if res.finished == 0 || res.finished == len(chunks) {
		t.Fatalf("finished = %d chunks after cancellation", res.finished)
	}
	var waiting int
	for _, c := range chunks {
		switch c.State {
		case ChunkWaiting:
			waiting++
		case ChunkInProgress:
			t.Fatalf("chunk %d left in progress after pool exit", c.Index)
		}
	}
	if waiting != len(chunks)-res.finished {
		t.Fatalf("waiting = %d, finished = %d, total = %d", waiting, res.finished, len(chunks))
	}
}

func TestRunPoolInFlightContextSurvivesCancel(t *testing.T) {
	chunks := makeChunks(1)
	ctx, cancel := context.WithCancel(context.Background())

	res := runPool(ctx, chunks, 1, 3, func(ctx context.Context, c *Chunk) error {
		cancel()
		return ctx.Err()
	}, nil)

	if res.finished != 1 {
		t.Fatalf("in-flight chunk did not finish after cancel: %+v", res)
	}
}

func TestRunPoolOnDonePerTerminalChunk(t *testing.T) {
	chunks := makeChunks(10)

	var mu sync.Mutex
	seen := map[int]int{}
	res := runPool(context.Background(), chunks, 4, 3, func(ctx context.Context, c *Chunk) error {
		return nil
	}, func(ctx context.Context, c *Chunk, err error) {
		mu.Lock()
		seen[c.Index]++
		mu.Unlock()
	})

	if res.finished != 10 {
		t.Fatalf("finished = %d, want 10", res.finished)
	}
	for i := 0; i < 10; i++ {
		if seen[i] != 1 {
			t.Fatalf("onDone for chunk %d called %d times", i, seen[i])
		}
	}
}
