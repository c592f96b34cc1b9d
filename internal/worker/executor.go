package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"pkg.jsn.cam/dmap/internal/logger"
	"pkg.jsn.cam/dmap/pkg/dmap/protocol"
)

// ErrTransformFailed is returned when the transform panics on a chunk.
var ErrTransformFailed = errors.New("transform failed")

// Func is the element transform. env is nil when the run has no environment.
type Func[In, Out, Env any] func(in In, env *Env) Out

// Executor applies a transform to whole chunks on a bounded goroutine pool.
// One chunk is in flight at a time; Apply returns only when every index of
// the chunk is done.
type Executor[In, Out, Env any] struct {
	fn          Func[In, Out, Env]
	pool        *ants.Pool
	parallelism int
	env         atomic.Pointer[Env]
	log         *zap.Logger
}

// NewExecutor creates the pool. parallelism <= 0 uses runtime.NumCPU().
func NewExecutor[In, Out, Env any](fn Func[In, Out, Env], parallelism int, log *zap.Logger) (*Executor[In, Out, Env], error) {
	if fn == nil {
		return nil, fmt.Errorf("executor needs a transform")
	}

	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}

	pool, err := ants.NewPool(parallelism, ants.WithPreAlloc(true))
	if err != nil {
		return nil, fmt.Errorf("create pool of %d: %w", parallelism, err)
	}

	return &Executor[In, Out, Env]{
		fn:          fn,
		pool:        pool,
		parallelism: parallelism,
		log:         logger.OrNop(log).Named("executor"),
	}, nil
}

// SetEnvironment installs the value every later transform call receives.
func (e *Executor[In, Out, Env]) SetEnvironment(env *Env) {
	e.env.Store(env)
}

// Parallelism returns the pool size.
func (e *Executor[In, Out, Env]) Parallelism() int {
	return e.parallelism
}

// Apply transforms every element of chunk. Result slot i always holds
// fn(chunk.Payload[i]). A panic in the transform fails the whole chunk with
// ErrTransformFailed and no result.
func (e *Executor[In, Out, Env]) Apply(chunk *protocol.TaskChunk[In]) (*protocol.TaskChunk[Out], error) {
	result := protocol.ResultFor[Out](chunk)
	env := e.env.Load()

	var (
		wg       sync.WaitGroup
		failOnce sync.Once
		failure  error
	)

	fail := func(err error) {
		failOnce.Do(func() { failure = err })
	}

	for _, b := range partitionBlocks(chunk.Len(), e.parallelism) {
		wg.Add(1)

		err := e.pool.Submit(func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					fail(fmt.Errorf("%w: %s at index %d: %v", ErrTransformFailed, chunk, chunk.Begin+b.begin, r))
				}
			}()

			for i := b.begin; i < b.end; i++ {
				result.Payload[i] = e.fn(chunk.Payload[i], env)
			}
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("%w: submit %s: %w", ErrTransformFailed, chunk, err))
			break
		}
	}

	wg.Wait()

	if failure != nil {
		return nil, failure
	}

	return result, nil
}

// Run applies every chunk from in and forwards the result on out, in arrival
// order. out is closed once in is closed and drained. On failure out is left
// open so the downstream sender cannot mistake it for a clean end.
func (e *Executor[In, Out, Env]) Run(ctx context.Context, in <-chan *protocol.TaskChunk[In], out chan<- *protocol.TaskChunk[Out]) error {
	for {
		var (
			chunk *protocol.TaskChunk[In]
			ok    bool
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok = <-in:
		}

		if !ok {
			e.log.Debug("input ended")
			close(out)
			return nil
		}

		result, err := e.Apply(chunk)
		if err != nil {
			e.log.Error("chunk failed", zap.Stringer("chunk", chunk), zap.Error(err))
			return err
		}

		if ce := e.log.Check(zap.DebugLevel, "chunk applied"); ce != nil {
			ce.Write(zap.Stringer("chunk", chunk), zap.Int("elements", chunk.Len()))
		}

		select {
		case out <- result:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close releases the pool.
func (e *Executor[In, Out, Env]) Close() {
	e.pool.Release()
}
