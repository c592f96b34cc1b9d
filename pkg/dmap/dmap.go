// Package dmap runs an element-wise map over a slice across a fixed set of
// worker processes. The same program runs as master and as workers; the
// role and addresses come from Exec.
package dmap

import (
	"context"

	"go.uber.org/zap"

	"pkg.jsn.cam/dmap/internal/master"
	"pkg.jsn.cam/dmap/internal/worker"
	"pkg.jsn.cam/dmap/pkg/dmap/protocol"
	"pkg.jsn.cam/dmap/pkg/storage"
)

// Options tunes a run. The zero value is usable.
type Options struct {
	// ChunkSize selects the scheduling policy: 0 splits the input once into
	// one range per worker, >0 hands out chunks of that many elements.
	ChunkSize int
	// Parallelism is the worker pool size; 0 uses every CPU.
	Parallelism int
	// MaxRetries bounds connection attempts per destination; 0 means 15.
	MaxRetries int
	// QueueSize is the capacity of the channels between stages; 0 means 64.
	QueueSize int
	Codec     protocol.Codec
	Logger    *zap.Logger
	// Store journals a summary of every master run when set.
	Store *storage.RunStore
	// Progress is called on the master after every merged result with the
	// number of elements done so far.
	Progress func(processed, total int)
}

// Map applies fn to every element of input. See MapWithEnv.
func Map[In, Out any](ctx context.Context, exec Exec, fn func(In) Out, input []In, opts Options) ([]Out, error) {
	return MapWithEnv(ctx, exec, func(in In, _ *struct{}) Out { return fn(in) }, input, nil, opts)
}

// MapWithEnv applies fn to every element of input. env, when non-nil, is
// sent once to every worker before any chunk and passed to every call of fn;
// when nil workers pass nil.
//
// On the master it returns the output in input order once every worker has
// finished. On a worker input is ignored; it serves chunks until the master
// ends the run and returns a nil slice.
func MapWithEnv[In, Out, Env any](ctx context.Context, exec Exec, fn func(In, *Env) Out, input []In, env *Env, opts Options) ([]Out, error) {
	if !exec.IsMaster {
		return nil, worker.Run(ctx, worker.Config{
			ListenAddr:  exec.ListenAddr,
			MasterAddr:  exec.MasterAddr,
			Parallelism: opts.Parallelism,
			MaxRetries:  opts.MaxRetries,
			QueueSize:   opts.QueueSize,
			Codec:       opts.Codec,
			Logger:      opts.Logger,
		}, worker.Func[In, Out, Env](fn))
	}

	// A nil *Env must not become a non-nil interface.
	var environment any
	if env != nil {
		environment = env
	}

	return master.Run[In, Out](ctx, master.Config{
		ListenAddr:  exec.ListenAddr,
		Workers:     exec.WorkerAddrs,
		ChunkSize:   opts.ChunkSize,
		Environment: environment,
		MaxRetries:  opts.MaxRetries,
		QueueSize:   opts.QueueSize,
		Codec:       opts.Codec,
		Logger:      opts.Logger,
		Store:       opts.Store,
		Progress:    opts.Progress,
	}, input)
}
