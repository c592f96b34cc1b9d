package master

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pkg.jsn.cam/dmap/internal/logger"
	"pkg.jsn.cam/dmap/pkg/dmap/protocol"
	"pkg.jsn.cam/dmap/pkg/dmap/transport"
	"pkg.jsn.cam/dmap/pkg/storage"
)

// DefaultQueueSize is the capacity of the channels between pipeline stages.
const DefaultQueueSize = 64

// Config describes one master run.
type Config struct {
	ListenAddr string
	// Workers are the worker addresses; the index of an address is the
	// worker's owner id.
	Workers   []string
	ChunkSize int
	// Environment is broadcast to every worker before any chunk when non-nil.
	Environment any
	MaxRetries  int
	QueueSize   int
	Codec       protocol.Codec
	Logger      *zap.Logger
	// Store, when set, receives the run summary.
	Store *storage.RunStore
	// Progress is called after every result merged into the output.
	Progress func(processed, total int)
}

// Run executes the master pipeline Receiver -> Scheduler -> Sender over
// input and returns the output in input order. It returns only after every
// worker has ended its result stream.
func Run[In, Out any](ctx context.Context, cfg Config, input []In) ([]Out, error) {
	if len(cfg.Workers) == 0 {
		return nil, fmt.Errorf("%w: no worker addresses", ErrInvalidSchedule)
	}

	log := logger.OrNop(cfg.Logger).Named("master")

	queue := cfg.QueueSize
	if queue <= 0 {
		queue = DefaultQueueSize
	}

	output := make([]Out, len(input))

	sched, err := NewScheduler(input, output, len(cfg.Workers), cfg.ChunkSize, log)
	if err != nil {
		return nil, err
	}

	if cfg.Progress != nil {
		sched.OnProgress(cfg.Progress)
	}

	sender, err := transport.NewSender[In](transport.SenderConfig{
		Destinations: cfg.Workers,
		Codec:        cfg.Codec,
		Environment:  cfg.Environment,
		MaxRetries:   cfg.MaxRetries,
		Logger:       log,
	})
	if err != nil {
		return nil, err
	}

	receiver, err := transport.NewReceiver[Out](ctx, transport.ReceiverConfig{
		Address:  cfg.ListenAddr,
		Channels: len(cfg.Workers),
		Codec:    cfg.Codec,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}

	log.Info("starting",
		zap.String("listen", cfg.ListenAddr),
		zap.Strings("workers", cfg.Workers),
		zap.Int("elements", len(input)),
		zap.Bool("environment", cfg.Environment != nil))

	results := make(chan *protocol.TaskChunk[Out], queue)
	chunks := make(chan *protocol.TaskChunk[In], queue)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return receiver.Serve(gctx, results)
	})

	g.Go(func() error {
		return sched.Run(gctx, receiver.Ready(), results, chunks)
	})

	g.Go(func() error {
		return sender.Run(gctx, chunks)
	})

	// errgroup reports the first failing stage; the others only see gctx
	// being cancelled.
	if err := g.Wait(); err != nil {
		log.Error("run failed", zap.Int("processed", sched.Processed()), zap.Int("elements", len(input)), zap.Error(err))
		return nil, err
	}

	summary := sched.Summary()

	if cfg.Store != nil {
		if err := cfg.Store.Record(summary.RunID, summary); err != nil {
			log.Warn("failed to journal run", zap.String("run_id", summary.RunID), zap.Error(err))
		} else {
			log.Debug("run journaled", zap.String("run_id", summary.RunID))
		}
	}

	return output, nil
}
