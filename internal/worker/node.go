package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pkg.jsn.cam/dmap/internal/logger"
	"pkg.jsn.cam/dmap/pkg/dmap/protocol"
	"pkg.jsn.cam/dmap/pkg/dmap/transport"
)

// DefaultQueueSize is the capacity of the channels between pipeline stages.
const DefaultQueueSize = 64

// Config describes one worker process.
type Config struct {
	ListenAddr  string
	MasterAddr  string
	Parallelism int
	MaxRetries  int
	QueueSize   int
	Codec       protocol.Codec
	Logger      *zap.Logger
}

// Run executes the worker pipeline Receiver -> Executor -> Sender until the
// master ends its chunk stream, then ends its own result stream. A transform
// failure ends the run with ErrTransformFailed and no end-of-stream frame.
func Run[In, Out, Env any](ctx context.Context, cfg Config, fn Func[In, Out, Env]) error {
	log := logger.OrNop(cfg.Logger).Named("worker")

	codec := cfg.Codec
	if codec == nil {
		codec = protocol.DefaultCodec()
	}

	queue := cfg.QueueSize
	if queue <= 0 {
		queue = DefaultQueueSize
	}

	exec, err := NewExecutor(fn, cfg.Parallelism, log)
	if err != nil {
		return err
	}
	defer exec.Close()

	sender, err := transport.NewSender[Out](transport.SenderConfig{
		Destinations: []string{cfg.MasterAddr},
		Codec:        codec,
		MaxRetries:   cfg.MaxRetries,
		Logger:       log,
	})
	if err != nil {
		return err
	}

	receiver, err := transport.NewReceiver[In](ctx, transport.ReceiverConfig{
		Address:  cfg.ListenAddr,
		Channels: 1,
		Codec:    codec,
		OnEnvironment: func(payload []byte) error {
			env := new(Env)
			if err := codec.Unmarshal(payload, env); err != nil {
				return fmt.Errorf("decode environment: %w", err)
			}
			exec.SetEnvironment(env)
			return nil
		},
		Logger: log,
	})
	if err != nil {
		return err
	}

	log.Info("starting",
		zap.String("listen", cfg.ListenAddr),
		zap.String("master", cfg.MasterAddr),
		zap.Int("parallelism", exec.Parallelism()))

	chunks := make(chan *protocol.TaskChunk[In], queue)
	results := make(chan *protocol.TaskChunk[Out], queue)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return receiver.Serve(gctx, chunks)
	})

	g.Go(func() error {
		return exec.Run(gctx, chunks, results)
	})

	g.Go(func() error {
		return sender.Run(gctx, results)
	})

	if err := g.Wait(); err != nil {
		log.Error("run failed", zap.Error(err))
		return err
	}

	log.Info("done")

	return nil
}
