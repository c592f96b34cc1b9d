package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"pkg.jsn.cam/dmap/internal/logger"
	"pkg.jsn.cam/dmap/pkg/dmap/protocol"
)

// DefaultMaxRetries bounds connection attempts per destination.
const DefaultMaxRetries = 15

// SenderConfig configures the outbound side of a node.
type SenderConfig struct {
	// Destinations are dialed in order; with more than one destination a
	// chunk goes to Destinations[chunk.OwnerID].
	Destinations []string
	Codec        protocol.Codec
	// Environment, when non-nil, is encoded and pushed once to every
	// destination before any chunk.
	Environment any
	MaxRetries  int
	Logger      *zap.Logger
}

// Sender owns one persistent connection per destination.
type Sender[T any] struct {
	destinations []string
	codec        protocol.Codec
	env          any
	maxRetries   int
	log          *zap.Logger
	conns        []net.Conn
}

// NewSender validates cfg. No connection is opened until Connect or Run.
func NewSender[T any](cfg SenderConfig) (*Sender[T], error) {
	if len(cfg.Destinations) == 0 {
		return nil, fmt.Errorf("sender needs at least one destination")
	}

	codec := cfg.Codec
	if codec == nil {
		codec = protocol.DefaultCodec()
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	return &Sender[T]{
		destinations: cfg.Destinations,
		codec:        codec,
		env:          cfg.Environment,
		maxRetries:   maxRetries,
		log:          logger.OrNop(cfg.Logger).Named("sender"),
	}, nil
}

// Connect dials every destination and pushes the environment, if any.
func (s *Sender[T]) Connect(ctx context.Context) error {
	conns := make([]net.Conn, 0, len(s.destinations))

	for _, dest := range s.destinations {
		conn, err := Dial(ctx, dest, s.maxRetries, s.log)
		if err != nil {
			for _, c := range conns {
				c.Close()
			}
			return err
		}

		conns = append(conns, conn)
	}

	s.conns = conns

	if s.env != nil {
		payload, err := s.codec.Marshal(s.env)
		if err != nil {
			s.closeAll()
			return fmt.Errorf("encode environment: %w", err)
		}

		for i, conn := range s.conns {
			if err := protocol.WriteFrame(conn, true, payload); err != nil {
				s.closeAll()
				return fmt.Errorf("push environment to %s: %w", s.destinations[i], err)
			}
		}

		s.log.Info("environment broadcast",
			zap.Int("destinations", len(s.conns)),
			zap.String("size", humanize.Bytes(uint64(len(payload)))))
	}

	s.log.Info("connected", zap.Strings("destinations", s.destinations))

	return nil
}

// Run connects if needed, then ships every chunk from in. When in is
// closed it sends the end-of-stream frame to every destination and closes
// all connections. Write failures are logged and the chunk is dropped. A
// chunk that cannot be encoded or framed ends the run with ErrEncodeFailed
// and no end-of-stream frame.
func (s *Sender[T]) Run(ctx context.Context, in <-chan *protocol.TaskChunk[T]) error {
	if s.conns == nil {
		if err := s.Connect(ctx); err != nil {
			return err
		}
	}
	defer s.closeAll()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-in:
			if !ok {
				if err := ctx.Err(); err != nil {
					return err
				}
				s.broadcastEndOfStream()
				return nil
			}
			if err := s.send(chunk); err != nil {
				s.log.Error("stopping on a chunk that cannot be encoded", zap.Stringer("chunk", chunk), zap.Error(err))
				return err
			}
		}
	}
}

func (s *Sender[T]) send(chunk *protocol.TaskChunk[T]) error {
	idx := 0
	if len(s.conns) > 1 {
		idx = chunk.OwnerID
	}

	if idx < 0 || idx >= len(s.conns) {
		s.log.Error("dropping chunk for unknown destination",
			zap.Stringer("chunk", chunk), zap.Int("destinations", len(s.conns)))
		return nil
	}

	data, err := protocol.EncodeChunk(s.codec, chunk)
	if err != nil {
		return fmt.Errorf("%w: %s with %s: %w", ErrEncodeFailed, chunk, s.codec.Name(), err)
	}

	if err := protocol.WriteFrame(s.conns[idx], false, data); err != nil {
		if errors.Is(err, protocol.ErrFrameTooLarge) || errors.Is(err, protocol.ErrEmptyPayload) {
			return fmt.Errorf("%w: %s: %w", ErrEncodeFailed, chunk, err)
		}
		s.log.Error("dropping chunk after write failure",
			zap.Stringer("chunk", chunk), zap.String("destination", s.destinations[idx]), zap.Error(err))
		return nil
	}

	if ce := s.log.Check(zap.DebugLevel, "chunk sent"); ce != nil {
		ce.Write(zap.Stringer("chunk", chunk),
			zap.String("destination", s.destinations[idx]),
			zap.String("size", humanize.Bytes(uint64(len(data)))))
	}

	return nil
}

func (s *Sender[T]) broadcastEndOfStream() {
	for i, conn := range s.conns {
		if err := protocol.WriteEndOfStream(conn); err != nil {
			s.log.Error("sending end-of-stream failed", zap.String("destination", s.destinations[i]), zap.Error(err))
		}
	}

	s.log.Info("end-of-stream sent", zap.Int("destinations", len(s.conns)))
}

func (s *Sender[T]) closeAll() {
	for _, conn := range s.conns {
		conn.Close()
	}
}

// Dial connects to addr, retrying with exponential backoff: after the n-th
// failed attempt it sleeps 2^n milliseconds, for at most maxRetries attempts.
func Dial(ctx context.Context, addr string, maxRetries int, log *zap.Logger) (net.Conn, error) {
	log = logger.OrNop(log)
	network, address := SplitAddress(addr)

	var (
		d       net.Dialer
		lastErr error
	)

	for attempt := 1; ; attempt++ {
		conn, err := d.DialContext(ctx, network, address)
		if err == nil {
			if attempt > 1 {
				log.Debug("connected after retries", zap.String("addr", addr), zap.Int("attempts", attempt))
			}
			return conn, nil
		}

		lastErr = err
		if attempt >= maxRetries {
			break
		}

		timer := time.NewTimer(time.Duration(1<<attempt) * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrConnectFailed, addr, maxRetries, lastErr)
}
