package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"pkg.jsn.cam/dmap/internal/logger"
	"pkg.jsn.cam/dmap/pkg/dmap/protocol"
)

// ReceiverConfig configures the listening side of a node.
type ReceiverConfig struct {
	// Address is host:port or unix:/path.
	Address string
	// Channels is the number of inbound connections to expect: 1 on a
	// worker, one per worker on the master. Serve returns once every one of
	// them has ended its stream.
	Channels int
	Codec    protocol.Codec
	// OnEnvironment receives the payload of environment frames. It runs on
	// the event loop, before any later chunk of the same connection is
	// forwarded. Nil means environment frames are ignored.
	OnEnvironment func(payload []byte) error
	Logger        *zap.Logger
}

// Receiver accepts a fixed number of connections and multiplexes their
// frames into a single output channel. All bookkeeping happens on one event
// loop; accept and per-connection reads only block in the runtime netpoller
// and hand their results to the loop.
type Receiver[T any] struct {
	ln        net.Listener
	channels  int
	codec     protocol.Codec
	onEnv     func([]byte) error
	log       *zap.Logger
	ready     chan struct{}
	readyOnce sync.Once
}

type eventKind int

const (
	eventAccepted eventKind = iota
	eventFrame
	eventClosed
)

type event struct {
	kind    eventKind
	conn    net.Conn
	header  protocol.Header
	payload []byte
	err     error
}

// NewReceiver binds the listening socket. A bind failure is returned
// wrapped in ErrListen.
func NewReceiver[T any](ctx context.Context, cfg ReceiverConfig) (*Receiver[T], error) {
	if cfg.Channels < 1 {
		return nil, fmt.Errorf("receiver needs at least one input channel, got %d", cfg.Channels)
	}

	ln, err := Listen(ctx, cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w on %s: %w", ErrListen, cfg.Address, err)
	}

	codec := cfg.Codec
	if codec == nil {
		codec = protocol.DefaultCodec()
	}

	return &Receiver[T]{
		ln:       ln,
		channels: cfg.Channels,
		codec:    codec,
		onEnv:    cfg.OnEnvironment,
		log:      logger.OrNop(cfg.Logger).Named("receiver"),
		ready:    make(chan struct{}),
	}, nil
}

// Addr returns the bound address.
func (r *Receiver[T]) Addr() net.Addr {
	return r.ln.Addr()
}

// Ready is closed exactly once, when all expected connections are established.
func (r *Receiver[T]) Ready() <-chan struct{} {
	return r.ready
}

// Close releases the listener of a receiver that was never served.
func (r *Receiver[T]) Close() error {
	return r.ln.Close()
}

// Serve runs the event loop until every connection has ended its stream or
// ctx is cancelled. Decoded chunks are sent on out, which is closed on return.
func (r *Receiver[T]) Serve(ctx context.Context, out chan<- *protocol.TaskChunk[T]) error {
	defer close(out)

	var (
		wg     sync.WaitGroup
		done   = make(chan struct{})
		events = make(chan event)
		conns  = make(map[net.Conn]struct{})
	)

	defer func() {
		close(done)
		r.ln.Close()
		for c := range conns {
			c.Close()
		}
		wg.Wait()
	}()

	wg.Add(1)
	go r.acceptLoop(events, done, &wg)

	r.log.Info("listening", zap.Stringer("addr", r.ln.Addr()), zap.Int("channels", r.channels))

	established, ended := 0, 0
	for ended < r.channels {
		var ev event

		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev = <-events:
		}

		switch ev.kind {
		case eventAccepted:
			conns[ev.conn] = struct{}{}
			established++
			r.log.Debug("connection established",
				zap.Stringer("remote", ev.conn.RemoteAddr()),
				zap.Int("established", established))

			if established == r.channels {
				r.readyOnce.Do(func() { close(r.ready) })
			}

			wg.Add(1)
			go r.readLoop(ev.conn, events, done, &wg)

		case eventFrame:
			if err := r.dispatch(ctx, ev, out); err != nil {
				return err
			}

		case eventClosed:
			ev.conn.Close()
			delete(conns, ev.conn)
			ended++

			if ev.err != nil {
				r.log.Warn("connection closed without end-of-stream, treating it as ended",
					zap.Stringer("remote", ev.conn.RemoteAddr()), zap.Error(ev.err))
			} else {
				r.log.Debug("end-of-stream received", zap.Int("ended", ended), zap.Int("channels", r.channels))
			}
		}
	}

	r.log.Info("all input streams ended", zap.Int("channels", r.channels))

	return nil
}

func (r *Receiver[T]) dispatch(ctx context.Context, ev event, out chan<- *protocol.TaskChunk[T]) error {
	if ev.header.IsEnvironment {
		if r.onEnv == nil {
			r.log.Warn("ignoring environment frame", zap.Int("bytes", len(ev.payload)))
			return nil
		}

		if err := r.onEnv(ev.payload); err != nil {
			return fmt.Errorf("%w: environment: %w", ErrMalformedFrame, err)
		}

		r.log.Debug("environment received", zap.Int("bytes", len(ev.payload)))

		return nil
	}

	chunk, err := protocol.DecodeChunk[T](r.codec, ev.payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}

	select {
	case out <- chunk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Receiver[T]) acceptLoop(events chan<- event, done <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	for accepted := 0; accepted < r.channels; {
		conn, err := r.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}

			select {
			case <-done:
				return
			default:
			}

			r.log.Warn("accept failed", zap.Error(err))

			continue
		}

		accepted++

		select {
		case events <- event{kind: eventAccepted, conn: conn}:
		case <-done:
			conn.Close()
			return
		}
	}
}

func (r *Receiver[T]) readLoop(conn net.Conn, events chan<- event, done <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		h, payload, err := protocol.ReadFrame(conn)

		ev := event{conn: conn, header: h, payload: payload, err: err}

		switch {
		case err != nil, h.IsEndOfStream():
			ev.kind = eventClosed
		default:
			ev.kind = eventFrame
		}

		select {
		case events <- ev:
		case <-done:
			return
		}

		if ev.kind == eventClosed {
			return
		}
	}
}
