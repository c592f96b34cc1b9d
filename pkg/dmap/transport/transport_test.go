package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkg.jsn.cam/dmap/pkg/dmap/protocol"
)

func newTestReceiver[T any](t *testing.T, channels int, onEnv func([]byte) error) *Receiver[T] {
	t.Helper()

	r, err := NewReceiver[T](context.Background(), ReceiverConfig{
		Address:       "127.0.0.1:0",
		Channels:      channels,
		OnEnvironment: onEnv,
	})
	require.NoError(t, err)

	return r
}

// serve runs r in the background and collects everything it forwards.
func serve[T any](ctx context.Context, r *Receiver[T]) (<-chan error, func() []*protocol.TaskChunk[T]) {
	out := make(chan *protocol.TaskChunk[T], 16)
	errc := make(chan error, 1)

	var (
		mu  sync.Mutex
		got []*protocol.TaskChunk[T]
	)

	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for c := range out {
			mu.Lock()
			got = append(got, c)
			mu.Unlock()
		}
	}()

	go func() {
		errc <- r.Serve(ctx, out)
	}()

	return errc, func() []*protocol.TaskChunk[T] {
		<-collected
		mu.Lock()
		defer mu.Unlock()
		return got
	}
}

// frameTally is what one peer saw on a connection until it was closed.
type frameTally struct {
	data         int
	endOfStream  int
	dataAfterEnd int
	closeErr     error
}

// tallyFrames accepts one connection on ln and reads frames until it fails.
func tallyFrames(ln net.Listener) <-chan frameTally {
	res := make(chan frameTally, 1)

	go func() {
		var tally frameTally
		defer func() { res <- tally }()

		conn, err := ln.Accept()
		if err != nil {
			tally.closeErr = err
			return
		}
		defer conn.Close()

		for {
			h, _, err := protocol.ReadFrame(conn)
			switch {
			case err != nil:
				tally.closeErr = err
				return
			case h.IsEndOfStream():
				tally.endOfStream++
			case tally.endOfStream > 0:
				tally.dataAfterEnd++
			default:
				tally.data++
			}
		}
	}()

	return res
}

func rawListener(t *testing.T) net.Listener {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	return ln
}

// brokenCodec decodes normally but cannot encode anything.
type brokenCodec struct{ protocol.GobCodec }

func (brokenCodec) Marshal(any) ([]byte, error) {
	return nil, errors.New("encoder out of order")
}

func TestSender_OneEndOfStreamPerDestination(t *testing.T) {
	t.Parallel()

	ln0, ln1 := rawListener(t), rawListener(t)
	tally0, tally1 := tallyFrames(ln0), tallyFrames(ln1)

	s, err := NewSender[int](SenderConfig{Destinations: []string{ln0.Addr().String(), ln1.Addr().String()}})
	require.NoError(t, err)

	src := []int{1, 2, 3, 4}
	in := make(chan *protocol.TaskChunk[int], 3)
	in <- protocol.NewTaskChunk(0, 0, 1, src)
	in <- protocol.NewTaskChunk(1, 1, 3, src)
	in <- protocol.NewTaskChunk(0, 3, 4, src)
	close(in)

	require.NoError(t, s.Run(context.Background(), in))

	for i, tc := range []struct {
		tally <-chan frameTally
		data  int
	}{{tally0, 2}, {tally1, 1}} {
		got := <-tc.tally
		assert.Equal(t, tc.data, got.data, "destination %d data frames", i)
		assert.Equal(t, 1, got.endOfStream, "destination %d end-of-stream frames", i)
		assert.Zero(t, got.dataAfterEnd, "destination %d frames after end-of-stream", i)
		assert.ErrorIs(t, got.closeErr, io.EOF, "destination %d closed after end-of-stream", i)
	}
}

func TestSender_UnencodableChunkEndsRunWithoutEndOfStream(t *testing.T) {
	t.Parallel()

	ln := rawListener(t)
	tally := tallyFrames(ln)

	s, err := NewSender[int](SenderConfig{Destinations: []string{ln.Addr().String()}, Codec: brokenCodec{}})
	require.NoError(t, err)

	in := make(chan *protocol.TaskChunk[int], 2)
	in <- protocol.NewTaskChunk(0, 0, 1, []int{1})
	close(in)

	assert.ErrorIs(t, s.Run(context.Background(), in), ErrEncodeFailed)

	got := <-tally
	assert.Zero(t, got.data)
	assert.Zero(t, got.endOfStream)
	assert.ErrorIs(t, got.closeErr, io.EOF)
}

func TestSenderToReceiver_EnvironmentThenChunksThenEndOfStream(t *testing.T) {
	t.Parallel()

	type env struct {
		Add int `json:"add"`
	}

	var (
		mu       sync.Mutex
		received *env
	)

	r := newTestReceiver[int](t, 1, func(payload []byte) error {
		var e env
		if err := protocol.DefaultCodec().Unmarshal(payload, &e); err != nil {
			return err
		}
		mu.Lock()
		received = &e
		mu.Unlock()
		return nil
	})

	errc, collect := serve(context.Background(), r)

	s, err := NewSender[int](SenderConfig{
		Destinations: []string{r.Addr().String()},
		Environment:  env{Add: 20},
	})
	require.NoError(t, err)

	in := make(chan *protocol.TaskChunk[int], 2)
	in <- protocol.NewTaskChunk(0, 0, 2, []int{1, 2, 3})
	in <- protocol.NewTaskChunk(0, 2, 3, []int{1, 2, 3})
	close(in)

	require.NoError(t, s.Run(context.Background(), in))
	require.NoError(t, <-errc)

	got := collect()
	require.Len(t, got, 2)
	assert.Equal(t, []int{1, 2}, got[0].Payload)
	assert.Equal(t, []int{3}, got[1].Payload)

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, received)
	assert.Equal(t, 20, received.Add)

	select {
	case <-r.Ready():
	default:
		t.Fatal("Ready not closed after all channels connected")
	}
}

func TestReceiver_WaitsForEveryChannel(t *testing.T) {
	t.Parallel()

	r := newTestReceiver[string](t, 3, nil)
	errc, collect := serve(context.Background(), r)

	var conns []net.Conn
	for i := 0; i < 3; i++ {
		select {
		case <-r.Ready():
			t.Fatalf("Ready closed after only %d connections", i)
		default:
		}

		conn, err := net.Dial("tcp", r.Addr().String())
		require.NoError(t, err)
		conns = append(conns, conn)
	}

	select {
	case <-r.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("Ready not closed")
	}

	for i, conn := range conns {
		data, err := protocol.EncodeChunk(protocol.DefaultCodec(), protocol.NewTaskChunk(i, i, i+1, []string{"a", "b", "c"}))
		require.NoError(t, err)
		require.NoError(t, protocol.WriteFrame(conn, false, data))
		require.NoError(t, protocol.WriteEndOfStream(conn))
		conn.Close()
	}

	require.NoError(t, <-errc)
	assert.Len(t, collect(), 3)
}

func TestReceiver_PeerCloseCountsAsEndOfStream(t *testing.T) {
	t.Parallel()

	r := newTestReceiver[int](t, 1, nil)
	errc, collect := serve(context.Background(), r)

	conn, err := net.Dial("tcp", r.Addr().String())
	require.NoError(t, err)

	data, err := protocol.EncodeChunk(protocol.DefaultCodec(), protocol.NewTaskChunk(0, 0, 1, []int{7}))
	require.NoError(t, err)
	require.NoError(t, protocol.WriteFrame(conn, false, data))
	require.NoError(t, conn.Close())

	require.NoError(t, <-errc)
	assert.Len(t, collect(), 1)
}

func TestReceiver_MalformedPayload(t *testing.T) {
	t.Parallel()

	r := newTestReceiver[int](t, 1, nil)
	errc, _ := serve(context.Background(), r)

	conn, err := net.Dial("tcp", r.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, protocol.WriteFrame(conn, false, []byte("{broken")))

	assert.ErrorIs(t, <-errc, ErrMalformedFrame)
}

func TestReceiver_ContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	r := newTestReceiver[int](t, 2, nil)
	errc, _ := serve(ctx, r)

	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestNewReceiver_BindFailure(t *testing.T) {
	t.Parallel()

	r := newTestReceiver[int](t, 1, nil)
	defer r.Close()

	_, err := NewReceiver[int](context.Background(), ReceiverConfig{Address: r.Addr().String(), Channels: 1})
	assert.ErrorIs(t, err, ErrListen)

	_, err = NewReceiver[int](context.Background(), ReceiverConfig{Address: "127.0.0.1:0", Channels: 0})
	assert.Error(t, err)
}

func TestSender_RoutesByOwner(t *testing.T) {
	t.Parallel()

	r0 := newTestReceiver[int](t, 1, nil)
	r1 := newTestReceiver[int](t, 1, nil)
	errc0, collect0 := serve(context.Background(), r0)
	errc1, collect1 := serve(context.Background(), r1)

	s, err := NewSender[int](SenderConfig{Destinations: []string{r0.Addr().String(), r1.Addr().String()}})
	require.NoError(t, err)

	src := []int{0, 1, 2, 3, 4, 5}
	in := make(chan *protocol.TaskChunk[int], 4)
	in <- protocol.NewTaskChunk(1, 0, 2, src)
	in <- protocol.NewTaskChunk(0, 2, 4, src)
	in <- protocol.NewTaskChunk(1, 4, 6, src)
	in <- protocol.NewTaskChunk(5, 0, 1, src) // no such destination: dropped
	close(in)

	require.NoError(t, s.Run(context.Background(), in))
	require.NoError(t, <-errc0)
	require.NoError(t, <-errc1)

	got0, got1 := collect0(), collect1()
	require.Len(t, got0, 1)
	require.Len(t, got1, 2)
	assert.Equal(t, 2, got0[0].Begin)
	assert.Equal(t, 0, got1[0].Begin)
	assert.Equal(t, 4, got1[1].Begin)
}

func TestDial_SucceedsOnceDestinationListens(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "late.sock")
	addr := unixPrefix + path

	listening := make(chan net.Listener, 1)
	go func() {
		time.Sleep(20 * time.Millisecond) // a few backoff rounds
		ln, err := Listen(context.Background(), addr)
		if err != nil {
			listening <- nil
			return
		}
		listening <- ln
	}()

	conn, err := Dial(context.Background(), addr, DefaultMaxRetries, nil)
	require.NoError(t, err)
	conn.Close()

	ln := <-listening
	require.NotNil(t, ln)
	ln.Close()
}

func TestDial_GivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	addr := unixPrefix + filepath.Join(t.TempDir(), "never.sock")

	start := time.Now()
	_, err := Dial(context.Background(), addr, 4, nil)
	assert.ErrorIs(t, err, ErrConnectFailed)
	// 2 + 4 + 8 ms of backoff between four attempts.
	assert.GreaterOrEqual(t, time.Since(start), 14*time.Millisecond)
}

func TestDial_ContextCancelStopsBackoff(t *testing.T) {
	t.Parallel()

	addr := unixPrefix + filepath.Join(t.TempDir(), "never.sock")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := Dial(ctx, addr, DefaultMaxRetries, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSender_ConnectFailure(t *testing.T) {
	t.Parallel()

	s, err := NewSender[int](SenderConfig{
		Destinations: []string{unixPrefix + filepath.Join(t.TempDir(), "missing.sock")},
		MaxRetries:   2,
	})
	require.NoError(t, err)

	err = s.Run(context.Background(), make(chan *protocol.TaskChunk[int]))
	assert.ErrorIs(t, err, ErrConnectFailed)

	_, err = NewSender[int](SenderConfig{})
	assert.Error(t, err)
}

func TestSplitAddress(t *testing.T) {
	t.Parallel()

	network, address := SplitAddress("unix:/tmp/dmap.sock")
	assert.Equal(t, "unix", network)
	assert.Equal(t, "/tmp/dmap.sock", address)

	network, address = SplitAddress("localhost:8080")
	assert.Equal(t, "tcp", network)
	assert.Equal(t, "localhost:8080", address)
}
