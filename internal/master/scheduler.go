package master

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"pkg.jsn.cam/dmap/internal/logger"
	"pkg.jsn.cam/dmap/pkg/dmap/protocol"
)

// PreassignRounds is how many chunks each worker receives up front in
// dynamic mode, before any result has come back.
const PreassignRounds = 1

// Mode is the scheduling policy.
type Mode int

const (
	// ModeStatic splits the input once into ceil(T/W) sized ranges.
	ModeStatic Mode = iota
	// ModeDynamic hands out fixed-size chunks, each worker getting its next
	// chunk when it returns the previous one.
	ModeDynamic
)

func (m Mode) String() string {
	if m == ModeDynamic {
		return "dynamic"
	}
	return "static"
}

// Range is one assignment of [Begin, End) to worker Owner.
type Range struct {
	Owner int
	Begin int
	End   int
}

// Len returns the number of elements in the range.
func (r Range) Len() int {
	return r.End - r.Begin
}

// Scheduler partitions the input across workers and writes results into
// the output. It is single-writer: only the goroutine running it touches
// its state and the output slice.
type Scheduler[In, Out any] struct {
	input     []In
	output    []Out
	total     int
	workers   int
	chunkSize int

	next      int // first unassigned index, dynamic mode
	inflight  map[int]Range
	processed int
	perWorker []int
	done      bool

	progress func(processed, total int)
	stats    *runStats
	log      *zap.Logger
}

// NewScheduler prepares a run over input. chunkSize 0 selects static mode.
func NewScheduler[In, Out any](input []In, output []Out, workers, chunkSize int, log *zap.Logger) (*Scheduler[In, Out], error) {
	if workers < 1 {
		return nil, fmt.Errorf("%w: need at least one worker, got %d", ErrInvalidSchedule, workers)
	}

	if chunkSize < 0 {
		return nil, fmt.Errorf("%w: negative chunk size %d", ErrInvalidSchedule, chunkSize)
	}

	if len(output) != len(input) {
		return nil, fmt.Errorf("%w: output holds %d elements, input %d", ErrInvalidSchedule, len(output), len(input))
	}

	return &Scheduler[In, Out]{
		input:     input,
		output:    output,
		total:     len(input),
		workers:   workers,
		chunkSize: chunkSize,
		perWorker: make([]int, workers),
		inflight:  make(map[int]Range),
		stats:     newRunStats(workers),
		log:       logger.OrNop(log).Named("scheduler"),
	}, nil
}

// OnProgress registers fn to be called from Run after every accepted
// result.
func (s *Scheduler[In, Out]) OnProgress(fn func(processed, total int)) {
	s.progress = fn
}

// Mode returns the scheduling policy chosen by the chunk size.
func (s *Scheduler[In, Out]) Mode() Mode {
	if s.chunkSize > 0 {
		return ModeDynamic
	}
	return ModeStatic
}

// Plan computes the initial assignment. Static mode returns one range per
// worker, empty tail ranges included. Dynamic mode returns up to
// PreassignRounds non-empty ranges per worker, round-robin, and advances
// the unassigned offset past them. Plan must be called once.
func (s *Scheduler[In, Out]) Plan() []Range {
	if s.Mode() == ModeStatic {
		k := (s.total + s.workers - 1) / s.workers

		ranges := make([]Range, s.workers)
		for w := range ranges {
			ranges[w] = Range{
				Owner: w,
				Begin: min(w*k, s.total),
				End:   min((w+1)*k, s.total),
			}
			if ranges[w].Len() > 0 {
				s.inflight[ranges[w].Begin] = ranges[w]
			}
		}

		return ranges
	}

	var ranges []Range

	for round := 0; round < PreassignRounds; round++ {
		for w := 0; w < s.workers; w++ {
			r, ok := s.nextRange(w)
			if !ok {
				return ranges
			}
			ranges = append(ranges, r)
		}
	}

	return ranges
}

func (s *Scheduler[In, Out]) nextRange(owner int) (Range, bool) {
	if s.next >= s.total {
		return Range{}, false
	}

	end := min(s.next+s.chunkSize, s.total)
	r := Range{Owner: owner, Begin: s.next, End: end}
	s.next = end
	s.inflight[r.Begin] = r

	return r, true
}

// Complete writes a returned result into the output and, in dynamic mode,
// returns the next range for the same worker while unassigned work remains.
func (s *Scheduler[In, Out]) Complete(result *protocol.TaskChunk[Out]) (Range, bool, error) {
	if s.done {
		return Range{}, false, fmt.Errorf("%w: %s after completion", ErrInvalidResult, result)
	}

	if result.OwnerID < 0 || result.OwnerID >= s.workers {
		return Range{}, false, fmt.Errorf("%w: unknown worker %d", ErrInvalidResult, result.OwnerID)
	}

	if err := result.Validate(s.total); err != nil {
		return Range{}, false, fmt.Errorf("%w: %w", ErrInvalidResult, err)
	}

	assigned, ok := s.inflight[result.Begin]
	if !ok || assigned.End != result.End || assigned.Owner != result.OwnerID {
		return Range{}, false, fmt.Errorf("%w: %s was not assigned", ErrInvalidResult, result)
	}
	delete(s.inflight, result.Begin)

	copy(s.output[result.Begin:result.End], result.Payload)
	s.processed += result.Len()
	s.perWorker[result.OwnerID]++

	if s.processed == s.total {
		s.done = true
	}

	if s.Mode() == ModeDynamic && !s.done {
		if r, ok := s.nextRange(result.OwnerID); ok {
			return r, true, nil
		}
	}

	return Range{}, false, nil
}

// Done reports whether every element has been processed.
func (s *Scheduler[In, Out]) Done() bool {
	return s.done
}

// Processed returns the number of elements written to the output so far.
func (s *Scheduler[In, Out]) Processed() int {
	return s.processed
}

// PerWorker returns how many chunks each worker has returned.
func (s *Scheduler[In, Out]) PerWorker() []int {
	return append([]int(nil), s.perWorker...)
}

func (s *Scheduler[In, Out]) chunk(r Range) *protocol.TaskChunk[In] {
	return protocol.NewTaskChunk(r.Owner, r.Begin, r.End, s.input)
}

// Run drives the scheduler as a pipeline stage. It waits for start (all
// workers connected), ships the initial plan on out, then consumes results
// from in. out is closed exactly once, when the output is complete; that
// close is the terminal signal for the sender. Results keep being drained
// until in is closed so the receiver never blocks on a finished scheduler.
func (s *Scheduler[In, Out]) Run(ctx context.Context, start <-chan struct{}, in <-chan *protocol.TaskChunk[Out], out chan<- *protocol.TaskChunk[In]) error {
	closed := false
	finish := func() {
		if !closed {
			closed = true
			close(out)
		}
	}
	defer finish()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-start:
	}

	s.stats.begin()
	s.log.Info("scheduling",
		zap.String("mode", s.Mode().String()),
		zap.Int("elements", s.total),
		zap.Int("workers", s.workers),
		zap.Int("chunk_size", s.chunkSize))

	if s.total == 0 {
		s.done = true
	}

	for _, r := range s.Plan() {
		if r.Len() == 0 {
			continue
		}
		if err := s.ship(ctx, r, out); err != nil {
			return err
		}
	}

	if s.done {
		s.complete()
		finish()
	}

	for {
		var (
			result *protocol.TaskChunk[Out]
			ok     bool
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case result, ok = <-in:
		}

		if !ok {
			if !s.done {
				return fmt.Errorf("%w: %d of %d elements processed", ErrIncomplete, s.processed, s.total)
			}
			return nil
		}

		if s.done {
			s.log.Warn("ignoring result after completion", zap.Stringer("chunk", result))
			continue
		}

		s.stats.observe(result.Begin)

		next, more, err := s.Complete(result)
		if err != nil {
			return err
		}

		s.log.Debug("result written",
			zap.Stringer("chunk", result),
			zap.Int("processed", s.processed),
			zap.Int("total", s.total))

		if s.progress != nil {
			s.progress(s.processed, s.total)
		}

		if more {
			if err := s.ship(ctx, next, out); err != nil {
				return err
			}
		}

		if s.done {
			s.complete()
			finish()
		}
	}
}

func (s *Scheduler[In, Out]) ship(ctx context.Context, r Range, out chan<- *protocol.TaskChunk[In]) error {
	s.stats.dispatched(r.Begin, time.Now())

	select {
	case out <- s.chunk(r):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler[In, Out]) complete() {
	s.stats.end()
	s.stats.log(s.log, s.perWorker)
}

// Summary returns the statistics of the finished run.
func (s *Scheduler[In, Out]) Summary() Summary {
	return s.stats.summary(s.Mode(), s.total, s.chunkSize, s.perWorker)
}
