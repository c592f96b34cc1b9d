package master

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Round trips are recorded in microseconds, from 1µs up to one hour.
const (
	latencyMin     = 1
	latencyMax     = int64(time.Hour / time.Microsecond)
	latencySigFigs = 3
)

// Summary describes one finished master run.
type Summary struct {
	RunID      string        `json:"run_id"`
	Mode       string        `json:"mode"`
	Elements   int           `json:"elements"`
	Workers    int           `json:"workers"`
	ChunkSize  int           `json:"chunk_size"`
	PerWorker  []int         `json:"per_worker"`
	Chunks     int64         `json:"chunks"`
	Elapsed    time.Duration `json:"elapsed"`
	LatencyP50 time.Duration `json:"latency_p50"`
	LatencyP99 time.Duration `json:"latency_p99"`
	LatencyMax time.Duration `json:"latency_max"`
	StartedAt  time.Time     `json:"started_at"`
}

type runStats struct {
	runID    string
	started  time.Time
	finished time.Time
	pending  map[int]time.Time // dispatch time by chunk begin offset
	latency  *hdrhistogram.Histogram
}

func newRunStats(workers int) *runStats {
	return &runStats{
		runID:   uuid.NewString(),
		pending: make(map[int]time.Time, workers),
		latency: hdrhistogram.New(latencyMin, latencyMax, latencySigFigs),
	}
}

func (s *runStats) begin() {
	s.started = time.Now()
}

func (s *runStats) end() {
	s.finished = time.Now()
}

func (s *runStats) dispatched(begin int, at time.Time) {
	s.pending[begin] = at
}

func (s *runStats) observe(begin int) {
	at, ok := s.pending[begin]
	if !ok {
		return
	}
	delete(s.pending, begin)

	us := time.Since(at).Microseconds()
	if us < latencyMin {
		us = latencyMin
	}
	// Values beyond the trackable range are dropped by the histogram.
	_ = s.latency.RecordValue(min(us, latencyMax))
}

func (s *runStats) elapsed() time.Duration {
	if s.started.IsZero() {
		return 0
	}
	if s.finished.IsZero() {
		return time.Since(s.started)
	}
	return s.finished.Sub(s.started)
}

func (s *runStats) quantile(q float64) time.Duration {
	if s.latency.TotalCount() == 0 {
		return 0
	}
	return time.Duration(s.latency.ValueAtQuantile(q)) * time.Microsecond
}

func (s *runStats) log(l *zap.Logger, perWorker []int) {
	l.Info("run complete",
		zap.String("run_id", s.runID),
		zap.Duration("elapsed", s.elapsed()),
		zap.Ints("chunks_per_worker", perWorker),
		zap.String("chunks", humanize.Comma(s.latency.TotalCount())),
		zap.Duration("latency_p50", s.quantile(50)),
		zap.Duration("latency_p99", s.quantile(99)),
		zap.String("started", humanize.Time(s.started)))
}

func (s *runStats) summary(mode Mode, total, chunkSize int, perWorker []int) Summary {
	var worst time.Duration
	if s.latency.TotalCount() > 0 {
		worst = time.Duration(s.latency.Max()) * time.Microsecond
	}

	return Summary{
		RunID:      s.runID,
		Mode:       mode.String(),
		Elements:   total,
		Workers:    len(perWorker),
		ChunkSize:  chunkSize,
		PerWorker:  append([]int(nil), perWorker...),
		Chunks:     s.latency.TotalCount(),
		Elapsed:    s.elapsed(),
		LatencyP50: s.quantile(50),
		LatencyP99: s.quantile(99),
		LatencyMax: worst,
		StartedAt:  s.started,
	}
}
