package audiocore

import (
	"encoding/binary"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Tenemo/bob/internal/errors"
	"github.com/Tenemo/bob/internal/logging"
)

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithBatchFrames sets the number of frames pulled per refill
func WithBatchFrames(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.batchFrames = n
		}
	}
}

// WithKeepWarm controls whether silence keeps flowing after the source completes.
// When false the worker exits once the last batch of a complete source is written.
func WithKeepWarm(keepWarm bool) EngineOption {
	return func(e *Engine) {
		e.keepWarm = keepWarm
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithLogger sets the engine logger
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRunningFlag shares the session running flag with the engine. The same flag is
// normally the source gate, so clearing it silences the source and ends the worker.
func WithRunningFlag(flag *atomic.Bool) EngineOption {
	return func(e *Engine) {
		if flag != nil {
			e.running = flag
		}
	}
}

// Engine streams frames from one source to one peripheral on a single worker goroutine
type Engine struct {
	src         AudioSource
	out         Peripheral
	cfg         OutputConfig
	batchFrames int
	keepWarm    bool
	recorder    Recorder
	logger      *slog.Logger

	batch  []Frame
	staged []byte
	offset int // bytes of staged already written; len(staged) means empty

	running   *atomic.Bool
	pulled    atomic.Int64
	started   atomic.Bool
	stopCh    chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	stopErr   error
}

// NewEngine configures out for the sample rate of src and fills it with silence.
// On failure the peripheral is closed and an ErrPeripheral error is returned.
func NewEngine(src AudioSource, out Peripheral, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		src:         src,
		out:         out,
		batchFrames: DefaultBatchFrames,
		keepWarm:    true,
		recorder:    nopRecorder{},
		running:     new(atomic.Bool),
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.ForService(ComponentAudioCore)
	}
	e.logger = e.logger.With("component", "engine")

	e.cfg = OutputConfig{
		SampleRate:    src.SampleRate(),
		BitsPerSample: SupportedBitDepth,
		Channels:      OutputChannels,
	}

	if err := out.Configure(e.cfg); err != nil {
		_ = out.Close()
		e.recorder.RecordError("configure", "peripheral")
		return nil, errors.New(err).
			Component(ComponentAudioCore).
			Category(errors.CategoryAudioOutput).
			Context("operation", "configure_peripheral").
			Context("sample_rate", e.cfg.SampleRate).
			Build()
	}
	if err := out.ZeroFill(); err != nil {
		_ = out.Close()
		e.recorder.RecordError("zero_fill", "peripheral")
		return nil, errors.New(err).
			Component(ComponentAudioCore).
			Category(errors.CategoryAudioOutput).
			Context("operation", "zero_fill").
			Build()
	}

	e.batch = make([]Frame, e.batchFrames)
	e.staged = make([]byte, e.batchFrames*e.cfg.FrameBytes())
	e.offset = len(e.staged)

	return e, nil
}

// Start sets the running flag and launches the worker. Calls after the first are no-ops.
func (e *Engine) Start() {
	e.startOnce.Do(func() {
		e.running.Store(true)
		e.started.Store(true)
		go e.run()
		e.logger.Debug("engine started",
			"sample_rate", e.cfg.SampleRate,
			"batch_frames", e.batchFrames,
			"keep_warm", e.keepWarm)
	})
}

// Stop clears the running flag, silences the peripheral, waits for the worker to
// exit and then closes the peripheral. It is idempotent.
func (e *Engine) Stop() error {
	e.stopOnce.Do(func() {
		e.running.Store(false)
		close(e.stopCh)

		if err := e.out.ZeroFill(); err != nil {
			e.logger.Warn("failed to zero-fill peripheral on stop", "error", err)
			e.recorder.RecordError("zero_fill", "peripheral")
		}
		if e.started.Load() {
			<-e.done
		}
		if err := e.out.Close(); err != nil {
			e.recorder.RecordError("close", "peripheral")
			e.stopErr = errors.New(err).
				Component(ComponentAudioCore).
				Category(errors.CategoryAudioOutput).
				Context("operation", "close_peripheral").
				Build()
		}
		e.logger.Debug("engine stopped", "frames_pulled", e.pulled.Load())
	})
	return e.stopErr
}

// Done is closed when the worker has exited
func (e *Engine) Done() <-chan struct{} { return e.done }

// FramesPulled returns the number of frames read from the source so far
func (e *Engine) FramesPulled() int64 { return e.pulled.Load() }

// Config returns the output configuration installed on the peripheral
func (e *Engine) Config() OutputConfig { return e.cfg }

func (e *Engine) run() {
	defer close(e.done)

	consumed := e.out.Consumed()
	for {
		select {
		case <-e.stopCh:
			return
		case _, ok := <-consumed:
			if !ok {
				e.logger.Warn("peripheral closed its consumed channel")
				return
			}
		}

		if !e.running.Load() {
			return
		}
		start := time.Now()
		more := e.refill()
		e.recorder.RecordDuration("engine_wake", time.Since(start).Seconds())
		if !more {
			return
		}
	}
}

// refill writes staged bytes until the peripheral stops accepting them. It returns
// false when the worker should exit.
func (e *Engine) refill() bool {
	for {
		if e.offset >= len(e.staged) {
			if !e.running.Load() {
				return false
			}
			if !e.keepWarm && e.src.IsComplete() {
				e.logger.Debug("source complete, engine idle")
				return false
			}
			e.pull()
		}

		n, err := e.out.Write(e.staged[e.offset:])
		if err != nil {
			e.logger.Warn("peripheral write failed", "error", err, "bytes_written", n)
			e.recorder.RecordError("write", "peripheral")
		}
		if n <= 0 {
			return true
		}
		e.offset += n
		e.recorder.AddBytesWritten(n)
	}
}

// pull reads one batch from the source and encodes it little-endian, left then right
func (e *Engine) pull() {
	e.src.ReadFrames(e.batch)
	for i, f := range e.batch {
		binary.LittleEndian.PutUint16(e.staged[i*FrameBytes:], uint16(f.Left))
		binary.LittleEndian.PutUint16(e.staged[i*FrameBytes+2:], uint16(f.Right))
	}
	e.offset = 0
	e.pulled.Add(int64(len(e.batch)))
	e.recorder.RecordOperation("batch_pull", "success")
}
