package audiocore

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tenemo/bob/internal/errors"
)

const signalTimeout = 2 * time.Second

// countingRecorder counts recorder calls
type countingRecorder struct {
	mu     sync.Mutex
	ops    map[string]int
	errs   map[string]int
	bytes  int
	timing int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{ops: map[string]int{}, errs: map[string]int{}}
}

func (r *countingRecorder) RecordOperation(op, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[op+":"+status]++
}

func (r *countingRecorder) RecordDuration(string, float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timing++
}

func (r *countingRecorder) RecordError(op, errType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[op+":"+errType]++
}

func (r *countingRecorder) AddBytesWritten(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bytes += n
}

func (r *countingRecorder) errorCount(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errs[key]
}

// drive signals the peripheral until the engine worker exits
func drive(t *testing.T, e *Engine, p *fakePeripheral) {
	t.Helper()
	deadline := time.After(signalTimeout)
	for {
		select {
		case <-e.Done():
			return
		case <-deadline:
			t.Fatal("engine worker did not exit")
		default:
		}
		p.signal(10 * time.Millisecond)
	}
}

func TestNewEngineConfiguresPeripheral(t *testing.T) {
	src := newMemorySource(t, buildWAV(wavFixture{sampleRate: 22050, channels: 1, samples: []int16{1}}))
	p := newFakePeripheral("out", 64, nil)

	e, err := NewEngine(src, p)
	require.NoError(t, err)

	assert.Equal(t, OutputConfig{SampleRate: 22050, BitsPerSample: 16, Channels: 2}, p.cfg)
	assert.Equal(t, 4, p.cfg.FrameBytes())
	assert.Equal(t, 1, p.zeroFills)
	assert.Equal(t, e.Config(), p.cfg)

	// never started: Stop must not wait for a worker
	require.NoError(t, e.Stop())
	assert.True(t, p.isClosed())
}

func TestNewEngineConfigureFailure(t *testing.T) {
	src := newMemorySource(t, buildWAV(wavFixture{samples: stereoRamp(1)}))
	p := newFakePeripheral("out", 64, nil)
	p.configureErr = errors.NewStd("no such device")

	e, err := NewEngine(src, p)
	require.Error(t, err)
	assert.Nil(t, e)
	assert.True(t, errors.Is(err, ErrPeripheral))
	assert.True(t, p.isClosed(), "failed peripheral is released")
}

func TestEngineStreamsSourceThenStopsWhenNotKeptWarm(t *testing.T) {
	src := newMemorySource(t, buildWAV(wavFixture{samples: stereoRamp(8)}))
	// one batch per wake, with capacity left over
	p := newFakePeripheral("out", 20, nil)
	rec := newCountingRecorder()

	e, err := NewEngine(src, p, WithBatchFrames(4), WithKeepWarm(false), WithRecorder(rec))
	require.NoError(t, err)
	e.Start()
	drive(t, e, p)

	frames := decodeFrames(p.bytesWritten())
	want := []Frame{{1, 2}, {3, 4}, {5, 6}, {7, 8}, {9, 10}, {11, 12}, {13, 14}, {15, 16}, {}, {}, {}, {}}
	assert.Equal(t, want, frames)
	assert.Equal(t, int64(12), e.FramesPulled())
	assert.True(t, src.IsComplete())

	rec.mu.Lock()
	assert.Equal(t, 3, rec.ops["batch_pull:success"])
	assert.Equal(t, 48, rec.bytes)
	rec.mu.Unlock()

	require.NoError(t, e.Stop())
	assert.True(t, p.isClosed())
}

func TestEngineKeepsWarmAfterCompletion(t *testing.T) {
	src := newMemorySource(t, buildWAV(wavFixture{samples: stereoRamp(2)}))
	p := newFakePeripheral("out", 8, nil)

	e, err := NewEngine(src, p, WithBatchFrames(2))
	require.NoError(t, err)
	e.Start()

	require.Eventually(t, func() bool {
		p.signal(10 * time.Millisecond)
		return len(p.bytesWritten()) >= 5*8
	}, signalTimeout, time.Millisecond)

	select {
	case <-e.Done():
		t.Fatal("worker exited while kept warm")
	default:
	}

	frames := decodeFrames(p.bytesWritten())
	assert.Equal(t, []Frame{{1, 2}, {3, 4}}, frames[:2])
	for _, f := range frames[2:] {
		assert.Equal(t, Frame{}, f, "silence after completion")
	}

	require.NoError(t, e.Stop())
}

func TestEngineStopJoinsWorker(t *testing.T) {
	src := newMemorySource(t, buildWAV(wavFixture{samples: stereoRamp(1000)}))
	p := newFakePeripheral("out", 32, nil)

	e, err := NewEngine(src, p, WithBatchFrames(8))
	require.NoError(t, err)
	e.Start()
	require.True(t, p.signal(signalTimeout))
	require.True(t, p.signal(signalTimeout))

	require.NoError(t, e.Stop())
	pulled := e.FramesPulled()

	select {
	case <-e.Done():
	default:
		t.Fatal("Stop returned before the worker exited")
	}
	assert.True(t, p.isClosed())
	assert.Equal(t, 2, p.zeroFills, "zero-filled on configure and on stop")

	// a stopped engine neither receives signals nor pulls frames
	assert.False(t, p.signal(20*time.Millisecond))
	assert.Equal(t, pulled, e.FramesPulled())

	require.NoError(t, e.Stop(), "Stop is idempotent")
	assert.Equal(t, 2, p.zeroFills)
}

func TestEngineSurvivesWriteErrors(t *testing.T) {
	src := newMemorySource(t, buildWAV(wavFixture{samples: stereoRamp(4)}))
	p := newFakePeripheral("out", 16, nil)
	p.writeErrs = 2
	rec := newCountingRecorder()

	e, err := NewEngine(src, p, WithBatchFrames(4), WithKeepWarm(false), WithRecorder(rec))
	require.NoError(t, err)
	e.Start()
	drive(t, e, p)

	assert.Equal(t, 2, rec.errorCount("write:peripheral"))
	frames := decodeFrames(p.bytesWritten())
	require.GreaterOrEqual(t, len(frames), 4)
	assert.Equal(t, []Frame{{1, 2}, {3, 4}, {5, 6}, {7, 8}}, frames[:4])

	require.NoError(t, e.Stop())
}
