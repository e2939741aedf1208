package audiocore

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tenemo/bob/internal/errors"
)

// fakeFactory hands out numbered fake peripherals and tracks how many are open at once
type fakeFactory struct {
	log     *eventLog
	err     error
	created atomic.Int32
	live    atomic.Int32
	maxLive atomic.Int32

	mu          sync.Mutex
	peripherals []*fakePeripheral
}

func (f *fakeFactory) New() (Peripheral, error) {
	if f.err != nil {
		return nil, f.err
	}
	n := f.created.Add(1)
	name := fmt.Sprintf("p%d", n)
	f.log.add("factory:" + name)

	live := f.live.Add(1)
	for {
		peak := f.maxLive.Load()
		if live <= peak || f.maxLive.CompareAndSwap(peak, live) {
			break
		}
	}

	p := newFakePeripheral(name, 64, f.log)
	p.onClose = func() { f.live.Add(-1) }

	f.mu.Lock()
	f.peripherals = append(f.peripherals, p)
	f.mu.Unlock()
	return p, nil
}

func (f *fakeFactory) last() *fakePeripheral {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.peripherals) == 0 {
		return nil
	}
	return f.peripherals[len(f.peripherals)-1]
}

// observerLog records session notifications
type observerLog struct {
	mu      sync.Mutex
	started []SessionInfo
	ended   []SessionInfo
}

func (o *observerLog) SessionStarted(info SessionInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, info)
}

func (o *observerLog) SessionEnded(info SessionInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ended = append(o.ended, info)
}

type controllerFixture struct {
	ctrl    *Controller
	factory *fakeFactory
	log     *eventLog
	obs     *observerLog
}

func newControllerFixture(t *testing.T) *controllerFixture {
	t.Helper()
	log := &eventLog{}
	storage := recordingFS{
		fsys: fstest.MapFS{
			"a.wav":    {Data: buildWAV(wavFixture{samples: stereoRamp(100)})},
			"b.wav":    {Data: buildWAV(wavFixture{channels: 1, sampleRate: 8000, samples: make([]int16, 100)})},
			"bad.wav":  {Data: []byte("not a wav file")},
			"long.wav": {Data: buildWAV(wavFixture{samples: stereoRamp(5000)})},
		},
		log: log,
	}
	factory := &fakeFactory{log: log}
	obs := &observerLog{}
	ctrl := NewController(ControllerConfig{
		Storage:   storage,
		Factory:   factory.New,
		KeepWarm:  true,
		Observers: []SessionObserver{obs},
	})
	t.Cleanup(ctrl.Stop)
	return &controllerFixture{ctrl: ctrl, factory: factory, log: log, obs: obs}
}

func TestControllerStartAndStop(t *testing.T) {
	f := newControllerFixture(t)
	assert.Equal(t, StateIdle, f.ctrl.State())
	assert.False(t, f.ctrl.IsPlaying())

	require.NoError(t, f.ctrl.StartFile("/a.wav"))
	assert.True(t, f.ctrl.IsPlaying())
	assert.Equal(t, StatePlaying, f.ctrl.State())

	st := f.ctrl.Status()
	assert.Equal(t, "playing", st.State)
	assert.True(t, st.Playing)
	require.NotNil(t, st.Session)
	assert.Equal(t, "/a.wav", st.Session.Source)
	assert.Equal(t, KindFile, st.Session.Kind)
	assert.Equal(t, 16000, st.Session.SampleRate)
	assert.Equal(t, 2, st.Session.Channels)
	assert.NotEmpty(t, st.Session.ID)

	p := f.factory.last()
	require.NotNil(t, p)
	assert.Equal(t, 16000, p.cfg.SampleRate)

	f.ctrl.Stop()
	assert.False(t, f.ctrl.IsPlaying())
	assert.Equal(t, StateIdle, f.ctrl.State())
	assert.Nil(t, f.ctrl.Status().Session)
	assert.True(t, p.isClosed())

	// engine teardown happens before the source is closed
	assert.Less(t, f.log.index("close:p1"), f.log.index("source-close:a.wav"))

	f.obs.mu.Lock()
	require.Len(t, f.obs.started, 1)
	require.Len(t, f.obs.ended, 1)
	assert.Equal(t, f.obs.started[0].ID, f.obs.ended[0].ID)
	assert.Equal(t, ReasonStopped, f.obs.ended[0].Reason)
	assert.False(t, f.obs.ended[0].EndedAt.IsZero())
	f.obs.mu.Unlock()

	f.ctrl.Stop() // no-op when idle
	assert.Equal(t, StateIdle, f.ctrl.State())
}

func TestControllerSwapTearsDownBeforeConstructing(t *testing.T) {
	f := newControllerFixture(t)

	require.NoError(t, f.ctrl.StartFile("a.wav"))
	first := f.ctrl.Status().Session.ID
	require.True(t, f.factory.last().signal(signalTimeout))

	require.NoError(t, f.ctrl.StartFile("b.wav"))
	st := f.ctrl.Status()
	assert.True(t, st.Playing)
	assert.Equal(t, "b.wav", st.Session.Source)
	assert.Equal(t, 1, st.Session.Channels)
	assert.Equal(t, 8000, st.Session.SampleRate)
	assert.NotEqual(t, first, st.Session.ID)

	closeOld := f.log.index("close:p1")
	closeSrc := f.log.index("source-close:a.wav")
	newOut := f.log.index("factory:p2")
	require.NotEqual(t, -1, closeOld)
	require.NotEqual(t, -1, closeSrc)
	require.NotEqual(t, -1, newOut)
	assert.Less(t, closeOld, closeSrc, "old engine stops before its source closes")
	assert.Less(t, closeSrc, newOut, "new peripheral is created after teardown")
	assert.Equal(t, int32(1), f.factory.maxLive.Load())

	f.obs.mu.Lock()
	require.Len(t, f.obs.ended, 1)
	assert.Equal(t, ReasonReplaced, f.obs.ended[0].Reason)
	assert.Equal(t, first, f.obs.ended[0].ID)
	assert.Len(t, f.obs.started, 2)
	f.obs.mu.Unlock()
}

func TestControllerPlaysBuffer(t *testing.T) {
	f := newControllerFixture(t)

	buf := NewUploadBuffer(buildWAV(wavFixture{samples: stereoRamp(3)}))
	require.NoError(t, f.ctrl.StartBuffer(buf))
	assert.False(t, buf.Available())

	p := f.factory.last()
	require.True(t, p.signal(signalTimeout))
	require.Eventually(t, func() bool { return len(p.bytesWritten()) >= 3*FrameBytes }, signalTimeout, time.Millisecond)
	assert.Equal(t, []Frame{{1, 2}, {3, 4}, {5, 6}}, decodeFrames(p.bytesWritten())[:3])

	st := f.ctrl.Status()
	assert.Equal(t, KindMemory, st.Session.Kind)
	assert.Equal(t, KindMemory, st.Session.Source)
}

func TestControllerRejectsUnavailableBuffer(t *testing.T) {
	f := newControllerFixture(t)
	require.NoError(t, f.ctrl.StartFile("long.wav"))
	current := f.ctrl.Status().Session.ID

	err := f.ctrl.StartBuffer(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBufferUnavailable))

	used := NewUploadBuffer(buildWAV(wavFixture{samples: stereoRamp(1)}))
	_, err = NewMemorySource(used)
	require.NoError(t, err)

	err = f.ctrl.Start(Request{Buffer: used})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBufferUnavailable))

	// the live session is untouched
	st := f.ctrl.Status()
	assert.True(t, st.Playing)
	assert.Equal(t, current, st.Session.ID)
	assert.Equal(t, int32(1), f.factory.created.Load())
}

func TestControllerRejectsEmptyRequest(t *testing.T) {
	f := newControllerFixture(t)
	err := f.ctrl.Start(Request{})
	assert.True(t, errors.Is(err, ErrInvalidRequest))
	assert.Equal(t, StateIdle, f.ctrl.State())
}

func TestControllerPeripheralFailure(t *testing.T) {
	f := newControllerFixture(t)
	require.NoError(t, f.ctrl.StartFile("a.wav"))

	f.factory.err = errors.NewStd("device busy")
	err := f.ctrl.StartFile("b.wav")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPeripheral))

	assert.Equal(t, StateIdle, f.ctrl.State())
	assert.Nil(t, f.ctrl.Status().Session)
	assert.NotEqual(t, -1, f.log.index("source-close:b.wav"), "new source is closed")
	assert.NotEqual(t, -1, f.log.index("close:p1"), "old session was torn down")
}

func TestControllerMissingFilePlaysSilence(t *testing.T) {
	f := newControllerFixture(t)

	for _, name := range []string{"missing.wav", "bad.wav"} {
		require.NoError(t, f.ctrl.StartFile(name))
		assert.True(t, f.ctrl.IsPlaying())
		st := f.ctrl.Status()
		assert.True(t, st.Session.Complete, name)
		assert.Equal(t, DefaultSampleRate, st.Session.SampleRate)
	}
}

func TestControllerConcurrentStarts(t *testing.T) {
	f := newControllerFixture(t)

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%4 == 3 {
				f.ctrl.Stop()
				return
			}
			name := "a.wav"
			if i%2 == 0 {
				name = "b.wav"
			}
			assert.NoError(t, f.ctrl.StartFile(name))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.factory.maxLive.Load(), "never more than one open peripheral")
	f.ctrl.Stop()
	assert.Equal(t, int32(0), f.factory.live.Load())
}
