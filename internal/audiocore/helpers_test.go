package audiocore

import (
	"bytes"
	"encoding/binary"
	"io"
	"io/fs"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("gopkg.in/natefinch/lumberjack%2ev2.(*Logger).millRun"),
	)
}

// wavFixture describes a synthetic container
type wavFixture struct {
	channels   uint16
	bitDepth   uint16
	sampleRate uint32
	samples    []int16
	dataBytes  *uint32 // overrides the declared data length
}

func buildWAV(fx wavFixture) []byte {
	if fx.channels == 0 {
		fx.channels = 2
	}
	if fx.bitDepth == 0 {
		fx.bitDepth = 16
	}
	if fx.sampleRate == 0 {
		fx.sampleRate = 16000
	}
	data := uint32(len(fx.samples) * 2)
	declared := data
	if fx.dataBytes != nil {
		declared = *fx.dataBytes
	}
	blockAlign := fx.channels * fx.bitDepth / 8

	h := ContainerHeader{
		RIFFID:       riffMagic,
		TotalSize:    36 + data,
		WaveID:       waveMagic,
		FmtID:        [4]byte{'f', 'm', 't', ' '},
		FmtChunkSize: 16,
		AudioFormat:  1,
		NumChannels:  fx.channels,
		SampleRate:   fx.sampleRate,
		ByteRate:     fx.sampleRate * uint32(blockAlign),
		BlockAlign:   blockAlign,
		BitDepth:     fx.bitDepth,
		DataID:       [4]byte{'d', 'a', 't', 'a'},
		DataBytes:    declared,
	}

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, h)
	_ = binary.Write(&buf, binary.LittleEndian, fx.samples)
	return buf.Bytes()
}

func u32(v uint32) *uint32 { return &v }

// stereoRamp returns n interleaved frames (1,2),(3,4),...
func stereoRamp(n int) []int16 {
	s := make([]int16, 0, n*2)
	for i := range n {
		s = append(s, int16(2*i+1), int16(2*i+2))
	}
	return s
}

// eventLog records teardown ordering across fakes
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *eventLog) index(e string) int {
	for i, v := range l.snapshot() {
		if v == e {
			return i
		}
	}
	return -1
}

// fakePeripheral accepts up to capacity bytes between consumed signals
type fakePeripheral struct {
	name         string
	log          *eventLog
	capacity     int
	configureErr error
	writeErrs    int // number of initial writes that fail

	mu        sync.Mutex
	cfg       OutputConfig
	free      int
	written   bytes.Buffer
	zeroFills int
	closed    bool
	consumed  chan struct{}
	onClose   func()
}

func newFakePeripheral(name string, capacity int, log *eventLog) *fakePeripheral {
	return &fakePeripheral{
		name:     name,
		log:      log,
		capacity: capacity,
		consumed: make(chan struct{}),
	}
}

func (p *fakePeripheral) Configure(cfg OutputConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.configureErr != nil {
		return p.configureErr
	}
	p.cfg = cfg
	p.log.add("configure:" + p.name)
	return nil
}

func (p *fakePeripheral) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErrs > 0 {
		p.writeErrs--
		return 0, io.ErrShortWrite
	}
	n := min(len(b), p.free)
	p.free -= n
	p.written.Write(b[:n])
	return n, nil
}

func (p *fakePeripheral) Consumed() <-chan struct{} { return p.consumed }

func (p *fakePeripheral) ZeroFill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.zeroFills++
	return nil
}

func (p *fakePeripheral) Close() error {
	p.mu.Lock()
	p.closed = true
	onClose := p.onClose
	p.mu.Unlock()
	p.log.add("close:" + p.name)
	if onClose != nil {
		onClose()
	}
	return nil
}

// signal makes room for capacity bytes and wakes the worker. It reports false
// when nobody received the signal within the timeout.
func (p *fakePeripheral) signal(timeout time.Duration) bool {
	p.mu.Lock()
	p.free = p.capacity
	p.mu.Unlock()
	select {
	case p.consumed <- struct{}{}:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (p *fakePeripheral) bytesWritten() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.written.Bytes()...)
}

func (p *fakePeripheral) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func decodeFrames(b []byte) []Frame {
	frames := make([]Frame, len(b)/FrameBytes)
	for i := range frames {
		frames[i] = Frame{
			Left:  int16(binary.LittleEndian.Uint16(b[i*FrameBytes:])),
			Right: int16(binary.LittleEndian.Uint16(b[i*FrameBytes+2:])),
		}
	}
	return frames
}

// recordingFS logs when files opened from it are closed
type recordingFS struct {
	fsys fstest.MapFS
	log  *eventLog
}

func (r recordingFS) Open(name string) (fs.File, error) {
	f, err := r.fsys.Open(name)
	if err != nil {
		return nil, err
	}
	return &recordingFile{File: f, name: name, log: r.log}, nil
}

type recordingFile struct {
	fs.File
	name string
	log  *eventLog
}

func (f *recordingFile) Close() error {
	f.log.add("source-close:" + f.name)
	return f.File.Close()
}
