package audiocore

import (
	"bytes"
	"sync"
)

// MemorySource decodes a container held in memory. It owns the bytes it was
// given and drops them on Close.
type MemorySource struct {
	decoder
	data      []byte
	size      int
	closeOnce sync.Once
}

// NewMemorySource takes ownership of the bytes in buf. It fails with
// ErrBufferUnavailable when buf is nil or its bytes were already taken.
func NewMemorySource(buf *UploadBuffer, opts ...SourceOption) (*MemorySource, error) {
	data, ok := buf.take()
	if !ok {
		return nil, ErrBufferUnavailable
	}

	o := buildSourceOptions(opts)
	s := &MemorySource{data: data, size: len(data)}
	s.init(bytes.NewReader(data), KindMemory, o)
	return s, nil
}

// Size returns the number of bytes the source took ownership of
func (s *MemorySource) Size() int { return s.size }

// Header returns the decoded container header
func (s *MemorySource) Header() ContainerHeader { return s.header }

// Channels returns 1 for mono sources and 2 otherwise
func (s *MemorySource) Channels() int { return s.outputChannels() }

// Position returns the byte offset of the next sample to read
func (s *MemorySource) Position() int64 { return s.cursor.Load() }

// SampleRate returns the sample rate from the header
func (s *MemorySource) SampleRate() int { return s.sampleRate() }

// ReadFrames fills all of dst with decoded frames, then silence
func (s *MemorySource) ReadFrames(dst []Frame) { s.readFrames(dst) }

// IsComplete reports whether the buffer has been exhausted
func (s *MemorySource) IsComplete() bool { return s.complete.Load() }

// Close releases the buffer. It is safe to call more than once.
func (s *MemorySource) Close() error {
	s.closeOnce.Do(func() {
		s.complete.Store(true)
		s.r = nil
		s.data = nil
	})
	return nil
}
