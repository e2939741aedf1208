package audiocore

import (
	"bufio"
	"io/fs"
	"strings"
	"sync"
)

// FileSource decodes a container read sequentially from named storage.
// A missing or unreadable file yields a source that is complete from the start.
type FileSource struct {
	decoder
	name      string
	file      fs.File
	closeOnce sync.Once
	closeErr  error
}

// NewFileSource opens name in fsys. A leading "/" in name is accepted.
func NewFileSource(fsys fs.FS, name string, opts ...SourceOption) *FileSource {
	o := buildSourceOptions(opts)
	s := &FileSource{name: name}

	if fsys == nil {
		o.logger.Warn("no storage configured, playing silence", "source", name)
		s.complete.Store(true)
		return s
	}
	f, err := fsys.Open(strings.TrimPrefix(name, "/"))
	if err != nil {
		o.logger.Warn("failed to open audio file, playing silence", "source", name, "error", err)
		s.complete.Store(true)
		return s
	}
	s.file = f
	s.init(bufio.NewReader(f), name, o)
	return s
}

// Name returns the storage path the source was opened with
func (s *FileSource) Name() string { return s.name }

// Header returns the decoded container header. It is zero for a missing file.
func (s *FileSource) Header() ContainerHeader { return s.header }

// Channels returns 1 for mono sources and 2 otherwise
func (s *FileSource) Channels() int { return s.outputChannels() }

// Position returns the byte offset of the next sample to read
func (s *FileSource) Position() int64 { return s.cursor.Load() }

// SampleRate returns the sample rate from the header
func (s *FileSource) SampleRate() int { return s.sampleRate() }

// ReadFrames fills all of dst with decoded frames, then silence
func (s *FileSource) ReadFrames(dst []Frame) { s.readFrames(dst) }

// IsComplete reports whether the file has been exhausted
func (s *FileSource) IsComplete() bool { return s.complete.Load() }

// Close releases the file handle. Reads after Close return silence.
func (s *FileSource) Close() error {
	s.closeOnce.Do(func() {
		s.complete.Store(true)
		s.r = nil
		if s.file != nil {
			s.closeErr = s.file.Close()
		}
	})
	return s.closeErr
}
