package audiocore

import (
	"io/fs"
	"time"
)

// Frame is one stereo sample pair. Mono sources duplicate the channel into both slots.
type Frame struct {
	Left  int16
	Right int16
}

// AudioSource is a pull-based source of stereo frames.
type AudioSource interface {
	// SampleRate returns the source sample rate in Hz
	SampleRate() int

	// ReadFrames fills every element of dst with real frames or silence
	ReadFrames(dst []Frame)

	// IsComplete reports whether the source is exhausted. Once true it stays true.
	IsComplete() bool

	// Close releases the storage handle or memory buffer owned by the source
	Close() error
}

// Gate is consulted once per frame; a closed gate turns the rest of the read into silence.
type Gate interface {
	Load() bool
}

// OutputConfig is fixed for the life of one session
type OutputConfig struct {
	SampleRate    int // Sample rate in Hz taken from the bound source
	BitsPerSample int // Always 16
	Channels      int // Always 2, left then right
}

// FrameBytes returns the byte size of one frame for this configuration
func (c OutputConfig) FrameBytes() int {
	return c.Channels * c.BitsPerSample / 8
}

// Peripheral is the audio output hardware abstraction.
//
// Write must not block: it accepts as many bytes as the peripheral buffers can hold
// and returns zero when they are full. Consumed delivers one value each time the
// peripheral finishes playing one of its buffers.
type Peripheral interface {
	// Configure installs the driver for the given output format
	Configure(cfg OutputConfig) error

	// Write queues PCM bytes and returns how many were accepted
	Write(p []byte) (int, error)

	// Consumed returns the "buffer consumed" signal channel
	Consumed() <-chan struct{}

	// ZeroFill discards queued audio and outputs silence
	ZeroFill() error

	// Close tears the driver down
	Close() error
}

// PeripheralFactory returns a fresh peripheral handle for a new session
type PeripheralFactory func() (Peripheral, error)

// Recorder defines the metrics hook used by the engine and controller.
type Recorder interface {
	// RecordOperation records an operation with its status (e.g. "batch_pull", "success")
	RecordOperation(operation, status string)

	// RecordDuration records the duration of an operation in seconds
	RecordDuration(operation string, seconds float64)

	// RecordError records an error occurrence with its type
	RecordError(operation, errorType string)

	// AddBytesWritten counts PCM bytes accepted by the peripheral
	AddBytesWritten(n int)
}

// SessionInfo describes a playback session for observers
type SessionInfo struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"` // storage path or "memory"
	Kind       string    `json:"kind"`   // "file" or "memory"
	SampleRate int       `json:"sampleRate"`
	Channels   int       `json:"channels"`
	StartedAt  time.Time `json:"startedAt"`
	EndedAt    time.Time `json:"endedAt,omitzero"` // zero until the session ends
	Complete   bool      `json:"complete"`         // source was exhausted
	Reason     string    `json:"reason,omitempty"` // "stopped" or "replaced" on end
}

// SessionObserver is notified after session transitions complete
type SessionObserver interface {
	SessionStarted(info SessionInfo)
	SessionEnded(info SessionInfo)
}

// Request selects the source of a new session: a storage path or an owned buffer
type Request struct {
	Path   string
	Buffer *UploadBuffer
}

// Storage is the named read-only storage the file source opens from
type Storage = fs.FS

// nopRecorder discards everything
type nopRecorder struct{}

func (nopRecorder) RecordOperation(string, string) {}
func (nopRecorder) RecordDuration(string, float64) {}
func (nopRecorder) RecordError(string, string)     {}
func (nopRecorder) AddBytesWritten(int)            {}
