package audiocore

import (
	"encoding/binary"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/Tenemo/bob/internal/errors"
	"github.com/Tenemo/bob/internal/logging"
)

// DefaultSampleRate is reported by sources whose header could not be read
const DefaultSampleRate = 44100

// SourceOption configures a FileSource or MemorySource
type SourceOption func(*sourceOptions)

type sourceOptions struct {
	gate   Gate
	strict bool
	logger *slog.Logger
}

// WithGate makes every read emit silence while gate.Load() is false
func WithGate(gate Gate) SourceOption {
	return func(o *sourceOptions) {
		o.gate = gate
	}
}

// WithStrictFormat makes sources with a bit depth other than 16 start complete
// instead of being decoded as 16-bit
func WithStrictFormat(strict bool) SourceOption {
	return func(o *sourceOptions) {
		o.strict = strict
	}
}

// WithSourceLogger sets the logger used for format warnings
func WithSourceLogger(logger *slog.Logger) SourceOption {
	return func(o *sourceOptions) {
		o.logger = logger
	}
}

func buildSourceOptions(opts []SourceOption) sourceOptions {
	var o sourceOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.ForService(ComponentAudioCore)
	}
	return o
}

// decoder is the sample loop shared by the file and memory sources
type decoder struct {
	r         io.Reader
	header    ContainerHeader
	channels  int
	remaining int64 // bytes of sample data left, -1 when the length is unknown
	cursor    atomic.Int64
	complete  atomic.Bool
	gate      Gate
	logger    *slog.Logger
	scratch   [2]byte
}

// init reads the header from r and decides whether the source is playable.
// Any failure leaves the decoder complete so that it only ever produces silence.
func (d *decoder) init(r io.Reader, name string, o sourceOptions) {
	d.gate = o.gate
	d.logger = o.logger.With("source", name)

	h, err := ReadHeader(r)
	if err == nil {
		err = h.Validate()
	}
	d.header = h
	if err != nil {
		d.logger.Warn("corrupt container header, playing silence", "error", err)
		d.complete.Store(true)
		return
	}
	d.cursor.Store(HeaderSize)

	if h.BitDepth != SupportedBitDepth {
		d.logger.Warn("unsupported bit depth",
			"bit_depth", h.BitDepth,
			"strict", o.strict)
		if o.strict {
			d.complete.Store(true)
			return
		}
	}
	if h.NumChannels != 1 && h.NumChannels != 2 {
		d.logger.Warn("unexpected channel count, decoding as stereo", "channels", h.NumChannels)
	}

	d.channels = int(h.NumChannels)
	d.remaining = int64(h.DataBytes)
	if h.UnknownLength() {
		d.remaining = -1
	}
	d.r = r
}

func (d *decoder) sampleRate() int {
	if d.header.SampleRate == 0 {
		return DefaultSampleRate
	}
	return int(d.header.SampleRate)
}

// outputChannels is the channel count the source reports: mono or stereo
func (d *decoder) outputChannels() int {
	if d.channels == 1 {
		return 1
	}
	return 2
}

func (d *decoder) readFrames(dst []Frame) {
	for i := range dst {
		if d.complete.Load() || (d.gate != nil && !d.gate.Load()) {
			clear(dst[i:])
			return
		}

		left, ok := d.readSample()
		if !ok {
			d.exhaust(dst[i:])
			return
		}
		right := left
		if d.channels != 1 {
			if right, ok = d.readSample(); !ok {
				d.exhaust(dst[i:])
				return
			}
		}
		dst[i] = Frame{Left: left, Right: right}
	}
}

// exhaust marks the source complete and silences the rest of the read
func (d *decoder) exhaust(rest []Frame) {
	d.complete.Store(true)
	clear(rest)
}

func (d *decoder) readSample() (int16, bool) {
	if d.remaining >= 0 && d.remaining < 2 {
		return 0, false
	}
	n, err := io.ReadFull(d.r, d.scratch[:])
	d.cursor.Add(int64(n))
	if err != nil {
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			d.logger.Warn("read failed, ending source", "error", err)
		}
		return 0, false
	}
	if d.remaining > 0 {
		d.remaining -= 2
	}
	return int16(binary.LittleEndian.Uint16(d.scratch[:])), true
}
