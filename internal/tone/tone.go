// Package tone writes synthetic 16-bit PCM WAV files: silence for startup pop
// suppression and sine tones for output checks.
package tone

import (
	"io"
	"math"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/Tenemo/bob/internal/errors"
)

const (
	bitDepth       = 16
	pcmAudioFormat = 1
	maxAmplitude   = math.MaxInt16
	chunkFrames    = 4096
)

// Clip describes a 16-bit PCM clip. A zero Frequency writes silence.
type Clip struct {
	SampleRate int
	Channels   int
	Duration   time.Duration
	Frequency  float64 // Hz
	Amplitude  float64 // 0..1 of full scale
}

// Silence returns a stereo silence clip
func Silence(sampleRate int, d time.Duration) Clip {
	return Clip{SampleRate: sampleRate, Channels: 2, Duration: d}
}

// Sine returns a stereo sine clip at half of full scale
func Sine(sampleRate int, frequency float64, d time.Duration) Clip {
	return Clip{SampleRate: sampleRate, Channels: 2, Duration: d, Frequency: frequency, Amplitude: 0.5}
}

// Frames returns the number of frames the clip produces
func (s Clip) Frames() int {
	return int(int64(s.Duration) * int64(s.SampleRate) / int64(time.Second))
}

func (s Clip) validate() error {
	if s.SampleRate <= 0 || s.Channels < 1 || s.Channels > 2 || s.Duration < 0 ||
		s.Frequency < 0 || s.Amplitude < 0 || s.Amplitude > 1 {
		return errors.New(nil).
			Component("tone").
			Category(errors.CategoryValidation).
			Context("sample_rate", s.SampleRate).
			Context("channels", s.Channels).
			Context("frequency", s.Frequency).
			Context("amplitude", s.Amplitude).
			Context("error", "invalid tone clip").
			Build()
	}
	return nil
}

// Write encodes the clip into w
func Write(w io.WriteSeeker, clip Clip) error {
	if err := clip.validate(); err != nil {
		return err
	}

	enc := wav.NewEncoder(w, clip.SampleRate, bitDepth, clip.Channels, pcmAudioFormat)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{SampleRate: clip.SampleRate, NumChannels: clip.Channels},
		SourceBitDepth: bitDepth,
	}

	total := clip.Frames()
	step := 2 * math.Pi * clip.Frequency / float64(clip.SampleRate)
	peak := clip.Amplitude * maxAmplitude

	for start := 0; start < total; start += chunkFrames {
		n := min(chunkFrames, total-start)
		buf.Data = buf.Data[:0]
		for i := range n {
			sample := 0
			if clip.Frequency > 0 {
				sample = int(math.Round(peak * math.Sin(step*float64(start+i))))
			}
			for range clip.Channels {
				buf.Data = append(buf.Data, sample)
			}
		}
		if err := enc.Write(buf); err != nil {
			return errors.New(err).
				Component("tone").
				Category(errors.CategoryFileIO).
				Context("operation", "encode").
				Build()
		}
	}

	if err := enc.Close(); err != nil {
		return errors.New(err).
			Component("tone").
			Category(errors.CategoryFileIO).
			Context("operation", "finalize").
			Build()
	}
	return nil
}

// Encode returns the clip as a complete WAV file
func Encode(clip Clip) ([]byte, error) {
	var buf seekBuffer
	if err := Write(&buf, clip); err != nil {
		return nil, err
	}
	return buf.data, nil
}

// seekBuffer is an in-memory io.WriteSeeker; the encoder seeks back to patch the header
type seekBuffer struct {
	data []byte
	pos  int64
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	end := b.pos + int64(len(p))
	if end > int64(len(b.data)) {
		b.data = append(b.data, make([]byte, end-int64(len(b.data)))...)
	}
	copy(b.data[b.pos:end], p)
	b.pos = end
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = b.pos + offset
	case io.SeekEnd:
		pos = int64(len(b.data)) + offset
	default:
		return 0, errors.Newf("invalid whence %d", whence).
			Component("tone").
			Category(errors.CategoryValidation).
			Build()
	}
	if pos < 0 {
		return 0, errors.Newf("negative seek position %d", pos).
			Component("tone").
			Category(errors.CategoryValidation).
			Build()
	}
	b.pos = pos
	return pos, nil
}

// WriteFile creates or replaces path with the clip
func WriteFile(path string, clip Clip) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.New(err).
			Component("tone").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Context("operation", "create").
			Build()
	}
	if err := Write(f, clip); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}
