// Package sinks holds the buffer model shared by the audio output peripherals
package sinks

import (
	"sync"
	"sync/atomic"

	"github.com/smallnest/ringbuffer"

	"github.com/Tenemo/bob/internal/audiocore"
	"github.com/Tenemo/bob/internal/errors"
)

// Default DMA geometry: four buffers of 1024 frames each
const (
	DefaultPeriodFrames = 1024
	DefaultPeriods      = 4
)

// DMABuffer models the peripheral's DMA buffers as one ring. Producers write
// without blocking; the playback side drains one period at a time and signals
// Consumed after each drain.
type DMABuffer struct {
	periodFrames int
	periods      int

	mu         sync.Mutex
	rb         *ringbuffer.RingBuffer
	frameBytes int
	consumed   chan struct{}

	underruns atomic.Int64
	drained   atomic.Int64
}

// NewDMABuffer creates an unconfigured buffer. Zero values select the defaults.
func NewDMABuffer(periodFrames, periods int) *DMABuffer {
	if periodFrames <= 0 {
		periodFrames = DefaultPeriodFrames
	}
	if periods <= 0 {
		periods = DefaultPeriods
	}
	return &DMABuffer{
		periodFrames: periodFrames,
		periods:      periods,
		consumed:     make(chan struct{}, periods),
	}
}

// Configure sizes the ring for cfg
func (d *DMABuffer) Configure(cfg audiocore.OutputConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frameBytes = cfg.FrameBytes()
	d.rb = ringbuffer.New(d.periods * d.periodFrames * d.frameBytes)
}

// PeriodFrames returns the number of frames in one DMA buffer
func (d *DMABuffer) PeriodFrames() int { return d.periodFrames }

// Periods returns the number of DMA buffers
func (d *DMABuffer) Periods() int { return d.periods }

// Write queues as many bytes as fit and never blocks
func (d *DMABuffer) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rb == nil || len(p) == 0 {
		return 0, nil
	}
	n := min(len(p), d.rb.Free())
	if n == 0 {
		return 0, nil
	}
	return d.rb.Write(p[:n])
}

// Consumed returns the buffer consumed signal
func (d *DMABuffer) Consumed() <-chan struct{} { return d.consumed }

// ZeroFill discards everything queued
func (d *DMABuffer) ZeroFill() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rb != nil {
		d.rb.Reset()
	}
}

// Drain fills out with queued audio and pads any shortfall with silence. It
// reports whether out was padded and then signals Consumed.
func (d *DMABuffer) Drain(out []byte) bool {
	d.mu.Lock()
	n := 0
	if d.rb != nil && d.rb.Length() > 0 {
		var err error
		n, err = d.rb.Read(out)
		if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
			n = 0
		}
	}
	d.mu.Unlock()

	clear(out[n:])
	short := n < len(out)
	if short {
		d.underruns.Add(1)
	}
	d.drained.Add(int64(len(out)))

	select {
	case d.consumed <- struct{}{}:
	default:
		// Worker is behind; one pending signal per period is enough
	}
	return short
}

// Queued returns the number of bytes waiting to be played
func (d *DMABuffer) Queued() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rb == nil {
		return 0
	}
	return d.rb.Length()
}

// Underruns returns how many drains had to be padded with silence
func (d *DMABuffer) Underruns() int64 { return d.underruns.Load() }

// BytesDrained returns the total number of bytes handed to playback, silence included
func (d *DMABuffer) BytesDrained() int64 { return d.drained.Load() }

// PeriodBytes returns the byte size of one DMA buffer, zero before Configure
func (d *DMABuffer) PeriodBytes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.periodFrames * d.frameBytes
}
