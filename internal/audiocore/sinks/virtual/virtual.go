// Package virtual provides a clock-driven playback peripheral without audio hardware.
// It consumes one DMA period per period duration and can capture what it plays.
package virtual

import (
	"io"
	"sync"
	"time"

	"github.com/Tenemo/bob/internal/audiocore"
	"github.com/Tenemo/bob/internal/audiocore/sinks"
	"github.com/Tenemo/bob/internal/errors"
)

// Config holds the virtual peripheral settings
type Config struct {
	PeriodFrames int       // frames per DMA buffer, default 1024
	Periods      int       // number of DMA buffers, default 4
	Capture      io.Writer // receives every period played, silence included; optional
	Speed        float64   // clock multiplier, 1 plays in real time; default 1
}

// Peripheral implements audiocore.Peripheral on a ticker
type Peripheral struct {
	config Config
	dma    *sinks.DMABuffer

	mu      sync.Mutex
	started bool
	closed  bool
	stop    chan struct{}
	done    chan struct{}
}

// New creates an unconfigured virtual peripheral
func New(config Config) *Peripheral {
	if config.Speed <= 0 {
		config.Speed = 1
	}
	return &Peripheral{
		config: config,
		dma:    sinks.NewDMABuffer(config.PeriodFrames, config.Periods),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Factory returns an audiocore.PeripheralFactory creating one peripheral per session
func Factory(config Config) audiocore.PeripheralFactory {
	return func() (audiocore.Peripheral, error) {
		return New(config), nil
	}
}

// Configure sizes the buffers and starts the playback clock
func (p *Peripheral) Configure(cfg audiocore.OutputConfig) error {
	if cfg.SampleRate <= 0 || cfg.FrameBytes() <= 0 {
		return errors.New(nil).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Context("sample_rate", cfg.SampleRate).
			Context("channels", cfg.Channels).
			Context("error", "invalid output configuration").
			Build()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return errors.New(nil).
			Component("audiocore").
			Category(errors.CategoryState).
			Context("error", "virtual peripheral already configured").
			Build()
	}

	p.dma.Configure(cfg)
	period := time.Duration(float64(p.dma.PeriodFrames()) / float64(cfg.SampleRate) / p.config.Speed * float64(time.Second))
	period = max(period, time.Microsecond)

	p.started = true
	go p.clock(period, make([]byte, p.dma.PeriodBytes()))
	return nil
}

func (p *Peripheral) clock(period time.Duration, buf []byte) {
	defer close(p.done)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.dma.Drain(buf)
			if p.config.Capture != nil {
				_, _ = p.config.Capture.Write(buf)
			}
		}
	}
}

// Write queues PCM bytes without blocking
func (p *Peripheral) Write(b []byte) (int, error) { return p.dma.Write(b) }

// Consumed signals once per played period
func (p *Peripheral) Consumed() <-chan struct{} { return p.dma.Consumed() }

// ZeroFill drops queued audio
func (p *Peripheral) ZeroFill() error {
	p.dma.ZeroFill()
	return nil
}

// Underruns returns the number of periods padded with silence
func (p *Peripheral) Underruns() int64 { return p.dma.Underruns() }

// BytesPlayed returns the total bytes played, silence included
func (p *Peripheral) BytesPlayed() int64 { return p.dma.BytesDrained() }

// Close stops the clock and waits for it. It is idempotent.
func (p *Peripheral) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	started := p.started
	close(p.stop)
	p.mu.Unlock()

	if started {
		<-p.done
	}
	return nil
}
