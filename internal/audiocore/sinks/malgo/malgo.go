// Package malgo provides a malgo-based soundcard playback peripheral
package malgo

import (
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/Tenemo/bob/internal/audiocore"
	"github.com/Tenemo/bob/internal/audiocore/sinks"
	"github.com/Tenemo/bob/internal/errors"
	"github.com/Tenemo/bob/internal/logging"
)

// Config selects the playback device and its buffer geometry
type Config struct {
	DeviceName   string // "default", a device name or a decoded device ID
	PeriodFrames int    // frames per DMA buffer, default 1024
	Periods      int    // number of DMA buffers, default 4
}

// Peripheral plays PCM through a malgo playback device. It implements
// audiocore.Peripheral; the device callback drains one DMA period per call.
type Peripheral struct {
	config Config
	dma    *sinks.DMABuffer
	logger *slog.Logger

	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	closed bool
}

// New creates an unconfigured playback peripheral
func New(config Config) *Peripheral {
	logger := logging.ForService("audiocore").With("component", "malgo_sink")
	return &Peripheral{
		config: config,
		dma:    sinks.NewDMABuffer(config.PeriodFrames, config.Periods),
		logger: logger,
	}
}

// Factory returns an audiocore.PeripheralFactory creating one peripheral per session
func Factory(config Config) audiocore.PeripheralFactory {
	return func() (audiocore.Peripheral, error) {
		return New(config), nil
	}
}

// Configure opens the playback device for cfg and starts it
func (p *Peripheral) Configure(cfg audiocore.OutputConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.device != nil {
		return errors.New(nil).
			Component("audiocore").
			Category(errors.CategoryState).
			Context("error", "playback device already configured").
			Build()
	}

	p.dma.Configure(cfg)

	backend, err := getBackendForPlatform()
	if err != nil {
		return err
	}
	malgoCtx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, func(message string) {
		p.logger.Debug("malgo", "message", strings.TrimSpace(message))
	})
	if err != nil {
		return errors.New(err).
			Component("audiocore").
			Category(errors.CategoryAudioOutput).
			Context("backend", runtime.GOOS).
			Context("operation", "init_context").
			Build()
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(p.dma.PeriodFrames())
	deviceConfig.Periods = uint32(p.dma.Periods())
	deviceConfig.Alsa.NoMMap = 1

	if p.config.DeviceName != "" && p.config.DeviceName != "default" {
		infos, err := malgoCtx.Devices(malgo.Playback)
		if err != nil {
			_ = malgoCtx.Uninit()
			malgoCtx.Free()
			return errors.New(err).
				Component("audiocore").
				Category(errors.CategoryAudioOutput).
				Context("operation", "enumerate_devices").
				Build()
		}
		info, err := SelectDevice(infos, p.config.DeviceName)
		if err != nil {
			_ = malgoCtx.Uninit()
			malgoCtx.Free()
			return err
		}
		deviceConfig.Playback.DeviceID = info.ID.Pointer()
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: p.onSamples,
		Stop: p.onDeviceStop,
	})
	if err != nil {
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
		return errors.New(err).
			Component("audiocore").
			Category(errors.CategoryAudioOutput).
			Context("device_name", p.config.DeviceName).
			Context("sample_rate", cfg.SampleRate).
			Context("operation", "init_device").
			Build()
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
		return errors.New(err).
			Component("audiocore").
			Category(errors.CategoryAudioOutput).
			Context("operation", "start_device").
			Build()
	}

	p.ctx = malgoCtx
	p.device = device
	p.logger.Info("playback device started",
		"device", p.config.DeviceName,
		"sample_rate", cfg.SampleRate,
		"period_frames", p.dma.PeriodFrames(),
		"periods", p.dma.Periods())
	return nil
}

// Write queues PCM bytes without blocking
func (p *Peripheral) Write(b []byte) (int, error) { return p.dma.Write(b) }

// Consumed signals each time the device has taken one period
func (p *Peripheral) Consumed() <-chan struct{} { return p.dma.Consumed() }

// ZeroFill drops queued audio so the device plays silence
func (p *Peripheral) ZeroFill() error {
	p.dma.ZeroFill()
	return nil
}

// Underruns returns the number of device callbacks that had to be padded
func (p *Peripheral) Underruns() int64 { return p.dma.Underruns() }

// Close stops the device and releases the malgo context. It is idempotent.
func (p *Peripheral) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.device != nil {
		_ = p.device.Stop()
		p.device.Uninit()
		p.device = nil
	}
	var err error
	if p.ctx != nil {
		err = p.ctx.Uninit()
		p.ctx.Free()
		p.ctx = nil
	}
	if underruns := p.dma.Underruns(); underruns > 0 {
		p.logger.Debug("playback device closed", "underruns", underruns)
	}
	if err != nil {
		return errors.New(err).
			Component("audiocore").
			Category(errors.CategoryAudioOutput).
			Context("operation", "uninit_context").
			Build()
	}
	return nil
}

// onSamples is called by malgo when the device needs more output
func (p *Peripheral) onSamples(pOutput, _ []byte, _ uint32) {
	p.dma.Drain(pOutput)
}

// onDeviceStop is called when the device stops, including unexpectedly
func (p *Peripheral) onDeviceStop() {
	p.logger.Debug("playback device stopped")
}

// getBackendForPlatform returns the appropriate malgo backend for the current platform
func getBackendForPlatform() (malgo.Backend, error) {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, errors.New(nil).
			Component("audiocore").
			Category(errors.CategoryAudioOutput).
			Context("error", "unsupported operating system").
			Context("os", runtime.GOOS).
			Build()
	}
}
