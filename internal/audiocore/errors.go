package audiocore

import (
	"github.com/Tenemo/bob/internal/errors"
)

// Component identifier for audiocore errors
const ComponentAudioCore = "audiocore"

var (
	// ErrBufferUnavailable is returned when an upload buffer is nil or already handed off
	ErrBufferUnavailable = errors.New(nil).
		Component(ComponentAudioCore).
		Category(errors.CategoryBuffer).
		Context("error", "audio buffer unavailable").
		Build()

	// ErrPeripheral is returned when the output peripheral cannot be created or configured
	ErrPeripheral = errors.New(nil).
		Component(ComponentAudioCore).
		Category(errors.CategoryAudioOutput).
		Context("error", "audio output peripheral failure").
		Build()

	// ErrInvalidRequest is returned when a playback request names neither a path nor a buffer
	ErrInvalidRequest = errors.New(nil).
		Component(ComponentAudioCore).
		Category(errors.CategoryValidation).
		Context("error", "playback request has no source").
		Build()

	// ErrInvalidFormat is returned by ProbeHeader for data that is not a RIFF/WAVE container
	ErrInvalidFormat = errors.New(nil).
		Component(ComponentAudioCore).
		Category(errors.CategoryFileParsing).
		Context("error", "not a RIFF/WAVE container").
		Build()
)
