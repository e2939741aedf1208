// Package upload accumulates chunked audio uploads in memory and hands the
// bytes to the playback controller as an audiocore.UploadBuffer.
package upload

import (
	"log/slog"
	"sync"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/Tenemo/bob/internal/audiocore"
	"github.com/Tenemo/bob/internal/errors"
	"github.com/Tenemo/bob/internal/logging"
)

// DefaultMaxSize is the largest upload accepted when no limit is configured
const DefaultMaxSize = 10 * 1024 * 1024

// progressStep is the share of the upload between progress log lines, in percent
const progressStep = 20

var (
	// ErrLengthRequired is returned when the declared content length is zero or missing
	ErrLengthRequired = errors.New(nil).
		Component("upload").
		Category(errors.CategoryValidation).
		Context("error", "content length is zero").
		Build()

	// ErrTooLarge is returned when the declared length or the received bytes exceed the limit
	ErrTooLarge = errors.New(nil).
		Component("upload").
		Category(errors.CategoryLimit).
		Context("error", "file too large").
		Build()

	// ErrInsufficientMemory is returned when the upload cannot be buffered in memory
	ErrInsufficientMemory = errors.New(nil).
		Component("upload").
		Category(errors.CategoryResource).
		Context("error", "insufficient memory for upload").
		Build()

	// ErrIncomplete is returned by Finish when fewer bytes arrived than declared,
	// and by Write once an upload is finished or aborted
	ErrIncomplete = errors.New(nil).
		Component("upload").
		Category(errors.CategoryState).
		Context("error", "upload incomplete").
		Build()
)

// Recorder receives the outcome of every upload
type Recorder interface {
	RecordUpload(status string, bytes int)
}

// Option configures a Handler
type Option func(*Handler)

// WithMemoryCheck replaces the available-memory probe
func WithMemoryCheck(available func() (uint64, error)) Option {
	return func(h *Handler) {
		if available != nil {
			h.memAvailable = available
		}
	}
}

// WithRecorder sets the upload metrics recorder
func WithRecorder(r Recorder) Option {
	return func(h *Handler) {
		h.recorder = r
	}
}

// WithLogger sets the handler logger
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// Handler validates and starts uploads
type Handler struct {
	maxSize      int64
	memAvailable func() (uint64, error)
	recorder     Recorder
	logger       *slog.Logger
}

// NewHandler creates a handler accepting uploads up to maxSize bytes
func NewHandler(maxSize int64, opts ...Option) *Handler {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	h := &Handler{
		maxSize:      maxSize,
		memAvailable: availableMemory,
		logger:       logging.ForService("upload"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// MaxSize returns the upload limit in bytes
func (h *Handler) MaxSize() int64 { return h.maxSize }

// Begin checks the declared length against the limit and available memory and
// reserves the buffer for it
func (h *Handler) Begin(contentLength int64) (*Upload, error) {
	if contentLength <= 0 {
		h.record("rejected", 0)
		return nil, ErrLengthRequired
	}

	if contentLength > h.maxSize {
		h.record("rejected", 0)
		h.logger.Warn("upload rejected: file too large",
			"size_kb", contentLength/1024,
			"max_kb", h.maxSize/1024)
		return nil, errors.New(ErrTooLarge).
			Context("content_length", contentLength).
			Context("max_size", h.maxSize).
			Build()
	}

	available, err := h.memAvailable()
	if err != nil {
		h.logger.Debug("memory probe failed, skipping check", "error", err)
	} else if uint64(contentLength) > available {
		h.record("rejected", 0)
		h.logger.Warn("upload rejected: insufficient memory",
			"size_kb", contentLength/1024,
			"available_kb", available/1024)
		return nil, errors.New(ErrInsufficientMemory).
			Context("content_length", contentLength).
			Context("available_bytes", available).
			Build()
	}

	return &Upload{
		handler:  h,
		expected: contentLength,
		buf:      make([]byte, 0, contentLength),
		next:     progressStep,
	}, nil
}

func (h *Handler) record(status string, bytes int) {
	if h.recorder != nil {
		h.recorder.RecordUpload(status, bytes)
	}
}

// Upload accumulates one upload. It implements io.Writer.
type Upload struct {
	handler  *Handler
	mu       sync.Mutex
	expected int64
	buf      []byte
	next     int // next progress milestone in percent
	done     bool
}

// Write appends a chunk. Bytes beyond the declared length fail with ErrTooLarge
// and leave the upload unchanged.
func (u *Upload) Write(p []byte) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.done {
		return 0, ErrIncomplete
	}
	if int64(len(u.buf)+len(p)) > u.expected {
		return 0, errors.New(ErrTooLarge).
			Context("content_length", u.expected).
			Context("received", len(u.buf)+len(p)).
			Build()
	}

	u.buf = append(u.buf, p...)
	u.logProgress()
	return len(p), nil
}

// logProgress logs once per crossed milestone
func (u *Upload) logProgress() {
	percent := int(int64(len(u.buf)) * 100 / u.expected)
	for u.next <= 100 && percent >= u.next {
		u.handler.logger.Info("upload progress",
			"percent", u.next,
			"received_kb", len(u.buf)/1024,
			"total_kb", u.expected/1024)
		u.next += progressStep
	}
}

// Received returns the number of bytes accumulated so far
func (u *Upload) Received() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return int64(len(u.buf))
}

// Finish hands the accumulated bytes off as an UploadBuffer. The upload keeps
// no reference to them afterwards.
func (u *Upload) Finish() (*audiocore.UploadBuffer, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.done {
		return nil, ErrIncomplete
	}
	if int64(len(u.buf)) != u.expected {
		u.handler.record("incomplete", len(u.buf))
		return nil, errors.New(ErrIncomplete).
			Context("content_length", u.expected).
			Context("received", len(u.buf)).
			Build()
	}

	u.done = true
	data := u.buf
	u.buf = nil
	u.handler.record("success", len(data))
	u.handler.logger.Info("upload complete", "size_kb", len(data)/1024)
	return audiocore.NewUploadBuffer(data), nil
}

// Persist passes the complete upload to save before it is handed off. save must
// not retain the slice.
func (u *Upload) Persist(save func(data []byte) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.done || int64(len(u.buf)) != u.expected {
		return errors.New(ErrIncomplete).
			Context("content_length", u.expected).
			Context("received", len(u.buf)).
			Context("operation", "persist").
			Build()
	}
	return save(u.buf)
}

// Abort drops the accumulated bytes
func (u *Upload) Abort() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.done {
		return
	}
	u.done = true
	u.handler.record("aborted", len(u.buf))
	u.buf = nil
}

func availableMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}
