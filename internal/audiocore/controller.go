package audiocore

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Tenemo/bob/internal/errors"
	"github.com/Tenemo/bob/internal/logging"
)

// ControllerConfig holds the controller settings
type ControllerConfig struct {
	Storage      Storage           // named storage for file requests
	Factory      PeripheralFactory // called once per session
	BatchFrames  int               // frames per engine refill, default 512
	KeepWarm     bool              // keep emitting silence after the source completes
	StrictFormat bool              // treat bit depths other than 16 as unplayable
	Recorder     Recorder
	Logger       *slog.Logger
	Observers    []SessionObserver
}

// Status is a snapshot of the controller
type Status struct {
	State   string       `json:"state"`
	Playing bool         `json:"playing"`
	Session *SessionInfo `json:"session,omitempty"`
}

type session struct {
	info   SessionInfo
	src    AudioSource
	engine *Engine
}

// Controller owns the single playback session. All methods are safe for concurrent use.
type Controller struct {
	cfg       ControllerConfig
	recorder  Recorder
	logger    *slog.Logger
	mu        sync.Mutex
	state     atomic.Int32
	session   *session
	obsMu     sync.RWMutex
	observers []SessionObserver
}

// NewController creates an idle controller
func NewController(cfg ControllerConfig) *Controller {
	if cfg.BatchFrames <= 0 {
		cfg.BatchFrames = DefaultBatchFrames
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.ForService(ComponentAudioCore)
	}

	var recorder Recorder = nopRecorder{}
	if cfg.Recorder != nil {
		recorder = cfg.Recorder
	}

	return &Controller{
		cfg:       cfg,
		recorder:  recorder,
		logger:    logger.With("component", "controller"),
		observers: append([]SessionObserver(nil), cfg.Observers...),
	}
}

// AddObserver registers an observer for session start and end
func (c *Controller) AddObserver(o SessionObserver) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.observers = append(c.observers, o)
}

// State returns the current controller state
func (c *Controller) State() State {
	return State(c.state.Load())
}

// IsPlaying reports whether a session is live
func (c *Controller) IsPlaying() bool {
	return c.State() == StatePlaying
}

// StartFile plays the named file from storage
func (c *Controller) StartFile(path string) error {
	return c.Start(Request{Path: path})
}

// StartBuffer plays an uploaded buffer, taking ownership of its bytes on success
func (c *Controller) StartBuffer(buf *UploadBuffer) error {
	if buf == nil {
		return c.bufferError(nil)
	}
	return c.Start(Request{Buffer: buf})
}

// Start replaces any live session with one playing req. A buffer request whose
// bytes are unavailable fails before the live session is touched.
func (c *Controller) Start(req Request) error {
	if req.Buffer == nil && req.Path == "" {
		return ErrInvalidRequest
	}
	if req.Buffer != nil && !req.Buffer.Available() {
		return c.bufferError(req.Buffer)
	}

	c.mu.Lock()
	var ended *SessionInfo
	if c.session != nil {
		c.logger.Info("playback already in progress, replacing",
			"session_id", c.session.info.ID,
			"source", c.session.info.Source)
		ended = c.teardownLocked(ReasonReplaced)
	}
	started, err := c.startLocked(req)
	c.mu.Unlock()

	if ended != nil {
		c.notifyEnded(*ended)
	}
	if err != nil {
		c.recorder.RecordOperation("session_start", "error")
		return err
	}
	c.recorder.RecordOperation("session_start", "success")
	c.notifyStarted(started)
	return nil
}

// Stop ends the live session. It is a no-op when idle.
func (c *Controller) Stop() {
	c.mu.Lock()
	var ended *SessionInfo
	if c.session != nil {
		ended = c.teardownLocked(ReasonStopped)
	}
	c.mu.Unlock()

	if ended != nil {
		c.notifyEnded(*ended)
	}
}

// Status returns a snapshot of the controller and its live session
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{State: c.State().String(), Playing: c.IsPlaying()}
	if c.session != nil {
		info := c.session.info
		info.Complete = c.session.src.IsComplete()
		st.Session = &info
	}
	return st
}

func (c *Controller) startLocked(req Request) (SessionInfo, error) {
	c.setState(StateStarting)

	running := new(atomic.Bool)
	srcOpts := []SourceOption{
		WithGate(running),
		WithStrictFormat(c.cfg.StrictFormat),
		WithSourceLogger(c.logger),
	}

	info := SessionInfo{ID: uuid.NewString(), StartedAt: time.Now()}

	var src AudioSource
	if req.Buffer != nil {
		ms, err := NewMemorySource(req.Buffer, srcOpts...)
		if err != nil {
			c.setState(StateIdle)
			return info, c.bufferError(req.Buffer)
		}
		info.Kind, info.Source, info.Channels = KindMemory, KindMemory, ms.Channels()
		src = ms
	} else {
		fsrc := NewFileSource(c.cfg.Storage, req.Path, srcOpts...)
		info.Kind, info.Source, info.Channels = KindFile, req.Path, fsrc.Channels()
		src = fsrc
	}
	info.SampleRate = src.SampleRate()

	out, err := c.newPeripheral()
	if err != nil {
		c.abortStart(src)
		return info, err
	}

	engine, err := NewEngine(src, out,
		WithBatchFrames(c.cfg.BatchFrames),
		WithKeepWarm(c.cfg.KeepWarm),
		WithRecorder(c.recorder),
		WithLogger(c.logger),
		WithRunningFlag(running))
	if err != nil {
		c.logger.Error("failed to configure audio output", "error", err, "source", info.Source)
		c.abortStart(src)
		return info, err
	}
	engine.Start()

	c.session = &session{info: info, src: src, engine: engine}
	c.setState(StatePlaying)
	c.logger.Info("playing audio",
		"session_id", info.ID,
		"source", info.Source,
		"sample_rate", info.SampleRate,
		"channels", info.Channels)
	return info, nil
}

func (c *Controller) newPeripheral() (Peripheral, error) {
	if c.cfg.Factory == nil {
		return nil, errors.New(ErrPeripheral).
			Context("operation", "create_peripheral").
			Context("reason", "no peripheral factory").
			Build()
	}
	out, err := c.cfg.Factory()
	if err != nil {
		c.logger.Error("failed to create audio output", "error", err)
		return nil, errors.New(err).
			Component(ComponentAudioCore).
			Category(errors.CategoryAudioOutput).
			Context("operation", "create_peripheral").
			Build()
	}
	return out, nil
}

func (c *Controller) abortStart(src AudioSource) {
	if err := src.Close(); err != nil {
		c.logger.Warn("failed to close source", "error", err)
	}
	c.setState(StateIdle)
}

// teardownLocked stops the engine before closing the source it reads from
func (c *Controller) teardownLocked(reason string) *SessionInfo {
	s := c.session
	c.setState(StateStopping)

	if err := s.engine.Stop(); err != nil {
		c.logger.Warn("failed to stop engine", "session_id", s.info.ID, "error", err)
	}
	complete := s.src.IsComplete()
	if err := s.src.Close(); err != nil {
		c.logger.Warn("failed to close source", "session_id", s.info.ID, "error", err)
	}
	c.session = nil
	c.setState(StateIdle)

	info := s.info
	info.EndedAt = time.Now()
	info.Complete = complete
	info.Reason = reason
	c.recorder.RecordDuration("session", info.EndedAt.Sub(info.StartedAt).Seconds())
	c.logger.Info("playback stopped",
		"session_id", info.ID,
		"reason", reason,
		"frames_pulled", s.engine.FramesPulled())
	return &info
}

func (c *Controller) bufferError(buf *UploadBuffer) error {
	c.recorder.RecordError("session_start", "buffer_unavailable")
	return errors.New(ErrBufferUnavailable).
		Context("operation", "start_buffer").
		Context("buffer_nil", buf == nil).
		Build()
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
}

func (c *Controller) snapshotObservers() []SessionObserver {
	c.obsMu.RLock()
	defer c.obsMu.RUnlock()
	return append([]SessionObserver(nil), c.observers...)
}

func (c *Controller) notifyStarted(info SessionInfo) {
	for _, o := range c.snapshotObservers() {
		o.SessionStarted(info)
	}
}

func (c *Controller) notifyEnded(info SessionInfo) {
	for _, o := range c.snapshotObservers() {
		o.SessionEnded(info)
	}
}
