// internal/httpcontroller/server.go
package httpcontroller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Tenemo/bob/internal/audiocore"
	"github.com/Tenemo/bob/internal/datastore"
	"github.com/Tenemo/bob/internal/errors"
	"github.com/Tenemo/bob/internal/logging"
	"github.com/Tenemo/bob/internal/observability"
	"github.com/Tenemo/bob/internal/storage"
	"github.com/Tenemo/bob/internal/upload"
)

const shutdownTimeout = 5 * time.Second

// Player is the playback controller surface used by the handlers
type Player interface {
	StartFile(path string) error
	StartBuffer(buf *audiocore.UploadBuffer) error
	Stop()
	Status() audiocore.Status
}

// FileStore lists and persists audio files
type FileStore interface {
	List() ([]storage.FileInfo, error)
	Save(name string, data []byte) error
}

// HistoryReader returns recent playback sessions
type HistoryReader interface {
	Recent(limit int) ([]datastore.PlaybackRecord, error)
}

// Config holds the server dependencies. History and Metrics may be nil.
type Config struct {
	Listen        string
	Player        Player
	Store         FileStore
	Uploads       *upload.Handler
	History       HistoryReader
	HistoryLimit  int
	Metrics       *observability.Metrics
	PersistUpload bool   // also save uploads to storage
	UploadPath    string // storage name for persisted uploads
	Logger        *slog.Logger
}

// Server encapsulates the Echo server and the playback surface it exposes.
type Server struct {
	Echo   *echo.Echo
	config Config
	logger *slog.Logger
}

// New initializes a new HTTP server.
func New(config Config) *Server {
	if config.Uploads == nil {
		config.Uploads = upload.NewHandler(upload.DefaultMaxSize)
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = 50
	}
	if config.UploadPath == "" {
		config.UploadPath = "/uploaded_audio.wav"
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.ForService("http")
	}

	s := &Server{
		Echo:   echo.New(),
		config: config,
		logger: logger,
	}
	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.Echo.HTTPErrorHandler = s.handleError

	s.configureMiddleware()
	s.initRoutes()
	return s
}

// ServeHTTP lets the server be driven directly by tests and other muxes
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Echo.ServeHTTP(w, r)
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Echo.Start(s.config.Listen)
	}()
	s.logger.Info("HTTP server started", "listen", s.config.Listen)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.New(err).
			Component("http").
			Category(errors.CategoryNetwork).
			Context("listen", s.config.Listen).
			Context("operation", "listen").
			Build()
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Echo.Shutdown(shutdownCtx); err != nil {
		return errors.New(err).
			Component("http").
			Category(errors.CategoryTimeout).
			Context("operation", "shutdown").
			Build()
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// initRoutes registers every endpoint
func (s *Server) initRoutes() {
	s.Echo.GET("/health-check", s.HealthCheck)
	s.Echo.GET("/file-list", s.FileList)

	audio := s.Echo.Group("/audio")
	audio.POST("", s.UploadAudio)
	audio.POST("/play", s.Play)
	audio.POST("/stop", s.Stop)
	audio.GET("/status", s.Status)
	audio.GET("/history", s.History)

	if s.config.Metrics != nil {
		s.Echo.GET("/metrics", echo.WrapHandler(s.config.Metrics.Handler()))
	}
}
