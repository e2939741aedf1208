package httpcontroller

import (
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Tenemo/bob/internal/audiocore"
	"github.com/Tenemo/bob/internal/datastore"
	"github.com/Tenemo/bob/internal/errors"
	"github.com/Tenemo/bob/internal/storage"
	"github.com/Tenemo/bob/internal/upload"
)

// multipartOverhead is the room allowed for multipart boundaries and part headers
const multipartOverhead = 64 * 1024

// maxHistoryLimit caps the limit query parameter of /audio/history
const maxHistoryLimit = 1000

// HealthResponse is returned by /health-check
type HealthResponse struct {
	Status string `json:"status"`
}

// FileListResponse is returned by /file-list
type FileListResponse struct {
	Files []storage.FileInfo `json:"files"`
}

// UploadResponse is returned by a successful upload
type UploadResponse struct {
	Status string `json:"status"`
	Size   int    `json:"size"`
	Name   string `json:"name,omitempty"` // storage name when the upload was persisted
}

// PlayRequest is the body of /audio/play
type PlayRequest struct {
	Path string `json:"path"`
}

// HistoryResponse is returned by /audio/history
type HistoryResponse struct {
	Sessions []datastore.PlaybackRecord `json:"sessions"`
}

// HealthCheck handles GET /health-check
func (s *Server) HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "OK"})
}

// FileList handles GET /file-list
func (s *Server) FileList(c echo.Context) error {
	if s.config.Store == nil {
		return newHandlerError(nil, "storage not configured", http.StatusServiceUnavailable)
	}
	files, err := s.config.Store.List()
	if err != nil {
		return err
	}
	if files == nil {
		files = []storage.FileInfo{}
	}
	return c.JSON(http.StatusOK, FileListResponse{Files: files})
}

// UploadAudio handles POST /audio. The body is either the raw container or a
// multipart form with a "file" field. The complete upload replaces the live session.
func (s *Server) UploadAudio(c echo.Context) error {
	req := c.Request()

	var body io.Reader = req.Body
	length := req.ContentLength
	if strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		if req.ContentLength > s.config.Uploads.MaxSize()+multipartOverhead {
			return newHandlerError(upload.ErrTooLarge, upload.ErrTooLarge.Error(), http.StatusRequestEntityTooLarge)
		}
		file, size, err := formFile(c)
		if err != nil {
			return newHandlerError(err, "missing file field", http.StatusBadRequest)
		}
		defer func() { _ = file.Close() }()
		body, length = file, size
	}

	u, err := s.config.Uploads.Begin(length)
	if err != nil {
		return uploadError(err)
	}
	if _, err := io.Copy(u, body); err != nil {
		u.Abort()
		return uploadError(err)
	}

	var persisted string
	if s.config.PersistUpload && s.config.Store != nil {
		if err := u.Persist(func(data []byte) error {
			return s.config.Store.Save(s.config.UploadPath, data)
		}); err != nil {
			u.Abort()
			return err
		}
		persisted = s.config.UploadPath
	}

	buf, err := u.Finish()
	if err != nil {
		u.Abort()
		return uploadError(err)
	}

	size := buf.Len()
	if err := s.config.Player.StartBuffer(buf); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, UploadResponse{Status: "Upload successful", Size: size, Name: persisted})
}

func formFile(c echo.Context) (multipart.File, int64, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, 0, err
	}
	f, err := fh.Open()
	if err != nil {
		return nil, 0, err
	}
	return f, fh.Size, nil
}

// uploadError maps upload failures to their status codes
func uploadError(err error) error {
	code := http.StatusBadRequest
	switch {
	case errors.Is(err, upload.ErrTooLarge):
		code = http.StatusRequestEntityTooLarge
	case errors.Is(err, upload.ErrInsufficientMemory):
		code = http.StatusInsufficientStorage
	case errors.Is(err, upload.ErrLengthRequired):
		code = http.StatusLengthRequired
	}
	return newHandlerError(err, err.Error(), code)
}

// Play handles POST /audio/play
func (s *Server) Play(c echo.Context) error {
	var req PlayRequest
	if err := c.Bind(&req); err != nil {
		return newHandlerError(err, "invalid request body", http.StatusBadRequest)
	}
	if req.Path == "" {
		return newHandlerError(audiocore.ErrInvalidRequest, "path is required", http.StatusBadRequest)
	}
	if !strings.HasPrefix(req.Path, "/") {
		req.Path = "/" + req.Path
	}

	if err := s.config.Player.StartFile(req.Path); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.config.Player.Status())
}

// Stop handles POST /audio/stop. It succeeds when nothing is playing.
func (s *Server) Stop(c echo.Context) error {
	s.config.Player.Stop()
	return c.JSON(http.StatusOK, s.config.Player.Status())
}

// Status handles GET /audio/status
func (s *Server) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, s.config.Player.Status())
}

// History handles GET /audio/history?limit=N
func (s *Server) History(c echo.Context) error {
	if s.config.History == nil {
		return newHandlerError(nil, "playback history disabled", http.StatusNotFound)
	}

	limit := s.config.HistoryLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return newHandlerError(err, "limit must be a positive integer", http.StatusBadRequest)
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := s.config.History.Recent(limit)
	if err != nil {
		return err
	}
	if records == nil {
		records = []datastore.PlaybackRecord{}
	}
	return c.JSON(http.StatusOK, HistoryResponse{Sessions: records})
}
