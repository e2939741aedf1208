// Package storage provides the sandboxed named storage audio files are played from.
//
// A Store is rooted at one directory through os.Root, so names can never escape it,
// including via symlinks or "../" components. Names may carry a leading "/" the way
// device paths do ("/silence.wav"); it is stripped before use.
package storage

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/Tenemo/bob/internal/audiocore"
	"github.com/Tenemo/bob/internal/errors"
	"github.com/Tenemo/bob/internal/logging"
)

const (
	headerCacheTTL     = 10 * time.Minute
	headerCacheCleanup = 20 * time.Minute
)

// FileInfo is one entry of the storage listing
type FileInfo struct {
	Name              string  `json:"name"`
	Size              int64   `json:"size"`
	HumanReadableSize string  `json:"humanReadableSize"`
	IsDirectory       bool    `json:"isDirectory"`
	SampleRate        int     `json:"sampleRate,omitempty"`
	Channels          int     `json:"channels,omitempty"`
	BitDepth          int     `json:"bitDepth,omitempty"`
	DurationSeconds   float64 `json:"durationSeconds,omitempty"`
}

// Store is a directory-limited file store
type Store struct {
	baseDir string
	root    *os.Root
	headers *cache.Cache
	logger  *slog.Logger

	// freeSpace reports available bytes on the volume holding baseDir
	freeSpace func(path string) (uint64, error)
}

// New opens a store rooted at baseDir, creating the directory if needed
func New(baseDir string) (*Store, error) {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, errors.New(err).
			Component("storage").
			Category(errors.CategoryFileIO).
			Context("base_dir", baseDir).
			Context("operation", "resolve_base_path").
			Build()
	}

	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return nil, errors.New(err).
			Component("storage").
			Category(errors.CategoryFileIO).
			Context("base_dir", absPath).
			Context("operation", "create_base_dir").
			Build()
	}

	root, err := os.OpenRoot(absPath)
	if err != nil {
		return nil, errors.New(err).
			Component("storage").
			Category(errors.CategoryFileIO).
			Context("base_dir", absPath).
			Context("operation", "open_root").
			Build()
	}

	return &Store{
		baseDir:   absPath,
		root:      root,
		headers:   cache.New(headerCacheTTL, headerCacheCleanup),
		logger:    logging.ForService("storage"),
		freeSpace: diskFree,
	}, nil
}

// BaseDir returns the absolute directory the store is rooted at
func (s *Store) BaseDir() string { return s.baseDir }

// FS returns the store as an fs.FS for audio sources
func (s *Store) FS() fs.FS { return s.root.FS() }

// Open opens a named file for reading
func (s *Store) Open(name string) (fs.File, error) {
	rel, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	f, err := s.root.Open(rel)
	if err != nil {
		return nil, notFoundOrIO(err, name, "open")
	}
	return f, nil
}

// Exists reports whether name refers to an existing file
func (s *Store) Exists(name string) bool {
	rel, err := cleanName(name)
	if err != nil {
		return false
	}
	_, err = s.root.Stat(rel)
	return err == nil
}

// List returns the top-level entries sorted by name. WAV files carry their
// header details when the header can be decoded.
func (s *Store) List() ([]FileInfo, error) {
	entries, err := fs.ReadDir(s.root.FS(), ".")
	if err != nil {
		return nil, errors.New(err).
			Component("storage").
			Category(errors.CategoryFileIO).
			Context("operation", "list").
			Build()
	}

	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		fi := FileInfo{
			Name:              "/" + entry.Name(),
			Size:              info.Size(),
			HumanReadableSize: HumanSize(info.Size()),
			IsDirectory:       entry.IsDir(),
		}
		if !entry.IsDir() && strings.EqualFold(filepath.Ext(entry.Name()), ".wav") {
			s.describe(&fi, entry.Name(), info)
		}
		files = append(files, fi)
	}

	slices.SortFunc(files, func(a, b FileInfo) int { return strings.Compare(a.Name, b.Name) })
	return files, nil
}

// describe fills in the header details of a WAV file, cached per name, size and mtime
func (s *Store) describe(fi *FileInfo, name string, info fs.FileInfo) {
	key := fmt.Sprintf("%s:%d:%d", name, info.Size(), info.ModTime().UnixNano())
	if cached, ok := s.headers.Get(key); ok {
		if h, ok := cached.(audiocore.ContainerHeader); ok {
			applyHeader(fi, h)
		}
		return
	}

	f, err := s.root.Open(name)
	if err != nil {
		return
	}
	defer f.Close()

	h, err := audiocore.ProbeHeader(f)
	if err != nil {
		s.logger.Debug("skipping header details", "name", name, "error", err)
		return
	}
	s.headers.Set(key, h, cache.DefaultExpiration)
	applyHeader(fi, h)
}

func applyHeader(fi *FileInfo, h audiocore.ContainerHeader) {
	fi.SampleRate = int(h.SampleRate)
	fi.Channels = int(h.NumChannels)
	fi.BitDepth = int(h.BitDepth)
	fi.DurationSeconds = h.Duration().Seconds()
}

// Save replaces name with data. The bytes land in a temporary file first and are
// renamed into place, so a failed write leaves the previous file intact.
func (s *Store) Save(name string, data []byte) error {
	rel, err := cleanName(name)
	if err != nil {
		return err
	}

	if free, err := s.freeSpace(s.baseDir); err == nil && uint64(len(data)) > free {
		return errors.New(nil).
			Component("storage").
			Category(errors.CategorySystem).
			Context("name", name).
			Context("required_bytes", len(data)).
			Context("free_bytes", free).
			Context("error", "insufficient storage space").
			Build()
	}

	tmp := rel + ".part"
	f, err := s.root.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return notFoundOrIO(err, name, "create")
	}

	n, err := f.Write(data)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil && n != len(data) {
		err = io.ErrShortWrite
	}
	if err != nil {
		_ = s.root.Remove(tmp)
		return errors.New(err).
			Component("storage").
			Category(errors.CategoryFileIO).
			Context("name", name).
			Context("bytes_written", n).
			Context("operation", "write").
			Build()
	}

	if err := s.root.Rename(tmp, rel); err != nil {
		_ = s.root.Remove(tmp)
		return notFoundOrIO(err, name, "rename")
	}

	s.logger.Info("file saved", "name", name, "size", HumanSize(int64(len(data))))
	return nil
}

// Remove deletes name
func (s *Store) Remove(name string) error {
	rel, err := cleanName(name)
	if err != nil {
		return err
	}
	if err := s.root.Remove(rel); err != nil {
		return notFoundOrIO(err, name, "remove")
	}
	return nil
}

// Close releases the root handle and flushes the header cache
func (s *Store) Close() error {
	s.headers.Flush()
	return s.root.Close()
}

// cleanName strips a leading "/" and rejects names that are not valid fs paths
func cleanName(name string) (string, error) {
	rel := strings.TrimLeft(name, "/")
	if rel == "" || !fs.ValidPath(rel) {
		return "", errors.New(nil).
			Component("storage").
			Category(errors.CategoryValidation).
			Context("name", name).
			Context("error", "invalid file name").
			Build()
	}
	return rel, nil
}

func notFoundOrIO(err error, name, operation string) error {
	category := errors.CategoryFileIO
	if errors.Is(err, fs.ErrNotExist) {
		category = errors.CategoryNotFound
	}
	return errors.New(err).
		Component("storage").
		Category(category).
		Context("name", name).
		Context("operation", operation).
		Build()
}

func diskFree(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// HumanSize formats a byte count as B, KB, MB or GB with one decimal
func HumanSize(bytes int64) string {
	const unit = 1024
	switch {
	case bytes < unit:
		return fmt.Sprintf("%d B", bytes)
	case bytes < unit*unit:
		return fmt.Sprintf("%.1f KB", float64(bytes)/unit)
	case bytes < unit*unit*unit:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(unit*unit))
	default:
		return fmt.Sprintf("%.1f GB", float64(bytes)/(unit*unit*unit))
	}
}
