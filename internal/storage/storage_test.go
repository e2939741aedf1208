package storage

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tenemo/bob/internal/audiocore"
	"github.com/Tenemo/bob/internal/errors"
)

func wavHeader(t *testing.T, channels uint16, sampleRate uint32, dataBytes uint32) []byte {
	t.Helper()
	blockAlign := channels * 2
	h := audiocore.ContainerHeader{
		RIFFID:       [4]byte{'R', 'I', 'F', 'F'},
		TotalSize:    36 + dataBytes,
		WaveID:       [4]byte{'W', 'A', 'V', 'E'},
		FmtID:        [4]byte{'f', 'm', 't', ' '},
		FmtChunkSize: 16,
		AudioFormat:  1,
		NumChannels:  channels,
		SampleRate:   sampleRate,
		ByteRate:     sampleRate * uint32(blockAlign),
		BlockAlign:   blockAlign,
		BitDepth:     16,
		DataID:       [4]byte{'d', 'a', 't', 'a'},
		DataBytes:    dataBytes,
	}
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, h))
	buf.Write(make([]byte, dataBytes))
	require.Equal(t, 44+int(dataBytes), buf.Len())
	return buf.Bytes()
}

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestHumanSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{10 * 1024 * 1024, "10.0 MB"},
		{3 * 1024 * 1024 * 1024 / 2, "1.5 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HumanSize(tt.bytes), "bytes=%d", tt.bytes)
	}
}

func TestSaveOpenRoundTrip(t *testing.T) {
	t.Parallel()
	s := newStore(t)

	require.NoError(t, s.Save("/clip.wav", []byte("hello")))
	assert.True(t, s.Exists("/clip.wav"))
	assert.True(t, s.Exists("clip.wav"))

	f, err := s.Open("/clip.wav")
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, f.Close())
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, s.Save("/clip.wav", []byte("replaced")))
	data, err = os.ReadFile(filepath.Join(s.BaseDir(), "clip.wav"))
	require.NoError(t, err)
	assert.Equal(t, "replaced", string(data))
	assert.NoFileExists(t, filepath.Join(s.BaseDir(), "clip.wav.part"))
}

func TestOpenMissingIsNotFound(t *testing.T) {
	t.Parallel()
	s := newStore(t)

	_, err := s.Open("/missing.wav")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.False(t, s.Exists("/missing.wav"))
}

func TestRejectsEscapingNames(t *testing.T) {
	t.Parallel()
	s := newStore(t)

	for _, name := range []string{"", "/", "../etc/passwd", "/a/../../b"} {
		_, err := s.Open(name)
		require.Error(t, err, name)
		assert.True(t, errors.IsCategory(err, errors.CategoryValidation), name)
		assert.Error(t, s.Save(name, []byte("x")), name)
	}
}

func TestSaveChecksFreeSpace(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	s.freeSpace = func(string) (uint64, error) { return 4, nil }

	err := s.Save("/big.wav", []byte("too large"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategorySystem))
	assert.False(t, s.Exists("/big.wav"))
}

func TestListDescribesWAVFiles(t *testing.T) {
	t.Parallel()
	s := newStore(t)

	require.NoError(t, s.Save("/tone.wav", wavHeader(t, 2, 8000, 32000)))
	require.NoError(t, s.Save("/notes.txt", []byte("not audio")))
	require.NoError(t, s.Save("/broken.wav", []byte("RIFF")))
	require.NoError(t, os.Mkdir(filepath.Join(s.BaseDir(), "sub"), 0o755))

	files, err := s.List()
	require.NoError(t, err)
	require.Len(t, files, 4)

	byName := make(map[string]FileInfo, len(files))
	for _, f := range files {
		byName[f.Name] = f
	}

	tone := byName["/tone.wav"]
	assert.Equal(t, int64(44+32000), tone.Size)
	assert.Equal(t, "31.3 KB", tone.HumanReadableSize)
	assert.Equal(t, 8000, tone.SampleRate)
	assert.Equal(t, 2, tone.Channels)
	assert.Equal(t, 16, tone.BitDepth)
	assert.InDelta(t, 1.0, tone.DurationSeconds, 0.001)

	assert.Zero(t, byName["/notes.txt"].SampleRate)
	assert.Zero(t, byName["/broken.wav"].SampleRate)
	assert.True(t, byName["/sub"].IsDirectory)

	// second listing is served from the header cache
	assert.Equal(t, 1, s.headers.ItemCount())
	again, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, files, again)
}

func TestRemove(t *testing.T) {
	t.Parallel()
	s := newStore(t)

	require.NoError(t, s.Save("/a.wav", []byte("a")))
	require.NoError(t, s.Remove("/a.wav"))
	assert.False(t, s.Exists("/a.wav"))
	assert.True(t, errors.IsNotFound(s.Remove("/a.wav")))
}

func TestFSServesSources(t *testing.T) {
	t.Parallel()
	s := newStore(t)

	require.NoError(t, s.Save("/x.wav", []byte("data")))
	data, err := fsReadFile(s, "x.wav")
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}

func fsReadFile(s *Store, name string) ([]byte, error) {
	f, err := s.FS().Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
