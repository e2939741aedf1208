package audiocore

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"github.com/Tenemo/bob/internal/errors"
)

// ContainerHeader is the fixed 44-byte RIFF/WAVE header, little-endian on the wire
type ContainerHeader struct {
	RIFFID       [4]byte
	TotalSize    uint32
	WaveID       [4]byte
	FmtID        [4]byte
	FmtChunkSize uint32
	AudioFormat  uint16
	NumChannels  uint16
	SampleRate   uint32
	ByteRate     uint32
	BlockAlign   uint16
	BitDepth     uint16
	DataID       [4]byte
	DataBytes    uint32
}

var (
	riffMagic = [4]byte{'R', 'I', 'F', 'F'}
	waveMagic = [4]byte{'W', 'A', 'V', 'E'}
)

// ReadHeader reads exactly HeaderSize bytes from r and decodes them field by field.
// It returns ErrInvalidFormat when fewer bytes are available.
func ReadHeader(r io.Reader) (ContainerHeader, error) {
	var raw [HeaderSize]byte
	n, err := io.ReadFull(r, raw[:])
	if err != nil {
		return ContainerHeader{}, errors.New(ErrInvalidFormat).
			Context("operation", "read_header").
			Context("bytes_read", n).
			Build()
	}

	var h ContainerHeader
	// Cannot fail: the struct has no padding and the buffer holds exactly HeaderSize bytes
	_ = binary.Read(bytes.NewReader(raw[:]), binary.LittleEndian, &h)
	return h, nil
}

// Validate checks the RIFF and WAVE magic
func (h ContainerHeader) Validate() error {
	if h.RIFFID != riffMagic || h.WaveID != waveMagic {
		return errors.New(ErrInvalidFormat).
			Context("operation", "validate_header").
			Context("riff_id", string(h.RIFFID[:])).
			Context("wave_id", string(h.WaveID[:])).
			Build()
	}
	return nil
}

// ProbeHeader reads and validates a header without decoding any samples
func ProbeHeader(r io.Reader) (ContainerHeader, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return h, err
	}
	return h, h.Validate()
}

// UnknownLength reports whether the data chunk length was left open by the writer
func (h ContainerHeader) UnknownLength() bool {
	return h.DataBytes == UnknownDataLength
}

// Duration is the playing time of the declared data chunk. It is zero when the
// length is unknown or the byte rate is zero.
func (h ContainerHeader) Duration() time.Duration {
	if h.UnknownLength() || h.ByteRate == 0 {
		return 0
	}
	return time.Duration(uint64(h.DataBytes) * uint64(time.Second) / uint64(h.ByteRate))
}
