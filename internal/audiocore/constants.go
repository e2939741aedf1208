package audiocore

// Container layout constants
const (
	// HeaderSize is the size of the fixed RIFF/WAVE header; samples start right after it
	HeaderSize = 44

	// UnknownDataLength marks a data chunk whose length was not known when it was written
	UnknownDataLength = 0xFFFFFFFF

	// SupportedBitDepth is the only sample width the decoder produces
	SupportedBitDepth = 16

	// FrameBytes is the wire size of one stereo frame
	FrameBytes = 4
)

// Engine defaults
const (
	// DefaultBatchFrames is the number of frames pulled from a source per refill
	DefaultBatchFrames = 512

	// OutputChannels is the channel count of every output configuration
	OutputChannels = 2
)

// Session kinds and end reasons reported to observers
const (
	KindFile   = "file"
	KindMemory = "memory"

	ReasonStopped  = "stopped"
	ReasonReplaced = "replaced"
)

// State is the playback controller state
type State int

const (
	// StateIdle has no live session
	StateIdle State = iota

	// StateStarting is constructing a new source and engine
	StateStarting

	// StatePlaying has one live session
	StatePlaying

	// StateStopping is tearing the live session down
	StateStopping
)

// String returns the string representation of the controller state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StatePlaying:
		return "playing"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}
