// Package audiocore provides the playback core of the bob speaker controller.
// It decodes 16-bit RIFF/WAVE data into stereo frames and streams them to an
// audio output peripheral, with at most one playback session alive at a time.
//
// # Architecture Overview
//
// The package consists of three components:
//
//   - Sources: FileSource and MemorySource decode a 44-byte container header
//     and then pull frames on demand. Every read fills the whole destination,
//     with silence once the source is exhausted or its gate closes.
//   - Engine: a single worker goroutine keeps the peripheral fed. It refills a
//     staged batch of frames whenever the peripheral reports that one of its
//     buffers was consumed, and writes as much as the peripheral accepts.
//   - Controller: the session state machine. It serializes start, stop and swap
//     requests and always tears down the old engine before the old source.
//
// # Concurrency and Thread Safety
//
// Controller methods may be called from any goroutine. Engine and the sources are
// owned by one session. The engine worker is the only caller of ReadFrames while
// the session is running; Stop joins the worker before the source is closed.
//
// # Buffer Lifecycle
//
// Uploaded audio arrives as an UploadBuffer. Ownership moves into the
// MemorySource, which releases the bytes when it is closed:
//
//	buf := audiocore.NewUploadBuffer(data)
//	if err := controller.StartBuffer(buf); err != nil {
//	    // buf is untouched and may be retried or dropped
//	}
//
// # Error Handling
//
// Missing or corrupt sources never error; they play silence. Errors returned to
// callers use the enhanced error system with component and category tagging.
package audiocore
