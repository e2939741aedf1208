package audiocore

import "sync"

// UploadBuffer holds uploaded container bytes until a MemorySource takes them.
// The bytes are moved, never copied; once taken the buffer is empty for good.
type UploadBuffer struct {
	mu    sync.Mutex
	data  []byte
	taken bool
}

// NewUploadBuffer wraps data. The caller must not touch data afterwards.
func NewUploadBuffer(data []byte) *UploadBuffer {
	return &UploadBuffer{data: data}
}

// Len returns the number of bytes held, zero once taken
func (b *UploadBuffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Available reports whether the bytes can still be handed to a source
func (b *UploadBuffer) Available() bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.taken
}

// take moves the bytes out of the buffer
func (b *UploadBuffer) take() ([]byte, bool) {
	if b == nil {
		return nil, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.taken {
		return nil, false
	}
	data := b.data
	b.data = nil
	b.taken = true
	return data, true
}
