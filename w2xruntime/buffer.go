package w2xruntime

import (
	"fmt"
	"sync"
)

// Ownership says who frees the bytes behind an OwnedBuffer.
type Ownership int

const (
	// SelfOwned buffers hold memory that belongs to the caller.
	SelfOwned Ownership = iota
	// EngineOwned buffers alias memory from the engine's allocator and are
	// freed by returning their AllocHandle to it.
	EngineOwned
)

// String returns the ownership name used in logs.
func (o Ownership) String() string {
	switch o {
	case SelfOwned:
		return "self"
	case EngineOwned:
		return "engine"
	default:
		return fmt.Sprintf("Ownership(%d)", int(o))
	}
}

// AllocHandle identifies one live engine allocation.
type AllocHandle uint64

// nativeAlloc is memory produced by a backend. bytes aliases the allocation
// until free is called.
type nativeAlloc interface {
	bytes() []byte
	free()
}

// allocRegistry tracks engine allocations that have not been released yet.
type allocRegistry struct {
	mu   sync.Mutex
	next AllocHandle
	live map[AllocHandle]nativeAlloc
}

var engineAllocs = &allocRegistry{live: make(map[AllocHandle]nativeAlloc)}

func (r *allocRegistry) register(a nativeAlloc) AllocHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.live[r.next] = a
	return r.next
}

func (r *allocRegistry) free(h AllocHandle) error {
	r.mu.Lock()
	a, ok := r.live[h]
	delete(r.live, h)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: allocation %d", ErrBufferReleased, h)
	}
	a.free()
	return nil
}

func (r *allocRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// LiveAllocations returns the number of engine allocations not yet released.
func LiveAllocations() int {
	return engineAllocs.count()
}

// OwnedBuffer is an image whose release path is fixed by its Ownership tag.
// It must be released exactly once; later releases return ErrBufferReleased.
type OwnedBuffer struct {
	mu        sync.RWMutex
	ownership Ownership
	handle    AllocHandle
	data      []byte
	width     int
	height    int
	channels  int
	released  bool
}

// NewSelfOwned wraps caller memory. The buffer is validated but not copied.
func NewSelfOwned(b PixelBuffer) (*OwnedBuffer, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &OwnedBuffer{
		ownership: SelfOwned,
		data:      b.Data,
		width:     b.Width,
		height:    b.Height,
		channels:  b.Channels,
	}, nil
}

// newEngineOwned registers a backend allocation and wraps it.
func newEngineOwned(a nativeAlloc, width, height, channels int) *OwnedBuffer {
	return &OwnedBuffer{
		ownership: EngineOwned,
		handle:    engineAllocs.register(a),
		data:      a.bytes(),
		width:     width,
		height:    height,
		channels:  channels,
	}
}

// Ownership returns the buffer's ownership tag.
func (b *OwnedBuffer) Ownership() Ownership { return b.ownership }

// Handle returns the engine allocation handle. ok is false for SelfOwned buffers.
func (b *OwnedBuffer) Handle() (h AllocHandle, ok bool) {
	return b.handle, b.ownership == EngineOwned
}

func (b *OwnedBuffer) Width() int    { return b.width }
func (b *OwnedBuffer) Height() int   { return b.height }
func (b *OwnedBuffer) Channels() int { return b.channels }

// Len returns the byte length of the buffer.
func (b *OwnedBuffer) Len() int { return b.width * b.height * b.channels }

// Released reports whether Release has been called.
func (b *OwnedBuffer) Released() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.released
}

// View returns a borrowed, read-only view of the buffer.
func (b *OwnedBuffer) View() BorrowedView {
	return BorrowedView{owner: b}
}

// CopyPixels copies the buffer into a new caller-owned PixelBuffer.
func (b *OwnedBuffer) CopyPixels() (PixelBuffer, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.released {
		return PixelBuffer{}, ErrBufferReleased
	}
	out := PixelBuffer{
		Data:     make([]byte, len(b.data)),
		Width:    b.width,
		Height:   b.height,
		Channels: b.channels,
	}
	copy(out.Data, b.data)
	return out, nil
}

// Detach converts the buffer into a SelfOwned copy and releases the
// original. The returned buffer no longer depends on the engine allocator.
func (b *OwnedBuffer) Detach() (*OwnedBuffer, error) {
	pixels, err := b.CopyPixels()
	if err != nil {
		return nil, err
	}
	if err := b.Release(); err != nil {
		return nil, err
	}
	return &OwnedBuffer{
		ownership: SelfOwned,
		data:      pixels.Data,
		width:     pixels.Width,
		height:    pixels.Height,
		channels:  pixels.Channels,
	}, nil
}

// Release frees the buffer along the path its Ownership dictates.
// Views taken from the buffer become invalid.
func (b *OwnedBuffer) Release() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return ErrBufferReleased
	}
	b.released = true

	switch b.ownership {
	case SelfOwned:
		b.data = nil
		return nil
	case EngineOwned:
		b.data = nil
		return engineAllocs.free(b.handle)
	default:
		return fmt.Errorf("%w: unknown ownership %d", ErrInvalidBuffer, b.ownership)
	}
}

// BorrowedView reads an OwnedBuffer without owning it. It has no release
// method; it becomes invalid once the owner is released.
type BorrowedView struct {
	owner *OwnedBuffer
}

// Valid reports whether the owner is still alive.
func (v BorrowedView) Valid() bool {
	return v.owner != nil && !v.owner.Released()
}

func (v BorrowedView) Width() int    { return v.owner.width }
func (v BorrowedView) Height() int   { return v.owner.height }
func (v BorrowedView) Channels() int { return v.owner.channels }

// Bytes returns the owner's memory. The slice must not be used after the
// owner is released; engine memory is unmapped at that point.
func (v BorrowedView) Bytes() ([]byte, error) {
	if v.owner == nil {
		return nil, ErrInvalidBuffer
	}
	v.owner.mu.RLock()
	defer v.owner.mu.RUnlock()
	if v.owner.released {
		return nil, ErrBufferReleased
	}
	return v.owner.data, nil
}

// CopyTo copies up to len(dst) bytes of the image into dst.
func (v BorrowedView) CopyTo(dst []byte) (int, error) {
	if v.owner == nil {
		return 0, ErrInvalidBuffer
	}
	v.owner.mu.RLock()
	defer v.owner.mu.RUnlock()
	if v.owner.released {
		return 0, ErrBufferReleased
	}
	return copy(dst, v.owner.data), nil
}

// At returns channel c of the pixel at (x, y).
func (v BorrowedView) At(x, y, c int) (byte, error) {
	if v.owner == nil {
		return 0, ErrInvalidBuffer
	}
	o := v.owner
	if x < 0 || y < 0 || c < 0 || x >= o.width || y >= o.height || c >= o.channels {
		return 0, fmt.Errorf("%w: (%d, %d, %d) outside %dx%dx%d",
			ErrInvalidBuffer, x, y, c, o.width, o.height, o.channels)
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.released {
		return 0, ErrBufferReleased
	}
	return o.data[(y*o.width+x)*o.channels+c], nil
}
