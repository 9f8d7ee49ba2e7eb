package xserver

import "sync"

const (
	// resourceIDShift places each client range above the server's own
	// range, which holds the root window, visuals and colormap.
	resourceIDShift = 21
	// ResourceIDMask is the part of an id a client may choose freely.
	ResourceIDMask = 1<<resourceIDShift - 1
	// MaxClients is the number of ranges handed out.
	MaxClients = 128
)

// IDAllocator partitions the id space into disjoint per-client ranges.
// Each server owns its own allocator.
type IDAllocator struct {
	mu   sync.Mutex
	used []bool

	serverNext uint32
}

func NewIDAllocator(count int) *IDAllocator {
	return &IDAllocator{used: make([]bool, count), serverNext: 0x20}
}

// Allocate reserves a free range and returns its base.
func (a *IDAllocator) Allocate() (uint32, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, used := range a.used {
		if !used {
			a.used[i] = true
			return uint32(i+1) << resourceIDShift, true
		}
	}
	return 0, false
}

// Free releases the range starting at base. Freeing twice is harmless.
func (a *IDAllocator) Free(base uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := int(base>>resourceIDShift) - 1
	if i >= 0 && i < len(a.used) {
		a.used[i] = false
	}
}

// ServerID returns the next id from the server's private range.
func (a *IDAllocator) ServerID() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.serverNext
	a.serverNext++
	return id
}

// InRange reports whether id lies inside the range starting at base.
func InRange(base, id uint32) bool {
	return id&^ResourceIDMask == base
}
