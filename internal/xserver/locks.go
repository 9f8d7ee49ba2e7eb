package xserver

import (
	"sort"
	"sync"
)

// Lockable names one category of shared server state. Categories are
// always acquired in ascending order and released in descending order.
type Lockable int

const (
	LockWindowManager Lockable = iota
	LockPixmapManager
	LockDrawableManager
	LockGraphicContextManager
	LockInputDevice
	LockCursorManager
	LockSHMSegmentManager

	numLockables
)

var lockableNames = [numLockables]string{
	"window_manager",
	"pixmap_manager",
	"drawable_manager",
	"graphic_context_manager",
	"input_device",
	"cursor_manager",
	"shmsegment_manager",
}

func (l Lockable) String() string {
	if l < 0 || l >= numLockables {
		return "unknown"
	}
	return lockableNames[l]
}

var allLockables = []Lockable{
	LockWindowManager,
	LockPixmapManager,
	LockDrawableManager,
	LockGraphicContextManager,
	LockInputDevice,
	LockCursorManager,
	LockSHMSegmentManager,
}

type categoryLocks struct {
	mu [numLockables]sync.Mutex
}

// lock acquires the given categories in the global order and returns
// the function that releases them in reverse. Duplicates are ignored.
func (cl *categoryLocks) lock(cats ...Lockable) (unlock func()) {
	ordered := append([]Lockable(nil), cats...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })
	held := make([]Lockable, 0, len(ordered))
	for i, c := range ordered {
		if i > 0 && ordered[i-1] == c {
			continue
		}
		cl.mu[c].Lock()
		held = append(held, c)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			cl.mu[held[i]].Unlock()
		}
	}
}

func (cl *categoryLocks) lockAll() (unlock func()) {
	return cl.lock(allLockables...)
}
