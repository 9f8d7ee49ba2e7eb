package xserver

import (
	"sync"

	"github.com/BurntSushi/xgb/xproto"

	"github.com/intio/headless-xserver/internal/wire"
)

// GCValues is the subset of graphics context state the renderer uses.
type GCValues struct {
	Function      byte
	PlaneMask     uint32
	Foreground    uint32
	Background    uint32
	LineWidth     uint16
	SubwindowMode byte
}

var defaultGCValues = GCValues{
	Function:      xproto.GxCopy,
	PlaneMask:     0xffffffff,
	Foreground:    0,
	Background:    1,
	LineWidth:     1,
	SubwindowMode: xproto.SubwindowModeClipByChildren,
}

// GraphicsContext is draw state bound to the drawable it was created
// for. Values are replaced as a whole, so readers never see half of an
// update.
type GraphicsContext struct {
	id       uint32
	drawable *Drawable

	mu     sync.RWMutex
	values GCValues
}

func (gc *GraphicsContext) ID() uint32          { return gc.id }
func (gc *GraphicsContext) Drawable() *Drawable { return gc.drawable }

func (gc *GraphicsContext) Values() GCValues {
	gc.mu.RLock()
	defer gc.mu.RUnlock()
	return gc.values
}

type GraphicsContextManager struct {
	resourceObservers

	contexts map[uint32]*GraphicsContext
}

func NewGraphicsContextManager() *GraphicsContextManager {
	return &GraphicsContextManager{contexts: make(map[uint32]*GraphicsContext)}
}

func (m *GraphicsContextManager) Get(id uint32) *GraphicsContext {
	return m.contexts[id]
}

// Create returns nil if id is taken.
func (m *GraphicsContextManager) Create(id uint32, d *Drawable) *GraphicsContext {
	if _, ok := m.contexts[id]; ok {
		return nil
	}
	gc := &GraphicsContext{id: id, drawable: d, values: defaultGCValues}
	m.contexts[id] = gc
	m.notifyCreate(gc)
	return gc
}

func (m *GraphicsContextManager) Free(id uint32) {
	gc, ok := m.contexts[id]
	if !ok {
		return
	}
	delete(m.contexts, id)
	m.notifyFree(gc)
}

// Update reads one value per bit of mask, in bit order, and applies the
// supported ones. Values for unsupported fields are consumed and
// ignored.
func (m *GraphicsContextManager) Update(gc *GraphicsContext, mask Bitmask, r *wire.Reader) error {
	values := gc.Values()
	var bad *Error
	mask.Each(func(flag uint32) {
		v := r.Uint32()
		switch flag {
		case xproto.GcFunction:
			if v > xproto.GxSet {
				bad = BadValue(v)
				return
			}
			values.Function = byte(v)
		case xproto.GcPlaneMask:
			values.PlaneMask = v
		case xproto.GcForeground:
			values.Foreground = v
		case xproto.GcBackground:
			values.Background = v
		case xproto.GcLineWidth:
			values.LineWidth = uint16(v)
		case xproto.GcSubwindowMode:
			if v > xproto.SubwindowModeIncludeInferiors {
				bad = BadValue(v)
				return
			}
			values.SubwindowMode = byte(v)
		}
	})
	if err := r.Err(); err != nil {
		return BadLength()
	}
	if bad != nil {
		return bad
	}
	gc.mu.Lock()
	gc.values = values
	gc.mu.Unlock()
	return nil
}

func (m *GraphicsContextManager) Len() int {
	return len(m.contexts)
}
