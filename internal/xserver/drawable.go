package xserver

import (
	"sync"
	"sync/atomic"

	"github.com/BurntSushi/xgb/xproto"
)

// Drawable is a BGRA pixel buffer with fixed dimensions. Its render
// lock serializes protocol-side writes against a renderer reading the
// pixels; the mutating methods take it themselves, so callers must not
// hold it.
type Drawable struct {
	id     uint32
	width  uint16
	height uint16
	visual *Visual

	mu   sync.Mutex
	data []byte

	needsUpdate atomic.Bool
	onDraw      atomic.Pointer[func()]
	onDestroy   func(*Drawable)
}

func newDrawable(id uint32, width, height uint16, visual *Visual) *Drawable {
	d := &Drawable{
		id:     id,
		width:  width,
		height: height,
		visual: visual,
		data:   make([]byte, int(width)*int(height)*4),
	}
	return d
}

func (d *Drawable) ID() uint32      { return d.id }
func (d *Drawable) Width() uint16   { return d.width }
func (d *Drawable) Height() uint16  { return d.height }
func (d *Drawable) Visual() *Visual { return d.visual }

func (d *Drawable) Depth() byte {
	if d.visual == nil {
		return 0
	}
	return d.visual.Depth
}

// SetOnDraw installs the callback run after every mutation, outside the
// render lock. nil removes it.
func (d *Drawable) SetOnDraw(fn func()) {
	if fn == nil {
		d.onDraw.Store(nil)
		return
	}
	d.onDraw.Store(&fn)
}

// SetOnDestroy installs the callback run when the drawable is removed
// from its manager.
func (d *Drawable) SetOnDestroy(fn func(*Drawable)) {
	d.onDestroy = fn
}

// NeedsUpdate reports whether pixels changed since the last
// ClearNeedsUpdate.
func (d *Drawable) NeedsUpdate() bool {
	return d.needsUpdate.Load()
}

func (d *Drawable) ClearNeedsUpdate() {
	d.needsUpdate.Store(false)
}

func (d *Drawable) painter() Painter {
	return newPainter(d.data, int(d.width), int(d.height))
}

// mutate runs fn with the render lock held, then flags the texture and
// fires the draw callback.
func (d *Drawable) mutate(fn func(p Painter)) {
	d.mu.Lock()
	fn(d.painter())
	d.mu.Unlock()
	d.needsUpdate.Store(true)
	if cb := d.onDraw.Load(); cb != nil {
		(*cb)()
	}
}

// WithPixels runs fn with the render lock held. fn must not retain data.
func (d *Drawable) WithPixels(fn func(data []byte, width, height int)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.data, int(d.width), int(d.height))
}

// setBuffer swaps in externally owned memory, as imported buffers do.
func (d *Drawable) setBuffer(data []byte) {
	d.mu.Lock()
	d.data = data
	d.mu.Unlock()
	d.needsUpdate.Store(true)
}

func (d *Drawable) buffer() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.data
}

// DrawImage writes a w by h block of client pixels. Depth 1 data is a
// stencil expanded to white and black; depth 24 and 32 data are direct
// pixels read from a totalW wide source.
func (d *Drawable) DrawImage(srcX, srcY, dstX, dstY int16, w, h uint16, depth byte, data []byte, totalW, totalH uint16) {
	d.mutate(func(p Painter) {
		switch depth {
		case 1:
			p.DrawBitmap(data, int(w), int(h), int(dstX), int(dstY))
		case 24, 32:
			src := newPainter(data, int(totalW), int(totalH))
			p.Blit(src, int(srcX), int(srcY), int(dstX), int(dstY), int(w), int(h), xproto.GxCopy)
		}
	})
}

// GetImage returns a copy of a region, clipped to the drawable.
func (d *Drawable) GetImage(x, y int16, w, h uint16) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := d.painter()
	if !p.valid() {
		return nil
	}
	cx, cy, cw, ch := p.clipRect(int(x), int(y), int(w), int(h))
	if cw <= 0 || ch <= 0 {
		return nil
	}
	out := newPainter(make([]byte, cw*ch*4), cw, ch)
	out.Blit(p, cx, cy, 0, 0, cw, ch, xproto.GxCopy)
	return out.data
}

// CopyArea combines a block of src into d with a GC function. src may
// be d itself. Only the destination is locked.
func (d *Drawable) CopyArea(src *Drawable, srcX, srcY, dstX, dstY int16, w, h uint16, function byte) {
	var srcPainter Painter
	if src != d {
		srcPainter = newPainter(src.buffer(), int(src.width), int(src.height))
	}
	d.mutate(func(p Painter) {
		s := srcPainter
		if src == d {
			s = p
		}
		p.Blit(s, int(srcX), int(srcY), int(dstX), int(dstY), int(w), int(h), function)
	})
}

func (d *Drawable) FillColor(color uint32) {
	d.FillRect(0, 0, d.width, d.height, color)
}

func (d *Drawable) FillRect(x, y int16, w, h uint16, color uint32) {
	d.mutate(func(p Painter) {
		p.FillRect(int(x), int(y), int(w), int(h), color)
	})
}

// DrawLines strokes the polyline through points.
func (d *Drawable) DrawLines(color uint32, lineWidth uint16, points []xproto.Point) {
	d.mutate(func(p Painter) {
		for i := 1; i < len(points); i++ {
			a, b := points[i-1], points[i]
			p.DrawLine(int(a.X), int(a.Y), int(b.X), int(b.Y), color, int(lineWidth))
		}
	})
}

// DrawMaskedBitmap colorizes a cursor image from two bitmaps of the
// drawable's size. mask may be nil.
func (d *Drawable) DrawMaskedBitmap(fore, back uint32, src, mask *Drawable) {
	sp := newPainter(src.buffer(), int(src.width), int(src.height))
	var mp Painter
	if mask != nil {
		mp = newPainter(mask.buffer(), int(mask.width), int(mask.height))
	}
	d.mutate(func(p Painter) {
		p.DrawMaskedBitmap(fore, back, sp, mp)
	})
}

// DrawableManager owns every Drawable that has an id: window contents
// and pixmaps.
type DrawableManager struct {
	pixmaps   *PixmapManager
	drawables map[uint32]*Drawable
}

func NewDrawableManager(pixmaps *PixmapManager) *DrawableManager {
	m := &DrawableManager{
		pixmaps:   pixmaps,
		drawables: make(map[uint32]*Drawable),
	}
	pixmaps.AddResourceListener(m)
	return m
}

func (m *DrawableManager) Get(id uint32) *Drawable {
	return m.drawables[id]
}

// Create allocates a drawable. Id 0 yields an unregistered scratch
// drawable; an id already in use yields nil.
func (m *DrawableManager) Create(id uint32, w, h uint16, visual *Visual) *Drawable {
	if id == 0 {
		return newDrawable(0, w, h, visual)
	}
	if _, ok := m.drawables[id]; ok {
		return nil
	}
	d := newDrawable(id, w, h, visual)
	m.drawables[id] = d
	return d
}

func (m *DrawableManager) CreateForDepth(id uint32, w, h uint16, depth byte) *Drawable {
	return m.Create(id, w, h, m.pixmaps.VisualForDepth(depth))
}

// Remove drops a drawable and runs its destroy callback.
func (m *DrawableManager) Remove(id uint32) {
	d, ok := m.drawables[id]
	if !ok {
		return
	}
	if d.onDestroy != nil {
		d.onDestroy(d)
	}
	d.SetOnDraw(nil)
	delete(m.drawables, id)
}

func (m *DrawableManager) Visual() *Visual {
	return m.pixmaps.Visual()
}

func (m *DrawableManager) Len() int {
	return len(m.drawables)
}

func (m *DrawableManager) OnCreateResource(Resource) {}

func (m *DrawableManager) OnFreeResource(r Resource) {
	if p, ok := r.(*Pixmap); ok {
		m.Remove(p.Drawable.ID())
	}
}
