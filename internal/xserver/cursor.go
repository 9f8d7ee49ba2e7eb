package xserver

import "encoding/binary"

// Cursor is a colorized pointer image built from a source bitmap and an
// optional mask bitmap of the same size.
type Cursor struct {
	id         uint32
	HotX, HotY int16
	Image      *Drawable

	source  *Drawable
	mask    *Drawable
	visible bool
}

func (c *Cursor) ID() uint32 { return c.id }

// Visible is false when the mask has no set bit.
func (c *Cursor) Visible() bool { return c.visible }

// RGB is a color triple with eight bits per channel.
type RGB struct {
	R, G, B byte
}

func (c RGB) pixel() uint32 {
	return uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

type CursorManager struct {
	resourceObservers

	drawables *DrawableManager
	cursors   map[uint32]*Cursor
}

func NewCursorManager(drawables *DrawableManager) *CursorManager {
	return &CursorManager{drawables: drawables, cursors: make(map[uint32]*Cursor)}
}

func (m *CursorManager) Get(id uint32) *Cursor {
	return m.cursors[id]
}

// Create returns nil if id is taken. The image drawable is private to
// the cursor and never registered.
func (m *CursorManager) Create(id uint32, hotX, hotY int16, source, mask *Pixmap) *Cursor {
	if _, ok := m.cursors[id]; ok {
		return nil
	}
	src := source.Drawable
	c := &Cursor{
		id:      id,
		HotX:    hotX,
		HotY:    hotY,
		Image:   m.drawables.Create(0, src.Width(), src.Height(), src.Visual()),
		source:  src,
		visible: true,
	}
	if mask != nil {
		c.mask = mask.Drawable
	}
	m.cursors[id] = c
	m.notifyCreate(c)
	return c
}

func (m *CursorManager) Free(id uint32) {
	c, ok := m.cursors[id]
	if !ok {
		return
	}
	delete(m.cursors, id)
	m.notifyFree(c)
}

// Recolor renders the cursor image with new colors. An all-zero mask
// hides the cursor instead of drawing a blank image.
func (m *CursorManager) Recolor(c *Cursor, fore, back RGB) {
	if c.mask != nil {
		c.visible = !isEmptyMask(c.mask)
		if !c.visible {
			return
		}
	}
	c.Image.DrawMaskedBitmap(fore.pixel(), back.pixel(), c.source, c.mask)
}

func isEmptyMask(d *Drawable) bool {
	empty := true
	d.WithPixels(func(data []byte, _, _ int) {
		for i := 0; i+4 <= len(data); i += 4 {
			if binary.LittleEndian.Uint32(data[i:])&0xffffff != 0 {
				empty = false
				return
			}
		}
	})
	return empty
}

func (m *CursorManager) Len() int {
	return len(m.cursors)
}
