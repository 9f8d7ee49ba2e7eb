package xserver

import "github.com/BurntSushi/xgb/xproto"

// Visual describes the pixel format a Drawable is created against.
type Visual struct {
	ID              uint32
	Depth           byte
	Displayable     bool
	Class           byte
	BitsPerRGB      byte
	ColormapEntries uint16
	RedMask         uint32
	GreenMask       uint32
	BlueMask        uint32
}

// PixmapFormat is one entry of the setup reply's format list.
type PixmapFormat struct {
	Depth        byte
	BitsPerPixel byte
	ScanlinePad  byte
}

var pixmapFormats = []PixmapFormat{
	{Depth: 1, BitsPerPixel: 1, ScanlinePad: 32},
	{Depth: 24, BitsPerPixel: 32, ScanlinePad: 32},
	{Depth: 32, BitsPerPixel: 32, ScanlinePad: 32},
}

func trueColorVisual(id uint32, depth byte) *Visual {
	return &Visual{
		ID:              id,
		Depth:           depth,
		Displayable:     true,
		Class:           xproto.VisualClassTrueColor,
		BitsPerRGB:      8,
		ColormapEntries: 256,
		RedMask:         0xff0000,
		GreenMask:       0x00ff00,
		BlueMask:        0x0000ff,
	}
}

// Pixmap is an off-screen drawable. Its id is the id of its Drawable.
type Pixmap struct {
	Drawable *Drawable
}

func (p *Pixmap) ID() uint32 { return p.Drawable.ID() }

// PixmapManager owns the visuals and the pixmap table. Freeing a pixmap
// notifies the DrawableManager, which drops the backing Drawable.
type PixmapManager struct {
	resourceObservers

	visuals []*Visual
	pixmaps map[uint32]*Pixmap
}

func NewPixmapManager(ids *IDAllocator) *PixmapManager {
	return &PixmapManager{
		visuals: []*Visual{
			trueColorVisual(ids.ServerID(), 24),
			trueColorVisual(ids.ServerID(), 32),
			{Depth: 1},
		},
		pixmaps: make(map[uint32]*Pixmap),
	}
}

// Visual returns the root visual.
func (m *PixmapManager) Visual() *Visual {
	return m.visuals[0]
}

// Visuals lists every supported visual, displayable ones first.
func (m *PixmapManager) Visuals() []*Visual {
	return m.visuals
}

func (m *PixmapManager) Formats() []PixmapFormat {
	return pixmapFormats
}

func (m *PixmapManager) VisualByID(id uint32) *Visual {
	for _, v := range m.visuals {
		if v.Displayable && v.ID == id {
			return v
		}
	}
	return nil
}

// VisualForDepth returns the visual used for depth, or nil for a depth
// no format supports.
func (m *PixmapManager) VisualForDepth(depth byte) *Visual {
	for _, v := range m.visuals {
		if v.Depth == depth {
			return v
		}
	}
	return nil
}

func (m *PixmapManager) Get(id uint32) *Pixmap {
	return m.pixmaps[id]
}

// Create registers a pixmap for drawable. It returns nil if the id is
// already taken.
func (m *PixmapManager) Create(d *Drawable) *Pixmap {
	if _, ok := m.pixmaps[d.ID()]; ok {
		return nil
	}
	p := &Pixmap{Drawable: d}
	m.pixmaps[p.ID()] = p
	m.notifyCreate(p)
	return p
}

func (m *PixmapManager) Free(id uint32) {
	p, ok := m.pixmaps[id]
	if !ok {
		return
	}
	delete(m.pixmaps, id)
	m.notifyFree(p)
}

// Len is the number of live pixmaps.
func (m *PixmapManager) Len() int {
	return len(m.pixmaps)
}
