package xserver

import (
	"encoding/binary"
	"sync"

	"github.com/BurntSushi/xgb/xproto"
)

// predefinedAtoms are the atoms every X server knows, in id order
// starting at 1 (xproto.AtomPrimary).
var predefinedAtoms = []string{
	"PRIMARY", "SECONDARY", "ARC", "ATOM", "BITMAP", "CARDINAL",
	"COLORMAP", "CURSOR", "CUT_BUFFER0", "CUT_BUFFER1", "CUT_BUFFER2",
	"CUT_BUFFER3", "CUT_BUFFER4", "CUT_BUFFER5", "CUT_BUFFER6",
	"CUT_BUFFER7", "DRAWABLE", "FONT", "INTEGER", "PIXMAP", "POINT",
	"RECTANGLE", "RESOURCE_MANAGER", "RGB_COLOR_MAP", "RGB_BEST_MAP",
	"RGB_BLUE_MAP", "RGB_DEFAULT_MAP", "RGB_GRAY_MAP", "RGB_GREEN_MAP",
	"RGB_RED_MAP", "STRING", "VISUALID", "WINDOW", "WM_COMMAND",
	"WM_HINTS", "WM_CLIENT_MACHINE", "WM_ICON_NAME", "WM_ICON_SIZE",
	"WM_NAME", "WM_NORMAL_HINTS", "WM_SIZE_HINTS", "WM_ZOOM_HINTS",
	"MIN_SPACE", "NORM_SPACE", "MAX_SPACE", "END_SPACE", "SUPERSCRIPT_X",
	"SUPERSCRIPT_Y", "SUBSCRIPT_X", "SUBSCRIPT_Y", "UNDERLINE_POSITION",
	"UNDERLINE_THICKNESS", "STRIKEOUT_ASCENT", "STRIKEOUT_DESCENT",
	"ITALIC_ANGLE", "X_HEIGHT", "QUAD_WIDTH", "WEIGHT", "POINT_SIZE",
	"RESOLUTION", "COPYRIGHT", "NOTICE", "FONT_NAME", "FAMILY_NAME",
	"FULL_NAME", "CAP_HEIGHT", "WM_CLASS", "WM_TRANSIENT_FOR",
}

// AtomTable interns protocol strings. It is shared by every client of a
// server and only ever grows.
type AtomTable struct {
	mu    sync.RWMutex
	names []string
	ids   map[string]xproto.Atom
}

// NewAtomTable returns a table holding the predefined atoms.
func NewAtomTable() *AtomTable {
	t := &AtomTable{ids: make(map[string]xproto.Atom)}
	for _, name := range predefinedAtoms {
		t.intern(name)
	}
	return t
}

func (t *AtomTable) intern(name string) xproto.Atom {
	if id, ok := t.ids[name]; ok {
		return id
	}
	t.names = append(t.names, name)
	id := xproto.Atom(len(t.names))
	t.ids[name] = id
	return id
}

// Intern returns the atom for name, creating it if needed.
func (t *AtomTable) Intern(name string) xproto.Atom {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.intern(name)
}

// Lookup returns the atom for name only if it already exists.
func (t *AtomTable) Lookup(name string) (xproto.Atom, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.ids[name]
	return id, ok
}

// Name returns the string an atom was interned from.
func (t *AtomTable) Name(id xproto.Atom) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.valid(id) {
		return "", false
	}
	return t.names[id-1], true
}

func (t *AtomTable) valid(id xproto.Atom) bool {
	return id > 0 && int(id) <= len(t.names)
}

// IsValid reports whether id names an interned atom.
func (t *AtomTable) IsValid(id xproto.Atom) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.valid(id)
}

// Names returns every interned name indexed by atom id minus one.
func (t *AtomTable) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.names...)
}

// decodeAtom decodes an xproto.Atom from a property value stored in
// little endian order. v has to be at least 4 bytes long.
func decodeAtom(v []byte) xproto.Atom {
	return xproto.Atom(binary.LittleEndian.Uint32(v))
}
