package xserver

import (
	"testing"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cwEventMask = xproto.CwEventMask

func TestMapAndUnmapNotify(t *testing.T) {
	s := newTestServer(t, Config{})
	c := connect(t, s)
	win := c.createWindow(s.Root().ID(), 10, 10, 100, 50, xproto.EventMaskStructureNotify|xproto.EventMaskExposure)

	c.send(opMapWindow, 0, newBody().u32(win).bytes())
	events := c.events()
	assert.Equal(t, []byte{xproto.MapNotify, xproto.Expose}, eventCodes(events))
	assert.Equal(t, win, le.Uint32(events[0][4:]))
	assert.Equal(t, uint16(100), le.Uint16(events[1][12:]), "expose width")

	// Mapping again is a no-op.
	c.send(opMapWindow, 0, newBody().u32(win).bytes())
	assert.Empty(t, c.events())

	c.send(opUnmapWindow, 0, newBody().u32(win).bytes())
	assert.Equal(t, []byte{xproto.UnmapNotify}, eventCodes(c.events()))
}

func TestSubstructureRedirect(t *testing.T) {
	s := newTestServer(t, Config{})
	wm := connect(t, s)
	app := connect(t, s)
	root := s.Root().ID()

	wm.request(opChangeWindowAttributes, 0, newBody().u32(root, cwEventMask, xproto.EventMaskSubstructureRedirect).bytes())
	e := app.expectError(opChangeWindowAttributes, 0, newBody().u32(root, cwEventMask, xproto.EventMaskSubstructureRedirect).bytes())
	assert.Equal(t, byte(xproto.BadAccess), e[1])

	win := app.createWindow(root, 0, 0, 40, 40, 0)
	app.mapWindow(win)

	events := wm.events()
	require.Equal(t, []byte{xproto.MapRequest}, eventCodes(events))
	assert.Equal(t, win, le.Uint32(events[0][8:]))

	attrs := app.reply(opGetWindowAttributes, 0, newBody().u32(win).bytes())
	assert.Equal(t, byte(xproto.MapStateUnmapped), attrs[26])
}

func TestConfigureResizeReplacesContent(t *testing.T) {
	s := newTestServer(t, Config{})
	c := connect(t, s)
	win := c.createWindow(s.Root().ID(), 0, 0, 20, 20, xproto.EventMaskStructureNotify|xproto.EventMaskExposure)
	c.mapWindow(win)
	c.events()

	mask := uint16(xproto.ConfigWindowWidth | xproto.ConfigWindowHeight)
	c.send(opConfigureWindow, 0, newBody().u32(win).u16(mask, 0).u32(64, 32).bytes())
	events := c.events()
	assert.Equal(t, []byte{xproto.Expose, xproto.ConfigureNotify}, eventCodes(events))
	notify := events[1]
	assert.Equal(t, uint16(64), le.Uint16(notify[20:]))
	assert.Equal(t, uint16(32), le.Uint16(notify[22:]))

	geom := c.reply(opGetGeometry, 0, newBody().u32(win).bytes())
	assert.Equal(t, byte(24), geom[1])
	assert.Equal(t, uint16(64), le.Uint16(geom[16:]))
	assert.Equal(t, uint16(32), le.Uint16(geom[18:]))
}

func TestGetGeometryInputOnly(t *testing.T) {
	s := newTestServer(t, Config{})
	c := connect(t, s)
	win := c.id()
	c.request(opCreateWindow, 0, newBody().u32(win, s.Root().ID()).i16(3, 4).u16(20, 10, 0, xproto.WindowClassInputOnly).u32(0, 0).bytes())

	geom := c.reply(opGetGeometry, 0, newBody().u32(win).bytes())
	assert.Equal(t, byte(0), geom[1], "no depth")
	assert.Equal(t, s.Root().ID(), le.Uint32(geom[8:]))
	assert.Equal(t, int16(3), int16(le.Uint16(geom[12:])))
	assert.Equal(t, int16(4), int16(le.Uint16(geom[14:])))
	assert.Equal(t, uint16(20), le.Uint16(geom[16:]))
	assert.Equal(t, uint16(10), le.Uint16(geom[18:]))

	e := c.expectError(opGetGeometry, 0, newBody().u32(c.id()).bytes())
	assert.Equal(t, byte(xproto.BadDrawable), e[1])
}

func TestConfigureRootIsIgnored(t *testing.T) {
	s := newTestServer(t, Config{})
	c := connect(t, s)
	root := s.Root().ID()
	c.request(opConfigureWindow, 0, newBody().u32(root).u16(xproto.ConfigWindowWidth, 0).u32(5).bytes())
	assert.Equal(t, s.Width(), s.Root().Width)
}

func TestReparentIntoDescendant(t *testing.T) {
	s := newTestServer(t, Config{})
	c := connect(t, s)
	parent := c.createWindow(s.Root().ID(), 0, 0, 50, 50, 0)
	child := c.createWindow(parent, 0, 0, 10, 10, 0)

	e := c.expectError(opReparentWindow, 0, newBody().u32(parent, child).i16(0, 0).bytes())
	assert.Equal(t, byte(xproto.BadMatch), e[1])

	other := c.createWindow(s.Root().ID(), 0, 0, 50, 50, 0)
	c.request(opReparentWindow, 0, newBody().u32(child, other).i16(0, 0).bytes())
	tree := c.reply(opQueryTree, 0, newBody().u32(other).bytes())
	assert.Equal(t, s.Root().ID(), le.Uint32(tree[12:]))
	assert.Equal(t, uint16(1), le.Uint16(tree[16:]))
	assert.Equal(t, child, le.Uint32(tree[32:]))
}

func TestQueryTreeStackingOrder(t *testing.T) {
	s := newTestServer(t, Config{})
	c := connect(t, s)
	root := s.Root().ID()
	a := c.createWindow(root, 0, 0, 10, 10, 0)
	b := c.createWindow(root, 0, 0, 10, 10, 0)

	c.request(opConfigureWindow, 0, newBody().u32(a).u16(xproto.ConfigWindowStackMode, 0).u32(xproto.StackModeAbove).bytes())

	tree := c.reply(opQueryTree, 0, newBody().u32(root).bytes())
	assert.Equal(t, root, le.Uint32(tree[8:]))
	assert.Equal(t, uint32(0), le.Uint32(tree[12:]))
	require.Equal(t, uint16(2), le.Uint16(tree[16:]))
	assert.Equal(t, []uint32{b, a}, []uint32{le.Uint32(tree[32:]), le.Uint32(tree[36:])})
}

func changeProperty(mode byte, win uint32, atom, typ xproto.Atom, format byte, data []byte) (byte, []byte) {
	n := uint32(len(data)) * 8 / uint32(format)
	b := newBody().u32(win, uint32(atom), uint32(typ)).u8(format, 0, 0, 0).u32(n)
	b.Bytes(data)
	return mode, b.bytes()
}

func TestPropertyAppendAndGet(t *testing.T) {
	s := newTestServer(t, Config{})
	c := connect(t, s)
	win := c.createWindow(s.Root().ID(), 0, 0, 10, 10, xproto.EventMaskPropertyChange)

	mode, b := changeProperty(xproto.PropModeReplace, win, xproto.AtomWmName, xproto.AtomString, 8, []byte("wine"))
	c.send(opChangeProperty, mode, b)
	assert.Equal(t, []byte{xproto.PropertyNotify}, eventCodes(c.events()))

	mode, b = changeProperty(xproto.PropModeAppend, win, xproto.AtomWmName, xproto.AtomString, 8, []byte("cfg"))
	c.request(opChangeProperty, mode, b)

	r := c.reply(opGetProperty, 0, newBody().u32(win, uint32(xproto.AtomWmName), uint32(xproto.AtomString), 0, 100).bytes())
	assert.Equal(t, byte(8), r[1])
	assert.Equal(t, uint32(xproto.AtomString), le.Uint32(r[8:]))
	assert.Equal(t, uint32(0), le.Uint32(r[12:]))
	require.Equal(t, uint32(7), le.Uint32(r[16:]))
	assert.Equal(t, "winecfg", string(r[32:39]))

	// Partial read in 4-byte units reports the remainder.
	r = c.reply(opGetProperty, 0, newBody().u32(win, uint32(xproto.AtomWmName), 0, 1, 1).bytes())
	assert.Equal(t, uint32(0), le.Uint32(r[12:]))
	assert.Equal(t, uint32(3), le.Uint32(r[16:]))
	assert.Equal(t, "cfg", string(r[32:35]))

	// Wrong type reports the actual type and no data.
	r = c.reply(opGetProperty, 0, newBody().u32(win, uint32(xproto.AtomWmName), uint32(xproto.AtomAtom), 0, 100).bytes())
	assert.Equal(t, uint32(xproto.AtomString), le.Uint32(r[8:]))
	assert.Equal(t, uint32(0), le.Uint32(r[16:]))
}

func TestPropertyAppendFormatMismatchReplaces(t *testing.T) {
	s := newTestServer(t, Config{})
	c := connect(t, s)
	win := c.createWindow(s.Root().ID(), 0, 0, 10, 10, xproto.EventMaskPropertyChange)

	mode, b := changeProperty(xproto.PropModeReplace, win, xproto.AtomWmClass, xproto.AtomString, 8, []byte("abcd"))
	c.send(opChangeProperty, mode, b)
	mode, b = changeProperty(xproto.PropModeAppend, win, xproto.AtomWmClass, xproto.AtomCardinal, 32, []byte{7, 0, 0, 0})
	c.send(opChangeProperty, mode, b)
	assert.Equal(t, []byte{xproto.PropertyNotify, xproto.PropertyNotify}, eventCodes(c.events()))

	r := c.reply(opGetProperty, 0, newBody().u32(win, uint32(xproto.AtomWmClass), 0, 0, 100).bytes())
	assert.Equal(t, byte(32), r[1])
	assert.Equal(t, uint32(xproto.AtomCardinal), le.Uint32(r[8:]))
	require.Equal(t, uint32(1), le.Uint32(r[16:]))
	assert.Equal(t, uint32(7), le.Uint32(r[32:]))

	// Prepending with yet another type replaces again.
	mode, b = changeProperty(xproto.PropModePrepend, win, xproto.AtomWmClass, xproto.AtomString, 8, []byte("xy"))
	c.request(opChangeProperty, mode, b)
	r = c.reply(opGetProperty, 0, newBody().u32(win, uint32(xproto.AtomWmClass), 0, 0, 100).bytes())
	assert.Equal(t, uint32(xproto.AtomString), le.Uint32(r[8:]))
	require.Equal(t, uint32(2), le.Uint32(r[16:]))
	assert.Equal(t, "xy", string(r[32:34]))

	mode, b = changeProperty(xproto.PropModeReplace, win, xproto.AtomWmClass, xproto.AtomString, 7, []byte("abcdefg"))
	e := c.expectError(opChangeProperty, mode, b)
	assert.Equal(t, byte(xproto.BadValue), e[1])
}

func TestGetPropertyDelete(t *testing.T) {
	s := newTestServer(t, Config{})
	c := connect(t, s)
	win := c.createWindow(s.Root().ID(), 0, 0, 10, 10, 0)
	mode, b := changeProperty(xproto.PropModeReplace, win, xproto.AtomCutBuffer0, xproto.AtomString, 8, []byte("x"))
	c.request(opChangeProperty, mode, b)

	c.reply(opGetProperty, 1, newBody().u32(win, uint32(xproto.AtomCutBuffer0), 0, 0, 10).bytes())
	r := c.reply(opGetProperty, 0, newBody().u32(win, uint32(xproto.AtomCutBuffer0), 0, 0, 10).bytes())
	assert.Equal(t, uint32(0), le.Uint32(r[8:]), "property gone")
}

func TestSelectionOwnerChange(t *testing.T) {
	s := newTestServer(t, Config{})
	a := connect(t, s)
	b := connect(t, s)
	root := s.Root().ID()
	wa := a.createWindow(root, 0, 0, 10, 10, 0)
	wb := b.createWindow(root, 0, 0, 10, 10, 0)

	a.request(opSetSelectionOwner, 0, newBody().u32(wa, uint32(xproto.AtomPrimary), 0).bytes())
	b.request(opSetSelectionOwner, 0, newBody().u32(wb, uint32(xproto.AtomPrimary), 0).bytes())

	events := a.events()
	require.Equal(t, []byte{xproto.SelectionClear}, eventCodes(events))
	assert.Equal(t, wa, le.Uint32(events[0][8:]))

	r := a.reply(opGetSelectionOwner, 0, newBody().u32(uint32(xproto.AtomPrimary)).bytes())
	assert.Equal(t, wb, le.Uint32(r[8:]))

	e := a.expectError(opGetSelectionOwner, 0, newBody().u32(9999).bytes())
	assert.Equal(t, byte(xproto.BadAtom), e[1])
}

func grabPointer(win uint32) []byte {
	return newBody().u32(win).u16(xproto.EventMaskButtonPress).u8(1, 1).u32(0, 0, 0).bytes()
}

func TestGrabPointer(t *testing.T) {
	s := newTestServer(t, Config{})
	a := connect(t, s)
	b := connect(t, s)
	root := s.Root().ID()
	win := a.createWindow(root, 0, 0, 10, 10, 0)

	r := a.reply(opGrabPointer, 0, grabPointer(win))
	assert.Equal(t, byte(xproto.GrabStatusNotViewable), r[1])

	a.mapWindow(win)
	r = a.reply(opGrabPointer, 0, grabPointer(win))
	assert.Equal(t, byte(xproto.GrabStatusSuccess), r[1])

	r = b.reply(opGrabPointer, 0, grabPointer(root))
	assert.Equal(t, byte(xproto.GrabStatusAlreadyGrabbed), r[1])

	a.request(opUngrabPointer, 0, newBody().u32(0).bytes())
	r = b.reply(opGrabPointer, 0, grabPointer(root))
	assert.Equal(t, byte(xproto.GrabStatusSuccess), r[1])
}

func TestGrabPointerRelativeMode(t *testing.T) {
	s := newTestServer(t, Config{Relative: true})
	c := connect(t, s)
	r := c.reply(opGrabPointer, 0, grabPointer(s.Root().ID()))
	assert.Equal(t, byte(xproto.GrabStatusAlreadyGrabbed), r[1])

	q := c.reply(opQueryPointer, 0, newBody().u32(s.Root().ID()).bytes())
	assert.Equal(t, byte(0), q[1], "same screen")
}

func TestSendEventToListeners(t *testing.T) {
	s := newTestServer(t, Config{})
	a := connect(t, s)
	b := connect(t, s)
	win := a.createWindow(s.Root().ID(), 0, 0, 10, 10, 0)
	b.request(opChangeWindowAttributes, 0, newBody().u32(win, cwEventMask, xproto.EventMaskStructureNotify).bytes())

	ev := make([]byte, 32)
	ev[0] = xproto.ClientMessage
	ev[1] = 32
	le.PutUint32(ev[4:], win)
	a.request(opSendEvent, 0, append(newBody().u32(win, xproto.EventMaskStructureNotify).bytes(), ev...))

	events := b.events()
	require.Len(t, events, 1)
	assert.Equal(t, byte(xproto.ClientMessage), events[0][0])
	assert.Equal(t, win, le.Uint32(events[0][4:]))

	// An empty mask goes to the creator of the window.
	a.send(opSendEvent, 0, append(newBody().u32(win, 0).bytes(), ev...))
	assert.Equal(t, []byte{xproto.ClientMessage}, eventCodes(a.events()))
	assert.Empty(t, b.events())
}

func TestInputFocus(t *testing.T) {
	s := newTestServer(t, Config{})
	c := connect(t, s)
	win := c.createWindow(s.Root().ID(), 0, 0, 10, 10, 0)
	c.mapWindow(win)

	c.request(opSetInputFocus, xproto.InputFocusParent, newBody().u32(win, 0).bytes())
	r := c.reply(opGetInputFocus, 0, nil)
	assert.Equal(t, byte(xproto.InputFocusParent), r[1])
	assert.Equal(t, win, le.Uint32(r[8:]))

	// Unmapping the focus reverts to its parent.
	c.request(opUnmapWindow, 0, newBody().u32(win).bytes())
	r = c.reply(opGetInputFocus, 0, nil)
	assert.Equal(t, s.Root().ID(), le.Uint32(r[8:]))
}

func TestTranslateCoordinates(t *testing.T) {
	s := newTestServer(t, Config{})
	c := connect(t, s)
	root := s.Root().ID()
	outer := c.createWindow(root, 100, 50, 200, 200, 0)
	inner := c.createWindow(outer, 10, 20, 50, 50, 0)
	c.mapWindow(inner)

	r := c.reply(opTranslateCoordinates, 0, newBody().u32(inner, root).i16(1, 2).bytes())
	assert.Equal(t, int16(111), int16(le.Uint16(r[12:])))
	assert.Equal(t, int16(72), int16(le.Uint16(r[14:])))

	r = c.reply(opTranslateCoordinates, 0, newBody().u32(root, outer).i16(115, 75).bytes())
	assert.Equal(t, inner, le.Uint32(r[8:]))
	assert.Equal(t, int16(15), int16(le.Uint16(r[12:])))
}
