package xserver

import (
	"sync"
	"testing"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointerMotion(t *testing.T) {
	s := newTestServer(t, Config{})
	c := connect(t, s)
	win := c.createWindow(s.Root().ID(), 10, 10, 50, 50, xproto.EventMaskPointerMotion)
	c.mapWindow(win)

	s.InjectPointerMove(20, 30)
	events := c.events()
	require.Equal(t, []byte{xproto.MotionNotify}, eventCodes(events))
	ev := events[0]
	assert.Equal(t, win, le.Uint32(ev[12:]))
	assert.Equal(t, int16(20), int16(le.Uint16(ev[20:])))
	assert.Equal(t, int16(30), int16(le.Uint16(ev[22:])))
	assert.Equal(t, int16(10), int16(le.Uint16(ev[24:])))
	assert.Equal(t, int16(20), int16(le.Uint16(ev[26:])))

	// Outside the window nobody listens.
	s.InjectPointerMove(200, 200)
	assert.Empty(t, c.events())
}

func TestPointerIsClamped(t *testing.T) {
	s := newTestServer(t, Config{Width: 320, Height: 200})
	c := connect(t, s)
	s.InjectPointerMove(-5, 9999)

	r := c.reply(opQueryPointer, 0, newBody().u32(s.Root().ID()).bytes())
	assert.Equal(t, byte(1), r[1])
	assert.Equal(t, int16(0), int16(le.Uint16(r[16:])))
	assert.Equal(t, int16(199), int16(le.Uint16(r[18:])))

	s.InjectPointerMoveDelta(10, -9)
	r = c.reply(opQueryPointer, 0, newBody().u32(s.Root().ID()).bytes())
	assert.Equal(t, int16(10), int16(le.Uint16(r[16:])))
	assert.Equal(t, int16(190), int16(le.Uint16(r[18:])))
}

func TestButtonPressAndRelease(t *testing.T) {
	s := newTestServer(t, Config{})
	c := connect(t, s)
	win := c.createWindow(s.Root().ID(), 0, 0, 50, 50, xproto.EventMaskButtonPress|xproto.EventMaskButtonRelease)
	c.mapWindow(win)
	s.InjectPointerMove(5, 6)

	s.InjectButton(ButtonLeft, true)
	s.InjectButton(ButtonLeft, false)
	events := c.events()
	require.Equal(t, []byte{xproto.ButtonPress, xproto.ButtonRelease}, eventCodes(events))
	press, release := events[0], events[1]
	assert.Equal(t, ButtonLeft, press[1])
	assert.Equal(t, uint16(0), le.Uint16(press[28:]), "state before the press")
	assert.Equal(t, uint16(xproto.KeyButMaskButton1), le.Uint16(release[28:]), "state before the release")
	assert.Equal(t, int16(5), int16(le.Uint16(release[24:])))

	// The implicit grab ends with the last button.
	unlock := s.Lock(LockWindowManager, LockInputDevice)
	assert.Nil(t, s.Grabs.Window())
	unlock()
}

func TestButtonReleaseNeedsReleaseMask(t *testing.T) {
	s := newTestServer(t, Config{})
	c := connect(t, s)
	win := c.createWindow(s.Root().ID(), 0, 0, 50, 50, xproto.EventMaskPointerMotion|xproto.EventMaskButton1Motion)
	c.mapWindow(win)
	s.InjectPointerMove(5, 6)
	c.events()

	s.InjectButton(ButtonLeft, true)
	s.InjectButton(ButtonLeft, false)
	assert.Empty(t, c.events())
}

func TestButtonPressSelectedByOneClient(t *testing.T) {
	s := newTestServer(t, Config{})
	a := connect(t, s)
	b := connect(t, s)
	win := a.createWindow(s.Root().ID(), 0, 0, 50, 50, xproto.EventMaskButtonPress)
	e := b.expectError(opChangeWindowAttributes, 0, newBody().u32(win, cwEventMask, xproto.EventMaskButtonPress|xproto.EventMaskKeyPress).bytes())
	assert.Equal(t, byte(xproto.BadAccess), e[1])

	// The refused request leaves the window as it was.
	r := a.reply(opGetWindowAttributes, 0, newBody().u32(win).bytes())
	assert.Equal(t, uint32(xproto.EventMaskButtonPress), le.Uint32(r[32:]), "all event masks")
	assert.Equal(t, uint32(xproto.EventMaskButtonPress), le.Uint32(r[36:]), "own event mask")
	unlock := s.Lock(LockWindowManager)
	assert.Equal(t, Bitmask(xproto.EventMaskButtonPress), s.Windows.Get(win).Attributes.EventMask)
	unlock()

	// Non-exclusive events are still shared.
	b.request(opChangeWindowAttributes, 0, newBody().u32(win, cwEventMask, xproto.EventMaskKeyPress).bytes())
	r = b.reply(opGetWindowAttributes, 0, newBody().u32(win).bytes())
	assert.Equal(t, uint32(xproto.EventMaskButtonPress|xproto.EventMaskKeyPress), le.Uint32(r[32:]))
	assert.Equal(t, uint32(xproto.EventMaskKeyPress), le.Uint32(r[36:]))
}

func TestCreateWindowChecksEventMask(t *testing.T) {
	s := newTestServer(t, Config{})
	c := connect(t, s)
	root := s.Root().ID()

	// The event mask value is missing from the list.
	id := c.id()
	e := c.expectError(opCreateWindow, 0, newBody().u32(id, root).i16(0, 0).u16(10, 10, 0, 1).u32(0, cwEventMask).bytes())
	assert.Equal(t, byte(xproto.BadLength), e[1])
	e = c.expectError(opGetWindowAttributes, 0, newBody().u32(id).bytes())
	assert.Equal(t, byte(xproto.BadWindow), e[1], "failed creation leaves no window")

	win := c.createWindow(root, 0, 0, 10, 10, xproto.EventMaskSubstructureRedirect)
	other := connect(t, s)
	e = other.expectError(opChangeWindowAttributes, 0, newBody().u32(win, cwEventMask, xproto.EventMaskSubstructureRedirect).bytes())
	assert.Equal(t, byte(xproto.BadAccess), e[1])
}

func TestKeyPressInstallsMissingKeysym(t *testing.T) {
	s := newTestServer(t, Config{})
	c := connect(t, s)
	win := c.createWindow(s.Root().ID(), 10, 10, 50, 50, xproto.EventMaskKeyPress|xproto.EventMaskKeyRelease)
	c.mapWindow(win)
	c.request(opSetInputFocus, xproto.InputFocusParent, newBody().u32(win, 0).bytes())

	const code, sym = 200, xproto.Keysym(0x20ac)
	s.InjectKey(code, sym, true)
	s.InjectKey(code, sym, false)
	events := c.events()
	require.Equal(t, []byte{xproto.MappingNotify, xproto.KeyPress, xproto.KeyRelease}, eventCodes(events))
	assert.Equal(t, byte(code), events[1][1])
	assert.Equal(t, win, le.Uint32(events[1][12:]))

	r := c.reply(opGetKeyboardMapping, 0, newBody().u8(code, 1, 0, 0).bytes())
	assert.Equal(t, byte(keysymsPerKeycode), r[1])
	assert.Equal(t, uint32(2), le.Uint32(r[4:]))
	assert.Equal(t, uint32(sym), le.Uint32(r[32:]))
	assert.Equal(t, uint32(sym), le.Uint32(r[36:]))

	// A keysym already on the key is not announced again.
	s.InjectKey(code, sym, true)
	assert.Equal(t, []byte{xproto.KeyPress}, eventCodes(c.events()))
}

func TestKeyWithoutFocusIsDropped(t *testing.T) {
	s := newTestServer(t, Config{})
	c := connect(t, s)
	win := c.createWindow(s.Root().ID(), 0, 0, 50, 50, xproto.EventMaskKeyPress)
	c.mapWindow(win)
	s.InjectKey(38, 0, true)
	assert.Empty(t, c.events())
}

type recordingSink struct {
	mu     sync.Mutex
	events [][4]int
}

func (r *recordingSink) MouseEvent(flags uint32, dx, dy, wheel int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, [4]int{int(flags), dx, dy, wheel})
}

func TestRelativeModeFeedsSink(t *testing.T) {
	sink := &recordingSink{}
	s := newTestServer(t, Config{Relative: true, MouseSink: sink})
	c := connect(t, s)
	win := c.createWindow(s.Root().ID(), 0, 0, 50, 50, xproto.EventMaskButtonPress|xproto.EventMaskPointerMotion)
	c.mapWindow(win)

	s.InjectPointerMoveDelta(3, -2)
	s.InjectButton(ButtonRight, true)
	s.InjectButton(ButtonScrollDown, true)
	s.InjectButton(ButtonScrollDown, false)
	assert.Empty(t, c.events())

	assert.Equal(t, [][4]int{
		{MouseEventMove, 3, -2, 0},
		{MouseEventRightDown, 0, 0, 0},
		{MouseEventWheel, 0, 0, -mouseWheelDelta},
		{0, 0, 0, 0},
	}, sink.events)

	s.SetRelativeMouse(false)
	s.InjectPointerMove(4, 4)
	assert.Equal(t, []byte{xproto.MotionNotify}, eventCodes(c.events()))
}

// makeApplicationWindow names w and makes it lead its own window group.
func (c *testClient) makeApplicationWindow(win uint32, name string) {
	c.t.Helper()
	mode, b := changeProperty(xproto.PropModeReplace, win, xproto.AtomWmName, xproto.AtomString, 8, []byte(name))
	c.request(opChangeProperty, mode, b)
	hints := newBody().u32(1<<6, 0, 0, 0, 0, 0, 0, 0, win).bytes()
	mode, b = changeProperty(xproto.PropModeReplace, win, xproto.AtomWmHints, xproto.AtomWmHints, 32, hints)
	c.request(opChangeProperty, mode, b)
}

func focusOf(c *testClient) (uint32, byte) {
	r := c.reply(opGetInputFocus, 0, nil)
	return le.Uint32(r[8:]), r[1]
}

func TestMappedApplicationWindowTakesFocus(t *testing.T) {
	s := newTestServer(t, Config{})
	c := connect(t, s)
	root := s.Root().ID()

	plain := c.createWindow(root, 0, 0, 50, 50, 0)
	c.mapWindow(plain)
	focus, _ := focusOf(c)
	assert.Zero(t, focus, "plain windows leave the focus alone")

	first := c.createWindow(root, 0, 0, 50, 50, 0)
	c.makeApplicationWindow(first, "notepad")
	c.mapWindow(first)
	focus, revert := focusOf(c)
	assert.Equal(t, first, focus)
	assert.Equal(t, byte(xproto.InputFocusPointerRoot), revert)

	second := c.createWindow(root, 100, 100, 50, 50, 0)
	c.makeApplicationWindow(second, "winecfg")
	c.mapWindow(second)
	focus, _ = focusOf(c)
	assert.Equal(t, second, focus)

	// Clicking the first window brings the focus back.
	s.InjectPointerMove(10, 10)
	s.InjectButton(ButtonLeft, true)
	s.InjectButton(ButtonLeft, false)
	focus, _ = focusOf(c)
	assert.Equal(t, first, focus)

	nested := c.createWindow(first, 5, 5, 20, 20, 0)
	c.makeApplicationWindow(nested, "dialog")
	c.mapWindow(nested)
	focus, revert = focusOf(c)
	assert.Equal(t, nested, focus)
	assert.Equal(t, byte(xproto.InputFocusParent), revert)
}

func TestRootPublishesCursorResources(t *testing.T) {
	s := newTestServer(t, Config{})
	c := connect(t, s)
	atom, ok := s.Atoms.Lookup("RESOURCE_MANAGER")
	require.True(t, ok)
	r := c.reply(opGetProperty, 0, newBody().u32(s.Root().ID(), uint32(atom), 0, 0, 100).bytes())
	n := le.Uint32(r[16:])
	assert.Contains(t, string(r[32:32+n]), "Xcursor.theme:\tdmz\n")
}
