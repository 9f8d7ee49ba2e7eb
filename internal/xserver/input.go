package xserver

import (
	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
)

// Pointer buttons.
const (
	ButtonLeft       byte = 1
	ButtonMiddle     byte = 2
	ButtonRight      byte = 3
	ButtonScrollUp   byte = 4
	ButtonScrollDown byte = 5
)

func buttonFlag(button byte) uint32 {
	return 1 << (7 + uint32(button))
}

// MouseSink receives pointer input while relative mouse mode is on.
// Flags use the Windows MOUSEEVENTF_* values.
type MouseSink interface {
	MouseEvent(flags uint32, dx, dy, wheelDelta int)
}

// Windows mouse event flags.
const (
	MouseEventMove       = 0x0001
	MouseEventLeftDown   = 0x0002
	MouseEventLeftUp     = 0x0004
	MouseEventRightDown  = 0x0008
	MouseEventRightUp    = 0x0010
	MouseEventMiddleDown = 0x0020
	MouseEventMiddleUp   = 0x0040
	MouseEventWheel      = 0x0800

	mouseWheelDelta = 120
)

func mouseEventFlags(button byte, down bool) uint32 {
	switch button {
	case ButtonLeft:
		if down {
			return MouseEventLeftDown
		}
		return MouseEventLeftUp
	case ButtonMiddle:
		if down {
			return MouseEventMiddleDown
		}
		return MouseEventMiddleUp
	case ButtonRight:
		if down {
			return MouseEventRightDown
		}
		return MouseEventRightUp
	case ButtonScrollUp, ButtonScrollDown:
		if down {
			return MouseEventWheel
		}
	}
	return 0
}

// Pointer is the position, clamped to the screen, and the button
// state.
type Pointer struct {
	X, Y    int16
	buttons Bitmask

	maxX, maxY int16
}

func (p *Pointer) setPosition(x, y int) {
	p.X = int16(clamp(x, 0, int(p.maxX)))
	p.Y = int16(clamp(y, 0, int(p.maxY)))
}

// Buttons is the button part of the key-button state mask.
func (p *Pointer) Buttons() Bitmask {
	return p.buttons
}

// InputDeviceManager turns host input into X events. It tracks the
// window under the pointer and routes events through grabs, focus and
// propagation.
type InputDeviceManager struct {
	NopWindowListener

	windows  *WindowManager
	grabs    *GrabManager
	Pointer  *Pointer
	Keyboard *Keyboard

	pointWindow *Window

	relative func() bool
	sink     func() MouseSink
}

func newInputDeviceManager(windows *WindowManager, grabs *GrabManager, relative func() bool, sink func() MouseSink) *InputDeviceManager {
	m := &InputDeviceManager{
		windows: windows,
		grabs:   grabs,
		Pointer: &Pointer{
			maxX: int16(windows.Root.Width) - 1,
			maxY: int16(windows.Root.Height) - 1,
		},
		Keyboard:    NewKeyboard(),
		pointWindow: windows.Root,
		relative:    relative,
		sink:        sink,
	}
	grabs.input = m
	windows.AddWindowListener(m)
	windows.AddResourceListener(m)
	return m
}

func (m *InputDeviceManager) OnMapWindow(*Window)                  { m.updatePointWindow() }
func (m *InputDeviceManager) OnUnmapWindow(*Window)                { m.updatePointWindow() }
func (m *InputDeviceManager) OnChangeWindowZOrder(*Window)         { m.updatePointWindow() }
func (m *InputDeviceManager) OnUpdateWindowGeometry(*Window, bool) { m.updatePointWindow() }
func (m *InputDeviceManager) OnCreateResource(Resource)            { m.updatePointWindow() }
func (m *InputDeviceManager) OnFreeResource(Resource)              { m.updatePointWindow() }

func (m *InputDeviceManager) updatePointWindow() {
	w := m.windows.FindPointWindow(m.Pointer.X, m.Pointer.Y)
	if w == nil {
		w = m.windows.Root
	}
	m.pointWindow = w
}

// PointWindow is the deepest mapped window under the pointer.
func (m *InputDeviceManager) PointWindow() *Window {
	return m.pointWindow
}

// KeyButMask is the combined pointer button and modifier state.
func (m *InputDeviceManager) KeyButMask() Bitmask {
	mask := m.Pointer.Buttons()
	mask.Join(m.Keyboard.Modifiers())
	return mask
}

// deliver sends ev to window under the active grab's routing rules, or
// to window's interested listeners when nothing is grabbed.
func (m *InputDeviceManager) deliver(window *Window, mask uint32, ev xgb.Event) {
	if grab := m.grabs.Window(); grab != nil && grab.Attributes.Enabled {
		l := m.grabs.listener
		if m.grabs.OwnerEvents() && window != nil {
			window.sendEventTo(mask, ev, l.Client)
		} else if l.interestedIn(mask) {
			l.Client.SendEvent(ev)
		}
		return
	}
	if window != nil && window.Attributes.Enabled {
		window.SendEvent(mask, ev)
	}
}

// sendEnterLeave sends LeaveNotify to from and EnterNotify to to.
func (m *InputDeviceManager) sendEnterLeave(from, to *Window, mode byte) {
	if from == to || from == nil || to == nil {
		return
	}
	x, y := m.Pointer.X, m.Pointer.Y
	fromX, fromY := from.RootToLocal(x, y)
	toX, toY := to.RootToLocal(x, y)

	detailFrom, detailTo := byte(xproto.NotifyDetailNonlinear), byte(xproto.NotifyDetailNonlinear)
	if from.IsAncestorOf(to) {
		detailFrom, detailTo = xproto.NotifyDetailAncestor, xproto.NotifyDetailInferior
	} else if to.IsAncestorOf(from) {
		detailFrom, detailTo = xproto.NotifyDetailInferior, xproto.NotifyDetailAncestor
	}

	var sameScreenFocus byte = 0x02
	if to.IsAncestorOf(m.windows.Focused()) {
		sameScreenFocus |= 0x01
	}
	state := uint16(m.KeyButMask())
	root := xproto.Window(m.windows.Root.id)
	m.deliver(from, xproto.EventMaskLeaveWindow, xproto.LeaveNotifyEvent{
		Detail: detailFrom, Time: currentTime(), Root: root, Event: xproto.Window(from.id),
		RootX: x, RootY: y, EventX: fromX, EventY: fromY,
		State: state, Mode: mode, SameScreenFocus: sameScreenFocus,
	})
	m.deliver(to, xproto.EventMaskEnterWindow, xproto.EnterNotifyEvent{
		Detail: detailTo, Time: currentTime(), Root: root, Event: xproto.Window(to.id),
		RootX: x, RootY: y, EventX: toX, EventY: toY,
		State: state, Mode: mode, SameScreenFocus: sameScreenFocus,
	})
}

// pointerEventMask is the motion mask matching the pressed buttons.
func (m *InputDeviceManager) pointerEventMask() Bitmask {
	mask := Bitmask(xproto.EventMaskPointerMotion)
	buttons := m.Pointer.Buttons()
	if buttons.IsEmpty() {
		return mask
	}
	mask.Set(xproto.EventMaskButtonMotion)
	motion := []uint32{
		xproto.EventMaskButton1Motion,
		xproto.EventMaskButton2Motion,
		xproto.EventMaskButton3Motion,
		xproto.EventMaskButton4Motion,
		xproto.EventMaskButton5Motion,
	}
	for i, flag := range motion {
		if buttons.IsSet(buttonFlag(byte(i + 1))) {
			mask.Set(flag)
		}
	}
	return mask
}

// childOf returns the point window when it lies inside w.
func (m *InputDeviceManager) childOf(w *Window) xproto.Window {
	if w.IsAncestorOf(m.pointWindow) {
		return xproto.Window(m.pointWindow.id)
	}
	return 0
}

// MoveTo moves the pointer to root coordinates.
func (m *InputDeviceManager) MoveTo(x, y int) {
	m.Pointer.setPosition(x, y)
	m.onPointerMove()
}

// MoveBy moves the pointer by a delta. In relative mode the delta goes
// to the mouse sink instead.
func (m *InputDeviceManager) MoveBy(dx, dy int) {
	if m.relative() {
		if sink := m.sink(); sink != nil {
			sink.MouseEvent(MouseEventMove, dx, dy, 0)
		}
		return
	}
	m.MoveTo(int(m.Pointer.X)+dx, int(m.Pointer.Y)+dy)
}

func (m *InputDeviceManager) onPointerMove() {
	m.updatePointWindow()
	mask := uint32(m.pointerEventMask())
	grab := m.grabs.Window()
	var window *Window
	if grab == nil || m.grabs.OwnerEvents() {
		window = m.pointWindow.ancestorWithEventMask(mask)
	}
	if grab == nil && window == nil {
		return
	}
	target := window
	if target == nil {
		target = grab
	}
	x, y := m.Pointer.X, m.Pointer.Y
	ex, ey := target.RootToLocal(x, y)
	m.deliver(window, mask, xproto.MotionNotifyEvent{
		Detail:     xproto.MotionNormal,
		Time:       currentTime(),
		Root:       xproto.Window(m.windows.Root.id),
		Event:      xproto.Window(target.id),
		Child:      m.childOf(target),
		RootX:      x,
		RootY:      y,
		EventX:     ex,
		EventY:     ey,
		State:      uint16(m.KeyButMask()),
		SameScreen: true,
	})
}

// Button presses or releases a pointer button.
func (m *InputDeviceManager) Button(button byte, down bool) {
	if button < ButtonLeft || button > ButtonScrollDown {
		return
	}
	if m.relative() {
		if sink := m.sink(); sink != nil {
			wheel := 0
			if down && button == ButtonScrollUp {
				wheel = mouseWheelDelta
			} else if down && button == ButtonScrollDown {
				wheel = -mouseWheelDelta
			}
			sink.MouseEvent(mouseEventFlags(button, down), 0, 0, wheel)
		}
		return
	}
	if down {
		m.Pointer.buttons.Set(buttonFlag(button))
		m.onButtonPress(button)
	} else {
		m.Pointer.buttons.Unset(buttonFlag(button))
		m.onButtonRelease(button)
	}
}

func (m *InputDeviceManager) onButtonPress(button byte) {
	grab := m.grabs.Window()
	if grab == nil {
		grab = m.pointWindow.ancestorWithEvent(xproto.EventMaskButtonPress, nil)
		if grab != nil {
			m.grabs.activateImplicit(grab)
		}
	}
	if grab == nil || !grab.Attributes.Enabled {
		return
	}
	state := m.KeyButMask()
	state.Unset(buttonFlag(button))
	x, y := m.Pointer.X, m.Pointer.Y
	ex, ey := grab.RootToLocal(x, y)
	grab.SendEvent(xproto.EventMaskButtonPress, xproto.ButtonPressEvent{
		Detail:     xproto.Button(button),
		Time:       currentTime(),
		Root:       xproto.Window(m.windows.Root.id),
		Event:      xproto.Window(grab.id),
		Child:      m.childOf(grab),
		RootX:      x,
		RootY:      y,
		EventX:     ex,
		EventY:     ey,
		State:      uint16(state),
		SameScreen: true,
	})
}

func (m *InputDeviceManager) onButtonRelease(button byte) {
	grab := m.grabs.Window()
	var window *Window
	if grab == nil || m.grabs.OwnerEvents() {
		window = m.pointWindow.ancestorWithEventMask(xproto.EventMaskButtonRelease)
	}
	if grab != nil || window != nil {
		target := window
		if target == nil {
			target = grab
		}
		state := m.KeyButMask()
		state.Set(buttonFlag(button))
		x, y := m.Pointer.X, m.Pointer.Y
		ex, ey := target.RootToLocal(x, y)
		m.deliver(window, xproto.EventMaskButtonRelease, xproto.ButtonReleaseEvent{
			Detail:     xproto.Button(button),
			Time:       currentTime(),
			Root:       xproto.Window(m.windows.Root.id),
			Event:      xproto.Window(target.id),
			Child:      m.childOf(target),
			RootX:      x,
			RootY:      y,
			EventX:     ex,
			EventY:     ey,
			State:      uint16(state),
			SameScreen: true,
		})
	}
	if m.Pointer.Buttons().IsEmpty() && m.grabs.releaseWithButtons {
		m.grabs.Deactivate()
	}
}

// keyTarget picks the window a key event goes to: the nearest
// interested ancestor of the point window inside the focus subtree, or
// the focus window itself if it listens.
func (m *InputDeviceManager) keyTarget(mask uint32) (*Window, xproto.Window) {
	focus := m.windows.Focused()
	if focus == nil {
		return nil, 0
	}
	m.updatePointWindow()
	var target *Window
	var child xproto.Window
	if focus.IsAncestorOf(m.pointWindow) {
		target = m.pointWindow.ancestorWithEvent(mask, focus)
		if target != nil {
			child = m.childOf(target)
		}
	}
	if target == nil {
		if !focus.HasListenerFor(mask) {
			return nil, 0
		}
		target = focus
	}
	if !target.Attributes.Enabled {
		return nil, 0
	}
	return target, child
}

// Key presses or releases a key. A non-zero keysym the keycode does not
// produce is installed on it first and announced with MappingNotify.
func (m *InputDeviceManager) Key(code byte, sym xproto.Keysym, down bool) {
	m.Keyboard.press(code, down)
	mask := uint32(xproto.EventMaskKeyRelease)
	if down {
		mask = xproto.EventMaskKeyPress
	}
	target, child := m.keyTarget(mask)
	if target == nil {
		return
	}
	x, y := m.Pointer.X, m.Pointer.Y
	ex, ey := target.RootToLocal(x, y)
	root := xproto.Window(m.windows.Root.id)
	state := uint16(m.KeyButMask())
	if !down {
		target.SendEvent(mask, xproto.KeyReleaseEvent{
			Detail: xproto.Keycode(code), Time: currentTime(), Root: root,
			Event: xproto.Window(target.id), Child: child,
			RootX: x, RootY: y, EventX: ex, EventY: ey,
			State: state, SameScreen: true,
		})
		return
	}
	if sym != 0 && !m.Keyboard.HasKeysym(code, sym) {
		m.Keyboard.SetKeysyms(code, sym, sym)
		target.sendEventToAll(xproto.MappingNotifyEvent{
			Request:      xproto.MappingKeyboard,
			FirstKeycode: xproto.Keycode(code),
			Count:        1,
		})
	}
	target.SendEvent(mask, xproto.KeyPressEvent{
		Detail: xproto.Keycode(code), Time: currentTime(), Root: root,
		Event: xproto.Window(target.id), Child: child,
		RootX: x, RootY: y, EventX: ex, EventY: ey,
		State: state, SameScreen: true,
	})
}
