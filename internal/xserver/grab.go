package xserver

import "github.com/BurntSushi/xgb/xproto"

// GrabManager tracks the single active pointer grab.
type GrabManager struct {
	NopWindowListener

	input *InputDeviceManager

	window             *Window
	listener           *EventListener
	ownerEvents        bool
	releaseWithButtons bool
}

func newGrabManager(windows *WindowManager) *GrabManager {
	g := &GrabManager{}
	windows.AddWindowListener(g)
	windows.AddResourceListener(g)
	return g
}

// Window is the grab window, or nil when nothing is grabbed.
func (g *GrabManager) Window() *Window {
	return g.window
}

func (g *GrabManager) OwnerEvents() bool {
	return g.ownerEvents
}

// Client is the client holding the grab, or nil.
func (g *GrabManager) Client() *Client {
	if g.listener == nil {
		return nil
	}
	return g.listener.Client
}

// OnUnmapWindow ends the grab once the grab window stops being
// viewable.
func (g *GrabManager) OnUnmapWindow(w *Window) {
	if g.window != nil && g.window.MapState() != xproto.MapStateViewable {
		g.Deactivate()
	}
}

func (g *GrabManager) OnCreateResource(Resource) {}

// OnFreeResource drops a grab whose window was destroyed, without
// crossing events to the dead window.
func (g *GrabManager) OnFreeResource(r Resource) {
	if w, ok := r.(*Window); ok && w == g.window {
		g.clear()
	}
}

// releaseClient drops a grab held by a disconnecting client.
func (g *GrabManager) releaseClient(c *Client) {
	if g.listener != nil && g.listener.Client == c {
		g.clear()
	}
}

func (g *GrabManager) clear() {
	g.window = nil
	g.listener = nil
}

func (g *GrabManager) Deactivate() {
	if g.window == nil {
		return
	}
	g.input.sendEnterLeave(g.window, g.input.PointWindow(), xproto.NotifyModeUngrab)
	g.clear()
}

func (g *GrabManager) activate(w *Window, l *EventListener, ownerEvents, releaseWithButtons bool) {
	if g.window == nil {
		g.input.sendEnterLeave(g.input.PointWindow(), w, xproto.NotifyModeGrab)
	}
	g.window = w
	g.listener = l
	g.ownerEvents = ownerEvents
	g.releaseWithButtons = releaseWithButtons
}

// Activate starts an explicit grab for a GrabPointer request.
func (g *GrabManager) Activate(w *Window, ownerEvents bool, mask Bitmask, c *Client) {
	g.activate(w, &EventListener{Client: c, Mask: mask}, ownerEvents, false)
}

// activateImplicit starts the grab a button press takes on the window
// that selected ButtonPress. It ends when all buttons are released.
func (g *GrabManager) activateImplicit(w *Window) {
	l := w.buttonPressListener()
	if l == nil {
		return
	}
	g.activate(w, l, l.interestedIn(xproto.EventMaskOwnerGrabButton), true)
}
