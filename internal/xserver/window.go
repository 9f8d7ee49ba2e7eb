package xserver

import (
	"bytes"
	"sort"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
)

// EventListener is one client's interest in a window's events.
type EventListener struct {
	Client *Client
	Mask   Bitmask
}

func (l *EventListener) interestedIn(mask uint32) bool {
	return l.Mask.IsSet(mask)
}

// Window is a node of the window tree. Input-only windows have no
// content drawable.
type Window struct {
	id      uint32
	content *Drawable

	X, Y        int16
	Width       uint16
	Height      uint16
	BorderWidth uint16

	Attributes WindowAttributes

	parent     *Window
	children   []*Window
	properties map[xproto.Atom]*Property
	listeners  []*EventListener

	// originClient created the window; nil for the root.
	originClient *Client
}

func newWindow(id uint32, content *Drawable, x, y int16, w, h uint16, client *Client) *Window {
	win := &Window{
		id:           id,
		content:      content,
		X:            x,
		Y:            y,
		Width:        w,
		Height:       h,
		properties:   make(map[xproto.Atom]*Property),
		originClient: client,
	}
	win.Attributes = defaultWindowAttributes()
	win.Attributes.window = win
	return win
}

func (w *Window) ID() uint32          { return w.id }
func (w *Window) Content() *Drawable  { return w.content }
func (w *Window) Parent() *Window     { return w.parent }
func (w *Window) IsInputOutput() bool { return w.content != nil }

// Children returns the children bottom to top.
func (w *Window) Children() []*Window {
	return append([]*Window(nil), w.children...)
}

func (w *Window) Property(atom xproto.Atom) *Property {
	return w.properties[atom]
}

// Properties returns all properties ordered by atom.
func (w *Window) Properties() []*Property {
	props := make([]*Property, 0, len(w.properties))
	for _, p := range w.properties {
		props = append(props, p)
	}
	sort.Slice(props, func(i, j int) bool { return props[i].Name < props[j].Name })
	return props
}

// modifyProperty applies a ChangeProperty. Prepend and append only
// extend an existing property of the same type and format; anything
// else replaces the whole value.
func (w *Window) modifyProperty(atom, typ xproto.Atom, format, mode byte, data []byte) *Property {
	prop := w.properties[atom]
	switch {
	case prop != nil && mode != xproto.PropModeReplace && prop.Format == format && prop.Type == typ:
		if mode == xproto.PropModePrepend {
			prop.Data = append(append([]byte(nil), data...), prop.Data...)
		} else {
			prop.Data = append(prop.Data, data...)
		}
	default:
		prop = &Property{Name: atom, Type: typ, Format: format, Data: data}
		w.properties[atom] = prop
	}
	w.SendEvent(xproto.EventMaskPropertyChange, xproto.PropertyNotifyEvent{
		Window: xproto.Window(w.id),
		Atom:   atom,
		Time:   currentTime(),
		State:  xproto.PropertyNewValue,
	})
	return prop
}

func (w *Window) deleteProperty(atom xproto.Atom) {
	delete(w.properties, atom)
	w.SendEvent(xproto.EventMaskPropertyChange, xproto.PropertyNotifyEvent{
		Window: xproto.Window(w.id),
		Atom:   atom,
		Time:   currentTime(),
		State:  xproto.PropertyDelete,
	})
}

// Name is the WM_NAME text, if any.
func (w *Window) Name() string {
	return w.textProperty(xproto.AtomWmName)
}

// ClassName is the WM_CLASS text with its two parts joined by a space.
func (w *Window) ClassName() string {
	return string(bytes.Join(bytes.FieldsFunc(w.rawProperty(xproto.AtomWmClass), func(r rune) bool { return r == 0 }), []byte(" ")))
}

func (w *Window) rawProperty(atom xproto.Atom) []byte {
	if p := w.properties[atom]; p != nil {
		return p.Data
	}
	return nil
}

func (w *Window) textProperty(atom xproto.Atom) string {
	return string(bytes.TrimRight(w.rawProperty(atom), "\x00"))
}

// wmHintsWindowGroup is the index of the window_group field in WM_HINTS.
const wmHintsWindowGroup = 8

// IsApplicationWindow reports whether w looks like a top-level window
// of a program: mapped, named, leading its own window group and larger
// than a placeholder.
func (w *Window) IsApplicationWindow() bool {
	hints := w.properties[xproto.AtomWmHints]
	if hints == nil {
		return false
	}
	return w.Attributes.Mapped && w.Name() != "" &&
		hints.Uint32(wmHintsWindowGroup) == w.id && w.Width > 1 && w.Height > 1
}

func (w *Window) addChild(child *Window) {
	if child == nil || child.parent == w {
		return
	}
	child.parent = w
	w.children = append(w.children, child)
}

func (w *Window) removeChild(child *Window) {
	if child == nil || child.parent != w {
		return
	}
	child.parent = nil
	w.children = removeWindow(w.children, child)
}

func removeWindow(list []*Window, win *Window) []*Window {
	for i, c := range list {
		if c == win {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func indexOfWindow(list []*Window, win *Window) int {
	for i, c := range list {
		if c == win {
			return i
		}
	}
	return -1
}

// previousSibling is the sibling directly below w in stacking order.
func (w *Window) previousSibling() *Window {
	if w.parent == nil {
		return nil
	}
	if i := indexOfWindow(w.parent.children, w); i > 0 {
		return w.parent.children[i-1]
	}
	return nil
}

// moveChildAbove restacks child directly above sibling, or on top when
// sibling is not a child of w.
func (w *Window) moveChildAbove(child, sibling *Window) {
	w.children = removeWindow(w.children, child)
	if i := indexOfWindow(w.children, sibling); sibling != nil && i >= 0 {
		w.children = insertWindow(w.children, i+1, child)
		return
	}
	w.children = append(w.children, child)
}

// moveChildBelow restacks child directly below sibling, or at the
// bottom when sibling is not a child of w.
func (w *Window) moveChildBelow(child, sibling *Window) {
	w.children = removeWindow(w.children, child)
	if i := indexOfWindow(w.children, sibling); sibling != nil && i >= 0 {
		w.children = insertWindow(w.children, i, child)
		return
	}
	w.children = insertWindow(w.children, 0, child)
}

func insertWindow(list []*Window, i int, win *Window) []*Window {
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = win
	return list
}

func (w *Window) addEventListener(l *EventListener) {
	w.listeners = append(w.listeners, l)
}

func (w *Window) removeEventListener(l *EventListener) {
	for i, cand := range w.listeners {
		if cand == l {
			w.listeners = append(w.listeners[:i], w.listeners[i+1:]...)
			return
		}
	}
}

// listenerOf returns the listener client registered on w, if any.
func (w *Window) listenerOf(c *Client) *EventListener {
	for _, l := range w.listeners {
		if l.Client == c {
			return l
		}
	}
	return nil
}

// HasListenerFor reports whether any client selected a bit of mask.
func (w *Window) HasListenerFor(mask uint32) bool {
	for _, l := range w.listeners {
		if l.interestedIn(mask) {
			return true
		}
	}
	return false
}

// SendEvent delivers ev to every listener that selected a bit of mask.
func (w *Window) SendEvent(mask uint32, ev xgb.Event) {
	for _, l := range append([]*EventListener(nil), w.listeners...) {
		if l.interestedIn(mask) {
			l.Client.SendEvent(ev)
		}
	}
}

// sendEventTo is SendEvent restricted to one client.
func (w *Window) sendEventTo(mask uint32, ev xgb.Event, c *Client) {
	for _, l := range append([]*EventListener(nil), w.listeners...) {
		if l.interestedIn(mask) && l.Client == c {
			l.Client.SendEvent(ev)
		}
	}
}

// sendEventToAll ignores the listeners' masks.
func (w *Window) sendEventToAll(ev xgb.Event) {
	for _, l := range append([]*EventListener(nil), w.listeners...) {
		l.Client.SendEvent(ev)
	}
}

// AllEventMasks is the union of every listener's mask.
func (w *Window) AllEventMasks() Bitmask {
	var m Bitmask
	for _, l := range w.listeners {
		m.Join(l.Mask)
	}
	return m
}

func (w *Window) buttonPressListener() *EventListener {
	for _, l := range w.listeners {
		if l.interestedIn(xproto.EventMaskButtonPress) {
			return l
		}
	}
	return nil
}

// RootToLocal converts root coordinates into w's coordinate space.
func (w *Window) RootToLocal(x, y int16) (int16, int16) {
	for win := w; win != nil; win = win.parent {
		x -= win.X
		y -= win.Y
	}
	return x, y
}

// LocalToRoot converts coordinates in w's space into root coordinates.
func (w *Window) LocalToRoot(x, y int16) (int16, int16) {
	for win := w; win != nil; win = win.parent {
		x += win.X
		y += win.Y
	}
	return x, y
}

func (w *Window) RootX() int16 {
	x, _ := w.LocalToRoot(0, 0)
	return x
}

func (w *Window) RootY() int16 {
	_, y := w.LocalToRoot(0, 0)
	return y
}

func (w *Window) ContainsPoint(rootX, rootY int16) bool {
	x, y := w.RootToLocal(rootX, rootY)
	return x >= 0 && y >= 0 && int(x) < int(w.Width) && int(y) < int(w.Height)
}

// ancestorWithEventMask walks up from w to the first window with a
// listener for mask. A do-not-propagate mask on the way stops the walk.
func (w *Window) ancestorWithEventMask(mask uint32) *Window {
	for win := w; win != nil; win = win.parent {
		if win.HasListenerFor(mask) {
			return win
		}
		if win.Attributes.DoNotPropagateMask.IsSet(mask) {
			return nil
		}
	}
	return nil
}

// ancestorWithEvent is like ancestorWithEventMask but also stops at end.
func (w *Window) ancestorWithEvent(mask uint32, end *Window) *Window {
	for win := w; win != nil; win = win.parent {
		if win.HasListenerFor(mask) {
			return win
		}
		if win == end || win.Attributes.DoNotPropagateMask.IsSet(mask) {
			return nil
		}
	}
	return nil
}

// IsAncestorOf reports whether w is a strict ancestor of other.
func (w *Window) IsAncestorOf(other *Window) bool {
	if other == w {
		return false
	}
	for win := other; win != nil; win = win.parent {
		if win == w {
			return true
		}
	}
	return false
}

// childAt returns the topmost mapped child containing the root point.
func (w *Window) childAt(rootX, rootY int16) *Window {
	for i := len(w.children) - 1; i >= 0; i-- {
		c := w.children[i]
		if c.Attributes.Mapped && c.ContainsPoint(rootX, rootY) {
			return c
		}
	}
	return nil
}

// MapState is unmapped, unviewable (an ancestor is unmapped) or
// viewable.
func (w *Window) MapState() byte {
	if !w.Attributes.Mapped {
		return xproto.MapStateUnmapped
	}
	for win := w.parent; win != nil; win = win.parent {
		if !win.Attributes.Mapped {
			return xproto.MapStateUnviewable
		}
	}
	return xproto.MapStateViewable
}

// DisableSubtree marks w and every descendant as not accepting input.
func (w *Window) DisableSubtree() {
	stack := []*Window{w}
	for len(stack) > 0 {
		win := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		win.Attributes.Enabled = false
		stack = append(stack, win.children...)
	}
}
