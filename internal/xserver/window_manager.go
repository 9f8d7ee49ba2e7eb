package xserver

import (
	"sort"

	"github.com/BurntSushi/xgb/xproto"

	"github.com/intio/headless-xserver/internal/wire"
)

// WindowListener observes changes a renderer needs to follow. Callbacks
// run on request goroutines with the window manager lock held and must
// not block.
type WindowListener interface {
	OnMapWindow(w *Window)
	OnUnmapWindow(w *Window)
	OnChangeWindowZOrder(w *Window)
	OnUpdateWindowContent(w *Window)
	OnUpdateWindowGeometry(w *Window, resized bool)
	OnUpdateWindowAttributes(w *Window, mask Bitmask)
	OnModifyWindowProperty(w *Window, p *Property)
}

// NopWindowListener implements WindowListener with empty methods, for
// embedding.
type NopWindowListener struct{}

func (NopWindowListener) OnMapWindow(*Window)                       {}
func (NopWindowListener) OnUnmapWindow(*Window)                     {}
func (NopWindowListener) OnChangeWindowZOrder(*Window)              {}
func (NopWindowListener) OnUpdateWindowContent(*Window)             {}
func (NopWindowListener) OnUpdateWindowGeometry(*Window, bool)      {}
func (NopWindowListener) OnUpdateWindowAttributes(*Window, Bitmask) {}
func (NopWindowListener) OnModifyWindowProperty(*Window, *Property) {}

// WindowManager owns the window tree, input focus and the window
// listeners.
type WindowManager struct {
	resourceObservers

	Root      *Window
	drawables *DrawableManager
	windows   map[uint32]*Window

	focused       *Window
	focusRevertTo byte

	windowListeners []WindowListener
}

func NewWindowManager(width, height uint16, drawables *DrawableManager, ids *IDAllocator) *WindowManager {
	id := ids.ServerID()
	content := drawables.Create(id, width, height, drawables.Visual())
	root := newWindow(id, content, 0, 0, width, height, nil)
	root.Attributes.Mapped = true
	m := &WindowManager{
		Root:          root,
		drawables:     drawables,
		windows:       map[uint32]*Window{id: root},
		focusRevertTo: xproto.InputFocusNone,
	}
	return m
}

func (m *WindowManager) Get(id uint32) *Window {
	return m.windows[id]
}

// Windows returns every window ordered by id.
func (m *WindowManager) Windows() []*Window {
	out := make([]*Window, 0, len(m.windows))
	for _, w := range m.windows {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (m *WindowManager) AddWindowListener(l WindowListener) {
	m.windowListeners = append(m.windowListeners, l)
}

func (m *WindowManager) RemoveWindowListener(l WindowListener) {
	for i, cand := range m.windowListeners {
		if cand == l {
			m.windowListeners = append(m.windowListeners[:i], m.windowListeners[i+1:]...)
			return
		}
	}
}

// each calls fn for every window listener, most recently added first.
func (m *WindowManager) each(fn func(l WindowListener)) {
	ls := append([]WindowListener(nil), m.windowListeners...)
	for i := len(ls) - 1; i >= 0; i-- {
		fn(ls[i])
	}
}

// Create adds a window under parent. Class CopyFromParent takes the
// parent's class and depth; an InputOutput window needs an InputOutput
// parent and a visual matching its depth.
func (m *WindowManager) Create(id uint32, parent *Window, x, y int16, w, h uint16, class uint16, visual *Visual, depth byte, client *Client) (*Window, error) {
	if _, ok := m.windows[id]; ok {
		return nil, BadIDChoice(id)
	}
	inputOutput := false
	switch class {
	case xproto.WindowClassCopyFromParent:
		if depth == 0 && parent.IsInputOutput() {
			depth = parent.content.Depth()
		}
		inputOutput = parent.IsInputOutput()
	case xproto.WindowClassInputOutput:
		if !parent.IsInputOutput() {
			return nil, BadMatch()
		}
		if depth == 0 {
			depth = parent.content.Depth()
		}
		inputOutput = true
	case xproto.WindowClassInputOnly:
	default:
		return nil, BadValue(uint32(class))
	}

	var content *Drawable
	if inputOutput {
		if visual == nil {
			visual = parent.content.Visual()
		}
		if depth != visual.Depth {
			return nil, BadMatch()
		}
		if content = m.drawables.Create(id, w, h, visual); content == nil {
			return nil, BadIDChoice(id)
		}
	}

	win := newWindow(id, content, x, y, w, h, client)
	win.Attributes.Class = class
	if content != nil {
		content.SetOnDraw(func() { m.notifyContent(win) })
	}
	m.windows[id] = win
	parent.addChild(win)
	m.notifyCreate(win)
	return win, nil
}

func (m *WindowManager) notifyContent(w *Window) {
	m.each(func(l WindowListener) { l.OnUpdateWindowContent(w) })
}

// Destroy unmaps and removes a window and its whole subtree. The root
// cannot be destroyed.
func (m *WindowManager) Destroy(id uint32) {
	w := m.windows[id]
	if w == nil || w == m.Root {
		return
	}
	m.Unmap(w)
	m.removeSubtree(w)
}

func (m *WindowManager) removeSubtree(w *Window) {
	for _, child := range w.Children() {
		m.removeSubtree(child)
	}
	parent := w.parent
	w.SendEvent(xproto.EventMaskStructureNotify, xproto.DestroyNotifyEvent{
		Event:  xproto.Window(w.id),
		Window: xproto.Window(w.id),
	})
	parent.SendEvent(xproto.EventMaskSubstructureNotify, xproto.DestroyNotifyEvent{
		Event:  xproto.Window(parent.id),
		Window: xproto.Window(w.id),
	})
	delete(m.windows, w.id)
	if w.content != nil {
		m.drawables.Remove(w.content.id)
	}
	m.notifyFree(w)
	if w == m.focused {
		m.revertFocus()
	}
	parent.removeChild(w)
}

// Map maps w directly unless the parent redirects substructure, in
// which case the redirecting client gets a MapRequest instead.
func (m *WindowManager) Map(w *Window) {
	if w.Attributes.Mapped {
		return
	}
	parent := w.parent
	if parent.HasListenerFor(xproto.EventMaskSubstructureRedirect) && !w.Attributes.OverrideRedirect {
		parent.SendEvent(xproto.EventMaskSubstructureRedirect, xproto.MapRequestEvent{
			Parent: xproto.Window(parent.id),
			Window: xproto.Window(w.id),
		})
		return
	}
	w.Attributes.Mapped = true
	w.SendEvent(xproto.EventMaskStructureNotify, xproto.MapNotifyEvent{
		Event:            xproto.Window(w.id),
		Window:           xproto.Window(w.id),
		OverrideRedirect: w.Attributes.OverrideRedirect,
	})
	parent.SendEvent(xproto.EventMaskSubstructureNotify, xproto.MapNotifyEvent{
		Event:            xproto.Window(parent.id),
		Window:           xproto.Window(w.id),
		OverrideRedirect: w.Attributes.OverrideRedirect,
	})
	w.SendEvent(xproto.EventMaskExposure, exposeEvent(w))
	m.each(func(l WindowListener) { l.OnMapWindow(w) })
}

func (m *WindowManager) Unmap(w *Window) {
	if w == m.Root || !w.Attributes.Mapped {
		return
	}
	w.Attributes.Mapped = false
	parent := w.parent
	w.SendEvent(xproto.EventMaskStructureNotify, xproto.UnmapNotifyEvent{
		Event:  xproto.Window(w.id),
		Window: xproto.Window(w.id),
	})
	parent.SendEvent(xproto.EventMaskSubstructureNotify, xproto.UnmapNotifyEvent{
		Event:  xproto.Window(parent.id),
		Window: xproto.Window(w.id),
	})
	if w == m.focused {
		m.revertFocus()
	}
	m.each(func(l WindowListener) { l.OnUnmapWindow(w) })
}

func (m *WindowManager) Focused() *Window {
	return m.focused
}

func (m *WindowManager) FocusRevertTo() byte {
	return m.focusRevertTo
}

func (m *WindowManager) SetFocus(w *Window, revertTo byte) {
	m.focused = w
	m.focusRevertTo = revertTo
}

func (m *WindowManager) revertFocus() {
	switch m.focusRevertTo {
	case xproto.InputFocusNone:
		m.focused = nil
	case xproto.InputFocusPointerRoot:
		m.focused = m.Root
	case xproto.InputFocusParent:
		if m.focused != nil && m.focused.parent != nil {
			m.focused = m.focused.parent
		}
	}
}

// windowChanges is a decoded ConfigureWindow value list.
type windowChanges struct {
	mask        Bitmask
	x, y        int16
	width       uint16
	height      uint16
	borderWidth uint16
	sibling     *Window
	stackMode   byte
	hasStack    bool
}

func (m *WindowManager) readChanges(w *Window, mask Bitmask, r *wire.Reader) (windowChanges, error) {
	c := windowChanges{
		mask:        mask,
		x:           w.X,
		y:           w.Y,
		width:       w.Width,
		height:      w.Height,
		borderWidth: w.BorderWidth,
	}
	var bad error
	mask.Each(func(flag uint32) {
		v := r.Uint32()
		switch flag {
		case xproto.ConfigWindowX:
			c.x = int16(v)
		case xproto.ConfigWindowY:
			c.y = int16(v)
		case xproto.ConfigWindowWidth:
			c.width = uint16(v)
		case xproto.ConfigWindowHeight:
			c.height = uint16(v)
		case xproto.ConfigWindowBorderWidth:
			c.borderWidth = uint16(v)
		case xproto.ConfigWindowSibling:
			c.sibling = m.windows[v]
		case xproto.ConfigWindowStackMode:
			if v > xproto.StackModeOpposite {
				bad = BadValue(v)
			}
			c.stackMode = byte(v)
			c.hasStack = true
		}
	})
	if r.Err() != nil {
		return c, BadLength()
	}
	return c, bad
}

// Configure applies a ConfigureWindow value list, or forwards it as a
// ConfigureRequest when the parent redirects substructure.
func (m *WindowManager) Configure(w *Window, mask Bitmask, r *wire.Reader) error {
	c, err := m.readChanges(w, mask, r)
	if err != nil {
		return err
	}
	parent := w.parent
	override := w.Attributes.OverrideRedirect
	if parent.HasListenerFor(xproto.EventMaskSubstructureRedirect) && !override {
		sibling := xproto.Window(0)
		if prev := w.previousSibling(); prev != nil {
			sibling = xproto.Window(prev.id)
		}
		parent.SendEvent(xproto.EventMaskSubstructureRedirect, xproto.ConfigureRequestEvent{
			StackMode:   c.stackMode,
			Parent:      xproto.Window(parent.id),
			Window:      xproto.Window(w.id),
			Sibling:     sibling,
			X:           c.x,
			Y:           c.y,
			Width:       c.width,
			Height:      c.height,
			BorderWidth: c.borderWidth,
			ValueMask:   uint16(mask),
		})
		return nil
	}

	m.changeGeometry(w, c.x, c.y, c.width, c.height)
	w.BorderWidth = c.borderWidth
	if c.hasStack {
		m.changeZOrder(w, c.stackMode, c.sibling)
	}

	above := xproto.Window(0)
	if prev := w.previousSibling(); prev != nil {
		above = xproto.Window(prev.id)
	}
	notify := xproto.ConfigureNotifyEvent{
		Event:            xproto.Window(w.id),
		Window:           xproto.Window(w.id),
		AboveSibling:     above,
		X:                w.X,
		Y:                w.Y,
		Width:            w.Width,
		Height:           w.Height,
		BorderWidth:      w.BorderWidth,
		OverrideRedirect: override,
	}
	w.SendEvent(xproto.EventMaskStructureNotify, notify)
	notify.Event = xproto.Window(parent.id)
	parent.SendEvent(xproto.EventMaskSubstructureNotify, notify)
	return nil
}

// changeGeometry moves and resizes w. A resize the window itself
// redirects is reported with a ResizeRequest and not applied; an applied
// resize replaces the content drawable.
func (m *WindowManager) changeGeometry(w *Window, x, y int16, width, height uint16) {
	resized := w.Width != width || w.Height != height
	if resized && w.HasListenerFor(xproto.EventMaskResizeRedirect) {
		w.SendEvent(xproto.EventMaskResizeRedirect, xproto.ResizeRequestEvent{
			Window: xproto.Window(w.id),
			Width:  width,
			Height: height,
		})
		width, height = w.Width, w.Height
		resized = false
	}

	if resized && w.content != nil {
		old := w.content
		m.drawables.Remove(old.id)
		content := m.drawables.Create(old.id, width, height, old.visual)
		content.SetOnDraw(func() { m.notifyContent(w) })
		w.content = content
	}

	if resized || w.X != x || w.Y != y {
		w.X, w.Y = x, y
		w.Width, w.Height = width, height
		m.each(func(l WindowListener) { l.OnUpdateWindowGeometry(w, resized) })
	}

	if resized && w.content != nil && w.Attributes.Mapped {
		w.SendEvent(xproto.EventMaskExposure, exposeEvent(w))
	}
}

func (m *WindowManager) changeZOrder(w *Window, mode byte, sibling *Window) {
	parent := w.parent
	switch mode {
	case xproto.StackModeAbove:
		parent.moveChildAbove(w, sibling)
	case xproto.StackModeBelow:
		parent.moveChildBelow(w, sibling)
	}
	m.each(func(l WindowListener) { l.OnChangeWindowZOrder(w) })
}

// Reparent moves w under a new parent keeping its local position.
func (m *WindowManager) Reparent(w, parent *Window) {
	if old := w.parent; old != nil {
		old.removeChild(w)
	}
	parent.addChild(w)
}

// UpdateAttributes applies a ChangeWindowAttributes value list.
func (m *WindowManager) UpdateAttributes(w *Window, mask Bitmask, r *wire.Reader, cursors *CursorManager) error {
	if err := w.Attributes.update(mask, r, cursors); err != nil {
		return err
	}
	m.each(func(l WindowListener) { l.OnUpdateWindowAttributes(w, mask) })
	return nil
}

// ModifyProperty applies a ChangeProperty and notifies listeners.
func (m *WindowManager) ModifyProperty(w *Window, atom, typ xproto.Atom, format, mode byte, data []byte) *Property {
	p := w.modifyProperty(atom, typ, format, mode, data)
	m.each(func(l WindowListener) { l.OnModifyWindowProperty(w, p) })
	return p
}

// FindPointWindow returns the deepest mapped window under a root point.
func (m *WindowManager) FindPointWindow(rootX, rootY int16) *Window {
	return findPointWindow(m.Root, rootX, rootY)
}

func findPointWindow(w *Window, rootX, rootY int16) *Window {
	if !w.Attributes.Mapped || !w.ContainsPoint(rootX, rootY) {
		return nil
	}
	if child := w.childAt(rootX, rootY); child != nil {
		return findPointWindow(child, rootX, rootY)
	}
	return w
}

// FindByProcessID returns a window whose _NET_WM_PID matches pid.
func (m *WindowManager) FindByProcessID(atoms *AtomTable, pid uint32) *Window {
	atom, ok := atoms.Lookup("_NET_WM_PID")
	if !ok {
		return nil
	}
	for _, w := range m.Windows() {
		if p := w.Property(atom); p != nil && p.Uint32(0) == pid {
			return w
		}
	}
	return nil
}

func (m *WindowManager) Len() int {
	return len(m.windows)
}
