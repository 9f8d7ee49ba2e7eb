package xserver

import (
	"github.com/BurntSushi/xgb/xproto"

	"github.com/intio/headless-xserver/internal/wire"
)

func (s *Server) window(id uint32) (*Window, error) {
	w := s.Windows.Get(id)
	if w == nil {
		return nil, BadWindow(id)
	}
	return w, nil
}

func (s *Server) createWindow(r *request) error {
	depth := r.data
	id := r.body.Uint32()
	parentID := r.body.Uint32()
	if !r.c.ownsID(id) {
		return BadIDChoice(id)
	}
	parent, err := s.window(parentID)
	if err != nil {
		return err
	}
	x := r.body.Int16()
	y := r.body.Int16()
	width := r.body.Uint16()
	height := r.body.Uint16()
	border := r.body.Uint16()
	class := r.body.Uint16()
	visual := s.Pixmaps.VisualByID(r.body.Uint32())
	mask := Bitmask(r.body.Uint32())
	if r.body.Err() != nil {
		return BadLength()
	}

	w, err := s.Windows.Create(id, parent, x, y, width, height, class, visual, depth, r.c)
	if err != nil {
		return err
	}
	w.BorderWidth = border
	if !mask.IsEmpty() {
		if _, err := r.c.checkEventMask(w, mask, r.body); err != nil {
			s.Windows.Destroy(id)
			return err
		}
		if err := w.Attributes.update(mask, r.body, s.Cursors); err != nil {
			s.Windows.Destroy(id)
			return err
		}
	}
	r.c.setEventMask(w, w.Attributes.EventMask)
	r.c.registerResource(w)
	parent.SendEvent(xproto.EventMaskSubstructureNotify, xproto.CreateNotifyEvent{
		Parent:           xproto.Window(parent.id),
		Window:           xproto.Window(w.id),
		X:                w.X,
		Y:                w.Y,
		Width:            w.Width,
		Height:           w.Height,
		BorderWidth:      w.BorderWidth,
		OverrideRedirect: w.Attributes.OverrideRedirect,
	})
	return nil
}

func (s *Server) getWindowAttributes(r *request) error {
	w, err := s.window(r.body.Uint32())
	if err != nil {
		return err
	}
	a := &w.Attributes
	var visual uint32
	if w.IsInputOutput() {
		visual = w.content.Visual().ID
	}
	r.beginReply(a.BackingStore)
	r.reply.Uint32(visual)
	r.reply.Uint16(a.Class)
	r.reply.Byte(a.BitGravity)
	r.reply.Byte(a.WinGravity)
	r.reply.Uint32(a.BackingPlanes)
	r.reply.Uint32(a.BackingPixel)
	r.reply.Bool(a.SaveUnder)
	r.reply.Bool(true)
	r.reply.Byte(w.MapState())
	r.reply.Bool(a.OverrideRedirect)
	r.reply.Uint32(0)
	r.reply.Uint32(uint32(w.AllEventMasks()))
	r.reply.Uint32(uint32(r.c.eventMask(w)))
	r.reply.Uint16(uint16(a.DoNotPropagateMask))
	r.reply.Pad(2)
	r.endReply()
	return nil
}

// exclusiveEvents may be selected by one client per window at a time.
var exclusiveEvents = []uint32{
	xproto.EventMaskSubstructureRedirect,
	xproto.EventMaskResizeRedirect,
	xproto.EventMaskButtonPress,
}

// checkEventMask peeks the CWEventMask entry of a value list and
// refuses it when it selects an exclusive event another client already
// holds on w. Nothing is consumed from body.
func (c *Client) checkEventMask(w *Window, mask Bitmask, body *wire.Reader) (Bitmask, error) {
	if !mask.IsSet(xproto.CwEventMask) {
		return 0, nil
	}
	index := (mask & (xproto.CwEventMask - 1)).Count()
	v, ok := body.PeekUint32(index * 4)
	if !ok {
		return 0, BadLength()
	}
	selected := Bitmask(v)
	for _, ev := range exclusiveEvents {
		if selected.IsSet(ev) && w.HasListenerFor(ev) && !c.isInterestedIn(ev, w) {
			return 0, BadAccess()
		}
	}
	return selected, nil
}

func (s *Server) changeWindowAttributes(r *request) error {
	w, err := s.window(r.body.Uint32())
	if err != nil {
		return err
	}
	mask := Bitmask(r.body.Uint32())
	if mask.IsEmpty() {
		return nil
	}
	selected, err := r.c.checkEventMask(w, mask, r.body)
	if err != nil {
		return err
	}
	if err := s.Windows.UpdateAttributes(w, mask, r.body, s.Cursors); err != nil {
		return err
	}
	if mask.IsSet(xproto.CwEventMask) {
		r.c.setEventMask(w, selected)
	}
	return nil
}

func (s *Server) destroyWindow(r *request) error {
	s.Windows.Destroy(r.body.Uint32())
	return nil
}

func (s *Server) reparentWindow(r *request) error {
	w, err := s.window(r.body.Uint32())
	if err != nil {
		return err
	}
	parent, err := s.window(r.body.Uint32())
	if err != nil {
		return err
	}
	if w == parent || w.IsAncestorOf(parent) || w == s.Windows.Root {
		return BadMatch()
	}
	s.Windows.Reparent(w, parent)
	return nil
}

func (s *Server) mapWindow(r *request) error {
	w, err := s.window(r.body.Uint32())
	if err != nil {
		return err
	}
	s.Windows.Map(w)
	return nil
}

// mapSubwindows maps the subtree children first, the window itself
// last.
func (s *Server) mapSubwindows(r *request) error {
	w, err := s.window(r.body.Uint32())
	if err != nil {
		return err
	}
	var mapTree func(w *Window)
	mapTree = func(w *Window) {
		for _, child := range w.Children() {
			mapTree(child)
		}
		s.Windows.Map(w)
	}
	mapTree(w)
	return nil
}

func (s *Server) unmapWindow(r *request) error {
	w, err := s.window(r.body.Uint32())
	if err != nil {
		return err
	}
	s.Windows.Unmap(w)
	return nil
}

func (s *Server) configureWindow(r *request) error {
	w, err := s.window(r.body.Uint32())
	if err != nil {
		return err
	}
	mask := Bitmask(r.body.Uint16())
	r.body.Skip(2)
	if mask.IsEmpty() || w == s.Windows.Root {
		return nil
	}
	return s.Windows.Configure(w, mask, r.body)
}

func (s *Server) getGeometry(r *request) error {
	id := r.body.Uint32()
	var x, y int16
	var depth byte
	var width, height, border uint16
	w := s.Windows.Get(id)
	d := s.Drawables.Get(id)
	switch {
	case d != nil:
		depth, width, height = d.Depth(), d.Width(), d.Height()
	case w != nil:
		// InputOnly windows have no content.
		width, height = w.Width, w.Height
	default:
		return BadDrawable(id)
	}
	if w != nil {
		x, y, border = w.X, w.Y, w.BorderWidth
	}
	r.beginReply(depth)
	r.reply.Uint32(s.Windows.Root.id)
	r.reply.Int16(x)
	r.reply.Int16(y)
	r.reply.Uint16(width)
	r.reply.Uint16(height)
	r.reply.Uint16(border)
	r.reply.Pad(10)
	r.endReply()
	return nil
}

// queryTree lists children in stacking order, bottom first.
func (s *Server) queryTree(r *request) error {
	w, err := s.window(r.body.Uint32())
	if err != nil {
		return err
	}
	var parent uint32
	if w.parent != nil {
		parent = w.parent.id
	}
	r.beginReply(0)
	r.reply.Uint32(s.Windows.Root.id)
	r.reply.Uint32(parent)
	r.reply.Uint16(uint16(len(w.children)))
	r.reply.Pad(14)
	for _, child := range w.children {
		r.reply.Uint32(child.id)
	}
	r.endReply()
	return nil
}

func (s *Server) changeProperty(r *request) error {
	mode := r.data
	w, err := s.window(r.body.Uint32())
	if err != nil {
		return err
	}
	atom := xproto.Atom(r.body.Uint32())
	typ := xproto.Atom(r.body.Uint32())
	format := r.body.Byte()
	r.body.Skip(3)
	length := int(r.body.Uint32())
	if mode > xproto.PropModeAppend {
		return BadValue(uint32(mode))
	}
	if !validFormat(format) {
		return BadValue(uint32(format))
	}
	if !s.Atoms.IsValid(atom) {
		return BadAtom(uint32(atom))
	}
	size := length * int(format/8)
	if size < 0 || size > r.body.Remaining() {
		return BadLength()
	}
	data := append([]byte(nil), r.body.Bytes(size)...)
	swapProperty(r.order(), format, data)
	s.Windows.ModifyProperty(w, atom, typ, format, mode, data)
	return nil
}

func (s *Server) deleteProperty(r *request) error {
	w, err := s.window(r.body.Uint32())
	if err != nil {
		return err
	}
	w.deleteProperty(xproto.Atom(r.body.Uint32()))
	return nil
}

// getProperty reads a slice of a property in 4-byte units. With delete
// set, a property read to its end is removed afterwards.
func (s *Server) getProperty(r *request) error {
	del := r.data == 1
	w, err := s.window(r.body.Uint32())
	if err != nil {
		return err
	}
	atom := xproto.Atom(r.body.Uint32())
	typ := xproto.Atom(r.body.Uint32())
	longOffset := r.body.Uint32()
	longLength := r.body.Uint32()

	p := w.Property(atom)
	switch {
	case p == nil:
		r.beginReply(0)
		r.reply.Uint32(0)
		r.reply.Uint32(0)
		r.reply.Uint32(0)
		r.reply.Pad(12)
		r.endReply()
		return nil
	case typ != xproto.GetPropertyTypeAny && p.Type != typ:
		r.beginReply(p.Format)
		r.reply.Uint32(uint32(p.Type))
		r.reply.Uint32(0)
		r.reply.Uint32(0)
		r.reply.Pad(12)
		r.endReply()
		return nil
	}

	offset := int64(longOffset) * 4
	length := int64(len(p.Data)) - offset
	if limit := int64(longLength) * 4; limit < length {
		length = limit
	}
	if length < 0 {
		return BadValue(longOffset)
	}
	after := int64(len(p.Data)) - offset - length
	data := append([]byte(nil), p.Data[offset:offset+length]...)
	swapProperty(r.order(), p.Format, data)

	r.beginReply(p.Format)
	r.reply.Uint32(uint32(p.Type))
	r.reply.Uint32(uint32(after))
	r.reply.Uint32(uint32(length) / uint32(p.Format/8))
	r.reply.Pad(12)
	r.reply.Bytes(data)
	r.endReply()

	if del && after == 0 {
		w.deleteProperty(atom)
	}
	return nil
}

func (s *Server) queryPointer(r *request) error {
	w, err := s.window(r.body.Uint32())
	if err != nil {
		return err
	}
	x, y := s.Input.Pointer.X, s.Input.Pointer.Y
	var child uint32
	if c := w.childAt(x, y); c != nil {
		child = c.id
	}
	lx, ly := w.RootToLocal(x, y)
	r.beginReply(boolByte(!s.relative.Load()))
	r.reply.Uint32(s.Windows.Root.id)
	r.reply.Uint32(child)
	r.reply.Int16(x)
	r.reply.Int16(y)
	r.reply.Int16(lx)
	r.reply.Int16(ly)
	r.reply.Uint16(uint16(s.Input.KeyButMask()))
	r.reply.Pad(6)
	r.endReply()
	return nil
}

func (s *Server) translateCoordinates(r *request) error {
	src, err := s.window(r.body.Uint32())
	if err != nil {
		return err
	}
	dst, err := s.window(r.body.Uint32())
	if err != nil {
		return err
	}
	rootX, rootY := src.LocalToRoot(r.body.Int16(), r.body.Int16())
	x, y := dst.RootToLocal(rootX, rootY)
	var child uint32
	if c := dst.childAt(rootX, rootY); c != nil {
		child = c.id
	}
	r.beginReply(1)
	r.reply.Uint32(child)
	r.reply.Int16(x)
	r.reply.Int16(y)
	r.reply.Pad(16)
	r.endReply()
	return nil
}

// warpPointer moves the pointer, optionally only while it lies inside a
// rectangle of the source window. Relative mode ignores it.
func (s *Server) warpPointer(r *request) error {
	if s.relative.Load() {
		return nil
	}
	src := s.Windows.Get(r.body.Uint32())
	dst := s.Windows.Get(r.body.Uint32())
	srcX := r.body.Int16()
	srcY := r.body.Int16()
	srcW := int(r.body.Uint16())
	srcH := int(r.body.Uint16())
	dstX := r.body.Int16()
	dstY := r.body.Int16()

	p := s.Input.Pointer
	if src != nil {
		if srcW == 0 {
			srcW = int(src.Width) - int(srcX)
		}
		if srcH == 0 {
			srcH = int(src.Height) - int(srcY)
		}
		lx, ly := src.RootToLocal(p.X, p.Y)
		if lx < srcX || ly < srcY || int(lx) >= int(srcX)+srcW || int(ly) >= int(srcY)+srcH {
			return nil
		}
	}
	if dst == nil {
		s.Input.MoveTo(int(p.X)+int(dstX), int(p.Y)+int(dstY))
		return nil
	}
	x, y := dst.LocalToRoot(dstX, dstY)
	s.Input.MoveTo(int(x), int(y))
	return nil
}

func (s *Server) setInputFocus(r *request) error {
	revertTo := r.data
	id := r.body.Uint32()
	switch revertTo {
	case xproto.InputFocusNone:
		s.Windows.SetFocus(nil, revertTo)
	case xproto.InputFocusPointerRoot:
		s.Windows.SetFocus(s.Windows.Root, revertTo)
	case xproto.InputFocusParent:
		w, err := s.window(id)
		if err != nil {
			return err
		}
		s.Windows.SetFocus(w, revertTo)
	default:
		return BadValue(uint32(revertTo))
	}
	return nil
}

func (s *Server) getInputFocus(r *request) error {
	var focus uint32
	if w := s.Windows.Focused(); w != nil {
		focus = w.id
	}
	r.beginReply(s.Windows.FocusRevertTo())
	r.reply.Uint32(focus)
	r.reply.Pad(20)
	r.endReply()
	return nil
}

// sendEvent forwards a client-built event. Destinations 0 and 1
// (PointerWindow and InputFocus) are not supported and dropped.
func (s *Server) sendEvent(r *request) error {
	id := r.body.Uint32()
	if id == 0 || id == 1 {
		return nil
	}
	w, err := s.window(id)
	if err != nil {
		return err
	}
	mask := r.body.Uint32()
	var ev rawEvent
	copy(ev.data[:], r.body.Bytes(32))
	if r.body.Err() != nil {
		return BadLength()
	}
	if mask == 0 {
		if w.originClient != nil {
			w.originClient.SendEvent(ev)
		}
		return nil
	}
	w.SendEvent(mask, ev)
	return nil
}

func (s *Server) getScreenSaver(r *request) error {
	r.beginReply(0)
	r.reply.Uint16(600)
	r.reply.Uint16(600)
	r.reply.Byte(1)
	r.reply.Byte(1)
	r.reply.Pad(18)
	r.endReply()
	return nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
