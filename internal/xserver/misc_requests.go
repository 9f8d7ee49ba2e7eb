package xserver

import (
	"github.com/BurntSushi/xgb/xproto"
)

func (s *Server) internAtom(r *request) error {
	onlyIfExists := r.data == 1
	n := int(r.body.Uint16())
	r.body.Skip(2)
	name := r.body.String8(n)
	if r.body.Err() != nil {
		return BadLength()
	}
	var id xproto.Atom
	if onlyIfExists {
		id, _ = s.Atoms.Lookup(name)
	} else {
		id = s.Atoms.Intern(name)
	}
	r.beginReply(0)
	r.reply.Uint32(uint32(id))
	r.reply.Pad(20)
	r.endReply()
	return nil
}

func (s *Server) getAtomName(r *request) error {
	id := r.body.Uint32()
	name, ok := s.Atoms.Name(xproto.Atom(id))
	if !ok {
		return BadAtom(id)
	}
	r.beginReply(0)
	r.reply.Uint16(uint16(len(name)))
	r.reply.Pad(22)
	r.reply.String8(name)
	r.endReply()
	return nil
}

func (s *Server) setSelectionOwner(r *request) error {
	ownerID := r.body.Uint32()
	atom := xproto.Atom(r.body.Uint32())
	t := xproto.Timestamp(r.body.Uint32())
	var owner *Window
	if ownerID != 0 {
		w, err := s.window(ownerID)
		if err != nil {
			return err
		}
		owner = w
	}
	if !s.Atoms.IsValid(atom) {
		return BadAtom(uint32(atom))
	}
	s.Selections.SetOwner(atom, owner, r.c, t)
	return nil
}

func (s *Server) getSelectionOwner(r *request) error {
	atom := xproto.Atom(r.body.Uint32())
	if !s.Atoms.IsValid(atom) {
		return BadAtom(uint32(atom))
	}
	var owner uint32
	if w := s.Selections.Owner(atom); w != nil {
		owner = w.id
	}
	r.beginReply(0)
	r.reply.Uint32(owner)
	r.reply.Pad(20)
	r.endReply()
	return nil
}

// grabPointer starts an explicit grab. In relative mouse mode the
// pointer belongs to the host and every grab is refused.
func (s *Server) grabPointer(r *request) error {
	status := byte(xproto.GrabStatusAlreadyGrabbed)
	if !s.relative.Load() {
		ownerEvents := r.data == 1
		w, err := s.window(r.body.Uint32())
		if err != nil {
			return err
		}
		mask := Bitmask(r.body.Uint16())
		switch {
		case s.Grabs.Window() != nil && s.Grabs.Client() != r.c:
			status = xproto.GrabStatusAlreadyGrabbed
		case w.MapState() != xproto.MapStateViewable:
			status = xproto.GrabStatusNotViewable
		default:
			s.Grabs.Activate(w, ownerEvents, mask, r.c)
			status = xproto.GrabStatusSuccess
		}
	}
	r.beginReply(status)
	r.reply.Pad(24)
	r.endReply()
	return nil
}

func (s *Server) ungrabPointer(r *request) error {
	s.Grabs.Deactivate()
	return nil
}

// openFont accepts the "cursor" font only; the client driver opens it
// for glyph cursors, which are skipped.
func (s *Server) openFont(r *request) error {
	r.body.Skip(4)
	n := int(r.body.Uint16())
	r.body.Skip(2)
	name := r.body.String8(n)
	if name != "cursor" {
		return unsupported("OpenFont %q", name)
	}
	return nil
}

// listFonts never matches anything.
func (s *Server) listFonts(r *request) error {
	r.beginReply(0)
	r.reply.Uint16(0)
	r.reply.Pad(22)
	r.endReply()
	return nil
}

func (s *Server) queryExtension(r *request) error {
	n := int(r.body.Uint16())
	r.body.Skip(2)
	name := r.body.String8(n)
	ext := s.extensionsByName[name]
	r.beginReply(0)
	if ext == nil {
		r.reply.Bool(false)
		r.reply.Pad(23)
	} else {
		r.reply.Bool(true)
		r.reply.Byte(ext.major)
		r.reply.Byte(ext.firstEvent)
		r.reply.Byte(ext.firstError)
		r.reply.Pad(20)
	}
	r.endReply()
	return nil
}

// getKeyboardMapping returns keysymsPerKeycode keysyms for each of
// count keycodes starting at first.
func (s *Server) getKeyboardMapping(r *request) error {
	first := r.body.Byte()
	count := int(r.body.Byte())
	syms := s.Input.Keyboard.Keysyms(first, count)
	r.beginReply(keysymsPerKeycode)
	r.reply.Pad(24)
	for _, sym := range syms {
		r.reply.Uint32(uint32(sym))
	}
	r.endReply()
	return nil
}

// getModifierMapping reports one keycode per modifier, all unset.
func (s *Server) getModifierMapping(r *request) error {
	r.beginReply(1)
	r.reply.Pad(24)
	r.reply.Pad(8)
	r.endReply()
	return nil
}
