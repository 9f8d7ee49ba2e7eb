package xserver

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/intio/headless-xserver/internal/wire"
)

// requestHandler is one entry of a dispatch table. The dispatcher takes
// locks in the global category order before calling fn.
type requestHandler struct {
	name  string
	locks []Lockable
	fn    func(s *Server, r *request) error
}

// request is a decoded request header plus its complete body.
type request struct {
	c      *Client
	opcode byte
	data   byte
	seq    uint16
	body   *wire.Reader
	reply  *wire.Writer
}

func (r *request) beginReply(data byte) {
	r.reply.BeginReply(data, r.seq)
}

func (r *request) endReply() {
	r.reply.EndReply()
}

func (r *request) order() binary.ByteOrder {
	return r.c.order
}

func locks(cats ...Lockable) []Lockable { return cats }

// skip accepts a request and ignores its body.
func skip(name string) requestHandler {
	return requestHandler{name: name, fn: func(*Server, *request) error { return nil }}
}

var coreRequests map[byte]requestHandler

func init() {
	coreRequests = map[byte]requestHandler{
		opCreateWindow:           {"CreateWindow", locks(LockWindowManager, LockDrawableManager, LockInputDevice, LockCursorManager), (*Server).createWindow},
		opChangeWindowAttributes: {"ChangeWindowAttributes", locks(LockWindowManager, LockCursorManager), (*Server).changeWindowAttributes},
		opGetWindowAttributes:    {"GetWindowAttributes", locks(LockWindowManager), (*Server).getWindowAttributes},
		opDestroyWindow:          {"DestroyWindow", locks(LockWindowManager, LockDrawableManager, LockInputDevice), (*Server).destroyWindow},
		opReparentWindow:         {"ReparentWindow", locks(LockWindowManager), (*Server).reparentWindow},
		opMapWindow:              {"MapWindow", locks(LockWindowManager, LockInputDevice), (*Server).mapWindow},
		opMapSubwindows:          {"MapSubwindows", locks(LockWindowManager, LockInputDevice), (*Server).mapSubwindows},
		opUnmapWindow:            {"UnmapWindow", locks(LockWindowManager, LockInputDevice), (*Server).unmapWindow},
		opConfigureWindow:        {"ConfigureWindow", locks(LockWindowManager, LockDrawableManager, LockInputDevice), (*Server).configureWindow},
		opGetGeometry:            {"GetGeometry", locks(LockWindowManager, LockDrawableManager), (*Server).getGeometry},
		opQueryTree:              {"QueryTree", locks(LockWindowManager), (*Server).queryTree},
		opInternAtom:             {"InternAtom", nil, (*Server).internAtom},
		opGetAtomName:            {"GetAtomName", nil, (*Server).getAtomName},
		opChangeProperty:         {"ChangeProperty", locks(LockWindowManager), (*Server).changeProperty},
		opDeleteProperty:         {"DeleteProperty", locks(LockWindowManager), (*Server).deleteProperty},
		opGetProperty:            {"GetProperty", locks(LockWindowManager), (*Server).getProperty},
		opSetSelectionOwner:      {"SetSelectionOwner", locks(LockWindowManager), (*Server).setSelectionOwner},
		opGetSelectionOwner:      {"GetSelectionOwner", locks(LockWindowManager), (*Server).getSelectionOwner},
		opSendEvent:              {"SendEvent", allLockables, (*Server).sendEvent},
		opGrabPointer:            {"GrabPointer", locks(LockWindowManager, LockInputDevice, LockCursorManager), (*Server).grabPointer},
		opUngrabPointer:          {"UngrabPointer", locks(LockWindowManager, LockInputDevice), (*Server).ungrabPointer},
		opGrabServer:             skip("GrabServer"),
		opUngrabServer:           skip("UngrabServer"),
		opQueryPointer:           {"QueryPointer", locks(LockWindowManager, LockInputDevice), (*Server).queryPointer},
		opTranslateCoordinates:   {"TranslateCoordinates", locks(LockWindowManager), (*Server).translateCoordinates},
		opWarpPointer:            {"WarpPointer", locks(LockWindowManager, LockInputDevice), (*Server).warpPointer},
		opSetInputFocus:          {"SetInputFocus", locks(LockWindowManager), (*Server).setInputFocus},
		opGetInputFocus:          {"GetInputFocus", locks(LockWindowManager), (*Server).getInputFocus},
		opOpenFont:               {"OpenFont", nil, (*Server).openFont},
		opListFonts:              {"ListFonts", nil, (*Server).listFonts},
		opCreatePixmap:           {"CreatePixmap", locks(LockPixmapManager, LockDrawableManager), (*Server).createPixmap},
		opFreePixmap:             {"FreePixmap", locks(LockPixmapManager, LockDrawableManager), (*Server).freePixmap},
		opCreateGC:               {"CreateGC", locks(LockPixmapManager, LockDrawableManager, LockGraphicContextManager), (*Server).createGC},
		opChangeGC:               {"ChangeGC", locks(LockPixmapManager, LockDrawableManager, LockGraphicContextManager), (*Server).changeGC},
		opSetDashes:              skip("SetDashes"),
		opSetClipRectangles:      skip("SetClipRectangles"),
		opFreeGC:                 {"FreeGC", locks(LockGraphicContextManager), (*Server).freeGC},
		opCopyArea:               {"CopyArea", locks(LockDrawableManager, LockGraphicContextManager), (*Server).copyArea},
		opPolyLine:               {"PolyLine", locks(LockDrawableManager, LockGraphicContextManager), (*Server).polyLine},
		opPolySegment:            skip("PolySegment"),
		opPolyRectangle:          skip("PolyRectangle"),
		opPolyFillRectangle:      {"PolyFillRectangle", locks(LockDrawableManager, LockGraphicContextManager), (*Server).polyFillRectangle},
		opPutImage:               {"PutImage", locks(LockDrawableManager, LockGraphicContextManager), (*Server).putImage},
		opGetImage:               {"GetImage", locks(LockPixmapManager, LockDrawableManager), (*Server).getImage},
		opCreateColormap:         skip("CreateColormap"),
		opFreeColormap:           skip("FreeColormap"),
		opCreateCursor:           {"CreateCursor", locks(LockPixmapManager, LockDrawableManager, LockCursorManager), (*Server).createCursor},
		opCreateGlyphCursor:      skip("CreateGlyphCursor"),
		opFreeCursor:             {"FreeCursor", locks(LockPixmapManager, LockDrawableManager, LockCursorManager), (*Server).freeCursor},
		opQueryExtension:         {"QueryExtension", nil, (*Server).queryExtension},
		opGetKeyboardMapping:     {"GetKeyboardMapping", locks(LockInputDevice), (*Server).getKeyboardMapping},
		opChangeKeyboardControl:  skip("ChangeKeyboardControl"),
		opBell:                   skip("Bell"),
		opSetScreenSaver:         skip("SetScreenSaver"),
		opGetScreenSaver:         {"GetScreenSaver", nil, (*Server).getScreenSaver},
		opForceScreenSaver:       skip("ForceScreenSaver"),
		opGetModifierMapping:     {"GetModifierMapping", nil, (*Server).getModifierMapping},
		opNoOperation:            skip("NoOperation"),
	}
}

// readRequest reads one request header and its whole body. A zero
// length field announces a BIG-REQUESTS length in the next four bytes.
func readRequest(c *Client) (opcode, data byte, body []byte, err error) {
	var hdr [4]byte
	if _, err = io.ReadFull(c.r, hdr[:]); err != nil {
		return 0, 0, nil, err
	}
	opcode, data = hdr[0], hdr[1]
	n := int64(c.order.Uint16(hdr[2:]))*4 - 4
	if n == -4 {
		var ext [4]byte
		if _, err = io.ReadFull(c.r, ext[:]); err != nil {
			return 0, 0, nil, err
		}
		n = int64(c.order.Uint32(ext[:]))*4 - 8
	}
	if n < 0 || n > bigRequestMaxLength*4 {
		return 0, 0, nil, errors.Errorf("request %d: bad length %d", opcode, n)
	}
	body = make([]byte, n)
	if _, err = io.ReadFull(c.r, body); err != nil {
		return 0, 0, nil, errors.Wrapf(err, "request %d body", opcode)
	}
	c.seq.Add(1)
	return opcode, data, body, nil
}

// lookup finds the handler for a request. For an extension the minor
// opcode is the data byte. ok is false when the request is to be
// skipped silently.
func (s *Server) lookup(opcode, data byte) (h requestHandler, ok bool, err error) {
	if opcode < 128 {
		h, ok = coreRequests[opcode]
		if !ok {
			return h, false, unsupported("opcode %d", opcode)
		}
		return h, true, nil
	}
	ext := s.extensions[opcode]
	if ext == nil {
		return h, false, nil
	}
	h, ok = ext.requests[data]
	if !ok {
		return requestHandler{
			name: fmt.Sprintf("%s:%d", ext.name, data),
			fn:   func(*Server, *request) error { return BadImplementation() },
		}, true, nil
	}
	return h, true, nil
}

// dispatch runs one request. Protocol errors are reported to the
// client; any other error is returned and ends the connection.
// call runs h with its lock categories held.
func (s *Server) call(h requestHandler, r *request) error {
	unlock := s.locks.lock(h.locks...)
	defer unlock()
	return h.fn(s, r)
}

func (s *Server) dispatch(c *Client, opcode, data byte, body []byte) error {
	h, ok, err := s.lookup(opcode, data)
	if err != nil {
		return err
	}
	if !ok {
		c.log.WithField("opcode", opcode).Debug("skipping request for unknown extension")
		return nil
	}

	r := &request{
		c:      c,
		opcode: opcode,
		data:   data,
		seq:    c.Sequence(),
		body:   wire.NewReader(c.order, body),
		reply:  wire.NewWriter(c.order),
	}
	_, span := s.tracer.Start(c.ctx, h.name, trace.WithAttributes(
		attribute.Int("x11.opcode", int(opcode)),
		attribute.Int("x11.sequence", int(r.seq)),
		attribute.Int64("x11.client", int64(c.base)),
	))
	defer span.End()

	start := time.Now()
	err = s.call(h, r)
	s.metrics.ObserveRequest(h.name, time.Since(start))

	if err == nil {
		if r.reply.Len() > 0 {
			c.write(r.reply.Data())
		}
		return nil
	}
	if xerr, ok := asProtocolError(err); ok {
		span.SetStatus(codes.Error, xerr.Error())
		c.log.WithFields(logrus.Fields{
			"opcode":   h.name,
			"sequence": r.seq,
			"error":    xerr.Error(),
		}).Debug("request failed")
		s.metrics.RequestError(errorName(xerr.Code))
		c.write(encodeError(c.order, xerr, r))
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return errors.Wrapf(err, "%s (sequence %d)", h.name, r.seq)
}

func errorName(code byte) string {
	if name, ok := errorNames[code]; ok {
		return name
	}
	return fmt.Sprintf("error_%d", code)
}

// encodeError builds the 32-byte error packet. The minor opcode field
// carries the request's data byte, which is the minor opcode for
// extension requests.
func encodeError(order binary.ByteOrder, e *Error, r *request) []byte {
	w := wire.NewWriter(order)
	w.Byte(0)
	w.Byte(e.Code)
	w.Uint16(r.seq)
	w.Uint32(e.BadValue)
	w.Uint16(uint16(r.data))
	w.Byte(r.opcode)
	w.Pad(21)
	return w.Data()
}
