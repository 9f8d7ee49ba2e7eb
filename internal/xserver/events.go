package xserver

import (
	"fmt"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/intio/headless-xserver/internal/wire"
)

// Events are the xproto event structs plus the few types below. They
// are encoded per client so the byte order and sequence number match
// the receiving connection; the Sequence field of the structs is
// ignored.

var serverEpoch = time.Now()

// currentTime is the server timestamp: milliseconds since start.
func currentTime() xproto.Timestamp {
	return xproto.Timestamp(time.Since(serverEpoch).Milliseconds())
}

func exposeEvent(w *Window) xproto.ExposeEvent {
	return xproto.ExposeEvent{
		Window: xproto.Window(w.id),
		Width:  w.Width,
		Height: w.Height,
	}
}

// rawEvent is a client-built event forwarded by SendEvent.
type rawEvent struct {
	data [32]byte
}

func (e rawEvent) Bytes() []byte  { return e.data[:] }
func (e rawEvent) String() string { return fmt.Sprintf("SendEvent {code: %d}", e.data[0]&0x7f) }

// presentCompleteNotify and presentIdleNotify are Present extension
// generic events.
type presentCompleteNotify struct {
	EventID uint32
	Window  uint32
	Serial  uint32
	Kind    byte
	Mode    byte
	UST     uint64
	MSC     uint64
}

func (e presentCompleteNotify) Bytes() []byte { return nil }
func (e presentCompleteNotify) String() string {
	return fmt.Sprintf("PresentCompleteNotify {window: %#x, serial: %d, msc: %d}", e.Window, e.Serial, e.MSC)
}

type presentIdleNotify struct {
	EventID   uint32
	Window    uint32
	Serial    uint32
	Pixmap    uint32
	IdleFence uint32
}

func (e presentIdleNotify) Bytes() []byte { return nil }
func (e presentIdleNotify) String() string {
	return fmt.Sprintf("PresentIdleNotify {window: %#x, serial: %d, pixmap: %#x}", e.Window, e.Serial, e.Pixmap)
}

const (
	genericEvent = 35

	presentEventComplete = 1
	presentEventIdle     = 2
)

func writeInputHeader(w *wire.Writer, code, detail byte, seq uint16, t xproto.Timestamp, root, event, child xproto.Window, rootX, rootY, eventX, eventY int16, state uint16) {
	w.Byte(code)
	w.Byte(detail)
	w.Uint16(seq)
	w.Uint32(uint32(t))
	w.Uint32(uint32(root))
	w.Uint32(uint32(event))
	w.Uint32(uint32(child))
	w.Int16(rootX)
	w.Int16(rootY)
	w.Int16(eventX)
	w.Int16(eventY)
	w.Uint16(state)
}

// encodeEvent appends ev to w. It reports false for an event type it
// cannot encode.
func encodeEvent(w *wire.Writer, seq uint16, ev xgb.Event) bool {
	start := w.Len()
	switch e := ev.(type) {
	case xproto.KeyPressEvent:
		writeInputHeader(w, xproto.KeyPress, byte(e.Detail), seq, e.Time, e.Root, e.Event, e.Child, e.RootX, e.RootY, e.EventX, e.EventY, e.State)
		w.Bool(e.SameScreen)
	case xproto.KeyReleaseEvent:
		writeInputHeader(w, xproto.KeyRelease, byte(e.Detail), seq, e.Time, e.Root, e.Event, e.Child, e.RootX, e.RootY, e.EventX, e.EventY, e.State)
		w.Bool(e.SameScreen)
	case xproto.ButtonPressEvent:
		writeInputHeader(w, xproto.ButtonPress, byte(e.Detail), seq, e.Time, e.Root, e.Event, e.Child, e.RootX, e.RootY, e.EventX, e.EventY, e.State)
		w.Bool(e.SameScreen)
	case xproto.ButtonReleaseEvent:
		writeInputHeader(w, xproto.ButtonRelease, byte(e.Detail), seq, e.Time, e.Root, e.Event, e.Child, e.RootX, e.RootY, e.EventX, e.EventY, e.State)
		w.Bool(e.SameScreen)
	case xproto.MotionNotifyEvent:
		writeInputHeader(w, xproto.MotionNotify, e.Detail, seq, e.Time, e.Root, e.Event, e.Child, e.RootX, e.RootY, e.EventX, e.EventY, e.State)
		w.Bool(e.SameScreen)
	case xproto.EnterNotifyEvent:
		writeInputHeader(w, xproto.EnterNotify, e.Detail, seq, e.Time, e.Root, e.Event, e.Child, e.RootX, e.RootY, e.EventX, e.EventY, e.State)
		w.Byte(e.Mode)
		w.Byte(e.SameScreenFocus)
	case xproto.LeaveNotifyEvent:
		writeInputHeader(w, xproto.LeaveNotify, e.Detail, seq, e.Time, e.Root, e.Event, e.Child, e.RootX, e.RootY, e.EventX, e.EventY, e.State)
		w.Byte(e.Mode)
		w.Byte(e.SameScreenFocus)
	case xproto.ExposeEvent:
		writeHeader(w, xproto.Expose, 0, seq)
		w.Uint32(uint32(e.Window))
		w.Uint16(e.X)
		w.Uint16(e.Y)
		w.Uint16(e.Width)
		w.Uint16(e.Height)
		w.Uint16(e.Count)
	case xproto.CreateNotifyEvent:
		writeHeader(w, xproto.CreateNotify, 0, seq)
		w.Uint32(uint32(e.Parent))
		w.Uint32(uint32(e.Window))
		w.Int16(e.X)
		w.Int16(e.Y)
		w.Uint16(e.Width)
		w.Uint16(e.Height)
		w.Uint16(e.BorderWidth)
		w.Bool(e.OverrideRedirect)
	case xproto.DestroyNotifyEvent:
		writeHeader(w, xproto.DestroyNotify, 0, seq)
		w.Uint32(uint32(e.Event))
		w.Uint32(uint32(e.Window))
	case xproto.UnmapNotifyEvent:
		writeHeader(w, xproto.UnmapNotify, 0, seq)
		w.Uint32(uint32(e.Event))
		w.Uint32(uint32(e.Window))
		w.Bool(e.FromConfigure)
	case xproto.MapNotifyEvent:
		writeHeader(w, xproto.MapNotify, 0, seq)
		w.Uint32(uint32(e.Event))
		w.Uint32(uint32(e.Window))
		w.Bool(e.OverrideRedirect)
	case xproto.MapRequestEvent:
		writeHeader(w, xproto.MapRequest, 0, seq)
		w.Uint32(uint32(e.Parent))
		w.Uint32(uint32(e.Window))
	case xproto.ConfigureNotifyEvent:
		writeHeader(w, xproto.ConfigureNotify, 0, seq)
		w.Uint32(uint32(e.Event))
		w.Uint32(uint32(e.Window))
		w.Uint32(uint32(e.AboveSibling))
		w.Int16(e.X)
		w.Int16(e.Y)
		w.Uint16(e.Width)
		w.Uint16(e.Height)
		w.Uint16(e.BorderWidth)
		w.Bool(e.OverrideRedirect)
	case xproto.ConfigureRequestEvent:
		writeHeader(w, xproto.ConfigureRequest, e.StackMode, seq)
		w.Uint32(uint32(e.Parent))
		w.Uint32(uint32(e.Window))
		w.Uint32(uint32(e.Sibling))
		w.Int16(e.X)
		w.Int16(e.Y)
		w.Uint16(e.Width)
		w.Uint16(e.Height)
		w.Uint16(e.BorderWidth)
		w.Uint16(e.ValueMask)
	case xproto.ResizeRequestEvent:
		writeHeader(w, xproto.ResizeRequest, 0, seq)
		w.Uint32(uint32(e.Window))
		w.Uint16(e.Width)
		w.Uint16(e.Height)
	case xproto.PropertyNotifyEvent:
		writeHeader(w, xproto.PropertyNotify, 0, seq)
		w.Uint32(uint32(e.Window))
		w.Uint32(uint32(e.Atom))
		w.Uint32(uint32(e.Time))
		w.Byte(e.State)
	case xproto.SelectionClearEvent:
		writeHeader(w, xproto.SelectionClear, 0, seq)
		w.Uint32(uint32(e.Time))
		w.Uint32(uint32(e.Owner))
		w.Uint32(uint32(e.Selection))
	case xproto.MappingNotifyEvent:
		writeHeader(w, xproto.MappingNotify, 0, seq)
		w.Byte(e.Request)
		w.Byte(byte(e.FirstKeycode))
		w.Byte(e.Count)
	case rawEvent:
		data := e.data
		// KeymapNotify carries no sequence number.
		if data[0]&0x7f != xproto.KeymapNotify {
			w.Bytes(data[:2])
			w.Uint16(seq)
			w.Bytes(data[4:])
		} else {
			w.Bytes(data[:])
		}
	case presentCompleteNotify:
		writeGenericHeader(w, presentMajorOpcode, seq, 2, presentEventComplete)
		w.Byte(e.Kind)
		w.Byte(e.Mode)
		w.Uint32(e.EventID)
		w.Uint32(e.Window)
		w.Uint32(e.Serial)
		w.Uint64(e.UST)
		w.Uint64(e.MSC)
		return true
	case presentIdleNotify:
		writeGenericHeader(w, presentMajorOpcode, seq, 0, presentEventIdle)
		w.Pad(2)
		w.Uint32(e.EventID)
		w.Uint32(e.Window)
		w.Uint32(e.Serial)
		w.Uint32(e.Pixmap)
		w.Uint32(e.IdleFence)
		return true
	default:
		return false
	}
	if n := w.Len() - start; n < 32 {
		w.Pad(32 - n)
	}
	return true
}

func writeHeader(w *wire.Writer, code, detail byte, seq uint16) {
	w.Byte(code)
	w.Byte(detail)
	w.Uint16(seq)
}

// writeGenericHeader starts a GenericEvent; length counts 4-byte units
// beyond 32 bytes.
func writeGenericHeader(w *wire.Writer, extension byte, seq uint16, length uint32, evtype uint16) {
	w.Byte(genericEvent)
	w.Byte(extension)
	w.Uint16(seq)
	w.Uint32(length)
	w.Uint16(evtype)
}
