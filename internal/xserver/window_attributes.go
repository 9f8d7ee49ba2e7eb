package xserver

import (
	"github.com/BurntSushi/xgb/xproto"

	"github.com/intio/headless-xserver/internal/wire"
)

// WindowAttributes is the per-window state set by CreateWindow and
// ChangeWindowAttributes.
type WindowAttributes struct {
	window *Window

	Class              uint16
	BackingStore       byte
	BackingPlanes      uint32
	BackingPixel       uint32
	BitGravity         byte
	WinGravity         byte
	SaveUnder          bool
	OverrideRedirect   bool
	EventMask          Bitmask
	DoNotPropagateMask Bitmask
	Mapped             bool
	// Enabled is cleared for windows that must not receive input.
	Enabled bool

	cursor *Cursor
}

func defaultWindowAttributes() WindowAttributes {
	return WindowAttributes{
		Class:         xproto.WindowClassInputOutput,
		BackingStore:  xproto.BackingStoreNotUseful,
		BackingPlanes: 1,
		BitGravity:    xproto.GravityCenter,
		WinGravity:    xproto.GravityCenter,
		Enabled:       true,
	}
}

// Cursor is the window's cursor, inherited from the nearest ancestor
// that set one.
func (a *WindowAttributes) Cursor() *Cursor {
	for win := a.window; win != nil; win = win.parent {
		if win.Attributes.cursor != nil {
			return win.Attributes.cursor
		}
	}
	return nil
}

// update reads one value per bit of mask in bit order. The background
// pixel is painted into the content immediately.
func (a *WindowAttributes) update(mask Bitmask, r *wire.Reader, cursors *CursorManager) error {
	next := *a
	var fill *uint32
	mask.Each(func(flag uint32) {
		v := r.Uint32()
		switch flag {
		case xproto.CwBackPixel:
			fill = &v
		case xproto.CwBackingPixel:
			next.BackingPixel = v
		case xproto.CwBackingPlanes:
			next.BackingPlanes = v
		case xproto.CwBitGravity:
			next.BitGravity = byte(v)
		case xproto.CwWinGravity:
			next.WinGravity = byte(v)
		case xproto.CwBackingStore:
			next.BackingStore = byte(v)
		case xproto.CwSaveUnder:
			next.SaveUnder = v == 1
		case xproto.CwOverrideRedirect:
			next.OverrideRedirect = v == 1
		case xproto.CwEventMask:
			next.EventMask = Bitmask(v)
		case xproto.CwDontPropagate:
			next.DoNotPropagateMask = Bitmask(v)
		case xproto.CwCursor:
			next.cursor = cursors.Get(v)
		}
	})
	if r.Err() != nil {
		return BadLength()
	}
	*a = next
	if fill != nil && a.window.content != nil {
		a.window.content.FillColor(*fill)
	}
	return nil
}
