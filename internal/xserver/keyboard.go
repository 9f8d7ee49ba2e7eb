package xserver

import "github.com/BurntSushi/xgb/xproto"

const (
	MinKeycode = 8
	MaxKeycode = 255

	keysymsPerKeycode = 2
)

// Common keysyms, from X11/keysymdef.h.
const (
	XKBackSpace  = 0xff08
	XKTab        = 0xff09
	XKReturn     = 0xff0d
	XKEscape     = 0xff1b
	XKHome       = 0xff50
	XKLeft       = 0xff51
	XKUp         = 0xff52
	XKRight      = 0xff53
	XKDown       = 0xff54
	XKPrior      = 0xff55
	XKNext       = 0xff56
	XKEnd        = 0xff57
	XKInsert     = 0xff63
	XKF1         = 0xffbe
	XKShiftL     = 0xffe1
	XKShiftR     = 0xffe2
	XKControlL   = 0xffe3
	XKControlR   = 0xffe4
	XKCapsLock   = 0xffe5
	XKAltL       = 0xffe9
	XKAltR       = 0xffea
	XKDelete     = 0xffff
	XKKPMultiply = 0xffaa
)

// usLayout maps evdev keycodes to unshifted and shifted keysyms.
var usLayout = map[byte][2]xproto.Keysym{
	9: {XKEscape, XKEscape},
	10: {'1', '!'}, 11: {'2', '@'}, 12: {'3', '#'}, 13: {'4', '$'},
	14: {'5', '%'}, 15: {'6', '^'}, 16: {'7', '&'}, 17: {'8', '*'},
	18: {'9', '('}, 19: {'0', ')'}, 20: {'-', '_'}, 21: {'=', '+'},
	22: {XKBackSpace, XKBackSpace}, 23: {XKTab, XKTab},
	24: {'q', 'Q'}, 25: {'w', 'W'}, 26: {'e', 'E'}, 27: {'r', 'R'},
	28: {'t', 'T'}, 29: {'y', 'Y'}, 30: {'u', 'U'}, 31: {'i', 'I'},
	32: {'o', 'O'}, 33: {'p', 'P'}, 34: {'[', '{'}, 35: {']', '}'},
	36: {XKReturn, XKReturn}, 37: {XKControlL, XKControlL},
	38: {'a', 'A'}, 39: {'s', 'S'}, 40: {'d', 'D'}, 41: {'f', 'F'},
	42: {'g', 'G'}, 43: {'h', 'H'}, 44: {'j', 'J'}, 45: {'k', 'K'},
	46: {'l', 'L'}, 47: {';', ':'}, 48: {'\'', '"'}, 49: {'`', '~'},
	50: {XKShiftL, XKShiftL}, 51: {'\\', '|'},
	52: {'z', 'Z'}, 53: {'x', 'X'}, 54: {'c', 'C'}, 55: {'v', 'V'},
	56: {'b', 'B'}, 57: {'n', 'N'}, 58: {'m', 'M'}, 59: {',', '<'},
	60: {'.', '>'}, 61: {'/', '?'}, 62: {XKShiftR, XKShiftR},
	63: {XKKPMultiply, XKKPMultiply}, 64: {XKAltL, XKAltL},
	65: {' ', ' '}, 66: {XKCapsLock, XKCapsLock},
	105: {XKControlR, XKControlR}, 108: {XKAltR, XKAltR},
	110: {XKHome, XKHome}, 111: {XKUp, XKUp}, 112: {XKPrior, XKPrior},
	113: {XKLeft, XKLeft}, 114: {XKRight, XKRight}, 115: {XKEnd, XKEnd},
	116: {XKDown, XKDown}, 117: {XKNext, XKNext},
	118: {XKInsert, XKInsert}, 119: {XKDelete, XKDelete},
}

// Keyboard holds the keycode to keysym table and the modifier state.
type Keyboard struct {
	keysyms   [(MaxKeycode - MinKeycode + 1) * keysymsPerKeycode]xproto.Keysym
	modifiers Bitmask
	capsLock  bool
}

func NewKeyboard() *Keyboard {
	k := &Keyboard{}
	for code, syms := range usLayout {
		k.SetKeysyms(code, syms[0], syms[1])
	}
	for i := 0; i < 12; i++ {
		code := byte(67 + i)
		if i >= 10 {
			code = byte(95 + i - 10)
		}
		k.SetKeysyms(code, xproto.Keysym(XKF1+i), xproto.Keysym(XKF1+i))
	}
	return k
}

func (k *Keyboard) index(code byte) int {
	return (int(code) - MinKeycode) * keysymsPerKeycode
}

func (k *Keyboard) SetKeysyms(code byte, lower, upper xproto.Keysym) {
	if code < MinKeycode {
		return
	}
	i := k.index(code)
	k.keysyms[i] = lower
	k.keysyms[i+1] = upper
}

// HasKeysym reports whether code produces sym in either column.
func (k *Keyboard) HasKeysym(code byte, sym xproto.Keysym) bool {
	if code < MinKeycode {
		return false
	}
	i := k.index(code)
	return k.keysyms[i] == sym || k.keysyms[i+1] == sym
}

// Keysyms returns count keycodes' worth of keysyms starting at first.
func (k *Keyboard) Keysyms(first byte, count int) []xproto.Keysym {
	out := make([]xproto.Keysym, 0, count*keysymsPerKeycode)
	for c := int(first); c < int(first)+count; c++ {
		if c < MinKeycode || c > MaxKeycode {
			out = append(out, 0, 0)
			continue
		}
		i := k.index(byte(c))
		out = append(out, k.keysyms[i], k.keysyms[i+1])
	}
	return out
}

// Modifiers is the key part of the key-button state mask.
func (k *Keyboard) Modifiers() Bitmask {
	m := k.modifiers
	if k.capsLock {
		m.Set(xproto.ModMaskLock)
	}
	return m
}

// modifierFor returns the modifier mask a keysym drives.
func modifierFor(sym xproto.Keysym) uint32 {
	switch sym {
	case XKShiftL, XKShiftR:
		return xproto.ModMaskShift
	case XKControlL, XKControlR:
		return xproto.ModMaskControl
	case XKAltL, XKAltR:
		return xproto.ModMask1
	}
	return 0
}

// press updates the modifier state for a key going down or up.
func (k *Keyboard) press(code byte, down bool) {
	if code < MinKeycode {
		return
	}
	sym := k.keysyms[k.index(code)]
	if sym == XKCapsLock {
		if down {
			k.capsLock = !k.capsLock
		}
		return
	}
	if mod := modifierFor(sym); mod != 0 {
		if down {
			k.modifiers.Set(mod)
		} else {
			k.modifiers.Unset(mod)
		}
	}
}
