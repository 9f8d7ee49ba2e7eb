package xserver

import "math/bits"

// Bitmask is a set of protocol flags (event masks, value masks, button
// and modifier state).
type Bitmask uint32

// IsSet reports whether any bit of flag is set.
func (m Bitmask) IsSet(flag uint32) bool {
	return uint32(m)&flag != 0
}

func (m Bitmask) Intersects(o Bitmask) bool {
	return m&o != 0
}

func (m Bitmask) IsEmpty() bool {
	return m == 0
}

func (m *Bitmask) Set(flag uint32) {
	*m |= Bitmask(flag)
}

func (m *Bitmask) Unset(flag uint32) {
	*m &^= Bitmask(flag)
}

func (m *Bitmask) Join(o Bitmask) {
	*m |= o
}

// Each calls fn with every set bit, lowest first. Value lists in
// requests are ordered the same way.
func (m Bitmask) Each(fn func(flag uint32)) {
	v := uint32(m)
	for v != 0 {
		flag := uint32(1) << bits.TrailingZeros32(v)
		fn(flag)
		v &^= flag
	}
}

// Count returns the number of set bits.
func (m Bitmask) Count() int {
	return bits.OnesCount32(uint32(m))
}
