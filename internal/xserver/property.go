package xserver

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/BurntSushi/xgb/xproto"
)

// Property is a typed value attached to a window. Data is kept in
// little endian order whatever the byte order of the client that set
// it; swapProperty converts at the wire boundary.
type Property struct {
	Name   xproto.Atom
	Type   xproto.Atom
	Format byte
	Data   []byte
}

func validFormat(format byte) bool {
	return format == 8 || format == 16 || format == 32
}

// Len is the number of elements of Format bits.
func (p *Property) Len() int {
	return len(p.Data) / int(p.Format/8)
}

// Uint32 returns element i of a 32-bit property, or 0.
func (p *Property) Uint32(i int) uint32 {
	if p.Format != 32 || (i+1)*4 > len(p.Data) {
		return 0
	}
	return binary.LittleEndian.Uint32(p.Data[i*4:])
}

// Text renders the value for humans: text types as strings, ATOM as
// a name and anything else as a comma separated list.
func (p *Property) Text(atoms *AtomTable) string {
	typeName, _ := atoms.Name(p.Type)
	switch typeName {
	case "STRING", "UTF8_STRING":
		return string(bytes.TrimRight(p.Data, "\x00"))
	case "ATOM":
		if len(p.Data) >= 4 {
			name, _ := atoms.Name(decodeAtom(p.Data))
			return name
		}
		return ""
	}
	parts := make([]string, 0, p.Len())
	for i := 0; i < p.Len(); i++ {
		switch p.Format {
		case 8:
			parts = append(parts, strconv.Itoa(int(int8(p.Data[i]))))
		case 16:
			parts = append(parts, strconv.Itoa(int(int16(binary.LittleEndian.Uint16(p.Data[i*2:])))))
		case 32:
			parts = append(parts, strconv.Itoa(int(int32(binary.LittleEndian.Uint32(p.Data[i*4:])))))
		}
	}
	return strings.Join(parts, ",")
}

// swapProperty converts 16 and 32-bit elements between little endian
// and order, in place.
func swapProperty(order binary.ByteOrder, format byte, data []byte) {
	if order == binary.LittleEndian {
		return
	}
	switch format {
	case 16:
		for i := 0; i+2 <= len(data); i += 2 {
			data[i], data[i+1] = data[i+1], data[i]
		}
	case 32:
		for i := 0; i+4 <= len(data); i += 4 {
			data[i], data[i+1], data[i+2], data[i+3] = data[i+3], data[i+2], data[i+1], data[i]
		}
	}
}
