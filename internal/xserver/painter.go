package xserver

import (
	"encoding/binary"

	"github.com/BurntSushi/xgb/xproto"
)

const (
	colorWhite = 0xffffff
	colorBlack = 0x000000
)

// Painter rasterizes primitives into a 32-bit BGRA pixel buffer. The
// buffer belongs to the caller; a Painter never retains or resizes it
// and every call clips to the buffer before touching memory.
type Painter struct {
	data          []byte
	width, height int
}

func newPainter(data []byte, width, height int) Painter {
	return Painter{data: data, width: width, height: height}
}

func (p Painter) offset(x, y int) int {
	return (y*p.width + x) * 4
}

func (p Painter) pixel(x, y int) uint32 {
	return binary.LittleEndian.Uint32(p.data[p.offset(x, y):])
}

func (p Painter) setPixel(x, y int, v uint32) {
	binary.LittleEndian.PutUint32(p.data[p.offset(x, y):], v)
}

// valid reports whether the painter's buffer can hold its dimensions.
func (p Painter) valid() bool {
	return p.width > 0 && p.height > 0 && len(p.data) >= p.width*p.height*4
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// clipRect clamps the origin into the buffer and shrinks the extent so
// the rectangle stays inside it.
func (p Painter) clipRect(x, y, w, h int) (int, int, int, int) {
	x = clamp(x, 0, p.width-1)
	y = clamp(y, 0, p.height-1)
	if x+w > p.width {
		w = p.width - x
	}
	if y+h > p.height {
		h = p.height - y
	}
	return x, y, w, h
}

// FillRect fills a rectangle with an RGB color at full opacity.
func (p Painter) FillRect(x, y, w, h int, color uint32) {
	if !p.valid() {
		return
	}
	x, y, w, h = p.clipRect(x, y, w, h)
	if w <= 0 || h <= 0 {
		return
	}
	px := color | 0xff000000
	row := make([]byte, w*4)
	for i := 0; i < w; i++ {
		binary.LittleEndian.PutUint32(row[i*4:], px)
	}
	for j := 0; j < h; j++ {
		copy(p.data[p.offset(x, y+j):], row)
	}
}

// Blit copies a w by h block from src at (srcX, srcY) to (dstX, dstY),
// combining pixels with the given GC function. src may be p itself.
func (p Painter) Blit(src Painter, srcX, srcY, dstX, dstY, w, h int, function byte) {
	if !p.valid() || len(src.data) == 0 || src.width <= 0 {
		return
	}
	dstX, dstY, w, h = p.clipRect(dstX, dstY, w, h)
	if srcX < 0 {
		w += srcX
		dstX -= srcX
		srcX = 0
	}
	if srcY < 0 {
		h += srcY
		dstY -= srcY
		srcY = 0
	}
	if srcX+w > src.width {
		w = src.width - srcX
	}
	srcRows := len(src.data) / (src.width * 4)
	if srcY+h > srcRows {
		h = srcRows - srcY
	}
	if dstX+w > p.width {
		w = p.width - dstX
	}
	if dstY+h > p.height {
		h = p.height - dstY
	}
	if w <= 0 || h <= 0 {
		return
	}
	if function == xproto.GxCopy {
		rows := make([]int, h)
		for j := range rows {
			rows[j] = j
		}
		// Walk rows backwards when the block overlaps itself downwards.
		if &src.data[0] == &p.data[0] && dstY > srcY {
			for i, k := 0, h-1; i < k; i, k = i+1, k-1 {
				rows[i], rows[k] = rows[k], rows[i]
			}
		}
		for _, j := range rows {
			s := src.offset(srcX, srcY+j)
			copy(p.data[p.offset(dstX, dstY+j):], src.data[s:s+w*4])
		}
		return
	}
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			s := src.pixel(srcX+i, srcY+j)
			d := p.pixel(dstX+i, dstY+j)
			v := applyFunction(function, s&0xffffff, d&0xffffff) & 0xffffff
			p.setPixel(dstX+i, dstY+j, d&0xff000000|v)
		}
	}
}

// applyFunction combines a source and destination RGB value.
func applyFunction(function byte, src, dst uint32) uint32 {
	switch function {
	case xproto.GxClear:
		return colorBlack
	case xproto.GxAnd:
		return src & dst
	case xproto.GxAndReverse:
		return src &^ dst
	case xproto.GxCopy:
		return src
	case xproto.GxAndInverted:
		return ^src & dst
	case xproto.GxXor:
		return src ^ dst
	case xproto.GxOr:
		return src | dst
	case xproto.GxNor:
		return ^src &^ dst
	case xproto.GxEquiv:
		return ^src ^ dst
	case xproto.GxInvert:
		return ^dst
	case xproto.GxOrReverse:
		return src | ^dst
	case xproto.GxCopyInverted:
		return ^src
	case xproto.GxOrInverted:
		return ^src | dst
	case xproto.GxNand:
		return ^src | ^dst
	case xproto.GxSet:
		return colorWhite
	}
	return dst
}

// DrawBitmap expands a 1-bit LSB-first image with 32-bit scanline
// padding into white and black pixels at (dstX, dstY).
func (p Painter) DrawBitmap(src []byte, srcW, srcH, dstX, dstY int) {
	if !p.valid() {
		return
	}
	stride := ((srcW + 31) >> 5) << 2
	for y := 0; y < srcH; y++ {
		ty := dstY + y
		if ty < 0 || ty >= p.height {
			continue
		}
		line := y * stride
		for x := 0; x < srcW; x++ {
			tx := dstX + x
			if tx < 0 || tx >= p.width {
				continue
			}
			b := line + x>>3
			if b >= len(src) {
				return
			}
			if src[b]&(1<<(uint(x)&7)) != 0 {
				p.setPixel(tx, ty, colorWhite)
			} else {
				p.setPixel(tx, ty, colorBlack)
			}
		}
	}
}

// DrawLine strokes a line of square lineWidth blocks between two
// points. Endpoints are clamped so every block lands in the buffer.
func (p Painter) DrawLine(x0, y0, x1, y1 int, color uint32, lineWidth int) {
	if !p.valid() || lineWidth <= 0 || lineWidth > p.width || lineWidth > p.height {
		return
	}
	x0 = clamp(x0, 0, p.width-lineWidth)
	y0 = clamp(y0, 0, p.height-lineWidth)
	x1 = clamp(x1, 0, p.width-lineWidth)
	y1 = clamp(y1, 0, p.height-lineWidth)

	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 >= x1 {
		sx = -1
	}
	if y0 >= y1 {
		sy = -1
	}
	e1 := dx + dy
	for {
		p.FillRect(x0, y0, lineWidth, lineWidth, color)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := e1 * 2
		if e2 >= dy {
			e1 += dy
			x0 += sx
		}
		if e2 <= dx {
			e1 += dx
			y0 += sy
		}
	}
}

// DrawMaskedBitmap composes a cursor image: where mask is white the
// pixel takes fore (source white) or back (source black) at full
// opacity; elsewhere it is transparent. A nil mask is fully opaque.
func (p Painter) DrawMaskedBitmap(fore, back uint32, src, mask Painter) {
	if !p.valid() {
		return
	}
	n := p.width * p.height
	for i := 0; i < n; i++ {
		x, y := i%p.width, i/p.width
		visible := true
		if mask.data != nil {
			visible = i*4+4 <= len(mask.data) && binary.LittleEndian.Uint32(mask.data[i*4:])&0xffffff == colorWhite
		}
		if !visible {
			p.setPixel(x, y, 0)
			continue
		}
		c := back
		if i*4+4 <= len(src.data) && binary.LittleEndian.Uint32(src.data[i*4:])&0xffffff == colorWhite {
			c = fore
		}
		p.setPixel(x, y, c|0xff000000)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
