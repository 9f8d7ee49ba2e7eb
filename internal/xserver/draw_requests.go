package xserver

import (
	"github.com/BurntSushi/xgb/xproto"
)

func (s *Server) drawable(id uint32) (*Drawable, error) {
	d := s.Drawables.Get(id)
	if d == nil {
		return nil, BadDrawable(id)
	}
	return d, nil
}

func (s *Server) graphicsContext(id uint32) (*GraphicsContext, error) {
	gc := s.GCs.Get(id)
	if gc == nil {
		return nil, BadGContext(id)
	}
	return gc, nil
}

func (s *Server) createPixmap(r *request) error {
	depth := r.data
	id := r.body.Uint32()
	if !r.c.ownsID(id) {
		return BadIDChoice(id)
	}
	if _, err := s.drawable(r.body.Uint32()); err != nil {
		return err
	}
	width := r.body.Uint16()
	height := r.body.Uint16()
	if r.body.Err() != nil {
		return BadLength()
	}
	visual := s.Pixmaps.VisualForDepth(depth)
	if visual == nil {
		return BadValue(uint32(depth))
	}
	d := s.Drawables.Create(id, width, height, visual)
	if d == nil {
		return BadIDChoice(id)
	}
	p := s.Pixmaps.Create(d)
	if p == nil {
		s.Drawables.Remove(id)
		return BadIDChoice(id)
	}
	r.c.registerResource(p)
	return nil
}

func (s *Server) freePixmap(r *request) error {
	s.Pixmaps.Free(r.body.Uint32())
	return nil
}

func (s *Server) createGC(r *request) error {
	id := r.body.Uint32()
	if !r.c.ownsID(id) {
		return BadIDChoice(id)
	}
	d, err := s.drawable(r.body.Uint32())
	if err != nil {
		return err
	}
	mask := Bitmask(r.body.Uint32())
	gc := s.GCs.Create(id, d)
	if gc == nil {
		return BadIDChoice(id)
	}
	r.c.registerResource(gc)
	if mask.IsEmpty() {
		return nil
	}
	return s.GCs.Update(gc, mask, r.body)
}

func (s *Server) changeGC(r *request) error {
	gc, err := s.graphicsContext(r.body.Uint32())
	if err != nil {
		return err
	}
	mask := Bitmask(r.body.Uint32())
	if mask.IsEmpty() {
		return nil
	}
	return s.GCs.Update(gc, mask, r.body)
}

func (s *Server) freeGC(r *request) error {
	s.GCs.Free(r.body.Uint32())
	return nil
}

func (s *Server) copyArea(r *request) error {
	src, err := s.drawable(r.body.Uint32())
	if err != nil {
		return err
	}
	dst, err := s.drawable(r.body.Uint32())
	if err != nil {
		return err
	}
	gc, err := s.graphicsContext(r.body.Uint32())
	if err != nil {
		return err
	}
	srcX, srcY := r.body.Int16(), r.body.Int16()
	dstX, dstY := r.body.Int16(), r.body.Int16()
	width, height := r.body.Uint16(), r.body.Uint16()
	if r.body.Err() != nil {
		return BadLength()
	}
	if src.Depth() != dst.Depth() {
		return BadMatch()
	}
	dst.CopyArea(src, srcX, srcY, dstX, dstY, width, height, gc.Values().Function)
	return nil
}

// polyLine strokes in the GC foreground. Relative coordinates and
// zero-width lines are accepted and not drawn.
func (s *Server) polyLine(r *request) error {
	origin := r.data == xproto.CoordModeOrigin
	d, err := s.drawable(r.body.Uint32())
	if err != nil {
		return err
	}
	gc, err := s.graphicsContext(r.body.Uint32())
	if err != nil {
		return err
	}
	points := make([]xproto.Point, 0, r.body.Remaining()/4)
	for r.body.Remaining() >= 4 {
		points = append(points, xproto.Point{X: r.body.Int16(), Y: r.body.Int16()})
	}
	values := gc.Values()
	if origin && values.LineWidth > 0 {
		d.DrawLines(values.Foreground, values.LineWidth, points)
	}
	return nil
}

func (s *Server) polyFillRectangle(r *request) error {
	d, err := s.drawable(r.body.Uint32())
	if err != nil {
		return err
	}
	gc, err := s.graphicsContext(r.body.Uint32())
	if err != nil {
		return err
	}
	color := gc.Values().Foreground
	for r.body.Remaining() >= 8 {
		x, y := r.body.Int16(), r.body.Int16()
		w, h := r.body.Uint16(), r.body.Uint16()
		d.FillRect(x, y, w, h, color)
	}
	return nil
}

func (s *Server) putImage(r *request) error {
	format := r.data
	d, err := s.drawable(r.body.Uint32())
	if err != nil {
		return err
	}
	gc, err := s.graphicsContext(r.body.Uint32())
	if err != nil {
		return err
	}
	width, height := r.body.Uint16(), r.body.Uint16()
	dstX, dstY := r.body.Int16(), r.body.Int16()
	leftPad := r.body.Byte()
	depth := r.body.Byte()
	r.body.Skip(2)
	if r.body.Err() != nil {
		return BadLength()
	}
	data := r.body.Bytes(r.body.Remaining())

	if format != xproto.ImageFormatZPixmap && gc.Values().Function != xproto.GxCopy {
		return unsupported("PutImage format %d with GC function %d", format, gc.Values().Function)
	}
	switch format {
	case xproto.ImageFormatXYBitmap:
		if leftPad != 0 {
			return unsupported("PutImage left pad %d", leftPad)
		}
		if depth != 1 {
			return BadMatch()
		}
		d.DrawImage(0, 0, dstX, dstY, width, height, 1, data, width, height)
	case xproto.ImageFormatXYPixmap:
		if d.Depth() != depth {
			return BadMatch()
		}
	case xproto.ImageFormatZPixmap:
		if leftPad != 0 {
			return BadMatch()
		}
		d.DrawImage(0, 0, dstX, dstY, width, height, depth, data, width, height)
	default:
		return BadValue(uint32(format))
	}
	return nil
}

// getImage supports ZPixmap only. The visual field is zero for pixmaps.
func (s *Server) getImage(r *request) error {
	if r.data != xproto.ImageFormatZPixmap {
		return unsupported("GetImage format %d", r.data)
	}
	id := r.body.Uint32()
	d, err := s.drawable(id)
	if err != nil {
		return err
	}
	x, y := r.body.Int16(), r.body.Int16()
	width, height := r.body.Uint16(), r.body.Uint16()
	r.body.Skip(4)
	if r.body.Err() != nil {
		return BadLength()
	}
	var visual uint32
	if s.Pixmaps.Get(id) == nil && d.Visual() != nil {
		visual = d.Visual().ID
	}
	data := d.GetImage(x, y, width, height)
	r.beginReply(d.Depth())
	r.reply.Uint32(visual)
	r.reply.Pad(20)
	r.reply.Bytes(data)
	r.endReply()
	return nil
}

// createCursor builds a cursor from a source and an optional mask
// pixmap. Colors keep the high byte of each 16-bit channel.
func (s *Server) createCursor(r *request) error {
	id := r.body.Uint32()
	sourceID := r.body.Uint32()
	maskID := r.body.Uint32()
	if !r.c.ownsID(id) {
		return BadIDChoice(id)
	}
	source := s.Pixmaps.Get(sourceID)
	if source == nil {
		return BadPixmap(sourceID)
	}
	mask := s.Pixmaps.Get(maskID)
	if mask != nil {
		md, sd := mask.Drawable, source.Drawable
		if md.Depth() != 1 || md.Width() != sd.Width() || md.Height() != sd.Height() {
			return BadMatch()
		}
	}
	channel := func() byte { return byte(r.body.Uint16() >> 8) }
	fore := RGB{R: channel(), G: channel(), B: channel()}
	back := RGB{R: channel(), G: channel(), B: channel()}
	hotX, hotY := r.body.Int16(), r.body.Int16()
	if r.body.Err() != nil {
		return BadLength()
	}

	c := s.Cursors.Create(id, hotX, hotY, source, mask)
	if c == nil {
		return BadIDChoice(id)
	}
	s.Cursors.Recolor(c, fore, back)
	r.c.registerResource(c)
	return nil
}

func (s *Server) freeCursor(r *request) error {
	s.Cursors.Free(r.body.Uint32())
	return nil
}
