package xserver

import (
	"image"
	"image/color"
	"image/draw"
)

// Snapshot composites the viewable windows in stacking order, then the
// cursor of the window under the pointer, into an RGBA image of the
// screen.
func (s *Server) Snapshot() *image.RGBA {
	unlock := s.locks.lock(LockWindowManager, LockDrawableManager, LockInputDevice, LockCursorManager)
	defer unlock()

	img := image.NewRGBA(image.Rect(0, 0, int(s.cfg.Width), int(s.cfg.Height)))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	s.compositeWindow(img, s.Windows.Root)

	if s.relative.Load() {
		return img
	}
	w := s.Input.PointWindow()
	if w == nil {
		return img
	}
	c := w.Attributes.Cursor()
	if c == nil || !c.Visible() {
		return img
	}
	x := int(s.Input.Pointer.X) - int(c.HotX)
	y := int(s.Input.Pointer.Y) - int(c.HotY)
	draw.Draw(img, img.Bounds(), drawableImage(c.Image, true), image.Pt(-x, -y), draw.Over)
	return img
}

func (s *Server) compositeWindow(img *image.RGBA, w *Window) {
	if !w.Attributes.Mapped {
		return
	}
	if d := w.Content(); d != nil {
		x, y := w.LocalToRoot(0, 0)
		draw.Draw(img, img.Bounds(), drawableImage(d, false), image.Pt(-int(x), -int(y)), draw.Src)
	}
	for _, child := range w.Children() {
		s.compositeWindow(img, child)
	}
}

// drawableImage copies a drawable's BGRA pixels into an RGBA image.
// Without alpha every pixel is opaque, as depth 24 content leaves the
// alpha byte undefined.
func drawableImage(d *Drawable, alpha bool) *image.RGBA {
	var out *image.RGBA
	d.WithPixels(func(data []byte, width, height int) {
		out = image.NewRGBA(image.Rect(0, 0, width, height))
		n := width * height * 4
		if len(data) < n {
			n = len(data) &^ 3
		}
		for i := 0; i < n; i += 4 {
			b, g, r, a := data[i], data[i+1], data[i+2], data[i+3]
			if !alpha {
				a = 0xff
			} else if a != 0xff {
				// Premultiply for draw.Over.
				r = byte(uint16(r) * uint16(a) / 0xff)
				g = byte(uint16(g) * uint16(a) / 0xff)
				b = byte(uint16(b) * uint16(a) / 0xff)
			}
			out.Pix[i], out.Pix[i+1], out.Pix[i+2], out.Pix[i+3] = r, g, b, a
		}
	})
	return out
}
