package xserver

func dri3Extension() *extension {
	pixmapLocks := locks(LockWindowManager, LockPixmapManager, LockDrawableManager)
	return &extension{
		name:  "DRI3",
		major: dri3MajorOpcode,
		requests: map[byte]requestHandler{
			0: {"DRI3QueryVersion", nil, (*Server).dri3QueryVersion},
			1: {"DRI3Open", locks(LockDrawableManager), (*Server).dri3Open},
			2: {"DRI3PixmapFromBuffer", pixmapLocks, (*Server).dri3PixmapFromBuffer},
			7: {"DRI3PixmapFromBuffers", pixmapLocks, (*Server).dri3PixmapFromBuffers},
		},
	}
}

func (s *Server) dri3QueryVersion(r *request) error {
	r.body.Skip(8)
	r.beginReply(0)
	r.reply.Uint32(1)
	r.reply.Uint32(0)
	r.endReply()
	return nil
}

// dri3Open never hands out a device; the client falls back to
// software buffers.
func (s *Server) dri3Open(r *request) error {
	if _, err := s.drawable(r.body.Uint32()); err != nil {
		return err
	}
	r.body.Skip(4)
	r.beginReply(0)
	r.reply.Pad(24)
	r.endReply()
	return nil
}

// bufferImport is a pixmap backed by a client buffer passed over the
// socket.
type bufferImport struct {
	pixmap uint32
	window uint32
	width  uint16
	height uint16
	stride uint32
	offset uint32
	size   uint32
	depth  byte
}

func (s *Server) dri3PixmapFromBuffer(r *request) error {
	b := bufferImport{
		pixmap: r.body.Uint32(),
		window: r.body.Uint32(),
		size:   r.body.Uint32(),
		width:  r.body.Uint16(),
		height: r.body.Uint16(),
		stride: uint32(r.body.Uint16()),
		depth:  r.body.Byte(),
	}
	r.body.Skip(1)
	if r.body.Err() != nil {
		return BadLength()
	}
	return s.importBuffer(r, b)
}

// dri3PixmapFromBuffers imports the first plane only.
func (s *Server) dri3PixmapFromBuffers(r *request) error {
	b := bufferImport{
		pixmap: r.body.Uint32(),
		window: r.body.Uint32(),
	}
	r.body.Skip(4)
	b.width = r.body.Uint16()
	b.height = r.body.Uint16()
	b.stride = r.body.Uint32()
	b.offset = r.body.Uint32()
	r.body.Skip(24)
	b.depth = r.body.Byte()
	r.body.Skip(11)
	if r.body.Err() != nil {
		return BadLength()
	}
	b.size = b.stride * uint32(b.height)
	return s.importBuffer(r, b)
}

// importBuffer maps the descriptor that came with the request and wraps
// it in a pixmap whose width is the stride in pixels. The descriptor is
// always closed; the mapping lives until the pixmap is freed.
func (s *Server) importBuffer(r *request, b bufferImport) error {
	// The descriptor belongs to this request even when it fails.
	fds, ok := r.c.conn.(FDReceiver)
	if !ok {
		return BadAlloc()
	}
	fd, err := fds.TakeFD()
	if err != nil {
		r.c.log.WithError(err).Debug("buffer import without a descriptor")
		return BadAlloc()
	}
	defer s.cfg.SHM.Close(fd)

	if _, err := s.window(b.window); err != nil {
		return err
	}
	if s.Pixmaps.Get(b.pixmap) != nil || !r.c.ownsID(b.pixmap) {
		return BadIDChoice(b.pixmap)
	}

	visual := s.Pixmaps.VisualForDepth(b.depth)
	if visual == nil {
		return BadValue(uint32(b.depth))
	}
	data, err := s.cfg.SHM.MapFD(fd, int64(b.offset), int(b.size))
	if err != nil {
		r.c.log.WithError(err).Debug("buffer import failed")
		return BadAlloc()
	}
	d := s.Drawables.Create(b.pixmap, uint16(b.stride/4), b.height, visual)
	if d == nil {
		s.cfg.SHM.Unmap(data)
		return BadIDChoice(b.pixmap)
	}
	d.setBuffer(data)
	d.SetOnDestroy(func(d *Drawable) {
		s.cfg.SHM.Unmap(d.buffer())
	})
	p := s.Pixmaps.Create(d)
	if p == nil {
		s.Drawables.Remove(b.pixmap)
		return BadIDChoice(b.pixmap)
	}
	r.c.registerResource(p)
	return nil
}
