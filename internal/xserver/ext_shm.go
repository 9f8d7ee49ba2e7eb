package xserver

import (
	"github.com/BurntSushi/xgb/xproto"
)

// shmSegments maps MIT-SHM segment ids to attached memory. It is
// guarded by LockSHMSegmentManager.
type shmSegments struct {
	backend  SHMBackend
	segments map[uint32][]byte
}

func newSHMSegments(backend SHMBackend) *shmSegments {
	return &shmSegments{backend: backend, segments: make(map[uint32][]byte)}
}

// attach maps shmid under xid, replacing any segment already there.
func (m *shmSegments) attach(xid, shmid uint32, readOnly bool) error {
	if _, ok := m.segments[xid]; ok {
		m.detach(xid)
	}
	data, err := m.backend.Attach(shmid, readOnly)
	if err != nil {
		return err
	}
	m.segments[xid] = data
	return nil
}

func (m *shmSegments) detach(xid uint32) bool {
	data, ok := m.segments[xid]
	if !ok {
		return false
	}
	delete(m.segments, xid)
	m.backend.Detach(data)
	return true
}

func (m *shmSegments) get(xid uint32) []byte {
	return m.segments[xid]
}

func (m *shmSegments) detachAll() {
	for xid := range m.segments {
		m.detach(xid)
	}
}

func (m *shmSegments) len() int {
	return len(m.segments)
}

func shmExtension() *extension {
	return &extension{
		name:       "MIT-SHM",
		major:      shmMajorOpcode,
		firstEvent: 64,
		firstError: shmFirstError,
		requests: map[byte]requestHandler{
			0: {"ShmQueryVersion", nil, (*Server).shmQueryVersion},
			1: {"ShmAttach", locks(LockSHMSegmentManager), (*Server).shmAttach},
			2: {"ShmDetach", locks(LockSHMSegmentManager), (*Server).shmDetach},
			3: {"ShmPutImage", locks(LockDrawableManager, LockGraphicContextManager, LockSHMSegmentManager), (*Server).shmPutImage},
		},
	}
}

// shmQueryVersion reports version 1.1 without shared pixmaps.
func (s *Server) shmQueryVersion(r *request) error {
	r.beginReply(0)
	r.reply.Uint16(1)
	r.reply.Uint16(1)
	r.reply.Uint16(0)
	r.reply.Uint16(0)
	r.reply.Byte(0)
	r.endReply()
	return nil
}

func (s *Server) shmAttach(r *request) error {
	xid := r.body.Uint32()
	shmid := r.body.Uint32()
	readOnly := r.body.Bool()
	if r.body.Err() != nil {
		return BadLength()
	}
	if err := s.shm.attach(xid, shmid, readOnly); err != nil {
		r.c.log.WithError(err).WithField("shmid", shmid).Debug("shm attach failed")
		return BadAccess()
	}
	return nil
}

func (s *Server) shmDetach(r *request) error {
	xid := r.body.Uint32()
	if !s.shm.detach(xid) {
		return BadSHMSegment(xid)
	}
	return nil
}

func (s *Server) shmPutImage(r *request) error {
	d, err := s.drawable(r.body.Uint32())
	if err != nil {
		return err
	}
	gc, err := s.graphicsContext(r.body.Uint32())
	if err != nil {
		return err
	}
	totalW, totalH := r.body.Uint16(), r.body.Uint16()
	srcX, srcY := r.body.Int16(), r.body.Int16()
	srcW, srcH := r.body.Uint16(), r.body.Uint16()
	dstX, dstY := r.body.Int16(), r.body.Int16()
	depth := r.body.Byte()
	r.body.Skip(3)
	xid := r.body.Uint32()
	offset := r.body.Uint32()
	if r.body.Err() != nil {
		return BadLength()
	}
	data := s.shm.get(xid)
	if data == nil {
		return BadSHMSegment(xid)
	}
	if int64(offset) > int64(len(data)) {
		return BadValue(offset)
	}
	if fn := gc.Values().Function; fn != xproto.GxCopy {
		return unsupported("ShmPutImage with GC function %d", fn)
	}
	d.DrawImage(srcX, srcY, dstX, dstY, srcW, srcH, depth, data[offset:], totalW, totalH)
	return nil
}
