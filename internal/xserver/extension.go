package xserver

// extension is a protocol extension advertised through QueryExtension.
// Requests are keyed by minor opcode, which arrives in the data byte.
type extension struct {
	name       string
	major      byte
	firstEvent byte
	firstError byte
	requests   map[byte]requestHandler
}

// bigRequestMaxLength is the request length limit, in 4-byte units,
// once BIG-REQUESTS is enabled.
const bigRequestMaxLength = 4194303

func (s *Server) setupExtensions() {
	s.shm = newSHMSegments(s.cfg.SHM)
	s.fences = newFenceTable()
	s.present = newPresentExtension()
	s.Windows.AddResourceListener(s.present)

	s.extensions = make(map[byte]*extension)
	s.extensionsByName = make(map[string]*extension)
	for _, ext := range []*extension{
		bigRequestsExtension(),
		shmExtension(),
		dri3Extension(),
		presentExt(),
		syncExtension(),
	} {
		s.extensions[ext.major] = ext
		s.extensionsByName[ext.name] = ext
	}
}

func bigRequestsExtension() *extension {
	return &extension{
		name:  "BIG-REQUESTS",
		major: bigReqMajorOpcode,
		requests: map[byte]requestHandler{
			0: {"BigReqEnable", nil, (*Server).bigReqEnable},
		},
	}
}

// bigReqEnable reports the extended limit. Extended lengths are always
// accepted, enabled or not.
func (s *Server) bigReqEnable(r *request) error {
	r.beginReply(0)
	r.reply.Uint32(bigRequestMaxLength)
	r.reply.Pad(20)
	r.endReply()
	return nil
}

// Close releases every attached shared memory segment. Call it once
// all connections are gone.
func (s *Server) Close() {
	unlock := s.locks.lock(LockSHMSegmentManager)
	defer unlock()
	s.shm.detachAll()
}
