// Package xserver is an X11 protocol engine: the resource model, the
// request dispatcher, event routing and the MIT-SHM, DRI3, Present and
// SYNC extensions, served over any net.Conn.
package xserver

import (
	"context"
	"io"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/intio/headless-xserver/internal/metrics"
	"github.com/intio/headless-xserver/internal/sysvshm"
	"github.com/intio/headless-xserver/internal/wire"
)

const (
	DefaultVendor = "Elbrus Technologies, LLC"
	DefaultWidth  = 800
	DefaultHeight = 600
	DefaultDPI    = 96

	protocolMajor   = 11
	releaseNumber   = 1
	motionBufferLen = 256
	// maxRequestLen is the setup reply's limit in 4-byte units.
	maxRequestLen = 65535
	// defaultColormap is the id reported for the screen's colormap.
	defaultColormap = 0x20
)

// SHMBackend maps client memory for MIT-SHM segments and DRI3 buffers.
type SHMBackend interface {
	Attach(shmid uint32, readOnly bool) ([]byte, error)
	Detach(data []byte) error
	MapFD(fd int, offset int64, size int) ([]byte, error)
	Unmap(data []byte) error
	Close(fd int) error
}

// Config holds the server settings. Zero fields take defaults.
type Config struct {
	Width, Height uint16
	DPI           int
	Vendor        string

	Logger  logrus.FieldLogger
	Metrics *metrics.Collector
	SHM     SHMBackend
	// MouseSink receives pointer input while relative mode is on.
	MouseSink MouseSink
	// WindowListener is told about window changes, e.g. by a renderer.
	WindowListener WindowListener
	// Relative starts the server in relative mouse mode.
	Relative bool
}

func (c *Config) setDefaults() {
	if c.Width == 0 {
		c.Width = DefaultWidth
	}
	if c.Height == 0 {
		c.Height = DefaultHeight
	}
	if c.DPI == 0 {
		c.DPI = DefaultDPI
	}
	if c.Vendor == "" {
		c.Vendor = DefaultVendor
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	if c.SHM == nil {
		c.SHM = sysvshm.Backend{}
	}
}

// Server is one X display. All state lives in the instance.
type Server struct {
	cfg     Config
	log     logrus.FieldLogger
	tracer  trace.Tracer
	metrics *metrics.Collector

	locks categoryLocks
	ids   *IDAllocator

	Atoms      *AtomTable
	Pixmaps    *PixmapManager
	Drawables  *DrawableManager
	GCs        *GraphicsContextManager
	Cursors    *CursorManager
	Windows    *WindowManager
	Selections *SelectionManager
	Grabs      *GrabManager
	Input      *InputDeviceManager

	shm              *shmSegments
	present          *presentExtension
	fences           *fenceTable
	extensions       map[byte]*extension
	extensionsByName map[string]*extension

	relative atomic.Bool

	clientsMu sync.Mutex
	clients   map[uint32]*Client
	wg        sync.WaitGroup
}

func NewServer(cfg Config) *Server {
	cfg.setDefaults()
	s := &Server{
		cfg:     cfg,
		log:     cfg.Logger,
		tracer:  otel.Tracer("github.com/intio/headless-xserver/internal/xserver"),
		metrics: cfg.Metrics,
		ids:     NewIDAllocator(MaxClients),
		Atoms:   NewAtomTable(),
		clients: make(map[uint32]*Client),
	}
	s.Pixmaps = NewPixmapManager(s.ids)
	s.Drawables = NewDrawableManager(s.Pixmaps)
	s.GCs = NewGraphicsContextManager()
	s.Cursors = NewCursorManager(s.Drawables)
	s.Windows = NewWindowManager(cfg.Width, cfg.Height, s.Drawables, s.ids)
	s.Selections = newSelectionManager(s.Windows)
	s.Grabs = newGrabManager(s.Windows)
	s.Input = newInputDeviceManager(s.Windows, s.Grabs, s.relative.Load, func() MouseSink { return s.cfg.MouseSink })
	s.relative.Store(cfg.Relative)
	attachDesktopHelper(s)
	if cfg.WindowListener != nil {
		s.Windows.AddWindowListener(cfg.WindowListener)
	}
	s.setupExtensions()
	return s
}

// Lock takes the given categories in the global order; call the
// returned function to release them. Code outside the dispatcher uses
// it to read or change server state.
func (s *Server) Lock(cats ...Lockable) (unlock func()) {
	return s.locks.lock(cats...)
}

// Root is the root window.
func (s *Server) Root() *Window {
	return s.Windows.Root
}

func (s *Server) Width() uint16  { return s.cfg.Width }
func (s *Server) Height() uint16 { return s.cfg.Height }

// RelativeMouse reports whether relative mouse mode is on.
func (s *Server) RelativeMouse() bool {
	return s.relative.Load()
}

func (s *Server) SetRelativeMouse(on bool) {
	s.relative.Store(on)
}

// Clients returns the connected clients ordered by resource base.
func (s *Server) Clients() []*Client {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	out := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].base < out[j].base })
	return out
}

// Client looks a connected client up by resource base.
func (s *Server) Client(base uint32) *Client {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	return s.clients[base]
}

// ServeListener accepts connections until ctx is done or the listener
// fails. Each connection is served on its own goroutine.
func (s *Server) ServeListener(ctx context.Context, l net.Listener) error {
	go func() {
		<-ctx.Done()
		l.Close()
	}()
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			return errors.Wrap(err, "accept")
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.Serve(ctx, conn); err != nil {
				s.log.WithError(err).Error("client terminated")
			}
		}()
	}
}

// Serve runs one client connection to completion. A clean disconnect
// returns nil.
func (s *Server) Serve(ctx context.Context, conn net.Conn) error {
	c := newClient(s, conn)
	go c.writeLoop()
	stop := context.AfterFunc(ctx, c.Close)
	defer stop()

	err := s.handshake(c)
	if err == nil {
		c.log = c.log.WithField("client", c.base)
		c.log.Info("client connected")
		s.metrics.ClientConnected()
		err = s.serveRequests(c)
		s.disconnect(c)
		c.log.Info("client disconnected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	c.cancel()
	<-c.done
	c.Close()

	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return err
}

func (s *Server) serveRequests(c *Client) error {
	for {
		opcode, data, body, err := readRequest(c)
		if err != nil {
			return err
		}
		if err := s.dispatch(c, opcode, data, body); err != nil {
			c.log.WithError(err).Error("fatal request")
			return err
		}
	}
}

// disconnect frees everything the client owned.
func (s *Server) disconnect(c *Client) {
	s.clientsMu.Lock()
	delete(s.clients, c.base)
	s.clientsMu.Unlock()

	unlock := s.locks.lockAll()
	c.freeResources()
	unlock()
	s.metrics.ClientDisconnected()
}

// Disconnect force-closes the client with the given resource base.
func (s *Server) Disconnect(base uint32) bool {
	c := s.Client(base)
	if c == nil {
		return false
	}
	c.Close()
	return true
}

// handshake reads the connection setup request and answers it.
func (s *Server) handshake(c *Client) error {
	var hdr [12]byte
	if _, err := io.ReadFull(c.r, hdr[:]); err != nil {
		return errors.Wrap(err, "read setup")
	}
	order, err := wire.OrderFromByte(hdr[0])
	if err != nil {
		return err
	}
	c.order = order
	major := order.Uint16(hdr[2:])
	nameLen := int(order.Uint16(hdr[6:]))
	dataLen := int(order.Uint16(hdr[8:]))
	if _, err := io.CopyN(io.Discard, c.r, int64(wire.Pad(nameLen)+wire.Pad(dataLen))); err != nil {
		return errors.Wrap(err, "read authorization")
	}
	if major != protocolMajor {
		s.refuse(c, "Unsupported protocol version")
		return unsupported("protocol major version %d", major)
	}

	base, ok := s.ids.Allocate()
	if !ok {
		s.refuse(c, "No more resource ids")
		return errors.New("resource id ranges exhausted")
	}
	c.base = base

	unlock := s.locks.lockAll()
	s.Windows.AddResourceListener(c)
	s.Pixmaps.AddResourceListener(c)
	s.GCs.AddResourceListener(c)
	s.Cursors.AddResourceListener(c)
	w := wire.NewWriter(order)
	s.writeSetup(w, c)
	unlock()

	s.clientsMu.Lock()
	s.clients[base] = c
	s.clientsMu.Unlock()
	c.write(w.Data())
	return nil
}

func (s *Server) refuse(c *Client, reason string) {
	w := wire.NewWriter(c.order)
	w.Byte(0)
	w.Byte(byte(len(reason)))
	w.Uint16(protocolMajor)
	w.Uint16(0)
	w.Uint16(uint16(wire.Pad(len(reason)) / 4))
	w.String8(reason)
	c.write(w.Data())
}

// millimeters converts a pixel count at the configured DPI.
func (s *Server) millimeters(px uint16) uint16 {
	return uint16(float64(px) * 25.4 / float64(s.cfg.DPI))
}

func (s *Server) writeSetup(w *wire.Writer, c *Client) {
	vendor := s.cfg.Vendor
	formats := s.Pixmaps.Formats()
	visuals := s.Pixmaps.Visuals()
	root := s.Windows.Root

	w.Byte(1)
	w.Byte(0)
	w.Uint16(protocolMajor)
	w.Uint16(0)
	lengthAt := w.Len()
	w.Uint16(0)
	w.Uint32(releaseNumber)
	w.Uint32(c.base)
	w.Uint32(ResourceIDMask)
	w.Uint32(motionBufferLen)
	w.Uint16(uint16(len(vendor)))
	w.Uint16(maxRequestLen)
	w.Byte(1)
	w.Byte(byte(len(formats)))
	w.Byte(xproto.ImageOrderLSBFirst)
	w.Byte(xproto.ImageOrderLSBFirst)
	w.Byte(32)
	w.Byte(32)
	w.Byte(MinKeycode)
	w.Byte(MaxKeycode)
	w.Pad(4)
	w.String8(vendor)

	for _, f := range formats {
		w.Byte(f.Depth)
		w.Byte(f.BitsPerPixel)
		w.Byte(f.ScanlinePad)
		w.Pad(5)
	}

	rootVisual := root.content.Visual()
	w.Uint32(root.id)
	w.Uint32(defaultColormap)
	w.Uint32(0xffffff)
	w.Uint32(0x000000)
	w.Uint32(uint32(root.AllEventMasks()))
	w.Uint16(s.cfg.Width)
	w.Uint16(s.cfg.Height)
	w.Uint16(s.millimeters(s.cfg.Width))
	w.Uint16(s.millimeters(s.cfg.Height))
	w.Uint16(1)
	w.Uint16(1)
	w.Uint32(rootVisual.ID)
	w.Byte(xproto.BackingStoreNotUseful)
	w.Bool(false)
	w.Byte(rootVisual.Depth)
	w.Byte(byte(len(visuals)))

	for _, v := range visuals {
		w.Byte(v.Depth)
		w.Pad(1)
		if !v.Displayable {
			w.Uint16(0)
			w.Pad(4)
			continue
		}
		w.Uint16(1)
		w.Pad(4)
		w.Uint32(v.ID)
		w.Byte(v.Class)
		w.Byte(v.BitsPerRGB)
		w.Uint16(v.ColormapEntries)
		w.Uint32(v.RedMask)
		w.Uint32(v.GreenMask)
		w.Uint32(v.BlueMask)
		w.Pad(4)
	}
	w.PutUint16At(lengthAt, uint16((w.Len()-8)/4))
}

// InjectPointerMove moves the pointer to root coordinates.
func (s *Server) InjectPointerMove(x, y int) {
	unlock := s.locks.lock(LockWindowManager, LockInputDevice)
	defer unlock()
	s.Input.MoveTo(x, y)
}

// InjectPointerMoveDelta moves the pointer relative to its position.
func (s *Server) InjectPointerMoveDelta(dx, dy int) {
	unlock := s.locks.lock(LockWindowManager, LockInputDevice)
	defer unlock()
	s.Input.MoveBy(dx, dy)
}

func (s *Server) InjectButton(button byte, down bool) {
	unlock := s.locks.lock(LockWindowManager, LockInputDevice)
	defer unlock()
	if down && !s.relative.Load() {
		s.updateFocusOnPress()
	}
	s.Input.Button(button, down)
}

// InjectKey presses or releases keycode. A non-zero keysym is bound to
// the keycode first if it does not already produce it.
func (s *Server) InjectKey(code byte, sym xproto.Keysym, down bool) {
	unlock := s.locks.lock(LockWindowManager, LockInputDevice)
	defer unlock()
	s.Input.Key(code, sym, down)
}
