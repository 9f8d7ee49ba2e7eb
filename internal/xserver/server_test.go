package xserver

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intio/headless-xserver/internal/wire"
)

func TestSetupReply(t *testing.T) {
	s := newTestServer(t, Config{Width: 1024, Height: 768})
	c := connect(t, s)

	setup := c.setup
	assert.Equal(t, uint16(11), le.Uint16(setup[2:]))
	assert.Equal(t, uint32(1<<21), c.base)
	assert.Equal(t, uint32(ResourceIDMask), le.Uint32(setup[16:]))
	assert.Equal(t, uint16(maxRequestLen), le.Uint16(setup[26:]))
	assert.Equal(t, byte(1), setup[28], "screens")
	assert.Equal(t, byte(3), setup[29], "pixmap formats")
	assert.Equal(t, byte(MinKeycode), setup[34])
	assert.Equal(t, byte(MaxKeycode), setup[35])

	n := int(le.Uint16(setup[24:]))
	assert.Equal(t, DefaultVendor, string(setup[40:40+n]))

	screen := setup[40+wire.Pad(n)+3*8:]
	assert.Equal(t, s.Root().ID(), le.Uint32(screen[0:]))
	assert.Equal(t, uint32(defaultColormap), le.Uint32(screen[4:]))
	assert.Equal(t, uint16(1024), le.Uint16(screen[20:]))
	assert.Equal(t, uint16(768), le.Uint16(screen[22:]))
	assert.Equal(t, byte(24), screen[38], "root depth")
	assert.Equal(t, byte(3), screen[39], "allowed depths")
}

func TestSetupRefusesOtherVersions(t *testing.T) {
	s := newTestServer(t, Config{})
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	served := make(chan error, 1)
	go func() { served <- s.Serve(context.Background(), serverConn) }()

	w := wire.NewWriter(le)
	w.Byte('l')
	w.Pad(1)
	w.Uint16(10)
	w.Uint16(0)
	w.Pad(6)
	_, err := clientConn.Write(w.Data())
	require.NoError(t, err)

	hdr := make([]byte, 8)
	_, err = io.ReadFull(clientConn, hdr)
	require.NoError(t, err)
	assert.Equal(t, byte(0), hdr[0])
	reason := make([]byte, int(le.Uint16(hdr[6:]))*4)
	_, err = io.ReadFull(clientConn, reason)
	require.NoError(t, err)
	assert.Contains(t, string(reason), "Unsupported protocol version")

	select {
	case err := <-served:
		assert.ErrorIs(t, err, ErrUnsupported)
	case <-time.After(packetTimeout):
		t.Fatal("server did not close the connection")
	}
}

func TestClientsGetDistinctRanges(t *testing.T) {
	s := newTestServer(t, Config{})
	a := connect(t, s)
	b := connect(t, s)
	assert.NotEqual(t, a.base, b.base)
	assert.Len(t, s.Clients(), 2)
}

func TestErrorKeepsFraming(t *testing.T) {
	s := newTestServer(t, Config{})
	c := connect(t, s)

	// The value list is never read because the parent lookup fails.
	b := newBody().u32(c.id(), 0xdead).i16(0, 0).u16(10, 10, 0, 1).u32(0, 1<<11, 0xffff)
	e := c.expectError(opCreateWindow, 0, b.bytes())
	assert.Equal(t, byte(xproto.BadWindow), e[1])
	assert.Equal(t, uint32(0xdead), le.Uint32(e[4:]))
	assert.Equal(t, byte(opCreateWindow), e[10])

	r := c.reply(opInternAtom, 0, newBody().u16(7).u16(0).str("PRIMARY").bytes())
	assert.Equal(t, uint32(xproto.AtomPrimary), le.Uint32(r[8:]))
}

func TestBadIDChoiceOutsideRange(t *testing.T) {
	s := newTestServer(t, Config{})
	a := connect(t, s)
	b := connect(t, s)

	foreign := b.base | 1
	body := newBody().u32(foreign, s.Root().ID()).i16(0, 0).u16(10, 10, 0, 1).u32(0, 0)
	e := a.expectError(opCreateWindow, 0, body.bytes())
	assert.Equal(t, byte(xproto.BadIDChoice), e[1])
	assert.Equal(t, foreign, le.Uint32(e[4:]))

	e = a.expectError(opCreatePixmap, 24, newBody().u32(0, s.Root().ID()).u16(4, 4).bytes())
	assert.Equal(t, byte(xproto.BadIDChoice), e[1])
}

func TestUnknownExtensionIsSkipped(t *testing.T) {
	s := newTestServer(t, Config{})
	c := connect(t, s)
	c.send(200, 3, make([]byte, 12))
	assert.Empty(t, c.sync())
}

func TestUnknownMinorIsBadImplementation(t *testing.T) {
	s := newTestServer(t, Config{})
	c := connect(t, s)
	e := c.expectError(syncMajorOpcode, 99, nil)
	assert.Equal(t, byte(xproto.BadImplementation), e[1])
	assert.Equal(t, uint16(99), le.Uint16(e[8:]))
	assert.Equal(t, byte(syncMajorOpcode), e[10])
}

func TestUnknownCoreOpcodeClosesConnection(t *testing.T) {
	s := newTestServer(t, Config{})
	c := connect(t, s)
	c.send(5, 0, make([]byte, 4))
	select {
	case err := <-c.served:
		assert.ErrorIs(t, err, ErrUnsupported)
	case <-time.After(packetTimeout):
		t.Fatal("connection stayed open")
	}
}

func TestBigRequestLength(t *testing.T) {
	s := newTestServer(t, Config{})
	c := connect(t, s)

	r := c.reply(bigReqMajorOpcode, 0, nil)
	assert.Equal(t, uint32(bigRequestMaxLength), le.Uint32(r[8:]))

	name := "_NET_WM_NAME"
	payload := newBody().u16(uint16(len(name))).u16(0).str(name).bytes()
	w := wire.NewWriter(le)
	w.Byte(opInternAtom)
	w.Byte(0)
	w.Uint16(0)
	w.Uint32(uint32(2 + len(payload)/4))
	w.Bytes(payload)
	_, err := c.conn.Write(w.Data())
	require.NoError(t, err)
	c.seq++

	p := c.next()
	require.Equal(t, byte(1), p[0])
	id, ok := s.Atoms.Lookup(name)
	require.True(t, ok)
	assert.Equal(t, uint32(id), le.Uint32(p[8:]))
}

func TestQueryExtension(t *testing.T) {
	s := newTestServer(t, Config{})
	c := connect(t, s)

	r := c.reply(opQueryExtension, 0, newBody().u16(7).u16(0).str("MIT-SHM").bytes())
	assert.Equal(t, byte(1), r[8])
	assert.Equal(t, byte(shmMajorOpcode), r[9])
	assert.Equal(t, byte(64), r[10])
	assert.Equal(t, byte(shmFirstError), r[11])

	r = c.reply(opQueryExtension, 0, newBody().u16(9).u16(0).str("XINERAMA!").bytes())
	assert.Equal(t, byte(0), r[8])
}

func TestDisconnectFreesResources(t *testing.T) {
	s := newTestServer(t, Config{})
	c := connect(t, s)
	root := s.Root().ID()
	win := c.createWindow(root, 0, 0, 20, 20, 0)
	pix := c.id()
	c.request(opCreatePixmap, 24, newBody().u32(pix, root).u16(8, 8).bytes())
	gc := c.id()
	c.request(opCreateGC, 0, newBody().u32(gc, win, 0).bytes())

	c.conn.Close()
	select {
	case err := <-c.served:
		assert.NoError(t, err)
	case <-time.After(packetTimeout):
		t.Fatal("server kept the connection")
	}

	unlock := s.Lock(allLockables...)
	defer unlock()
	assert.Nil(t, s.Windows.Get(win))
	assert.Nil(t, s.Pixmaps.Get(pix))
	assert.Nil(t, s.GCs.Get(gc))
	assert.Nil(t, s.Drawables.Get(win))
	assert.Equal(t, 1, s.Windows.Len())
	assert.Empty(t, s.Clients())
}

func TestDisconnectReleasesRange(t *testing.T) {
	s := newTestServer(t, Config{})
	a := connect(t, s)
	base := a.base
	a.conn.Close()
	<-a.served

	b := connect(t, s)
	assert.Equal(t, base, b.base)
}

func TestPanickingHandlerReleasesLocks(t *testing.T) {
	s := newTestServer(t, Config{})
	h := requestHandler{
		name:  "Boom",
		locks: []Lockable{LockWindowManager, LockInputDevice},
		fn:    func(*Server, *request) error { panic("boom") },
	}
	assert.Panics(t, func() { _ = s.call(h, &request{}) })

	done := make(chan struct{})
	go func() {
		s.Lock(LockWindowManager, LockInputDevice)()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("locks still held after the handler panicked")
	}
}

func TestClientThatStopsReadingIsDisconnected(t *testing.T) {
	s := newTestServer(t, Config{})
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close() })
	served := make(chan error, 1)
	go func() { served <- s.Serve(context.Background(), server) }()

	_, err := client.Write([]byte{'l', 0, 11, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	// GetInputFocus replies pile up behind the unread setup reply.
	getInputFocus := []byte{43, 0, 1, 0}
	for i := 0; i < 2*outputQueueLen && err == nil; i++ {
		_, err = client.Write(getInputFocus)
	}
	require.Error(t, err, "server kept reading from a client that never reads")

	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("connection still served")
	}
	assert.Empty(t, s.Clients())
}
