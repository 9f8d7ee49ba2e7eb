package xserver

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/intio/headless-xserver/internal/wire"
)

var le = binary.LittleEndian

const packetTimeout = 2 * time.Second

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	cfg.Logger = logger
	if cfg.SHM == nil {
		cfg.SHM = newFakeSHM()
	}
	return NewServer(cfg)
}

// testClient plays the client side of one connection. A background
// reader splits the server's output into packets.
type testClient struct {
	t       *testing.T
	conn    net.Conn
	base    uint32
	setup   []byte
	packets chan []byte
	served  chan error
	nextID  uint32
	seq     uint16
}

func connect(t *testing.T, s *Server) *testClient {
	t.Helper()
	return connectWrapped(t, s, nil)
}

// connectWrapped lets a test decorate the server side of the pipe.
func connectWrapped(t *testing.T, s *Server, wrap func(net.Conn) net.Conn) *testClient {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	clientConn, serverConn := net.Pipe()
	if wrap != nil {
		serverConn = wrap(serverConn)
	}
	c := &testClient{
		t:       t,
		conn:    clientConn,
		packets: make(chan []byte, 256),
		served:  make(chan error, 1),
	}
	go func() { c.served <- s.Serve(ctx, serverConn) }()
	t.Cleanup(func() {
		clientConn.Close()
		cancel()
	})

	w := wire.NewWriter(le)
	w.Byte('l')
	w.Pad(1)
	w.Uint16(11)
	w.Uint16(0)
	w.Uint16(0)
	w.Uint16(0)
	w.Pad(2)
	_, err := clientConn.Write(w.Data())
	require.NoError(t, err)

	var hdr [8]byte
	_, err = io.ReadFull(clientConn, hdr[:])
	require.NoError(t, err)
	require.Equal(t, byte(1), hdr[0], "setup refused")
	rest := make([]byte, int(le.Uint16(hdr[6:]))*4)
	_, err = io.ReadFull(clientConn, rest)
	require.NoError(t, err)
	c.setup = append(hdr[:], rest...)
	c.base = le.Uint32(c.setup[12:])

	go c.readLoop()
	return c
}

func (c *testClient) readLoop() {
	defer close(c.packets)
	for {
		p := make([]byte, 32)
		if _, err := io.ReadFull(c.conn, p); err != nil {
			return
		}
		// Replies and generic events carry extra length.
		if p[0] == 1 || p[0]&0x7f == genericEvent {
			extra := make([]byte, int(le.Uint32(p[4:]))*4)
			if _, err := io.ReadFull(c.conn, extra); err != nil {
				return
			}
			p = append(p, extra...)
		}
		c.packets <- p
	}
}

// id hands out the next id of the client's range.
func (c *testClient) id() uint32 {
	c.nextID++
	return c.base | c.nextID
}

func (c *testClient) send(opcode, data byte, body []byte) {
	c.t.Helper()
	w := wire.NewWriter(le)
	w.Byte(opcode)
	w.Byte(data)
	w.Uint16(uint16((4 + wire.Pad(len(body))) / 4))
	w.Bytes(body)
	w.Pad(wire.PadLen(len(body)))
	_, err := c.conn.Write(w.Data())
	require.NoError(c.t, err)
	c.seq++
}

func (c *testClient) next() []byte {
	c.t.Helper()
	select {
	case p, ok := <-c.packets:
		require.True(c.t, ok, "connection closed")
		return p
	case <-time.After(packetTimeout):
		c.t.Fatal("timed out waiting for a packet")
		return nil
	}
}

// sync makes a round trip and returns the errors and events that
// arrived before its reply.
func (c *testClient) sync() [][]byte {
	c.t.Helper()
	c.send(opGetInputFocus, 0, nil)
	want := c.seq
	var out [][]byte
	for {
		p := c.next()
		if p[0] == 1 && le.Uint16(p[2:]) == want {
			return out
		}
		out = append(out, p)
	}
}

// request sends a request that must succeed without a reply.
func (c *testClient) request(opcode, data byte, body []byte) {
	c.t.Helper()
	c.send(opcode, data, body)
	for _, p := range c.sync() {
		if p[0] == 0 {
			c.t.Fatalf("request %d failed with error %d (value %#x)", opcode, p[1], le.Uint32(p[4:]))
		}
	}
}

// reply sends a request and returns its reply packet.
func (c *testClient) reply(opcode, data byte, body []byte) []byte {
	c.t.Helper()
	c.send(opcode, data, body)
	for {
		p := c.next()
		switch p[0] {
		case 0:
			c.t.Fatalf("request %d failed with error %d (value %#x)", opcode, p[1], le.Uint32(p[4:]))
		case 1:
			return p
		}
	}
}

// expectError sends a request and returns its error packet.
func (c *testClient) expectError(opcode, data byte, body []byte) []byte {
	c.t.Helper()
	c.send(opcode, data, body)
	for _, p := range c.sync() {
		if p[0] == 0 {
			return p
		}
	}
	c.t.Fatalf("request %d did not fail", opcode)
	return nil
}

// events returns the event packets that arrive before a round trip.
func (c *testClient) events() [][]byte {
	c.t.Helper()
	var out [][]byte
	for _, p := range c.sync() {
		if p[0] > 1 {
			out = append(out, p)
		}
	}
	return out
}

func eventCodes(events [][]byte) []byte {
	codes := make([]byte, 0, len(events))
	for _, e := range events {
		codes = append(codes, e[0]&0x7f)
	}
	return codes
}

type body struct{ *wire.Writer }

func newBody() body { return body{wire.NewWriter(le)} }

func (b body) u32(vs ...uint32) body {
	for _, v := range vs {
		b.Uint32(v)
	}
	return b
}

func (b body) u16(vs ...uint16) body {
	for _, v := range vs {
		b.Uint16(v)
	}
	return b
}

func (b body) i16(vs ...int16) body {
	for _, v := range vs {
		b.Int16(v)
	}
	return b
}

func (b body) u8(vs ...byte) body {
	for _, v := range vs {
		b.Byte(v)
	}
	return b
}

func (b body) str(s string) body {
	b.String8(s)
	return b
}

func (b body) bytes() []byte { return b.Data() }

// createWindow makes an InputOutput child of parent with an event mask.
func (c *testClient) createWindow(parent uint32, x, y int16, w, h uint16, eventMask uint32) uint32 {
	c.t.Helper()
	id := c.id()
	b := newBody().u32(id, parent).i16(x, y).u16(w, h, 0, 1).u32(0)
	if eventMask != 0 {
		b.u32(1<<11, eventMask)
	} else {
		b.u32(0)
	}
	c.request(opCreateWindow, 0, b.bytes())
	return id
}

func (c *testClient) mapWindow(id uint32) {
	c.t.Helper()
	c.request(opMapWindow, 0, newBody().u32(id).bytes())
}

// fakeSHM serves segments and descriptors from memory.
type fakeSHM struct {
	segments map[uint32][]byte
	attached int
	closed   []int
}

func newFakeSHM() *fakeSHM {
	return &fakeSHM{segments: make(map[uint32][]byte)}
}

func (f *fakeSHM) Attach(shmid uint32, readOnly bool) ([]byte, error) {
	data, ok := f.segments[shmid]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	f.attached++
	return data, nil
}

func (f *fakeSHM) Detach([]byte) error {
	f.attached--
	return nil
}

func (f *fakeSHM) MapFD(fd int, offset int64, size int) ([]byte, error) {
	return make([]byte, size), nil
}

func (f *fakeSHM) Unmap([]byte) error { return nil }

func (f *fakeSHM) Close(fd int) error {
	f.closed = append(f.closed, fd)
	return nil
}
