package xserver

import (
	"bufio"
	"context"
	"encoding/binary"
	"net"
	"sync"
	"sync/atomic"

	"github.com/BurntSushi/xgb"
	"github.com/sirupsen/logrus"

	"github.com/intio/headless-xserver/internal/wire"
)

// outputQueueLen is the number of packets buffered per client before
// the client is disconnected.
const outputQueueLen = 256

// FDReceiver is implemented by connections that carry file descriptors
// alongside the byte stream.
type FDReceiver interface {
	TakeFD() (int, error)
}

// Client is one connected X11 client.
type Client struct {
	srv  *Server
	conn net.Conn
	r    *bufio.Reader
	log  logrus.FieldLogger

	order binary.ByteOrder
	base  uint32
	seq   atomic.Uint32

	out    chan []byte
	ctx    context.Context
	cancel context.CancelFunc

	// resources and listeners change under the category locks of the
	// request creating them, and under lockAll on disconnect.
	resources []Resource
	listeners map[*Window]*EventListener

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(srv *Server, conn net.Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		srv:       srv,
		conn:      conn,
		r:         bufio.NewReaderSize(conn, 64*1024),
		log:       srv.log.WithField("remote", conn.RemoteAddr().String()),
		out:       make(chan []byte, outputQueueLen),
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[*Window]*EventListener),
		done:      make(chan struct{}),
	}
}

// Base is the first id of the client's resource range.
func (c *Client) Base() uint32 {
	return c.base
}

func (c *Client) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Sequence is the sequence number of the last request read.
func (c *Client) Sequence() uint16 {
	return uint16(c.seq.Load())
}

// Context is cancelled when the client disconnects.
func (c *Client) Context() context.Context {
	return c.ctx
}

// ownsID reports whether id lies inside the client's range.
func (c *Client) ownsID(id uint32) bool {
	return id != 0 && InRange(c.base, id)
}

func (c *Client) registerResource(r Resource) {
	c.resources = append(c.resources, r)
}

// setEventMask replaces the client's listener on w. An empty mask only
// removes it.
func (c *Client) setEventMask(w *Window, mask Bitmask) {
	if l := c.listeners[w]; l != nil {
		w.removeEventListener(l)
		delete(c.listeners, w)
	}
	if mask.IsEmpty() {
		return
	}
	l := &EventListener{Client: c, Mask: mask}
	c.listeners[w] = l
	w.addEventListener(l)
}

func (c *Client) eventMask(w *Window) Bitmask {
	if l := c.listeners[w]; l != nil {
		return l.Mask
	}
	return 0
}

func (c *Client) isInterestedIn(mask uint32, w *Window) bool {
	l := c.listeners[w]
	return l != nil && l.interestedIn(mask)
}

// SendEvent queues ev for the client, stamped with its current sequence
// number. Events for a disconnected client are dropped.
func (c *Client) SendEvent(ev xgb.Event) {
	w := wire.NewWriter(c.order)
	if !encodeEvent(w, c.Sequence(), ev) {
		c.log.WithField("event", ev.String()).Warn("dropping event without an encoding")
		return
	}
	c.write(w.Data())
}

// write queues packet without blocking. A client whose queue is full
// has stopped reading and is disconnected.
func (c *Client) write(packet []byte) {
	select {
	case c.out <- packet:
	case <-c.ctx.Done():
	default:
		c.log.Warn("output queue full, disconnecting")
		c.Close()
	}
}

// writeLoop drains the output queue into the connection.
func (c *Client) writeLoop() {
	defer close(c.done)
	for {
		select {
		case p := <-c.out:
			if _, err := c.conn.Write(p); err != nil {
				c.log.WithError(err).Debug("write failed")
				c.cancel()
				return
			}
		case <-c.ctx.Done():
			for {
				select {
				case p := <-c.out:
					if _, err := c.conn.Write(p); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (c *Client) OnCreateResource(Resource) {}

// OnFreeResource forgets resources freed by any path, so the
// disconnect sweep never frees an id twice.
func (c *Client) OnFreeResource(r Resource) {
	if w, ok := r.(*Window); ok {
		delete(c.listeners, w)
	}
	for i, owned := range c.resources {
		if owned == r {
			c.resources = append(c.resources[:i], c.resources[i+1:]...)
			break
		}
	}
}

// freeResources destroys everything the client created, newest first,
// removes its listeners and releases its id range. Callers hold every
// category lock.
func (c *Client) freeResources() {
	s := c.srv
	for len(c.resources) > 0 {
		r := c.resources[len(c.resources)-1]
		c.resources = c.resources[:len(c.resources)-1]
		switch r := r.(type) {
		case *Window:
			s.Windows.Destroy(r.id)
		case *Pixmap:
			s.Pixmaps.Free(r.ID())
		case *GraphicsContext:
			s.GCs.Free(r.id)
		case *Cursor:
			s.Cursors.Free(r.id)
		}
	}
	for w, l := range c.listeners {
		w.removeEventListener(l)
	}
	c.listeners = make(map[*Window]*EventListener)

	s.Windows.RemoveResourceListener(c)
	s.Pixmaps.RemoveResourceListener(c)
	s.GCs.RemoveResourceListener(c)
	s.Cursors.RemoveResourceListener(c)
	s.Grabs.releaseClient(c)
	s.Selections.releaseClient(c)
	s.present.releaseClient(c)
	s.ids.Free(c.base)
}

// Close disconnects the client. It is safe to call more than once and
// from any goroutine.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.conn.Close()
	})
}
