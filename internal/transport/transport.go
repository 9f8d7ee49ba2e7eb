// Package transport accepts X11 clients on an AF_UNIX socket and
// collects the file descriptors they pass with SCM_RIGHTS.
package transport

import (
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ErrNoFD is returned by TakeFD when no descriptor is queued.
var ErrNoFD = errors.New("transport: no file descriptor received")

// maxFDs bounds the descriptors accepted in one message.
const maxFDs = 16

// SocketPath is the conventional socket of display n.
func SocketPath(display int) string {
	return filepath.Join("/tmp/.X11-unix", "X"+strconv.Itoa(display))
}

// Listener wraps a unix listener and hands out *Conn values.
type Listener struct {
	l    *net.UnixListener
	path string
}

// Listen binds path, replacing a stale socket left by a previous run.
func Listen(path string) (*Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o1777); err != nil {
		return nil, errors.Wrap(err, "socket directory")
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "remove stale socket")
	}
	l, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", path)
	}
	return &Listener{l: l, path: path}, nil
}

func (l *Listener) Accept() (net.Conn, error) {
	c, err := l.l.AcceptUnix()
	if err != nil {
		return nil, err
	}
	return NewConn(c), nil
}

func (l *Listener) Close() error {
	err := l.l.Close()
	os.Remove(l.path)
	return err
}

func (l *Listener) Addr() net.Addr {
	return l.l.Addr()
}

// Conn is a client connection that queues received descriptors.
type Conn struct {
	*net.UnixConn

	mu  sync.Mutex
	fds []int
	oob []byte
}

func NewConn(c *net.UnixConn) *Conn {
	return &Conn{UnixConn: c, oob: make([]byte, unix.CmsgSpace(maxFDs*4))}
}

// Read reads stream bytes and queues any descriptors that came with
// them.
func (c *Conn) Read(p []byte) (int, error) {
	n, oobn, _, _, err := c.UnixConn.ReadMsgUnix(p, c.oob)
	if oobn > 0 {
		if perr := c.queue(c.oob[:oobn]); perr != nil && err == nil {
			err = perr
		}
	}
	if n == 0 && oobn == 0 && err == nil && len(p) > 0 {
		return 0, io.EOF
	}
	return n, err
}

func (c *Conn) queue(oob []byte) error {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return errors.Wrap(err, "parse control message")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range msgs {
		fds, err := unix.ParseUnixRights(&msgs[i])
		if err != nil {
			continue
		}
		c.fds = append(c.fds, fds...)
	}
	return nil
}

// TakeFD removes and returns the oldest received descriptor. The
// caller owns it.
func (c *Conn) TakeFD() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.fds) == 0 {
		return -1, ErrNoFD
	}
	fd := c.fds[0]
	c.fds = c.fds[1:]
	return fd, nil
}

// Close closes descriptors nobody took, then the socket.
func (c *Conn) Close() error {
	c.mu.Lock()
	for _, fd := range c.fds {
		unix.Close(fd)
	}
	c.fds = nil
	c.mu.Unlock()
	return c.UnixConn.Close()
}
