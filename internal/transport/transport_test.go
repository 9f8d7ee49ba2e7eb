package transport

import (
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func dial(t *testing.T) (*Conn, *net.UnixConn) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "X9")
	l, err := Listen(path)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := l.Accept()
		if err == nil {
			accepted <- c
		}
		close(accepted)
	}()
	client, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: path, Net: "unix"})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	server, ok := (<-accepted).(*Conn)
	require.True(t, ok)
	t.Cleanup(func() { server.Close() })
	return server, client
}

func TestSocketPath(t *testing.T) {
	assert.Equal(t, "/tmp/.X11-unix/X0", SocketPath(0))
	assert.Equal(t, "/tmp/.X11-unix/X12", SocketPath(12))
}

func TestReadWithoutFDs(t *testing.T) {
	server, client := dial(t)
	_, err := client.Write([]byte("l\x00\x0b\x00"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	_, err = io.ReadFull(server, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("l\x00\x0b\x00"), buf)

	_, err = server.TakeFD()
	assert.ErrorIs(t, err, ErrNoFD)
}

func TestReceiveFD(t *testing.T) {
	server, client := dial(t)
	f, err := os.CreateTemp(t.TempDir(), "buffer")
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString("pixels")
	require.NoError(t, err)

	_, _, err = client.WriteMsgUnix([]byte{1, 2, 3, 4}, unix.UnixRights(int(f.Fd())), nil)
	require.NoError(t, err)

	buf := make([]byte, 4)
	_, err = io.ReadFull(server, buf)
	require.NoError(t, err)

	fd, err := server.TakeFD()
	require.NoError(t, err)
	defer unix.Close(fd)
	got := make([]byte, 6)
	n, err := unix.Pread(fd, got, 0)
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(got[:n]))

	_, err = server.TakeFD()
	assert.ErrorIs(t, err, ErrNoFD)
}

func TestReadEOF(t *testing.T) {
	server, client := dial(t)
	require.NoError(t, client.Close())
	_, err := server.Read(make([]byte, 4))
	assert.ErrorIs(t, err, io.EOF)
}
