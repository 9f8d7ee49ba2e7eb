// Package sysvshm maps client-shared memory into the server: SysV
// segments for MIT-SHM and file descriptors for DRI3 buffers.
package sysvshm

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Backend is the real shared memory implementation.
type Backend struct{}

// Attach maps the SysV segment shmid.
func (Backend) Attach(shmid uint32, readOnly bool) ([]byte, error) {
	flag := 0
	if readOnly {
		flag = unix.SHM_RDONLY
	}
	data, err := unix.SysvShmAttach(int(shmid), 0, flag)
	if err != nil {
		return nil, errors.Wrapf(err, "shmat %d", shmid)
	}
	return data, nil
}

func (Backend) Detach(data []byte) error {
	return errors.Wrap(unix.SysvShmDetach(data), "shmdt")
}

// MapFD maps size bytes of fd starting at offset. The descriptor stays
// open; the caller closes it.
func (Backend) MapFD(fd int, offset int64, size int) ([]byte, error) {
	data, err := unix.Mmap(fd, offset, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(err, "mmap fd %d", fd)
	}
	return data, nil
}

func (Backend) Unmap(data []byte) error {
	return errors.Wrap(unix.Munmap(data), "munmap")
}

// Close closes a received descriptor.
func (Backend) Close(fd int) error {
	return errors.Wrapf(unix.Close(fd), "close fd %d", fd)
}

// Create allocates a private segment of size bytes and returns its id.
// It is used by tests and tools that play the client side.
func Create(size int) (uint32, error) {
	id, err := unix.SysvShmGet(unix.IPC_PRIVATE, size, unix.IPC_CREAT|0o600)
	if err != nil {
		return 0, errors.Wrap(err, "shmget")
	}
	return uint32(id), nil
}

// Remove marks a segment for deletion once the last attachment is gone.
func Remove(shmid uint32) error {
	_, err := unix.SysvShmCtl(int(shmid), unix.IPC_RMID, nil)
	return errors.Wrap(err, "shmctl IPC_RMID")
}
