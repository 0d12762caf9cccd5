//go:build linux || darwin

package core

import "golang.org/x/sys/unix"

// closeFd closes a duplicated DMABUF/IOSurface fd exactly once.
func closeFd(fd int) error {
	return unix.Close(fd)
}

// dupCloexecFd duplicates fd with FD_CLOEXEC set atomically, so a DMABUF
// can be handed out without racing a concurrent fork/exec elsewhere in the
// process. No backend in this tree calls it; none delivers DMABUF content.
func dupCloexecFd(fd int) (int, error) {
	return unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
}
