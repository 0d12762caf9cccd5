//go:build windows

package core

// closeFd has no meaning on Windows: GPU interop there hands out shared
// HANDLEs (ReleaseD3D11SharedHandle), never fds.
func closeFd(fd int) error { return nil }
