//go:build unix

package transfers

import (
	"errors"

	"golang.org/x/sys/unix"
)

func classifyErrno(err error) error {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return nil
	}
	switch errno {
	case unix.EPIPE:
		return ErrStall
	case unix.ETIMEDOUT:
		return ErrTimeout
	case unix.EBUSY:
		return ErrBusy
	case unix.ENODEV, unix.ESHUTDOWN:
		return ErrNoDevice
	}
	return nil
}
