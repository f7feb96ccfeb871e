package transfers

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kevmo314/go-ptz/pkg/requests"
)

// Handle is the subset of an open USB device that control requests need.
// *usb.DeviceHandle satisfies it.
type Handle interface {
	ControlTransfer(requestType, request uint8, value, index uint16, data []byte, timeout time.Duration) (int, error)
	ClaimInterface(iface uint8) error
	ReleaseInterface(iface uint8) error
	DetachKernelDriver(iface uint8) error
	AttachKernelDriver(iface uint8) error
	Close() error
}

var (
	// ErrStall is returned when the device stalls the control pipe, which is how
	// a UVC device rejects a request it does not support or a value it refuses.
	ErrStall         = errors.New("control pipe stalled")
	ErrTimeout       = errors.New("control transfer timed out")
	ErrBusy          = errors.New("interface busy")
	ErrNoDevice      = errors.New("device disconnected")
	ErrShortTransfer = errors.New("short control transfer")
)

// Classify maps an error from the USB stack onto the package sentinels. The
// original error stays in the chain.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{ErrStall, ErrTimeout, ErrBusy, ErrNoDevice, ErrShortTransfer} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	if kind := classifyErrno(err); kind != nil {
		return fmt.Errorf("%w: %w", kind, err)
	}
	return err
}

// Control issues one class-specific request. Get requests fill data and must
// return exactly len(data) bytes.
func Control(h Handle, setup requests.Setup, data []byte, timeout time.Duration) error {
	n, err := h.ControlTransfer(setup.RequestType(), uint8(setup.Request), setup.Value(), setup.Index(), data, timeout)
	if err != nil {
		return Classify(err)
	}
	if n != len(data) {
		return fmt.Errorf("%s selector 0x%02x: got %d of %d bytes: %w", setup.Request, setup.Selector, n, len(data), ErrShortTransfer)
	}
	return nil
}
