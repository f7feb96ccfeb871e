package ptz

import (
	"errors"
	"fmt"
)

var (
	ErrDeviceNotFound       = errors.New("ptz: device not found")
	ErrDeviceBusy           = errors.New("ptz: device busy")
	ErrUnsupportedDevice    = errors.New("ptz: device has no pan, tilt or zoom controls")
	ErrUnsupportedOperation = errors.New("ptz: unsupported operation")
	ErrOutOfRange           = errors.New("ptz: value out of range")
	ErrDeviceTimeout        = errors.New("ptz: device timeout")
	ErrOperationCancelled   = errors.New("ptz: operation cancelled")
	ErrIO                   = errors.New("ptz: i/o error")
	ErrSessionClosed        = errors.New("ptz: session closed")
)

var errControllerClosed = fmt.Errorf("%w: controller closed", ErrOperationCancelled)

// Axis names the value a validation error refers to.
type Axis int

const (
	AxisZoom Axis = iota
	AxisZoomSpeed
	AxisZoomDirection
	AxisPan
	AxisTilt
	AxisPanSpeed
	AxisTiltSpeed
	AxisPanDirection
	AxisTiltDirection
)

func (a Axis) String() string {
	switch a {
	case AxisZoom:
		return "zoom"
	case AxisZoomSpeed:
		return "zoom speed"
	case AxisZoomDirection:
		return "zoom direction"
	case AxisPan:
		return "pan"
	case AxisTilt:
		return "tilt"
	case AxisPanSpeed:
		return "pan speed"
	case AxisTiltSpeed:
		return "tilt speed"
	case AxisPanDirection:
		return "pan direction"
	case AxisTiltDirection:
		return "tilt direction"
	}
	return fmt.Sprintf("Axis(%d)", int(a))
}

type Bound int

const (
	BoundMin Bound = iota
	BoundMax
)

func (b Bound) String() string {
	if b == BoundMin {
		return "min"
	}
	return "max"
}

// OutOfRangeError is returned when a value falls outside the range the device
// reported for its axis. No transfer is issued.
type OutOfRangeError struct {
	Axis  Axis
	Bound Bound
	Value int32
	Limit int32
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("ptz: %s %d out of range: %s is %d", e.Axis, e.Value, e.Bound, e.Limit)
}

func (e *OutOfRangeError) Is(target error) bool {
	return target == ErrOutOfRange
}

// checkRange returns an *OutOfRangeError if v is outside [min, max].
func checkRange(axis Axis, v int32, r Range) error {
	if v < r.Min {
		return &OutOfRangeError{Axis: axis, Bound: BoundMin, Value: v, Limit: r.Min}
	}
	if v > r.Max {
		return &OutOfRangeError{Axis: axis, Bound: BoundMax, Value: v, Limit: r.Max}
	}
	return nil
}

type UnsupportedOperationError struct {
	Op Operation
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("ptz: %s not supported by device", e.Op)
}

func (e *UnsupportedOperationError) Is(target error) bool {
	return target == ErrUnsupportedOperation
}

// IOError wraps a failed control transfer. The device may be left in an
// unknown position.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("ptz: %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool {
	return target == ErrIO
}
