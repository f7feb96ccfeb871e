package ptz

import "fmt"

// Operation is a command the dispatcher can execute on a session.
type Operation int

const (
	OpGetCapabilities Operation = iota
	OpGetAbsoluteZoom
	OpAbsoluteZoom
	OpGetRelativeZoom
	OpRelativeZoom
	OpGetAbsolutePanTilt
	OpAbsolutePanTilt
	OpGetRelativePanTilt
	OpRelativePanTilt

	operationCount
)

func (op Operation) String() string {
	switch op {
	case OpGetCapabilities:
		return "getCapabilities"
	case OpGetAbsoluteZoom:
		return "getAbsoluteZoom"
	case OpAbsoluteZoom:
		return "absoluteZoom"
	case OpGetRelativeZoom:
		return "getRelativeZoom"
	case OpRelativeZoom:
		return "relativeZoom"
	case OpGetAbsolutePanTilt:
		return "getAbsolutePanTilt"
	case OpAbsolutePanTilt:
		return "absolutePanTilt"
	case OpGetRelativePanTilt:
		return "getRelativePanTilt"
	case OpRelativePanTilt:
		return "relativePanTilt"
	}
	return fmt.Sprintf("Operation(%d)", int(op))
}

// Direction of a relative move.
type Direction int8

const (
	DirectionNegative Direction = -1
	DirectionStop     Direction = 0
	DirectionPositive Direction = 1
)

// CommandRequest is one operation and its parameters. Only the fields of the
// operation are read.
type CommandRequest struct {
	Op Operation

	Zoom int32
	Pan  int32
	Tilt int32

	ZoomDirection Direction
	ZoomSpeed     int32

	PanDirection  Direction
	PanSpeed      int32
	TiltDirection Direction
	TiltSpeed     int32
}

func GetCapabilitiesRequest() CommandRequest {
	return CommandRequest{Op: OpGetCapabilities}
}

func GetAbsoluteZoomRequest() CommandRequest {
	return CommandRequest{Op: OpGetAbsoluteZoom}
}

func AbsoluteZoomRequest(zoom int32) CommandRequest {
	return CommandRequest{Op: OpAbsoluteZoom, Zoom: zoom}
}

func GetRelativeZoomRequest() CommandRequest {
	return CommandRequest{Op: OpGetRelativeZoom}
}

func RelativeZoomRequest(direction Direction, speed int32) CommandRequest {
	return CommandRequest{Op: OpRelativeZoom, ZoomDirection: direction, ZoomSpeed: speed}
}

func GetAbsolutePanTiltRequest() CommandRequest {
	return CommandRequest{Op: OpGetAbsolutePanTilt}
}

func AbsolutePanTiltRequest(pan, tilt int32) CommandRequest {
	return CommandRequest{Op: OpAbsolutePanTilt, Pan: pan, Tilt: tilt}
}

func GetRelativePanTiltRequest() CommandRequest {
	return CommandRequest{Op: OpGetRelativePanTilt}
}

func RelativePanTiltRequest(panDirection Direction, panSpeed int32, tiltDirection Direction, tiltSpeed int32) CommandRequest {
	return CommandRequest{
		Op:            OpRelativePanTilt,
		PanDirection:  panDirection,
		PanSpeed:      panSpeed,
		TiltDirection: tiltDirection,
		TiltSpeed:     tiltSpeed,
	}
}

// AbsolutePanTilt is the state of both absolute axes.
type AbsolutePanTilt struct {
	Pan  Range
	Tilt Range
}

// RelativeZoomState is the continuous zoom the device is performing.
type RelativeZoomState struct {
	Direction   Direction
	DigitalZoom bool
	Speed       Range
}

// RelativePanTiltState is the continuous pan and tilt the device is performing.
type RelativePanTiltState struct {
	PanDirection  Direction
	TiltDirection Direction
	PanSpeed      Range
	TiltSpeed     Range
}

// Result carries the value of a get operation. Only the field matching the
// request's operation is set.
type Result struct {
	Capabilities    *Capabilities
	Zoom            *Range
	RelativeZoom    *RelativeZoomState
	PanTilt         *AbsolutePanTilt
	RelativePanTilt *RelativePanTiltState
}
