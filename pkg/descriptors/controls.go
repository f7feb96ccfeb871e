package descriptors

import (
	"encoding"
	"encoding/binary"
)

// CameraTerminalControlDescriptor is the payload of one camera terminal
// control. The payload is not length and control-selector prefixed because
// the control transfer carries both in its setup packet.
type CameraTerminalControlDescriptor interface {
	Value() CameraTerminalControlSelector
	FeatureBit() int // position of the control in the terminal bmControls
	MarshalSize() int
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// Control Request for Zoom (Absolute) as defined in UVC spec 1.5, 4.2.2.1.11
type ZoomAbsoluteControl struct {
	ObjectiveFocalLength uint16
}

func (zac *ZoomAbsoluteControl) Value() CameraTerminalControlSelector {
	return CameraTerminalControlSelectorZoomAbsoluteControl
}

func (zac *ZoomAbsoluteControl) FeatureBit() int {
	return CameraTerminalBitZoomAbsolute
}

func (zac *ZoomAbsoluteControl) MarshalSize() int {
	return 2
}

func (zac *ZoomAbsoluteControl) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, zac.ObjectiveFocalLength)
	return buf, nil
}

func (zac *ZoomAbsoluteControl) UnmarshalBinary(buf []byte) error {
	if len(buf) < 2 {
		return ErrShortControl
	}
	zac.ObjectiveFocalLength = binary.LittleEndian.Uint16(buf)
	return nil
}

// Control Request for Zoom (Relative) as defined in UVC spec 1.5, 4.2.2.1.12
type ZoomRelativeControl struct {
	Zoom        int8 // -1 wide, 0 stop, 1 telephoto
	DigitalZoom bool
	Speed       uint8
}

func (zrc *ZoomRelativeControl) Value() CameraTerminalControlSelector {
	return CameraTerminalControlSelectorZoomRelativeControl
}

func (zrc *ZoomRelativeControl) FeatureBit() int {
	return CameraTerminalBitZoomRelative
}

func (zrc *ZoomRelativeControl) MarshalSize() int {
	return 3
}

func (zrc *ZoomRelativeControl) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 3)
	buf[0] = byte(zrc.Zoom)
	if zrc.DigitalZoom {
		buf[1] = 1
	}
	buf[2] = zrc.Speed
	return buf, nil
}

func (zrc *ZoomRelativeControl) UnmarshalBinary(buf []byte) error {
	if len(buf) < 3 {
		return ErrShortControl
	}
	zrc.Zoom = int8(buf[0])
	zrc.DigitalZoom = buf[1] != 0
	zrc.Speed = buf[2]
	return nil
}

// Control Request for PanTilt (Absolute) as defined in UVC spec 1.5, 4.2.2.1.13.
// Both values are in arc seconds.
type PanTiltAbsoluteControl struct {
	Pan  int32
	Tilt int32
}

func (ptac *PanTiltAbsoluteControl) Value() CameraTerminalControlSelector {
	return CameraTerminalControlSelectorPanTiltAbsoluteControl
}

func (ptac *PanTiltAbsoluteControl) FeatureBit() int {
	return CameraTerminalBitPanTiltAbsolute
}

func (ptac *PanTiltAbsoluteControl) MarshalSize() int {
	return 8
}

func (ptac *PanTiltAbsoluteControl) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(ptac.Pan))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(ptac.Tilt))
	return buf, nil
}

func (ptac *PanTiltAbsoluteControl) UnmarshalBinary(buf []byte) error {
	if len(buf) < 8 {
		return ErrShortControl
	}
	ptac.Pan = int32(binary.LittleEndian.Uint32(buf[0:4]))
	ptac.Tilt = int32(binary.LittleEndian.Uint32(buf[4:8]))
	return nil
}

// Control Request for PanTilt (Relative) as defined in UVC spec 1.5, 4.2.2.1.14
type PanTiltRelativeControl struct {
	PanRelative  int8 // -1 counter-clockwise, 0 stop, 1 clockwise
	PanSpeed     uint8
	TiltRelative int8 // -1 down, 0 stop, 1 up
	TiltSpeed    uint8
}

func (ptrc *PanTiltRelativeControl) Value() CameraTerminalControlSelector {
	return CameraTerminalControlSelectorPanTiltRelativeControl
}

func (ptrc *PanTiltRelativeControl) FeatureBit() int {
	return CameraTerminalBitPanTiltRelative
}

func (ptrc *PanTiltRelativeControl) MarshalSize() int {
	return 4
}

func (ptrc *PanTiltRelativeControl) MarshalBinary() ([]byte, error) {
	return []byte{byte(ptrc.PanRelative), ptrc.PanSpeed, byte(ptrc.TiltRelative), ptrc.TiltSpeed}, nil
}

func (ptrc *PanTiltRelativeControl) UnmarshalBinary(buf []byte) error {
	if len(buf) < 4 {
		return ErrShortControl
	}
	ptrc.PanRelative = int8(buf[0])
	ptrc.PanSpeed = buf[1]
	ptrc.TiltRelative = int8(buf[2])
	ptrc.TiltSpeed = buf[3]
	return nil
}

// Control Request for Roll (Absolute) as defined in UVC spec 1.5, 4.2.2.1.15
type RollAbsoluteControl struct {
	Roll int16 // degrees
}

func (rac *RollAbsoluteControl) Value() CameraTerminalControlSelector {
	return CameraTerminalControlSelectorRollAbsoluteControl
}

func (rac *RollAbsoluteControl) FeatureBit() int {
	return CameraTerminalBitRollAbsolute
}

func (rac *RollAbsoluteControl) MarshalSize() int {
	return 2
}

func (rac *RollAbsoluteControl) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, uint16(rac.Roll))
	return buf, nil
}

func (rac *RollAbsoluteControl) UnmarshalBinary(buf []byte) error {
	if len(buf) < 2 {
		return ErrShortControl
	}
	rac.Roll = int16(binary.LittleEndian.Uint16(buf))
	return nil
}

// Control Request for Roll (Relative) as defined in UVC spec 1.5, 4.2.2.1.16
type RollRelativeControl struct {
	RollRelative int8
	Speed        uint8
}

func (rrc *RollRelativeControl) Value() CameraTerminalControlSelector {
	return CameraTerminalControlSelectorRollRelativeControl
}

func (rrc *RollRelativeControl) FeatureBit() int {
	return CameraTerminalBitRollRelative
}

func (rrc *RollRelativeControl) MarshalSize() int {
	return 2
}

func (rrc *RollRelativeControl) MarshalBinary() ([]byte, error) {
	return []byte{byte(rrc.RollRelative), rrc.Speed}, nil
}

func (rrc *RollRelativeControl) UnmarshalBinary(buf []byte) error {
	if len(buf) < 2 {
		return ErrShortControl
	}
	rrc.RollRelative = int8(buf[0])
	rrc.Speed = buf[1]
	return nil
}

// NewCameraTerminalControl returns an empty control for selector, or nil if
// the selector is not one of the pan, tilt, zoom or roll controls.
func NewCameraTerminalControl(selector CameraTerminalControlSelector) CameraTerminalControlDescriptor {
	switch selector {
	case CameraTerminalControlSelectorZoomAbsoluteControl:
		return &ZoomAbsoluteControl{}
	case CameraTerminalControlSelectorZoomRelativeControl:
		return &ZoomRelativeControl{}
	case CameraTerminalControlSelectorPanTiltAbsoluteControl:
		return &PanTiltAbsoluteControl{}
	case CameraTerminalControlSelectorPanTiltRelativeControl:
		return &PanTiltRelativeControl{}
	case CameraTerminalControlSelectorRollAbsoluteControl:
		return &RollAbsoluteControl{}
	case CameraTerminalControlSelectorRollRelativeControl:
		return &RollRelativeControl{}
	}
	return nil
}
