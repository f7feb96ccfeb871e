// This file implements the descriptors as defined in the UVC spec 1.5, section 3.7.
package descriptors

import (
	"encoding"
	"encoding/binary"
	"io"
)

type ControlInterface interface {
	encoding.BinaryUnmarshaler
	isControlInterface()
}

// UnmarshalControlInterface decodes one class-specific video control
// interface descriptor block. Subtypes that carry nothing this package needs
// decode into an UnitDescriptor.
func UnmarshalControlInterface(buf []byte) (ControlInterface, error) {
	if len(buf) < 3 {
		return nil, io.ErrShortBuffer
	}
	var desc ControlInterface
	switch VideoControlInterfaceDescriptorSubtype(buf[2]) {
	case VideoControlInterfaceDescriptorSubtypeHeader:
		desc = &HeaderDescriptor{}
	case VideoControlInterfaceDescriptorSubtypeInputTerminal:
		if len(buf) >= 6 && InputTerminalType(binary.LittleEndian.Uint16(buf[4:6])) == InputTerminalTypeCamera {
			desc = &CameraTerminalDescriptor{}
		} else {
			desc = &InputTerminalDescriptor{}
		}
	case VideoControlInterfaceDescriptorSubtypeOutputTerminal:
		desc = &OutputTerminalDescriptor{}
	default:
		desc = &UnitDescriptor{}
	}
	return desc, desc.UnmarshalBinary(buf)
}

type VideoControlInterfaceDescriptorSubtype byte

const (
	VideoControlInterfaceDescriptorSubtypeUndefined      VideoControlInterfaceDescriptorSubtype = 0x00
	VideoControlInterfaceDescriptorSubtypeHeader         VideoControlInterfaceDescriptorSubtype = 0x01
	VideoControlInterfaceDescriptorSubtypeInputTerminal  VideoControlInterfaceDescriptorSubtype = 0x02
	VideoControlInterfaceDescriptorSubtypeOutputTerminal VideoControlInterfaceDescriptorSubtype = 0x03
	VideoControlInterfaceDescriptorSubtypeSelectorUnit   VideoControlInterfaceDescriptorSubtype = 0x04
	VideoControlInterfaceDescriptorSubtypeProcessingUnit VideoControlInterfaceDescriptorSubtype = 0x05
	VideoControlInterfaceDescriptorSubtypeExtensionUnit  VideoControlInterfaceDescriptorSubtype = 0x06
	VideoControlInterfaceDescriptorSubtypeEncodingUnit   VideoControlInterfaceDescriptorSubtype = 0x07
)

type InputTerminalType uint16

const (
	InputTerminalTypeVendorSpecific      InputTerminalType = 0x0200
	InputTerminalTypeCamera              InputTerminalType = 0x0201
	InputTerminalTypeMediaTransportInput InputTerminalType = 0x0202
)

type OutputTerminalType uint16

const (
	OutputTerminalTypeVendorSpecific       OutputTerminalType = 0x0300
	OutputTerminalTypeCamera               OutputTerminalType = 0x0301
	OutputTerminalTypeMediaTransportOutput OutputTerminalType = 0x0302
)

func checkClassSpecific(buf []byte, subtype VideoControlInterfaceDescriptorSubtype, minLen int) error {
	if len(buf) < 3 || len(buf) < int(buf[0]) || int(buf[0]) < minLen {
		return io.ErrShortBuffer
	}
	if ClassSpecificDescriptorType(buf[1]) != ClassSpecificDescriptorTypeInterface {
		return ErrInvalidDescriptor
	}
	if VideoControlInterfaceDescriptorSubtype(buf[2]) != subtype {
		return ErrInvalidDescriptor
	}
	return nil
}

// HeaderDescriptor as defined in UVC spec 1.5, 3.7.2.1
type HeaderDescriptor struct {
	UVC                            uint16
	TotalLength                    uint16
	ClockFrequency                 uint32
	VideoStreamingInterfaceIndexes []uint8
}

func (hd *HeaderDescriptor) UnmarshalBinary(buf []byte) error {
	if err := checkClassSpecific(buf, VideoControlInterfaceDescriptorSubtypeHeader, 12); err != nil {
		return err
	}
	hd.UVC = binary.LittleEndian.Uint16(buf[3:5])
	hd.TotalLength = binary.LittleEndian.Uint16(buf[5:7])
	hd.ClockFrequency = binary.LittleEndian.Uint32(buf[7:11])
	n := int(buf[11])
	if len(buf) < 12+n {
		return io.ErrShortBuffer
	}
	hd.VideoStreamingInterfaceIndexes = append([]uint8(nil), buf[12:12+n]...)
	return nil
}

func (hd *HeaderDescriptor) isControlInterface() {}

// InputTerminalDescriptor as defined in UVC spec 1.5, 3.7.2.1
type InputTerminalDescriptor struct {
	TerminalID           uint8
	TerminalType         InputTerminalType
	AssociatedTerminalID uint8
	DescriptionIndex     uint8
}

func (itd *InputTerminalDescriptor) UnmarshalBinary(buf []byte) error {
	if err := checkClassSpecific(buf, VideoControlInterfaceDescriptorSubtypeInputTerminal, 8); err != nil {
		return err
	}
	itd.TerminalID = buf[3]
	itd.TerminalType = InputTerminalType(binary.LittleEndian.Uint16(buf[4:6]))
	itd.AssociatedTerminalID = buf[6]
	itd.DescriptionIndex = buf[7]
	return nil
}

func (itd *InputTerminalDescriptor) isControlInterface() {}

// OutputTerminalDescriptor as defined in UVC spec 1.5, 3.7.2.2
type OutputTerminalDescriptor struct {
	TerminalID           uint8
	TerminalType         OutputTerminalType
	AssociatedTerminalID uint8
	SourceID             uint8
}

func (otd *OutputTerminalDescriptor) UnmarshalBinary(buf []byte) error {
	if err := checkClassSpecific(buf, VideoControlInterfaceDescriptorSubtypeOutputTerminal, 9); err != nil {
		return err
	}
	otd.TerminalID = buf[3]
	otd.TerminalType = OutputTerminalType(binary.LittleEndian.Uint16(buf[4:6]))
	otd.AssociatedTerminalID = buf[6]
	otd.SourceID = buf[7]
	return nil
}

func (otd *OutputTerminalDescriptor) isControlInterface() {}

// CameraTerminalDescriptor as defined in UVC spec 1.5, 3.7.2.3
type CameraTerminalDescriptor struct {
	InputTerminalDescriptor
	ObjectiveFocalLengthMin uint16
	ObjectiveFocalLengthMax uint16
	OcularFocalLength       uint16
	ControlsBitmask         []byte
}

func (ctd *CameraTerminalDescriptor) UnmarshalBinary(buf []byte) error {
	if err := ctd.InputTerminalDescriptor.UnmarshalBinary(buf); err != nil {
		return err
	}
	if ctd.TerminalType != InputTerminalTypeCamera {
		return ErrInvalidDescriptor
	}
	if len(buf) < 15 {
		return io.ErrShortBuffer
	}
	ctd.ObjectiveFocalLengthMin = binary.LittleEndian.Uint16(buf[8:10])
	ctd.ObjectiveFocalLengthMax = binary.LittleEndian.Uint16(buf[10:12])
	ctd.OcularFocalLength = binary.LittleEndian.Uint16(buf[12:14])
	n := int(buf[14])
	if len(buf) < 15+n {
		return io.ErrShortBuffer
	}
	ctd.ControlsBitmask = append([]byte(nil), buf[15:15+n]...)
	return nil
}

func (ctd *CameraTerminalDescriptor) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 15+len(ctd.ControlsBitmask))
	buf[0] = byte(len(buf))
	buf[1] = byte(ClassSpecificDescriptorTypeInterface)
	buf[2] = byte(VideoControlInterfaceDescriptorSubtypeInputTerminal)
	buf[3] = ctd.TerminalID
	binary.LittleEndian.PutUint16(buf[4:6], uint16(InputTerminalTypeCamera))
	buf[6] = ctd.AssociatedTerminalID
	buf[7] = ctd.DescriptionIndex
	binary.LittleEndian.PutUint16(buf[8:10], ctd.ObjectiveFocalLengthMin)
	binary.LittleEndian.PutUint16(buf[10:12], ctd.ObjectiveFocalLengthMax)
	binary.LittleEndian.PutUint16(buf[12:14], ctd.OcularFocalLength)
	buf[14] = byte(len(ctd.ControlsBitmask))
	copy(buf[15:], ctd.ControlsBitmask)
	return buf, nil
}

// IsControlSupported reports whether bit is set in bmControls. Devices that
// follow older UVC versions send a shorter bitmask; missing bytes read as zero.
func (ctd *CameraTerminalDescriptor) IsControlSupported(bit int) bool {
	byteIndex := bit / 8
	if byteIndex >= len(ctd.ControlsBitmask) {
		return false
	}
	return ctd.ControlsBitmask[byteIndex]&(1<<(bit%8)) != 0
}

// SetControlSupported sets bit in bmControls, growing the bitmask as needed.
func (ctd *CameraTerminalDescriptor) SetControlSupported(bit int) {
	for len(ctd.ControlsBitmask) <= bit/8 {
		ctd.ControlsBitmask = append(ctd.ControlsBitmask, 0)
	}
	ctd.ControlsBitmask[bit/8] |= 1 << (bit % 8)
}

// HasPTZ reports whether any pan, tilt, zoom or roll control is advertised.
func (ctd *CameraTerminalDescriptor) HasPTZ() bool {
	for _, bit := range PTZControlBits {
		if ctd.IsControlSupported(bit) {
			return true
		}
	}
	return false
}

func (ctd *CameraTerminalDescriptor) isControlInterface() {}

// UnitDescriptor holds the common prefix of the unit descriptors (selector,
// processing, extension, encoding) that are not interpreted further.
type UnitDescriptor struct {
	Subtype VideoControlInterfaceDescriptorSubtype
	UnitID  uint8
	Raw     []byte
}

func (ud *UnitDescriptor) UnmarshalBinary(buf []byte) error {
	if len(buf) < 4 || len(buf) < int(buf[0]) {
		return io.ErrShortBuffer
	}
	if ClassSpecificDescriptorType(buf[1]) != ClassSpecificDescriptorTypeInterface {
		return ErrInvalidDescriptor
	}
	ud.Subtype = VideoControlInterfaceDescriptorSubtype(buf[2])
	ud.UnitID = buf[3]
	ud.Raw = append([]byte(nil), buf[:buf[0]]...)
	return nil
}

func (ud *UnitDescriptor) isControlInterface() {}
