package descriptors

import (
	"encoding/binary"
	"fmt"
	"io"
)

// StandardDeviceDescriptor holds the fields of the USB 2.0 device descriptor,
// table 9-8, that identify a device.
type StandardDeviceDescriptor struct {
	USB               uint16
	DeviceClass       ClassCode
	VendorID          uint16
	ProductID         uint16
	Device            uint16
	ManufacturerIndex uint8
	ProductIndex      uint8
	SerialNumberIndex uint8
	NumConfigurations uint8
}

func (sdd *StandardDeviceDescriptor) UnmarshalBinary(buf []byte) error {
	if len(buf) < 18 || buf[0] < 18 {
		return io.ErrShortBuffer
	}
	if StandardDescriptorType(buf[1]) != StandardDescriptorTypeDevice {
		return ErrInvalidDescriptor
	}
	sdd.USB = binary.LittleEndian.Uint16(buf[2:4])
	sdd.DeviceClass = ClassCode(buf[4])
	sdd.VendorID = binary.LittleEndian.Uint16(buf[8:10])
	sdd.ProductID = binary.LittleEndian.Uint16(buf[10:12])
	sdd.Device = binary.LittleEndian.Uint16(buf[12:14])
	sdd.ManufacturerIndex = buf[14]
	sdd.ProductIndex = buf[15]
	sdd.SerialNumberIndex = buf[16]
	sdd.NumConfigurations = buf[17]
	return nil
}

// VideoControlFunction locates the camera terminal of a device: the video
// control interface that carries requests and the terminal they address.
type VideoControlFunction struct {
	Device          StandardDeviceDescriptor
	InterfaceNumber uint8
	Terminal        *CameraTerminalDescriptor
}

// ParseVideoControl walks the raw descriptors of a device, as exposed by
// usbfs and the sysfs descriptors attribute: the device descriptor followed by
// the configuration descriptors. Only the first configuration is read. The
// returned function has a nil Terminal if no video control interface carries a
// camera terminal.
func ParseVideoControl(raw []byte) (*VideoControlFunction, error) {
	vc := &VideoControlFunction{}
	if err := vc.Device.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("device descriptor: %w", err)
	}
	tis := IsTISCamera(vc.Device.VendorID, vc.Device.ProductID)

	configs := 0
	inVideoControl := false
	for i := int(raw[0]); i < len(raw); {
		if i+2 > len(raw) {
			return nil, io.ErrShortBuffer
		}
		n := int(raw[i])
		if n < 2 || i+n > len(raw) {
			return nil, fmt.Errorf("descriptor at offset %d: %w", i, ErrInvalidDescriptor)
		}
		block := raw[i : i+n]
		i += n

		switch block[1] {
		case byte(StandardDescriptorTypeConfiguration):
			configs++
			if configs > 1 {
				return vc, nil
			}
		case byte(StandardDescriptorTypeInterface):
			if n < 9 {
				return nil, fmt.Errorf("interface descriptor: %w", io.ErrShortBuffer)
			}
			class, subclass := ClassCode(block[5]), SubclassCode(block[6])
			inVideoControl = block[3] == 0 && subclass == SubclassCodeVideoControl &&
				(class == ClassCodeVideo || (tis && class == ClassCodeVendorSpecific))
			if inVideoControl {
				vc.InterfaceNumber = block[2]
			}
		case byte(ClassSpecificDescriptorTypeInterface):
			if !inVideoControl || vc.Terminal != nil {
				continue
			}
			desc, err := UnmarshalControlInterface(block)
			if err != nil {
				return nil, fmt.Errorf("video control descriptor: %w", err)
			}
			if ct, ok := desc.(*CameraTerminalDescriptor); ok {
				vc.Terminal = ct
			}
		}
	}
	return vc, nil
}
