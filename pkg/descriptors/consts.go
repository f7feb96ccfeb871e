package descriptors

import "errors"

var (
	ErrInvalidDescriptor = errors.New("invalid descriptor")
	ErrShortControl      = errors.New("control payload too short")
)

type ClassCode byte

const (
	ClassCodeVideo          ClassCode = 0x0E
	ClassCodeVendorSpecific ClassCode = 0xFF
)

type SubclassCode byte

const (
	SubclassCodeUndefined                SubclassCode = 0x00
	SubclassCodeVideoControl             SubclassCode = 0x01
	SubclassCodeVideoStreaming           SubclassCode = 0x02
	SubclassCodeVideoInterfaceCollection SubclassCode = 0x03
)

// StandardDescriptorType values from USB 2.0, table 9-5.
type StandardDescriptorType byte

const (
	StandardDescriptorTypeDevice        StandardDescriptorType = 0x01
	StandardDescriptorTypeConfiguration StandardDescriptorType = 0x02
	StandardDescriptorTypeString        StandardDescriptorType = 0x03
	StandardDescriptorTypeInterface     StandardDescriptorType = 0x04
	StandardDescriptorTypeEndpoint      StandardDescriptorType = 0x05
	StandardDescriptorTypeIAD           StandardDescriptorType = 0x0B
)

type ClassSpecificDescriptorType int

const (
	ClassSpecificDescriptorTypeUndefined     ClassSpecificDescriptorType = 0x20
	ClassSpecificDescriptorTypeDevice        ClassSpecificDescriptorType = 0x21
	ClassSpecificDescriptorTypeConfiguration ClassSpecificDescriptorType = 0x22
	ClassSpecificDescriptorTypeString        ClassSpecificDescriptorType = 0x23
	ClassSpecificDescriptorTypeInterface     ClassSpecificDescriptorType = 0x24
	ClassSpecificDescriptorTypeEndpoint      ClassSpecificDescriptorType = 0x25
)

// The Imaging Source cameras expose their video control interface with the
// vendor specific class instead of the video class.
const (
	VendorIDTheImagingSource uint16 = 0x199e
)

func IsTISCamera(vendorID, productID uint16) bool {
	return vendorID == VendorIDTheImagingSource && (productID == 0x8101 || productID == 0x8102)
}
