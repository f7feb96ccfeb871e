package ptz

import (
	"fmt"

	"github.com/kevmo314/go-ptz/pkg/descriptors"
	"github.com/kevmo314/go-ptz/pkg/transfers"
)

// DeviceDescriptor identifies a physical camera on the bus. Vendor, product
// and bus address are the identity; the strings are informational and empty
// when the device does not report them.
type DeviceDescriptor struct {
	VendorID     uint16
	ProductID    uint16
	BusAddress   string
	Manufacturer string
	Product      string
	Serial       string
	BusNumber    int
	DeviceNumber int
}

func (d DeviceDescriptor) String() string {
	return fmt.Sprintf("%04x:%04x@%s", d.VendorID, d.ProductID, d.BusAddress)
}

// BusDevice is what a Bus reports for one attached device: its descriptor
// and the camera terminal of its video control interface, if any.
type BusDevice struct {
	DeviceDescriptor
	ControlInterface uint8
	Terminal         *descriptors.CameraTerminalDescriptor
}

// IsPTZ reports whether the device has a camera terminal advertising any pan,
// tilt, zoom or roll control.
func (d BusDevice) IsPTZ() bool {
	return d.Terminal != nil && d.Terminal.HasPTZ()
}

// Bus is a source of USB devices. Scan must not open any device.
type Bus interface {
	Scan() ([]BusDevice, error)
	Open(dev BusDevice) (transfers.Handle, error)
}

// ListDevices scans the bus and returns the PTZ-capable devices in scan
// order. The list is empty, not an error, when no such device is attached.
func (c *Controller) ListDevices() ([]DeviceDescriptor, error) {
	devices, err := c.scan()
	if err != nil {
		return nil, err
	}
	out := make([]DeviceDescriptor, 0, len(devices))
	for _, d := range devices {
		out = append(out, d.DeviceDescriptor)
	}
	return out, nil
}

func (c *Controller) scan() ([]BusDevice, error) {
	devices, err := c.bus.Scan()
	if err != nil {
		return nil, fmt.Errorf("scan bus: %w", err)
	}
	var ptzDevices []BusDevice
	for _, d := range devices {
		if d.IsPTZ() {
			ptzDevices = append(ptzDevices, d)
		}
	}
	return ptzDevices, nil
}

// matches reports whether d satisfies the vendor and product filter. Zero
// matches any value, independently for each field.
func (d DeviceDescriptor) matches(vendorID, productID uint16) bool {
	return (vendorID == 0 || d.VendorID == vendorID) && (productID == 0 || d.ProductID == productID)
}
