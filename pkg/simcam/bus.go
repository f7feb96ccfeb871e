package simcam

import (
	"sync"
	"time"

	ptz "github.com/kevmo314/go-ptz"
	"github.com/kevmo314/go-ptz/pkg/transfers"
)

// Bus is a simulated USB bus holding a fixed set of cameras.
type Bus struct {
	mu      sync.Mutex
	cameras []*Camera
}

func NewBus(cameras ...*Camera) *Bus {
	return &Bus{cameras: cameras}
}

// Plug adds a camera to the bus.
func (b *Bus) Plug(c *Camera) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cameras = append(b.cameras, c)
}

func (b *Bus) Scan() ([]ptz.BusDevice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var devices []ptz.BusDevice
	for i, c := range b.cameras {
		c.mu.Lock()
		gone := c.unplug
		c.mu.Unlock()
		if gone {
			continue
		}
		devices = append(devices, ptz.BusDevice{
			DeviceDescriptor: ptz.DeviceDescriptor{
				VendorID:     c.VendorID,
				ProductID:    c.ProductID,
				BusAddress:   c.BusAddress,
				Manufacturer: c.Manufacturer,
				Product:      c.Product,
				Serial:       c.Serial,
				BusNumber:    1,
				DeviceNumber: i + 2,
			},
			ControlInterface: c.InterfaceNumber,
			Terminal:         c.Terminal(),
		})
	}
	return devices, nil
}

func (b *Bus) Open(dev ptz.BusDevice) (transfers.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.cameras {
		if c.BusAddress == dev.BusAddress {
			return &handle{camera: c}, nil
		}
	}
	return nil, transfers.ErrNoDevice
}

// handle is one open file on a simulated camera.
type handle struct {
	camera  *Camera
	mu      sync.Mutex
	claimed map[uint8]bool
	closed  bool
}

func (h *handle) ControlTransfer(requestType, request uint8, value, index uint16, data []byte, timeout time.Duration) (int, error) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return 0, transfers.ErrNoDevice
	}
	return h.camera.controlTransfer(request, value, index, data)
}

func (h *handle) ClaimInterface(iface uint8) error {
	c := h.camera
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Busy || c.KernelDriverBound || c.claimed {
		return transfers.ErrBusy
	}
	c.claimed = true
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.claimed == nil {
		h.claimed = make(map[uint8]bool)
	}
	h.claimed[iface] = true
	return nil
}

func (h *handle) ReleaseInterface(iface uint8) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.claimed[iface] {
		return transfers.ErrNoDevice
	}
	delete(h.claimed, iface)
	c := h.camera
	c.mu.Lock()
	c.claimed = false
	c.mu.Unlock()
	return nil
}

func (h *handle) DetachKernelDriver(iface uint8) error {
	c := h.camera
	c.mu.Lock()
	defer c.mu.Unlock()
	c.KernelDriverBound = false
	return nil
}

func (h *handle) AttachKernelDriver(iface uint8) error {
	c := h.camera
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.AttachErr != nil {
		return c.AttachErr
	}
	c.KernelDriverBound = true
	c.attachCount.Add(1)
	return nil
}

func (h *handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// KernelDriverAttaches counts how often a kernel driver was re-attached.
func (c *Camera) KernelDriverAttaches() int32 { return c.attachCount.Load() }
