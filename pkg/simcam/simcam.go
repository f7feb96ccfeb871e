// Package simcam simulates a UVC PTZ camera at the control transfer level. It
// answers the camera terminal requests the ptz engine issues so the engine can
// be exercised without hardware.
package simcam

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kevmo314/go-ptz/pkg/descriptors"
	"github.com/kevmo314/go-ptz/pkg/requests"
	"github.com/kevmo314/go-ptz/pkg/transfers"
)

// Range is the GET_MIN/GET_MAX/GET_RES/GET_DEF answer for one value.
type Range struct {
	Min, Max, Res, Def int32
}

func (r Range) contains(v int32) bool {
	return v >= r.Min && v <= r.Max
}

// Camera is one simulated device. A nil range means the control is not
// implemented. Fields must be set before the camera is first opened.
type Camera struct {
	VendorID     uint16
	ProductID    uint16
	BusAddress   string
	Manufacturer string
	Product      string
	Serial       string

	InterfaceNumber uint8
	TerminalID      uint8

	Zoom      *Range
	ZoomSpeed *Range
	Pan       *Range
	Tilt      *Range
	PanSpeed  *Range
	TiltSpeed *Range
	Roll      *Range
	RollSpeed *Range

	// Advertised overrides the bmControls bits derived from the ranges.
	Advertised []int
	// Stall makes every request for these selectors stall, as a device does
	// when it advertises a control it does not implement.
	Stall map[descriptors.CameraTerminalControlSelector]bool

	// MoveDelay is how long an absolute move takes to reach its target.
	MoveDelay time.Duration
	// TransferLatency is added to every control transfer.
	TransferLatency time.Duration

	// Busy makes every claim fail as if another process held the interface.
	Busy bool
	// KernelDriverBound makes claims fail until the kernel driver is detached.
	KernelDriverBound bool
	// AttachErr is returned when a kernel driver is re-attached.
	AttachErr error

	once sync.Once
	mu   sync.Mutex

	zoom, pan, tilt, roll int32
	zoomFrom              int32
	panFrom, tiltFrom     int32
	movedAt               time.Time

	zoomDir, panDir, tiltDir, rollDir         int8
	zoomDigital                               bool
	zoomSpeed, panSpeed, tiltSpeed, rollSpeed uint8

	claimed  bool
	unplug   bool
	failNext error

	transfers   atomic.Int64
	sets        atomic.Int64
	inFlight    atomic.Int32
	overlapped  atomic.Bool
	attachCount atomic.Int32
}

// NewPTZCamera returns a camera with absolute and relative zoom and pan-tilt,
// shaped like a typical conference room PTZ camera.
func NewPTZCamera() *Camera {
	return &Camera{
		VendorID:     0x046d,
		ProductID:    0x0853,
		BusAddress:   "1-1",
		Manufacturer: "Simulated",
		Product:      "PTZ Camera",
		Serial:       "SIM0001",
		TerminalID:   1,
		Zoom:         &Range{Min: 0, Max: 100, Res: 1, Def: 0},
		ZoomSpeed:    &Range{Min: 1, Max: 7, Res: 1, Def: 3},
		Pan:          &Range{Min: -180 * 3600, Max: 180 * 3600, Res: 3600, Def: 0},
		Tilt:         &Range{Min: -90 * 3600, Max: 90 * 3600, Res: 3600, Def: 0},
		PanSpeed:     &Range{Min: 1, Max: 24, Res: 1, Def: 12},
		TiltSpeed:    &Range{Min: 1, Max: 20, Res: 1, Def: 10},
	}
}

func (c *Camera) init() {
	c.once.Do(func() {
		if c.Zoom != nil {
			c.zoom, c.zoomFrom = c.Zoom.Def, c.Zoom.Def
		}
		if c.Pan != nil {
			c.pan, c.panFrom = c.Pan.Def, c.Pan.Def
		}
		if c.Tilt != nil {
			c.tilt, c.tiltFrom = c.Tilt.Def, c.Tilt.Def
		}
		if c.Roll != nil {
			c.roll = c.Roll.Def
		}
		c.zoomDigital = true
	})
}

// Terminal returns the camera terminal descriptor the device reports.
func (c *Camera) Terminal() *descriptors.CameraTerminalDescriptor {
	ct := &descriptors.CameraTerminalDescriptor{
		InputTerminalDescriptor: descriptors.InputTerminalDescriptor{
			TerminalID:   c.TerminalID,
			TerminalType: descriptors.InputTerminalTypeCamera,
		},
		ControlsBitmask: make([]byte, 3),
	}
	bits := c.Advertised
	if bits == nil {
		if c.Zoom != nil {
			bits = append(bits, descriptors.CameraTerminalBitZoomAbsolute)
		}
		if c.ZoomSpeed != nil {
			bits = append(bits, descriptors.CameraTerminalBitZoomRelative)
		}
		if c.Pan != nil && c.Tilt != nil {
			bits = append(bits, descriptors.CameraTerminalBitPanTiltAbsolute)
		}
		if c.PanSpeed != nil && c.TiltSpeed != nil {
			bits = append(bits, descriptors.CameraTerminalBitPanTiltRelative)
		}
		if c.Roll != nil {
			bits = append(bits, descriptors.CameraTerminalBitRollAbsolute)
		}
		if c.RollSpeed != nil {
			bits = append(bits, descriptors.CameraTerminalBitRollRelative)
		}
	}
	for _, bit := range bits {
		ct.SetControlSupported(bit)
	}
	return ct
}

// RawDescriptors renders the device and first configuration descriptors in
// the layout of the sysfs descriptors attribute.
func (c *Camera) RawDescriptors() []byte {
	dev := make([]byte, 18)
	dev[0] = 18
	dev[1] = byte(descriptors.StandardDescriptorTypeDevice)
	binary.LittleEndian.PutUint16(dev[2:4], 0x0200)
	dev[4] = 0xEF
	binary.LittleEndian.PutUint16(dev[8:10], c.VendorID)
	binary.LittleEndian.PutUint16(dev[10:12], c.ProductID)
	dev[17] = 1

	class := descriptors.ClassCodeVideo
	if descriptors.IsTISCamera(c.VendorID, c.ProductID) {
		class = descriptors.ClassCodeVendorSpecific
	}
	terminal, _ := c.Terminal().MarshalBinary()
	header := []byte{13, byte(descriptors.ClassSpecificDescriptorTypeInterface), byte(descriptors.VideoControlInterfaceDescriptorSubtypeHeader),
		0x10, 0x01, 0, 0, 0x00, 0x6c, 0xdc, 0x02, 1, c.InterfaceNumber + 1}

	var body []byte
	body = append(body, 9, byte(descriptors.StandardDescriptorTypeInterface), c.InterfaceNumber, 0, 0, byte(class), byte(descriptors.SubclassCodeVideoControl), 0, 0)
	body = append(body, header...)
	body = append(body, terminal...)
	body = append(body, 9, byte(descriptors.StandardDescriptorTypeInterface), c.InterfaceNumber+1, 0, 0, byte(descriptors.ClassCodeVideo), byte(descriptors.SubclassCodeVideoStreaming), 0, 0)

	config := []byte{9, byte(descriptors.StandardDescriptorTypeConfiguration), 0, 0, 2, 1, 0, 0x80, 250}
	binary.LittleEndian.PutUint16(config[2:4], uint16(len(config)+len(body)))

	out := append(dev, config...)
	return append(out, body...)
}

// Transfers is the number of control transfers the camera has answered.
func (c *Camera) Transfers() int64 { return c.transfers.Load() }

// Sets is the number of SET_CUR requests the camera has accepted.
func (c *Camera) Sets() int64 { return c.sets.Load() }

// Overlapped reports whether two control transfers were ever in flight at once.
func (c *Camera) Overlapped() bool { return c.overlapped.Load() }

// FailNext makes the next control transfer fail with err.
func (c *Camera) FailNext(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext = err
}

// Unplug makes the camera disappear from the bus. Transfers on open handles
// fail with transfers.ErrNoDevice.
func (c *Camera) Unplug() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unplug = true
}

// ZoomPosition returns the position the lens is at now.
func (c *Camera) ZoomPosition() int32 {
	c.init()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position(c.zoomFrom, c.zoom)
}

// PanTiltPosition returns the pan and tilt the head is at now.
func (c *Camera) PanTiltPosition() (int32, int32) {
	c.init()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position(c.panFrom, c.pan), c.position(c.tiltFrom, c.tilt)
}

// RelativeZoom returns the continuous zoom state last set.
func (c *Camera) RelativeZoom() (dir int8, speed uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zoomDir, c.zoomSpeed
}

// RelativePanTilt returns the continuous pan and tilt state last set.
func (c *Camera) RelativePanTilt() (panDir int8, panSpeed uint8, tiltDir int8, tiltSpeed uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.panDir, c.panSpeed, c.tiltDir, c.tiltSpeed
}

// position must be called with mu held.
func (c *Camera) position(from, target int32) int32 {
	if time.Since(c.movedAt) < c.MoveDelay {
		return from
	}
	return target
}

func (c *Camera) controlTransfer(request uint8, value, index uint16, data []byte) (int, error) {
	c.init()
	if c.inFlight.Add(1) > 1 {
		c.overlapped.Store(true)
	}
	defer c.inFlight.Add(-1)
	c.transfers.Add(1)
	if c.TransferLatency > 0 {
		time.Sleep(c.TransferLatency)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unplug {
		return 0, transfers.ErrNoDevice
	}
	if err := c.failNext; err != nil {
		c.failNext = nil
		return 0, err
	}

	setup := requests.ParseSetup(request, value, index)
	selector := descriptors.CameraTerminalControlSelector(setup.Selector)
	if setup.EntityID != c.TerminalID || setup.Interface != c.InterfaceNumber || c.Stall[selector] {
		return 0, transfers.ErrStall
	}
	control := descriptors.NewCameraTerminalControl(selector)
	if control == nil || !c.implements(selector) || len(data) != control.MarshalSize() {
		return 0, transfers.ErrStall
	}

	if setup.Request == requests.RequestCodeSetCur {
		if err := control.UnmarshalBinary(data); err != nil {
			return 0, transfers.ErrStall
		}
		if err := c.set(control); err != nil {
			return 0, err
		}
		c.sets.Add(1)
		return len(data), nil
	}

	if err := c.get(setup.Request, control); err != nil {
		return 0, err
	}
	buf, err := control.MarshalBinary()
	if err != nil {
		return 0, err
	}
	return copy(data, buf), nil
}

func (c *Camera) implements(selector descriptors.CameraTerminalControlSelector) bool {
	switch selector {
	case descriptors.CameraTerminalControlSelectorZoomAbsoluteControl:
		return c.Zoom != nil
	case descriptors.CameraTerminalControlSelectorZoomRelativeControl:
		return c.ZoomSpeed != nil
	case descriptors.CameraTerminalControlSelectorPanTiltAbsoluteControl:
		return c.Pan != nil && c.Tilt != nil
	case descriptors.CameraTerminalControlSelectorPanTiltRelativeControl:
		return c.PanSpeed != nil && c.TiltSpeed != nil
	case descriptors.CameraTerminalControlSelectorRollAbsoluteControl:
		return c.Roll != nil
	case descriptors.CameraTerminalControlSelectorRollRelativeControl:
		return c.RollSpeed != nil
	}
	return false
}

// pick selects the field of r answering request; cur is the live value.
func pick(request requests.RequestCode, r *Range, cur int32) (int32, error) {
	switch request {
	case requests.RequestCodeGetCur:
		return cur, nil
	case requests.RequestCodeGetMin:
		return r.Min, nil
	case requests.RequestCodeGetMax:
		return r.Max, nil
	case requests.RequestCodeGetRes:
		return r.Res, nil
	case requests.RequestCodeGetDef:
		return r.Def, nil
	}
	return 0, transfers.ErrStall
}

// direction answers the bDirection field of a relative control.
func direction(request requests.RequestCode, cur int8) int8 {
	switch request {
	case requests.RequestCodeGetCur:
		return cur
	case requests.RequestCodeGetMin:
		return -1
	case requests.RequestCodeGetMax, requests.RequestCodeGetRes:
		return 1
	}
	return 0
}

func (c *Camera) get(request requests.RequestCode, control descriptors.CameraTerminalControlDescriptor) error {
	var err error
	var v, w int32
	switch ctl := control.(type) {
	case *descriptors.ZoomAbsoluteControl:
		v, err = pick(request, c.Zoom, c.position(c.zoomFrom, c.zoom))
		ctl.ObjectiveFocalLength = uint16(v)
	case *descriptors.ZoomRelativeControl:
		v, err = pick(request, c.ZoomSpeed, int32(c.zoomSpeed))
		ctl.Zoom = direction(request, c.zoomDir)
		ctl.DigitalZoom = c.zoomDigital
		ctl.Speed = uint8(v)
	case *descriptors.PanTiltAbsoluteControl:
		if v, err = pick(request, c.Pan, c.position(c.panFrom, c.pan)); err == nil {
			w, err = pick(request, c.Tilt, c.position(c.tiltFrom, c.tilt))
		}
		ctl.Pan, ctl.Tilt = v, w
	case *descriptors.PanTiltRelativeControl:
		if v, err = pick(request, c.PanSpeed, int32(c.panSpeed)); err == nil {
			w, err = pick(request, c.TiltSpeed, int32(c.tiltSpeed))
		}
		ctl.PanRelative, ctl.PanSpeed = direction(request, c.panDir), uint8(v)
		ctl.TiltRelative, ctl.TiltSpeed = direction(request, c.tiltDir), uint8(w)
	case *descriptors.RollAbsoluteControl:
		v, err = pick(request, c.Roll, c.roll)
		ctl.Roll = int16(v)
	case *descriptors.RollRelativeControl:
		v, err = pick(request, c.RollSpeed, int32(c.rollSpeed))
		ctl.RollRelative, ctl.Speed = direction(request, c.rollDir), uint8(v)
	default:
		return transfers.ErrStall
	}
	return err
}

func validDirection(d int8) bool {
	return d >= -1 && d <= 1
}

// relativeSpeed validates the speed of a relative control. A stopped axis
// accepts any speed and records zero.
func relativeSpeed(dir int8, speed uint8, r *Range) (uint8, error) {
	if !validDirection(dir) {
		return 0, transfers.ErrStall
	}
	if dir == 0 {
		return 0, nil
	}
	if !r.contains(int32(speed)) {
		return 0, transfers.ErrStall
	}
	return speed, nil
}

func (c *Camera) set(control descriptors.CameraTerminalControlDescriptor) error {
	switch ctl := control.(type) {
	case *descriptors.ZoomAbsoluteControl:
		v := int32(ctl.ObjectiveFocalLength)
		if !c.Zoom.contains(v) {
			return transfers.ErrStall
		}
		now := c.position(c.zoomFrom, c.zoom)
		c.zoomFrom, c.zoom = now, v
		c.panFrom, c.tiltFrom = c.position(c.panFrom, c.pan), c.position(c.tiltFrom, c.tilt)
		c.movedAt = time.Now()
	case *descriptors.ZoomRelativeControl:
		speed, err := relativeSpeed(ctl.Zoom, ctl.Speed, c.ZoomSpeed)
		if err != nil {
			return err
		}
		c.zoomDir, c.zoomDigital, c.zoomSpeed = ctl.Zoom, ctl.DigitalZoom, speed
	case *descriptors.PanTiltAbsoluteControl:
		if !c.Pan.contains(ctl.Pan) || !c.Tilt.contains(ctl.Tilt) {
			return transfers.ErrStall
		}
		c.zoomFrom = c.position(c.zoomFrom, c.zoom)
		c.panFrom, c.tiltFrom = c.position(c.panFrom, c.pan), c.position(c.tiltFrom, c.tilt)
		c.pan, c.tilt = ctl.Pan, ctl.Tilt
		c.movedAt = time.Now()
	case *descriptors.PanTiltRelativeControl:
		panSpeed, err := relativeSpeed(ctl.PanRelative, ctl.PanSpeed, c.PanSpeed)
		if err != nil {
			return err
		}
		tiltSpeed, err := relativeSpeed(ctl.TiltRelative, ctl.TiltSpeed, c.TiltSpeed)
		if err != nil {
			return err
		}
		c.panDir, c.panSpeed = ctl.PanRelative, panSpeed
		c.tiltDir, c.tiltSpeed = ctl.TiltRelative, tiltSpeed
	case *descriptors.RollAbsoluteControl:
		if !c.Roll.contains(int32(ctl.Roll)) {
			return transfers.ErrStall
		}
		c.roll = int32(ctl.Roll)
	case *descriptors.RollRelativeControl:
		speed, err := relativeSpeed(ctl.RollRelative, ctl.Speed, c.RollSpeed)
		if err != nil {
			return err
		}
		c.rollDir, c.rollSpeed = ctl.RollRelative, speed
	default:
		return fmt.Errorf("simcam: unexpected control %T", control)
	}
	return nil
}
