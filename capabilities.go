package ptz

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/kevmo314/go-ptz/pkg/descriptors"
	"github.com/kevmo314/go-ptz/pkg/requests"
	"github.com/kevmo314/go-ptz/pkg/transfers"
)

// Range is what the device reports for one value. Speeds are device-native
// integers with no physical unit.
type Range struct {
	Min        int32
	Max        int32
	Resolution int32
	Default    int32
	Current    int32
}

// Snap rounds v to the nearest step of Resolution counted from Min, staying
// within Max.
func (r Range) Snap(v int32) int32 {
	res := int64(r.Resolution)
	if res <= 1 {
		return v
	}
	steps := (int64(v) - int64(r.Min) + res/2) / res
	snapped := int64(r.Min) + steps*res
	if snapped > int64(r.Max) {
		snapped -= res
	}
	if snapped < int64(r.Min) {
		snapped = int64(r.Min)
	}
	return int32(snapped)
}

// Clamp limits v to [Min, Max].
func (r Range) Clamp(v int32) int32 {
	return max(r.Min, min(v, r.Max))
}

func (r Range) withCurrent(v int32) Range {
	r.Current = r.Clamp(v)
	return r
}

// Capabilities is the set of controls a device supports and their ranges.
// Ranges of unsupported controls are zero.
type Capabilities struct {
	AbsoluteZoom    bool
	RelativeZoom    bool
	AbsolutePanTilt bool
	RelativePanTilt bool
	AbsoluteRoll    bool
	RelativeRoll    bool

	Zoom      Range
	ZoomSpeed Range
	Pan       Range
	Tilt      Range
	PanSpeed  Range
	TiltSpeed Range
	Roll      Range
	RollSpeed Range
}

func (c *Capabilities) any() bool {
	return c.AbsoluteZoom || c.RelativeZoom || c.AbsolutePanTilt || c.RelativePanTilt || c.AbsoluteRoll || c.RelativeRoll
}

type queryEntry struct {
	selector descriptors.CameraTerminalControlSelector
	flag     func(*Capabilities) *bool
	ranges   func(*Capabilities) []*Range
}

var queryTable = []queryEntry{
	{
		selector: descriptors.CameraTerminalControlSelectorZoomAbsoluteControl,
		flag:     func(c *Capabilities) *bool { return &c.AbsoluteZoom },
		ranges:   func(c *Capabilities) []*Range { return []*Range{&c.Zoom} },
	},
	{
		selector: descriptors.CameraTerminalControlSelectorZoomRelativeControl,
		flag:     func(c *Capabilities) *bool { return &c.RelativeZoom },
		ranges:   func(c *Capabilities) []*Range { return []*Range{&c.ZoomSpeed} },
	},
	{
		selector: descriptors.CameraTerminalControlSelectorPanTiltAbsoluteControl,
		flag:     func(c *Capabilities) *bool { return &c.AbsolutePanTilt },
		ranges:   func(c *Capabilities) []*Range { return []*Range{&c.Pan, &c.Tilt} },
	},
	{
		selector: descriptors.CameraTerminalControlSelectorPanTiltRelativeControl,
		flag:     func(c *Capabilities) *bool { return &c.RelativePanTilt },
		ranges:   func(c *Capabilities) []*Range { return []*Range{&c.PanSpeed, &c.TiltSpeed} },
	},
	{
		selector: descriptors.CameraTerminalControlSelectorRollAbsoluteControl,
		flag:     func(c *Capabilities) *bool { return &c.AbsoluteRoll },
		ranges:   func(c *Capabilities) []*Range { return []*Range{&c.Roll} },
	},
	{
		selector: descriptors.CameraTerminalControlSelectorRollRelativeControl,
		flag:     func(c *Capabilities) *bool { return &c.RelativeRoll },
		ranges:   func(c *Capabilities) []*Range { return []*Range{&c.RollSpeed} },
	},
}

// controlValues extracts the ranged fields of a control in queryTable order.
func controlValues(control descriptors.CameraTerminalControlDescriptor) []int32 {
	switch c := control.(type) {
	case *descriptors.ZoomAbsoluteControl:
		return []int32{int32(c.ObjectiveFocalLength)}
	case *descriptors.ZoomRelativeControl:
		return []int32{int32(c.Speed)}
	case *descriptors.PanTiltAbsoluteControl:
		return []int32{c.Pan, c.Tilt}
	case *descriptors.PanTiltRelativeControl:
		return []int32{int32(c.PanSpeed), int32(c.TiltSpeed)}
	case *descriptors.RollAbsoluteControl:
		return []int32{int32(c.Roll)}
	case *descriptors.RollRelativeControl:
		return []int32{int32(c.Speed)}
	}
	return nil
}

var errMalformedRange = errors.New("malformed range")

// queryOrder reads GET_DEF first: a device that stalls it does not implement
// the control, whatever bmControls says.
var queryOrder = []requests.RequestCode{
	requests.RequestCodeGetDef,
	requests.RequestCodeGetMin,
	requests.RequestCodeGetMax,
	requests.RequestCodeGetRes,
	requests.RequestCodeGetCur,
}

// queryAll reads every control the terminal advertises. Must be called with
// the transfer slot held.
func (s *Session) queryAll() (*Capabilities, error) {
	caps := &Capabilities{}
	for _, p := range queryTable {
		control := descriptors.NewCameraTerminalControl(p.selector)
		if !s.camera.CameraDescriptor.IsControlSupported(control.FeatureBit()) {
			continue
		}
		ranges, err := s.queryControl(control)
		switch {
		case errors.Is(err, transfers.ErrStall):
			s.log.WithField("selector", uint8(p.selector)).Debug("advertised control stalled, treating as unsupported")
			continue
		case errors.Is(err, errMalformedRange):
			s.log.WithFields(logrus.Fields{
				"selector": uint8(p.selector),
				"ranges":   ranges,
			}).Warn("device reported a malformed range, treating control as unsupported")
			continue
		case err != nil:
			return nil, transferError("query capabilities", err)
		}
		*p.flag(caps) = true
		for i, r := range p.ranges(caps) {
			*r = ranges[i]
		}
	}
	if !caps.any() {
		return nil, ErrUnsupportedDevice
	}
	return caps, nil
}

func (s *Session) queryControl(control descriptors.CameraTerminalControlDescriptor) ([]Range, error) {
	values := make([][]int32, len(queryOrder))
	for i, code := range queryOrder {
		if err := s.camera.Get(code, control, s.cfg.TransferTimeout); err != nil {
			return nil, err
		}
		values[i] = controlValues(control)
	}
	ranges := make([]Range, len(values[0]))
	for i := range ranges {
		r := Range{Default: values[0][i], Min: values[1][i], Max: values[2][i], Resolution: values[3][i]}
		ranges[i] = r.withCurrent(values[4][i])
		if r.Min > r.Default || r.Default > r.Max {
			return ranges, errMalformedRange
		}
	}
	return ranges, nil
}

// capabilities returns the cached capabilities, probing on first use. Must be
// called with the transfer slot held.
func (s *Session) capabilities() (*Capabilities, error) {
	if s.caps != nil || s.capsErr != nil {
		return s.caps, s.capsErr
	}
	caps, err := s.queryAll()
	switch {
	case err == nil:
		s.caps = caps
	case errors.Is(err, ErrUnsupportedDevice):
		s.capsErr = err
	}
	return caps, err
}
