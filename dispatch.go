package ptz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kevmo314/go-ptz/pkg/descriptors"
	"github.com/kevmo314/go-ptz/pkg/requests"
	"github.com/kevmo314/go-ptz/pkg/transfers"
)

type handler func(s *Session, ctx context.Context, caps *Capabilities, req CommandRequest) (Result, error)

type route struct {
	supported func(*Capabilities) bool
	handle    handler
}

func always(*Capabilities) bool { return true }

var routes = [operationCount]route{
	OpGetCapabilities: {
		supported: always,
		handle:    (*Session).handleGetCapabilities,
	},
	OpGetAbsoluteZoom: {
		supported: func(c *Capabilities) bool { return c.AbsoluteZoom },
		handle:    (*Session).handleGetAbsoluteZoom,
	},
	OpAbsoluteZoom: {
		supported: func(c *Capabilities) bool { return c.AbsoluteZoom },
		handle:    (*Session).handleAbsoluteZoom,
	},
	OpGetRelativeZoom: {
		supported: func(c *Capabilities) bool { return c.RelativeZoom },
		handle:    (*Session).handleGetRelativeZoom,
	},
	OpRelativeZoom: {
		supported: func(c *Capabilities) bool { return c.RelativeZoom },
		handle:    (*Session).handleRelativeZoom,
	},
	OpGetAbsolutePanTilt: {
		supported: func(c *Capabilities) bool { return c.AbsolutePanTilt },
		handle:    (*Session).handleGetAbsolutePanTilt,
	},
	OpAbsolutePanTilt: {
		supported: func(c *Capabilities) bool { return c.AbsolutePanTilt },
		handle:    (*Session).handleAbsolutePanTilt,
	},
	OpGetRelativePanTilt: {
		supported: func(c *Capabilities) bool { return c.RelativePanTilt },
		handle:    (*Session).handleGetRelativePanTilt,
	},
	OpRelativePanTilt: {
		supported: func(c *Capabilities) bool { return c.RelativePanTilt },
		handle:    (*Session).handleRelativePanTilt,
	},
}

// Dispatch executes req on the session. It waits for any transfer in flight
// on the session to finish first. Requests are validated against the cached
// capabilities before anything is sent to the device.
func (s *Session) Dispatch(ctx context.Context, req CommandRequest) (Result, error) {
	if req.Op < 0 || req.Op >= operationCount {
		return Result{}, fmt.Errorf("ptz: unknown operation %d", int(req.Op))
	}
	if err := s.acquire(ctx); err != nil {
		return Result{}, err
	}
	defer s.release()

	caps, err := s.capabilities()
	if err != nil {
		return Result{}, err
	}
	r := routes[req.Op]
	if !r.supported(caps) {
		return Result{}, &UnsupportedOperationError{Op: req.Op}
	}
	s.log.WithField("op", req.Op.String()).Debug("dispatch")
	return r.handle(s, ctx, caps, req)
}

// transferError converts a transfer failure into the engine's error taxonomy.
func transferError(op string, err error) error {
	if errors.Is(err, transfers.ErrTimeout) {
		return fmt.Errorf("%w: %s: %w", ErrDeviceTimeout, op, err)
	}
	return &IOError{Op: op, Err: err}
}

func checkDirection(axis Axis, d Direction) error {
	if d < DirectionNegative {
		return &OutOfRangeError{Axis: axis, Bound: BoundMin, Value: int32(d), Limit: int32(DirectionNegative)}
	}
	if d > DirectionPositive {
		return &OutOfRangeError{Axis: axis, Bound: BoundMax, Value: int32(d), Limit: int32(DirectionPositive)}
	}
	return nil
}

// relativeSpeed validates one axis of a relative move. Stop is always valid
// and sends speed zero.
func relativeSpeed(dirAxis, speedAxis Axis, d Direction, speed int32, r Range) (uint8, error) {
	if err := checkDirection(dirAxis, d); err != nil {
		return 0, err
	}
	if d == DirectionStop {
		return 0, nil
	}
	if err := checkRange(speedAxis, speed, r); err != nil {
		return 0, err
	}
	if speed < 0 || speed > 0xFF {
		return 0, &OutOfRangeError{Axis: speedAxis, Bound: BoundMax, Value: speed, Limit: 0xFF}
	}
	return uint8(speed), nil
}

func (s *Session) get(op string, code requests.RequestCode, control descriptors.CameraTerminalControlDescriptor) error {
	if err := s.camera.Get(code, control, s.cfg.TransferTimeout); err != nil {
		return transferError(op, err)
	}
	return nil
}

// await polls until reached reports true. Closing the session or cancelling
// ctx ends the wait; the device position is then unknown.
func (s *Session) await(ctx context.Context, op string, deadline time.Time, reached func() (bool, error)) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return fmt.Errorf("%w: %s: session closed", ErrOperationCancelled, op)
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %w", ErrOperationCancelled, op, ctx.Err())
		default:
		}
		ok, err := reached()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: %s did not complete within %s", ErrDeviceTimeout, op, s.cfg.AbsoluteMoveTimeout)
		}
		select {
		case <-s.done:
			return fmt.Errorf("%w: %s: session closed", ErrOperationCancelled, op)
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %w", ErrOperationCancelled, op, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *Session) handleGetCapabilities(_ context.Context, caps *Capabilities, _ CommandRequest) (Result, error) {
	c := *caps
	return Result{Capabilities: &c}, nil
}

func (s *Session) handleGetAbsoluteZoom(_ context.Context, caps *Capabilities, req CommandRequest) (Result, error) {
	zac := &descriptors.ZoomAbsoluteControl{}
	if err := s.get(req.Op.String(), requests.RequestCodeGetCur, zac); err != nil {
		return Result{}, err
	}
	zoom := caps.Zoom.withCurrent(int32(zac.ObjectiveFocalLength))
	return Result{Zoom: &zoom}, nil
}

func (s *Session) handleAbsoluteZoom(ctx context.Context, caps *Capabilities, req CommandRequest) (Result, error) {
	if err := checkRange(AxisZoom, req.Zoom, caps.Zoom); err != nil {
		return Result{}, err
	}
	target := caps.Zoom.Snap(req.Zoom)
	op := req.Op.String()

	deadline := time.Now().Add(s.cfg.AbsoluteMoveTimeout)
	if err := s.camera.Set(&descriptors.ZoomAbsoluteControl{ObjectiveFocalLength: uint16(target)}, s.cfg.TransferTimeout); err != nil {
		return Result{}, transferError(op, err)
	}
	s.log.WithFields(logrus.Fields{"zoom": target}).Debug("absolute zoom sent")

	zac := &descriptors.ZoomAbsoluteControl{}
	err := s.await(ctx, op, deadline, func() (bool, error) {
		if err := s.get(op, requests.RequestCodeGetCur, zac); err != nil {
			return false, err
		}
		return int32(zac.ObjectiveFocalLength) == target, nil
	})
	return Result{}, err
}

func (s *Session) handleGetRelativeZoom(_ context.Context, caps *Capabilities, req CommandRequest) (Result, error) {
	zrc := &descriptors.ZoomRelativeControl{}
	if err := s.get(req.Op.String(), requests.RequestCodeGetCur, zrc); err != nil {
		return Result{}, err
	}
	return Result{RelativeZoom: &RelativeZoomState{
		Direction:   Direction(zrc.Zoom),
		DigitalZoom: zrc.DigitalZoom,
		Speed:       caps.ZoomSpeed.withCurrent(int32(zrc.Speed)),
	}}, nil
}

func (s *Session) handleRelativeZoom(_ context.Context, caps *Capabilities, req CommandRequest) (Result, error) {
	speed, err := relativeSpeed(AxisZoomDirection, AxisZoomSpeed, req.ZoomDirection, req.ZoomSpeed, caps.ZoomSpeed)
	if err != nil {
		return Result{}, err
	}
	zrc := &descriptors.ZoomRelativeControl{
		Zoom:        int8(req.ZoomDirection),
		DigitalZoom: s.cfg.DigitalZoom,
		Speed:       speed,
	}
	if err := s.camera.Set(zrc, s.cfg.RelativeAckTimeout); err != nil {
		return Result{}, transferError(req.Op.String(), err)
	}
	return Result{}, nil
}

func (s *Session) handleGetAbsolutePanTilt(_ context.Context, caps *Capabilities, req CommandRequest) (Result, error) {
	ptac := &descriptors.PanTiltAbsoluteControl{}
	if err := s.get(req.Op.String(), requests.RequestCodeGetCur, ptac); err != nil {
		return Result{}, err
	}
	return Result{PanTilt: &AbsolutePanTilt{
		Pan:  caps.Pan.withCurrent(ptac.Pan),
		Tilt: caps.Tilt.withCurrent(ptac.Tilt),
	}}, nil
}

func (s *Session) handleAbsolutePanTilt(ctx context.Context, caps *Capabilities, req CommandRequest) (Result, error) {
	if err := checkRange(AxisPan, req.Pan, caps.Pan); err != nil {
		return Result{}, err
	}
	if err := checkRange(AxisTilt, req.Tilt, caps.Tilt); err != nil {
		return Result{}, err
	}
	pan, tilt := caps.Pan.Snap(req.Pan), caps.Tilt.Snap(req.Tilt)
	op := req.Op.String()

	deadline := time.Now().Add(s.cfg.AbsoluteMoveTimeout)
	if err := s.camera.Set(&descriptors.PanTiltAbsoluteControl{Pan: pan, Tilt: tilt}, s.cfg.TransferTimeout); err != nil {
		return Result{}, transferError(op, err)
	}
	s.log.WithFields(logrus.Fields{"pan": pan, "tilt": tilt}).Debug("absolute pan-tilt sent")

	ptac := &descriptors.PanTiltAbsoluteControl{}
	err := s.await(ctx, op, deadline, func() (bool, error) {
		if err := s.get(op, requests.RequestCodeGetCur, ptac); err != nil {
			return false, err
		}
		return ptac.Pan == pan && ptac.Tilt == tilt, nil
	})
	return Result{}, err
}

func (s *Session) handleGetRelativePanTilt(_ context.Context, caps *Capabilities, req CommandRequest) (Result, error) {
	ptrc := &descriptors.PanTiltRelativeControl{}
	if err := s.get(req.Op.String(), requests.RequestCodeGetCur, ptrc); err != nil {
		return Result{}, err
	}
	return Result{RelativePanTilt: &RelativePanTiltState{
		PanDirection:  Direction(ptrc.PanRelative),
		TiltDirection: Direction(ptrc.TiltRelative),
		PanSpeed:      caps.PanSpeed.withCurrent(int32(ptrc.PanSpeed)),
		TiltSpeed:     caps.TiltSpeed.withCurrent(int32(ptrc.TiltSpeed)),
	}}, nil
}

func (s *Session) handleRelativePanTilt(_ context.Context, caps *Capabilities, req CommandRequest) (Result, error) {
	panSpeed, err := relativeSpeed(AxisPanDirection, AxisPanSpeed, req.PanDirection, req.PanSpeed, caps.PanSpeed)
	if err != nil {
		return Result{}, err
	}
	tiltSpeed, err := relativeSpeed(AxisTiltDirection, AxisTiltSpeed, req.TiltDirection, req.TiltSpeed, caps.TiltSpeed)
	if err != nil {
		return Result{}, err
	}
	ptrc := &descriptors.PanTiltRelativeControl{
		PanRelative:  int8(req.PanDirection),
		PanSpeed:     panSpeed,
		TiltRelative: int8(req.TiltDirection),
		TiltSpeed:    tiltSpeed,
	}
	if err := s.camera.Set(ptrc, s.cfg.RelativeAckTimeout); err != nil {
		return Result{}, transferError(req.Op.String(), err)
	}
	return Result{}, nil
}
