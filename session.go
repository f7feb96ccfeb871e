package ptz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kevmo314/go-ptz/pkg/transfers"
)

// Session owns one open device. At most one control transfer is in flight on
// it at any time.
type Session struct {
	id     uuid.UUID
	ctrl   *Controller
	device BusDevice
	handle transfers.Handle
	camera *CameraTerminal
	cfg    Config
	log    *logrus.Entry

	slot      chan struct{} // single-slot transfer queue
	done      chan struct{}
	closeOnce sync.Once
	closed    *atomic.Bool
	closeErr  error
	detached  bool

	// guarded by slot
	caps    *Capabilities
	capsErr error
}

// Open opens the first PTZ-capable device matching vendorID and productID.
// Zero matches any value. It fails with ErrDeviceNotFound if nothing matches
// and ErrDeviceBusy if that device is already held by a session.
func (c *Controller) Open(vendorID, productID uint16) (*Session, error) {
	devices, err := c.scan()
	if err != nil {
		return nil, &IOError{Op: "open", Err: err}
	}
	var dev *BusDevice
	for i := range devices {
		if devices[i].matches(vendorID, productID) {
			dev = &devices[i]
			break
		}
	}
	if dev == nil {
		return nil, fmt.Errorf("%w: %04x:%04x", ErrDeviceNotFound, vendorID, productID)
	}
	if err := c.reserve(dev.BusAddress); err != nil {
		if errors.Is(err, ErrDeviceBusy) {
			return nil, fmt.Errorf("%w: %s already open", ErrDeviceBusy, dev.DeviceDescriptor)
		}
		return nil, err
	}

	s, err := c.open(*dev)
	if err != nil {
		c.unregister(dev.BusAddress)
		return nil, err
	}
	if !c.register(s) {
		s.Close()
		return nil, errControllerClosed
	}
	s.log.Info("session opened")
	return s, nil
}

func (c *Controller) open(dev BusDevice) (*Session, error) {
	handle, err := c.bus.Open(dev)
	if err != nil {
		switch err = transfers.Classify(err); {
		case errors.Is(err, transfers.ErrBusy):
			return nil, fmt.Errorf("%w: %s: %w", ErrDeviceBusy, dev.DeviceDescriptor, err)
		case errors.Is(err, transfers.ErrNoDevice):
			return nil, fmt.Errorf("%w: %s: %w", ErrDeviceNotFound, dev.DeviceDescriptor, err)
		}
		return nil, &IOError{Op: "open", Err: err}
	}

	id := uuid.New()
	log := c.log.WithFields(logrus.Fields{
		"session": id.String(),
		"vendor":  fmt.Sprintf("%04x", dev.VendorID),
		"product": fmt.Sprintf("%04x", dev.ProductID),
		"bus":     dev.BusAddress,
	})
	s := &Session{
		id:     id,
		ctrl:   c,
		device: dev,
		handle: handle,
		camera: &CameraTerminal{
			handle:           handle,
			ifnum:            dev.ControlInterface,
			CameraDescriptor: dev.Terminal,
			log:              log,
		},
		cfg:    c.cfg,
		log:    log,
		slot:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		closed: &atomic.Bool{},
	}
	if err := s.claim(); err != nil {
		handle.Close()
		return nil, err
	}
	return s, nil
}

// claim claims the video control interface, detaching a bound kernel driver
// first if the config allows it.
func (s *Session) claim() error {
	ifnum := s.device.ControlInterface
	err := s.handle.ClaimInterface(ifnum)
	if err != nil && s.cfg.DetachKernelDriver {
		if derr := s.handle.DetachKernelDriver(ifnum); derr == nil {
			s.detached = true
			s.log.Debug("detached kernel driver")
			err = s.handle.ClaimInterface(ifnum)
		}
	}
	if err == nil {
		return nil
	}
	if s.detached {
		if aerr := s.handle.AttachKernelDriver(ifnum); aerr != nil {
			s.log.WithError(aerr).Warn("failed to reattach kernel driver")
		}
		s.detached = false
	}
	if err = transfers.Classify(err); errors.Is(err, transfers.ErrBusy) {
		return fmt.Errorf("%w: interface %d: %w", ErrDeviceBusy, ifnum, err)
	}
	return &IOError{Op: "claim interface", Err: err}
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) Device() DeviceDescriptor { return s.device.DeviceDescriptor }

// acquire takes the transfer slot. A session closed while waiting cancels the
// wait.
func (s *Session) acquire(ctx context.Context) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	select {
	case s.slot <- struct{}{}:
	case <-s.done:
		return fmt.Errorf("%w: session closed", ErrOperationCancelled)
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrOperationCancelled, ctx.Err())
	}
	select {
	case <-s.done:
		<-s.slot
		return fmt.Errorf("%w: session closed", ErrOperationCancelled)
	default:
		return nil
	}
}

func (s *Session) release() {
	<-s.slot
}

// Close cancels any operation waiting on the device, waits for the transfer in
// flight to finish and releases the device. Closing a closed session does
// nothing.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)
		// The slot is never released again: later callers see ErrSessionClosed.
		s.slot <- struct{}{}

		ifnum := s.device.ControlInterface
		var errs []error
		if err := s.handle.ReleaseInterface(ifnum); err != nil {
			errs = append(errs, fmt.Errorf("release interface: %w", err))
		}
		if s.detached {
			if err := s.handle.AttachKernelDriver(ifnum); err != nil {
				errs = append(errs, fmt.Errorf("attach kernel driver: %w", err))
			}
		}
		if err := s.handle.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close handle: %w", err))
		}
		s.ctrl.unregister(s.device.BusAddress)
		if len(errs) > 0 {
			s.closeErr = &IOError{Op: "close", Err: errors.Join(errs...)}
		}
		s.log.Info("session closed")
	})
	return s.closeErr
}

// Capabilities returns the controls the device supports, probing the device
// on the first call and returning the cached value afterwards.
func (s *Session) Capabilities(ctx context.Context) (Capabilities, error) {
	r, err := s.Dispatch(ctx, GetCapabilitiesRequest())
	if err != nil {
		return Capabilities{}, err
	}
	return *r.Capabilities, nil
}

func (s *Session) GetAbsoluteZoom(ctx context.Context) (Range, error) {
	r, err := s.Dispatch(ctx, GetAbsoluteZoomRequest())
	if err != nil {
		return Range{}, err
	}
	return *r.Zoom, nil
}

// AbsoluteZoom moves the lens to zoom, rounded to the device resolution, and
// returns once the device reports the new position.
func (s *Session) AbsoluteZoom(ctx context.Context, zoom int32) error {
	_, err := s.Dispatch(ctx, AbsoluteZoomRequest(zoom))
	return err
}

func (s *Session) GetRelativeZoom(ctx context.Context) (RelativeZoomState, error) {
	r, err := s.Dispatch(ctx, GetRelativeZoomRequest())
	if err != nil {
		return RelativeZoomState{}, err
	}
	return *r.RelativeZoom, nil
}

// RelativeZoom starts a continuous zoom, or stops it when direction is
// DirectionStop. The zoom continues until stopped.
func (s *Session) RelativeZoom(ctx context.Context, direction Direction, speed int32) error {
	_, err := s.Dispatch(ctx, RelativeZoomRequest(direction, speed))
	return err
}

func (s *Session) GetAbsolutePanTilt(ctx context.Context) (AbsolutePanTilt, error) {
	r, err := s.Dispatch(ctx, GetAbsolutePanTiltRequest())
	if err != nil {
		return AbsolutePanTilt{}, err
	}
	return *r.PanTilt, nil
}

// AbsolutePanTilt moves both axes and returns once the device reports the
// new position. Values are in arc seconds.
func (s *Session) AbsolutePanTilt(ctx context.Context, pan, tilt int32) error {
	_, err := s.Dispatch(ctx, AbsolutePanTiltRequest(pan, tilt))
	return err
}

func (s *Session) GetRelativePanTilt(ctx context.Context) (RelativePanTiltState, error) {
	r, err := s.Dispatch(ctx, GetRelativePanTiltRequest())
	if err != nil {
		return RelativePanTiltState{}, err
	}
	return *r.RelativePanTilt, nil
}

func (s *Session) RelativePanTilt(ctx context.Context, panDirection Direction, panSpeed int32, tiltDirection Direction, tiltSpeed int32) error {
	_, err := s.Dispatch(ctx, RelativePanTiltRequest(panDirection, panSpeed, tiltDirection, tiltSpeed))
	return err
}

func (s *Session) ZoomIn(ctx context.Context, speed int32) error {
	return s.RelativeZoom(ctx, DirectionPositive, speed)
}

func (s *Session) ZoomOut(ctx context.Context, speed int32) error {
	return s.RelativeZoom(ctx, DirectionNegative, speed)
}

func (s *Session) ZoomStop(ctx context.Context) error {
	return s.RelativeZoom(ctx, DirectionStop, 0)
}

func (s *Session) PanTiltStop(ctx context.Context) error {
	return s.RelativePanTilt(ctx, DirectionStop, 0, DirectionStop, 0)
}
