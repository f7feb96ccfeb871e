package ptz_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ptz "github.com/kevmo314/go-ptz"
	"github.com/kevmo314/go-ptz/pkg/descriptors"
	"github.com/kevmo314/go-ptz/pkg/simcam"
	"github.com/kevmo314/go-ptz/pkg/transfers"
)

var allSelectors = []descriptors.CameraTerminalControlSelector{
	descriptors.CameraTerminalControlSelectorZoomAbsoluteControl,
	descriptors.CameraTerminalControlSelectorZoomRelativeControl,
	descriptors.CameraTerminalControlSelectorPanTiltAbsoluteControl,
	descriptors.CameraTerminalControlSelectorPanTiltRelativeControl,
	descriptors.CameraTerminalControlSelectorRollAbsoluteControl,
	descriptors.CameraTerminalControlSelectorRollRelativeControl,
}

func testConfig() ptz.Config {
	cfg := ptz.DefaultConfig()
	cfg.PollInterval = time.Millisecond
	cfg.AbsoluteMoveTimeout = 2 * time.Second
	return cfg
}

func newController(cfg ptz.Config, cameras ...*simcam.Camera) *ptz.Controller {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return ptz.New(simcam.NewBus(cameras...), ptz.WithConfig(cfg), ptz.WithLogger(logrus.NewEntry(log)))
}

func openCamera(t *testing.T, cam *simcam.Camera) *ptz.Session {
	t.Helper()
	s, err := newController(testConfig(), cam).Open(0, 0)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestListDevices(t *testing.T) {
	plain := &simcam.Camera{VendorID: 0x1234, ProductID: 0x0001, BusAddress: "1-2", TerminalID: 1}
	cam := simcam.NewPTZCamera()

	devices, err := newController(testConfig(), plain, cam).ListDevices()
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, uint16(0x046d), devices[0].VendorID)
	assert.Equal(t, uint16(0x0853), devices[0].ProductID)
	assert.Equal(t, "1-1", devices[0].BusAddress)
	assert.Equal(t, "SIM0001", devices[0].Serial)
	assert.Equal(t, int64(0), cam.Transfers())

	devices, err = newController(testConfig()).ListDevices()
	require.NoError(t, err)
	assert.NotNil(t, devices)
	assert.Empty(t, devices)
}

func TestOpen_Wildcard(t *testing.T) {
	cam := simcam.NewPTZCamera()
	other := simcam.NewPTZCamera()
	other.VendorID, other.ProductID, other.BusAddress = 0x2222, 0x0853, "1-3"
	ctrl := newController(testConfig(), cam, other)

	s, err := ctrl.Open(0, 0)
	require.NoError(t, err)
	assert.Equal(t, "1-1", s.Device().BusAddress)
	require.NoError(t, s.Close())

	s, err = ctrl.Open(0x2222, 0)
	require.NoError(t, err)
	assert.Equal(t, "1-3", s.Device().BusAddress)
	require.NoError(t, s.Close())

	s, err = ctrl.Open(0, 0x0853)
	require.NoError(t, err)
	assert.Equal(t, "1-1", s.Device().BusAddress)
	require.NoError(t, s.Close())
}

func TestOpen_NotFound(t *testing.T) {
	_, err := newController(testConfig()).Open(0, 0)
	assert.ErrorIs(t, err, ptz.ErrDeviceNotFound)

	_, err = newController(testConfig(), simcam.NewPTZCamera()).Open(0x9999, 0)
	assert.ErrorIs(t, err, ptz.ErrDeviceNotFound)
}

func TestOpen_Busy(t *testing.T) {
	ctrl := newController(testConfig(), simcam.NewPTZCamera())
	s, err := ctrl.Open(0, 0)
	require.NoError(t, err)

	_, err = ctrl.Open(0, 0)
	assert.ErrorIs(t, err, ptz.ErrDeviceBusy)

	require.NoError(t, s.Close())
	s, err = ctrl.Open(0, 0)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	held := simcam.NewPTZCamera()
	held.Busy = true
	_, err = newController(testConfig(), held).Open(0, 0)
	assert.ErrorIs(t, err, ptz.ErrDeviceBusy)
}

func TestOpen_DetachKernelDriver(t *testing.T) {
	cam := simcam.NewPTZCamera()
	cam.KernelDriverBound = true

	_, err := newController(testConfig(), cam).Open(0, 0)
	assert.ErrorIs(t, err, ptz.ErrDeviceBusy)

	cfg := testConfig()
	cfg.DetachKernelDriver = true
	s, err := newController(cfg, cam).Open(0, 0)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.Equal(t, int32(1), cam.KernelDriverAttaches())
}

func TestOpen_ReattachFailureLogged(t *testing.T) {
	cam := simcam.NewPTZCamera()
	cam.KernelDriverBound = true
	cam.Busy = true
	cam.AttachErr = errors.New("attach refused")

	logger, hook := logtest.NewNullLogger()
	cfg := testConfig()
	cfg.DetachKernelDriver = true
	ctrl := ptz.New(simcam.NewBus(cam), ptz.WithConfig(cfg), ptz.WithLogger(logrus.NewEntry(logger)))

	_, err := ctrl.Open(0, 0)
	assert.ErrorIs(t, err, ptz.ErrDeviceBusy)
	assert.Equal(t, int32(0), cam.KernelDriverAttaches())

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "failed to reattach kernel driver" {
			warned = true
			assert.EqualError(t, e.Data[logrus.ErrorKey].(error), "attach refused")
		}
	}
	assert.True(t, warned)
}

// gatedBus holds Open until proceed is closed.
type gatedBus struct {
	*simcam.Bus
	opening chan struct{}
	proceed chan struct{}
}

func (b *gatedBus) Open(dev ptz.BusDevice) (transfers.Handle, error) {
	close(b.opening)
	<-b.proceed
	return b.Bus.Open(dev)
}

func TestController_CloseDuringOpen(t *testing.T) {
	cam := simcam.NewPTZCamera()
	bus := &gatedBus{Bus: simcam.NewBus(cam), opening: make(chan struct{}), proceed: make(chan struct{})}
	log := logrus.New()
	log.SetOutput(io.Discard)
	ctrl := ptz.New(bus, ptz.WithConfig(testConfig()), ptz.WithLogger(logrus.NewEntry(log)))

	errc := make(chan error, 1)
	go func() {
		s, err := ctrl.Open(0, 0)
		if s != nil {
			s.Close()
		}
		errc <- err
	}()

	<-bus.opening
	require.NoError(t, ctrl.Close())
	close(bus.proceed)

	assert.ErrorIs(t, <-errc, ptz.ErrOperationCancelled)
	_, err := ctrl.Open(0, 0)
	assert.ErrorIs(t, err, ptz.ErrOperationCancelled)

	// The interface claimed by the abandoned open was released.
	s, err := newController(testConfig(), cam).Open(0, 0)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestCapabilities_Cached(t *testing.T) {
	cam := simcam.NewPTZCamera()
	s := openCamera(t, cam)
	ctx := context.Background()

	first, err := s.Capabilities(ctx)
	require.NoError(t, err)
	queried := cam.Transfers()
	assert.Positive(t, queried)

	second, err := s.Capabilities(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, queried, cam.Transfers())

	assert.True(t, first.AbsoluteZoom)
	assert.True(t, first.RelativeZoom)
	assert.True(t, first.AbsolutePanTilt)
	assert.True(t, first.RelativePanTilt)
	assert.False(t, first.AbsoluteRoll)
	assert.False(t, first.RelativeRoll)
	assert.Equal(t, ptz.Range{Min: 0, Max: 100, Resolution: 1, Default: 0, Current: 0}, first.Zoom)
	assert.Equal(t, int32(-180*3600), first.Pan.Min)
	assert.Equal(t, int32(90*3600), first.Tilt.Max)
	assert.Equal(t, int32(24), first.PanSpeed.Max)
	assert.Equal(t, int32(20), first.TiltSpeed.Max)
}

func TestCapabilities_UnsupportedDevice(t *testing.T) {
	cam := simcam.NewPTZCamera()
	cam.Stall = map[descriptors.CameraTerminalControlSelector]bool{}
	for _, sel := range allSelectors {
		cam.Stall[sel] = true
	}
	s := openCamera(t, cam)

	_, err := s.Capabilities(context.Background())
	assert.ErrorIs(t, err, ptz.ErrUnsupportedDevice)
	_, err = s.GetAbsoluteZoom(context.Background())
	assert.ErrorIs(t, err, ptz.ErrUnsupportedDevice)
}

func TestCapabilities_StalledControlIsUnsupported(t *testing.T) {
	cam := simcam.NewPTZCamera()
	cam.Stall = map[descriptors.CameraTerminalControlSelector]bool{allSelectors[1]: true}
	s := openCamera(t, cam)

	caps, err := s.Capabilities(context.Background())
	require.NoError(t, err)
	assert.True(t, caps.AbsoluteZoom)
	assert.False(t, caps.RelativeZoom)
}

func TestCapabilities_MalformedRange(t *testing.T) {
	cam := simcam.NewPTZCamera()
	cam.Zoom = &simcam.Range{Min: 0, Max: 100, Res: 1, Def: 200}
	s := openCamera(t, cam)

	caps, err := s.Capabilities(context.Background())
	require.NoError(t, err)
	assert.False(t, caps.AbsoluteZoom)
	assert.True(t, caps.AbsolutePanTilt)

	err = s.AbsoluteZoom(context.Background(), 10)
	assert.ErrorIs(t, err, ptz.ErrUnsupportedOperation)
}

func TestCapabilities_QueryFailureNotCached(t *testing.T) {
	cam := simcam.NewPTZCamera()
	s := openCamera(t, cam)
	cam.FailNext(errors.New("babble"))

	_, err := s.Capabilities(context.Background())
	assert.ErrorIs(t, err, ptz.ErrIO)

	caps, err := s.Capabilities(context.Background())
	require.NoError(t, err)
	assert.True(t, caps.AbsoluteZoom)
}

func TestAbsoluteZoom(t *testing.T) {
	cam := simcam.NewPTZCamera()
	cam.MoveDelay = 20 * time.Millisecond
	s := openCamera(t, cam)
	ctx := context.Background()

	require.NoError(t, s.AbsoluteZoom(ctx, 50))
	zoom, err := s.GetAbsoluteZoom(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(50), zoom.Current)
	assert.Equal(t, int32(50), cam.ZoomPosition())
}

func TestAbsoluteZoom_OutOfRange(t *testing.T) {
	cam := simcam.NewPTZCamera()
	s := openCamera(t, cam)
	ctx := context.Background()
	require.NoError(t, s.AbsoluteZoom(ctx, 20))
	sets := cam.Sets()

	err := s.AbsoluteZoom(ctx, 150)
	require.ErrorIs(t, err, ptz.ErrOutOfRange)
	var oor *ptz.OutOfRangeError
	require.ErrorAs(t, err, &oor)
	assert.Equal(t, ptz.AxisZoom, oor.Axis)
	assert.Equal(t, ptz.BoundMax, oor.Bound)
	assert.Equal(t, int32(150), oor.Value)
	assert.Equal(t, int32(100), oor.Limit)

	err = s.AbsoluteZoom(ctx, -1)
	require.ErrorAs(t, err, &oor)
	assert.Equal(t, ptz.BoundMin, oor.Bound)

	assert.Equal(t, sets, cam.Sets())
	zoom, err := s.GetAbsoluteZoom(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(20), zoom.Current)
}

func TestAbsoluteZoom_Resolution(t *testing.T) {
	cam := simcam.NewPTZCamera()
	cam.Zoom = &simcam.Range{Min: 0, Max: 100, Res: 10, Def: 0}
	s := openCamera(t, cam)
	ctx := context.Background()

	for zoom, want := range map[int32]int32{44: 40, 46: 50, 100: 100, 0: 0} {
		require.NoError(t, s.AbsoluteZoom(ctx, zoom))
		got, err := s.GetAbsoluteZoom(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got.Current, "zoom %d", zoom)
	}
}

func TestAbsoluteZoom_Timeout(t *testing.T) {
	cam := simcam.NewPTZCamera()
	cam.MoveDelay = time.Hour
	cfg := testConfig()
	cfg.AbsoluteMoveTimeout = 30 * time.Millisecond
	s, err := newController(cfg, cam).Open(0, 0)
	require.NoError(t, err)
	defer s.Close()

	err = s.AbsoluteZoom(context.Background(), 60)
	assert.ErrorIs(t, err, ptz.ErrDeviceTimeout)
}

func TestClose_CancelsAbsoluteMove(t *testing.T) {
	cam := simcam.NewPTZCamera()
	cam.MoveDelay = time.Hour
	s, err := newController(testConfig(), cam).Open(0, 0)
	require.NoError(t, err)
	_, err = s.Capabilities(context.Background())
	require.NoError(t, err)

	result := make(chan error, 1)
	go func() {
		result <- s.AbsolutePanTilt(context.Background(), 3600, 3600)
	}()
	require.Eventually(t, func() bool { return cam.Sets() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, s.Close())
	select {
	case err := <-result:
		assert.ErrorIs(t, err, ptz.ErrOperationCancelled)
	case <-time.After(time.Second):
		t.Fatal("absolute move not cancelled by Close")
	}
}

func TestContextCancelsAbsoluteMove(t *testing.T) {
	cam := simcam.NewPTZCamera()
	cam.MoveDelay = time.Hour
	s := openCamera(t, cam)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := s.AbsoluteZoom(ctx, 70)
	assert.ErrorIs(t, err, ptz.ErrOperationCancelled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClose_Idempotent(t *testing.T) {
	s, err := newController(testConfig(), simcam.NewPTZCamera()).Open(0, 0)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.GetAbsoluteZoom(context.Background())
	assert.ErrorIs(t, err, ptz.ErrSessionClosed)
}

func TestRelativeZoom_StopAlwaysValid(t *testing.T) {
	cam := simcam.NewPTZCamera()
	s := openCamera(t, cam)
	ctx := context.Background()

	require.NoError(t, s.ZoomIn(ctx, 5))
	dir, speed := cam.RelativeZoom()
	assert.Equal(t, int8(1), dir)
	assert.Equal(t, uint8(5), speed)

	require.NoError(t, s.RelativeZoom(ctx, ptz.DirectionStop, 999))
	dir, speed = cam.RelativeZoom()
	assert.Equal(t, int8(0), dir)
	assert.Equal(t, uint8(0), speed)

	require.NoError(t, s.ZoomStop(ctx))
	require.NoError(t, s.ZoomOut(ctx, 1))
	dir, _ = cam.RelativeZoom()
	assert.Equal(t, int8(-1), dir)
}

func TestRelativeZoom_Validation(t *testing.T) {
	cam := simcam.NewPTZCamera()
	s := openCamera(t, cam)
	ctx := context.Background()
	var oor *ptz.OutOfRangeError

	err := s.RelativeZoom(ctx, ptz.DirectionPositive, 8)
	require.ErrorAs(t, err, &oor)
	assert.Equal(t, ptz.AxisZoomSpeed, oor.Axis)
	assert.Equal(t, ptz.BoundMax, oor.Bound)

	err = s.RelativeZoom(ctx, ptz.DirectionNegative, 0)
	require.ErrorAs(t, err, &oor)
	assert.Equal(t, ptz.BoundMin, oor.Bound)

	err = s.RelativeZoom(ctx, 2, 3)
	require.ErrorAs(t, err, &oor)
	assert.Equal(t, ptz.AxisZoomDirection, oor.Axis)
	assert.Equal(t, int64(0), cam.Sets())
}

func TestGetRelativeZoom(t *testing.T) {
	cam := simcam.NewPTZCamera()
	s := openCamera(t, cam)
	ctx := context.Background()

	require.NoError(t, s.ZoomIn(ctx, 5))
	state, err := s.GetRelativeZoom(ctx)
	require.NoError(t, err)
	assert.Equal(t, ptz.DirectionPositive, state.Direction)
	assert.True(t, state.DigitalZoom)
	assert.Equal(t, ptz.Range{Min: 1, Max: 7, Resolution: 1, Default: 3, Current: 5}, state.Speed)

	require.NoError(t, s.ZoomStop(ctx))
	state, err = s.GetRelativeZoom(ctx)
	require.NoError(t, err)
	assert.Equal(t, ptz.DirectionStop, state.Direction)
	assert.Equal(t, int32(1), state.Speed.Current)
}

func TestAbsolutePanTilt(t *testing.T) {
	cam := simcam.NewPTZCamera()
	cam.MoveDelay = 10 * time.Millisecond
	s := openCamera(t, cam)
	ctx := context.Background()

	require.NoError(t, s.AbsolutePanTilt(ctx, 10*3600, -5*3600))
	pt, err := s.GetAbsolutePanTilt(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(10*3600), pt.Pan.Current)
	assert.Equal(t, int32(-5*3600), pt.Tilt.Current)
	assert.Equal(t, int32(3600), pt.Pan.Resolution)

	require.NoError(t, s.AbsolutePanTilt(ctx, 1000, 2000))
	pan, tilt := cam.PanTiltPosition()
	assert.Equal(t, int32(0), pan)
	assert.Equal(t, int32(3600), tilt)

	var oor *ptz.OutOfRangeError
	err = s.AbsolutePanTilt(ctx, 0, 91*3600)
	require.ErrorAs(t, err, &oor)
	assert.Equal(t, ptz.AxisTilt, oor.Axis)
	assert.Equal(t, ptz.BoundMax, oor.Bound)
}

func TestAbsolutePanTilt_Serialized(t *testing.T) {
	cam := simcam.NewPTZCamera()
	cam.MoveDelay = 20 * time.Millisecond
	cam.TransferLatency = time.Millisecond
	s := openCamera(t, cam)
	ctx := context.Background()

	targets := [][2]int32{{3600, 3600}, {-7200, -3600}}
	var wg sync.WaitGroup
	errs := make([]error, len(targets))
	for i, target := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.AbsolutePanTilt(ctx, target[0], target[1])
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.False(t, cam.Overlapped())
	assert.Equal(t, int64(2), cam.Sets())
	pan, tilt := cam.PanTiltPosition()
	assert.Contains(t, targets, [2]int32{pan, tilt})
}

func TestRelativePanTilt(t *testing.T) {
	cam := simcam.NewPTZCamera()
	s := openCamera(t, cam)
	ctx := context.Background()

	require.NoError(t, s.RelativePanTilt(ctx, ptz.DirectionPositive, 12, ptz.DirectionStop, 500))
	panDir, panSpeed, tiltDir, tiltSpeed := cam.RelativePanTilt()
	assert.Equal(t, int8(1), panDir)
	assert.Equal(t, uint8(12), panSpeed)
	assert.Equal(t, int8(0), tiltDir)
	assert.Equal(t, uint8(0), tiltSpeed)

	state, err := s.GetRelativePanTilt(ctx)
	require.NoError(t, err)
	assert.Equal(t, ptz.DirectionPositive, state.PanDirection)
	assert.Equal(t, ptz.DirectionStop, state.TiltDirection)
	assert.Equal(t, int32(12), state.PanSpeed.Current)
	assert.Equal(t, int32(20), state.TiltSpeed.Max)

	var oor *ptz.OutOfRangeError
	err = s.RelativePanTilt(ctx, ptz.DirectionStop, 0, ptz.DirectionNegative, 21)
	require.ErrorAs(t, err, &oor)
	assert.Equal(t, ptz.AxisTiltSpeed, oor.Axis)

	err = s.RelativePanTilt(ctx, -2, 1, ptz.DirectionStop, 0)
	require.ErrorAs(t, err, &oor)
	assert.Equal(t, ptz.AxisPanDirection, oor.Axis)
	assert.Equal(t, ptz.BoundMin, oor.Bound)

	require.NoError(t, s.PanTiltStop(ctx))
	panDir, _, tiltDir, _ = cam.RelativePanTilt()
	assert.Equal(t, int8(0), panDir)
	assert.Equal(t, int8(0), tiltDir)
}

func TestUnsupportedOperation(t *testing.T) {
	cam := simcam.NewPTZCamera()
	cam.PanSpeed, cam.TiltSpeed = nil, nil
	s := openCamera(t, cam)

	err := s.PanTiltStop(context.Background())
	require.ErrorIs(t, err, ptz.ErrUnsupportedOperation)
	var unsupported *ptz.UnsupportedOperationError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, ptz.OpRelativePanTilt, unsupported.Op)

	_, err = s.GetRelativePanTilt(context.Background())
	assert.ErrorIs(t, err, ptz.ErrUnsupportedOperation)
}

func TestTransferErrors(t *testing.T) {
	cam := simcam.NewPTZCamera()
	s := openCamera(t, cam)
	ctx := context.Background()
	_, err := s.Capabilities(ctx)
	require.NoError(t, err)

	cam.FailNext(errors.New("babble"))
	_, err = s.GetAbsoluteZoom(ctx)
	require.ErrorIs(t, err, ptz.ErrIO)
	var ioErr *ptz.IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "getAbsoluteZoom", ioErr.Op)

	cam.FailNext(transfers.ErrTimeout)
	err = s.ZoomIn(ctx, 2)
	assert.ErrorIs(t, err, ptz.ErrDeviceTimeout)

	cam.Unplug()
	err = s.AbsoluteZoom(ctx, 10)
	assert.ErrorIs(t, err, ptz.ErrIO)
	assert.ErrorIs(t, err, transfers.ErrNoDevice)
}
