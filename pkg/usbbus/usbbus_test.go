package usbbus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	ptz "github.com/kevmo314/go-ptz"
	"github.com/kevmo314/go-ptz/pkg/simcam"
	"github.com/kevmo314/go-ptz/pkg/transfers"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func writeDevice(t *testing.T, root, name string, busnum, devnum int, cam *simcam.Camera) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	uevent := fmt.Sprintf("MAJOR=189\nMINOR=1\nDEVNAME=bus/usb/%03d/%03d\nDEVTYPE=usb_device\nDRIVER=usb\nPRODUCT=%x/%x/100\nTYPE=239/2/1\nBUSNUM=%03d\nDEVNUM=%03d\n",
		busnum, devnum, cam.VendorID, cam.ProductID, busnum, devnum)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "uevent"), []byte(uevent), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "descriptors"), cam.RawDescriptors(), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manufacturer"), []byte(cam.Manufacturer+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "product"), []byte(cam.Product+"\n"), 0o644))
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	cam := simcam.NewPTZCamera()
	writeDevice(t, root, "1-1.2", 1, 5, cam)

	keyboard := &simcam.Camera{VendorID: 0x04d9, ProductID: 0x1603}
	writeDevice(t, root, "1-3", 1, 2, keyboard)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "usb1"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "1-1.2:1.0"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "1-4"), 0o755))

	bus := New(root, t.TempDir(), testLogger())
	devices, err := bus.Scan()
	require.NoError(t, err)
	require.Len(t, devices, 2)

	dev := devices[0]
	assert.Equal(t, "1-1.2", dev.BusAddress)
	assert.Equal(t, uint16(0x046d), dev.VendorID)
	assert.Equal(t, uint16(0x0853), dev.ProductID)
	assert.Equal(t, 1, dev.BusNumber)
	assert.Equal(t, 5, dev.DeviceNumber)
	assert.Equal(t, "Simulated", dev.Manufacturer)
	assert.Equal(t, "PTZ Camera", dev.Product)
	assert.Empty(t, dev.Serial)
	assert.True(t, dev.IsPTZ())

	assert.Equal(t, "1-3", devices[1].BusAddress)
	assert.False(t, devices[1].IsPTZ())

	devs, err := ptz.New(bus, ptz.WithLogger(testLogger())).ListDevices()
	require.NoError(t, err)
	require.Len(t, devs, 1)
	assert.Equal(t, "1-1.2", devs[0].BusAddress)
}

func TestScan_MissingRoot(t *testing.T) {
	bus := New(filepath.Join(t.TempDir(), "missing"), "", testLogger())
	devices, err := bus.Scan()
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestParseUeventKeyValue(t *testing.T) {
	dev := &ptz.BusDevice{}
	require.NoError(t, parseUeventKeyValue("PRODUCT", "199e/8102/100", dev))
	assert.Equal(t, uint16(0x199e), dev.VendorID)
	assert.Equal(t, uint16(0x8102), dev.ProductID)

	assert.Error(t, parseUeventKeyValue("PRODUCT", "199e/8102", dev))
	assert.Error(t, parseUeventKeyValue("BUSNUM", "x", dev))
	assert.NoError(t, parseUeventKeyValue("DRIVER", "usb", dev))
}

func TestOpen_MissingNode(t *testing.T) {
	bus := New(t.TempDir(), t.TempDir(), testLogger())
	dev := ptz.BusDevice{DeviceDescriptor: ptz.DeviceDescriptor{BusNumber: 1, DeviceNumber: 7}}
	assert.Equal(t, filepath.Join(bus.DevRoot, "001", "007"), bus.NodePath(dev))

	_, err := bus.Open(dev)
	assert.ErrorIs(t, err, transfers.ErrNoDevice)
}

// fdHandle closes its descriptor the way a go-usb handle does.
type fdHandle struct {
	fd     int
	closes int
}

func (h *fdHandle) ControlTransfer(requestType, request uint8, value, index uint16, data []byte, timeout time.Duration) (int, error) {
	return 0, transfers.ErrStall
}
func (h *fdHandle) ClaimInterface(uint8) error     { return nil }
func (h *fdHandle) ReleaseInterface(uint8) error   { return nil }
func (h *fdHandle) DetachKernelDriver(uint8) error { return nil }
func (h *fdHandle) AttachKernelDriver(uint8) error { return nil }
func (h *fdHandle) Close() error {
	h.closes++
	return unix.Close(h.fd)
}

func busWithNode(t *testing.T) (*Bus, ptz.BusDevice) {
	t.Helper()
	bus := New(t.TempDir(), t.TempDir(), testLogger())
	dev := ptz.BusDevice{DeviceDescriptor: ptz.DeviceDescriptor{BusNumber: 1, DeviceNumber: 7}}
	require.NoError(t, os.MkdirAll(filepath.Dir(bus.NodePath(dev)), 0o755))
	require.NoError(t, os.WriteFile(bus.NodePath(dev), nil, 0o644))
	return bus, dev
}

func swapWrapFd(t *testing.T, fn func(fd int) (transfers.Handle, error)) {
	t.Helper()
	orig := wrapFd
	wrapFd = fn
	t.Cleanup(func() { wrapFd = orig })
}

func TestOpen_HandleOwnsDescriptor(t *testing.T) {
	bus, dev := busWithNode(t)
	var fh *fdHandle
	swapWrapFd(t, func(fd int) (transfers.Handle, error) {
		fh = &fdHandle{fd: fd}
		return fh, nil
	})

	h, err := bus.Open(dev)
	require.NoError(t, err)
	require.NoError(t, h.Close())
	assert.Equal(t, 1, fh.closes)

	_, err = unix.FcntlInt(uintptr(fh.fd), unix.F_GETFD, 0)
	assert.ErrorIs(t, err, unix.EBADF)
}

func TestOpen_WrapFailureClosesDescriptor(t *testing.T) {
	bus, dev := busWithNode(t)
	opened := -1
	swapWrapFd(t, func(fd int) (transfers.Handle, error) {
		opened = fd
		return nil, errors.New("not a usb device")
	})

	_, err := bus.Open(dev)
	assert.ErrorContains(t, err, "not a usb device")
	require.GreaterOrEqual(t, opened, 0)

	_, err = unix.FcntlInt(uintptr(opened), unix.F_GETFD, 0)
	assert.ErrorIs(t, err, unix.EBADF)
}

func TestDiff(t *testing.T) {
	a := ptz.BusDevice{DeviceDescriptor: ptz.DeviceDescriptor{BusAddress: "1-1", DeviceNumber: 3}}
	b := ptz.BusDevice{DeviceDescriptor: ptz.DeviceDescriptor{BusAddress: "1-2", DeviceNumber: 4}}
	replugged := a
	replugged.DeviceNumber = 9

	events := diff(map[string]ptz.BusDevice{"1-1": a}, map[string]ptz.BusDevice{"1-1": a, "1-2": b})
	assert.Equal(t, []Event{{Type: Added, Device: b}}, events)

	events = diff(map[string]ptz.BusDevice{"1-1": a, "1-2": b}, map[string]ptz.BusDevice{"1-2": b})
	assert.Equal(t, []Event{{Type: Removed, Device: a}}, events)

	events = diff(map[string]ptz.BusDevice{"1-1": a}, map[string]ptz.BusDevice{"1-1": replugged})
	assert.Equal(t, []Event{{Type: Removed, Device: a}, {Type: Added, Device: replugged}}, events)
}

func TestWatchBus_LogsFailure(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	bus := New(t.TempDir(), t.TempDir(), logrus.NewEntry(logger))

	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer watcher.Close()

	assert.True(t, bus.watchBus(watcher, bus.DevRoot))
	assert.Empty(t, hook.AllEntries())

	missing := filepath.Join(bus.DevRoot, "009")
	assert.False(t, bus.watchBus(watcher, missing))
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, missing, entry.Data["path"])
}

func TestWatch(t *testing.T) {
	sysfs, dev := t.TempDir(), t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dev, "001"), 0o755))
	bus := New(sysfs, dev, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := bus.Watch(ctx)
	require.NoError(t, err)

	writeDevice(t, sysfs, "1-1", 1, 4, simcam.NewPTZCamera())
	node := filepath.Join(dev, "001", "004")
	require.NoError(t, os.WriteFile(node, nil, 0o644))

	select {
	case e := <-events:
		assert.Equal(t, Added, e.Type)
		assert.Equal(t, "1-1", e.Device.BusAddress)
	case <-time.After(5 * time.Second):
		t.Fatal("no event for added device")
	}

	require.NoError(t, os.RemoveAll(filepath.Join(sysfs, "1-1")))
	require.NoError(t, os.Remove(node))

	select {
	case e := <-events:
		assert.Equal(t, Removed, e.Type)
		assert.Equal(t, "1-1", e.Device.BusAddress)
	case <-time.After(5 * time.Second):
		t.Fatal("no event for removed device")
	}

	cancel()
	for range events {
	}
}
