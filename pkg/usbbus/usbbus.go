// Package usbbus enumerates USB video devices from sysfs and opens them
// through usbfs.
package usbbus

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	usb "github.com/kevmo314/go-usb"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	ptz "github.com/kevmo314/go-ptz"
	"github.com/kevmo314/go-ptz/pkg/descriptors"
	"github.com/kevmo314/go-ptz/pkg/transfers"
)

const (
	DefaultSysfsRoot = "/sys/bus/usb/devices"
	DefaultDevRoot   = "/dev/bus/usb"
)

// Bus reads device information from sysfs without opening any device node.
type Bus struct {
	SysfsRoot string
	DevRoot   string
	log       *logrus.Entry
}

func New(sysfsRoot, devRoot string, log *logrus.Entry) *Bus {
	if sysfsRoot == "" {
		sysfsRoot = DefaultSysfsRoot
	}
	if devRoot == "" {
		devRoot = DefaultDevRoot
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Bus{SysfsRoot: sysfsRoot, DevRoot: devRoot, log: log}
}

// Scan returns every device with a camera terminal, sorted by bus address. A
// missing sysfs root yields no devices.
func (b *Bus) Scan() ([]ptz.BusDevice, error) {
	entries, err := os.ReadDir(b.SysfsRoot)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", b.SysfsRoot)
	}

	var devices []ptz.BusDevice
	for _, entry := range entries {
		name := entry.Name()
		// Interfaces are named bus-port:config.iface and root hubs usbN.
		if strings.Contains(name, ":") || strings.HasPrefix(name, "usb") {
			continue
		}
		dev, err := b.readDevice(name)
		if err != nil {
			b.log.WithError(err).WithField("bus", name).Debug("skipping device")
			continue
		}
		if dev.Terminal == nil {
			continue
		}
		devices = append(devices, *dev)
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].BusAddress < devices[j].BusAddress
	})
	return devices, nil
}

func (b *Bus) readDevice(name string) (*ptz.BusDevice, error) {
	path := filepath.Join(b.SysfsRoot, name)
	dev := &ptz.BusDevice{}
	dev.BusAddress = name
	if err := parseUevent(filepath.Join(path, "uevent"), dev); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(filepath.Join(path, "descriptors"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read descriptors")
	}
	vc, err := descriptors.ParseVideoControl(raw)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse descriptors")
	}
	dev.ControlInterface = vc.InterfaceNumber
	dev.Terminal = vc.Terminal
	if dev.VendorID == 0 && dev.ProductID == 0 {
		dev.VendorID, dev.ProductID = vc.Device.VendorID, vc.Device.ProductID
	}

	dev.Manufacturer = readAttribute(path, "manufacturer")
	dev.Product = readAttribute(path, "product")
	dev.Serial = readAttribute(path, "serial")
	return dev, nil
}

func readAttribute(path, name string) string {
	b, err := os.ReadFile(filepath.Join(path, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func parseUevent(path string, dev *ptz.BusDevice) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "failed to open uevent")
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		if err := parseUeventKeyValue(key, value, dev); err != nil {
			return err
		}
	}
	return errors.Wrap(scanner.Err(), "failed to read uevent")
}

func parseUeventKeyValue(key, value string, dev *ptz.BusDevice) error {
	switch key {
	case "BUSNUM":
		val, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return errors.Wrapf(err, "unable to parse BUSNUM %s", value)
		}
		dev.BusNumber = int(val)
	case "DEVNUM":
		val, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return errors.Wrapf(err, "unable to parse DEVNUM %s", value)
		}
		dev.DeviceNumber = int(val)
	case "PRODUCT":
		ids := strings.Split(value, "/")
		if len(ids) != 3 {
			return errors.Errorf("PRODUCT value %s is not in the format of xx/xx/xx", value)
		}
		vendor, err := strconv.ParseUint(ids[0], 16, 16)
		if err != nil {
			return errors.Wrapf(err, "unable to parse PRODUCT vendor %s", value)
		}
		product, err := strconv.ParseUint(ids[1], 16, 16)
		if err != nil {
			return errors.Wrapf(err, "unable to parse PRODUCT product %s", value)
		}
		dev.VendorID, dev.ProductID = uint16(vendor), uint16(product)
	}
	return nil
}

// NodePath is the usbfs node of dev.
func (b *Bus) NodePath(dev ptz.BusDevice) string {
	return filepath.Join(b.DevRoot, fmt.Sprintf("%03d", dev.BusNumber), fmt.Sprintf("%03d", dev.DeviceNumber))
}

// wrapFd turns an open usbfs descriptor into a handle. The handle owns fd
// and closes it on Close.
var wrapFd = func(fd int) (transfers.Handle, error) {
	h, err := usb.WrapSysDevice(fd)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Open opens the usbfs node of dev and wraps it in a go-usb handle.
func (b *Bus) Open(dev ptz.BusDevice) (transfers.Handle, error) {
	path := b.NodePath(dev)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errors.Wrap(transfers.ErrNoDevice, path)
		}
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	h, err := wrapFd(fd)
	if err != nil {
		if cerr := unix.Close(fd); cerr != nil {
			b.log.WithError(cerr).WithField("path", path).Warn("failed to close usbfs node")
		}
		return nil, errors.Wrapf(err, "failed to wrap %s", path)
	}
	return h, nil
}
