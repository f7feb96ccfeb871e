package usbbus

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	ptz "github.com/kevmo314/go-ptz"
)

type EventType int

const (
	Added EventType = iota
	Removed
)

func (t EventType) String() string {
	if t == Added {
		return "added"
	}
	return "removed"
}

type Event struct {
	Type   EventType
	Device ptz.BusDevice
}

// Watch reports PTZ-capable devices appearing and disappearing. usbfs nodes
// are watched and sysfs is rescanned whenever one is created or removed. The
// channel is closed when ctx is done.
func (b *Bus) Watch(ctx context.Context) (<-chan Event, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	if err := watcher.Add(b.DevRoot); err != nil {
		watcher.Close()
		return nil, errors.Wrapf(err, "failed to watch %s", b.DevRoot)
	}
	buses, err := os.ReadDir(b.DevRoot)
	if err != nil {
		b.log.WithError(err).Warn("failed to list bus directories")
	}
	for _, bus := range buses {
		if bus.IsDir() {
			b.watchBus(watcher, filepath.Join(b.DevRoot, bus.Name()))
		}
	}

	known, err := b.index()
	if err != nil {
		watcher.Close()
		return nil, err
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				b.log.WithError(err).Warn("watch error")
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
					continue
				}
				if event.Has(fsnotify.Create) && filepath.Dir(event.Name) == filepath.Clean(b.DevRoot) {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						b.watchBus(watcher, event.Name)
					}
				}
				current, err := b.index()
				if err != nil {
					b.log.WithError(err).Warn("rescan failed")
					continue
				}
				for _, e := range diff(known, current) {
					select {
					case events <- e:
					case <-ctx.Done():
						return
					}
				}
				known = current
			}
		}
	}()
	return events, nil
}

// watchBus adds a bus directory to watcher. A bus that cannot be watched
// reports no hotplug events, so the failure is logged.
func (b *Bus) watchBus(watcher *fsnotify.Watcher, path string) bool {
	if err := watcher.Add(path); err != nil {
		b.log.WithError(err).WithField("path", path).Warn("failed to watch bus directory")
		return false
	}
	return true
}

func (b *Bus) index() (map[string]ptz.BusDevice, error) {
	devices, err := b.Scan()
	if err != nil {
		return nil, err
	}
	m := make(map[string]ptz.BusDevice, len(devices))
	for _, d := range devices {
		if d.IsPTZ() {
			m[d.BusAddress] = d
		}
	}
	return m, nil
}

// diff lists removals before additions so a device re-enumerated at the same
// address is reported as removed then added.
func diff(old, current map[string]ptz.BusDevice) []Event {
	var events []Event
	for addr, d := range old {
		if c, ok := current[addr]; !ok || c.DeviceNumber != d.DeviceNumber {
			events = append(events, Event{Type: Removed, Device: d})
		}
	}
	for addr, d := range current {
		if o, ok := old[addr]; !ok || o.DeviceNumber != d.DeviceNumber {
			events = append(events, Event{Type: Added, Device: d})
		}
	}
	return events
}
