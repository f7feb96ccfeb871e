// Package ptz controls the pan, tilt and zoom of UVC cameras through the
// camera terminal of their video control interface.
//
// A Controller enumerates PTZ-capable devices on a Bus and opens Sessions on
// them. A Session owns the device handle, caches the control ranges the
// device reports and serializes every control transfer to the device.
package ptz

import (
	"sync"

	"github.com/sirupsen/logrus"
)

type Controller struct {
	bus Bus
	cfg Config
	log *logrus.Entry

	mu       sync.Mutex
	sessions map[string]*Session // by bus address, nil while opening
	closed   bool
}

type Option func(*Controller)

func WithConfig(cfg Config) Option {
	return func(c *Controller) {
		c.cfg = cfg.withDefaults()
	}
}

func WithLogger(log *logrus.Entry) Option {
	return func(c *Controller) {
		c.log = log
	}
}

func New(bus Bus, opts ...Option) *Controller {
	c := &Controller{
		bus:      bus,
		cfg:      DefaultConfig(),
		log:      logrus.NewEntry(logrus.StandardLogger()),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// reserve marks addr as held. It returns false if a session already holds it.
func (c *Controller) reserve(addr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errControllerClosed
	}
	if _, ok := c.sessions[addr]; ok {
		return ErrDeviceBusy
	}
	c.sessions[addr] = nil
	return nil
}

// register replaces the placeholder left by reserve. It reports false if the
// controller was closed while the session was opening.
func (c *Controller) register(s *Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		delete(c.sessions, s.device.BusAddress)
		return false
	}
	c.sessions[s.device.BusAddress] = s
	return true
}

func (c *Controller) unregister(addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, addr)
}

// Close closes every open session. Opens still in progress fail with
// ErrOperationCancelled and later opens are refused.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.closed = true
	open := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		if s != nil {
			open = append(open, s)
		}
	}
	c.mu.Unlock()

	var firstErr error
	for _, s := range open {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
