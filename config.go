package ptz

import "time"

// Config tunes the timeouts and transfer behaviour of the sessions a
// Controller opens.
type Config struct {
	// TransferTimeout bounds every GET request.
	TransferTimeout time.Duration
	// AbsoluteMoveTimeout bounds an absolute move from SET_CUR until the
	// device reports the target position.
	AbsoluteMoveTimeout time.Duration
	// RelativeAckTimeout bounds the SET_CUR of a relative move.
	RelativeAckTimeout time.Duration
	// PollInterval is the delay between position reads while an absolute move
	// is in progress.
	PollInterval time.Duration
	// DetachKernelDriver allows Open to detach a kernel driver bound to the
	// video control interface. The driver is re-attached on Close.
	DetachKernelDriver bool
	// DigitalZoom is sent as bDigitalZoom with every relative zoom.
	DigitalZoom bool
}

func DefaultConfig() Config {
	return Config{
		TransferTimeout:     time.Second,
		AbsoluteMoveTimeout: 5 * time.Second,
		RelativeAckTimeout:  time.Second,
		PollInterval:        50 * time.Millisecond,
		DigitalZoom:         true,
	}
}

// withDefaults fills zero durations from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TransferTimeout <= 0 {
		c.TransferTimeout = d.TransferTimeout
	}
	if c.AbsoluteMoveTimeout <= 0 {
		c.AbsoluteMoveTimeout = d.AbsoluteMoveTimeout
	}
	if c.RelativeAckTimeout <= 0 {
		c.RelativeAckTimeout = d.RelativeAckTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	return c
}
