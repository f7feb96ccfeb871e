package ptz

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kevmo314/go-ptz/pkg/descriptors"
	"github.com/kevmo314/go-ptz/pkg/requests"
	"github.com/kevmo314/go-ptz/pkg/transfers"
)

// CameraTerminal issues class-specific requests to the camera terminal of an
// open device. It does no locking; Session serializes access to it.
type CameraTerminal struct {
	handle           transfers.Handle
	ifnum            uint8
	CameraDescriptor *descriptors.CameraTerminalDescriptor
	log              *logrus.Entry
}

func (ct *CameraTerminal) setup(code requests.RequestCode, control descriptors.CameraTerminalControlDescriptor) requests.Setup {
	return requests.Setup{
		Request:   code,
		Selector:  uint8(control.Value()),
		EntityID:  ct.CameraDescriptor.TerminalID,
		Interface: ct.ifnum,
	}
}

// Get fills control with the answer to a GET request.
func (ct *CameraTerminal) Get(code requests.RequestCode, control descriptors.CameraTerminalControlDescriptor, timeout time.Duration) error {
	buf := make([]byte, control.MarshalSize())
	setup := ct.setup(code, control)
	ct.log.WithFields(logrus.Fields{
		"request":  code.String(),
		"selector": setup.Selector,
		"length":   len(buf),
	}).Debug("control transfer")
	if err := transfers.Control(ct.handle, setup, buf, timeout); err != nil {
		return err
	}
	return control.UnmarshalBinary(buf)
}

// Set sends control with SET_CUR.
func (ct *CameraTerminal) Set(control descriptors.CameraTerminalControlDescriptor, timeout time.Duration) error {
	buf, err := control.MarshalBinary()
	if err != nil {
		return err
	}
	setup := ct.setup(requests.RequestCodeSetCur, control)
	ct.log.WithFields(logrus.Fields{
		"request":  requests.RequestCodeSetCur.String(),
		"selector": setup.Selector,
		"length":   len(buf),
	}).Debug("control transfer")
	return transfers.Control(ct.handle, setup, buf, timeout)
}
