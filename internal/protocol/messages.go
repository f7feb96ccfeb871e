package protocol

import "encoding/json"

// Message types. Replies carry the type and id of the request they answer.
const (
	TypeListDevices        = "listDevices"
	TypeGetCamera          = "getCamera"
	TypeRelease            = "release"
	TypeGetCapabilities    = "getCapabilities"
	TypeGetAbsoluteZoom    = "getAbsoluteZoom"
	TypeAbsoluteZoom       = "absoluteZoom"
	TypeGetRelativeZoom    = "getRelativeZoom"
	TypeRelativeZoom       = "relativeZoom"
	TypeGetAbsolutePanTilt = "getAbsolutePanTilt"
	TypeAbsolutePanTilt    = "absolutePanTilt"
	TypeGetRelativePanTilt = "getRelativePanTilt"
	TypeRelativePanTilt    = "relativePanTilt"
	TypeError              = "error"
)

// Error codes
const (
	ErrDeviceNotFound       = "DEVICE_NOT_FOUND"
	ErrDeviceBusy           = "DEVICE_BUSY"
	ErrUnsupportedDevice    = "UNSUPPORTED_DEVICE"
	ErrUnsupportedOperation = "UNSUPPORTED_OPERATION"
	ErrOutOfRange           = "OUT_OF_RANGE"
	ErrDeviceTimeout        = "DEVICE_TIMEOUT"
	ErrOperationCancelled   = "OPERATION_CANCELLED"
	ErrIO                   = "IO_ERROR"
	ErrInvalidMessage       = "INVALID_MESSAGE"
)

// Message is the base envelope for all WebSocket messages
type Message struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Device struct {
	VendorID     uint16 `json:"vendorId"`
	ProductID    uint16 `json:"productId"`
	BusAddress   string `json:"busAddress"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Product      string `json:"product,omitempty"`
	SerialNumber string `json:"serialNumber,omitempty"`
}

type DevicesPayload struct {
	Devices []Device `json:"devices"`
}

// GetCameraPayload selects a device. Zero matches any vendor or product.
type GetCameraPayload struct {
	VendorID  uint16 `json:"vendorId"`
	ProductID uint16 `json:"productId"`
}

// HandlePayload names the session a request applies to.
type HandlePayload struct {
	Handle string `json:"handle"`
}

type CapabilitiesPayload struct {
	AbsoluteZoom    bool `json:"absoluteZoom"`
	RelativeZoom    bool `json:"relativeZoom"`
	AbsolutePanTilt bool `json:"absolutePanTilt"`
	RelativePanTilt bool `json:"relativePanTilt"`
	AbsoluteRoll    bool `json:"absoluteRoll"`
	RelativeRoll    bool `json:"relativeRoll"`
}

type AbsoluteZoomStatePayload struct {
	Min        int32 `json:"min"`
	Max        int32 `json:"max"`
	Resolution int32 `json:"resolution"`
	Current    int32 `json:"current"`
	Default    int32 `json:"default"`
}

type AbsoluteZoomPayload struct {
	Handle string `json:"handle"`
	Zoom   int32  `json:"zoom"`
}

type RelativeZoomStatePayload struct {
	Direction       int8  `json:"direction"`
	DigitalZoom     bool  `json:"digitalZoom"`
	MinSpeed        int32 `json:"minSpeed"`
	MaxSpeed        int32 `json:"maxSpeed"`
	ResolutionSpeed int32 `json:"resolutionSpeed"`
	CurrentSpeed    int32 `json:"currentSpeed"`
}

type RelativeZoomPayload struct {
	Handle    string `json:"handle"`
	Direction int8   `json:"direction"`
	Speed     int32  `json:"speed"`
}

type AbsolutePanTiltStatePayload struct {
	MinPan         int32 `json:"minPan"`
	MinTilt        int32 `json:"minTilt"`
	MaxPan         int32 `json:"maxPan"`
	MaxTilt        int32 `json:"maxTilt"`
	ResolutionPan  int32 `json:"resolutionPan"`
	ResolutionTilt int32 `json:"resolutionTilt"`
	CurrentPan     int32 `json:"currentPan"`
	CurrentTilt    int32 `json:"currentTilt"`
	DefaultPan     int32 `json:"defaultPan"`
	DefaultTilt    int32 `json:"defaultTilt"`
}

type AbsolutePanTiltPayload struct {
	Handle string `json:"handle"`
	Pan    int32  `json:"pan"`
	Tilt   int32  `json:"tilt"`
}

type RelativePanTiltStatePayload struct {
	PanDirection        int8  `json:"panDirection"`
	TiltDirection       int8  `json:"tiltDirection"`
	MinPanSpeed         int32 `json:"minPanSpeed"`
	MinTiltSpeed        int32 `json:"minTiltSpeed"`
	MaxPanSpeed         int32 `json:"maxPanSpeed"`
	MaxTiltSpeed        int32 `json:"maxTiltSpeed"`
	ResolutionPanSpeed  int32 `json:"resolutionPanSpeed"`
	ResolutionTiltSpeed int32 `json:"resolutionTiltSpeed"`
	DefaultPanSpeed     int32 `json:"defaultPanSpeed"`
	DefaultTiltSpeed    int32 `json:"defaultTiltSpeed"`
	CurrentPanSpeed     int32 `json:"currentPanSpeed"`
	CurrentTiltSpeed    int32 `json:"currentTiltSpeed"`
}

type RelativePanTiltPayload struct {
	Handle        string `json:"handle"`
	PanDirection  int8   `json:"panDirection"`
	PanSpeed      int32  `json:"panSpeed"`
	TiltDirection int8   `json:"tiltDirection"`
	TiltSpeed     int32  `json:"tiltSpeed"`
}

// ErrorPayload for error messages
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType, id string, payload any) (*Message, error) {
	msg := &Message{Type: msgType, ID: id}
	if payload == nil {
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	msg.Payload = data
	return msg, nil
}

// ParsePayload unmarshals the payload into the given struct. An absent
// payload leaves v at its zero value.
func (m *Message) ParsePayload(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
