package requests

type RequestType uint8

const (
	RequestTypeVideoInterfaceSetRequest RequestType = 0b00100001
	RequestTypeVideoInterfaceGetRequest RequestType = 0b10100001
)

type RequestCode uint8

const (
	RequestCodeUndefined RequestCode = 0x00
	RequestCodeSetCur    RequestCode = 0x01
	RequestCodeGetCur    RequestCode = 0x81
	RequestCodeGetMin    RequestCode = 0x82
	RequestCodeGetMax    RequestCode = 0x83
	RequestCodeGetRes    RequestCode = 0x84
	RequestCodeGetLen    RequestCode = 0x85
	RequestCodeGetInfo   RequestCode = 0x86
	RequestCodeGetDef    RequestCode = 0x87
)

func (c RequestCode) String() string {
	switch c {
	case RequestCodeSetCur:
		return "SET_CUR"
	case RequestCodeGetCur:
		return "GET_CUR"
	case RequestCodeGetMin:
		return "GET_MIN"
	case RequestCodeGetMax:
		return "GET_MAX"
	case RequestCodeGetRes:
		return "GET_RES"
	case RequestCodeGetLen:
		return "GET_LEN"
	case RequestCodeGetInfo:
		return "GET_INFO"
	case RequestCodeGetDef:
		return "GET_DEF"
	}
	return "UNDEFINED"
}

// IsGet reports whether the request reads from the device.
func (c RequestCode) IsGet() bool {
	return c&0x80 != 0
}

// Type returns the bmRequestType used to address a video control interface
// entity with this request.
func (c RequestCode) Type() RequestType {
	if c.IsGet() {
		return RequestTypeVideoInterfaceGetRequest
	}
	return RequestTypeVideoInterfaceSetRequest
}

// Setup describes the addressing of a class-specific request to a unit or
// terminal of the video control interface, UVC spec 1.5, 4.2.1.
type Setup struct {
	Request   RequestCode
	Selector  uint8 // control selector, high byte of wValue
	EntityID  uint8 // unit or terminal id, high byte of wIndex
	Interface uint8 // video control interface number, low byte of wIndex
}

func (s Setup) RequestType() uint8 {
	return uint8(s.Request.Type())
}

func (s Setup) Value() uint16 {
	return uint16(s.Selector) << 8
}

func (s Setup) Index() uint16 {
	return uint16(s.EntityID)<<8 | uint16(s.Interface)
}

// ParseSetup is the inverse of Setup's accessors, used by device-side code.
func ParseSetup(request uint8, value, index uint16) Setup {
	return Setup{
		Request:   RequestCode(request),
		Selector:  uint8(value >> 8),
		EntityID:  uint8(index >> 8),
		Interface: uint8(index),
	}
}
