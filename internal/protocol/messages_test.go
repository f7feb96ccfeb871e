package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage(t *testing.T) {
	msg, err := NewMessage(TypeAbsoluteZoom, "7", AbsoluteZoomPayload{Handle: "h", Zoom: 40})
	require.NoError(t, err)

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"absoluteZoom","id":"7","payload":{"handle":"h","zoom":40}}`, string(data))

	var parsed Message
	require.NoError(t, json.Unmarshal(data, &parsed))
	var p AbsoluteZoomPayload
	require.NoError(t, parsed.ParsePayload(&p))
	assert.Equal(t, AbsoluteZoomPayload{Handle: "h", Zoom: 40}, p)
}

func TestNewMessage_NilPayload(t *testing.T) {
	msg, err := NewMessage(TypeRelease, "", nil)
	require.NoError(t, err)

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"release"}`, string(data))
}

func TestParsePayload_Absent(t *testing.T) {
	msg := &Message{Type: TypeGetCamera}
	req := GetCameraPayload{VendorID: 1}
	require.NoError(t, msg.ParsePayload(&req))
	assert.Equal(t, uint16(1), req.VendorID)

	msg.Payload = json.RawMessage(`{"vendorId":"x"}`)
	assert.Error(t, msg.ParsePayload(&req))
}

func TestPayloadFieldNames(t *testing.T) {
	data, err := json.Marshal(RelativePanTiltStatePayload{PanDirection: -1, CurrentTiltSpeed: 4})
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, name := range []string{
		"panDirection", "tiltDirection",
		"minPanSpeed", "minTiltSpeed", "maxPanSpeed", "maxTiltSpeed",
		"resolutionPanSpeed", "resolutionTiltSpeed",
		"defaultPanSpeed", "defaultTiltSpeed",
		"currentPanSpeed", "currentTiltSpeed",
	} {
		assert.Contains(t, fields, name)
	}
	assert.EqualValues(t, -1, fields["panDirection"])
	assert.EqualValues(t, 4, fields["currentTiltSpeed"])
}
