package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ptz "github.com/kevmo314/go-ptz"
	"github.com/kevmo314/go-ptz/internal/protocol"
	"github.com/kevmo314/go-ptz/pkg/simcam"
)

func run(t *testing.T, bus ptz.Bus, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PTZ_POLL_INTERVAL", "1ms")

	var stdout, stderr bytes.Buffer
	cmd := newRootCommand(&RootOptions{bus: bus})
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestList(t *testing.T) {
	bus := simcam.NewBus(simcam.NewPTZCamera())

	out, err := run(t, bus, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "046d:0853")
	assert.Contains(t, out, "SIM0001")

	out, err = run(t, bus, "list", "-o", "json")
	require.NoError(t, err)
	var payload protocol.DevicesPayload
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	require.Len(t, payload.Devices, 1)
	assert.Equal(t, "1-1", payload.Devices[0].BusAddress)

	out, err = run(t, simcam.NewBus(), "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No PTZ cameras found")

	_, err = run(t, bus, "list", "-o", "yaml")
	assert.Error(t, err)
}

func TestCaps(t *testing.T) {
	out, err := run(t, simcam.NewBus(simcam.NewPTZCamera()), "caps")
	require.NoError(t, err)
	assert.Regexp(t, `absolute zoom\s+yes\s+\[0\.\.100 step 1 default 0\]`, out)
	assert.Regexp(t, `relative pan-tilt\s+yes\s+\[1\.\.24 step 1 default 12\]\s+\[1\.\.20 step 1 default 10\]`, out)
	assert.Regexp(t, `absolute roll\s+no`, out)
}

func TestZoom(t *testing.T) {
	cam := simcam.NewPTZCamera()
	bus := simcam.NewBus(cam)

	_, err := run(t, bus, "zoom", "set", "40")
	require.NoError(t, err)
	assert.Equal(t, int32(40), cam.ZoomPosition())

	out, err := run(t, bus, "zoom", "get")
	require.NoError(t, err)
	assert.Contains(t, out, "zoom 40 (min 0 max 100 step 1 default 0)")

	_, err = run(t, bus, "zoom", "in")
	require.NoError(t, err)
	dir, speed := cam.RelativeZoom()
	assert.Equal(t, int8(1), dir)
	assert.Equal(t, uint8(3), speed)

	_, err = run(t, bus, "zoom", "out", "--speed", "6")
	require.NoError(t, err)
	dir, speed = cam.RelativeZoom()
	assert.Equal(t, int8(-1), dir)
	assert.Equal(t, uint8(6), speed)

	_, err = run(t, bus, "zoom", "stop")
	require.NoError(t, err)
	dir, _ = cam.RelativeZoom()
	assert.Equal(t, int8(0), dir)

	_, err = run(t, bus, "zoom", "set", "101")
	assert.ErrorIs(t, err, ptz.ErrOutOfRange)

	_, err = run(t, bus, "zoom", "set", "far")
	assert.Error(t, err)
}

func TestPanTilt(t *testing.T) {
	cam := simcam.NewPTZCamera()
	bus := simcam.NewBus(cam)

	_, err := run(t, bus, "pantilt", "set", "--", "-36000", "7200")
	require.NoError(t, err)
	pan, tilt := cam.PanTiltPosition()
	assert.Equal(t, int32(-36000), pan)
	assert.Equal(t, int32(7200), tilt)

	out, err := run(t, bus, "pantilt", "get")
	require.NoError(t, err)
	assert.Contains(t, out, "pan -36000")
	assert.Contains(t, out, "tilt 7200")

	_, err = run(t, bus, "pantilt", "move", "--", "-1", "5", "1", "3")
	require.NoError(t, err)
	panDir, panSpeed, tiltDir, tiltSpeed := cam.RelativePanTilt()
	assert.Equal(t, []any{int8(-1), uint8(5), int8(1), uint8(3)}, []any{panDir, panSpeed, tiltDir, tiltSpeed})

	_, err = run(t, bus, "pantilt", "stop")
	require.NoError(t, err)
	panDir, _, tiltDir, _ = cam.RelativePanTilt()
	assert.Equal(t, int8(0), panDir)
	assert.Equal(t, int8(0), tiltDir)

	_, err = run(t, bus, "pantilt", "move", "1", "99", "0", "0")
	assert.ErrorIs(t, err, ptz.ErrOutOfRange)
}

func TestDeviceSelection(t *testing.T) {
	bus := simcam.NewBus(simcam.NewPTZCamera())

	_, err := run(t, bus, "caps", "--vendor", "0x046d", "--product", "2131")
	require.NoError(t, err)

	_, err = run(t, bus, "caps", "--vendor", "0x9999")
	assert.ErrorIs(t, err, ptz.ErrDeviceNotFound)

	_, err = run(t, bus, "caps", "--vendor", "cam")
	assert.ErrorContains(t, err, "invalid --vendor")
}

func TestParseID(t *testing.T) {
	for in, want := range map[string]uint16{"0": 0, "0x046d": 0x046d, "1133": 1133} {
		got, err := parseID(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parseID("0x10000")
	assert.Error(t, err)
}

func TestWatch_NeedsUSBBus(t *testing.T) {
	_, err := run(t, simcam.NewBus(), "watch")
	assert.ErrorContains(t, err, "USB bus")
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := run(t, simcam.NewBus(), "list", "--log-level", "loud")
	assert.Error(t, err)
}
