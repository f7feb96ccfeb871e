package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ptz "github.com/kevmo314/go-ptz"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(New(""))
	require.NoError(t, err)
	assert.Equal(t, ptz.DefaultConfig(), cfg.Engine)
	assert.Equal(t, "/sys/bus/usb/devices", cfg.SysfsRoot)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, logrus.InfoLevel, cfg.LogLevel)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ptz.yaml")
	require.NoError(t, os.WriteFile(path, []byte("absolute_move_timeout: 8s\ndetach_kernel_driver: true\nlisten: 127.0.0.1:9000\n"), 0o644))
	t.Setenv("PTZ_POLL_INTERVAL", "10ms")
	t.Setenv("PTZ_LOG_LEVEL", "debug")

	cfg, err := Load(New(path))
	require.NoError(t, err)
	assert.Equal(t, 8*time.Second, cfg.Engine.AbsoluteMoveTimeout)
	assert.Equal(t, 10*time.Millisecond, cfg.Engine.PollInterval)
	assert.True(t, cfg.Engine.DetachKernelDriver)
	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, logrus.DebugLevel, cfg.LogLevel)
}

func TestLoad_Invalid(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PTZ_POLL_INTERVAL", "-1s")
	_, err := Load(New(""))
	assert.ErrorContains(t, err, "poll_interval")

	t.Setenv("PTZ_POLL_INTERVAL", "")
	t.Setenv("PTZ_LOG_LEVEL", "loud")
	_, err = Load(New(""))
	assert.Error(t, err)
}
