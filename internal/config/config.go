// Package config loads ptzctl settings from defaults, PTZ_* environment
// variables and an optional config.yaml.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	ptz "github.com/kevmo314/go-ptz"
	"github.com/kevmo314/go-ptz/pkg/usbbus"
)

type Config struct {
	Engine    ptz.Config
	SysfsRoot string
	DevRoot   string
	Listen    string
	LogLevel  logrus.Level
}

// New returns a viper instance with defaults, environment bindings and the
// config file search path set up. configFile overrides the search path.
func New(configFile string) *viper.Viper {
	v := viper.New()

	d := ptz.DefaultConfig()
	v.SetDefault("transfer_timeout", d.TransferTimeout)
	v.SetDefault("absolute_move_timeout", d.AbsoluteMoveTimeout)
	v.SetDefault("relative_ack_timeout", d.RelativeAckTimeout)
	v.SetDefault("poll_interval", d.PollInterval)
	v.SetDefault("detach_kernel_driver", d.DetachKernelDriver)
	v.SetDefault("digital_zoom", d.DigitalZoom)
	v.SetDefault("sysfs_root", usbbus.DefaultSysfsRoot)
	v.SetDefault("dev_root", usbbus.DefaultDevRoot)
	v.SetDefault("listen", ":8080")
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("PTZ")
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		return v
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, path := range []string{".", "$HOME/.ptz", "/etc/ptz"} {
		v.AddConfigPath(os.ExpandEnv(path))
	}
	return v
}

// Load reads the config file, if any, and decodes the settings.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	level, err := logrus.ParseLevel(v.GetString("log_level"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid log_level")
	}

	cfg := &Config{
		Engine: ptz.Config{
			TransferTimeout:     v.GetDuration("transfer_timeout"),
			AbsoluteMoveTimeout: v.GetDuration("absolute_move_timeout"),
			RelativeAckTimeout:  v.GetDuration("relative_ack_timeout"),
			PollInterval:        v.GetDuration("poll_interval"),
			DetachKernelDriver:  v.GetBool("detach_kernel_driver"),
			DigitalZoom:         v.GetBool("digital_zoom"),
		},
		SysfsRoot: v.GetString("sysfs_root"),
		DevRoot:   v.GetString("dev_root"),
		Listen:    v.GetString("listen"),
		LogLevel:  level,
	}
	for name, d := range map[string]time.Duration{
		"transfer_timeout":      cfg.Engine.TransferTimeout,
		"absolute_move_timeout": cfg.Engine.AbsoluteMoveTimeout,
		"relative_ack_timeout":  cfg.Engine.RelativeAckTimeout,
		"poll_interval":         cfg.Engine.PollInterval,
	} {
		if d <= 0 {
			return nil, errors.Errorf("%s must be positive, got %s", name, d)
		}
	}
	return cfg, nil
}
