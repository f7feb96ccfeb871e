package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	ptz "github.com/kevmo314/go-ptz"
	"github.com/kevmo314/go-ptz/internal/config"
	"github.com/kevmo314/go-ptz/pkg/simcam"
	"github.com/kevmo314/go-ptz/pkg/usbbus"
)

type RootOptions struct {
	ConfigFile string
	Vendor     string
	Product    string
	Simulate   bool
	LogLevel   string

	cfg *config.Config
	log *logrus.Entry
	bus ptz.Bus
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ptzctl",
		Short: "Control the pan, tilt and zoom of UVC cameras",
		Long: `ptzctl lists UVC cameras with pan, tilt or zoom controls and drives them
through the camera terminal of their video control interface.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.ConfigFile, "config", "", "Config file (default: config.yaml in ., $HOME/.ptz or /etc/ptz)")
	flags.StringVar(&opts.Vendor, "vendor", "0", "Vendor ID, 0x-prefixed hex or decimal; 0 matches any")
	flags.StringVar(&opts.Product, "product", "0", "Product ID, 0x-prefixed hex or decimal; 0 matches any")
	flags.BoolVar(&opts.Simulate, "simulate", false, "Drive a simulated camera instead of the USB bus")
	flags.StringVar(&opts.LogLevel, "log-level", "", "Log level (overrides log_level from the config)")

	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewCapsCommand(opts))
	cmd.AddCommand(NewZoomCommand(opts))
	cmd.AddCommand(NewPanTiltCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	return cmd
}

func (o *RootOptions) load(cmd *cobra.Command) error {
	v := config.New(o.ConfigFile)
	if o.LogLevel != "" {
		v.Set("log_level", o.LogLevel)
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	o.cfg = cfg

	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetLevel(cfg.LogLevel)
	o.log = logrus.NewEntry(logger)

	if o.bus == nil {
		if o.Simulate {
			o.bus = simcam.NewBus(simcam.NewPTZCamera())
		} else {
			o.bus = usbbus.New(cfg.SysfsRoot, cfg.DevRoot, o.log)
		}
	}
	return nil
}

func (o *RootOptions) controller() *ptz.Controller {
	return ptz.New(o.bus, ptz.WithConfig(o.cfg.Engine), ptz.WithLogger(o.log))
}

func (o *RootOptions) ids() (vendor, product uint16, err error) {
	if vendor, err = parseID(o.Vendor); err != nil {
		return 0, 0, fmt.Errorf("invalid --vendor: %w", err)
	}
	if product, err = parseID(o.Product); err != nil {
		return 0, 0, fmt.Errorf("invalid --product: %w", err)
	}
	return vendor, product, nil
}

func parseID(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

// withSession opens the selected camera, runs fn and releases the camera.
func (o *RootOptions) withSession(cmd *cobra.Command, fn func(ctx context.Context, s *ptz.Session) error) error {
	vendor, product, err := o.ids()
	if err != nil {
		return err
	}
	ctrl := o.controller()
	defer ctrl.Close()

	s, err := ctrl.Open(vendor, product)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(cmd.Context(), s)
}

func parseInt32(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

func parseDirection(s string) (ptz.Direction, error) {
	v, err := strconv.ParseInt(s, 10, 8)
	if err != nil {
		return 0, err
	}
	return ptz.Direction(v), nil
}
