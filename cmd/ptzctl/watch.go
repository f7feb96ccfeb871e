package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kevmo314/go-ptz/pkg/usbbus"
)

func NewWatchCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print PTZ cameras as they are plugged in and removed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bus, ok := root.bus.(*usbbus.Bus)
			if !ok {
				return errors.New("watch needs the USB bus")
			}
			events, err := bus.Watch(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for e := range events {
				fmt.Fprintf(out, "%s %s %s %s\n", e.Type, e.Device.DeviceDescriptor, e.Device.Manufacturer, e.Device.Product)
			}
			return nil
		},
	}
}
