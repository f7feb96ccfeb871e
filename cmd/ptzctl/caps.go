package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	ptz "github.com/kevmo314/go-ptz"
)

func NewCapsCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "caps",
		Short: "Show the PTZ controls of a camera and their ranges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withSession(cmd, func(ctx context.Context, s *ptz.Session) error {
				caps, err := s.Capabilities(ctx)
				if err != nil {
					return err
				}
				printCapabilities(cmd.OutOrStdout(), s.Device(), caps)
				return nil
			})
		},
	}
}

func printCapabilities(w io.Writer, dev ptz.DeviceDescriptor, caps ptz.Capabilities) {
	fmt.Fprintf(w, "%s %s %s\n", dev, dev.Manufacturer, dev.Product)
	line := func(name string, supported bool, ranges ...ptz.Range) {
		if !supported {
			fmt.Fprintf(w, "  %-18s no\n", name)
			return
		}
		fmt.Fprintf(w, "  %-18s yes", name)
		for _, r := range ranges {
			fmt.Fprintf(w, "  [%d..%d step %d default %d]", r.Min, r.Max, r.Resolution, r.Default)
		}
		fmt.Fprintln(w)
	}
	line("absolute zoom", caps.AbsoluteZoom, caps.Zoom)
	line("relative zoom", caps.RelativeZoom, caps.ZoomSpeed)
	line("absolute pan-tilt", caps.AbsolutePanTilt, caps.Pan, caps.Tilt)
	line("relative pan-tilt", caps.RelativePanTilt, caps.PanSpeed, caps.TiltSpeed)
	line("absolute roll", caps.AbsoluteRoll, caps.Roll)
	line("relative roll", caps.RelativeRoll, caps.RollSpeed)
}
