package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	ptz "github.com/kevmo314/go-ptz"
)

func NewPanTiltCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pantilt",
		Short: "Read or move pan and tilt",
		Long:  "Absolute positions are in arc seconds. Negative values must follow --.",
	}
	cmd.AddCommand(newPanTiltGetCommand(root))
	cmd.AddCommand(newPanTiltSetCommand(root))
	cmd.AddCommand(newPanTiltMoveCommand(root))
	cmd.AddCommand(newPanTiltStopCommand(root))
	return cmd
}

func newPanTiltGetCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Show the absolute position and the relative move in progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withSession(cmd, func(ctx context.Context, s *ptz.Session) error {
				caps, err := s.Capabilities(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if caps.AbsolutePanTilt {
					pt, err := s.GetAbsolutePanTilt(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "pan %d (min %d max %d step %d)\n", pt.Pan.Current, pt.Pan.Min, pt.Pan.Max, pt.Pan.Resolution)
					fmt.Fprintf(out, "tilt %d (min %d max %d step %d)\n", pt.Tilt.Current, pt.Tilt.Min, pt.Tilt.Max, pt.Tilt.Resolution)
				}
				if caps.RelativePanTilt {
					r, err := s.GetRelativePanTilt(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "relative pan %d speed %d, tilt %d speed %d\n",
						r.PanDirection, r.PanSpeed.Current, r.TiltDirection, r.TiltSpeed.Current)
				}
				return nil
			})
		},
	}
}

func newPanTiltSetCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <pan> <tilt>",
		Short: "Move to an absolute position and wait until the camera gets there",
		Example: `  ptzctl pantilt set 36000 0
  ptzctl pantilt set -- -36000 7200`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pan, err := parseInt32(args[0])
			if err != nil {
				return fmt.Errorf("invalid pan %q: %w", args[0], err)
			}
			tilt, err := parseInt32(args[1])
			if err != nil {
				return fmt.Errorf("invalid tilt %q: %w", args[1], err)
			}
			return root.withSession(cmd, func(ctx context.Context, s *ptz.Session) error {
				return s.AbsolutePanTilt(ctx, pan, tilt)
			})
		},
	}
}

func newPanTiltMoveCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "move <pan-direction> <pan-speed> <tilt-direction> <tilt-speed>",
		Short: "Start a continuous pan and tilt until stopped",
		Long:  "Directions are -1, 0 or 1. A direction of 0 stops that axis and ignores its speed.",
		Example: `  ptzctl pantilt move 1 5 0 0
  ptzctl pantilt move -- -1 5 1 3`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			panDir, err := parseDirection(args[0])
			if err != nil {
				return fmt.Errorf("invalid pan direction %q: %w", args[0], err)
			}
			panSpeed, err := parseInt32(args[1])
			if err != nil {
				return fmt.Errorf("invalid pan speed %q: %w", args[1], err)
			}
			tiltDir, err := parseDirection(args[2])
			if err != nil {
				return fmt.Errorf("invalid tilt direction %q: %w", args[2], err)
			}
			tiltSpeed, err := parseInt32(args[3])
			if err != nil {
				return fmt.Errorf("invalid tilt speed %q: %w", args[3], err)
			}
			return root.withSession(cmd, func(ctx context.Context, s *ptz.Session) error {
				return s.RelativePanTilt(ctx, panDir, panSpeed, tiltDir, tiltSpeed)
			})
		},
	}
}

func newPanTiltStopCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a relative pan and tilt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withSession(cmd, func(ctx context.Context, s *ptz.Session) error {
				return s.PanTiltStop(ctx)
			})
		},
	}
}
