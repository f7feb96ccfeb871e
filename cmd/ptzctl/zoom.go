package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	ptz "github.com/kevmo314/go-ptz"
)

type ZoomMoveOptions struct {
	Speed int32
}

func NewZoomCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zoom",
		Short: "Read or move the zoom",
	}
	cmd.AddCommand(newZoomGetCommand(root))
	cmd.AddCommand(newZoomSetCommand(root))
	cmd.AddCommand(newZoomMoveCommand(root, "in", ptz.DirectionPositive))
	cmd.AddCommand(newZoomMoveCommand(root, "out", ptz.DirectionNegative))
	cmd.AddCommand(newZoomStopCommand(root))
	return cmd
}

func newZoomGetCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Show the absolute zoom and the relative zoom in progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withSession(cmd, func(ctx context.Context, s *ptz.Session) error {
				caps, err := s.Capabilities(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if caps.AbsoluteZoom {
					z, err := s.GetAbsoluteZoom(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "zoom %d (min %d max %d step %d default %d)\n", z.Current, z.Min, z.Max, z.Resolution, z.Default)
				}
				if caps.RelativeZoom {
					rz, err := s.GetRelativeZoom(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "relative direction %d speed %d (min %d max %d) digital %t\n",
						rz.Direction, rz.Speed.Current, rz.Speed.Min, rz.Speed.Max, rz.DigitalZoom)
				}
				return nil
			})
		},
	}
}

func newZoomSetCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "set <zoom>",
		Short:   "Move to an absolute zoom and wait until the camera gets there",
		Example: `  ptzctl zoom set 40`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			zoom, err := parseInt32(args[0])
			if err != nil {
				return fmt.Errorf("invalid zoom %q: %w", args[0], err)
			}
			return root.withSession(cmd, func(ctx context.Context, s *ptz.Session) error {
				return s.AbsoluteZoom(ctx, zoom)
			})
		},
	}
}

func newZoomMoveCommand(root *RootOptions, use string, direction ptz.Direction) *cobra.Command {
	opts := &ZoomMoveOptions{}

	cmd := &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("Start zooming %s until stopped", use),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withSession(cmd, func(ctx context.Context, s *ptz.Session) error {
				speed := opts.Speed
				if !cmd.Flags().Changed("speed") {
					rz, err := s.GetRelativeZoom(ctx)
					if err != nil {
						return err
					}
					speed = rz.Speed.Default
				}
				return s.RelativeZoom(ctx, direction, speed)
			})
		},
	}
	cmd.Flags().Int32VarP(&opts.Speed, "speed", "s", 0, "Zoom speed (default: the camera's default speed)")
	return cmd
}

func newZoomStopCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a relative zoom",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withSession(cmd, func(ctx context.Context, s *ptz.Session) error {
				return s.ZoomStop(ctx)
			})
		},
	}
}
