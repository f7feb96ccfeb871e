package main

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/kevmo314/go-ptz/internal/server"
)

type ServeOptions struct {
	Listen string
}

func NewServeCommand(root *RootOptions) *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the cameras to websocket clients on /ws",
		Example: `  ptzctl serve
  ptzctl serve --listen 127.0.0.1:9000 --simulate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			listen := root.cfg.Listen
			if cmd.Flags().Changed("listen") {
				listen = opts.Listen
			}
			ctrl := root.controller()
			defer ctrl.Close()

			err := server.New(ctrl, root.log).ListenAndServe(cmd.Context(), listen)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&opts.Listen, "listen", ":8080", "Address to listen on (default: listen from the config)")
	return cmd
}
