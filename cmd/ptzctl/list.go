package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	ptz "github.com/kevmo314/go-ptz"
	"github.com/kevmo314/go-ptz/internal/protocol"
)

type ListOptions struct {
	OutputFormat string
}

func NewListCommand(root *RootOptions) *cobra.Command {
	opts := &ListOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cameras with pan, tilt or zoom controls",
		Example: `  ptzctl list
  ptzctl list --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := root.controller().ListDevices()
			if err != nil {
				return err
			}
			return printDevices(cmd, devices, opts.OutputFormat)
		},
	}

	cmd.Flags().StringVarP(&opts.OutputFormat, "output", "o", "text", "Output format (json or text)")
	cmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"json", "text"}, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func printDevices(cmd *cobra.Command, devices []ptz.DeviceDescriptor, format string) error {
	out := cmd.OutOrStdout()
	switch format {
	case "json":
		payload := protocol.DevicesPayload{Devices: make([]protocol.Device, 0, len(devices))}
		for _, d := range devices {
			payload.Devices = append(payload.Devices, protocol.Device{
				VendorID:     d.VendorID,
				ProductID:    d.ProductID,
				BusAddress:   d.BusAddress,
				Manufacturer: d.Manufacturer,
				Product:      d.Product,
				SerialNumber: d.Serial,
			})
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	case "text":
		if len(devices) == 0 {
			fmt.Fprintln(out, "No PTZ cameras found")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tBUS\tMANUFACTURER\tPRODUCT\tSERIAL")
		for _, d := range devices {
			fmt.Fprintf(w, "%04x:%04x\t%s\t%s\t%s\t%s\n", d.VendorID, d.ProductID, d.BusAddress, d.Manufacturer, d.Product, d.Serial)
		}
		return w.Flush()
	}
	return fmt.Errorf("unknown output format %q", format)
}
