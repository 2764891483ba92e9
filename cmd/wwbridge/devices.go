package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/winghaptics/wwbridge/internal/config"
	"github.com/winghaptics/wwbridge/internal/device"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List bound devices and whether they can be opened",
		RunE: func(cmd *cobra.Command, args []string) error {
			devCfg, err := config.GetDeviceConfig()
			if err != nil {
				return err
			}
			return listDevices(cmd.OutOrStdout(), devCfg, device.NewHidraw(devCfg.WriteTimeout))
		},
	}
}

type transport interface {
	device.Transport
	device.Enumerator
}

// listDevices prints every attached HID device, then every bound device and
// whether it opens for writing.
func listDevices(out io.Writer, devCfg config.DeviceConfig, t transport) error {
	attached, err := t.Enumerate()
	if err != nil {
		return fmt.Errorf("failed to enumerate hidraw devices: %w", err)
	}

	fmt.Fprintf(out, "Attached HID devices (%d):\n", len(attached))
	for _, info := range attached {
		fmt.Fprintf(out, "  %s\n", info)
	}
	fmt.Fprintln(out)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tNAME\tBINDINGS\tSTATUS")
	ok := 0
	for _, spec := range devCfg.Devices {
		bindings := 0
		for _, b := range devCfg.Bindings {
			if b.Device == spec.ID {
				bindings++
			}
		}

		status := "ok"
		h, err := t.Open(spec)
		if err != nil {
			status = err.Error()
		} else {
			ok++
			_ = h.Close()
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", spec, spec.Name, bindings, status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if ok == 0 {
		return device.ErrNoDevices
	}
	return nil
}
