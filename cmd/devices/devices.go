// Package devices lists the playback devices the output backend can open
package devices

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	malgosink "github.com/Tenemo/bob/internal/audiocore/sinks/malgo"
)

// Command creates the devices command
func Command() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List playback devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := malgosink.ListDevices()
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), devices)
			}
			return printTable(cmd.OutOrStdout(), devices)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print devices as JSON")
	return cmd
}

func printJSON(w io.Writer, devices []malgosink.DeviceInfo) error {
	if devices == nil {
		devices = []malgosink.DeviceInfo{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(devices)
}

func printTable(w io.Writer, devices []malgosink.DeviceInfo) error {
	if len(devices) == 0 {
		_, err := fmt.Fprintln(w, "no playback devices found")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tNAME\tDEFAULT\tID")
	for _, d := range devices {
		def := ""
		if d.IsDefault {
			def = "*"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", d.Index, d.Name, def, d.ID)
	}
	return tw.Flush()
}
