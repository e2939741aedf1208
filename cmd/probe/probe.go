// Package probe prints the container header of a WAV file
package probe

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Tenemo/bob/internal/audiocore"
	"github.com/Tenemo/bob/internal/errors"
)

// Command creates the probe command
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "probe <file.wav>",
		Short: "Print and validate the header of a WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := probeFile(args[0])
			if err != nil {
				return err
			}
			return printHeader(cmd.OutOrStdout(), args[0], h)
		},
	}
}

func probeFile(path string) (audiocore.ContainerHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return audiocore.ContainerHeader{}, errors.New(err).
			Component("probe").
			Category(errors.CategoryFileIO).
			Context("file", path).
			Build()
	}
	defer func() { _ = f.Close() }()
	return audiocore.ProbeHeader(f)
}

func printHeader(w io.Writer, path string, h audiocore.ContainerHeader) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "file\t%s\n", path)
	fmt.Fprintf(tw, "format\t%d\n", h.AudioFormat)
	fmt.Fprintf(tw, "channels\t%d\n", h.NumChannels)
	fmt.Fprintf(tw, "sample rate\t%d Hz\n", h.SampleRate)
	fmt.Fprintf(tw, "bit depth\t%d\n", h.BitDepth)
	fmt.Fprintf(tw, "byte rate\t%d\n", h.ByteRate)
	fmt.Fprintf(tw, "block align\t%d\n", h.BlockAlign)
	if h.UnknownLength() {
		fmt.Fprintf(tw, "data bytes\tunknown (streamed)\n")
	} else {
		fmt.Fprintf(tw, "data bytes\t%d\n", h.DataBytes)
		fmt.Fprintf(tw, "duration\t%s\n", h.Duration())
	}
	return tw.Flush()
}
