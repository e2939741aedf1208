// Package tone implements the tone command that writes test clips
package tone

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tenemo/bob/internal/tone"
)

// Command creates the tone command
func Command() *cobra.Command {
	clip := tone.Clip{}

	cmd := &cobra.Command{
		Use:   "tone <output.wav>",
		Short: "Write a sine or silence test clip",
		Long:  "Write a 16-bit PCM WAV clip. A frequency of 0 writes silence, which can serve as audio.silencefile.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := tone.WriteFile(args[0], clip); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d frames)\n", args[0], clip.Frames())
			return nil
		},
	}

	cmd.Flags().Float64VarP(&clip.Frequency, "frequency", "f", 440, "Tone frequency in Hz, 0 for silence")
	cmd.Flags().DurationVarP(&clip.Duration, "duration", "t", time.Second, "Clip duration")
	cmd.Flags().IntVarP(&clip.SampleRate, "rate", "r", 44100, "Sample rate in Hz")
	cmd.Flags().IntVar(&clip.Channels, "channels", 2, "Channel count, 1 or 2")
	cmd.Flags().Float64Var(&clip.Amplitude, "amplitude", 0.5, "Amplitude as a fraction of full scale")

	return cmd
}
