// Package play plays a single file through the output device and exits
package play

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tenemo/bob/cmd/serve"
	"github.com/Tenemo/bob/internal/audiocore"
	"github.com/Tenemo/bob/internal/conf"
	"github.com/Tenemo/bob/internal/errors"
	"github.com/Tenemo/bob/internal/logging"
)

const pollInterval = 50 * time.Millisecond

// Command creates the play command
func Command(settings *conf.Settings) *cobra.Command {
	var device string

	cmd := &cobra.Command{
		Use:   "play <file>",
		Short: "Play a WAV file and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("device") {
				settings.Audio.Device = device
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Run(ctx, settings, args[0])
		},
	}

	cmd.Flags().StringVar(&device, "device", "", "Playback device (\"default\", \"null\" or a device name)")
	return cmd
}

// Run plays path until its source is exhausted and the device has drained,
// or until ctx is cancelled
func Run(ctx context.Context, settings *conf.Settings, path string) error {
	logger := logging.ForService("play")

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return errors.New(err).
			Component("play").
			Category(errors.CategoryFileIO).
			Context("file", path).
			Build()
	}
	if info.IsDir() {
		return errors.Newf("%s is a directory", path).
			Component("play").
			Category(errors.CategoryValidation).
			Build()
	}

	audio := settings.Audio
	audio.KeepWarm = false
	local := *settings
	local.Audio = audio

	ctrl := serve.NewController(&local, os.DirFS(filepath.Dir(abs)), nil)
	defer ctrl.Stop()

	if err := ctrl.StartFile("/" + filepath.Base(abs)); err != nil {
		return err
	}

	st := ctrl.Status()
	if st.Session == nil {
		return nil
	}
	logger.Info("playing", "file", path, "sample_rate", st.Session.SampleRate, "channels", st.Session.Channels)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		st = ctrl.Status()
		if st.Session == nil || st.Session.Complete {
			break
		}
	}

	// let the queued periods reach the speaker
	select {
	case <-ctx.Done():
	case <-time.After(drainTime(audio, st.Session)):
	}
	return nil
}

// drainTime is how long the device needs to play out its queued periods
func drainTime(audio conf.AudioSettings, session *audiocore.SessionInfo) time.Duration {
	if session == nil || session.SampleRate <= 0 {
		return 0
	}
	frames := audio.PeriodFrames * audio.Periods
	return time.Duration(frames) * time.Second / time.Duration(session.SampleRate)
}
