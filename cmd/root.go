package cmd

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Tenemo/bob/cmd/config"
	"github.com/Tenemo/bob/cmd/devices"
	"github.com/Tenemo/bob/cmd/play"
	"github.com/Tenemo/bob/cmd/probe"
	"github.com/Tenemo/bob/cmd/serve"
	"github.com/Tenemo/bob/cmd/tone"
	"github.com/Tenemo/bob/internal/buildinfo"
	"github.com/Tenemo/bob/internal/conf"
	"github.com/Tenemo/bob/internal/logging"
)

// RootCommand creates and returns the root command. settings is filled from the
// config file, environment and global flags before any subcommand runs.
func RootCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var (
		configFile string
		debug      bool
		logCloser  io.Closer
	)

	rootCmd := &cobra.Command{
		Use:           conf.AppName,
		Short:         "bob speaker controller",
		Long:          "Plays 16-bit PCM WAV files on demand over HTTP and MQTT.",
		Version:       build.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug output")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loaded, err := conf.Load(configFile)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("debug") {
			loaded.Debug = debug
		}
		*settings = *loaded

		logCloser, err = initLogging(settings)
		return err
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	}

	rootCmd.AddCommand(
		serve.Command(settings, build),
		play.Command(settings),
		tone.Command(),
		devices.Command(),
		probe.Command(),
		config.Command(settings),
	)

	return rootCmd
}

// initLogging applies the configured level and optional rotated log file
func initLogging(settings *conf.Settings) (io.Closer, error) {
	level := logging.ParseLevel(settings.Main.Log.Level)
	if settings.Debug {
		level = slog.LevelDebug
	}
	logging.SetLevel(level)

	if !settings.Main.Log.Enabled {
		return nil, nil
	}
	w, err := logging.NewRotatingWriter(settings.Main.Log.Path, logging.FileConfig{MaxSizeMB: settings.Main.Log.MaxSize})
	if err != nil {
		return nil, err
	}
	logging.SetOutput(io.MultiWriter(os.Stdout, w), os.Stderr)
	return w, nil
}
