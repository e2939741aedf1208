// Package serve runs the speaker: playback controller, HTTP and MQTT control surfaces.
package serve

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Tenemo/bob/internal/audiocore"
	malgosink "github.com/Tenemo/bob/internal/audiocore/sinks/malgo"
	"github.com/Tenemo/bob/internal/audiocore/sinks/virtual"
	"github.com/Tenemo/bob/internal/buildinfo"
	"github.com/Tenemo/bob/internal/conf"
	"github.com/Tenemo/bob/internal/datastore"
	"github.com/Tenemo/bob/internal/errors"
	"github.com/Tenemo/bob/internal/httpcontroller"
	"github.com/Tenemo/bob/internal/logging"
	"github.com/Tenemo/bob/internal/mqtt"
	"github.com/Tenemo/bob/internal/observability"
	"github.com/Tenemo/bob/internal/storage"
	"github.com/Tenemo/bob/internal/tone"
	"github.com/Tenemo/bob/internal/upload"
)

// Startup clip written when the configured silence file is missing
const (
	silenceSampleRate = 44100
	silenceDuration   = 10 * time.Millisecond
)

const sentryFlush = 2 * time.Second

// Command creates the serve command
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var listen, device string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the speaker with its HTTP and MQTT control surfaces",
		Long:  "Start the playback controller and serve HTTP (and MQTT when enabled) until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("listen") {
				settings.HTTP.Listen = listen
			}
			if cmd.Flags().Changed("device") {
				settings.Audio.Device = device
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Run(ctx, settings, build)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "HTTP listen address, e.g. \":8080\"")
	cmd.Flags().StringVar(&device, "device", "", "Playback device (\"default\", \"null\" or a device name)")

	return cmd
}

// PeripheralFactory returns the output peripheral factory selected by audio.device
func PeripheralFactory(audio conf.AudioSettings) audiocore.PeripheralFactory {
	if audio.Device == conf.DeviceNull {
		return virtual.Factory(virtual.Config{PeriodFrames: audio.PeriodFrames, Periods: audio.Periods})
	}
	return malgosink.Factory(malgosink.Config{
		DeviceName:   audio.Device,
		PeriodFrames: audio.PeriodFrames,
		Periods:      audio.Periods,
	})
}

// NewController builds the playback controller from settings. recorder may be nil.
func NewController(settings *conf.Settings, fsys audiocore.Storage, recorder audiocore.Recorder, observers ...audiocore.SessionObserver) *audiocore.Controller {
	return audiocore.NewController(audiocore.ControllerConfig{
		Storage:      fsys,
		Factory:      PeripheralFactory(settings.Audio),
		BatchFrames:  settings.Audio.BatchFrames,
		KeepWarm:     settings.Audio.KeepWarm,
		StrictFormat: settings.Audio.StrictFormat,
		Recorder:     recorder,
		Logger:       logging.ForService("audiocore"),
		Observers:    observers,
	})
}

// Run wires every component and serves until ctx is cancelled or a server fails.
// build may be nil.
func Run(ctx context.Context, settings *conf.Settings, build *buildinfo.Context) error {
	logger := logging.ForService("serve")

	flush := initSentry(settings, build, logger)
	defer flush()

	store, err := storage.New(settings.Storage.Path)
	if err != nil {
		return err
	}
	defer closeLogged(logger, "storage", store.Close)

	m, err := observability.NewMetrics()
	if err != nil {
		return errors.New(err).
			Component("serve").
			Category(errors.CategorySystem).
			Context("operation", "init_metrics").
			Build()
	}

	observers := []audiocore.SessionObserver{m.Playback}
	var history httpcontroller.HistoryReader
	if settings.History.Enabled {
		h, err := datastore.Open(settings.History.Path, settings.Debug)
		if err != nil {
			return err
		}
		defer closeLogged(logger, "history", h.Close)
		observers = append(observers, h)
		history = h
	}

	// Stop must run before the history closes
	ctrl := NewController(settings, store.FS(), m.Playback, observers...)
	defer ctrl.Stop()

	server := httpcontroller.New(httpcontroller.Config{
		Listen:        settings.HTTP.Listen,
		Player:        ctrl,
		Store:         store,
		Uploads:       upload.NewHandler(settings.Upload.MaxSize, upload.WithRecorder(m.Playback)),
		History:       history,
		HistoryLimit:  settings.History.Limit,
		Metrics:       m,
		PersistUpload: settings.Upload.Persist,
		UploadPath:    settings.Upload.Path,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })

	if settings.MQTT.Enabled {
		client := mqtt.NewClient(mqttConfig(settings), ctrl, m.MQTT)
		ctrl.AddObserver(client)
		g.Go(func() error {
			// the speaker keeps serving HTTP without a broker
			if err := mqtt.Run(gctx, client); err != nil {
				logger.Error("MQTT remote control unavailable", "broker", settings.MQTT.Broker, "error", err)
			}
			return nil
		})
	}

	if settings.Audio.StartupSilence {
		if err := playStartupSilence(store, ctrl, settings.Audio.SilenceFile); err != nil {
			logger.Warn("startup silence failed", "file", settings.Audio.SilenceFile, "error", err)
		}
	}

	logger.Info("speaker ready",
		"version", build.GetVersion(),
		"listen", settings.HTTP.Listen,
		"device", settings.Audio.Device,
		"storage", store.BaseDir(),
		"mqtt", settings.MQTT.Enabled,
		"history", settings.History.Enabled)

	return g.Wait()
}

// playStartupSilence plays a short silent clip to settle the output stage,
// generating the clip first when storage does not have it
func playStartupSilence(store *storage.Store, ctrl *audiocore.Controller, name string) error {
	if !store.Exists(name) {
		data, err := tone.Encode(tone.Silence(silenceSampleRate, silenceDuration))
		if err != nil {
			return err
		}
		if err := store.Save(name, data); err != nil {
			return err
		}
	}
	return ctrl.StartFile(name)
}

func mqttConfig(settings *conf.Settings) mqtt.Config {
	cfg := mqtt.DefaultConfig()
	cfg.Broker = settings.MQTT.Broker
	cfg.ClientID = settings.MQTT.ClientID
	if cfg.ClientID == "" {
		cfg.ClientID = settings.Main.Name
	}
	cfg.Username = settings.MQTT.Username
	cfg.Password = settings.MQTT.Password
	cfg.Retain = settings.MQTT.Retain
	if settings.MQTT.Topic != "" {
		cfg.Topic = settings.MQTT.Topic
	}
	return cfg
}

// initSentry enables error telemetry when configured and returns the flush function
func initSentry(settings *conf.Settings, build *buildinfo.Context, logger *slog.Logger) func() {
	if !settings.Sentry.Enabled {
		return func() {}
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:            settings.Sentry.DSN,
		ServerName:     settings.Main.Name,
		Release:        conf.AppName + "@" + build.GetVersion(),
		SendDefaultPII: false,
	}); err != nil {
		logger.Warn("failed to initialize Sentry", "error", err)
		return func() {}
	}
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	logger.Info("error telemetry enabled")
	return func() { sentry.Flush(sentryFlush) }
}

func closeLogged(logger *slog.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logger.Warn("failed to close "+name, "error", err)
	}
}
