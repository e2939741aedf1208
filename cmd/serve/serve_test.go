package serve

import (
	"context"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tenemo/bob/internal/audiocore/sinks/virtual"
	"github.com/Tenemo/bob/internal/conf"
	"github.com/Tenemo/bob/internal/errors"
	"github.com/Tenemo/bob/internal/storage"
)

func nullSettings(t *testing.T) *conf.Settings {
	t.Helper()
	settings := conf.Default()
	settings.Audio.Device = conf.DeviceNull
	settings.Audio.PeriodFrames = 64
	settings.Audio.Periods = 2
	settings.Storage.Path = t.TempDir()
	settings.History.Path = filepath.Join(t.TempDir(), "history.db")
	return settings
}

func TestPeripheralFactorySelectsVirtualForNull(t *testing.T) {
	out, err := PeripheralFactory(conf.AudioSettings{Device: conf.DeviceNull, PeriodFrames: 64, Periods: 2})()
	require.NoError(t, err)
	_, ok := out.(*virtual.Peripheral)
	assert.True(t, ok)
	require.NoError(t, out.Close())
}

func TestPlayStartupSilenceGeneratesClip(t *testing.T) {
	settings := nullSettings(t)
	store, err := storage.New(settings.Storage.Path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctrl := NewController(settings, store.FS(), nil)
	require.NoError(t, playStartupSilence(store, ctrl, "/silence.wav"))
	defer ctrl.Stop()

	assert.True(t, store.Exists("/silence.wav"))
	st := ctrl.Status()
	require.NotNil(t, st.Session)
	assert.Equal(t, "/silence.wav", st.Session.Source)
	assert.Equal(t, silenceSampleRate, st.Session.SampleRate)

	files, err := store.List()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, 2, files[0].Channels)
}

func TestPlayStartupSilenceStaysInsideStorage(t *testing.T) {
	parent := t.TempDir()
	settings := nullSettings(t)
	settings.Storage.Path = filepath.Join(parent, "data")

	store, err := storage.New(settings.Storage.Path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctrl := NewController(settings, store.FS(), nil)
	defer ctrl.Stop()

	err = playStartupSilence(store, ctrl, "/../escape.wav")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	assert.NoFileExists(t, filepath.Join(parent, "escape.wav"))
	assert.Nil(t, ctrl.Status().Session)
}

func TestMQTTConfigFallsBackToInstanceName(t *testing.T) {
	settings := conf.Default()
	settings.Main.Name = "porch"
	settings.MQTT.Broker = "tcp://broker:1883"
	settings.MQTT.Topic = "home/porch"

	cfg := mqttConfig(settings)
	assert.Equal(t, "porch", cfg.ClientID)
	assert.Equal(t, "home/porch", cfg.Topic)
	assert.Equal(t, "tcp://broker:1883", cfg.Broker)
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestRunServesUntilCancelled(t *testing.T) {
	settings := nullSettings(t)
	settings.HTTP.Listen = freeAddr(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, settings, nil) }()

	url := "http://" + settings.HTTP.Listen + "/health-check"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url) //nolint:gosec // test server
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}

	// startup silence ran against the null device
	assert.FileExists(t, filepath.Join(settings.Storage.Path, "silence.wav"))
}
