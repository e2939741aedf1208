package config

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tenemo/bob/internal/conf"
)

func TestConfigPrintsRedactedYAML(t *testing.T) {
	settings := conf.Default()
	settings.MQTT.Password = "hunter2"

	cmd := Command(settings)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), ":8080")
	assert.Contains(t, out.String(), "********")
	assert.NotContains(t, out.String(), "hunter2")
}

func TestConfigWriteRoundTrips(t *testing.T) {
	settings := conf.Default()
	settings.HTTP.Listen = ":9090"
	settings.MQTT.Password = "hunter2"
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cmd := Command(settings)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--write", path})
	require.NoError(t, cmd.Execute())

	loaded, err := conf.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", loaded.HTTP.Listen)
	assert.Equal(t, "hunter2", loaded.MQTT.Password)
}
