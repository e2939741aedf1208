// conf/config.go configuration loading for the bob speaker controller
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Tenemo/bob/internal/errors"
)

// LogConfig defines the file logging options
type LogConfig struct {
	Enabled bool   `yaml:"enabled"` // true to also write logs to a rotated file
	Path    string `yaml:"path"`    // log file path
	Level   string `yaml:"level"`   // trace, debug, info, warn or error
	MaxSize int    `yaml:"maxsize"` // megabytes before rotation
}

// MainSettings holds the instance identity and logging
type MainSettings struct {
	Name string    `yaml:"name"` // instance name, default MQTT client id
	Log  LogConfig `yaml:"log"`
}

// AudioSettings controls the playback engine and output device
type AudioSettings struct {
	Device         string `yaml:"device"`         // "default", "null" or a device name
	BatchFrames    int    `yaml:"batchframes"`    // frames pulled per engine refill
	PeriodFrames   int    `yaml:"periodframes"`   // frames per DMA buffer
	Periods        int    `yaml:"periods"`        // number of DMA buffers
	KeepWarm       bool   `yaml:"keepwarm"`       // keep emitting silence after a source completes
	StrictFormat   bool   `yaml:"strictformat"`   // refuse bit depths other than 16
	StartupSilence bool   `yaml:"startupsilence"` // play SilenceFile when serving starts
	SilenceFile    string `yaml:"silencefile"`    // storage path of the startup clip
}

// StorageSettings locates the named storage
type StorageSettings struct {
	Path string `yaml:"path"` // directory holding playable files
}

// UploadSettings controls POST /audio
type UploadSettings struct {
	MaxSize int64  `yaml:"maxsize"` // bytes
	Persist bool   `yaml:"persist"` // also save uploads to storage
	Path    string `yaml:"path"`    // storage path uploads are saved under
}

// HTTPSettings controls the HTTP control surface
type HTTPSettings struct {
	Listen string `yaml:"listen"` // address to listen on, e.g. ":8080"
}

// MQTTSettings controls remote control over MQTT
type MQTTSettings struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"` // e.g. tcp://localhost:1883
	Topic    string `yaml:"topic"`  // base topic; play, stop and status live below it
	ClientID string `yaml:"clientid"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Retain   bool   `yaml:"retain"` // retain status messages at the broker
}

// HistorySettings controls the playback history database
type HistorySettings struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`  // SQLite database file
	Limit   int    `yaml:"limit"` // default number of entries returned
}

// SentrySettings controls error telemetry
type SentrySettings struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// Settings is the complete configuration
type Settings struct {
	Debug   bool            `yaml:"debug"`
	Main    MainSettings    `yaml:"main"`
	Audio   AudioSettings   `yaml:"audio"`
	Storage StorageSettings `yaml:"storage"`
	Upload  UploadSettings  `yaml:"upload"`
	HTTP    HTTPSettings    `yaml:"http"`
	MQTT    MQTTSettings    `yaml:"mqtt"`
	History HistorySettings `yaml:"history"`
	Sentry  SentrySettings  `yaml:"sentry"`
}

// Load reads configFile, or config.yaml from the default config paths when configFile
// is empty, applies BOB_* environment overrides and validates the result. A missing
// config file in the default paths is not an error; defaults apply.
func Load(configFile string) (*Settings, error) {
	v := viper.New()
	setDefaultConfig(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(strings.TrimSuffix(ConfigFileName, filepath.Ext(ConfigFileName)))
		v.SetConfigType("yaml")
		configPaths, err := GetDefaultConfigPaths()
		if err != nil {
			return nil, err
		}
		for _, path := range configPaths {
			v.AddConfigPath(path)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, errors.New(err).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Context("config_file", configFile).
				Context("operation", "read_config").
				Build()
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal_config").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// Default returns the default settings
func Default() *Settings {
	v := viper.New()
	setDefaultConfig(v)
	settings := &Settings{}
	// defaults always decode
	_ = v.Unmarshal(settings)
	return settings
}

// YAML renders the settings as a config file with the password redacted
func (s *Settings) YAML() ([]byte, error) {
	c := *s
	if c.MQTT.Password != "" {
		c.MQTT.Password = "********"
	}
	data, err := yaml.Marshal(&c)
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "marshal_config").
			Build()
	}
	return data, nil
}

// SaveYAMLConfig writes settings to configPath atomically through a temporary file.
// Unlike YAML it keeps the MQTT password.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempPath := tempFile.Name()

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempPath, configPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}
