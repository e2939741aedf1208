// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// setDefaultConfig sets default values for the configuration. Every key needs a
// default so environment overrides reach Unmarshal.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("main.name", AppName)
	v.SetDefault("main.log.enabled", false)
	v.SetDefault("main.log.path", "logs/bob.log")
	v.SetDefault("main.log.level", "info")
	v.SetDefault("main.log.maxsize", 100)

	v.SetDefault("audio.device", "default")
	v.SetDefault("audio.batchframes", 512)
	v.SetDefault("audio.periodframes", 1024)
	v.SetDefault("audio.periods", 4)
	v.SetDefault("audio.keepwarm", true)
	v.SetDefault("audio.strictformat", false)
	v.SetDefault("audio.startupsilence", true)
	v.SetDefault("audio.silencefile", "/silence.wav")

	v.SetDefault("storage.path", "data")

	v.SetDefault("upload.maxsize", 10*1024*1024)
	v.SetDefault("upload.persist", false)
	v.SetDefault("upload.path", "/uploaded_audio.wav")

	v.SetDefault("http.listen", ":8080")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic", "bob/audio")
	v.SetDefault("mqtt.clientid", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.retain", false)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "history.db")
	v.SetDefault("history.limit", 50)

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
}
