// conf/consts.go hard coded constants
package conf

const (
	AppName        = "bob"            // used for config directories and the env prefix
	EnvPrefix      = "BOB"            // environment overrides are BOB_<SECTION>_<KEY>
	ConfigFileName = "config.yaml"    // searched for in the default config paths
	DeviceNull     = "null"           // audio.device value selecting the virtual peripheral
	MinBatchFrames = 16               // smallest accepted audio.batchframes
	MaxUploadSize  = 64 * 1024 * 1024 // hard ceiling for upload.maxsize
)
