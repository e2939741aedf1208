// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/Tenemo/bob/internal/errors"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	check := func(err error) {
		if err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}
	check(validateMainSettings(&settings.Main))
	check(validateAudioSettings(&settings.Audio))
	check(validateUploadSettings(&settings.Upload))
	check(validateHTTPSettings(&settings.HTTP))
	check(validateMQTTSettings(&settings.MQTT))
	check(validateHistorySettings(&settings.History))
	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "sentry.dsn is required when sentry is enabled")
	}

	if len(ve.Errors) > 0 {
		return errors.New(ve).
			Component("conf").
			Category(errors.CategoryValidation).
			Context("error_count", len(ve.Errors)).
			Build()
	}
	return nil
}

func validateMainSettings(s *MainSettings) error {
	switch strings.ToLower(s.Log.Level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("main.log.level %q is not one of trace, debug, info, warn, error", s.Log.Level)
	}
	if s.Log.Enabled && s.Log.Path == "" {
		return fmt.Errorf("main.log.path is required when file logging is enabled")
	}
	return nil
}

func validateAudioSettings(s *AudioSettings) error {
	var problems []string
	if s.Device == "" {
		problems = append(problems, "audio.device must not be empty")
	}
	if s.BatchFrames < MinBatchFrames {
		problems = append(problems, fmt.Sprintf("audio.batchframes must be at least %d", MinBatchFrames))
	}
	if s.PeriodFrames <= 0 {
		problems = append(problems, "audio.periodframes must be positive")
	}
	if s.Periods < 2 {
		problems = append(problems, "audio.periods must be at least 2")
	}
	if s.StartupSilence && !strings.HasPrefix(s.SilenceFile, "/") {
		problems = append(problems, "audio.silencefile must start with /")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

func validateUploadSettings(s *UploadSettings) error {
	if s.MaxSize <= 0 || s.MaxSize > MaxUploadSize {
		return fmt.Errorf("upload.maxsize must be between 1 and %d bytes", MaxUploadSize)
	}
	if s.Persist && !strings.HasPrefix(s.Path, "/") {
		return fmt.Errorf("upload.path must start with /")
	}
	return nil
}

func validateHTTPSettings(s *HTTPSettings) error {
	if _, _, err := net.SplitHostPort(s.Listen); err != nil {
		return fmt.Errorf("http.listen: %w", err)
	}
	return nil
}

func validateMQTTSettings(s *MQTTSettings) error {
	if !s.Enabled {
		return nil
	}
	u, err := url.Parse(s.Broker)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("mqtt.broker must be a URL such as tcp://host:1883")
	}
	if s.Topic == "" || strings.ContainsAny(s.Topic, "#+") {
		return fmt.Errorf("mqtt.topic must be a non-empty topic without wildcards")
	}
	return nil
}

func validateHistorySettings(s *HistorySettings) error {
	if !s.Enabled {
		return nil
	}
	if s.Path == "" {
		return fmt.Errorf("history.path is required when history is enabled")
	}
	if s.Limit <= 0 {
		return fmt.Errorf("history.limit must be positive")
	}
	return nil
}
