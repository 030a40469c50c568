// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"strings"
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

	validators := []func(*Settings) []string{
		validateServerSettings,
		validateAuthSettings,
		validateExtractionSettings,
		validateCastingSettings,
		validateDBSettings,
		validatePipelineSettings,
		validateMQTTSettings,
		validateSentrySettings,
		validateNotifySettings,
	}
	for _, validate := range validators {
		ve.Errors = append(ve.Errors, validate(settings)...)
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateServerSettings(s *Settings) []string {
	var errs []string
	if s.Server.Port < 1 || s.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d must be between 1 and 65535", s.Server.Port))
	}
	if s.Server.ReadTimeout < 0 || s.Server.WriteTimeout < 0 || s.Server.IdleTimeout < 0 {
		errs = append(errs, "server timeouts must not be negative")
	}
	return errs
}

func validateAuthSettings(s *Settings) []string {
	switch s.Auth.Type {
	case AuthNone, "":
		return nil
	case AuthStatic:
		for _, k := range s.Auth.Keys {
			if strings.TrimSpace(k) != "" {
				return nil
			}
		}
		return []string{"auth.keys must contain at least one key when auth.type is static"}
	default:
		return []string{fmt.Sprintf("auth.type %q is not supported (none, static)", s.Auth.Type)}
	}
}

// validateExtractionSettings checks only what would make a selected backend
// unusable. An unknown OCR model is tolerated here and logged at run time.
func validateExtractionSettings(s *Settings) []string {
	var errs []string

	switch s.Transcript.Backend {
	case "whisper":
		if err := validateURL(s.Transcript.Endpoint); err != nil {
			errs = append(errs, fmt.Sprintf("transcript.endpoint: %v", err))
		}
		if s.Transcript.BatchSize < 0 {
			errs = append(errs, "transcript.batch_size must not be negative")
		}
	case BackendNone, "":
	default:
		errs = append(errs, fmt.Sprintf("transcript.backend %q is not supported (whisper, none)", s.Transcript.Backend))
	}

	if s.OCR.Model == "lightonocr" || s.OCR.Model == "easyocr" {
		if err := validateURL(s.OCR.Endpoint); err != nil {
			errs = append(errs, fmt.Sprintf("ocr.endpoint: %v", err))
		}
	}
	if s.OCR.SceneThreshold <= 0 || s.OCR.SceneThreshold >= 1 {
		errs = append(errs, fmt.Sprintf("ocr.scenethreshold %.2f must be between 0 and 1", s.OCR.SceneThreshold))
	}
	if s.OCR.MinConfidence < 0 || s.OCR.MinConfidence > 1 {
		errs = append(errs, "ocr.minconfidence must be between 0 and 1")
	}

	return errs
}

func validateCastingSettings(s *Settings) []string {
	if !s.Casting.Enabled {
		return nil
	}

	var errs []string
	if s.Casting.Provider != "anthropic" {
		errs = append(errs, fmt.Sprintf("casting.provider %q is not supported (anthropic)", s.Casting.Provider))
	}
	if s.Casting.APIKey == "" {
		errs = append(errs, "casting.api_key is required when casting is enabled")
	}
	if s.Casting.Model == "" {
		errs = append(errs, "casting.model is required when casting is enabled")
	}
	if len(s.Casting.Types) == 0 {
		errs = append(errs, "casting.types must list at least one note type")
	}
	for i, nt := range s.Casting.Types {
		if nt.Title == "" || nt.Prompt == "" {
			errs = append(errs, fmt.Sprintf("casting.types[%d] needs a title and a prompt", i))
		}
		if nt.MaxTokens <= 0 {
			errs = append(errs, fmt.Sprintf("casting.types[%d].max_tokens must be positive", i))
		}
	}
	if err := validateURL(s.Casting.BaseURL); err != nil {
		errs = append(errs, fmt.Sprintf("casting.baseurl: %v", err))
	}
	if s.Casting.Concurrency < 1 {
		errs = append(errs, "casting.concurrency must be at least 1")
	}
	return errs
}

func validateDBSettings(s *Settings) []string {
	switch s.DB.Provider {
	case DBSQLite, "":
		if s.DB.Path == "" {
			return []string{"db.path is required for sqlite"}
		}
		return nil
	case DBMySQL, DBPostgres:
		var errs []string
		if s.DB.Host == "" {
			errs = append(errs, "db.host is required for "+s.DB.Provider)
		}
		if s.DB.User == "" {
			errs = append(errs, "db.user is required for "+s.DB.Provider)
		}
		if s.DB.Name == "" {
			errs = append(errs, "db.name is required for "+s.DB.Provider)
		}
		if s.DB.Port < 0 || s.DB.Port > 65535 {
			errs = append(errs, fmt.Sprintf("db.port %d is out of range", s.DB.Port))
		}
		return errs
	default:
		return []string{fmt.Sprintf("db.provider %q is not supported (sqlite, mysql, postgres)", s.DB.Provider)}
	}
}

func validatePipelineSettings(s *Settings) []string {
	var errs []string
	if s.Pipeline.WorkerTimeout <= 0 {
		errs = append(errs, "pipeline.workertimeout must be positive")
	}
	if s.Pipeline.Queue.Workers < 1 {
		errs = append(errs, "pipeline.queue.workers must be at least 1")
	}
	if s.Pipeline.Queue.Size < 1 {
		errs = append(errs, "pipeline.queue.size must be at least 1")
	}
	return errs
}

func validateMQTTSettings(s *Settings) []string {
	if !s.MQTT.Enabled {
		return nil
	}
	var errs []string
	if s.MQTT.Broker == "" {
		errs = append(errs, "mqtt.broker is required when mqtt is enabled")
	}
	if s.MQTT.Topic == "" {
		errs = append(errs, "mqtt.topic is required when mqtt is enabled")
	}
	if s.MQTT.QoS < 0 || s.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1 or 2")
	}
	return errs
}

func validateSentrySettings(s *Settings) []string {
	if s.Sentry.Enabled && s.Sentry.DSN == "" {
		return []string{"sentry.dsn is required when sentry is enabled"}
	}
	return nil
}

func validateNotifySettings(s *Settings) []string {
	if !s.Notify.Enabled {
		return nil
	}
	var errs []string
	if len(s.Notify.URLs) == 0 {
		errs = append(errs, "notify.urls needs at least one url when notify is enabled")
	}
	for i, raw := range s.Notify.URLs {
		if !strings.Contains(raw, "://") {
			errs = append(errs, fmt.Sprintf("notify.urls[%d] is not a service url", i))
		}
	}
	if s.Notify.Timeout < 0 {
		errs = append(errs, "notify.timeout must not be negative")
	}
	for _, status := range s.Notify.Statuses {
		if status != "completed" && status != "failed" {
			errs = append(errs, fmt.Sprintf("notify.statuses: unknown status %q", status))
		}
	}
	return errs
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host is missing")
	}
	return nil
}
