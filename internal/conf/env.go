// env.go - environment variable configuration and validation
package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "MINK"

// envBinding holds metadata for an explicit environment variable binding.
// Everything else is reachable through MINK_<SECTION>_<KEY> via AutomaticEnv.
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVars   []string           // Environment variable names, first set wins
	Validate  func(string) error // Optional validation function
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"server.port", []string{"MINK_SERVER_PORT", "PORT"}, validateEnvPort},
		{"auth.type", []string{"MINK_AUTH_TYPE"}, validateEnvChoice(AuthNone, AuthStatic)},
		{"auth.keys", []string{"MINK_AUTH_KEYS"}, nil},
		{"casting.api_key", []string{"MINK_CASTING_API_KEY", "ANTHROPIC_API_KEY"}, nil},
		{"casting.enabled", []string{"MINK_CASTING_ENABLED"}, validateEnvBool},
		{"db.provider", []string{"MINK_DB_PROVIDER"}, validateEnvChoice(DBSQLite, DBMySQL, DBPostgres, DBCloudSQL)},
		{"db.password", []string{"MINK_DB_PASSWORD"}, nil},
		{"db.port", []string{"MINK_DB_PORT"}, validateEnvPort},
		{"pipeline.workertimeout", []string{"MINK_PIPELINE_WORKERTIMEOUT"}, validateEnvDuration},
		{"sentry.dsn", []string{"MINK_SENTRY_DSN", "SENTRY_DSN"}, nil},
		{"mqtt.password", []string{"MINK_MQTT_PASSWORD"}, nil},
		{"notify.urls", []string{"MINK_NOTIFY_URLS"}, nil},
	}
}

// bindEnvVars binds the explicit variables and validates any that are set.
// Problems are returned together; binding continues past a bad value.
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		args := append([]string{binding.ConfigKey}, binding.EnvVars...)
		if err := v.BindEnv(args...); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.ConfigKey, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		for _, name := range binding.EnvVars {
			value := os.Getenv(name)
			if value == "" {
				continue
			}
			if err := binding.Validate(value); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s value %q: %v", name, value, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("must be between 1 and 65535")
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("must be a duration such as 30m: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validateEnvChoice(choices ...string) func(string) error {
	return func(value string) error {
		for _, c := range choices {
			if strings.EqualFold(value, c) {
				return nil
			}
		}
		return fmt.Errorf("must be one of %s", strings.Join(choices, ", "))
	}
}
