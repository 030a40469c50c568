// config.go: settings struct for mink and the loader that builds it.
package conf

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rsamf/mink/internal/errors"
	"github.com/rsamf/mink/internal/logger"
	"github.com/rsamf/mink/internal/secrets"
)

//go:embed config.yaml
var defaultConfigYAML []byte

// Auth types
const (
	AuthNone   = "none"
	AuthStatic = "static"
)

// Database providers
const (
	DBSQLite   = "sqlite"
	DBMySQL    = "mysql"
	DBPostgres = "postgres"
	DBCloudSQL = "cloudsql" // alias of postgres
)

// BackendNone disables an extraction backend
const BackendNone = "none"

// ServerSettings configures the HTTP listener.
type ServerSettings struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"readtimeout"`
	WriteTimeout time.Duration `yaml:"writetimeout"`
	IdleTimeout  time.Duration `yaml:"idletimeout"`
	BodyLimit    string        `yaml:"bodylimit"`   // echo size notation, e.g. "2G"
	CORSOrigins  []string      `yaml:"corsorigins"` // empty allows any origin
	Debug        bool          `yaml:"debug"`
}

// AuthSettings configures the X-API-Key gate.
type AuthSettings struct {
	Type string   `yaml:"type"` // none or static
	Keys []string `yaml:"keys"`
}

// StorageSettings configures where uploads are written.
type StorageSettings struct {
	UploadDir      string        `yaml:"uploaddir"`
	UploadIndexTTL time.Duration `yaml:"uploadindexttl"` // how long job_id -> path lookups stay cached
}

// TranscriptSettings configures the speech-to-text backend.
type TranscriptSettings struct {
	Backend   string        `yaml:"backend"`  // whisper or none
	Endpoint  string        `yaml:"endpoint"` // OpenAI compatible transcription endpoint
	APIKey    string        `yaml:"api_key" mapstructure:"api_key"`
	ModelSize string        `yaml:"model_size" mapstructure:"model_size"`
	Precision string        `yaml:"precision"`
	BatchSize int           `yaml:"batch_size" mapstructure:"batch_size"`
	Language  string        `yaml:"language"`
	Timeout   time.Duration `yaml:"timeout"`
}

// OCRSettings configures shot detection and on-screen text recognition.
type OCRSettings struct {
	Model          string        `yaml:"model"` // tesseract, easyocr, lightonocr or none
	Lang           []string      `yaml:"lang"`
	Endpoint       string        `yaml:"endpoint"` // easyocr or lightonocr server
	RemoteModel    string        `yaml:"remote_model" mapstructure:"remote_model"`
	MaxTokens      int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	TesseractPath  string        `yaml:"tesseractpath"`
	FFmpegPath     string        `yaml:"ffmpegpath"`
	FFprobePath    string        `yaml:"ffprobepath"`
	SceneThreshold float64       `yaml:"scenethreshold"`
	MinConfidence  float64       `yaml:"minconfidence"`
	MaxScenes      int           `yaml:"maxscenes"` // 0 means unlimited
	Timeout        time.Duration `yaml:"timeout"`
}

// NoteType is one kind of LLM authored note.
type NoteType struct {
	Title     string `yaml:"title"`
	Prompt    string `yaml:"prompt"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// CastingSettings configures LLM note synthesis.
type CastingSettings struct {
	Enabled           bool          `yaml:"enabled"`
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	APIKey            string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL           string        `yaml:"baseurl"`
	Types             []NoteType    `yaml:"types"`
	Concurrency       int           `yaml:"concurrency"`
	RequestsPerSecond float64       `yaml:"requestspersecond"`
	Timeout           time.Duration `yaml:"timeout"`
}

// Configured reports whether notes should be cast after extraction.
func (c *CastingSettings) Configured() bool {
	return c.Enabled && c.APIKey != "" && len(c.Types) > 0
}

// DBSettings selects and configures the relational store.
type DBSettings struct {
	Provider      string        `yaml:"provider"`
	Path          string        `yaml:"path"` // sqlite file
	User          string        `yaml:"user"`
	Password      string        `yaml:"password"`
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	Name          string        `yaml:"name"`
	SSLMode       string        `yaml:"sslmode"` // postgres only
	SlowThreshold time.Duration `yaml:"slowthreshold"`
	Debug         bool          `yaml:"debug"`
}

// Networked reports whether the provider needs host credentials.
func (d *DBSettings) Networked() bool {
	switch strings.ToLower(d.Provider) {
	case DBMySQL, DBPostgres, DBCloudSQL:
		return true
	default:
		return false
	}
}

// QueueSettings sizes the in-process job queue.
type QueueSettings struct {
	Workers int `yaml:"workers"`
	Size    int `yaml:"size"`
}

// PipelineSettings configures job execution.
type PipelineSettings struct {
	WorkerTimeout   time.Duration `yaml:"workertimeout"`
	Queue           QueueSettings `yaml:"queue"`
	FailInterrupted bool          `yaml:"failinterrupted"` // mark jobs left queued by a previous process as failed
	ShutdownTimeout time.Duration `yaml:"shutdowntimeout"`
}

// TelemetrySettings configures the prometheus listener.
type TelemetrySettings struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// SentrySettings configures optional error reporting.
type SentrySettings struct {
	Enabled     bool    `yaml:"enabled"`
	DSN         string  `yaml:"dsn"`
	Environment string  `yaml:"environment"`
	SampleRate  float64 `yaml:"samplerate"`
}

// MQTTSettings configures job status notifications.
type MQTTSettings struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"clientid"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"` // prefix, job id is appended
	QoS      int    `yaml:"qos"`
	Retain   bool   `yaml:"retain"`
}

// NotifySettings configures chat and push notifications of terminal job
// statuses. URLs use shoutrrr service syntax, e.g. slack://token@channel.
type NotifySettings struct {
	Enabled bool          `yaml:"enabled"`
	URLs    []string      `yaml:"urls"`
	Timeout time.Duration `yaml:"timeout"`
	// Statuses limits delivery to these job statuses; empty sends all.
	Statuses []string `yaml:"statuses"`
}

// Settings is the complete, immutable runtime configuration. It is built
// once by Load and handed to components by value or by section; nothing
// mutates it afterwards.
type Settings struct {
	Debug      bool                 `yaml:"debug"`
	Server     ServerSettings       `yaml:"server"`
	Auth       AuthSettings         `yaml:"auth"`
	Storage    StorageSettings      `yaml:"storage"`
	Transcript TranscriptSettings   `yaml:"transcript"`
	OCR        OCRSettings          `yaml:"ocr"`
	Casting    CastingSettings      `yaml:"casting"`
	DB         DBSettings           `yaml:"db"`
	Pipeline   PipelineSettings     `yaml:"pipeline"`
	Logging    logger.LoggingConfig `yaml:"logging"`
	Telemetry  TelemetrySettings    `yaml:"telemetry"`
	Sentry     SentrySettings       `yaml:"sentry"`
	MQTT       MQTTSettings         `yaml:"mqtt"`
	Notify     NotifySettings       `yaml:"notify"`

	// ConfigFile is the file the settings were read from, empty for embedded defaults.
	ConfigFile string `yaml:"-" mapstructure:"-"`
}

// PipelineReady reports whether ingest can schedule work. A job accepted
// while this returns an error is persisted as failed and never scheduled.
func (s *Settings) PipelineReady() error {
	if s == nil {
		return errors.Newf("settings not loaded").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if s.Storage.UploadDir == "" {
		return errors.Newf("storage.uploaddir is not set").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if isDisabled(s.Transcript.Backend) && isDisabled(s.OCR.Model) {
		return errors.Newf("no extraction backend configured").
			Category(errors.CategoryConfiguration).
			Context("transcript_backend", s.Transcript.Backend).
			Context("ocr_model", s.OCR.Model).
			Build()
	}
	return nil
}

func isDisabled(backend string) bool {
	return backend == "" || strings.EqualFold(backend, BackendNone)
}

// Override adjusts freshly unmarshaled settings, before normalization and
// validation. Command line flags reach Settings this way.
type Override func(*Settings)

// WithDebug enables debug mode and debug level logging.
func WithDebug() Override {
	return func(s *Settings) {
		s.Debug = true
		s.Logging.DefaultLevel = "debug"
	}
}

// WithListenAddress replaces server.host when host is not empty and
// server.port when port is not zero.
func WithListenAddress(host string, port int) Override {
	return func(s *Settings) {
		if host != "" {
			s.Server.Host = host
		}
		if port != 0 {
			s.Server.Port = port
		}
	}
}

// Load reads defaults, the config file and MINK_* environment variables
// into a new Settings, then applies overrides. An empty configPath searches
// the default locations and falls back to the embedded defaults.
func Load(configPath string, overrides ...Override) (*Settings, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaultConfig(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		for _, path := range DefaultConfigPaths() {
			v.AddConfigPath(path)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, errors.New(fmt.Errorf("error reading config file: %w", err)).
				Category(errors.CategoryConfiguration).
				Context("config_path", configPath).
				Build()
		}
		if err := v.ReadConfig(bytes.NewReader(defaultConfigYAML)); err != nil {
			return nil, fmt.Errorf("error reading embedded default config: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvVars(v); err != nil {
		GetLogger().Warn("environment configuration issues", logger.Error(err))
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}
	settings.ConfigFile = v.ConfigFileUsed()
	for _, override := range overrides {
		override(settings)
	}
	normalize(settings)
	if err := resolveSecrets(settings); err != nil {
		return nil, fmt.Errorf("error resolving secrets: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

// normalize applies aliases and canonical casing after unmarshaling.
func normalize(s *Settings) {
	s.DB.Provider = strings.ToLower(s.DB.Provider)
	if s.DB.Provider == DBCloudSQL {
		s.DB.Provider = DBPostgres
	}
	s.Auth.Type = strings.ToLower(s.Auth.Type)
	s.OCR.Model = strings.ToLower(s.OCR.Model)
	s.Transcript.Backend = strings.ToLower(s.Transcript.Backend)
	if s.Debug && s.Logging.DefaultLevel == "" {
		s.Logging.DefaultLevel = "debug"
	}
}

// resolveSecrets expands ${VAR} references and file: paths in credential
// fields.
func resolveSecrets(s *Settings) error {
	fields := map[string]*string{
		"transcript.api_key": &s.Transcript.APIKey,
		"casting.api_key":    &s.Casting.APIKey,
		"db.password":        &s.DB.Password,
		"sentry.dsn":         &s.Sentry.DSN,
		"mqtt.password":      &s.MQTT.Password,
	}
	for i := range s.Auth.Keys {
		fields[fmt.Sprintf("auth.keys[%d]", i)] = &s.Auth.Keys[i]
	}
	for i := range s.Notify.URLs {
		fields[fmt.Sprintf("notify.urls[%d]", i)] = &s.Notify.URLs[i]
	}
	return secrets.ResolveAll(fields)
}

// DefaultConfigPaths returns the directories searched for config.yaml.
func DefaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "mink"))
	}
	return append(paths, "/etc/mink")
}

// DefaultConfig returns the embedded default config.yaml.
func DefaultConfig() []byte {
	return bytes.Clone(defaultConfigYAML)
}

// GetLogger returns the config package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
