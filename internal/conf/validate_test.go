package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validSettings() *Settings {
	return &Settings{
		Server:     ServerSettings{Port: 8000},
		Auth:       AuthSettings{Type: AuthNone},
		Storage:    StorageSettings{UploadDir: "/tmp/mink"},
		Transcript: TranscriptSettings{Backend: "whisper", Endpoint: "http://localhost:9000/v1/audio/transcriptions"},
		OCR:        OCRSettings{Model: "tesseract", SceneThreshold: 0.3},
		DB:         DBSettings{Provider: DBSQLite, Path: "mink.db"},
		Pipeline:   PipelineSettings{WorkerTimeout: time.Minute, Queue: QueueSettings{Workers: 1, Size: 1}},
	}
}

func TestValidateSettings(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Settings)
		wantErrors int
	}{
		{"valid", func(*Settings) {}, 0},
		{"bad port", func(s *Settings) { s.Server.Port = 70000 }, 1},
		{"static auth without keys", func(s *Settings) { s.Auth = AuthSettings{Type: AuthStatic, Keys: []string{" "}} }, 1},
		{"unknown auth type", func(s *Settings) { s.Auth.Type = "oauth" }, 1},
		{"unknown ocr model is tolerated", func(s *Settings) { s.OCR.Model = "easyocr" }, 0},
		{"unknown transcript backend", func(s *Settings) { s.Transcript.Backend = "vosk" }, 1},
		{"whisper without endpoint", func(s *Settings) { s.Transcript.Endpoint = "" }, 1},
		{"lightonocr needs endpoint", func(s *Settings) { s.OCR.Model = "lightonocr" }, 1},
		{"scene threshold range", func(s *Settings) { s.OCR.SceneThreshold = 1.5 }, 1},
		{"mysql missing credentials", func(s *Settings) { s.DB = DBSettings{Provider: DBMySQL} }, 3},
		{"unknown db provider", func(s *Settings) { s.DB.Provider = "oracle" }, 1},
		{"zero worker timeout", func(s *Settings) { s.Pipeline.WorkerTimeout = 0 }, 1},
		{"empty queue", func(s *Settings) { s.Pipeline.Queue = QueueSettings{} }, 2},
		{"mqtt without broker", func(s *Settings) { s.MQTT = MQTTSettings{Enabled: true, Topic: "t"} }, 1},
		{"sentry without dsn", func(s *Settings) { s.Sentry.Enabled = true }, 1},
		{"notify without urls", func(s *Settings) { s.Notify = NotifySettings{Enabled: true} }, 1},
		{"notify bad url and status", func(s *Settings) {
			s.Notify = NotifySettings{Enabled: true, URLs: []string{"hooks.slack.com"}, Statuses: []string{"queued"}}
		}, 2},
		{"notify disabled ignores urls", func(s *Settings) { s.Notify.URLs = []string{"nonsense"} }, 0},
		{
			"casting incomplete",
			func(s *Settings) {
				s.Casting = CastingSettings{
					Enabled:     true,
					Provider:    "anthropic",
					Model:       "m",
					BaseURL:     "https://api.anthropic.com",
					Concurrency: 1,
					Types:       []NoteType{{Title: "Summary"}},
				}
			},
			3, // api key, prompt, max_tokens
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)

			err := ValidateSettings(s)
			if tt.wantErrors == 0 {
				assert.NoError(t, err)
				return
			}

			var ve ValidationError
			if assert.ErrorAs(t, err, &ve) {
				assert.Len(t, ve.Errors, tt.wantErrors, "errors: %v", ve.Errors)
			}
		})
	}
}

func TestValidateEnvValues(t *testing.T) {
	assert.NoError(t, validateEnvPort("8000"))
	assert.Error(t, validateEnvPort("0"))
	assert.Error(t, validateEnvPort("http"))
	assert.NoError(t, validateEnvDuration("45m"))
	assert.Error(t, validateEnvDuration("-1s"))
	assert.NoError(t, validateEnvBool("true"))
	assert.Error(t, validateEnvBool("yes please"))
	assert.NoError(t, validateEnvChoice(DBSQLite, DBMySQL)("MySQL"))
	assert.Error(t, validateEnvChoice(DBSQLite, DBMySQL)("oracle"))
}
