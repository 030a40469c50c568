// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.readtimeout", 5*time.Minute) // uploads are large
	v.SetDefault("server.writetimeout", 60*time.Second)
	v.SetDefault("server.idletimeout", 120*time.Second)
	v.SetDefault("server.bodylimit", "2G")
	v.SetDefault("server.corsorigins", []string{})
	v.SetDefault("server.debug", false)

	v.SetDefault("auth.type", AuthNone)
	v.SetDefault("auth.keys", []string{})

	v.SetDefault("storage.uploaddir", "/tmp/mink")
	v.SetDefault("storage.uploadindexttl", 24*time.Hour)

	v.SetDefault("transcript.backend", "whisper")
	v.SetDefault("transcript.endpoint", "http://localhost:9000/v1/audio/transcriptions")
	v.SetDefault("transcript.api_key", "")
	v.SetDefault("transcript.model_size", "large-v3")
	v.SetDefault("transcript.precision", "float16")
	v.SetDefault("transcript.batch_size", 16)
	v.SetDefault("transcript.language", "")
	v.SetDefault("transcript.timeout", 30*time.Minute)

	v.SetDefault("ocr.model", "tesseract")
	v.SetDefault("ocr.lang", []string{"en"})
	v.SetDefault("ocr.endpoint", "http://localhost:8001/v1/chat/completions")
	v.SetDefault("ocr.remote_model", "lightonai/LightOnOCR-2-1B")
	v.SetDefault("ocr.max_tokens", 1024)
	v.SetDefault("ocr.tesseractpath", "tesseract")
	v.SetDefault("ocr.ffmpegpath", "ffmpeg")
	v.SetDefault("ocr.ffprobepath", "ffprobe")
	v.SetDefault("ocr.scenethreshold", 0.3)
	v.SetDefault("ocr.minconfidence", 0.0)
	v.SetDefault("ocr.maxscenes", 0)
	v.SetDefault("ocr.timeout", 2*time.Minute)

	v.SetDefault("casting.enabled", false)
	v.SetDefault("casting.provider", "anthropic")
	v.SetDefault("casting.model", "claude-sonnet-4-5")
	v.SetDefault("casting.api_key", "")
	v.SetDefault("casting.baseurl", "https://api.anthropic.com")
	v.SetDefault("casting.types", []NoteType{})
	v.SetDefault("casting.concurrency", 2)
	v.SetDefault("casting.requestspersecond", 1.0)
	v.SetDefault("casting.timeout", 5*time.Minute)

	v.SetDefault("db.provider", DBSQLite)
	v.SetDefault("db.path", "mink.db")
	v.SetDefault("db.user", "")
	v.SetDefault("db.password", "")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 0)
	v.SetDefault("db.name", "mink")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.slowthreshold", 500*time.Millisecond)
	v.SetDefault("db.debug", false)

	v.SetDefault("pipeline.workertimeout", 30*time.Minute)
	v.SetDefault("pipeline.queue.workers", 2)
	v.SetDefault("pipeline.queue.size", 64)
	v.SetDefault("pipeline.failinterrupted", true)
	v.SetDefault("pipeline.shutdowntimeout", 30*time.Second)

	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", "logs/mink.log")
	v.SetDefault("logging.file_output.level", "info")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.listen", "0.0.0.0:8090")

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "production")
	v.SetDefault("sentry.samplerate", 1.0)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.clientid", "mink")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic", "mink/jobs")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.retain", false)

	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.urls", []string{})
	v.SetDefault("notify.timeout", 10*time.Second)
	v.SetDefault("notify.statuses", []string{})
}
