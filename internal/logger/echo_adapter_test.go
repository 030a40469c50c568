package logger

import (
	"bytes"
	"testing"
	"time"

	echolog "github.com/labstack/gommon/log"
	"github.com/stretchr/testify/assert"
)

func TestEchoAdapter_RoutesLevels(t *testing.T) {
	buf := &bytes.Buffer{}
	a := NewEchoAdapter(NewSlogLogger(buf, LogLevelDebug, time.UTC))

	a.Debug("quiet")
	a.Infof("listening on %s", ":8000")
	a.Warn("slow client")
	a.Errorj(echolog.JSON{"path": "/take-notes"})

	out := buf.String()
	assert.NotContains(t, out, "quiet", "adapter starts at INFO")
	assert.Contains(t, out, "msg=\"listening on :8000\"")
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "/take-notes")
}

func TestEchoAdapter_SetLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	a := NewEchoAdapter(NewSlogLogger(buf, LogLevelDebug, time.UTC))

	a.SetLevel(echolog.ERROR)
	assert.Equal(t, echolog.ERROR, a.Level())
	a.Info("dropped")
	a.Warn("dropped")
	assert.Empty(t, buf.String())

	a.SetLevel(echolog.DEBUG)
	a.Debug("kept")
	assert.Contains(t, buf.String(), "msg=kept")
}

func TestEchoAdapter_PanicLogsFirst(t *testing.T) {
	buf := &bytes.Buffer{}
	a := NewEchoAdapter(NewSlogLogger(buf, LogLevelInfo, time.UTC))

	assert.PanicsWithValue(t, "echo: bind failed", func() { a.Fatalf("bind %s", "failed") })
	assert.Contains(t, buf.String(), "bind failed")
}

func TestEchoAdapter_NilLogger(t *testing.T) {
	a := NewEchoAdapter(nil)
	a.Error("nowhere")
	assert.Equal(t, "", a.Prefix())
}
