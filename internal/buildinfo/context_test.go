package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContext_Getters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                    string
		ctx                     *Context
		version, date, revision string
	}{
		{"nil context", nil, UnknownValue, UnknownValue, UnknownValue},
		{"empty values", NewContext("", "", ""), UnknownValue, UnknownValue, UnknownValue},
		{"release", NewContext("1.2.3", "2026-01-05T10:30:00Z", "9f1c2ab"), "1.2.3", "2026-01-05T10:30:00Z", "9f1c2ab"},
		{"pre-release", NewContext("1.0.0-beta.1", "", "abc"), "1.0.0-beta.1", UnknownValue, "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.version, tt.ctx.Version())
			assert.Equal(t, tt.date, tt.ctx.BuildDate())
			assert.Equal(t, tt.revision, tt.ctx.Commit())
		})
	}
}

func TestCurrent_ImplementsBuildInfo(t *testing.T) {
	t.Parallel()

	var info BuildInfo = Current()
	assert.NotEmpty(t, info.Version())
}
