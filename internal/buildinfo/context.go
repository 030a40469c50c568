// Package buildinfo holds build-time metadata injected at link time.
package buildinfo

// UnknownValue is reported for metadata that was not set at build time.
const UnknownValue = "unknown"

// Set with -ldflags "-X github.com/rsamf/mink/internal/buildinfo.version=..."
var (
	version   string
	buildDate string
	commit    string
)

// BuildInfo provides an interface for accessing build-time metadata.
type BuildInfo interface {
	// Version returns the build version string
	Version() string
	// BuildDate returns the build date string
	BuildDate() string
	// Commit returns the source revision
	Commit() string
}

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	version   string
	buildDate string
	commit    string
}

// NewContext creates a Context from explicit values.
func NewContext(version, buildDate, commit string) *Context {
	return &Context{version: version, buildDate: buildDate, commit: commit}
}

// Current returns the metadata linked into this binary.
func Current() *Context {
	return NewContext(version, buildDate, commit)
}

func orUnknown(s string) string {
	if s == "" {
		return UnknownValue
	}
	return s
}

// Version implements BuildInfo.
func (c *Context) Version() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.version)
}

// BuildDate implements BuildInfo.
func (c *Context) BuildDate() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.buildDate)
}

// Commit implements BuildInfo.
func (c *Context) Commit() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.commit)
}
