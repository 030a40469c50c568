// Package secrets resolves credential values from the environment or from
// mounted secret files (Docker and Kubernetes secrets) so they never have to
// be written into config.yaml.
//
// A value is one of:
//
//	literal              used as is
//	${VAR}               environment variable, error if unset
//	${VAR:-fallback}     environment variable with fallback
//	file:/run/secrets/x  file contents, trailing newlines trimmed
package secrets

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rsamf/mink/internal/errors"
	"github.com/rsamf/mink/internal/logger"
)

// FilePrefix marks a value read from a file.
const FilePrefix = "file:"

// maxFileSize caps secret files; secrets are tokens, not documents.
const maxFileSize = 64 * 1024

// Expand substitutes ${VAR} and ${VAR:-fallback} references in s.
func Expand(s string) (string, error) {
	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if value := os.Getenv(name); value != "" {
			return value
		}
		if !hasFallback {
			missing = append(missing, name)
		}
		return fallback
	})
	if len(missing) > 0 {
		return "", errors.Newf("missing environment variable(s): %s", strings.Join(missing, ", ")).
			Category(errors.CategoryConfiguration).
			Build()
	}
	return expanded, nil
}

// ReadFile reads a secret file. Files readable by group or others are
// accepted with a warning.
func ReadFile(path string) (string, error) {
	clean := filepath.Clean(path)
	info, err := os.Stat(clean)
	if err != nil {
		return "", errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("secret_file", clean).
			Build()
	}
	if !info.Mode().IsRegular() {
		return "", errors.Newf("secret path is not a regular file: %s", clean).
			Category(errors.CategoryConfiguration).
			Build()
	}
	if info.Size() > maxFileSize {
		return "", errors.Newf("secret file too large (max %d bytes): %s", maxFileSize, clean).
			Category(errors.CategoryConfiguration).
			Build()
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Global().Module("secrets").Warn("secret file is readable by group or others",
			logger.String("path", clean),
			logger.String("mode", perm.String()))
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return "", errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("secret_file", clean).
			Build()
	}
	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", errors.Newf("secret file is empty: %s", clean).
			Category(errors.CategoryConfiguration).
			Build()
	}
	return secret, nil
}

// Resolve returns the secret value described by value.
func Resolve(value string) (string, error) {
	if path, ok := strings.CutPrefix(value, FilePrefix); ok {
		return ReadFile(path)
	}
	if !strings.Contains(value, "$") {
		return value, nil
	}
	return Expand(value)
}

// ResolveAll resolves each field in place. Errors name the field, never the
// value.
func ResolveAll(fields map[string]*string) error {
	var errs []error
	for name, ptr := range fields {
		if ptr == nil || *ptr == "" {
			continue
		}
		resolved, err := Resolve(*ptr)
		if err != nil {
			errs = append(errs, errors.Newf("%s: %v", name, err).
				Category(errors.CategoryConfiguration).
				Build())
			continue
		}
		*ptr = resolved
	}
	return errors.Join(errs...)
}
