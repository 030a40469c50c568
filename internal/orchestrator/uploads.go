package orchestrator

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/rsamf/mink/internal/errors"
)

// ErrUploadNotFound is returned when no stored file matches a job id.
var ErrUploadNotFound = errors.NewStd("upload not found")

const (
	defaultIndexTTL = time.Hour
	fallbackName    = "upload"
)

// UploadStore writes uploads as {job_id}_{filename} under one directory and
// finds them again by job id.
type UploadStore struct {
	dir   string
	index *cache.Cache
}

// NewUploadStore creates dir if needed. Paths are indexed in memory for ttl;
// lookups past that fall back to a directory glob.
func NewUploadStore(dir string, ttl time.Duration) (*UploadStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryFileIO).
			Context("upload_dir", dir).
			Build()
	}
	if ttl <= 0 {
		ttl = defaultIndexTTL
	}
	return &UploadStore{
		dir:   dir,
		index: cache.New(ttl, 2*ttl),
	}, nil
}

// Dir returns the upload directory.
func (s *UploadStore) Dir() string {
	return s.dir
}

// SafeName reduces a client supplied filename to a single path element.
func SafeName(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == ".." || name == "/" || name == "" {
		return fallbackName
	}
	return name
}

// Save streams r to {job_id}_{filename} and returns the path and byte count.
// A partially written file is removed.
func (s *UploadStore) Save(jobID, filename string, r io.Reader) (string, int64, error) {
	path := filepath.Join(s.dir, jobID+"_"+SafeName(filename))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", 0, errors.New(err).
			Category(errors.CategoryFileIO).
			JobContext(jobID).
			Context("path", path).
			Build()
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, errors.New(err).
			Category(errors.CategoryFileIO).
			JobContext(jobID).
			Context("path", path).
			Build()
	}

	s.index.SetDefault(jobID, path)
	return path, n, nil
}

// Locate returns the stored upload of jobID.
func (s *UploadStore) Locate(jobID string) (string, error) {
	if v, ok := s.index.Get(jobID); ok {
		path := v.(string)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		s.index.Delete(jobID)
	}

	matches, err := filepath.Glob(filepath.Join(s.dir, jobID+"_*"))
	if err != nil || len(matches) == 0 {
		return "", errors.New(ErrUploadNotFound).
			Category(errors.CategoryFileIO).
			JobContext(jobID).
			Build()
	}
	s.index.SetDefault(jobID, matches[0])
	return matches[0], nil
}

// Remove deletes the stored upload of jobID, if any.
func (s *UploadStore) Remove(jobID string) {
	path, err := s.Locate(jobID)
	if err != nil {
		return
	}
	s.index.Delete(jobID)
	_ = os.Remove(path)
}
