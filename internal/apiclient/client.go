// Package apiclient talks to a running mink server. It backs the submit and
// status commands.
package apiclient

import (
	"context"
	"io"
	"mime/multipart"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rsamf/mink/internal/api"
	"github.com/rsamf/mink/internal/api/middleware"
	"github.com/rsamf/mink/internal/datastore"
	"github.com/rsamf/mink/internal/errors"
	"github.com/rsamf/mink/internal/httpclient"
)

// DefaultBaseURL is where a local server listens by default.
const DefaultBaseURL = "http://localhost:8000"

// uploadTimeout bounds requests without a deadline. Meeting recordings run
// to several gigabytes.
const uploadTimeout = 2 * time.Hour

// Client is a mink API client.
type Client struct {
	base   string
	apiKey string
	http   *httpclient.Client
}

// New creates a client for the server at baseURL. A nil hc uses a default
// client with uploadTimeout as its deadline.
func New(baseURL, apiKey string, hc *httpclient.Client) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Newf("invalid server url %q", baseURL).
			Category(errors.CategoryConfiguration).
			Build()
	}
	if hc == nil {
		cfg := httpclient.DefaultConfig()
		cfg.DefaultTimeout = uploadTimeout
		hc = httpclient.New(&cfg)
	}
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		apiKey: apiKey,
		http:   hc,
	}, nil
}

func (c *Client) headers() map[string]string {
	if c.apiKey == "" {
		return nil
	}
	return map[string]string{middleware.APIKeyHeader: c.apiKey}
}

// Submit uploads the video at path and returns the new job handle. The file
// is streamed, never held in memory.
func (c *Client) Submit(ctx context.Context, path string) (*api.JobHandle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer func() { _ = f.Close() }()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	var handle api.JobHandle
	err = c.http.PostMultipart(ctx, c.base+"/take-notes", mw.FormDataContentType(), pr, c.headers(), &handle)
	// unblocks the writer if the request ended early
	_ = pr.Close()
	if err != nil {
		return nil, err
	}
	return &handle, nil
}

// Job fetches the job with its collections.
func (c *Client) Job(ctx context.Context, jobID string) (*datastore.Job, error) {
	var job datastore.Job
	if err := c.http.GetJSON(ctx, c.base+"/job/"+url.PathEscape(jobID), c.headers(), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Wait polls the job every interval until it leaves queued or ctx is done.
func (c *Client) Wait(ctx context.Context, jobID string, interval time.Duration) (*datastore.Job, error) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := c.Job(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.JobStatus.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}
