// Package notify delivers terminal job statuses to chat and push services
// through shoutrrr, and fans a status out to several notifiers.
package notify

import (
	"context"
	"fmt"
	"io"
	stdlog "log"
	"slices"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/rsamf/mink/internal/conf"
	"github.com/rsamf/mink/internal/datastore"
	"github.com/rsamf/mink/internal/errors"
	"github.com/rsamf/mink/internal/logger"
	"github.com/rsamf/mink/internal/observability/metrics"
)

// Sender is the part of a shoutrrr router used here.
type Sender interface {
	Send(message string, params *stypes.Params) []error
}

// ShoutrrrNotifier sends one message per terminal job to every configured
// service url.
type ShoutrrrNotifier struct {
	sender   Sender
	statuses []datastore.JobStatus
	metrics  *metrics.NotifyMetrics
	log      logger.Logger
}

// NewShoutrrrNotifier builds a router for settings.URLs. Url errors are
// redacted since service urls embed tokens. m may be nil.
func NewShoutrrrNotifier(settings *conf.NotifySettings, m *metrics.NotifyMetrics, log logger.Logger) (*ShoutrrrNotifier, error) {
	if len(settings.URLs) == 0 {
		return nil, errors.Newf("no notification urls configured").
			Category(errors.CategoryConfiguration).
			Build()
	}
	router, err := shoutrrr.CreateSender(settings.URLs...)
	if err != nil {
		return nil, errors.Newf("invalid notification url: %s", logger.RedactSensitiveData(err.Error())).
			Category(errors.CategoryConfiguration).
			Context("urls", len(settings.URLs)).
			Build()
	}
	if settings.Timeout > 0 {
		router.Timeout = settings.Timeout
	}
	router.SetLogger(stdlog.New(io.Discard, "", 0))
	return newShoutrrrNotifier(router, settings.Statuses, m, log), nil
}

func newShoutrrrNotifier(sender Sender, statuses []string, m *metrics.NotifyMetrics, log logger.Logger) *ShoutrrrNotifier {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	n := &ShoutrrrNotifier{sender: sender, metrics: m, log: log}
	for _, s := range statuses {
		n.statuses = append(n.statuses, datastore.JobStatus(strings.ToLower(s)))
	}
	return n
}

// Notify sends the status of job unless it is filtered out.
func (n *ShoutrrrNotifier) Notify(ctx context.Context, job *datastore.Job) error {
	if len(n.statuses) > 0 && !slices.Contains(n.statuses, job.JobStatus) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	title, body := Message(job)
	params := stypes.Params{}
	params.SetTitle(title)

	start := time.Now()
	var failed []error
	for _, err := range n.sender.Send(body, &params) {
		if err != nil {
			failed = append(failed, errors.NewStd(logger.RedactSensitiveData(err.Error())))
		}
	}
	var err error
	if len(failed) > 0 {
		err = errors.New(errors.Join(failed...)).
			Category(errors.CategoryNotification).
			JobContext(job.JobID).
			Context("failed_services", len(failed)).
			Build()
	}
	n.metrics.ObserveDelivery(metrics.ChannelShoutrrr, string(job.JobStatus), time.Since(start), len(body), err)
	if err != nil {
		return err
	}
	n.log.Debug("job status notification sent",
		logger.String("job_id", job.JobID),
		logger.String("status", string(job.JobStatus)))
	return nil
}

// Message renders the title and body sent for job.
func Message(job *datastore.Job) (title, body string) {
	switch job.JobStatus {
	case datastore.JobCompleted:
		title = "mink: meeting processed"
		body = fmt.Sprintf("Job %s completed: %d transcript events, %d on-screen events, %d notes.",
			job.JobID, len(job.TranscriptEvents), len(job.OCREvents), len(job.IntelligentNotes))
	case datastore.JobFailed:
		title = "mink: job failed"
		body = fmt.Sprintf("Job %s failed", job.JobID)
		if job.FailureReason != "" {
			body += ": " + job.FailureReason
		}
		body += "."
	default:
		title = "mink: job " + string(job.JobStatus)
		body = fmt.Sprintf("Job %s is %s.", job.JobID, job.JobStatus)
	}
	return title, body
}
