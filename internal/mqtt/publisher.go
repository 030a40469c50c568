package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rsamf/mink/internal/datastore"
	"github.com/rsamf/mink/internal/errors"
	"github.com/rsamf/mink/internal/logger"
	"github.com/rsamf/mink/internal/observability/metrics"
)

// Message is the payload published when a job reaches a terminal status.
// Collections are reported as counts; clients fetch the job for content.
type Message struct {
	JobID            string `json:"job_id"`
	JobStatus        string `json:"job_status"`
	MeetingID        uint   `json:"meeting_id"`
	TranscriptEvents int    `json:"transcript_events"`
	OCREvents        int    `json:"ocr_events"`
	Notes            int    `json:"notes"`
	Reason           string `json:"reason,omitempty"`
}

// NewMessage summarizes job.
func NewMessage(job *datastore.Job) Message {
	return Message{
		JobID:            job.JobID,
		JobStatus:        string(job.JobStatus),
		MeetingID:        job.MeetingID,
		TranscriptEvents: len(job.TranscriptEvents),
		OCREvents:        len(job.OCREvents),
		Notes:            len(job.IntelligentNotes),
		Reason:           job.FailureReason,
	}
}

// Publisher sends job status messages through a Client.
type Publisher struct {
	client  Client
	prefix  string
	metrics *metrics.NotifyMetrics
}

// NewPublisher returns a Publisher writing below topicPrefix, or
// DefaultTopicPrefix when empty. m may be nil.
func NewPublisher(client Client, topicPrefix string, m *metrics.NotifyMetrics) *Publisher {
	prefix := strings.TrimRight(topicPrefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &Publisher{client: client, prefix: prefix, metrics: m}
}

// Topic returns the topic for jobID.
func (p *Publisher) Topic(jobID string) string {
	return p.prefix + "/" + jobID
}

// Notify publishes the status of job. A disconnected client gets one
// reconnect attempt first.
func (p *Publisher) Notify(ctx context.Context, job *datastore.Job) error {
	payload, err := json.Marshal(NewMessage(job))
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryMQTTPublish).
			JobContext(job.JobID).
			Build()
	}

	if !p.client.IsConnected() {
		if err := p.client.Connect(ctx); err != nil {
			log.Warn("MQTT reconnect before publish failed",
				logger.String("job_id", job.JobID),
				logger.Error(err))
		}
	}

	start := time.Now()
	err = p.client.Publish(ctx, p.Topic(job.JobID), payload)
	p.metrics.ObserveDelivery(metrics.ChannelMQTT, string(job.JobStatus), time.Since(start), len(payload), err)
	if err != nil {
		return err
	}
	log.Debug("Job status published",
		logger.String("job_id", job.JobID),
		logger.String("status", string(job.JobStatus)))
	return nil
}

// Close disconnects the underlying client.
func (p *Publisher) Close() {
	p.client.Disconnect()
}
