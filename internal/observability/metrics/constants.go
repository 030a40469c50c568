// Package metrics provides constants used across metric definitions.
package metrics

import "time"

// Operation names recorded by the pipeline.
const (
	// OpJob is a whole pipeline run, from dequeue to terminal status.
	OpJob = "job"
	// OpIngest is an upload accepted at the HTTP boundary.
	OpIngest = "ingest"
	// OpTranscription is the transcription worker unit.
	OpTranscription = "transcription"
	// OpOCR is the on-screen text worker unit.
	OpOCR = "ocr"
	// OpPersist is the completion transaction.
	OpPersist = "persist"
	// OpCasting is one LLM request for a note type.
	OpCasting = "casting"
	// OpQueueWait is the time a job spent pending in the queue.
	OpQueueWait = "queue_wait"
	// OpNotify is a job status notification.
	OpNotify = "notify"
)

// Status label values.
const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusRejected  = "rejected"
)

// Histogram bucket configuration constants.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms.
	BucketStart1ms = 0.001
	// BucketStart100ms is the starting bucket for 100ms histograms.
	BucketStart100ms = 0.1
	// BucketStart1s is the starting bucket for 1s histograms (1s to ~9 hours range).
	BucketStart1s = 1.0
	// BucketStart64B is the starting bucket for 64 byte histograms.
	BucketStart64B = 64.0
	// BucketStart100B is the starting bucket for 100 byte histograms (100B to ~100MB range).
	BucketStart100B = 100.0

	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2
	// BucketFactor10 is the exponential growth factor of 10 for larger ranges.
	BucketFactor10 = 10

	// BucketCount6 defines 6 exponential buckets.
	BucketCount6 = 6
	// BucketCount10 defines 10 exponential buckets.
	BucketCount10 = 10
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
	// BucketCount15 defines 15 exponential buckets.
	BucketCount15 = 15
)

// ShutdownTimeout is the timeout for graceful shutdown of the telemetry listener.
const ShutdownTimeout = 5 * time.Second
