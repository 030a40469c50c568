// Package datastore holds the relational record of meetings, jobs and the
// knowledge extracted from them.
//
// The schema is small and fixed:
//
//   - Meeting: a logical recording, owns jobs
//   - Job: one pipeline run over one upload, owns events and notes
//   - TranscriptEvent: one spoken utterance
//   - OnScreenEvent: one text region recognized in a shot
//   - IntelligentNote: one LLM-authored note
//
// Rows are never deleted. Job status only moves forward (queued to completed
// or failed), which the Repository enforces with guarded updates.
package datastore

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus is the persisted lifecycle state of a Job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Meeting groups one or more jobs. Duration is derived from the last
// transcript event of its completed jobs and never decreases.
type Meeting struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	TimeStarted float64   `gorm:"not null" json:"time_started"` // epoch seconds
	Duration    float64   `gorm:"not null;default:0" json:"duration"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"-"`

	Jobs []Job `gorm:"foreignKey:MeetingID;constraint:OnUpdate:CASCADE" json:"jobs"`
}

// TableName returns the table name for GORM.
func (Meeting) TableName() string { return "meetings" }

// Job is one unit of work for one uploaded video.
type Job struct {
	JobID         string    `gorm:"primaryKey;size:36" json:"job_id"`
	JobStatus     JobStatus `gorm:"size:16;not null;index" json:"job_status"`
	MeetingID     uint      `gorm:"not null;index" json:"meeting_id"`
	TimeStarted   float64   `gorm:"not null" json:"time_started"` // epoch seconds
	FailureReason string    `gorm:"size:512" json:"failure_reason,omitempty"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"-"`

	TranscriptEvents []TranscriptEvent `gorm:"foreignKey:JobID;references:JobID" json:"transcript_events"`
	OCREvents        []OnScreenEvent   `gorm:"foreignKey:JobID;references:JobID" json:"ocr_events"`
	IntelligentNotes []IntelligentNote `gorm:"foreignKey:JobID;references:JobID" json:"intelligent_notes"`
}

// TableName returns the table name for GORM.
func (Job) TableName() string { return "jobs" }

// ensureCollections replaces nil collections with empty ones so clients
// always see arrays.
func (j *Job) ensureCollections() {
	if j.TranscriptEvents == nil {
		j.TranscriptEvents = []TranscriptEvent{}
	}
	if j.OCREvents == nil {
		j.OCREvents = []OnScreenEvent{}
	}
	if j.IntelligentNotes == nil {
		j.IntelligentNotes = []IntelligentNote{}
	}
	for i := range j.OCREvents {
		if j.OCREvents[i].BBox == nil {
			j.OCREvents[i].BBox = BBox{}
		}
	}
}

// TranscriptEvent is one utterance produced by the transcription backend.
type TranscriptEvent struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	SpeakerName *string `gorm:"size:255" json:"speaker_name"`
	Content     string  `gorm:"type:text;not null" json:"content"`
	Start       float64 `gorm:"not null;index" json:"start"`
	End         float64 `gorm:"not null" json:"end"`
	JobID       string  `gorm:"size:36;not null;index" json:"job_id"`
}

// TableName returns the table name for GORM.
func (TranscriptEvent) TableName() string { return "transcript_events" }

// OnScreenEvent is one text region recognized in a sampled frame. All events
// of a shot share the shot's time range.
type OnScreenEvent struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	SpeakerName *string `gorm:"size:255" json:"speaker_name"`
	Content     string  `gorm:"type:text;not null" json:"content"`
	Start       float64 `gorm:"not null;index" json:"start"`
	End         float64 `gorm:"not null" json:"end"`
	BBox        BBox    `gorm:"type:text" json:"bbox"`
	Confidence  float64 `gorm:"not null" json:"confidence"`
	JobID       string  `gorm:"size:36;not null;index" json:"job_id"`
}

// TableName returns the table name for GORM.
func (OnScreenEvent) TableName() string { return "ocr_events" }

// IntelligentNote is one LLM-authored note for a job, titled by its note type.
type IntelligentNote struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	Title   string `gorm:"size:255;not null" json:"title"`
	Content string `gorm:"type:text;not null" json:"content"`
	JobID   string `gorm:"size:36;not null;index" json:"job_id"`
}

// TableName returns the table name for GORM.
func (IntelligentNote) TableName() string { return "intelligent_notes" }

// BBox is an axis-aligned box [x1, y1, x2, y2] in frame pixels, or empty
// when the recognizer reports no geometry. Stored as a JSON array.
type BBox []int

// Valid reports whether b is empty or a well-ordered 4-tuple.
func (b BBox) Valid() bool {
	if len(b) == 0 {
		return true
	}
	return len(b) == 4 && b[0] <= b[2] && b[1] <= b[3]
}

// Value implements driver.Valuer.
func (b BBox) Value() (driver.Value, error) {
	if b == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]int(b))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (b *BBox) Scan(value any) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*b = BBox{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported bbox column type %T", value)
	}

	var out []int
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return fmt.Errorf("failed to decode bbox: %w", err)
		}
	}
	if out == nil {
		out = []int{}
	}
	*b = out
	return nil
}

// allModels lists every entity in migration order.
func allModels() []any {
	return []any{
		&Meeting{},
		&Job{},
		&TranscriptEvent{},
		&OnScreenEvent{},
		&IntelligentNote{},
	}
}
