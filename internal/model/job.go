// Package model defines the jobs, import rows and contacts shared by the
// lease protocol, the reconciliation engine and the stores.
package model

import "time"

// JobStatus is the persisted lifecycle state of a queued job.
type JobStatus string

const (
	StatusPending       JobStatus = "pending"
	StatusAnalyzing     JobStatus = "analyzing"
	StatusPendingReview JobStatus = "pending_review"
	StatusProcessing    JobStatus = "processing"
	StatusCompleted     JobStatus = "completed"
	StatusFailed        JobStatus = "failed"
)

// QueueKind names one durable job queue.
type QueueKind string

const (
	QueueOCR      QueueKind = "ocr"
	QueueLabeling QueueKind = "labeling"
	QueueImport   QueueKind = "import"
)

// ImportMode is the reviewer-chosen automation level of an import job.
type ImportMode string

const (
	ModeTurbo    ImportMode = "turbo"
	ModeSafe     ImportMode = "safe"
	ModeBalanced ImportMode = "balanced"
)

// ImportJob is one uploaded contact file moving through analysis and execution.
type ImportJob struct {
	ID            string           `json:"id"`
	UserID        string           `json:"user_id"`
	Status        JobStatus        `json:"status"`
	Mode          ImportMode       `json:"mode"`
	FileURL       string           `json:"file_url"`
	FileName      string           `json:"file_name"`
	ColumnMapping map[string]Field `json:"column_mapping,omitempty"`
	Headers       []string         `json:"headers,omitempty"`
	Stats         ImportStats      `json:"stats"`
	ErrorMessage  string           `json:"error_message,omitempty"`
	Attempts      int              `json:"attempts"`
	CreatedAt     time.Time        `json:"created_at"`
}

// ImportStats aggregates analysis counts and execution counters for a job.
type ImportStats struct {
	TotalRows      int `json:"total_rows"`
	NewCount       int `json:"new_count"`
	DuplicateCount int `json:"duplicate_count"`
	ConflictCount  int `json:"conflict_count"`
	CreatedCount   int `json:"created_count"`
	UpdatedCount   int `json:"updated_count"`
	SkippedCount   int `json:"skipped_count"`
	ErrorCount     int `json:"error_count"`
}

// WithExec returns a copy of s carrying the execution counters of e.
func (s ImportStats) WithExec(e ExecStats) ImportStats {
	s.CreatedCount = e.Created
	s.UpdatedCount = e.Updated
	s.SkippedCount = e.Skipped
	s.ErrorCount = e.Errors
	return s
}

// ExecStats counts per-row outcomes of one execution pass.
type ExecStats struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// Add records one row outcome.
func (e *ExecStats) Add(a Action) {
	e.AddN(a, 1)
}

// AddN records n outcomes of the same kind.
func (e *ExecStats) AddN(a Action, n int) {
	switch a {
	case ActionCreated:
		e.Created += n
	case ActionUpdated:
		e.Updated += n
	case ActionSkipped:
		e.Skipped += n
	case ActionError:
		e.Errors += n
	}
}

// OCRJob is a claimed ocr_queue entry joined with its document.
type OCRJob struct {
	QueueID    string `json:"queue_id"`
	DocumentID string `json:"document_id"`
	UserID     string `json:"user_id"`
	FileURL    string `json:"file_url"`
	FileType   string `json:"file_type"`
}

// LabelJob is a claimed ai_labeling_queue entry joined with its document.
type LabelJob struct {
	QueueID     string `json:"queue_id"`
	DocumentID  string `json:"document_id"`
	UserID      string `json:"user_id"`
	OCRText     string `json:"ocr_text"`
	TriggerType string `json:"trigger_type"`
}

// QueueStats summarizes one queue for operators.
type QueueStats struct {
	Queue          QueueKind `json:"queue"`
	Pending        int       `json:"pending"`
	Processing     int       `json:"processing"`
	CompletedToday int       `json:"completed_today"`
	Failed         int       `json:"failed"`
}
