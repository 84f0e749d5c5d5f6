package model

import "time"

// JobStatus represents the current state of an extraction job.
type JobStatus string

const (
	JobStatusSubmitted  JobStatus = "submitted"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ReviewOutcome records the human review decision on a job, independent
// of the job's own lifecycle.
type ReviewOutcome string

const (
	ReviewOutcomeNone     ReviewOutcome = ""
	ReviewOutcomeApproved ReviewOutcome = "approved"
	ReviewOutcomeRejected ReviewOutcome = "rejected"
)

// ExtractionJob represents one asynchronous request to turn a source
// document into structured candidate data.
type ExtractionJob struct {
	ID            string            `json:"id"`
	Status        JobStatus         `json:"status"`
	Message       string            `json:"message,omitempty"`
	Filename      string            `json:"filename"`
	FileRef       string            `json:"file_ref,omitempty"`
	Result        *ExtractionResult `json:"result,omitempty"`
	ReviewOutcome ReviewOutcome     `json:"review_outcome,omitempty"`
	ReviewReason  string            `json:"review_reason,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// ExtractionResult is the canonical shape of a completed extraction.
// The upstream service's output is not fully controlled, so both maps
// stay loosely typed at this boundary; the approval engine owns the
// coercion into validated records.
type ExtractionResult struct {
	ContractData    map[string]any   `json:"contract_data"`
	PartiesData     []map[string]any `json:"parties_data"`
	ConfidenceScore *float64         `json:"confidence_score,omitempty"`
	Metadata        map[string]any   `json:"extraction_metadata,omitempty"`
}
