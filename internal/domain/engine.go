package domain

import (
	"encoding/json"
	"time"
)

// JobDocument is the engine job graph sent to the queue endpoint. Its structure
// is opaque outside the workflow template that builds it.
type JobDocument map[string]any

// JobHandle identifies a queued engine job.
type JobHandle struct {
	PromptID string `json:"prompt_id"`
}

// ImageDescriptor is one image produced by an output node.
type ImageDescriptor struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder,omitempty"`
	Type      string `json:"type,omitempty"`
}

// NodeOutput is the per-node output block of an execution record.
type NodeOutput struct {
	Images []ImageDescriptor `json:"images,omitempty"`
}

// ExecutionRecord is the history entry of one job.
type ExecutionRecord struct {
	Outputs map[string]NodeOutput `json:"outputs"`
	Status  json.RawMessage       `json:"status,omitempty"`
}

// HistoryRecord maps job identifiers to their execution records.
type HistoryRecord map[string]ExecutionRecord

// JobStatus enumerates the outcome recorded for a submitted job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusNoImages  JobStatus = "no_images"
	JobStatusFailed    JobStatus = "failed"
)

// JobRecord is the ledger row kept for each /send request.
type JobRecord struct {
	ID        string    `json:"id"`
	PromptID  string    `json:"prompt_id"`
	Prompt    string    `json:"prompt"`
	Image     string    `json:"image"`
	Status    JobStatus `json:"status"`
	Images    []string  `json:"images"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
