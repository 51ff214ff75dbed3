package domain

import "time"

// RunStatus enumerates fetch run lifecycle states.
type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunSuccess  RunStatus = "success"
	RunError    RunStatus = "error"
	RunCanceled RunStatus = "canceled"
)

// Terminal reports whether the status ends a run.
func (s RunStatus) Terminal() bool {
	return s == RunSuccess || s == RunError || s == RunCanceled
}

// Run describes one fetch cycle and its backing store.
type Run struct {
	ID          string     `json:"db_name"`
	Bucket      string     `json:"bucket_name"`
	Prefix      string     `json:"prefix,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	RecordCount int64      `json:"record_count"`
	SizeMB      float64    `json:"db_size_mb"`
	Status      RunStatus  `json:"status"`
	Error       string     `json:"error,omitempty"`
}

// RunUpdate carries a partial update of a run row; nil fields are left untouched.
type RunUpdate struct {
	Status      RunStatus
	EndedAt     *time.Time
	RecordCount *int64
	Error       *string
	SizeMB      *float64
}

// Object is one catalogued bucket object.
type Object struct {
	Name            string     `json:"name"`
	Size            int64      `json:"size"`
	Updated         time.Time  `json:"updated"`
	TimeCreated     *time.Time `json:"time_created"`
	CustomTime      *time.Time `json:"custom_time"`
	ManifestEntryID *int64     `json:"manifest_entry_id,omitempty"`
}

// StartResult is returned once a run has been accepted.
type StartResult struct {
	RunID     string    `json:"db_name"`
	StartedAt time.Time `json:"started_at"`
}

// FetchStatus is a point-in-time view of the ingestion single-flight slot.
type FetchStatus struct {
	Running   bool       `json:"running"`
	RunID     string     `json:"db_name,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	Processed int64      `json:"processed,omitempty"`
	Message   string     `json:"message,omitempty"`
}
