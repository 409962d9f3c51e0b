// Package history defines core types shared across the crawling subsystems.
package history

import "time"

// Artifact identifies one job history file discovered by a Source.
// ModTime is epoch milliseconds of the artifact's last modification and
// drives both partition watermarks and processed-marker buckets.
type Artifact struct {
	JobID    string `json:"job_id"`
	Path     string `json:"path"`
	ConfPath string `json:"conf_path,omitempty"`
	ModTime  int64  `json:"mod_time"`
}

// JobState is the terminal state recorded for a finished job.
type JobState string

// Job states carried by parsed history records.
const (
	JobStateSucceeded JobState = "SUCCEEDED"
	JobStateFailed    JobState = "FAILED"
	JobStateKilled    JobState = "KILLED"
	JobStateUnknown   JobState = "UNKNOWN"
)

// JobRecord is the parsed execution record emitted downstream for each
// processed history artifact.
type JobRecord struct {
	JobID         string            `json:"job_id"`
	AppID         string            `json:"app_id"`
	Site          string            `json:"site"`
	User          string            `json:"user,omitempty"`
	Queue         string            `json:"queue,omitempty"`
	Name          string            `json:"name,omitempty"`
	State         JobState          `json:"state"`
	SubmitTime    int64             `json:"submit_time,omitempty"`
	LaunchTime    int64             `json:"launch_time,omitempty"`
	FinishTime    int64             `json:"finish_time,omitempty"`
	TotalMaps     int               `json:"total_maps,omitempty"`
	TotalReduces  int               `json:"total_reduces,omitempty"`
	Configuration map[string]string `json:"configuration,omitempty"`
}

// WatermarkEntity is the cluster-wide low-water mark published to the
// monitoring backend by partition zero. Field names follow the backend's
// wire contract.
type WatermarkEntity struct {
	Site             string `json:"site"`
	CurrentTimeStamp int64  `json:"currentTimeStamp"`
	Timestamp        int64  `json:"timestamp"`
}

// JournalEntry is the audit row persisted for each artifact a worker
// finishes with, successfully or not.
type JournalEntry struct {
	JobID       string    `json:"job_id"`
	Site        string    `json:"site"`
	PartitionID int       `json:"partition_id"`
	Bucket      string    `json:"bucket"`
	ModTime     int64     `json:"mod_time"`
	ProcessedAt time.Time `json:"processed_at"`
	DurationMs  int64     `json:"duration_ms"`
	Status      string    `json:"status"`
}

// Journal entry status values.
const (
	JournalStatusProcessed = "processed"
	JournalStatusFailed    = "failed"
)
