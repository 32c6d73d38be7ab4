package model

import "time"

// JobStage is a checkpoint in the research pipeline.
type JobStage string

const (
	StageInit       JobStage = "INIT"
	StageDiscovery  JobStage = "DISCOVERY"
	StageExtraction JobStage = "EXTRACTION"
	StageValidation JobStage = "VALIDATION"
	StageStorage    JobStage = "STORAGE"
	StageScoring    JobStage = "SCORING"
	StageComplete   JobStage = "COMPLETE"
	StageError      JobStage = "ERROR"
)

// StageProgress maps each stage to the coarse percent-complete milestone
// published when the stage begins.
var StageProgress = map[JobStage]int{
	StageInit:       0,
	StageDiscovery:  10,
	StageExtraction: 40,
	StageValidation: 55,
	StageStorage:    70,
	StageScoring:    85,
	StageComplete:   100,
}

// JobStatus is the lifecycle state of a research job.
type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusRunning  JobStatus = "running"
	JobStatusComplete JobStatus = "complete"
	JobStatusError    JobStatus = "error"
)

// ResearchQuery parameterizes a discovery prompt.
type ResearchQuery struct {
	Region   string   `json:"region"`
	Counties []string `json:"counties,omitempty"`
	Niches   []string `json:"niches,omitempty"`
	Limit    int      `json:"limit,omitempty"`
	Notes    string   `json:"notes,omitempty"`
}

// ResearchJob tracks one discovery run end to end.
type ResearchJob struct {
	ID               string        `json:"id"`
	Query            ResearchQuery `json:"query"`
	Stage            JobStage      `json:"stage"`
	Status           JobStatus     `json:"status"`
	Progress         int           `json:"progress"`
	ExternalTaskID   string        `json:"external_task_id,omitempty"`
	Error            string        `json:"error,omitempty"`
	BusinessesFound  int           `json:"businesses_found"`
	BusinessesStored int           `json:"businesses_stored"`
	BusinessesScored int           `json:"businesses_scored"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
}

// Done reports whether the job reached a terminal status.
func (j *ResearchJob) Done() bool {
	return j.Status == JobStatusComplete || j.Status == JobStatusError
}
