package entities

import (
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of an AnalysisJob
type JobStatus string

// Job states. Succeeded and Failed are terminal.
const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed
func (s JobStatus) IsTerminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// AnalysisJob is one analyzer invocation against a LibraryUnit
type AnalysisJob struct {
	ID         string
	Unit       *LibraryUnit
	OutputPath string // final per-unit database path, set on success
	LogPath    string
	Status     JobStatus
	ExitCode   int
	LogExcerpt string
	Failure    error
	StartedAt  time.Time
	FinishedAt time.Time
}

// NewAnalysisJob creates a pending job for unit
func NewAnalysisJob(id string, unit *LibraryUnit) *AnalysisJob {
	return &AnalysisJob{
		ID:     id,
		Unit:   unit,
		Status: JobPending,
	}
}

// Start moves the job from Pending to Running
func (j *AnalysisJob) Start(now time.Time) error {
	if j.Status != JobPending {
		return fmt.Errorf("job %s: cannot start from state %s", j.ID, j.Status)
	}
	j.Status = JobRunning
	j.StartedAt = now
	return nil
}

// Succeed moves a running job to Succeeded
func (j *AnalysisJob) Succeed(now time.Time, outputPath string) error {
	if j.Status != JobRunning {
		return fmt.Errorf("job %s: cannot succeed from state %s", j.ID, j.Status)
	}
	j.Status = JobSucceeded
	j.ExitCode = 0
	j.OutputPath = outputPath
	j.FinishedAt = now
	return nil
}

// Fail moves a pending or running job to Failed. A job that never ran can
// still fail (e.g. cancelled before dispatch).
func (j *AnalysisJob) Fail(now time.Time, exitCode int, cause error) error {
	if j.Status.IsTerminal() {
		return fmt.Errorf("job %s: cannot fail from terminal state %s", j.ID, j.Status)
	}
	j.Status = JobFailed
	j.ExitCode = exitCode
	j.Failure = cause
	j.FinishedAt = now
	return nil
}

// UnitName returns the name of the job's unit, or "" when the job has none
func (j *AnalysisJob) UnitName() string {
	if j.Unit == nil {
		return ""
	}
	return j.Unit.Name
}

// Duration returns how long the job ran
func (j *AnalysisJob) Duration() time.Duration {
	if j.StartedAt.IsZero() || j.FinishedAt.IsZero() {
		return 0
	}
	return j.FinishedAt.Sub(j.StartedAt)
}
