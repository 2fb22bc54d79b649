package core

import "fmt"

// JobStatus is the lifecycle state of an enhancement job as reported by the
// remote batch service.
type JobStatus string

const (
	JobSubmitted  JobStatus = "submitted"
	JobValidating JobStatus = "validating"
	JobInProgress JobStatus = "in_progress"
	JobFinalizing JobStatus = "finalizing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobExpired    JobStatus = "expired"
	JobCancelled  JobStatus = "cancelled"
)

// jobStages orders the non-diverting states. Terminal failure states sit
// outside the ordering.
var jobStages = map[JobStatus]int{
	JobSubmitted:  0,
	JobValidating: 1,
	JobInProgress: 2,
	JobFinalizing: 3,
	JobCompleted:  4,
}

// ParseJobStatus converts a remote status string into a JobStatus.
// The remote "cancelling" state is folded into in-flight progress since it
// always ends in cancelled.
func ParseJobStatus(s string) (JobStatus, error) {
	switch s {
	case "cancelling":
		return JobFinalizing, nil
	}
	status := JobStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownJobStatus, s)
	}
	return status, nil
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	if _, ok := jobStages[s]; ok {
		return true
	}
	return s == JobFailed || s == JobExpired || s == JobCancelled
}

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s.Failure()
}

// Failure reports whether s is one of the diverting terminal states.
func (s JobStatus) Failure() bool {
	return s == JobFailed || s == JobExpired || s == JobCancelled
}

// CanTransition reports whether a job may move from one status to another.
// Moves only go forward; skipping intermediate stages is allowed because the
// remote service may advance several stages between two polls.
func CanTransition(from, to JobStatus) bool {
	if !from.Valid() || !to.Valid() || from.Terminal() || from == to {
		return false
	}
	if to.Failure() {
		return true
	}
	return jobStages[to] > jobStages[from]
}

// TransitionJob moves job to status, enforcing CanTransition.
func TransitionJob(job *EnhancementJob, to JobStatus) error {
	if !CanTransition(job.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, to)
	}
	job.Status = to
	return nil
}
