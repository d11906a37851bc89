package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rfakhoury/wagate/tenant"
)

// JobState describes a bulk job's progress.
type JobState string

const (
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobCancelled JobState = "cancelled"
)

// Job is the handle for a bulk batch. Background submissions return it to
// the caller, who may poll Status, wait on Done, or Cancel; discarding it is
// also fine since progress snapshots are persisted independently.
type Job struct {
	ID      string
	Tenant  tenant.ID
	Total   int
	Delay   time.Duration
	Started time.Time
	// Estimate is the rough wall-clock duration reported in the accepted
	// acknowledgement.
	Estimate time.Duration

	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	state    JobState
	outcomes []Outcome
}

func newJob(id tenant.ID, total int, delay time.Duration) *Job {
	est := time.Duration(total)*time.Second + time.Duration(total-1)*delay
	return &Job{
		ID:       uuid.NewString(),
		Tenant:   id,
		Total:    total,
		Delay:    delay,
		Started:  time.Now(),
		Estimate: est,
		done:     make(chan struct{}),
		state:    JobRunning,
		outcomes: make([]Outcome, 0, total),
	}
}

// Done is closed when the batch has finished, for callers that kept the
// handle and want to wait.
func (j *Job) Done() <-chan struct{} { return j.done }

// Cancel stops a background batch after the in-flight send completes.
// Foreground batches are governed by the submitting context instead.
func (j *Job) Cancel() {
	if j.cancel != nil {
		j.cancel()
	}
}

// State returns the job's current state.
func (j *Job) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

func (j *Job) record(o Outcome) {
	j.mu.Lock()
	j.outcomes = append(j.outcomes, o)
	j.mu.Unlock()
}

// markCancelled notes the recipients that never got a send attempt.
func (j *Job) markCancelled(remaining []string) {
	j.mu.Lock()
	j.state = JobCancelled
	for _, r := range remaining {
		j.outcomes = append(j.outcomes, Outcome{Recipient: r, Error: "cancelled before send"})
	}
	j.mu.Unlock()
}

// complete marks a fully attempted batch; a cancelled batch keeps its state.
func (j *Job) complete() {
	j.mu.Lock()
	if j.state == JobRunning {
		j.state = JobCompleted
	}
	j.mu.Unlock()
}

func (j *Job) finish() {
	j.complete()
	close(j.done)
}

// Report builds the aggregate result from recorded outcomes.
func (j *Job) Report() *Report {
	j.mu.Lock()
	defer j.mu.Unlock()
	rep := &Report{
		JobID:    j.ID,
		Total:    j.Total,
		Outcomes: append([]Outcome(nil), j.outcomes...),
	}
	for _, o := range j.outcomes {
		if o.Success {
			rep.Succeeded++
		} else {
			rep.Failed++
		}
	}
	return rep
}

// JobSnapshot is the persisted progress view served by JobStatus.
type JobSnapshot struct {
	JobID     string    `json:"jobId"`
	Tenant    string    `json:"tenant"`
	State     JobState  `json:"state"`
	Total     int       `json:"total"`
	Sent      int       `json:"sent"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Outcomes  []Outcome `json:"outcomes"`
	StartedAt time.Time `json:"startedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Snapshot captures the job's current progress.
func (j *Job) Snapshot() *JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	snap := &JobSnapshot{
		JobID:     j.ID,
		Tenant:    j.Tenant.String(),
		State:     j.state,
		Total:     j.Total,
		Sent:      len(j.outcomes),
		Outcomes:  append([]Outcome(nil), j.outcomes...),
		StartedAt: j.Started,
		UpdatedAt: time.Now(),
	}
	for _, o := range j.outcomes {
		if o.Success {
			snap.Succeeded++
		} else {
			snap.Failed++
		}
	}
	return snap
}
