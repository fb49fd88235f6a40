package model

import (
	"fmt"
	"time"

	"agentic-workflow/internal/domain"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

func (s JobStatus) CanTransition(to JobStatus) bool {
	switch s {
	case JobStatusPending:
		return to == JobStatusRunning
	case JobStatusRunning:
		return to == JobStatusCompleted || to == JobStatusFailed
	default:
		return false
	}
}

func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

func (s JobStatus) Active() bool {
	return s == JobStatusPending || s == JobStatusRunning
}

// Progress is the observer-facing projection of where a job is.
type Progress struct {
	CurrentStepIndex int    `json:"current_step_index"`
	TotalSteps       int    `json:"total_steps"`
	Message          string `json:"message"`
}

// Job is one user-triggered unit of work. It exclusively owns its steps.
type Job struct {
	ID              string            `json:"id"`
	OwnerID         string            `json:"owner_id"`
	WorkflowType    string            `json:"workflow_type"`
	Params          WorkflowParams    `json:"params"`
	OriginalMessage string            `json:"original_message,omitempty"`
	DocumentTitle   string            `json:"document_title,omitempty"`
	Status          JobStatus         `json:"status"`
	Steps           []Step            `json:"steps"`
	Progress        Progress          `json:"progress"`
	Results         map[string]string `json:"results"`
	Error           string            `json:"error,omitempty"`

	LeaseOwner     string     `json:"lease_owner,omitempty"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`
	LeaseEpoch     int64      `json:"lease_epoch"`
	Attempts       int        `json:"attempts"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewJob creates a pending job over pre-decomposed steps.
func NewJob(id, ownerID, workflowType string, params WorkflowParams, message, title string, steps []Step) (*Job, error) {
	if id == "" || ownerID == "" || len(steps) == 0 {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	owned := make([]Step, len(steps))
	for i, s := range steps {
		owned[i] = Step{
			Name:      s.Name,
			Role:      s.Role,
			Task:      s.Task,
			DependsOn: append([]string(nil), s.DependsOn...),
			Status:    StepStatusPending,
		}
	}
	return &Job{
		ID:              id,
		OwnerID:         ownerID,
		WorkflowType:    workflowType,
		Params:          params,
		OriginalMessage: message,
		DocumentTitle:   title,
		Status:          JobStatusPending,
		Steps:           owned,
		Progress:        Progress{CurrentStepIndex: 0, TotalSteps: len(owned), Message: "Queued..."},
		Results:         map[string]string{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Clone returns a deep copy so callers can hand jobs across goroutines safely.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	cp.Steps = make([]Step, len(j.Steps))
	for i, s := range j.Steps {
		s.DependsOn = append([]string(nil), s.DependsOn...)
		cp.Steps[i] = s
	}
	cp.Results = make(map[string]string, len(j.Results))
	for k, v := range j.Results {
		cp.Results[k] = v
	}
	return &cp
}

// Claimable reports whether a worker may take the job at now: pending, or
// running with a lapsed lease.
func (j *Job) Claimable(now time.Time) bool {
	if j.Status.Terminal() {
		return false
	}
	return j.LeaseExpiresAt == nil || !j.LeaseExpiresAt.After(now)
}

// Claim hands the lease to workerID and bumps the fencing epoch.
func (j *Job) Claim(workerID string, now time.Time, ttl time.Duration) {
	exp := now.Add(ttl)
	j.LeaseOwner = workerID
	j.LeaseExpiresAt = &exp
	j.LeaseEpoch++
	j.Attempts++
	j.UpdatedAt = now
}

// Renew extends the lease if workerID still holds it at epoch.
func (j *Job) Renew(workerID string, epoch int64, now time.Time, ttl time.Duration) error {
	if j.Status.Terminal() || j.LeaseOwner != workerID || j.LeaseEpoch != epoch {
		return domain.ErrLeaseLost
	}
	exp := now.Add(ttl)
	j.LeaseExpiresAt = &exp
	j.UpdatedAt = now
	return nil
}

// StepPatch mutates a single step.
type StepPatch struct {
	Index            int
	Status           StepStatus
	Result           *string
	Error            string
	ErrorKind        ErrorKind
	AgentExecutionID string
	StartedAt        *time.Time
	CompletedAt      *time.Time
}

// JobPatch is one atomic update to a job. Nil fields are left untouched.
// LeaseEpoch, when non-zero, must match the stored epoch.
type JobPatch struct {
	Status      *JobStatus
	Progress    *Progress
	Step        *StepPatch
	Results     map[string]string
	Error       *string
	StartedAt   *time.Time
	CompletedAt *time.Time
	LeaseEpoch  int64
}

// Apply validates p against the job's invariants and, if all hold, applies it.
// On error the job is left unchanged.
func (j *Job) Apply(p JobPatch, now time.Time) error {
	if p.LeaseEpoch != 0 && p.LeaseEpoch != j.LeaseEpoch {
		return domain.ErrLeaseLost
	}
	if j.Status.Terminal() {
		return fmt.Errorf("%w: job %s is %s", domain.ErrInvalidTransition, j.ID, j.Status)
	}
	next := j.Clone()

	if p.Status != nil && *p.Status != next.Status {
		if !next.Status.CanTransition(*p.Status) {
			return fmt.Errorf("%w: job %s -> %s", domain.ErrInvalidTransition, next.Status, *p.Status)
		}
		next.Status = *p.Status
	}
	if p.Error != nil {
		if next.Error != "" || next.Status != JobStatusFailed {
			return fmt.Errorf("%w: error may only be set once, on failure", domain.ErrInvalidTransition)
		}
		next.Error = *p.Error
	}
	if p.StartedAt != nil {
		if next.StartedAt != nil {
			return fmt.Errorf("%w: started_at already set", domain.ErrInvalidTransition)
		}
		t := *p.StartedAt
		next.StartedAt = &t
	}
	if p.CompletedAt != nil {
		if next.CompletedAt != nil || !next.Status.Terminal() {
			return fmt.Errorf("%w: completed_at requires a terminal status", domain.ErrInvalidTransition)
		}
		if next.StartedAt != nil && p.CompletedAt.Before(*next.StartedAt) {
			return fmt.Errorf("%w: completed_at before started_at", domain.ErrInvalidTransition)
		}
		t := *p.CompletedAt
		next.CompletedAt = &t
	}
	if p.Progress != nil {
		if p.Progress.CurrentStepIndex < next.Progress.CurrentStepIndex {
			return fmt.Errorf("%w: progress %d -> %d", domain.ErrInvalidTransition,
				next.Progress.CurrentStepIndex, p.Progress.CurrentStepIndex)
		}
		if p.Progress.CurrentStepIndex > len(next.Steps) {
			return fmt.Errorf("%w: progress beyond step count", domain.ErrInvalidArgument)
		}
		next.Progress = *p.Progress
	}
	if p.Step != nil {
		if err := next.applyStep(*p.Step); err != nil {
			return err
		}
	}
	for k, v := range p.Results {
		next.Results[k] = v
	}
	if next.Status == JobStatusCompleted && next.Progress.CurrentStepIndex != next.Progress.TotalSteps {
		return fmt.Errorf("%w: completed job must report all steps", domain.ErrInvalidTransition)
	}
	if next.Status.Terminal() {
		next.LeaseOwner = ""
		next.LeaseExpiresAt = nil
	}
	next.UpdatedAt = now
	*j = *next
	return nil
}

func (j *Job) applyStep(sp StepPatch) error {
	if sp.Index < 0 || sp.Index >= len(j.Steps) {
		return fmt.Errorf("%w: step index %d", domain.ErrInvalidArgument, sp.Index)
	}
	st := &j.Steps[sp.Index]
	switch {
	case sp.Status == "":
	case sp.Status == StepStatusRunning && st.Status == StepStatusRunning:
		// restart after re-claim
	case !st.Status.CanTransition(sp.Status):
		return fmt.Errorf("%w: step %d %s -> %s", domain.ErrInvalidTransition, sp.Index, st.Status, sp.Status)
	default:
		st.Status = sp.Status
	}
	if sp.Result != nil {
		st.Result = *sp.Result
	}
	if sp.Error != "" {
		st.Error = sp.Error
		st.ErrorKind = sp.ErrorKind
	}
	if sp.AgentExecutionID != "" {
		st.AgentExecutionID = sp.AgentExecutionID
	}
	if sp.StartedAt != nil {
		t := *sp.StartedAt
		st.StartedAt = &t
	}
	if sp.CompletedAt != nil {
		t := *sp.CompletedAt
		st.CompletedAt = &t
	}
	return nil
}

// DependenciesCompleted reports whether every dependency of step i is completed.
func (j *Job) DependenciesCompleted(i int) bool {
	for _, dep := range j.Steps[i].DependsOn {
		k, err := ParseStepID(dep)
		if err != nil || k >= len(j.Steps) || j.Steps[k].Status != StepStatusCompleted {
			return false
		}
	}
	return true
}

// DurationString renders elapsed wall time the way the job list shows it.
func (j *Job) DurationString() string {
	if j.CompletedAt == nil || j.CreatedAt.IsZero() {
		return "In progress..."
	}
	d := j.CompletedAt.Sub(j.CreatedAt)
	minutes := int(d / time.Minute)
	seconds := int((d % time.Minute) / time.Second)
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

// CountActive returns how many jobs are pending or running.
func CountActive(jobs []*Job) int {
	n := 0
	for _, j := range jobs {
		if j.Status.Active() {
			n++
		}
	}
	return n
}
