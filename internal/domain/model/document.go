package model

import (
	"fmt"
	"time"

	"agentic-workflow/internal/domain"
)

const DocumentTypeReport = "report"

// Document is the final artifact of a completed job. It is immutable once created.
type Document struct {
	ID         string    `json:"id"`
	JobID      string    `json:"job_id"`
	OwnerID    string    `json:"owner_id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Provenance string    `json:"provenance"` // agent execution that produced Body
	Type       string    `json:"type"`
	Tags       []string  `json:"tags"`
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewDocument assembles the report for a job from its last step.
func NewDocument(id string, job *Job, now time.Time) (*Document, error) {
	if id == "" || job == nil || len(job.Steps) == 0 {
		return nil, domain.ErrInvalidArgument
	}
	last := job.Steps[len(job.Steps)-1]
	if last.Status != StepStatusCompleted {
		return nil, fmt.Errorf("%w: last step is %s", domain.ErrInvalidArgument, last.Status)
	}
	title := job.DocumentTitle
	if title == "" {
		title = DefaultDocumentTitle(now)
	}
	kind := job.WorkflowType
	if kind == "" {
		kind = "general"
	}
	return &Document{
		ID:         id,
		JobID:      job.ID,
		OwnerID:    job.OwnerID,
		Title:      title,
		Body:       last.Result,
		Provenance: last.AgentExecutionID,
		Type:       DocumentTypeReport,
		Tags:       []string{"workflow", kind},
		Version:    1,
		CreatedAt:  now,
	}, nil
}

func DefaultDocumentTitle(now time.Time) string {
	return "Workflow Result - " + now.Format("2006-01-02")
}
