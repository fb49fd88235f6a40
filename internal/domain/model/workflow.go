package model

// WorkflowKind selects a decomposition template.
type WorkflowKind string

const (
	WorkflowBusinessCase WorkflowKind = "business-case"
	WorkflowResearch     WorkflowKind = "research"
	WorkflowSimple       WorkflowKind = "simple"
)

// Role names a capability profile; each maps to a fixed instruction template.
type Role string

const (
	RoleResearch   Role = "research"
	RoleWrite      Role = "write"
	RoleAnalyze    Role = "analyze"
	RoleEdit       Role = "edit"
	RoleCoordinate Role = "coordinate"
)

// WorkflowParams holds values extracted from the request text.
type WorkflowParams struct {
	Task              string `json:"task,omitempty"`
	Location          string `json:"location,omitempty"`
	Industry          string `json:"industry,omitempty"`
	PaybackConstraint string `json:"payback_constraint,omitempty"`
}

// Classification is the classifier output.
type Classification struct {
	Kind   WorkflowKind   `json:"kind"`
	Params WorkflowParams `json:"params"`
}
