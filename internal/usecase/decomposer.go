package usecase

import (
	"fmt"

	"github.com/gammazero/toposort"

	"agentic-workflow/internal/domain"
	"agentic-workflow/internal/domain/model"
)

const (
	defaultIndustry = "high cash flow businesses"
	defaultLocation = "the specified location"
	defaultTask     = "Complete the requested task"
	defaultResearch = "Research the topic"
)

// Decompose expands a classification into its fixed step template. Unknown
// kinds decompose as simple.
func Decompose(kind model.WorkflowKind, params model.WorkflowParams) []model.Step {
	var steps []model.Step
	switch kind {
	case model.WorkflowBusinessCase:
		steps = businessCaseSteps(params)
	case model.WorkflowResearch:
		steps = researchSteps(params)
	default:
		task := params.Task
		if task == "" {
			task = defaultTask
		}
		steps = []model.Step{{Name: "Execute Task", Role: model.RoleCoordinate, Task: task}}
	}
	for i := range steps {
		steps[i].Status = model.StepStatusPending
	}
	return steps
}

func businessCaseSteps(p model.WorkflowParams) []model.Step {
	industry := orDefault(p.Industry, defaultIndustry)
	location := orDefault(p.Location, defaultLocation)
	payback := orDefault(p.PaybackConstraint, defaultPayback)

	return []model.Step{
		{
			Name: "Market Research",
			Role: model.RoleResearch,
			Task: fmt.Sprintf(`Conduct comprehensive market research on %s in %s. Focus on:
- Current market size and growth trends
- Key competitors and market share
- Customer demographics and demand
- Regulatory environment
- Entry barriers and opportunities

Use web search to find current 2025 data.`, industry, location),
		},
		{
			Name: "Financial Analysis",
			Role: model.RoleAnalyze,
			Task: fmt.Sprintf(`Based on the market research, analyze the financial viability:
- Startup costs breakdown
- Revenue projections (monthly for first 12 months)
- Operating expenses
- Cash flow analysis
- Break-even analysis
- ROI calculations
- Payback period calculation

Ensure payback period is %s or less.`, payback),
			DependsOn: []string{"step-0"},
		},
		{
			Name: "Business Strategy",
			Role: model.RoleAnalyze,
			Task: `Create a comprehensive business strategy including:
- Value proposition
- Target customer segments
- Marketing and sales strategy
- Operations plan
- Risk analysis and mitigation
- Key milestones and timeline`,
			DependsOn: []string{"step-0", "step-1"},
		},
		{
			Name: "Draft Business Case",
			Role: model.RoleWrite,
			Task: `Draft a professional, investor-ready business case document including:

Executive Summary
- Business opportunity overview
- Key financial highlights
- Investment ask and returns

Market Analysis (from research)
Financial Projections (from analysis)
Business Strategy (from strategy)
Risk Assessment
Implementation Timeline

Make it compelling, data-driven, and professional.`,
			DependsOn: []string{"step-0", "step-1", "step-2"},
		},
		{
			Name: "Review and Polish",
			Role: model.RoleEdit,
			Task: `Review the business case document for:
- Professional language and tone
- Clarity and coherence
- Data accuracy and consistency
- Grammar and formatting
- Investor appeal

Provide the final, polished version ready for investors.`,
			DependsOn: []string{"step-3"},
		},
	}
}

func researchSteps(p model.WorkflowParams) []model.Step {
	return []model.Step{
		{Name: "Initial Research", Role: model.RoleResearch, Task: orDefault(p.Task, defaultResearch)},
		{
			Name:      "Analysis",
			Role:      model.RoleAnalyze,
			Task:      "Analyze the research findings and provide insights",
			DependsOn: []string{"step-0"},
		},
		{
			Name:      "Report Writing",
			Role:      model.RoleWrite,
			Task:      "Create a comprehensive report based on the research and analysis",
			DependsOn: []string{"step-0", "step-1"},
		},
	}
}

// ValidateSteps checks roles and dependency references and returns a
// topological order of step indexes. Dependencies must point backwards.
func ValidateSteps(steps []model.Step) ([]int, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: workflow has no steps", domain.ErrInvalidArgument)
	}
	edges := make([]toposort.Edge, 0, len(steps))
	for i, s := range steps {
		if s.Task == "" {
			return nil, fmt.Errorf("%w: step %d has no task", domain.ErrInvalidArgument, i)
		}
		if !KnownRole(s.Role) {
			return nil, fmt.Errorf("%w: step %d has unknown role %q", domain.ErrInvalidArgument, i, s.Role)
		}
		edges = append(edges, toposort.Edge{nil, i})
		seen := make(map[int]bool, len(s.DependsOn))
		for _, dep := range s.DependsOn {
			j, err := model.ParseStepID(dep)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", i, err)
			}
			if j >= i {
				return nil, fmt.Errorf("%w: step %d depends on %s which does not precede it", domain.ErrInvalidArgument, i, dep)
			}
			if seen[j] {
				return nil, fmt.Errorf("%w: step %d lists %s twice", domain.ErrInvalidArgument, i, dep)
			}
			seen[j] = true
			edges = append(edges, toposort.Edge{j, i})
		}
	}
	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	order := make([]int, 0, len(sorted))
	for _, v := range sorted {
		if v != nil {
			order = append(order, v.(int))
		}
	}
	return order, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
