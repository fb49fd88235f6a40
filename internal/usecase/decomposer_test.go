//go:build !integration

package usecase_test

import (
	"errors"
	"strings"
	"testing"

	"agentic-workflow/internal/domain"
	"agentic-workflow/internal/domain/model"
	"agentic-workflow/internal/usecase"
)

func TestDecompose(t *testing.T) {
	t.Run("business case template", func(t *testing.T) {
		steps := usecase.Decompose(model.WorkflowBusinessCase, model.WorkflowParams{
			Location: "Edmonton", Industry: "food service", PaybackConstraint: "18 months",
		})
		if len(steps) != 5 {
			t.Fatalf("expected 5 steps, got %d", len(steps))
		}
		wantRoles := []model.Role{model.RoleResearch, model.RoleAnalyze, model.RoleAnalyze, model.RoleWrite, model.RoleEdit}
		wantDeps := [][]string{nil, {"step-0"}, {"step-0", "step-1"}, {"step-0", "step-1", "step-2"}, {"step-3"}}
		for i, s := range steps {
			if s.Role != wantRoles[i] {
				t.Errorf("step %d role = %s, want %s", i, s.Role, wantRoles[i])
			}
			if strings.Join(s.DependsOn, ",") != strings.Join(wantDeps[i], ",") {
				t.Errorf("step %d deps = %v, want %v", i, s.DependsOn, wantDeps[i])
			}
			if s.Status != model.StepStatusPending {
				t.Errorf("step %d should start pending", i)
			}
		}
		if !strings.Contains(steps[0].Task, "food service in Edmonton") {
			t.Errorf("market research task not interpolated: %q", steps[0].Task)
		}
		if !strings.Contains(steps[1].Task, "Ensure payback period is 18 months or less.") {
			t.Errorf("financial task not interpolated: %q", steps[1].Task)
		}
	})

	t.Run("business case defaults", func(t *testing.T) {
		steps := usecase.Decompose(model.WorkflowBusinessCase, model.WorkflowParams{})
		if !strings.Contains(steps[0].Task, "high cash flow businesses in the specified location") {
			t.Errorf("defaults missing: %q", steps[0].Task)
		}
		if !strings.Contains(steps[1].Task, "12 months or less") {
			t.Errorf("payback default missing: %q", steps[1].Task)
		}
	})

	t.Run("research template", func(t *testing.T) {
		steps := usecase.Decompose(model.WorkflowResearch, model.WorkflowParams{Task: "EV market"})
		if len(steps) != 3 || steps[0].Task != "EV market" || steps[2].Name != "Report Writing" {
			t.Fatalf("unexpected research steps %+v", steps)
		}
	})

	t.Run("simple template", func(t *testing.T) {
		steps := usecase.Decompose(model.WorkflowSimple, model.WorkflowParams{})
		if len(steps) != 1 || steps[0].Role != model.RoleCoordinate || steps[0].Task != "Complete the requested task" {
			t.Fatalf("unexpected simple steps %+v", steps)
		}
	})

	t.Run("every template validates", func(t *testing.T) {
		for _, k := range []model.WorkflowKind{model.WorkflowBusinessCase, model.WorkflowResearch, model.WorkflowSimple} {
			steps := usecase.Decompose(k, model.WorkflowParams{Task: "x"})
			order, err := usecase.ValidateSteps(steps)
			if err != nil {
				t.Errorf("%s: %v", k, err)
			}
			if len(order) != len(steps) {
				t.Errorf("%s: order %v does not cover %d steps", k, order, len(steps))
			}
		}
	})
}

func TestValidateSteps(t *testing.T) {
	step := func(role model.Role, deps ...string) model.Step {
		return model.Step{Name: "s", Role: role, Task: "t", DependsOn: deps}
	}
	cases := []struct {
		name  string
		steps []model.Step
	}{
		{"empty", nil},
		{"forward reference", []model.Step{step(model.RoleResearch, "step-1"), step(model.RoleWrite)}},
		{"self reference", []model.Step{step(model.RoleResearch, "step-0")}},
		{"unknown id", []model.Step{step(model.RoleResearch), step(model.RoleWrite, "step-7")}},
		{"malformed id", []model.Step{step(model.RoleResearch), step(model.RoleWrite, "first")}},
		{"duplicate dependency", []model.Step{step(model.RoleResearch), step(model.RoleWrite, "step-0", "step-0")}},
		{"unknown role", []model.Step{step("juggler")}},
		{"missing task", []model.Step{{Name: "s", Role: model.RoleWrite}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := usecase.ValidateSteps(tc.steps); !errors.Is(err, domain.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}

	t.Run("dependencies come before dependents", func(t *testing.T) {
		steps := []model.Step{step(model.RoleResearch), step(model.RoleResearch), step(model.RoleWrite, "step-1", "step-0")}
		order, err := usecase.ValidateSteps(steps)
		if err != nil {
			t.Fatalf("ValidateSteps: %v", err)
		}
		pos := map[int]int{}
		for p, i := range order {
			pos[i] = p
		}
		if len(order) != 3 || pos[2] < pos[0] || pos[2] < pos[1] {
			t.Errorf("bad order %v", order)
		}
	})
}
