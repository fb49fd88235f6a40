package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"agentic-workflow/internal/domain/model"
	"agentic-workflow/internal/usecase"
)

var planCmd = &cobra.Command{
	Use:   "plan <request>",
	Short: "Show how a request would be classified and decomposed",
	Long: `Classify the request and print the steps it would run, without
creating a job or calling any reasoning provider.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	message := strings.Join(args, " ")
	c := usecase.Classify(message)
	steps := usecase.Decompose(c.Kind, c.Params)
	order, err := usecase.ValidateSteps(steps)
	if err != nil {
		return err
	}
	printPlan(c, steps, order)
	return nil
}

func printPlan(c model.Classification, steps []model.Step, order []int) {
	bold := color.New(color.Bold)
	cyan := color.New(color.FgCyan)
	dim := color.New(color.Faint)

	bold.Print("Workflow: ")
	cyan.Println(c.Kind)
	printParam("Task", c.Params.Task)
	printParam("Location", c.Params.Location)
	printParam("Industry", c.Params.Industry)
	printParam("Payback", c.Params.PaybackConstraint)

	fmt.Println()
	bold.Printf("Steps (%d):\n", len(steps))
	for i, s := range steps {
		fmt.Printf("  %s %s %s\n", dim.Sprint(model.StepID(i)), roleColor(s.Role).Sprintf("[%s]", s.Role), s.Name)
		if len(s.DependsOn) > 0 {
			dim.Printf("        after %s\n", strings.Join(s.DependsOn, ", "))
		}
	}

	ids := make([]string, len(order))
	for i, idx := range order {
		ids[i] = model.StepID(idx)
	}
	fmt.Println()
	dim.Printf("Run order: %s\n", strings.Join(ids, " -> "))
}

func printParam(label, v string) {
	if v == "" {
		return
	}
	fmt.Printf("  %-9s %s\n", label+":", v)
}

func roleColor(r model.Role) *color.Color {
	switch r {
	case model.RoleResearch:
		return color.New(color.FgBlue)
	case model.RoleAnalyze:
		return color.New(color.FgMagenta)
	case model.RoleWrite:
		return color.New(color.FgGreen)
	case model.RoleEdit:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgWhite)
	}
}
