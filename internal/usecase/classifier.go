package usecase

import (
	"regexp"
	"strconv"
	"strings"

	"agentic-workflow/internal/domain/model"
)

const defaultPayback = "12 months"

var (
	locationRe = regexp.MustCompile(`(?i)\b(Edmonton|Calgary|Toronto|Vancouver|Montreal|Ottawa|Winnipeg|Quebec|Hamilton|Victoria)\b`)
	paybackRe  = regexp.MustCompile(`(?i)(\d+)\s*(month|year)`)

	// order matters: first substring hit wins
	industries = []string{
		"restaurant", "food service", "retail", "e-commerce",
		"construction", "real estate", "technology", "healthcare",
		"consulting", "manufacturing", "hospitality", "education",
	}
)

type classifyRule struct {
	kind  model.WorkflowKind
	match func(lower string) bool
}

var classifyRules = []classifyRule{
	{
		kind: model.WorkflowBusinessCase,
		match: func(s string) bool {
			return (strings.Contains(s, "business") && strings.Contains(s, "case")) ||
				(strings.Contains(s, "investor") && (strings.Contains(s, "report") || strings.Contains(s, "pitch"))) ||
				(strings.Contains(s, "financial") && strings.Contains(s, "analysis"))
		},
	},
	{
		kind: model.WorkflowResearch,
		match: func(s string) bool {
			return strings.Contains(s, "research") || strings.Contains(s, "investigate") || strings.Contains(s, "analyze")
		},
	},
}

// Classify maps free text onto a workflow kind. It never fails; anything that
// matches no rule is simple.
func Classify(message string) model.Classification {
	lower := strings.ToLower(message)
	if strings.TrimSpace(lower) == "" {
		return model.Classification{Kind: model.WorkflowSimple, Params: model.WorkflowParams{Task: message}}
	}
	for _, r := range classifyRules {
		if !r.match(lower) {
			continue
		}
		if r.kind == model.WorkflowBusinessCase {
			return model.Classification{
				Kind: r.kind,
				Params: model.WorkflowParams{
					Location:          extractLocation(message),
					Industry:          extractIndustry(lower),
					PaybackConstraint: extractPayback(message),
				},
			}
		}
		return model.Classification{Kind: r.kind, Params: model.WorkflowParams{Task: message}}
	}
	return model.Classification{Kind: model.WorkflowSimple, Params: model.WorkflowParams{Task: message}}
}

func extractLocation(message string) string {
	if m := locationRe.FindStringSubmatch(message); m != nil {
		return m[1]
	}
	return ""
}

func extractIndustry(lower string) string {
	for _, ind := range industries {
		if strings.Contains(lower, ind) {
			return ind
		}
	}
	return ""
}

func extractPayback(message string) string {
	m := paybackRe.FindStringSubmatch(message)
	if m == nil {
		return defaultPayback
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return defaultPayback
	}
	unit := strings.ToLower(m[2])
	if n > 1 {
		unit += "s"
	}
	return strconv.Itoa(n) + " " + unit
}
