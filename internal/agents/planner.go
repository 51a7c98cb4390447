// Package agents wraps the LLM client into the role-specific agents of
// the research pipeline: planning, analysis, gap evaluation, and report
// writing. Prompts live here; scoring math does not.
package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/Kocoro-lab/Meridian/internal/llm"
	"github.com/Kocoro-lab/Meridian/internal/models"
	"github.com/Kocoro-lab/Meridian/internal/planner"
	"go.uber.org/zap"
)

// PlannerAgent decomposes an objective into the initial research plan.
type PlannerAgent struct {
	client *llm.Client
	logger *zap.Logger
}

// NewPlannerAgent creates a planner agent.
func NewPlannerAgent(client *llm.Client, logger *zap.Logger) *PlannerAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlannerAgent{client: client, logger: logger}
}

type planSubtopicOutput struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	Status   string `json:"status"`
}

type researchPlanOutput struct {
	ResearchObjective string               `json:"research_objective"`
	Subtopics         []planSubtopicOutput `json:"subtopics"`
	KeyQuestions      []string             `json:"key_questions"`
	MetricsRequired   []string             `json:"metrics_required"`
}

// CreatePlan asks the model for a breadth-first decomposition of the
// query. Subtopics come back pending; malformed priorities are clamped
// rather than rejected.
func (a *PlannerAgent) CreatePlan(ctx context.Context, query string) (*planner.Plan, error) {
	prompt := buildPlanPrompt(query)

	var out researchPlanOutput
	if err := a.client.GenerateStructured(ctx, prompt, &out); err != nil {
		return nil, fmt.Errorf("plan generation failed: %w", err)
	}
	if len(out.Subtopics) == 0 {
		return nil, fmt.Errorf("plan generation returned no subtopics")
	}

	objective := strings.TrimSpace(out.ResearchObjective)
	if objective == "" {
		objective = query
	}

	plan := &planner.Plan{
		Objective:       objective,
		KeyQuestions:    trimNonEmpty(out.KeyQuestions),
		MetricsRequired: trimNonEmpty(out.MetricsRequired),
	}
	for _, st := range out.Subtopics {
		name := strings.TrimSpace(st.Name)
		if name == "" {
			continue
		}
		priority := st.Priority
		if priority < 1 || priority > 3 {
			priority = 2
		}
		sub, err := models.NewSubtopic(name, priority, models.StatusPending)
		if err != nil {
			a.logger.Warn("Dropping invalid subtopic from plan", zap.Error(err))
			continue
		}
		plan.Subtopics = append(plan.Subtopics, sub)
		if len(plan.Subtopics) >= planner.MaxActiveSubtopics {
			break
		}
	}
	if len(plan.Subtopics) == 0 {
		return nil, fmt.Errorf("plan generation returned no usable subtopics")
	}

	a.logger.Info("Research plan created",
		zap.String("objective", plan.Objective),
		zap.Int("subtopics", len(plan.Subtopics)),
	)
	return plan, nil
}

func trimNonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func buildPlanPrompt(query string) string {
	return fmt.Sprintf(`You are a senior research strategist designing a structured research plan.

USER QUERY:
%s

OBJECTIVE:
Decompose the query into a rigorous, breadth-first research plan.

PLANNING RULES:
- Provide 4 to 6 distinct subtopics.
- Ensure breadth-first coverage (overview, technical, economic, risks, future outlook, etc.).
- Avoid overly narrow or overly deep decomposition.
- Subtopics must be mutually distinct and non-overlapping.
- Set ALL subtopic statuses to "pending".
- Priority must be:
    1 = high importance
    2 = medium importance
    3 = lower importance

ANALYTICAL REQUIREMENTS:
- Provide 5 to 8 key_questions.
- Provide 3 to 5 measurable metrics_required.
- Research objective must restate the user's goal clearly and formally.

STRICT OUTPUT RULES:
- Respond ONLY with valid JSON.
- Use snake_case field names.
- Do NOT add extra fields.
- research_objective must be a STRING (not an object).
- Subtopics must contain ONLY:
    {
      "name": "string",
      "priority": 1,
      "status": "pending"
    }
- Do NOT include markdown.
- Do NOT include commentary.

EXPECTED STRUCTURE:

{
  "research_objective": "string",
  "subtopics": [
    {
      "name": "string",
      "priority": 1,
      "status": "pending"
    }
  ],
  "key_questions": ["string"],
  "metrics_required": ["string"]
}`, query)
}
