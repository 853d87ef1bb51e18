// Package planner implements the Planner: turning a prompt into a
// schema-validated Plan via the LLMGateway, per spec.md §4.7.
package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentforge/runengine/enginerr"
	"github.com/agentforge/runengine/llm"
	"github.com/agentforge/runengine/model"
	"github.com/agentforge/runengine/run"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// MaxTasks bounds a Plan's task count (spec.md §3 Plan: "≤20").
const MaxTasks = 20

// PlannedTask is one task as proposed by the planner, before it is
// materialized into a task.Task by RunEngine.
type PlannedTask struct {
	ID             string   `json:"id"`
	Type           string   `json:"type"`
	Description    string   `json:"description"`
	DependsOn      []string `json:"dependsOn"`
	ExpectedOutput string   `json:"expectedOutput,omitempty"`
}

// PlanMetadata carries the planner's own account of its output.
type PlanMetadata struct {
	EstimatedSteps int    `json:"estimatedSteps"`
	Reasoning      string `json:"reasoning,omitempty"`
}

// Plan is the transient planning artifact: an ordered, non-empty task list
// plus metadata. It is never persisted directly; RunEngine materializes
// each PlannedTask into a task.Task.
type Plan struct {
	Tasks    []PlannedTask `json:"tasks"`
	Metadata PlanMetadata  `json:"metadata"`
}

// planSchemaJSON is the JSON Schema every planner response is validated
// against before being unmarshalled into a Plan.
const planSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["tasks", "metadata"],
  "properties": {
    "tasks": {
      "type": "array",
      "minItems": 1,
      "maxItems": 20,
      "items": {
        "type": "object",
        "required": ["id", "type", "description", "dependsOn"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "type": {"type": "string", "enum": ["analyze", "edit", "test", "review", "git", "shell"]},
          "description": {"type": "string", "minLength": 1},
          "dependsOn": {"type": "array", "items": {"type": "string"}},
          "expectedOutput": {"type": "string"}
        }
      }
    },
    "metadata": {
      "type": "object",
      "required": ["estimatedSteps"],
      "properties": {
        "estimatedSteps": {"type": "integer", "minimum": 0},
        "reasoning": {"type": "string"}
      }
    }
  }
}`

const defaultTemperature = 0.2

// Planner turns a Run and a natural-language prompt into a validated Plan.
type Planner struct {
	Gateway         *llm.Gateway
	DefaultProvider string
	DefaultModel    string
	schema          *jsonschema.Schema
}

// New constructs a Planner, compiling the Plan JSON Schema once.
func New(gw *llm.Gateway, defaultProvider, defaultModel string) (*Planner, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(planSchemaJSON)))
	if err != nil {
		return nil, enginerr.Wrap(enginerr.KindValidation, "failed to parse plan schema", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("plan.schema.json", doc); err != nil {
		return nil, enginerr.Wrap(enginerr.KindValidation, "failed to load plan schema", err)
	}
	schema, err := compiler.Compile("plan.schema.json")
	if err != nil {
		return nil, enginerr.Wrap(enginerr.KindValidation, "failed to compile plan schema", err)
	}
	return &Planner{Gateway: gw, DefaultProvider: defaultProvider, DefaultModel: defaultModel, schema: schema}, nil
}

// Plan asks the gateway for a structured plan addressing prompt, validates
// it against the Plan schema, and returns the decoded Plan. Validation
// failure returns an enginerr KindParse error; RunEngine decides whether to
// re-plan.
func (p *Planner) Plan(ctx context.Context, r *run.Run, prompt string) (Plan, error) {
	req := model.Request{
		RunID:       r.ID,
		Provider:    r.Input.ProviderID,
		Model:       r.Input.ModelID,
		Temperature: defaultTemperature,
		Messages: []model.Message{
			{Role: model.RoleSystem, Text: systemPrompt},
			{Role: model.RoleUser, Text: prompt},
		},
		ResponseSchema: json.RawMessage(planSchemaJSON),
	}

	call, err := p.Gateway.GenerateStructured(ctx, req, r.SessionID, p.DefaultProvider, p.DefaultModel)
	if err != nil {
		return Plan{}, err
	}

	var raw any
	if err := json.Unmarshal([]byte(call.Response.Text), &raw); err != nil {
		return Plan{}, enginerr.Wrap(enginerr.KindParse, "planner response is not valid JSON", err)
	}
	if err := p.schema.Validate(raw); err != nil {
		return Plan{}, enginerr.Wrap(enginerr.KindParse, "planner response failed schema validation", err)
	}

	var plan Plan
	if err := json.Unmarshal([]byte(call.Response.Text), &plan); err != nil {
		return Plan{}, enginerr.Wrap(enginerr.KindParse, "failed to decode plan", err)
	}
	if err := validateReferentialIntegrity(plan); err != nil {
		return Plan{}, err
	}
	return plan, nil
}

// validateReferentialIntegrity enforces spec.md §3 Plan: no self-loop, every
// dependsOn id exists among the plan's own tasks.
func validateReferentialIntegrity(plan Plan) error {
	ids := make(map[string]bool, len(plan.Tasks))
	for _, t := range plan.Tasks {
		ids[t.ID] = true
	}
	for _, t := range plan.Tasks {
		for _, dep := range t.DependsOn {
			if dep == t.ID {
				return enginerr.New(enginerr.KindParse, fmt.Sprintf("plan task %s depends on itself", t.ID))
			}
			if !ids[dep] {
				return enginerr.New(enginerr.KindParse, fmt.Sprintf("plan task %s depends on unknown task %s", t.ID, dep))
			}
		}
	}
	return nil
}

const systemPrompt = `You are a planning assistant for an autonomous coding agent. ` +
	`Given a user request, produce a plan: an ordered list of tasks with explicit dependencies. ` +
	`Each task must have a unique id, a type (analyze, edit, test, review, git, or shell), a description, ` +
	`and a dependsOn list of task ids that must complete first. Respond with JSON only, matching the provided schema.`
