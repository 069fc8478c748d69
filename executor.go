package herald

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// StepResult is the outcome of one plan step. Exactly one of Result and
// DeviceAction is set for a successful step: Result for server tools,
// DeviceAction for steps handed off to the device.
type StepResult struct {
	Step         ActionStep
	Success      bool
	Result       map[string]any
	Error        string
	DeviceAction *DeviceAction
}

// ExecutionOutcome collects the results of executing a plan.
type ExecutionOutcome struct {
	SpokenResponse string
	DeviceActions  []DeviceAction
	StepResults    []StepResult
	AllSucceeded   bool
}

func (o *ExecutionOutcome) add(sr StepResult) {
	o.StepResults = append(o.StepResults, sr)
	if sr.DeviceAction != nil {
		o.DeviceActions = append(o.DeviceActions, *sr.DeviceAction)
	}
	if !sr.Success {
		o.AllSucceeded = false
	}
}

// IdempotencyKey derives the deterministic key for a plan step. The same
// plan, step position and tool always produce the same key, so a re-sent
// plan cannot mint a second effect for the same step.
func IdempotencyKey(planID string, stepIndex int, toolName string) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%d|%s", planID, stepIndex, toolName))
	return hex.EncodeToString(sum[:])
}

// Executor runs the server-side steps of a plan and mints DeviceActions
// for device-targeted steps. Step failures are recorded, not returned:
// Execute only errors when the store rejects the plan's bookkeeping.
//
// The Executor keeps no state of its own. Replay protection for device
// steps lives in the idempotency keys and the store's check-and-set; a
// re-sent plan re-mints its actions so a client that lost the response
// still receives them, and the store deduplicates the effects.
type Executor struct {
	registry *Registry
	store    PlanStore
}

// NewExecutor creates an Executor over the given registry and plan store.
func NewExecutor(registry *Registry, store PlanStore) *Executor {
	return &Executor{
		registry: registry,
		store:    store,
	}
}

// Execute runs every step of the plan in order. A failed step does not
// stop the plan unless its tool is marked critical. Device actions minted
// during the run are registered with the store as outstanding.
func (e *Executor) Execute(ctx context.Context, plan *ActionPlan) (*ExecutionOutcome, error) {
	logger := LoggerFromContext(ctx)
	outcome := &ExecutionOutcome{AllSucceeded: true}

	for i, step := range plan.Steps {
		key := IdempotencyKey(plan.PlanID, i, step.ToolName)
		sr := e.executeStep(ctx, step, key)
		outcome.add(sr)

		if !sr.Success {
			logger.Error("step failed",
				"plan_id", plan.PlanID,
				"tool", step.ToolName,
				"error", sr.Error,
			)
			if spec, ok := e.registry.Spec(step.ToolName); ok && spec.Critical {
				logger.Warn("aborting remaining steps after critical failure",
					"plan_id", plan.PlanID,
					"tool", step.ToolName,
					"remaining", len(plan.Steps)-i-1,
				)
				break
			}
		}
	}

	if len(outcome.DeviceActions) > 0 {
		if err := e.store.MarkOutstandingDeviceActions(ctx, plan.PlanID, outcome.DeviceActions); err != nil {
			return nil, err
		}
	}

	outcome.SpokenResponse = spokenSummary(plan, outcome)
	return outcome, nil
}

func (e *Executor) executeStep(ctx context.Context, step ActionStep, key string) StepResult {
	logger := LoggerFromContext(ctx)

	if step.Target == TargetDevice {
		action := &DeviceAction{
			ActionID:       uuid.NewString(),
			ToolName:       step.ToolName,
			Args:           step.Args,
			IdempotencyKey: key,
		}
		return StepResult{Step: step, Success: true, DeviceAction: action}
	}

	tool, ok := e.registry.Lookup(step.ToolName)
	if !ok {
		return StepResult{
			Step:    step,
			Success: false,
			Error:   fmt.Sprintf("unknown tool: %s", step.ToolName),
		}
	}

	result, err := tool.Run(ctx, step.Args.AnyMap())
	if err != nil {
		return StepResult{Step: step, Success: false, Error: err.Error()}
	}

	logger.Info("step executed", "tool", step.ToolName, "key", key)
	return StepResult{Step: step, Success: true, Result: result}
}

// spokenSummary renders a short spoken response describing what the
// executor did with each step.
func spokenSummary(plan *ActionPlan, outcome *ExecutionOutcome) string {
	if len(plan.Steps) == 0 {
		return "I didn't find any actions to take."
	}

	parts := make([]string, 0, len(outcome.StepResults))
	for _, sr := range outcome.StepResults {
		switch {
		case sr.DeviceAction != nil:
			parts = append(parts, fmt.Sprintf("Sending '%s' to your device.", sr.Step.ToolName))
		case sr.Success:
			parts = append(parts, fmt.Sprintf("Done: %s.", sr.Step.ToolName))
		default:
			parts = append(parts, fmt.Sprintf("Failed: %s (%s)", sr.Step.ToolName, sr.Error))
		}
	}

	if len(parts) == 0 {
		return fmt.Sprintf("Planned: %s", plan.UserIntent)
	}
	return strings.Join(parts, " ")
}
