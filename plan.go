package herald

import (
	"time"
)

// ActionStep is one planned tool call within an ActionPlan.
type ActionStep struct {
	ToolName             string          `json:"tool_name"`
	Args                 Arguments       `json:"args"`
	Risk                 RiskLevel       `json:"risk_level"`
	RequiresConfirmation bool            `json:"requires_confirmation"`
	ConfirmationPhrase   string          `json:"confirmation_phrase,omitempty"`
	Target               ExecutionTarget `json:"execution_target"`
	ToolCallID           string          `json:"tool_call_id,omitempty"`
}

// ActionPlan is the ordered set of tool invocations produced from one user
// transcript. Step order is execution order.
type ActionPlan struct {
	PlanID     string       `json:"plan_id"`
	UserIntent string       `json:"user_intent"`
	Timezone   string       `json:"timezone"`
	Locale     string       `json:"locale"`
	Steps      []ActionStep `json:"steps"`
	CreatedAt  time.Time    `json:"created_at"`
}

// RequiresConfirmation reports whether any step of the plan requires
// explicit user confirmation.
func (p *ActionPlan) RequiresConfirmation() bool {
	for _, step := range p.Steps {
		if step.RequiresConfirmation {
			return true
		}
	}
	return false
}

// MaxRisk returns the highest risk level among the plan's steps, or RiskLow
// for an empty plan.
func (p *ActionPlan) MaxRisk() RiskLevel {
	risk := RiskLow
	for _, step := range p.Steps {
		risk = risk.Max(step.Risk)
	}
	return risk
}

// DeviceAction is a step delegated to the client device for local
// execution. The device must report back a DeviceActionResult carrying the
// same ActionID and IdempotencyKey.
type DeviceAction struct {
	ActionID       string    `json:"action_id"`
	ToolName       string    `json:"tool_name"`
	Args           Arguments `json:"args"`
	IdempotencyKey string    `json:"idempotency_key"`
}

// DeviceActionResult is the device's report of a DeviceAction's outcome.
type DeviceActionResult struct {
	ActionID       string `json:"action_id"`
	IdempotencyKey string `json:"idempotency_key"`
	Success        bool   `json:"success"`
	Result         Value  `json:"result"`
	Error          string `json:"error,omitempty"`
}

// PlanStatus is the lifecycle state of a stored plan.
type PlanStatus string

const (
	// StatusPendingConfirmation means the plan was produced but awaits the
	// user's explicit confirmation before any step runs.
	StatusPendingConfirmation PlanStatus = "pending_confirmation"

	// StatusExecuted means server steps ran and no device actions remain
	// outstanding.
	StatusExecuted PlanStatus = "executed"

	// StatusAwaitingDevice means device actions were dispatched and their
	// results are not yet fully reconciled.
	StatusAwaitingDevice PlanStatus = "awaiting_device"

	// StatusReconciled means every dispatched device action has a recorded
	// result. Reconciled plans are eligible for eviction.
	StatusReconciled PlanStatus = "reconciled"
)
