// Package herald turns speech transcripts into validated, policy-gated
// action plans and executes them against server tools or hands them to
// the user's device.
package herald

import (
	"context"
	"log/slog"
)

// StepHook observes every executed step, successful or not. Hooks are for
// side channels such as audit trails; they cannot alter the outcome.
type StepHook func(ctx context.Context, planID string, sr StepResult)

// DeviceResultHook observes every device result processed during
// reconciliation.
type DeviceResultHook func(ctx context.Context, planID string, result DeviceActionResult, outcome ResolveOutcome)

// Attachment is a file the pipeline surfaces alongside a response.
type Attachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
}

// CommandRequest is one spoken command from the client.
type CommandRequest struct {
	Transcript      string   `json:"transcript"`
	SessionID       string   `json:"session_id,omitempty"`
	Timezone        string   `json:"timezone,omitempty"`
	Locale          string   `json:"locale,omitempty"`
	LinkedProviders []string `json:"linked_providers,omitempty"`
	Latitude        *float64 `json:"latitude,omitempty"`
	Longitude       *float64 `json:"longitude,omitempty"`
}

// CommandResponse is the pipeline's answer to a command.
type CommandResponse struct {
	SpokenResponse       string         `json:"spoken_response"`
	ActionPlan           *ActionPlan    `json:"action_plan,omitempty"`
	DeviceActions        []DeviceAction `json:"device_actions,omitempty"`
	RequiresConfirmation bool           `json:"requires_confirmation"`
	ConfirmationPrompt   string         `json:"confirmation_prompt,omitempty"`
	PlanID               string         `json:"plan_id,omitempty"`
	Attachments          []Attachment   `json:"attachments,omitempty"`
	UpdatedUserName      string         `json:"updated_user_name,omitempty"`
}

// Pipeline wires the planner, policy gate, executor and reconciler into
// the three operations a client calls: command, confirm, device-result.
type Pipeline struct {
	registry   *Registry
	store      PlanStore
	planner    *Planner
	executor   *Executor
	reconciler *Reconciler
	history    *History

	logger      *slog.Logger
	rules       []PolicyRule
	stepHooks   []StepHook
	deviceHooks []DeviceResultHook
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger attached to every request context.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithPolicyRules adds policy rules to the confirmation gate.
func WithPolicyRules(rules ...PolicyRule) Option {
	return func(p *Pipeline) {
		p.rules = append(p.rules, rules...)
	}
}

// WithStepHook registers a hook run after every executed step.
func WithStepHook(hooks ...StepHook) Option {
	return func(p *Pipeline) {
		p.stepHooks = append(p.stepHooks, hooks...)
	}
}

// WithDeviceResultHook registers a hook run for every reconciled device
// result.
func WithDeviceResultHook(hooks ...DeviceResultHook) Option {
	return func(p *Pipeline) {
		p.deviceHooks = append(p.deviceHooks, hooks...)
	}
}

// WithHistory sets the conversation history store.
func WithHistory(history *History) Option {
	return func(p *Pipeline) {
		p.history = history
	}
}

// New creates a Pipeline. The planner takes extra options so callers can
// inject domain rules into the system prompt.
func New(llm LLMClient, registry *Registry, store PlanStore, plannerOptions []PlannerOption, options ...Option) *Pipeline {
	p := &Pipeline{
		registry:   registry,
		store:      store,
		planner:    NewPlanner(llm, registry, plannerOptions...),
		executor:   NewExecutor(registry, store),
		reconciler: NewReconciler(store),
		history:    NewHistory(),
		logger:     defaultLogger,
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// failureReply maps a planning failure to a spoken response. Planning
// failures are conversational outcomes, not transport errors: the client
// always gets a usable spoken_response.
func failureReply(reason PlanningReason) string {
	switch reason {
	case ReasonUnknownTool, ReasonSchemaMismatch:
		return "I couldn't safely map that to an action. Could you rephrase?"
	case ReasonLLMUnavailable:
		return "I'm having trouble thinking right now. Please try again in a moment."
	case ReasonAmbiguousIntent:
		return "I'm not sure what you meant. Could you rephrase?"
	default:
		return ""
	}
}

// HandleCommand plans, gates and (when no confirmation is needed)
// executes a spoken command.
func (p *Pipeline) HandleCommand(ctx context.Context, req CommandRequest) (*CommandResponse, error) {
	ctx = ctxWithLogger(ctx, p.logger)
	logger := LoggerFromContext(ctx)

	cctx := ConversationContext{
		Timezone:  req.Timezone,
		Locale:    req.Locale,
		Providers: req.LinkedProviders,
		History:   p.history.Load(req.SessionID),
	}

	outcome, err := p.planner.Plan(ctx, req.Transcript, cctx)
	if err != nil {
		reason := PlanningReasonOf(err)
		reply := failureReply(reason)
		if reply == "" {
			return nil, err
		}
		logger.Warn("planning failed", "reason", reason, "error", err)
		return &CommandResponse{SpokenResponse: reply}, nil
	}

	if outcome.Reply != "" {
		p.recordTurn(req.SessionID, req.Transcript, outcome.Reply)
		return &CommandResponse{SpokenResponse: outcome.Reply}, nil
	}

	plan := outcome.Plan
	gated := EvaluatePolicy(ctx, p.registry, plan, p.rules...)

	if gated.RequiresConfirmation {
		if err := p.store.Create(ctx, plan, StatusPendingConfirmation, gated.ConfirmationPrompt); err != nil {
			return nil, err
		}
		p.recordTurn(req.SessionID, req.Transcript, gated.ConfirmationPrompt)
		return &CommandResponse{
			SpokenResponse:       gated.ConfirmationPrompt,
			ActionPlan:           plan,
			RequiresConfirmation: true,
			ConfirmationPrompt:   gated.ConfirmationPrompt,
			PlanID:               plan.PlanID,
		}, nil
	}

	if err := p.store.Create(ctx, plan, StatusExecuted, ""); err != nil {
		return nil, err
	}

	exec, err := p.runPlan(ctx, plan)
	if err != nil {
		return nil, err
	}

	p.recordTurn(req.SessionID, req.Transcript, exec.SpokenResponse)
	return &CommandResponse{
		SpokenResponse: exec.SpokenResponse,
		ActionPlan:     plan,
		DeviceActions:  exec.DeviceActions,
		PlanID:         plan.PlanID,
	}, nil
}

// ConfirmPlan executes a plan that was parked waiting for the user's
// confirmation. The store transition is atomic, so a duplicate confirm
// fails with ErrPlanNotPending instead of executing twice.
func (p *Pipeline) ConfirmPlan(ctx context.Context, planID string) (*CommandResponse, error) {
	ctx = ctxWithLogger(ctx, p.logger)

	plan, err := p.store.TakePendingConfirmation(ctx, planID)
	if err != nil {
		return nil, err
	}

	exec, err := p.runPlan(ctx, plan)
	if err != nil {
		return nil, err
	}

	return &CommandResponse{
		SpokenResponse: exec.SpokenResponse,
		ActionPlan:     plan,
		DeviceActions:  exec.DeviceActions,
		PlanID:         plan.PlanID,
	}, nil
}

// ReportDeviceResults reconciles a batch of device-reported results
// against the plan's outstanding actions.
func (p *Pipeline) ReportDeviceResults(ctx context.Context, planID string, results []DeviceActionResult) (*ReconciliationReport, error) {
	ctx = ctxWithLogger(ctx, p.logger)

	report, err := p.reconciler.Reconcile(ctx, planID, results)
	if err != nil {
		return nil, err
	}

	for i, entry := range report.Entries {
		for _, hook := range p.deviceHooks {
			hook(ctx, planID, results[i], entry.Outcome)
		}
	}

	return report, nil
}

func (p *Pipeline) runPlan(ctx context.Context, plan *ActionPlan) (*ExecutionOutcome, error) {
	exec, err := p.executor.Execute(ctx, plan)
	if err != nil {
		return nil, err
	}

	for _, sr := range exec.StepResults {
		if sr.Success && sr.Result != nil && sr.Step.Target == TargetServer {
			VerifyServerStep(ctx, p.registry, sr)
		}
		for _, hook := range p.stepHooks {
			hook(ctx, plan.PlanID, sr)
		}
	}

	return exec, nil
}

func (p *Pipeline) recordTurn(sessionID, transcript, reply string) {
	if sessionID == "" {
		return
	}
	p.history.Append(sessionID,
		Message{Role: RoleUser, Content: transcript},
		Message{Role: RoleAssistant, Content: reply},
	)
}
