package herald

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// ConversationContext carries per-request context the planner folds into
// the system prompt and the resulting plan.
type ConversationContext struct {
	Timezone  string
	Locale    string
	Providers []string
	History   []Message
}

// PlanOutcome is the result of a planning round. Exactly one of Plan and
// Reply is set: Plan when the transcript maps to tool calls, Reply when the
// model answered conversationally (small talk or a clarifying question).
type PlanOutcome struct {
	Plan  *ActionPlan
	Reply string
}

// Planner turns a raw transcript into a validated ActionPlan. Every tool
// call proposed by the model is checked against the registry before it is
// admitted into a plan; a single invalid call rejects the whole round.
type Planner struct {
	llm      LLMClient
	registry *Registry
	rules    []string
	now      func() time.Time
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithPlannerRules appends domain-specific instructions to the tool-use
// rules section of the system prompt.
func WithPlannerRules(rules ...string) PlannerOption {
	return func(p *Planner) {
		p.rules = append(p.rules, rules...)
	}
}

// WithPlannerClock overrides the planner's time source.
func WithPlannerClock(now func() time.Time) PlannerOption {
	return func(p *Planner) {
		p.now = now
	}
}

// NewPlanner creates a Planner over the given LLM client and tool registry.
func NewPlanner(llm LLMClient, registry *Registry, options ...PlannerOption) *Planner {
	planner := &Planner{
		llm:      llm,
		registry: registry,
		now:      time.Now,
	}
	for _, opt := range options {
		opt(planner)
	}
	return planner
}

// LLM provider APIs restrict function names to [a-zA-Z0-9_-]; tool names
// use dots as namespace separators, so the two functions map between the
// alphabets. The mapping is lossless because tool names never contain '-'.
func toAPIName(name string) string {
	return strings.ReplaceAll(name, ".", "-")
}

func fromAPIName(name string) string {
	return strings.ReplaceAll(name, "-", ".")
}

// Plan sends the transcript to the LLM and validates the proposed tool
// calls into an ActionPlan.
//
// The validation fails closed: an unknown tool name or a schema violation
// in any proposed call aborts planning with ErrUnknownTool or
// ErrSchemaMismatch rather than dropping the offending step. Transport or
// provider failures surface as ErrLLMUnavailable, and a response carrying
// neither tool calls nor text as ErrAmbiguousIntent.
func (p *Planner) Plan(ctx context.Context, transcript string, cctx ConversationContext) (*PlanOutcome, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil, goerr.Wrap(ErrEmptyTranscript, "transcript has no content")
	}

	prompt, err := p.systemPrompt(cctx)
	if err != nil {
		return nil, err
	}

	session, err := p.llm.NewSession(ctx,
		WithSessionSystemPrompt(prompt),
		WithSessionTools(p.apiSpecs()...),
		WithSessionHistory(cctx.History),
	)
	if err != nil {
		return nil, goerr.Wrap(ErrLLMUnavailable, "failed to open LLM session", goerr.V("cause", err.Error()))
	}

	resp, err := session.GenerateContent(ctx, Text(transcript))
	if err != nil {
		return nil, goerr.Wrap(ErrLLMUnavailable, "LLM request failed", goerr.V("cause", err.Error()))
	}

	logger := LoggerFromContext(ctx)
	logger.Debug("planner response",
		"texts", len(resp.Texts),
		"function_calls", len(resp.FunctionCalls),
		"input_token", resp.InputToken,
		"output_token", resp.OutputToken,
	)

	if !resp.HasData() {
		return nil, goerr.Wrap(ErrAmbiguousIntent, "LLM returned neither tool calls nor text")
	}

	if len(resp.FunctionCalls) == 0 {
		reply := strings.TrimSpace(strings.Join(resp.Texts, "\n"))
		if reply == "" {
			return nil, goerr.Wrap(ErrAmbiguousIntent, "LLM returned only blank text")
		}
		return &PlanOutcome{Reply: reply}, nil
	}

	steps := make([]ActionStep, 0, len(resp.FunctionCalls))
	for _, call := range resp.FunctionCalls {
		name := fromAPIName(call.Name)

		spec, ok := p.registry.Spec(name)
		if !ok {
			return nil, goerr.Wrap(ErrUnknownTool, "LLM proposed a tool that is not registered",
				goerr.V("tool", name))
		}

		if err := p.registry.ValidateArguments(name, call.Arguments); err != nil {
			return nil, err
		}

		args, err := ArgumentsFromAny(call.Arguments)
		if err != nil {
			return nil, goerr.Wrap(ErrSchemaMismatch, "arguments contain unrepresentable values",
				goerr.V("tool", name), goerr.V("cause", err.Error()))
		}

		steps = append(steps, ActionStep{
			ToolName:           name,
			Args:               args,
			Risk:               spec.Risk,
			ConfirmationPhrase: spec.ConfirmationPhrase,
			Target:             spec.Target,
			ToolCallID:         call.ID,
		})
	}

	plan := &ActionPlan{
		PlanID:     uuid.NewString(),
		UserIntent: transcript,
		Timezone:   cctx.Timezone,
		Locale:     cctx.Locale,
		Steps:      steps,
		CreatedAt:  p.now().UTC(),
	}

	logger.Info("plan created",
		"plan_id", plan.PlanID,
		"steps", len(plan.Steps),
		"max_risk", plan.MaxRisk(),
	)

	return &PlanOutcome{Plan: plan}, nil
}

// apiSpecs clones the registry's specs with names converted to the
// provider-safe alphabet.
func (p *Planner) apiSpecs() []*ToolSpec {
	specs := p.registry.Specs()
	renamed := make([]*ToolSpec, len(specs))
	for i, spec := range specs {
		clone := *spec
		clone.Name = toAPIName(spec.Name)
		renamed[i] = &clone
	}
	return renamed
}

func (p *Planner) systemPrompt(cctx ConversationContext) (string, error) {
	loc, err := time.LoadLocation(cctx.Timezone)
	if err != nil {
		loc = time.UTC
	}
	localNow := p.now().In(loc)

	locale := cctx.Locale
	if locale == "" {
		locale = "en-US"
	}
	providers := strings.Join(cctx.Providers, ", ")
	if providers == "" {
		providers = "(none linked)"
	}

	data := plannerTemplateData{
		ToolCategories: p.toolCategories(),
		ToolRules:      p.toolRules(),
		Now:            localNow.Format("Monday, January 2, 2006 at 3:04 PM"),
		Timezone:       cctx.Timezone,
		Locale:         locale,
		Providers:      providers,
	}

	var buf bytes.Buffer
	if err := plannerTmpl.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to render planner prompt")
	}
	return buf.String(), nil
}

func (p *Planner) toolCategories() string {
	specs := p.registry.Specs()
	if len(specs) == 0 {
		return "- (no tools registered)"
	}

	groups := make(map[string][]string)
	for _, spec := range specs {
		ns := spec.Name
		op := spec.Name
		if i := strings.Index(spec.Name, "."); i >= 0 {
			ns = spec.Name[:i]
			op = spec.Name[i+1:]
		}
		groups[ns] = append(groups[ns], op)
	}

	names := make([]string, 0, len(groups))
	for ns := range groups {
		names = append(names, ns)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, ns := range names {
		lines = append(lines, fmt.Sprintf("- **%s**: %s", ns, strings.Join(groups[ns], ", ")))
	}
	return strings.Join(lines, "\n")
}

func (p *Planner) toolRules() string {
	rules := []string{
		"ISO-8601 datetimes. Relative dates resolve from current date/time above.",
	}
	rules = append(rules, p.rules...)
	rules = append(rules, "When in doubt, call the closest matching tool rather than responding with text.")

	lines := make([]string, len(rules))
	for i, rule := range rules {
		lines[i] = fmt.Sprintf("%d. %s", i+1, rule)
	}
	return strings.Join(lines, "\n")
}
