package herald

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
)

// mockLLM scripts one GenerateContent round and records what it was called
// with. It is shared across planner and pipeline tests.
type mockLLM struct {
	resp          *Response
	generateErr   error
	newSessionErr error

	lastConfig *SessionConfig
	lastInputs []Input
}

type mockSession struct {
	owner *mockLLM
}

func (m *mockLLM) NewSession(ctx context.Context, options ...SessionOption) (Session, error) {
	if m.newSessionErr != nil {
		return nil, m.newSessionErr
	}
	m.lastConfig = NewSessionConfig(options...)
	return &mockSession{owner: m}, nil
}

func (s *mockSession) GenerateContent(ctx context.Context, input ...Input) (*Response, error) {
	s.owner.lastInputs = input
	if s.owner.generateErr != nil {
		return nil, s.owner.generateErr
	}
	return s.owner.resp, nil
}

func plannerRegistry(t *testing.T) *Registry {
	t.Helper()
	registry, err := NewRegistry(context.Background(), WithTools(
		newEventTool(),
		NewDeviceTool(&ToolSpec{
			Name: "ios_reminders.create_reminder",
			Parameters: map[string]*Parameter{
				"title": {Type: TypeString},
				"due":   {Type: TypeString},
			},
			Required: []string{"title"},
		}),
		NewServerTool(&ToolSpec{
			Name:               "google_calendar.delete_event",
			Risk:               RiskHigh,
			Irreversible:       true,
			ConfirmationPhrase: "This will permanently delete an event. Are you sure?",
			Parameters: map[string]*Parameter{
				"event_id": {Type: TypeString},
			},
			Required: []string{"event_id"},
		}, func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"deleted": true}, nil
		}),
		NewServerTool(&ToolSpec{
			Name: "google_calendar.update_event",
			Risk: RiskMedium,
			Parameters: map[string]*Parameter{
				"event_id": {Type: TypeString},
				"send_updates": {
					Type: TypeString,
					Enum: []string{"all", "externalOnly", "none"},
				},
			},
			Required: []string{"event_id"},
		}, func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"event_id": args["event_id"], "updated": true}, nil
		}),
	))
	gt.NoError(t, err)
	return registry
}

func TestPlannerPlan(t *testing.T) {
	ctx := context.Background()
	registry := plannerRegistry(t)
	fixed := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)

	t.Run("tool calls become a plan", func(t *testing.T) {
		llm := &mockLLM{resp: &Response{
			FunctionCalls: []*FunctionCall{
				{
					ID:   "call_1",
					Name: "google_calendar-create_event",
					Arguments: map[string]any{
						"title": "standup",
						"start": "2025-01-07T09:00:00Z",
					},
				},
				{
					ID:        "call_2",
					Name:      "ios_reminders-create_reminder",
					Arguments: map[string]any{"title": "prep notes"},
				},
			},
		}}

		planner := NewPlanner(llm, registry, WithPlannerClock(func() time.Time { return fixed }))
		outcome, err := planner.Plan(ctx, "schedule standup tomorrow and remind me to prep", ConversationContext{
			Timezone: "America/New_York",
		})
		gt.NoError(t, err)
		gt.Equal(t, outcome.Reply, "")

		gt.NotNil(t, outcome.Plan)
		plan := outcome.Plan
		gt.NotEqual(t, plan.PlanID, "")
		gt.Equal(t, plan.CreatedAt, fixed)
		gt.Equal(t, len(plan.Steps), 2)

		gt.Equal(t, plan.Steps[0].ToolName, "google_calendar.create_event")
		gt.Equal(t, plan.Steps[0].Target, TargetServer)
		gt.Equal(t, plan.Steps[0].ToolCallID, "call_1")

		gt.Equal(t, plan.Steps[1].ToolName, "ios_reminders.create_reminder")
		gt.Equal(t, plan.Steps[1].Target, TargetDevice)
	})

	t.Run("tool names sent to the provider use the safe alphabet", func(t *testing.T) {
		llm := &mockLLM{resp: &Response{Texts: []string{"hi"}}}
		planner := NewPlanner(llm, registry)

		_, err := planner.Plan(ctx, "hello", ConversationContext{})
		gt.NoError(t, err)

		gt.NotNil(t, llm.lastConfig)
		cfg := llm.lastConfig
		for _, spec := range cfg.Tools() {
			gt.False(t, strings.Contains(spec.Name, "."))
		}
		gt.Equal(t, len(cfg.Tools()), registry.Len())
	})

	t.Run("system prompt carries context", func(t *testing.T) {
		llm := &mockLLM{resp: &Response{Texts: []string{"hi"}}}
		planner := NewPlanner(llm, registry,
			WithPlannerClock(func() time.Time { return fixed }),
			WithPlannerRules("Default event duration is 60 minutes."),
		)

		_, err := planner.Plan(ctx, "hello", ConversationContext{
			Timezone:  "Asia/Tokyo",
			Locale:    "ja-JP",
			Providers: []string{"google_calendar"},
		})
		gt.NoError(t, err)

		prompt := llm.lastConfig.SystemPrompt()
		gt.S(t, prompt).Contains("Asia/Tokyo")
		gt.S(t, prompt).Contains("ja-JP")
		gt.S(t, prompt).Contains("google_calendar")
		gt.S(t, prompt).Contains("Default event duration is 60 minutes.")
	})

	t.Run("text-only response is a conversational reply", func(t *testing.T) {
		llm := &mockLLM{resp: &Response{Texts: []string{"Which day did you mean?"}}}
		planner := NewPlanner(llm, registry)

		outcome, err := planner.Plan(ctx, "move the thing", ConversationContext{})
		gt.NoError(t, err)
		gt.Nil(t, outcome.Plan)
		gt.Equal(t, outcome.Reply, "Which day did you mean?")
	})

	t.Run("empty transcript", func(t *testing.T) {
		planner := NewPlanner(&mockLLM{}, registry)
		_, err := planner.Plan(ctx, "   ", ConversationContext{})
		gt.Error(t, err)
		gt.True(t, errors.Is(err, ErrEmptyTranscript))
	})

	t.Run("unknown tool rejects the whole round", func(t *testing.T) {
		llm := &mockLLM{resp: &Response{
			FunctionCalls: []*FunctionCall{
				{Name: "google_calendar-create_event", Arguments: map[string]any{
					"title": "standup", "start": "2025-01-07T09:00:00Z",
				}},
				{Name: "google_calendar-teleport", Arguments: map[string]any{}},
			},
		}}
		planner := NewPlanner(llm, registry)

		_, err := planner.Plan(ctx, "do two things", ConversationContext{})
		gt.Error(t, err)
		gt.True(t, errors.Is(err, ErrUnknownTool))
		gt.Equal(t, PlanningReasonOf(err), ReasonUnknownTool)
	})

	t.Run("schema violation rejects the whole round", func(t *testing.T) {
		llm := &mockLLM{resp: &Response{
			FunctionCalls: []*FunctionCall{
				{Name: "google_calendar-create_event", Arguments: map[string]any{
					"title": "standup",
				}},
			},
		}}
		planner := NewPlanner(llm, registry)

		_, err := planner.Plan(ctx, "schedule standup", ConversationContext{})
		gt.Error(t, err)
		gt.True(t, errors.Is(err, ErrSchemaMismatch))
		gt.Equal(t, PlanningReasonOf(err), ReasonSchemaMismatch)
	})

	t.Run("session failure maps to unavailable", func(t *testing.T) {
		planner := NewPlanner(&mockLLM{newSessionErr: errors.New("dial tcp: refused")}, registry)
		_, err := planner.Plan(ctx, "schedule standup", ConversationContext{})
		gt.Error(t, err)
		gt.True(t, errors.Is(err, ErrLLMUnavailable))
	})

	t.Run("generation failure maps to unavailable", func(t *testing.T) {
		planner := NewPlanner(&mockLLM{generateErr: errors.New("429 too many requests")}, registry)
		_, err := planner.Plan(ctx, "schedule standup", ConversationContext{})
		gt.Error(t, err)
		gt.Equal(t, PlanningReasonOf(err), ReasonLLMUnavailable)
	})

	t.Run("empty response is ambiguous", func(t *testing.T) {
		planner := NewPlanner(&mockLLM{resp: &Response{}}, registry)
		_, err := planner.Plan(ctx, "schedule standup", ConversationContext{})
		gt.Error(t, err)
		gt.True(t, errors.Is(err, ErrAmbiguousIntent))
	})

	t.Run("blank text response is ambiguous", func(t *testing.T) {
		planner := NewPlanner(&mockLLM{resp: &Response{Texts: []string{"  ", "\n"}}}, registry)
		_, err := planner.Plan(ctx, "schedule standup", ConversationContext{})
		gt.Error(t, err)
		gt.True(t, errors.Is(err, ErrAmbiguousIntent))
	})
}

func TestAPINameMapping(t *testing.T) {
	gt.Equal(t, toAPIName("google_calendar.create_event"), "google_calendar-create_event")
	gt.Equal(t, fromAPIName("google_calendar-create_event"), "google_calendar.create_event")
	gt.Equal(t, fromAPIName(toAPIName("a.b.c")), "a.b.c")
}
