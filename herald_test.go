package herald

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/herald/internal"
)

func pipelineFixture(t *testing.T, llm LLMClient, options ...Option) *Pipeline {
	t.Helper()

	registry := plannerRegistry(t)
	store := NewMemoryPlanStore()
	t.Cleanup(func() { store.Close() })

	options = append([]Option{
		WithLogger(internal.TestLogger()),
		WithPolicyRules(DefaultPolicyRules()...),
	}, options...)
	return New(llm, registry, store, nil, options...)
}

func TestPipelineHandleCommand(t *testing.T) {
	ctx := context.Background()

	t.Run("low-risk plan executes immediately", func(t *testing.T) {
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

		var hooked []StepResult
		pipeline := pipelineFixture(t, llm, WithStepHook(func(ctx context.Context, planID string, sr StepResult) {
			hooked = append(hooked, sr)
		}))

		resp, err := pipeline.HandleCommand(ctx, CommandRequest{
			Transcript: "schedule standup tomorrow and remind me to prep",
			Timezone:   "America/New_York",
		})
		gt.NoError(t, err)
		gt.False(t, resp.RequiresConfirmation)
		gt.NotEqual(t, resp.PlanID, "")
		gt.Equal(t, len(resp.DeviceActions), 1)
		gt.Equal(t, resp.DeviceActions[0].ToolName, "ios_reminders.create_reminder")
		gt.S(t, resp.SpokenResponse).Contains("Done: google_calendar.create_event.")
		gt.Equal(t, len(hooked), 2)
	})

	t.Run("destructive plan parks for confirmation", func(t *testing.T) {
		llm := &mockLLM{resp: &Response{
			FunctionCalls: []*FunctionCall{
				{
					ID:        "call_1",
					Name:      "google_calendar-delete_event",
					Arguments: map[string]any{"event_id": "evt_1"},
				},
			},
		}}
		pipeline := pipelineFixture(t, llm)

		resp, err := pipeline.HandleCommand(ctx, CommandRequest{Transcript: "delete the 3pm meeting"})
		gt.NoError(t, err)
		gt.True(t, resp.RequiresConfirmation)
		gt.S(t, resp.ConfirmationPrompt).Contains("permanently delete")
		gt.Equal(t, len(resp.DeviceActions), 0)

		// Nothing has executed yet.
		_, status, err := pipeline.store.Get(ctx, resp.PlanID)
		gt.NoError(t, err)
		gt.Equal(t, status, StatusPendingConfirmation)

		confirmed, err := pipeline.ConfirmPlan(ctx, resp.PlanID)
		gt.NoError(t, err)
		gt.S(t, confirmed.SpokenResponse).Contains("Done: google_calendar.delete_event.")

		// A second confirmation does not execute twice.
		_, err = pipeline.ConfirmPlan(ctx, resp.PlanID)
		gt.Error(t, err)
		gt.True(t, errors.Is(err, ErrPlanNotPending))
	})

	t.Run("conversational reply", func(t *testing.T) {
		llm := &mockLLM{resp: &Response{Texts: []string{"Which meeting did you mean?"}}}
		pipeline := pipelineFixture(t, llm)

		resp, err := pipeline.HandleCommand(ctx, CommandRequest{
			Transcript: "move it",
			SessionID:  "sess_1",
		})
		gt.NoError(t, err)
		gt.Equal(t, resp.SpokenResponse, "Which meeting did you mean?")
		gt.Nil(t, resp.ActionPlan)

		// The turn lands in the session history for the next round.
		history := pipeline.history.Load("sess_1")
		gt.Equal(t, len(history), 2)
		gt.Equal(t, history[0].Role, RoleUser)
		gt.Equal(t, history[1].Content, "Which meeting did you mean?")
	})

	t.Run("planning failure yields a spoken reply", func(t *testing.T) {
		llm := &mockLLM{generateErr: errors.New("503 overloaded")}
		pipeline := pipelineFixture(t, llm)

		resp, err := pipeline.HandleCommand(ctx, CommandRequest{Transcript: "schedule something"})
		gt.NoError(t, err)
		gt.S(t, resp.SpokenResponse).Contains("trouble thinking")
		gt.Nil(t, resp.ActionPlan)
	})

	t.Run("invalid tool call yields a rephrase reply", func(t *testing.T) {
		llm := &mockLLM{resp: &Response{
			FunctionCalls: []*FunctionCall{
				{Name: "google_calendar-teleport", Arguments: map[string]any{}},
			},
		}}
		pipeline := pipelineFixture(t, llm)

		resp, err := pipeline.HandleCommand(ctx, CommandRequest{Transcript: "teleport me"})
		gt.NoError(t, err)
		gt.S(t, resp.SpokenResponse).Contains("rephrase")
	})

	t.Run("session history feeds the next round", func(t *testing.T) {
		llm := &mockLLM{resp: &Response{Texts: []string{"Sure."}}}
		pipeline := pipelineFixture(t, llm)

		_, err := pipeline.HandleCommand(ctx, CommandRequest{Transcript: "hello", SessionID: "sess_2"})
		gt.NoError(t, err)
		_, err = pipeline.HandleCommand(ctx, CommandRequest{Transcript: "thanks", SessionID: "sess_2"})
		gt.NoError(t, err)

		gt.Equal(t, len(llm.lastConfig.History()), 2)
		gt.Equal(t, llm.lastConfig.History()[0].Content, "hello")
	})
}

func TestPipelineDeviceResults(t *testing.T) {
	ctx := context.Background()

	llm := &mockLLM{resp: &Response{
		FunctionCalls: []*FunctionCall{
			{
				ID:        "call_1",
				Name:      "ios_reminders-create_reminder",
				Arguments: map[string]any{"title": "buy milk"},
			},
		},
	}}

	var observed []ResolveOutcome
	pipeline := pipelineFixture(t, llm, WithDeviceResultHook(func(ctx context.Context, planID string, result DeviceActionResult, outcome ResolveOutcome) {
		observed = append(observed, outcome)
	}))

	resp, err := pipeline.HandleCommand(ctx, CommandRequest{Transcript: "remind me to buy milk"})
	gt.NoError(t, err)
	gt.Equal(t, len(resp.DeviceActions), 1)

	action := resp.DeviceActions[0]
	report, err := pipeline.ReportDeviceResults(ctx, resp.PlanID, []DeviceActionResult{
		{ActionID: action.ActionID, IdempotencyKey: action.IdempotencyKey, Success: true},
	})
	gt.NoError(t, err)
	gt.Equal(t, report.Status, "verified")
	gt.Equal(t, report.Outstanding, 0)
	gt.Equal(t, observed, []ResolveOutcome{ResolveApplied})

	_, status, err := pipeline.store.Get(ctx, resp.PlanID)
	gt.NoError(t, err)
	gt.Equal(t, status, StatusReconciled)
}
