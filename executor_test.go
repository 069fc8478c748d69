package herald

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
)

func TestIdempotencyKey(t *testing.T) {
	key := IdempotencyKey("plan_1", 0, "google_calendar.create_event")

	gt.Equal(t, key, IdempotencyKey("plan_1", 0, "google_calendar.create_event"))
	gt.NotEqual(t, key, IdempotencyKey("plan_1", 1, "google_calendar.create_event"))
	gt.NotEqual(t, key, IdempotencyKey("plan_2", 0, "google_calendar.create_event"))
	gt.NotEqual(t, key, IdempotencyKey("plan_1", 0, "google_calendar.delete_event"))
	gt.Equal(t, len(key), 64)
}

func executorRegistry(t *testing.T, failing, critical bool) *Registry {
	t.Helper()

	tools := []Tool{
		NewServerTool(&ToolSpec{
			Name: "calendar.create_event",
			Parameters: map[string]*Parameter{
				"title": {Type: TypeString},
			},
		}, func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"event_id": "evt_1"}, nil
		}),
		NewServerTool(&ToolSpec{
			Name:     "calendar.flaky",
			Critical: critical,
			Parameters: map[string]*Parameter{
				"x": {Type: TypeString},
			},
		}, func(ctx context.Context, args map[string]any) (map[string]any, error) {
			if failing {
				return nil, errors.New("upstream 503")
			}
			return map[string]any{"ok": true}, nil
		}),
		NewDeviceTool(&ToolSpec{
			Name: "ios_reminders.create_reminder",
			Parameters: map[string]*Parameter{
				"title": {Type: TypeString},
			},
		}),
	}

	registry, err := NewRegistry(context.Background(), WithTools(tools...))
	gt.NoError(t, err)
	return registry
}

func executorPlan(steps ...ActionStep) *ActionPlan {
	return &ActionPlan{
		PlanID:     "plan_exec",
		UserIntent: "test",
		Steps:      steps,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestExecutorExecute(t *testing.T) {
	ctx := context.Background()

	t.Run("mixed server and device steps", func(t *testing.T) {
		registry := executorRegistry(t, false, false)
		store := NewMemoryPlanStore()
		defer store.Close()

		plan := executorPlan(
			ActionStep{ToolName: "calendar.create_event", Args: Arguments{"title": String("standup")}, Target: TargetServer},
			ActionStep{ToolName: "ios_reminders.create_reminder", Args: Arguments{"title": String("prep")}, Target: TargetDevice},
		)
		gt.NoError(t, store.Create(ctx, plan, StatusExecuted, ""))

		executor := NewExecutor(registry, store)
		outcome, err := executor.Execute(ctx, plan)
		gt.NoError(t, err)
		gt.True(t, outcome.AllSucceeded)
		gt.Equal(t, len(outcome.StepResults), 2)
		gt.Equal(t, len(outcome.DeviceActions), 1)

		server := outcome.StepResults[0]
		gt.True(t, server.Success)
		gt.Equal(t, server.Result["event_id"], any("evt_1"))
		gt.Nil(t, server.DeviceAction)

		device := outcome.StepResults[1]
		gt.True(t, device.Success)
		gt.NotNil(t, device.DeviceAction)
		gt.NotEqual(t, device.DeviceAction.ActionID, "")
		gt.Equal(t, device.DeviceAction.IdempotencyKey, IdempotencyKey(plan.PlanID, 1, "ios_reminders.create_reminder"))

		// Device actions are registered as outstanding.
		outstanding, err := store.OutstandingDeviceActions(ctx, plan.PlanID)
		gt.NoError(t, err)
		gt.Equal(t, len(outstanding), 1)

		_, status, err := store.Get(ctx, plan.PlanID)
		gt.NoError(t, err)
		gt.Equal(t, status, StatusAwaitingDevice)

		gt.S(t, outcome.SpokenResponse).Contains("Done: calendar.create_event.")
		gt.S(t, outcome.SpokenResponse).Contains("Sending 'ios_reminders.create_reminder' to your device.")
	})

	t.Run("non-critical failure continues siblings", func(t *testing.T) {
		registry := executorRegistry(t, true, false)
		store := NewMemoryPlanStore()
		defer store.Close()

		plan := executorPlan(
			ActionStep{ToolName: "calendar.flaky", Args: Arguments{"x": String("a")}, Target: TargetServer},
			ActionStep{ToolName: "calendar.create_event", Args: Arguments{"title": String("standup")}, Target: TargetServer},
		)

		executor := NewExecutor(registry, store)
		outcome, err := executor.Execute(ctx, plan)
		gt.NoError(t, err)
		gt.False(t, outcome.AllSucceeded)
		gt.Equal(t, len(outcome.StepResults), 2)
		gt.False(t, outcome.StepResults[0].Success)
		gt.S(t, outcome.StepResults[0].Error).Contains("upstream 503")
		gt.True(t, outcome.StepResults[1].Success)
	})

	t.Run("critical failure aborts remaining steps", func(t *testing.T) {
		registry := executorRegistry(t, true, true)
		store := NewMemoryPlanStore()
		defer store.Close()

		plan := executorPlan(
			ActionStep{ToolName: "calendar.flaky", Args: Arguments{"x": String("a")}, Target: TargetServer},
			ActionStep{ToolName: "calendar.create_event", Args: Arguments{"title": String("standup")}, Target: TargetServer},
		)

		executor := NewExecutor(registry, store)
		outcome, err := executor.Execute(ctx, plan)
		gt.NoError(t, err)
		gt.False(t, outcome.AllSucceeded)
		gt.Equal(t, len(outcome.StepResults), 1)
	})

	t.Run("re-execution re-mints device actions", func(t *testing.T) {
		registry := executorRegistry(t, false, false)
		store := NewMemoryPlanStore()
		defer store.Close()

		plan := executorPlan(ActionStep{ToolName: "ios_reminders.create_reminder", Args: Arguments{"title": String("prep")}, Target: TargetDevice})
		gt.NoError(t, store.Create(ctx, plan, StatusExecuted, ""))
		executor := NewExecutor(registry, store)

		first, err := executor.Execute(ctx, plan)
		gt.NoError(t, err)
		gt.Equal(t, len(first.DeviceActions), 1)

		// A client that lost the first response gets the action again on a
		// re-sent plan, under the same idempotency key.
		second, err := executor.Execute(ctx, plan)
		gt.NoError(t, err)
		gt.Equal(t, len(second.DeviceActions), 1)
		gt.Nil(t, second.StepResults[0].Result)
		gt.Equal(t, second.DeviceActions[0].IdempotencyKey, first.DeviceActions[0].IdempotencyKey)

		// The store collapses the two mints onto the key: only the latest
		// action is outstanding.
		outstanding, err := store.OutstandingDeviceActions(ctx, plan.PlanID)
		gt.NoError(t, err)
		gt.Equal(t, len(outstanding), 1)
		gt.Equal(t, outstanding[0].ActionID, second.DeviceActions[0].ActionID)
	})

	t.Run("unknown tool records a failure", func(t *testing.T) {
		registry := executorRegistry(t, false, false)
		store := NewMemoryPlanStore()
		defer store.Close()

		plan := executorPlan(ActionStep{ToolName: "calendar.vanished", Target: TargetServer})
		executor := NewExecutor(registry, store)

		outcome, err := executor.Execute(ctx, plan)
		gt.NoError(t, err)
		gt.False(t, outcome.AllSucceeded)
		gt.S(t, outcome.StepResults[0].Error).Contains("unknown tool")
	})

	t.Run("empty plan", func(t *testing.T) {
		registry := executorRegistry(t, false, false)
		store := NewMemoryPlanStore()
		defer store.Close()

		executor := NewExecutor(registry, store)
		outcome, err := executor.Execute(ctx, executorPlan())
		gt.NoError(t, err)
		gt.True(t, outcome.AllSucceeded)
		gt.Equal(t, outcome.SpokenResponse, "I didn't find any actions to take.")
	})
}
