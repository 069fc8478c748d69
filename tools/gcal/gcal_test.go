package gcal_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/herald"
	"github.com/m-mizutani/herald/tools/gcal"
)

func TestToolSpecs(t *testing.T) {
	service := gcal.NewWithService(nil)
	tools := service.Tools()
	gt.Equal(t, len(tools), 4)

	specs := make(map[string]*herald.ToolSpec, len(tools))
	for _, tool := range tools {
		spec := tool.Spec()
		gt.NoError(t, spec.Validate())
		specs[spec.Name] = spec
	}

	t.Run("all tools register cleanly", func(t *testing.T) {
		_, err := herald.NewRegistry(context.Background(), herald.WithTools(tools...))
		gt.NoError(t, err)
	})

	t.Run("list is read-only", func(t *testing.T) {
		spec := specs["google_calendar.list_events"]
		gt.NotNil(t, spec)
		gt.Equal(t, spec.Risk, herald.RiskLow)
		gt.False(t, spec.Irreversible)
	})

	t.Run("create verifies by readback", func(t *testing.T) {
		spec := specs["google_calendar.create_event"]
		gt.NotNil(t, spec)
		gt.Equal(t, spec.Required, []string{"title", "start", "end"})

		tool, _ := lookup(tools, "google_calendar.create_event")
		_, ok := tool.(herald.Verifier)
		gt.True(t, ok)
	})

	t.Run("update is medium risk", func(t *testing.T) {
		spec := specs["google_calendar.update_event"]
		gt.NotNil(t, spec)
		gt.Equal(t, spec.Risk, herald.RiskMedium)
	})

	t.Run("delete is high risk and irreversible", func(t *testing.T) {
		spec := specs["google_calendar.delete_event"]
		gt.NotNil(t, spec)
		gt.Equal(t, spec.Risk, herald.RiskHigh)
		gt.True(t, spec.Irreversible)
		gt.NotEqual(t, spec.ConfirmationPhrase, "")
	})
}

func lookup(tools []herald.Tool, name string) (herald.Tool, bool) {
	for _, tool := range tools {
		if tool.Spec().Name == name {
			return tool, true
		}
	}
	return nil, false
}
