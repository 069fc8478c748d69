package claude_test

import (
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/herald"
	"github.com/m-mizutani/herald/llm/claude"
)

func complexSpec() *herald.ToolSpec {
	return &herald.ToolSpec{
		Name:        "google_calendar-create_event",
		Description: "Create a calendar event",
		Parameters: map[string]*herald.Parameter{
			"title": {
				Type:        herald.TypeString,
				Description: "Event title",
			},
			"attendees": {
				Type:  herald.TypeArray,
				Items: &herald.Parameter{Type: herald.TypeString},
			},
			"recurrence": {
				Type: herald.TypeObject,
				Properties: map[string]*herald.Parameter{
					"freq": {
						Type: herald.TypeString,
						Enum: []string{"daily", "weekly"},
					},
					"interval": {Type: herald.TypeInteger},
				},
				Required: []string{"freq"},
			},
		},
		Required: []string{"title"},
	}
}

func TestConvertTool(t *testing.T) {
	tool := claude.ConvertTool(complexSpec())

	gt.NotNil(t, tool.OfTool)
	gt.Equal(t, tool.OfTool.Name, "google_calendar-create_event")
	gt.Equal(t, tool.OfTool.Description, anthropic.String("Create a calendar event"))

	properties, ok := tool.OfTool.InputSchema.Properties.(map[string]claude.JsonSchema)
	gt.True(t, ok)

	gt.Equal(t, properties["title"].Type, "string")
	gt.Equal(t, properties["title"].Description, "Event title")

	gt.Equal(t, properties["attendees"].Type, "array")
	gt.Equal(t, properties["attendees"].Items.Type, "string")

	recurrence := properties["recurrence"]
	gt.Equal(t, recurrence.Type, "object")
	gt.Equal(t, recurrence.Required, []string{"freq"})
	gt.Equal(t, recurrence.Properties["freq"].Enum, []interface{}{"daily", "weekly"})
	gt.Equal(t, recurrence.Properties["interval"].Type, "integer")
}

func TestConvertParameterConstraints(t *testing.T) {
	minVal := 1.0
	maxVal := 10.0
	minLen := 1
	maxLen := 64

	number := claude.ConvertParameterToSchema(&herald.Parameter{
		Type:    herald.TypeNumber,
		Minimum: &minVal,
		Maximum: &maxVal,
	})
	gt.Equal(t, *number.Minimum, 1.0)
	gt.Equal(t, *number.Maximum, 10.0)

	str := claude.ConvertParameterToSchema(&herald.Parameter{
		Type:      herald.TypeString,
		MinLength: &minLen,
		MaxLength: &maxLen,
		Pattern:   `^[a-z]+$`,
	})
	gt.Equal(t, *str.MinLength, 1)
	gt.Equal(t, *str.MaxLength, 64)
	gt.Equal(t, str.Pattern, `^[a-z]+$`)
}
