package gemini_test

import (
	"context"
	"os"
	"testing"

	"cloud.google.com/go/vertexai/genai"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/herald"
	"github.com/m-mizutani/herald/llm/gemini"
)

func TestConvertTool(t *testing.T) {
	spec := &herald.ToolSpec{
		Name:        "google_calendar-create_event",
		Description: "Create a calendar event",
		Parameters: map[string]*herald.Parameter{
			"title": {Type: herald.TypeString, Description: "Event title"},
			"attendees": {
				Type:  herald.TypeArray,
				Items: &herald.Parameter{Type: herald.TypeString},
			},
			"recurrence": {
				Type: herald.TypeObject,
				Properties: map[string]*herald.Parameter{
					"freq":     {Type: herald.TypeString},
					"interval": {Type: herald.TypeInteger},
				},
				Required: []string{"freq"},
			},
		},
		Required: []string{"title"},
	}

	decl := gemini.ConvertTool(spec)
	gt.Equal(t, decl.Name, "google_calendar-create_event")
	gt.Equal(t, decl.Description, "Create a calendar event")

	parameters := decl.Parameters
	gt.Equal(t, parameters.Type, genai.TypeObject)
	gt.Equal(t, parameters.Required, []string{"title"})

	gt.Equal(t, parameters.Properties["title"].Type, genai.TypeString)
	gt.Equal(t, parameters.Properties["title"].Description, "Event title")
	gt.Equal(t, parameters.Properties["attendees"].Type, genai.TypeArray)
	gt.Equal(t, parameters.Properties["attendees"].Items.Type, genai.TypeString)

	recurrence := parameters.Properties["recurrence"]
	gt.Equal(t, recurrence.Type, genai.TypeObject)
	gt.Equal(t, recurrence.Required, []string{"freq"})
	gt.Equal(t, recurrence.Properties["interval"].Type, genai.TypeInteger)
}

func TestConvertParameterToSchema(t *testing.T) {
	schema := gemini.ConvertParameterToSchema(&herald.Parameter{
		Type:        herald.TypeBoolean,
		Title:       "All day",
		Description: "Whether the event lasts all day",
	})
	gt.Equal(t, schema.Type, genai.TypeBoolean)
	gt.Equal(t, schema.Title, "All day")
	gt.Equal(t, schema.Description, "Whether the event lasts all day")
}

func TestGeminiContentGenerate(t *testing.T) {
	projectID, ok := os.LookupEnv("TEST_GCP_PROJECT_ID")
	if !ok {
		t.Skip("TEST_GCP_PROJECT_ID is not set")
	}
	location, ok := os.LookupEnv("TEST_GCP_LOCATION")
	if !ok {
		location = "us-central1"
	}

	ctx := context.Background()
	client, err := gemini.New(ctx, projectID, location)
	gt.NoError(t, err)
	defer client.Close()

	session, err := client.NewSession(ctx)
	gt.NoError(t, err)

	resp, err := session.GenerateContent(ctx, herald.Text("Say hello in one word"))
	gt.NoError(t, err)
	gt.Array(t, resp.Texts).Longer(0)
}
