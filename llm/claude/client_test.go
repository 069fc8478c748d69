package claude_test

import (
	"context"
	"os"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/herald"
	"github.com/m-mizutani/herald/llm/claude"
)

func TestClaudeContentGenerate(t *testing.T) {
	apiKey, ok := os.LookupEnv("TEST_CLAUDE_API_KEY")
	if !ok {
		t.Skip("TEST_CLAUDE_API_KEY is not set")
	}

	ctx := context.Background()
	client, err := claude.New(ctx, apiKey)
	gt.NoError(t, err)

	session, err := client.NewSession(ctx)
	gt.NoError(t, err)

	resp, err := session.GenerateContent(ctx, herald.Text("Say hello in one word"))
	gt.NoError(t, err)
	gt.Array(t, resp.Texts).Longer(0)
	gt.Value(t, len(resp.Texts[0])).NotEqual(0)
}

func TestClaudeToolCall(t *testing.T) {
	apiKey, ok := os.LookupEnv("TEST_CLAUDE_API_KEY")
	if !ok {
		t.Skip("TEST_CLAUDE_API_KEY is not set")
	}

	ctx := context.Background()
	client, err := claude.New(ctx, apiKey)
	gt.NoError(t, err)

	session, err := client.NewSession(ctx,
		herald.WithSessionSystemPrompt("Always call a tool instead of answering in text."),
		herald.WithSessionTools(&herald.ToolSpec{
			Name:        "get_weather",
			Description: "Get the weather forecast for a city",
			Parameters: map[string]*herald.Parameter{
				"city": {Type: herald.TypeString},
			},
			Required: []string{"city"},
		}),
	)
	gt.NoError(t, err)

	resp, err := session.GenerateContent(ctx, herald.Text("What's the weather in Tokyo?"))
	gt.NoError(t, err)
	gt.Array(t, resp.FunctionCalls).Longer(0)
	gt.Equal(t, resp.FunctionCalls[0].Name, "get_weather")
}
