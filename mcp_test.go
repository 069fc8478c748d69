package herald

import (
	"context"
	"os"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/mark3labs/mcp-go/mcp"
)

func TestMCPPublishedName(t *testing.T) {
	client := &MCPClient{namespace: "mcp"}

	gt.Equal(t, client.publishedName("fetch_page"), "mcp.fetch_page")
	gt.Equal(t, client.publishedName("Fetch Page"), "mcp.fetch_page")
	gt.Equal(t, client.publishedName("read-file"), "mcp.read_file")
	gt.Equal(t, client.publishedName("__weird__"), "mcp.weird")

	custom := &MCPClient{namespace: "notion"}
	gt.Equal(t, custom.publishedName("search"), "notion.search")
}

func TestInputSchemaToParameters(t *testing.T) {
	schema := mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Page URL",
			},
			"depth": map[string]any{
				"type": "integer",
			},
			"mode": map[string]any{
				"type": "string",
				"enum": []any{"fast", "full"},
			},
			"tags": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"options": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"timeout": map[string]any{"type": "number"},
				},
				"required": []any{"timeout"},
			},
		},
		Required: []string{"url"},
	}

	parameters, err := inputSchemaToParameters(schema)
	gt.NoError(t, err)
	gt.Equal(t, len(parameters), 5)

	gt.Equal(t, parameters["url"].Type, TypeString)
	gt.Equal(t, parameters["url"].Description, "Page URL")
	gt.Equal(t, parameters["depth"].Type, TypeInteger)
	gt.Equal(t, parameters["mode"].Enum, []string{"fast", "full"})
	gt.Equal(t, parameters["tags"].Items.Type, TypeString)
	gt.Equal(t, parameters["options"].Properties["timeout"].Type, TypeNumber)
	gt.Equal(t, parameters["options"].Required, []string{"timeout"})

	t.Run("array without items is rejected", func(t *testing.T) {
		_, err := inputSchemaToParameters(mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"broken": map[string]any{"type": "array"},
			},
		})
		gt.Error(t, err)
	})
}

func TestMCPContentToMap(t *testing.T) {
	t.Run("json object text", func(t *testing.T) {
		out := mcpContentToMap([]mcp.Content{
			&mcp.TextContent{Type: "text", Text: `{"status": "ok"}`},
		})
		gt.Equal(t, out["status"], any("ok"))
	})

	t.Run("json scalar text is wrapped", func(t *testing.T) {
		out := mcpContentToMap([]mcp.Content{
			&mcp.TextContent{Type: "text", Text: `42`},
		})
		gt.Equal(t, out["result"], any(float64(42)))
	})

	t.Run("plain text is wrapped", func(t *testing.T) {
		out := mcpContentToMap([]mcp.Content{
			&mcp.TextContent{Type: "text", Text: "done"},
		})
		gt.Equal(t, out["result"], any("done"))
	})

	t.Run("no text content", func(t *testing.T) {
		out := mcpContentToMap(nil)
		gt.Equal(t, len(out), 0)
	})
}

func TestMCPStdio(t *testing.T) {
	mcpExecPath, ok := os.LookupEnv("TEST_MCP_EXEC_PATH")
	if !ok {
		t.Skip("TEST_MCP_EXEC_PATH is not set")
	}

	ctx := context.Background()
	client, err := NewMCPStdio(ctx, mcpExecPath, nil, WithMCPNamespace("local"))
	gt.NoError(t, err)
	defer client.Close()

	specs, err := client.Specs(ctx)
	gt.NoError(t, err)
	gt.A(t, specs).Longer(0)

	for _, spec := range specs {
		gt.NoError(t, spec.Validate())
	}
}
