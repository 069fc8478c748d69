package openai

import (
	"context"
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald"
	goopenai "github.com/sashabaranov/go-openai"
)

// Client is a client for the OpenAI chat completion API.
type Client struct {
	client       *goopenai.Client
	defaultModel string
	temperature  float32
}

// Option is a function that configures a Client.
type Option func(*Client)

// WithModel sets the default model to use for chat completions.
func WithModel(modelName string) Option {
	return func(c *Client) {
		c.defaultModel = modelName
	}
}

// WithTemperature sets the temperature parameter for text generation.
func WithTemperature(temp float32) Option {
	return func(c *Client) {
		c.temperature = temp
	}
}

// New creates a new client for the OpenAI API.
func New(ctx context.Context, apiKey string, options ...Option) (*Client, error) {
	client := &Client{
		defaultModel: goopenai.GPT4o,
		temperature:  0.3,
	}

	for _, option := range options {
		option(client)
	}

	client.client = goopenai.NewClient(apiKey)

	return client, nil
}

// Session is a session for the OpenAI chat.
type Session struct {
	client       *goopenai.Client
	defaultModel string
	temperature  float32
	tools        []goopenai.Tool
	messages     []goopenai.ChatCompletionMessage
}

// NewSession creates a new session for the OpenAI API. The system prompt
// becomes the leading system message and the configured history follows it.
func (c *Client) NewSession(ctx context.Context, options ...herald.SessionOption) (herald.Session, error) {
	cfg := herald.NewSessionConfig(options...)

	specs := cfg.Tools()
	openaiTools := make([]goopenai.Tool, len(specs))
	for i, spec := range specs {
		openaiTools[i] = convertTool(spec)
	}

	var messages []goopenai.ChatCompletionMessage
	if cfg.SystemPrompt() != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: cfg.SystemPrompt(),
		})
	}
	for _, msg := range cfg.History() {
		role := goopenai.ChatMessageRoleUser
		if msg.Role == herald.RoleAssistant {
			role = goopenai.ChatMessageRoleAssistant
		}
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}

	session := &Session{
		client:       c.client,
		defaultModel: c.defaultModel,
		temperature:  c.temperature,
		tools:        openaiTools,
		messages:     messages,
	}

	return session, nil
}

// GenerateContent processes the input and generates a response.
func (s *Session) GenerateContent(ctx context.Context, input ...herald.Input) (*herald.Response, error) {
	for _, in := range input {
		switch v := in.(type) {
		case herald.Text:
			s.messages = append(s.messages, goopenai.ChatCompletionMessage{
				Role:    goopenai.ChatMessageRoleUser,
				Content: string(v),
			})
		case herald.FunctionResponse:
			response, err := json.Marshal(v.Data)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to marshal function response")
			}
			s.messages = append(s.messages, goopenai.ChatCompletionMessage{
				Role:       goopenai.ChatMessageRoleTool,
				Content:    string(response),
				ToolCallID: v.ID,
			})

		default:
			return nil, goerr.Wrap(herald.ErrInvalidInput, "invalid input")
		}
	}

	req := goopenai.ChatCompletionRequest{
		Model:       s.defaultModel,
		Messages:    s.messages,
		Tools:       s.tools,
		Temperature: s.temperature,
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create chat completion")
	}

	if len(resp.Choices) == 0 {
		return &herald.Response{}, nil
	}

	response := &herald.Response{
		Texts:         make([]string, 0),
		FunctionCalls: make([]*herald.FunctionCall, 0),
		InputToken:    resp.Usage.PromptTokens,
		OutputToken:   resp.Usage.CompletionTokens,
	}

	message := resp.Choices[0].Message
	s.messages = append(s.messages, message)

	if message.Content != "" {
		response.Texts = append(response.Texts, message.Content)
	}

	for _, toolCall := range message.ToolCalls {
		var args map[string]interface{}
		if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &args); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal tool arguments")
		}

		response.FunctionCalls = append(response.FunctionCalls, &herald.FunctionCall{
			ID:        toolCall.ID,
			Name:      toolCall.Function.Name,
			Arguments: args,
		})
	}

	return response, nil
}
