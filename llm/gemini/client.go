package gemini

import (
	"context"

	"cloud.google.com/go/vertexai/genai"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald"
	"google.golang.org/api/option"
)

const (
	// DefaultModel is the model used when WithModel is not given.
	DefaultModel = "gemini-1.5-flash"
)

// Client is a client for the Gemini API on Vertex AI.
type Client struct {
	client       *genai.Client
	defaultModel string

	temperature     float32
	topP            float32
	maxOutputTokens int32
}

// Option is a function that configures a Client.
type Option func(*Client)

// WithModel sets the default model to use for content generation.
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

// WithTopP sets the top_p parameter for text generation.
func WithTopP(topP float32) Option {
	return func(c *Client) {
		c.topP = topP
	}
}

// WithMaxOutputTokens limits the number of tokens to generate.
func WithMaxOutputTokens(n int32) Option {
	return func(c *Client) {
		c.maxOutputTokens = n
	}
}

// New creates a new client for the Gemini API on Vertex AI.
func New(ctx context.Context, projectID, location string, options ...Option) (*Client, error) {
	client := &Client{
		defaultModel:    DefaultModel,
		temperature:     0.3,
		topP:            1.0,
		maxOutputTokens: 4096,
	}

	for _, option := range options {
		option(client)
	}

	genaiClient, err := genai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Gemini client")
	}
	client.client = genaiClient

	return client, nil
}

// NewWithClientOptions creates a client with extra Google API client
// options, e.g. credentials for tests.
func NewWithClientOptions(ctx context.Context, projectID, location string, clientOptions []option.ClientOption, options ...Option) (*Client, error) {
	client := &Client{
		defaultModel:    DefaultModel,
		temperature:     0.3,
		topP:            1.0,
		maxOutputTokens: 4096,
	}

	for _, option := range options {
		option(client)
	}

	genaiClient, err := genai.NewClient(ctx, projectID, location, clientOptions...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Gemini client")
	}
	client.client = genaiClient

	return client, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Session is a session for the Gemini chat.
type Session struct {
	session *genai.ChatSession
}

// NewSession creates a new session for the Gemini API.
func (c *Client) NewSession(ctx context.Context, options ...herald.SessionOption) (herald.Session, error) {
	cfg := herald.NewSessionConfig(options...)

	model := c.client.GenerativeModel(c.defaultModel)
	model.SetTemperature(c.temperature)
	model.SetTopP(c.topP)
	model.SetMaxOutputTokens(c.maxOutputTokens)

	if cfg.SystemPrompt() != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(cfg.SystemPrompt())},
		}
	}

	if specs := cfg.Tools(); len(specs) > 0 {
		declarations := make([]*genai.FunctionDeclaration, len(specs))
		for i, spec := range specs {
			declarations[i] = convertTool(spec)
		}
		model.Tools = []*genai.Tool{
			{FunctionDeclarations: declarations},
		}
	}

	session := model.StartChat()
	session.History = convertHistory(cfg.History())

	return &Session{session: session}, nil
}

// convertHistory converts prior conversation turns to Gemini contents.
func convertHistory(history []herald.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, msg := range history {
		role := "user"
		if msg.Role == herald.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}
	return contents
}

// convertInputs converts herald.Input to Gemini parts.
func convertInputs(input ...herald.Input) ([]genai.Part, error) {
	parts := make([]genai.Part, 0, len(input))
	for _, in := range input {
		switch v := in.(type) {
		case herald.Text:
			parts = append(parts, genai.Text(string(v)))

		case herald.FunctionResponse:
			response := v.Data
			if v.Error != nil {
				response = map[string]any{"error": v.Error.Error()}
			}
			parts = append(parts, genai.FunctionResponse{
				Name:     v.Name,
				Response: response,
			})

		default:
			return nil, goerr.Wrap(herald.ErrInvalidInput, "invalid input")
		}
	}
	return parts, nil
}

// GenerateContent processes the input and generates a response.
func (s *Session) GenerateContent(ctx context.Context, input ...herald.Input) (*herald.Response, error) {
	parts, err := convertInputs(input...)
	if err != nil {
		return nil, err
	}

	resp, err := s.session.SendMessage(ctx, parts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to send message")
	}

	return processResponse(resp), nil
}

// processResponse converts a Gemini response to herald.Response. Gemini
// carries no tool-call IDs, so the function name doubles as the ID.
func processResponse(resp *genai.GenerateContentResponse) *herald.Response {
	response := &herald.Response{
		Texts:         make([]string, 0),
		FunctionCalls: make([]*herald.FunctionCall, 0),
	}

	if resp.UsageMetadata != nil {
		response.InputToken = int(resp.UsageMetadata.PromptTokenCount)
		response.OutputToken = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return response
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			response.Texts = append(response.Texts, string(v))

		case genai.FunctionCall:
			response.FunctionCalls = append(response.FunctionCalls, &herald.FunctionCall{
				ID:        v.Name,
				Name:      v.Name,
				Arguments: v.Args,
			})
		}
	}

	return response
}
