package herald

import (
	"context"
	"log/slog"
)

// LLMClient is a client for an LLM service.
type LLMClient interface {
	NewSession(ctx context.Context, options ...SessionOption) (Session, error)
}

// Session is a stateful chat session with an LLM.
type Session interface {
	GenerateContent(ctx context.Context, input ...Input) (*Response, error)
}

// FunctionCall is a tool call emitted by the LLM.
type FunctionCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Response is a general response type for each LLM service.
type Response struct {
	Texts         []string
	FunctionCalls []*FunctionCall
	InputToken    int
	OutputToken   int
}

// HasData reports whether the response carries any content.
func (r *Response) HasData() bool {
	return len(r.Texts) > 0 || len(r.FunctionCalls) > 0
}

// Role of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one prior turn of the conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SessionConfig holds the configuration of a session. LLM client
// implementations read it through the accessor methods.
type SessionConfig struct {
	systemPrompt string
	tools        []*ToolSpec
	history      []Message
}

// SessionOption configures a new session.
type SessionOption func(*SessionConfig)

// NewSessionConfig builds a session config from options. It is intended for
// LLM client implementations.
func NewSessionConfig(options ...SessionOption) *SessionConfig {
	cfg := &SessionConfig{}
	for _, opt := range options {
		opt(cfg)
	}
	return cfg
}

func (c *SessionConfig) SystemPrompt() string { return c.systemPrompt }
func (c *SessionConfig) Tools() []*ToolSpec   { return c.tools }
func (c *SessionConfig) History() []Message   { return c.history }

// WithSessionSystemPrompt sets the system prompt of the session.
func WithSessionSystemPrompt(prompt string) SessionOption {
	return func(cfg *SessionConfig) {
		cfg.systemPrompt = prompt
	}
}

// WithSessionTools provides the tool specifications the LLM may call.
func WithSessionTools(tools ...*ToolSpec) SessionOption {
	return func(cfg *SessionConfig) {
		cfg.tools = append(cfg.tools, tools...)
	}
}

// WithSessionHistory seeds the session with prior conversation turns.
func WithSessionHistory(history []Message) SessionOption {
	return func(cfg *SessionConfig) {
		cfg.history = history
	}
}

// Input is a prompt element sent to the LLM.
type Input interface {
	isInput() restrictedValue
	LogValue() slog.Value
	String() string
}

type restrictedValue struct{}

// Text is a text input as prompt.
// Usage:
// input := herald.Text("schedule a meeting tomorrow at 2pm")
type Text string

func (t Text) isInput() restrictedValue {
	return restrictedValue{}
}

func (t Text) LogValue() slog.Value {
	return slog.StringValue(string(t))
}

func (t Text) String() string {
	return string(t)
}

// FunctionResponse is a function response returned to the LLM.
type FunctionResponse struct {
	ID    string
	Name  string
	Data  map[string]any
	Error error
}

func (f FunctionResponse) isInput() restrictedValue {
	return restrictedValue{}
}

// String returns a string representation of the FunctionResponse.
func (f FunctionResponse) String() string {
	if f.Error != nil {
		return f.Name + " (error: " + f.Error.Error() + ")"
	}
	return f.Name + " (success)"
}

// LogValue returns a slog.Value for the FunctionResponse.
func (f FunctionResponse) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("id", f.ID),
		slog.String("name", f.Name),
	}

	if f.Data != nil {
		attrs = append(attrs, slog.Any("data", f.Data))
	}

	if f.Error != nil {
		attrs = append(attrs, slog.String("error", f.Error.Error()))
	}

	return slog.GroupValue(attrs...)
}
