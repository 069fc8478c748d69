package herald

import (
	"context"
	"regexp"

	"github.com/m-mizutani/goerr/v2"
)

// ExecutionTarget declares where a tool runs: on this server, or delegated
// to the user's device.
type ExecutionTarget string

const (
	TargetServer ExecutionTarget = "server"
	TargetDevice ExecutionTarget = "device"
)

// RiskLevel is the default risk classification of a tool.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

var riskOrder = map[RiskLevel]int{RiskLow: 0, RiskMedium: 1, RiskHigh: 2}

// AtLeast reports whether r is equal to or higher than other.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return riskOrder[r] >= riskOrder[other]
}

// Max returns the higher of the two risk levels.
func (r RiskLevel) Max(other RiskLevel) RiskLevel {
	if riskOrder[other] > riskOrder[r] {
		return other
	}
	return r
}

// Tool names are dot-namespaced, e.g. "google_calendar.create_event".
var toolNamePattern = regexp.MustCompile(`^[a-z0-9_]+(\.[a-z0-9_]+)*$`)

// ToolSpec is the specification of a tool.
// It defines the interface and behavior of a tool that can be planned by the
// LLM and dispatched by the executor.
type ToolSpec struct {
	// Name is the unique identifier for the tool.
	// It must be unique across all tools in the system.
	Name string

	// Description is a human-readable description of what the tool does.
	// It should be clear and concise to help LLMs understand the tool's purpose.
	Description string

	// Parameters defines the input parameters that the tool accepts.
	Parameters map[string]*Parameter

	// Required is the list of required parameter names.
	Required []string

	// Target declares where the tool executes. Defaults to TargetServer.
	Target ExecutionTarget

	// Risk is the default risk level of the tool. Defaults to RiskLow.
	Risk RiskLevel

	// Irreversible marks tools whose effects cannot be undone (delete, send,
	// purchase). A medium-risk irreversible tool requires confirmation.
	Irreversible bool

	// Critical marks tools whose failure aborts the remaining steps of a
	// plan instead of continuing with independent siblings.
	Critical bool

	// ConfirmationPhrase is an optional human-readable prompt fragment used
	// when the policy gate asks the user to confirm this tool.
	ConfirmationPhrase string
}

// Validate validates the tool specification.
func (s *ToolSpec) Validate() error {
	eb := goerr.NewBuilder(goerr.V("tool", s.Name))
	if s.Name == "" {
		return eb.Wrap(ErrInvalidTool, "name is required")
	}
	if !toolNamePattern.MatchString(s.Name) {
		return eb.Wrap(ErrInvalidTool, "name must be dot-namespaced lower snake case")
	}

	switch s.Target {
	case "", TargetServer, TargetDevice:
	default:
		return eb.Wrap(ErrInvalidTool, "invalid execution target", goerr.V("target", s.Target))
	}

	switch s.Risk {
	case "", RiskLow, RiskMedium, RiskHigh:
	default:
		return eb.Wrap(ErrInvalidTool, "invalid risk level", goerr.V("risk", s.Risk))
	}

	for name, param := range s.Parameters {
		if err := param.Validate(); err != nil {
			return eb.Wrap(err, "invalid parameter", goerr.V("parameter", name))
		}
	}

	for _, req := range s.Required {
		if _, ok := s.Parameters[req]; !ok {
			return eb.Wrap(ErrInvalidTool, "required parameter not defined", goerr.V("parameter", req))
		}
	}

	return nil
}

// normalize fills the defaulted fields of the spec.
func (s *ToolSpec) normalize() {
	if s.Target == "" {
		s.Target = TargetServer
	}
	if s.Risk == "" {
		s.Risk = RiskLow
	}
}

// ParameterType is the type of a parameter.
type ParameterType string

const (
	TypeString  ParameterType = "string"
	TypeNumber  ParameterType = "number"
	TypeInteger ParameterType = "integer"
	TypeBoolean ParameterType = "boolean"
	TypeArray   ParameterType = "array"
	TypeObject  ParameterType = "object"
)

// Parameter is a parameter of a tool.
// It defines the specification and constraints of a single input parameter.
type Parameter struct {
	// Title is the user-friendly name of the parameter.
	Title string

	// Type is the type of the parameter.
	// It must be one of the predefined ParameterType values.
	Type ParameterType

	// Description is the description of the parameter.
	Description string

	// Required is the list of required field names when Type is Object.
	Required []string

	// Enum is the list of allowed values for the parameter.
	Enum []string

	// Properties is the properties of the parameter.
	// It's used for object type parameters to define the structure of the object.
	Properties map[string]*Parameter

	// Items is the items of the parameter.
	// It's used for array type parameters to define the type of array elements.
	Items *Parameter

	// Number constraints.
	Minimum *float64
	Maximum *float64

	// String constraints.
	MinLength *int
	MaxLength *int
	Pattern   string

	// Array constraints.
	MinItems *int
	MaxItems *int
}

// Validate validates the parameter.
func (p *Parameter) Validate() error {
	eb := goerr.NewBuilder()

	if p.Type == "" {
		return eb.Wrap(ErrInvalidParameter, "type is required")
	}

	if p.Type == TypeObject {
		if p.Properties == nil {
			return eb.Wrap(ErrInvalidParameter, "properties is required for object type")
		}
		for _, prop := range p.Properties {
			if err := prop.Validate(); err != nil {
				return eb.Wrap(ErrInvalidParameter, "invalid property")
			}
		}
		for _, req := range p.Required {
			if _, ok := p.Properties[req]; !ok {
				return eb.Wrap(ErrInvalidParameter, "required field not found in properties", goerr.V("field", req))
			}
		}
	}

	if p.Type == TypeArray {
		if p.Items == nil {
			return eb.Wrap(ErrInvalidParameter, "items is required for array type")
		}
		if err := p.Items.Validate(); err != nil {
			return eb.Wrap(ErrInvalidParameter, "invalid items")
		}
	}

	if p.Type == TypeNumber || p.Type == TypeInteger {
		if p.Minimum != nil && p.Maximum != nil && *p.Minimum > *p.Maximum {
			return eb.Wrap(ErrInvalidParameter, "minimum must be less than or equal to maximum")
		}
	}

	if p.Type == TypeString {
		if p.MinLength != nil && p.MaxLength != nil && *p.MinLength > *p.MaxLength {
			return eb.Wrap(ErrInvalidParameter, "minLength must be less than or equal to maxLength")
		}
		if p.Pattern != "" {
			if _, err := regexp.Compile(p.Pattern); err != nil {
				return eb.Wrap(ErrInvalidParameter, "invalid pattern", goerr.V("pattern", p.Pattern))
			}
		}
	}

	if p.Type == TypeArray {
		if p.MinItems != nil && p.MaxItems != nil && *p.MinItems > *p.MaxItems {
			return eb.Wrap(ErrInvalidParameter, "minItems must be less than or equal to maxItems")
		}
	}

	return nil
}

// Tool is the specification and execution of an action. Server-target tools
// run on this process; device-target tools only carry a spec and are never
// invoked here.
type Tool interface {
	// Spec returns the specification of the tool.
	Spec() *ToolSpec

	// Run is the execution of the tool. It's called by the executor for
	// server-target steps. Errors are recorded per step, they never abort
	// sibling steps unless the tool is marked Critical.
	Run(ctx context.Context, args map[string]any) (map[string]any, error)
}

// ToolSet is a set of tools resolved at registry construction, e.g. the
// tools advertised by a remote MCP server.
type ToolSet interface {
	// Specs returns the specifications of the tools in the set.
	Specs(ctx context.Context) ([]*ToolSpec, error)

	// Run executes the tool identified by name.
	Run(ctx context.Context, name string, args map[string]any) (map[string]any, error)
}

type toolFunc struct {
	spec *ToolSpec
	run  func(ctx context.Context, args map[string]any) (map[string]any, error)
}

func (t *toolFunc) Spec() *ToolSpec { return t.spec }

func (t *toolFunc) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	return t.run(ctx, args)
}

// NewServerTool builds a server-target tool from a spec and a run function.
func NewServerTool(spec *ToolSpec, run func(ctx context.Context, args map[string]any) (map[string]any, error)) Tool {
	spec.Target = TargetServer
	spec.normalize()
	return &toolFunc{spec: spec, run: run}
}

// NewDeviceTool builds a device-target tool. It carries only the spec; the
// executor packages matching steps as DeviceActions instead of running them.
func NewDeviceTool(spec *ToolSpec) Tool {
	spec.Target = TargetDevice
	spec.normalize()
	return &toolFunc{
		spec: spec,
		run: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return nil, goerr.Wrap(ErrDeviceToolInvoked, "tool must be dispatched to the device", goerr.V("tool", spec.Name))
		},
	}
}
