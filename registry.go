package herald

import (
	"context"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Registry is the immutable catalog of invocable tools. It is built once at
// process start and never mutated afterwards, so it needs no locking.
type Registry struct {
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
	names   []string
}

type registryConfig struct {
	tools    []Tool
	toolSets []ToolSet
}

// RegistryOption configures registry construction.
type RegistryOption func(*registryConfig)

// WithTools adds individual tools to the registry.
func WithTools(tools ...Tool) RegistryOption {
	return func(cfg *registryConfig) {
		cfg.tools = append(cfg.tools, tools...)
	}
}

// WithToolSets adds tool sets to the registry. Each set is expanded into its
// member tools at construction time.
func WithToolSets(toolSets ...ToolSet) RegistryOption {
	return func(cfg *registryConfig) {
		cfg.toolSets = append(cfg.toolSets, toolSets...)
	}
}

type toolSetEntry struct {
	spec    *ToolSpec
	toolSet ToolSet
}

func (t *toolSetEntry) Spec() *ToolSpec { return t.spec }

func (t *toolSetEntry) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	return t.toolSet.Run(ctx, t.spec.Name, args)
}

// NewRegistry builds a registry from the given tools and tool sets. Every
// spec is validated and its argument schema compiled; duplicate names fail
// construction.
func NewRegistry(ctx context.Context, options ...RegistryOption) (*Registry, error) {
	cfg := &registryConfig{}
	for _, opt := range options {
		opt(cfg)
	}

	all := make([]Tool, 0, len(cfg.tools))
	all = append(all, cfg.tools...)

	for _, toolSet := range cfg.toolSets {
		specs, err := toolSet.Specs(ctx)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to get specs from tool set")
		}
		for _, spec := range specs {
			spec.normalize()
			all = append(all, &toolSetEntry{spec: spec, toolSet: toolSet})
		}
	}

	registry := &Registry{
		tools:   make(map[string]Tool, len(all)),
		schemas: make(map[string]*jsonschema.Schema, len(all)),
	}

	for _, tool := range all {
		spec := tool.Spec()
		spec.normalize()
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		if _, exists := registry.tools[spec.Name]; exists {
			return nil, goerr.Wrap(ErrToolNameConflict, "tool is already registered", goerr.V("tool", spec.Name))
		}

		schema, err := compileArgumentSchema(spec)
		if err != nil {
			return nil, err
		}

		registry.tools[spec.Name] = tool
		registry.schemas[spec.Name] = schema
		registry.names = append(registry.names, spec.Name)
	}

	sort.Strings(registry.names)

	return registry, nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// Spec returns the specification of the tool registered under name.
func (r *Registry) Spec(name string) (*ToolSpec, bool) {
	tool, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return tool.Spec(), true
}

// Specs returns all registered tool specifications in name order.
func (r *Registry) Specs() []*ToolSpec {
	specs := make([]*ToolSpec, 0, len(r.names))
	for _, name := range r.names {
		specs = append(specs, r.tools[name].Spec())
	}
	return specs
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.tools) }

// ValidateArguments checks raw tool call arguments against the tool's
// compiled schema. Unknown tools and schema violations both fail closed.
func (r *Registry) ValidateArguments(name string, args map[string]any) error {
	schema, ok := r.schemas[name]
	if !ok {
		return goerr.Wrap(ErrUnknownTool, "tool is not registered", goerr.V("tool", name))
	}

	instance := make(map[string]any, len(args))
	for k, v := range args {
		instance[k] = v
	}

	if err := schema.Validate(instance); err != nil {
		return goerr.Wrap(ErrSchemaMismatch, "arguments do not conform to schema",
			goerr.V("tool", name), goerr.V("cause", err.Error()))
	}

	return nil
}
