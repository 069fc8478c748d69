package herald

import (
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// argumentSchema converts a tool's parameter definitions into a JSON Schema
// document (as decoded JSON values, ready for compilation).
func argumentSchema(spec *ToolSpec) map[string]any {
	properties := make(map[string]any, len(spec.Parameters))
	for name, param := range spec.Parameters {
		properties[name] = parameterSchema(param)
	}

	doc := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(spec.Required) > 0 {
		doc["required"] = toAnySlice(spec.Required)
	}
	return doc
}

func parameterSchema(param *Parameter) map[string]any {
	schema := map[string]any{
		"type": string(param.Type),
	}
	if param.Description != "" {
		schema["description"] = param.Description
	}
	if param.Title != "" {
		schema["title"] = param.Title
	}
	if len(param.Enum) > 0 {
		schema["enum"] = toAnySlice(param.Enum)
	}

	if param.Type == TypeObject && param.Properties != nil {
		properties := make(map[string]any, len(param.Properties))
		for name, prop := range param.Properties {
			properties[name] = parameterSchema(prop)
		}
		schema["properties"] = properties
		if len(param.Required) > 0 {
			schema["required"] = toAnySlice(param.Required)
		}
	}

	if param.Type == TypeArray && param.Items != nil {
		schema["items"] = parameterSchema(param.Items)
	}

	if param.Type == TypeNumber || param.Type == TypeInteger {
		if param.Minimum != nil {
			schema["minimum"] = *param.Minimum
		}
		if param.Maximum != nil {
			schema["maximum"] = *param.Maximum
		}
	}

	if param.Type == TypeString {
		if param.MinLength != nil {
			schema["minLength"] = float64(*param.MinLength)
		}
		if param.MaxLength != nil {
			schema["maxLength"] = float64(*param.MaxLength)
		}
		if param.Pattern != "" {
			schema["pattern"] = param.Pattern
		}
	}

	if param.Type == TypeArray {
		if param.MinItems != nil {
			schema["minItems"] = float64(*param.MinItems)
		}
		if param.MaxItems != nil {
			schema["maxItems"] = float64(*param.MaxItems)
		}
	}

	return schema
}

func toAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// compileArgumentSchema compiles the spec's argument schema for validation.
func compileArgumentSchema(spec *ToolSpec) (*jsonschema.Schema, error) {
	url := fmt.Sprintf("herald://tool/%s.json", spec.Name)

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, argumentSchema(spec)); err != nil {
		return nil, goerr.Wrap(err, "failed to add schema resource", goerr.V("tool", spec.Name))
	}

	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to compile argument schema", goerr.V("tool", spec.Name))
	}

	return schema, nil
}
