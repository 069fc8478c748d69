package claude

import (
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/m-mizutani/herald"
)

func convertTool(spec *herald.ToolSpec) anthropic.ToolUnionParam {
	schema := convertParametersToJSONSchema(spec.Parameters, spec.Required)

	tool := anthropic.ToolUnionParamOfTool(
		anthropic.ToolInputSchemaParam{
			Properties: schema.Properties,
		},
		spec.Name,
	)
	if tool.OfTool != nil && spec.Description != "" {
		tool.OfTool.Description = anthropic.String(spec.Description)
	}
	return tool
}

type jsonSchema struct {
	Type        string                `json:"type"`
	Properties  map[string]jsonSchema `json:"properties,omitempty"`
	Required    []string              `json:"required,omitempty"`
	Items       *jsonSchema           `json:"items,omitempty"`
	Minimum     *float64              `json:"minimum,omitempty"`
	Maximum     *float64              `json:"maximum,omitempty"`
	MinLength   *int                  `json:"minLength,omitempty"`
	MaxLength   *int                  `json:"maxLength,omitempty"`
	Pattern     string                `json:"pattern,omitempty"`
	MinItems    *int                  `json:"minItems,omitempty"`
	MaxItems    *int                  `json:"maxItems,omitempty"`
	Enum        []interface{}         `json:"enum,omitempty"`
	Description string                `json:"description,omitempty"`
	Title       string                `json:"title,omitempty"`
}

func convertParametersToJSONSchema(params map[string]*herald.Parameter, required []string) jsonSchema {
	properties := make(map[string]jsonSchema)

	for name, param := range params {
		properties[name] = convertParameterToSchema(param)
	}

	return jsonSchema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}

// convertParameterToSchema converts herald.Parameter to Claude schema
func convertParameterToSchema(param *herald.Parameter) jsonSchema {
	schema := jsonSchema{
		Type:        getClaudeType(param.Type),
		Description: param.Description,
		Title:       param.Title,
	}

	if len(param.Enum) > 0 {
		enum := make([]interface{}, len(param.Enum))
		for i, v := range param.Enum {
			enum[i] = v
		}
		schema.Enum = enum
	}

	if param.Properties != nil {
		properties := make(map[string]jsonSchema)
		for name, prop := range param.Properties {
			properties[name] = convertParameterToSchema(prop)
		}
		schema.Properties = properties
		if len(param.Required) > 0 {
			schema.Required = param.Required
		}
	}

	if param.Items != nil {
		items := convertParameterToSchema(param.Items)
		schema.Items = &items
	}

	// Add number constraints
	if param.Type == herald.TypeNumber || param.Type == herald.TypeInteger {
		if param.Minimum != nil {
			schema.Minimum = param.Minimum
		}
		if param.Maximum != nil {
			schema.Maximum = param.Maximum
		}
	}

	// Add string constraints
	if param.Type == herald.TypeString {
		if param.MinLength != nil {
			schema.MinLength = param.MinLength
		}
		if param.MaxLength != nil {
			schema.MaxLength = param.MaxLength
		}
		if param.Pattern != "" {
			schema.Pattern = param.Pattern
		}
	}

	// Add array constraints
	if param.Type == herald.TypeArray {
		if param.MinItems != nil {
			schema.MinItems = param.MinItems
		}
		if param.MaxItems != nil {
			schema.MaxItems = param.MaxItems
		}
	}

	return schema
}

func getClaudeType(paramType herald.ParameterType) string {
	switch paramType {
	case herald.TypeString:
		return "string"
	case herald.TypeNumber:
		return "number"
	case herald.TypeInteger:
		return "integer"
	case herald.TypeBoolean:
		return "boolean"
	case herald.TypeArray:
		return "array"
	case herald.TypeObject:
		return "object"
	default:
		return "string"
	}
}
