package openai

import (
	"github.com/m-mizutani/herald"
	goopenai "github.com/sashabaranov/go-openai"
)

// convertTool converts herald.ToolSpec to openai.Tool
func convertTool(spec *herald.ToolSpec) goopenai.Tool {
	properties := make(map[string]interface{})
	for name, param := range spec.Parameters {
		properties[name] = convertParameterToSchema(param)
	}

	parameters := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(spec.Required) > 0 {
		parameters["required"] = spec.Required
	}

	return goopenai.Tool{
		Type: goopenai.ToolTypeFunction,
		Function: &goopenai.FunctionDefinition{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  parameters,
		},
	}
}

func convertParameterToSchema(param *herald.Parameter) map[string]interface{} {
	schema := map[string]interface{}{
		"type": getOpenAIType(param.Type),
	}
	if param.Description != "" {
		schema["description"] = param.Description
	}

	if len(param.Enum) > 0 {
		schema["enum"] = param.Enum
	}

	if param.Properties != nil {
		properties := make(map[string]interface{})
		for name, prop := range param.Properties {
			properties[name] = convertParameterToSchema(prop)
		}
		schema["properties"] = properties
		if len(param.Required) > 0 {
			schema["required"] = param.Required
		}
	}

	if param.Items != nil {
		schema["items"] = convertParameterToSchema(param.Items)
	}

	return schema
}

func getOpenAIType(paramType herald.ParameterType) string {
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
