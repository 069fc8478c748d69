package gemini

import (
	"cloud.google.com/go/vertexai/genai"
	"github.com/m-mizutani/herald"
)

func convertTool(spec *herald.ToolSpec) *genai.FunctionDeclaration {
	parameters := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema),
		Required:   spec.Required,
	}

	for name, param := range spec.Parameters {
		parameters.Properties[name] = convertParameterToSchema(param)
	}

	return &genai.FunctionDeclaration{
		Name:        spec.Name,
		Description: spec.Description,
		Parameters:  parameters,
	}
}

func convertParameterToSchema(param *herald.Parameter) *genai.Schema {
	schema := &genai.Schema{
		Type:        getGenaiType(param.Type),
		Title:       param.Title,
		Description: param.Description,
	}

	if param.Properties != nil {
		schema.Properties = make(map[string]*genai.Schema)
		for propName, prop := range param.Properties {
			schema.Properties[propName] = convertParameterToSchema(prop)
		}
		if len(param.Required) > 0 {
			schema.Required = param.Required
		}
	}

	if param.Items != nil {
		schema.Items = convertParameterToSchema(param.Items)
	}

	return schema
}

func getGenaiType(paramType herald.ParameterType) genai.Type {
	switch paramType {
	case herald.TypeString:
		return genai.TypeString
	case herald.TypeNumber:
		return genai.TypeNumber
	case herald.TypeInteger:
		return genai.TypeInteger
	case herald.TypeBoolean:
		return genai.TypeBoolean
	case herald.TypeArray:
		return genai.TypeArray
	case herald.TypeObject:
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}
