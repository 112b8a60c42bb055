package toolhost

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ToolDescriptor describes one tool advertised by a peer during discovery.
// Descriptors are immutable values; the argument list is derived from the
// raw schema on demand via Parameters.
type ToolDescriptor struct {
	// Name uniquely identifies the tool within its session's catalog.
	Name string `json:"name"`

	// Description is the peer-supplied summary of what the tool does.
	// May be empty.
	Description string `json:"description,omitempty"`

	// InputSchema holds the JSON schema describing the tool's arguments,
	// in the raw form the peer sent it.
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ParameterDefinition describes a single tool argument extracted from the
// tool's input schema.
type ParameterDefinition struct {
	// Name of the argument as it appears in the schema's properties.
	Name string

	// Type is the schema type tag, "string" when the schema does not say.
	Type string

	// Description of the argument. May be empty.
	Description string

	// Required reports whether the argument appears in the schema's
	// required list.
	Required bool
}

// Parameters derives the tool's argument list from its input schema,
// preserving the order in which the schema declares its properties. A
// missing or unusable schema yields no parameters.
func (t ToolDescriptor) Parameters() []ParameterDefinition {
	if len(t.InputSchema) == 0 {
		return nil
	}

	var schema struct {
		Properties json.RawMessage `json:"properties"`
		Required   []string        `json:"required"`
	}
	if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
		return nil
	}
	if len(schema.Properties) == 0 {
		return nil
	}

	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}

	// encoding/json maps do not keep key order, so walk the properties
	// object token by token instead.
	dec := json.NewDecoder(bytes.NewReader(schema.Properties))
	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil
	}

	var params []ParameterDefinition
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil
		}
		name, ok := tok.(string)
		if !ok {
			return nil
		}

		var prop struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		}
		if err := dec.Decode(&prop); err != nil {
			return nil
		}
		if prop.Type == "" {
			prop.Type = "string"
		}

		params = append(params, ParameterDefinition{
			Name:        name,
			Type:        prop.Type,
			Description: prop.Description,
			Required:    required[name],
		})
	}

	return params
}

// parseCatalog decodes a tools/list result and validates it: every tool
// must carry a name and no name may repeat.
func parseCatalog(raw json.RawMessage) ([]ToolDescriptor, error) {
	var res listToolsResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedCatalog, err)
	}

	seen := make(map[string]bool, len(res.Tools))
	for i, tool := range res.Tools {
		if tool.Name == "" {
			return nil, fmt.Errorf("%w: tool %d has no name", ErrMalformedCatalog, i)
		}
		if seen[tool.Name] {
			return nil, fmt.Errorf("%w: duplicate tool name %q", ErrMalformedCatalog, tool.Name)
		}
		seen[tool.Name] = true
	}

	return res.Tools, nil
}
