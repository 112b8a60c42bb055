package toolhost_test

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/copperline/toolhost"
)

func TestToolDescriptorParameters(t *testing.T) {
	tests := []struct {
		name   string
		schema string
		want   []toolhost.ParameterDefinition
	}{
		{
			name: "ordered properties with required list",
			schema: `{
				"type": "object",
				"properties": {
					"path": {"type": "string", "description": "File path"},
					"recursive": {"type": "boolean", "description": "Descend into directories"},
					"depth": {"type": "integer"}
				},
				"required": ["path", "depth"]
			}`,
			want: []toolhost.ParameterDefinition{
				{Name: "path", Type: "string", Description: "File path", Required: true},
				{Name: "recursive", Type: "boolean", Description: "Descend into directories", Required: false},
				{Name: "depth", Type: "integer", Required: true},
			},
		},
		{
			name: "missing type defaults to string",
			schema: `{
				"type": "object",
				"properties": {
					"query": {"description": "Search terms"}
				}
			}`,
			want: []toolhost.ParameterDefinition{
				{Name: "query", Type: "string", Description: "Search terms"},
			},
		},
		{
			name:   "no properties",
			schema: `{"type": "object"}`,
			want:   nil,
		},
		{
			name:   "empty schema",
			schema: "",
			want:   nil,
		},
		{
			name:   "properties is not an object",
			schema: `{"properties": ["a", "b"]}`,
			want:   nil,
		},
		{
			name:   "schema is not valid json",
			schema: `{"properties":`,
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := toolhost.ToolDescriptor{
				Name:        "test-tool",
				InputSchema: json.RawMessage(tt.schema),
			}

			got := tool.Parameters()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parameters() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestToolDescriptorParametersOrderStable(t *testing.T) {
	schema := `{
		"properties": {
			"zeta": {"type": "string"},
			"alpha": {"type": "string"},
			"mu": {"type": "string"}
		}
	}`
	tool := toolhost.ToolDescriptor{Name: "ordered", InputSchema: json.RawMessage(schema)}

	wantOrder := []string{"zeta", "alpha", "mu"}
	for i := 0; i < 10; i++ {
		params := tool.Parameters()
		if len(params) != len(wantOrder) {
			t.Fatalf("got %d parameters, want %d", len(params), len(wantOrder))
		}
		for j, p := range params {
			if p.Name != wantOrder[j] {
				t.Errorf("parameter %d = %q, want %q", j, p.Name, wantOrder[j])
			}
		}
	}
}
