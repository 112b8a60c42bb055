package calculator

import (
	"encoding/json"

	"github.com/copperline/toolhost"
)

const (
	protocolVersion = "2024-11-05"
	helpResourceURI = "calculator://help"

	methodNotFoundCode = -32601
	invalidParamsCode  = -32602
	internalErrorCode  = -32603
)

var serverCapabilities = json.RawMessage(`{"tools":{},"resources":{}}`)

type initializeResult struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    json.RawMessage `json:"capabilities"`
	ServerInfo      toolhost.Info   `json:"serverInfo"`
}

type listToolsResult struct {
	Tools []toolhost.ToolDescriptor `json:"tools"`
}

type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type callToolResult struct {
	Content []toolhost.ContentBlock `json:"content"`
	IsError bool                    `json:"isError,omitempty"`
}

type readResourceParams struct {
	URI string `json:"uri"`
}

type readResourceResult struct {
	Contents []toolhost.ResourceContent `json:"contents"`
}

type binaryArgs struct {
	A *float64 `json:"a"`
	B *float64 `json:"b"`
}

type powerArgs struct {
	Base     *float64 `json:"base"`
	Exponent *float64 `json:"exponent"`
}

type calculateArgs struct {
	Expression string `json:"expression"`
}

var binarySchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "a": {"type": "number", "description": "First number"},
    "b": {"type": "number", "description": "Second number"}
  },
  "required": ["a", "b"]
}`)

var powerSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "base": {"type": "number", "description": "Base value"},
    "exponent": {"type": "number", "description": "Exponent value"}
  },
  "required": ["base", "exponent"]
}`)

var calculateSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "expression": {"type": "string", "description": "Arithmetic expression to evaluate"}
  },
  "required": ["expression"]
}`)

var helpText = `Calculator server

Available tools:
  add(a, b)              Add two numbers.
  subtract(a, b)         Subtract b from a.
  multiply(a, b)         Multiply two numbers.
  divide(a, b)           Divide a by b. Fails when b is zero.
  power(base, exponent)  Raise base to the given exponent.
  calculate(expression)  Evaluate an arithmetic expression.

Examples:
  add(5, 3) -> 8
  divide(10, 4) -> 2.5
  power(2, 10) -> 1024
  calculate("10 + 5 * 2") -> 20
`
