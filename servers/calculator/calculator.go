// Package calculator implements an arithmetic tool server speaking the
// Model Context Protocol (MCP) wire format over a toolhost.Transport.
// It exposes basic arithmetic operations as tools plus a help resource
// describing them, and is mainly useful as a self-contained peer for
// exercising the client runtime.
package calculator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/copperline/toolhost"
)

// Server is a stateless MCP tool server for arithmetic. One Server value
// may serve any number of consecutive transports, but a single transport
// must not be shared between Serve calls.
type Server struct{}

// NewServer creates a calculator server.
func NewServer() Server {
	return Server{}
}

var errUnknownTool = errors.New("tool not found")

// Serve starts the transport and answers requests until the peer sends
// an exit notification or closes the connection. The transport is closed
// before Serve returns. The context bounds transport establishment and
// outgoing writes, not the overall serving time.
func (s Server) Serve(ctx context.Context, transport toolhost.Transport) error {
	if err := transport.Start(ctx); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}
	defer transport.Close()

	for msg := range transport.Messages() {
		if msg.ID == "" {
			if msg.Method == "exit" {
				return nil
			}
			// Other notifications, notifications/initialized included,
			// need no reply.
			continue
		}

		reply := s.handle(msg)
		if err := transport.Send(ctx, reply); err != nil {
			return fmt.Errorf("send %s reply: %w", msg.Method, err)
		}
	}

	return nil
}

func (s Server) handle(msg toolhost.JSONRPCMessage) toolhost.JSONRPCMessage {
	switch msg.Method {
	case "initialize":
		return resultReply(msg.ID, initializeResult{
			ProtocolVersion: protocolVersion,
			Capabilities:    serverCapabilities,
			ServerInfo:      toolhost.Info{Name: "calculator", Version: "1.0.0"},
		})
	case "tools/list":
		return resultReply(msg.ID, listToolsResult{Tools: toolList})
	case "tools/call":
		return s.callTool(msg)
	case "resources/read":
		return s.readResource(msg)
	case "shutdown":
		return resultReply(msg.ID, struct{}{})
	default:
		return errorReply(msg.ID, methodNotFoundCode, fmt.Sprintf("method %s not found", msg.Method))
	}
}

func (s Server) callTool(msg toolhost.JSONRPCMessage) toolhost.JSONRPCMessage {
	var params callToolParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return errorReply(msg.ID, invalidParamsCode, fmt.Sprintf("parse tools/call params: %v", err))
	}

	text, err := s.dispatchTool(params.Name, params.Arguments)
	if errors.Is(err, errUnknownTool) {
		return errorReply(msg.ID, invalidParamsCode, fmt.Sprintf("tool not found: %s", params.Name))
	}
	if err != nil {
		// Tool-level failures travel as results flagged isError, not as
		// protocol errors, so the calling side can surface the text.
		return resultReply(msg.ID, callToolResult{
			Content: []toolhost.ContentBlock{{Type: "text", Text: err.Error()}},
			IsError: true,
		})
	}

	return resultReply(msg.ID, callToolResult{
		Content: []toolhost.ContentBlock{{Type: "text", Text: text}},
	})
}

func (s Server) dispatchTool(name string, arguments json.RawMessage) (string, error) {
	switch name {
	case "add":
		a, b, err := binaryOperands(arguments)
		if err != nil {
			return "", err
		}
		return formatNumber(a + b), nil
	case "subtract":
		a, b, err := binaryOperands(arguments)
		if err != nil {
			return "", err
		}
		return formatNumber(a - b), nil
	case "multiply":
		a, b, err := binaryOperands(arguments)
		if err != nil {
			return "", err
		}
		return formatNumber(a * b), nil
	case "divide":
		a, b, err := binaryOperands(arguments)
		if err != nil {
			return "", err
		}
		if b == 0 {
			return "", errors.New("Cannot divide by zero")
		}
		return formatNumber(a / b), nil
	case "power":
		var args powerArgs
		if err := parseArguments(arguments, &args); err != nil {
			return "", err
		}
		if args.Base == nil || args.Exponent == nil {
			return "", errors.New("arguments base and exponent are required")
		}
		return formatNumber(math.Pow(*args.Base, *args.Exponent)), nil
	case "calculate":
		var args calculateArgs
		if err := parseArguments(arguments, &args); err != nil {
			return "", err
		}
		v, err := evaluate(args.Expression)
		if err != nil {
			return "", fmt.Errorf("Invalid expression: %v", err)
		}
		return formatNumber(v), nil
	default:
		return "", fmt.Errorf("%w: %s", errUnknownTool, name)
	}
}

func (s Server) readResource(msg toolhost.JSONRPCMessage) toolhost.JSONRPCMessage {
	var params readResourceParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return errorReply(msg.ID, invalidParamsCode, fmt.Sprintf("parse resources/read params: %v", err))
	}
	if params.URI != helpResourceURI {
		return errorReply(msg.ID, invalidParamsCode, fmt.Sprintf("unknown resource: %s", params.URI))
	}

	return resultReply(msg.ID, readResourceResult{
		Contents: []toolhost.ResourceContent{{
			URI:      helpResourceURI,
			MimeType: "text/plain",
			Text:     &helpText,
		}},
	})
}

func binaryOperands(arguments json.RawMessage) (float64, float64, error) {
	var args binaryArgs
	if err := parseArguments(arguments, &args); err != nil {
		return 0, 0, err
	}
	if args.A == nil || args.B == nil {
		return 0, 0, errors.New("arguments a and b are required")
	}
	return *args.A, *args.B, nil
}

func parseArguments(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("parse arguments: %v", err)
	}
	return nil
}

// formatNumber renders a result the way a person would write it, with
// no exponent and no trailing zeros, so 6/2 reads "3" and 10/4 "2.5".
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func resultReply(id toolhost.MustString, result any) toolhost.JSONRPCMessage {
	raw, err := json.Marshal(result)
	if err != nil {
		return errorReply(id, internalErrorCode, fmt.Sprintf("encode result: %v", err))
	}
	return toolhost.JSONRPCMessage{
		JSONRPC: toolhost.JSONRPCVersion,
		ID:      id,
		Result:  raw,
	}
}

func errorReply(id toolhost.MustString, code int, message string) toolhost.JSONRPCMessage {
	return toolhost.JSONRPCMessage{
		JSONRPC: toolhost.JSONRPCVersion,
		ID:      id,
		Error:   &toolhost.JSONRPCError{Code: code, Message: message},
	}
}
