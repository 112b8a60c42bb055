// Package toolhost is a client runtime for JSON-RPC tool servers speaking
// the Model Context Protocol (MCP) wire format. It spawns tool servers as
// child processes speaking newline-delimited JSON over stdio, or reaches
// them over Server-Sent Events, and manages the full session lifecycle on
// top: the initialize handshake, tool catalog discovery, tool calls,
// resource reads, and an orderly shutdown exchange.
//
// The Manager owns a set of named sessions and is the usual entry point;
// a single Session can also be driven directly over any Transport.
package toolhost
