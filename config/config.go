// Package config provides the configuration schema and loader for the
// toolhost demo host.
package config

// LogLevel controls log verbosity for the host.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// TransportKind selects the connection mechanism for a tool server.
type TransportKind string

const (
	// TransportStdio launches the server as a child process speaking
	// newline-delimited JSON over its standard streams.
	TransportStdio TransportKind = "stdio"

	// TransportSSE connects to a remote server over Server-Sent Events.
	TransportSSE TransportKind = "sse"
)

// IsValid reports whether t is a recognised transport kind.
func (t TransportKind) IsValid() bool {
	return t == TransportStdio || t == TransportSSE
}

// Config is the root configuration structure for the toolhost host.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Host    HostConfig     `yaml:"host"`
	Servers []ServerConfig `yaml:"servers"`
}

// HostConfig holds logging and timeout settings for the host process.
type HostConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// HandshakeTimeoutSeconds bounds the initialize exchange per server.
	// Zero means the built-in default.
	HandshakeTimeoutSeconds int `yaml:"handshake_timeout_seconds"`

	// RequestTimeoutSeconds bounds each individual request to a server.
	// Zero means the built-in default.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
}

// ServerConfig describes how to connect to a single tool server.
type ServerConfig struct {
	// Name is a unique identifier for this server. It becomes the session
	// name and appears in logs.
	Name string `yaml:"name"`

	// Transport specifies the connection mechanism. Defaults to stdio.
	Transport TransportKind `yaml:"transport"`

	// Command is the executable launched when Transport is "stdio".
	Command string `yaml:"command"`

	// Args are the command line arguments passed to Command.
	Args []string `yaml:"args"`

	// Env holds additional environment variables injected into the
	// subprocess on top of the host environment. Values support ${VAR}
	// expansion. May be nil.
	Env map[string]string `yaml:"env"`

	// URL is the event stream address used when Transport is "sse"
	// (e.g., "https://tools.example.com/connect"). Ignored for stdio.
	URL string `yaml:"url"`
}
