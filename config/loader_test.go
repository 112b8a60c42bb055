package config_test

import (
	"strings"
	"testing"

	"github.com/copperline/toolhost/config"
)

func TestLoadFromReader(t *testing.T) {
	t.Parallel()
	yaml := `
host:
  log_level: debug
  request_timeout_seconds: 60
servers:
  - name: calculator
    command: ./calculator-server
    args: ["--precision", "2"]
    env:
      MODE: strict
  - name: weather
    transport: sse
    url: https://weather.example.com/connect
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Host.LogLevel != config.LogDebug {
		t.Errorf("log_level = %q, want %q", cfg.Host.LogLevel, config.LogDebug)
	}
	if cfg.Host.RequestTimeoutSeconds != 60 {
		t.Errorf("request_timeout_seconds = %d, want 60", cfg.Host.RequestTimeoutSeconds)
	}
	if len(cfg.Servers) != 2 {
		t.Fatalf("got %d servers, want 2", len(cfg.Servers))
	}
	if cfg.Servers[0].Command != "./calculator-server" {
		t.Errorf("command = %q, want %q", cfg.Servers[0].Command, "./calculator-server")
	}
	if got := cfg.Servers[0].Env["MODE"]; got != "strict" {
		t.Errorf("env MODE = %q, want %q", got, "strict")
	}
	if cfg.Servers[1].Transport != config.TransportSSE {
		t.Errorf("transport = %q, want %q", cfg.Servers[1].Transport, config.TransportSSE)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	yaml := `
servers:
  - name: calculator
    command: ./calculator-server
    comand_typo: oops
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoadFromReader_EnvExpansion(t *testing.T) {
	t.Setenv("TOOLHOST_TEST_TOKEN", "sekrit")
	t.Setenv("TOOLHOST_TEST_BIN", "/opt/tools")

	yaml := `
servers:
  - name: calculator
    command: ${TOOLHOST_TEST_BIN}/calculator-server
    env:
      API_TOKEN: ${TOOLHOST_TEST_TOKEN}
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := cfg.Servers[0].Command; got != "/opt/tools/calculator-server" {
		t.Errorf("command = %q, want %q", got, "/opt/tools/calculator-server")
	}
	if got := cfg.Servers[0].Env["API_TOKEN"]; got != "sekrit" {
		t.Errorf("env API_TOKEN = %q, want %q", got, "sekrit")
	}
}

func TestValidate_DuplicateServerNames(t *testing.T) {
	t.Parallel()
	yaml := `
servers:
  - name: calculator
    command: ./calculator-server
  - name: calculator
    command: ./other-server
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for duplicate server names, got nil")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("error should mention duplicate, got: %v", err)
	}
}

func TestValidate_StdioRequiresCommand(t *testing.T) {
	t.Parallel()
	yaml := `
servers:
  - name: calculator
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for stdio server without command, got nil")
	}
	if !strings.Contains(err.Error(), "command is required") {
		t.Errorf("error should mention missing command, got: %v", err)
	}
}

func TestValidate_SSERequiresURL(t *testing.T) {
	t.Parallel()
	yaml := `
servers:
  - name: weather
    transport: sse
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for sse server without url, got nil")
	}
	if !strings.Contains(err.Error(), "url is required") {
		t.Errorf("error should mention missing url, got: %v", err)
	}
}

func TestValidate_InvalidTransport(t *testing.T) {
	t.Parallel()
	yaml := `
servers:
  - name: calculator
    transport: carrier-pigeon
    command: ./calculator-server
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid transport, got nil")
	}
	if !strings.Contains(err.Error(), "transport") {
		t.Errorf("error should mention transport, got: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
host:
  log_level: chatty
servers:
  - name: calculator
    command: ./calculator-server
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_CollectsAllFailures(t *testing.T) {
	t.Parallel()
	yaml := `
host:
  log_level: chatty
servers:
  - name: ""
  - name: weather
    transport: sse
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	for _, want := range []string{"log_level", "name is required", "url is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error should mention %q, got: %v", want, err)
		}
	}
}
