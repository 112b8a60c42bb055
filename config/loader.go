package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references
// from the host environment, and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	expand(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expand applies environment variable expansion to the fields that commonly
// carry credentials or host-specific paths.
func expand(cfg *Config) {
	for i := range cfg.Servers {
		srv := &cfg.Servers[i]
		srv.Command = os.ExpandEnv(srv.Command)
		for j, arg := range srv.Args {
			srv.Args[j] = os.ExpandEnv(arg)
		}
		for k, v := range srv.Env {
			srv.Env[k] = os.ExpandEnv(v)
		}
		srv.URL = os.ExpandEnv(srv.URL)
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Host.LogLevel != "" && !cfg.Host.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("host.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Host.LogLevel))
	}
	if cfg.Host.HandshakeTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("host.handshake_timeout_seconds %d must not be negative", cfg.Host.HandshakeTimeoutSeconds))
	}
	if cfg.Host.RequestTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("host.request_timeout_seconds %d must not be negative", cfg.Host.RequestTimeoutSeconds))
	}

	namesSeen := make(map[string]int, len(cfg.Servers))

	for i, srv := range cfg.Servers {
		prefix := fmt.Sprintf("servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := namesSeen[srv.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of servers[%d]", prefix, srv.Name, prev))
			}
			namesSeen[srv.Name] = i
		}

		if srv.Transport != "" && !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, sse", prefix, srv.Transport))
			continue
		}

		transport := srv.Transport
		if transport == "" {
			transport = TransportStdio
		}
		if transport == TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if transport == TransportSSE && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is sse", prefix))
		}
	}

	return errors.Join(errs...)
}
