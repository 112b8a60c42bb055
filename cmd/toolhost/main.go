// Command toolhost connects to the tool servers listed in a YAML config,
// prints their merged tool catalog, and can invoke a single tool or read a
// single resource before disconnecting everything.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/copperline/toolhost"
	"github.com/copperline/toolhost/config"
)

func main() {
	os.Exit(run())
}

// hostEnv carries environment-derived defaults for the flag surface.
type hostEnv struct {
	// ConfigPath is the YAML config location. ENV: TOOLHOST_CONFIG
	ConfigPath string `env:"TOOLHOST_CONFIG,default=toolhost.yaml"`
	// LogLevel overrides host.log_level from the config. ENV: TOOLHOST_LOG_LEVEL
	LogLevel string `env:"TOOLHOST_LOG_LEVEL"`
}

func run() int {
	var env hostEnv
	_ = envdecode.Decode(&env)

	flagSet := pflag.NewFlagSet("toolhost", pflag.ContinueOnError)
	configPath := flagSet.String("config", env.ConfigPath, "path to the YAML configuration file")
	logLevel := flagSet.String("log-level", env.LogLevel, "override host.log_level (debug, info, warn, error)")
	call := flagSet.String("call", "", "invoke one tool, given as server:tool")
	callArgs := flagSet.String("args", "{}", "JSON arguments object for --call")
	read := flagSet.String("read", "", "read one resource, given as server:uri")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "toolhost: %v\n", err)
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "toolhost: %v\n", err)
		return 1
	}

	level := cfg.Host.LogLevel
	if *logLevel != "" {
		level = config.LogLevel(*logLevel)
	}
	logger := newLogger(level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager := toolhost.NewManager(
		toolhost.WithManagerLogger(logger),
		toolhost.WithSessionOptions(sessionOptions(cfg.Host)...),
	)
	defer func() {
		if err := manager.CloseAll(); err != nil {
			slog.Warn("failed to close sessions", "err", err)
		}
	}()

	if err := connectAll(ctx, manager, cfg.Servers); err != nil {
		slog.Error("failed to connect tool servers", "err", err)
		return 1
	}

	switch {
	case *call != "":
		return runCall(ctx, manager, *call, *callArgs)
	case *read != "":
		return runRead(ctx, manager, *read)
	default:
		return printCatalog(ctx, manager)
	}
}

// connectAll connects every configured server concurrently and fails fast
// when any of them cannot be reached.
func connectAll(ctx context.Context, manager *toolhost.Manager, servers []config.ServerConfig) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, srv := range servers {
		g.Go(func() error {
			var err error
			switch srv.Transport {
			case config.TransportSSE:
				transport := toolhost.NewSSE(srv.URL, toolhost.WithSSELogger(slog.Default()))
				err = manager.ConnectTransport(gctx, srv.Name, transport)
			default:
				err = manager.Connect(gctx, srv.Name, srv.Command, srv.Args, srv.Env)
			}
			if err != nil {
				return fmt.Errorf("%s: %w", srv.Name, err)
			}
			slog.Info("connected", "server", srv.Name)
			return nil
		})
	}

	return g.Wait()
}

func printCatalog(ctx context.Context, manager *toolhost.Manager) int {
	for _, name := range manager.ListConnected() {
		tools, err := manager.ListTools(ctx, name)
		if err != nil {
			slog.Error("failed to list tools", "server", name, "err", err)
			return 1
		}

		fmt.Printf("%s (%d tools)\n", name, len(tools))
		for _, tool := range tools {
			fmt.Printf("  %s(%s)\n", tool.Name, formatParameters(tool.Parameters()))
			if tool.Description != "" {
				fmt.Printf("      %s\n", tool.Description)
			}
		}
	}
	return 0
}

func formatParameters(params []toolhost.ParameterDefinition) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		part := p.Name + " " + p.Type
		if !p.Required {
			part += "?"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, ", ")
}

func runCall(ctx context.Context, manager *toolhost.Manager, target, argsJSON string) int {
	server, tool, ok := strings.Cut(target, ":")
	if !ok {
		fmt.Fprintln(os.Stderr, "toolhost: --call expects server:tool")
		return 2
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		fmt.Fprintf(os.Stderr, "toolhost: --args is not a JSON object: %v\n", err)
		return 2
	}

	result, err := manager.CallTool(ctx, server, tool, args)
	if err != nil {
		slog.Error("tool call failed", "server", server, "tool", tool, "err", err)
		return 1
	}
	fmt.Println(result)
	return 0
}

func runRead(ctx context.Context, manager *toolhost.Manager, target string) int {
	server, uri, ok := strings.Cut(target, ":")
	if !ok {
		fmt.Fprintln(os.Stderr, "toolhost: --read expects server:uri")
		return 2
	}

	data, err := manager.ReadResource(ctx, server, uri)
	if err != nil {
		slog.Error("resource read failed", "server", server, "uri", uri, "err", err)
		return 1
	}
	os.Stdout.Write(data)
	if len(data) == 0 || data[len(data)-1] != '\n' {
		fmt.Println()
	}
	return 0
}

func sessionOptions(host config.HostConfig) []toolhost.SessionOption {
	var options []toolhost.SessionOption
	if host.HandshakeTimeoutSeconds > 0 {
		options = append(options, toolhost.WithHandshakeTimeout(time.Duration(host.HandshakeTimeoutSeconds)*time.Second))
	}
	if host.RequestTimeoutSeconds > 0 {
		options = append(options, toolhost.WithRequestTimeout(time.Duration(host.RequestTimeoutSeconds)*time.Second))
	}
	return options
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
