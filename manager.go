package toolhost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// ManagerOption is a function that configures a session manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger for the manager and the sessions it
// creates.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithSessionOptions sets options applied to every session the manager
// creates.
func WithSessionOptions(options ...SessionOption) ManagerOption {
	return func(m *Manager) {
		m.sessionOptions = options
	}
}

// Manager owns a set of named sessions and their tool server processes.
// Session names are unique; connecting an already-connected name fails
// without disturbing the existing session. All methods are safe for
// concurrent use, and sessions never affect each other: a failure during
// one connect or close leaves every other session untouched.
type Manager struct {
	logger         *slog.Logger
	sessionOptions []SessionOption

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates an empty session manager.
func NewManager(options ...ManagerOption) *Manager {
	m := &Manager{
		logger:   slog.Default(),
		sessions: make(map[string]*Session),
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// Connect spawns command with args and env as a tool server child process
// and drives the session handshake, returning once the session is Ready or
// the attempt failed. On failure no session is retained and the process is
// not left running.
func (m *Manager) Connect(ctx context.Context, name, command string, args []string, env map[string]string) error {
	transport := NewProcess(command, args, env, WithProcessLogger(m.logger))
	return m.ConnectTransport(ctx, name, transport)
}

// ConnectTransport is Connect for peers that are not child processes, such
// as remote servers or in-process test peers.
func (m *Manager) ConnectTransport(ctx context.Context, name string, transport Transport) error {
	options := append([]SessionOption{WithSessionLogger(m.logger)}, m.sessionOptions...)
	sess := NewSession(name, transport, options...)

	m.mu.Lock()
	if _, ok := m.sessions[name]; ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateSession, name)
	}
	m.sessions[name] = sess
	m.mu.Unlock()

	if err := sess.Connect(ctx); err != nil {
		m.mu.Lock()
		delete(m.sessions, name)
		m.mu.Unlock()
		return err
	}

	return nil
}

// Disconnect closes the named session and removes it. Disconnecting a name
// the manager does not hold is a logged no-op, not a failure.
func (m *Manager) Disconnect(name string) error {
	m.mu.Lock()
	sess, ok := m.sessions[name]
	delete(m.sessions, name)
	m.mu.Unlock()

	if !ok {
		m.logger.Warn("disconnect of unknown session", "session", name)
		return nil
	}
	return sess.Close()
}

// ListConnected returns a sorted snapshot of the held session names. The
// snapshot is safe to iterate while sessions connect or disconnect
// elsewhere.
func (m *Manager) ListConnected() []string {
	m.mu.Lock()
	names := make([]string, 0, len(m.sessions))
	for name := range m.sessions {
		names = append(names, name)
	}
	m.mu.Unlock()

	slices.Sort(names)
	return names
}

// Session returns the named session, or ErrUnknownSession.
func (m *Manager) Session(name string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, name)
	}
	return sess, nil
}

// ListTools returns the tool catalog of the named session.
func (m *Manager) ListTools(ctx context.Context, name string) ([]ToolDescriptor, error) {
	sess, err := m.Session(name)
	if err != nil {
		return nil, err
	}
	return sess.ListTools(ctx)
}

// CallTool invokes toolName on the named session and returns its textual
// result.
func (m *Manager) CallTool(ctx context.Context, name, toolName string, args map[string]any) (string, error) {
	sess, err := m.Session(name)
	if err != nil {
		return "", err
	}
	return sess.CallTool(ctx, toolName, args)
}

// ReadResource retrieves a resource from the named session.
func (m *Manager) ReadResource(ctx context.Context, name, uri string) ([]byte, error) {
	sess, err := m.Session(name)
	if err != nil {
		return nil, err
	}
	return sess.ReadResource(ctx, uri)
}

// CloseAll disconnects every session concurrently and waits for all of them
// to finish. Per-session failures are collected and returned joined, never
// propagated early, so one stuck peer cannot prevent the others from being
// cleaned up.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var (
		wg   sync.WaitGroup
		emu  sync.Mutex
		errs []error
	)
	for _, sess := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sess.Close(); err != nil {
				m.logger.Warn("failed to close session", "session", sess.Name(), "err", err)
				emu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", sess.Name(), err))
				emu.Unlock()
			}
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}
