package toolhost

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// SessionState describes where a session is in its lifecycle.
type SessionState int

// Session lifecycle states. A session moves Unconnected through Starting and
// Initializing to Ready, then through Closing to Closed. Failed is terminal
// and reachable from every non-terminal state.
const (
	StateUnconnected SessionState = iota
	StateStarting
	StateInitializing
	StateReady
	StateClosing
	StateClosed
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateStarting:
		return "starting"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	defaultHandshakeTimeout = 10 * time.Second
	defaultRequestTimeout   = 30 * time.Second
	defaultShutdownTimeout  = 5 * time.Second
)

// SessionOption is a function that configures a session.
type SessionOption func(*Session)

// WithSessionLogger sets the logger for the session. The session scopes it
// with the session name and instance id.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithClientInfo sets the client identity announced to the peer during the
// handshake.
func WithClientInfo(info Info) SessionOption {
	return func(s *Session) {
		s.info = info
	}
}

// WithHandshakeTimeout bounds the initialize exchange. It is distinct from
// the general request timeout so a dead peer is detected quickly at connect
// time.
func WithHandshakeTimeout(timeout time.Duration) SessionOption {
	return func(s *Session) {
		s.handshakeTimeout = timeout
	}
}

// WithRequestTimeout sets the deadline applied to each individual request.
func WithRequestTimeout(timeout time.Duration) SessionOption {
	return func(s *Session) {
		s.requestTimeout = timeout
	}
}

// WithShutdownTimeout bounds the shutdown exchange during Close.
func WithShutdownTimeout(timeout time.Duration) SessionOption {
	return func(s *Session) {
		s.shutdownTimeout = timeout
	}
}

// Session is the client-side state machine and I/O context for one connected
// tool server. It drives the initialize handshake, discovers the peer's tool
// catalog, and dispatches tool calls and resource reads, matching responses
// to requests by id so a peer may answer out of order.
//
// A Session must be created with NewSession and connected with Connect
// before use. Operations are only valid while the session is Ready. Close
// is idempotent and never leaves a pending caller blocked: every request
// still in flight is failed with ErrSessionClosed.
type Session struct {
	name string
	id   string
	info Info

	transport Transport
	registry  *requestRegistry
	logger    *slog.Logger

	handshakeTimeout time.Duration
	requestTimeout   time.Duration
	shutdownTimeout  time.Duration

	nextID atomic.Int64

	mu            sync.Mutex
	state         SessionState
	catalog       []ToolDescriptor
	serverInfo    Info
	readerStarted bool

	readerDone chan struct{}
}

// NewSession creates a session named name speaking over transport. The name
// is the caller's handle for this peer; it appears in logs and errors.
func NewSession(name string, transport Transport, options ...SessionOption) *Session {
	s := &Session{
		name:       name,
		id:         uuid.New().String(),
		info:       Info{Name: "toolhost", Version: "0.1.0"},
		transport:  transport,
		logger:     slog.Default(),
		state:      StateUnconnected,
		readerDone: make(chan struct{}),
	}
	for _, opt := range options {
		opt(s)
	}

	if s.handshakeTimeout == 0 {
		s.handshakeTimeout = defaultHandshakeTimeout
	}
	if s.requestTimeout == 0 {
		s.requestTimeout = defaultRequestTimeout
	}
	if s.shutdownTimeout == 0 {
		s.shutdownTimeout = defaultShutdownTimeout
	}

	s.logger = s.logger.With(
		slog.String("session", s.name),
		slog.String("sessionID", s.id),
	)
	s.registry = newRequestRegistry(s.logger)

	return s
}

// Name returns the caller-facing name of the session.
func (s *Session) Name() string {
	return s.name
}

// ID returns the unique instance identifier of the session.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ServerInfo returns the peer identity reported during the handshake. It is
// the zero value until the session reaches Ready.
func (s *Session) ServerInfo() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverInfo
}

// Connect starts the transport, launches the reader loop, and drives the
// initialize handshake. It returns once the session is Ready or Failed. A
// handshake that times out or is rejected reports ErrHandshake, enriched
// with the process exit code and captured stderr when the peer is a child
// process that already exited.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateUnconnected {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("cannot connect session in state %s", state)
	}
	s.state = StateStarting
	s.mu.Unlock()

	if err := s.transport.Start(ctx); err != nil {
		s.setState(StateFailed)
		return err
	}

	s.mu.Lock()
	s.state = StateInitializing
	s.readerStarted = true
	s.mu.Unlock()
	go s.listenMessages()

	if err := s.initialize(ctx); err != nil {
		return s.failConnect(fmt.Errorf("%w: %w", ErrHandshake, err))
	}

	s.setState(StateReady)
	s.logger.Info("session ready", "server", s.ServerInfo().Name)
	return nil
}

// ListTools returns the peer's tool catalog. Discovery happens at most once
// per session: the first successful call caches the catalog and later calls
// return it unchanged without touching the peer. Callers that need a fresh
// catalog must reconnect.
func (s *Session) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if len(s.catalog) > 0 {
		tools := s.catalog
		s.mu.Unlock()
		return tools, nil
	}
	s.mu.Unlock()

	raw, err := s.sendRequest(ctx, methodToolsList, nil, s.requestTimeout)
	if err != nil {
		return nil, err
	}

	tools, err := parseCatalog(raw)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if len(s.catalog) > 0 {
		// A concurrent discovery won; keep the cached catalog immutable.
		tools = s.catalog
	} else {
		s.catalog = tools
	}
	s.mu.Unlock()

	return tools, nil
}

// CallTool invokes the named tool with args and returns the textual result.
// Every content block of type "text" is concatenated in order, one block
// per line, and the result is trimmed of surrounding whitespace. Blocks of
// other types are skipped. A response with no text content at all is
// returned in its raw serialized form rather than failing.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if err := s.ensureReady(); err != nil {
		return "", err
	}

	raw, err := s.sendRequest(ctx, methodToolsCall, callToolParams{
		Name:      name,
		Arguments: args,
	}, s.requestTimeout)
	if err != nil {
		return "", fmt.Errorf("failed to call tool %s: %w", name, err)
	}

	var result callToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		s.logger.Debug("tool result is not a content list, returning raw form", "tool", name, "err", err)
		return string(raw), nil
	}

	if result.IsError {
		s.logger.Warn("tool reported an error result", "tool", name)
	}

	var sb strings.Builder
	found := false
	for _, block := range result.Content {
		if block.Type != "text" {
			continue
		}
		if found {
			sb.WriteByte('\n')
		}
		sb.WriteString(block.Text)
		found = true
	}
	if !found {
		return string(raw), nil
	}

	return strings.TrimSpace(sb.String()), nil
}

// ReadResource retrieves the resource identified by uri and returns its
// bytes: the UTF-8 text for text resources, the decoded payload for base64
// blob resources. A content entry carrying neither form fails with
// ErrEmptyResource; a response with no content entries fails with
// ErrNoContent.
func (s *Session) ReadResource(ctx context.Context, uri string) ([]byte, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}

	raw, err := s.sendRequest(ctx, methodResourcesRead, readResourceParams{URI: uri}, s.requestTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to read resource %s: %w", uri, err)
	}

	var result readResourceResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal resources/read result: %w", err)
	}
	if len(result.Contents) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoContent, uri)
	}

	content := result.Contents[0]
	switch {
	case content.Text != nil:
		return []byte(*content.Text), nil
	case content.Blob != nil:
		decoded, err := base64.StdEncoding.DecodeString(*content.Blob)
		if err != nil {
			return nil, fmt.Errorf("failed to decode resource blob: %w", err)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrEmptyResource, uri)
	}
}

// Close drives the session to Closed. From Ready it attempts the shutdown
// exchange first: a shutdown request, then an exit notification. A peer
// answering shutdown with "method not found" predates the method and is not
// a fault; any other shutdown error is logged and teardown proceeds. All
// pending requests are failed with ErrSessionClosed and the transport is
// closed, which for child processes means the process is reaped or killed.
// Close is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	state := s.state
	if state == StateClosed || state == StateClosing {
		s.mu.Unlock()
		return nil
	}
	if state != StateFailed {
		s.state = StateClosing
	}
	readerStarted := s.readerStarted
	s.mu.Unlock()

	if state == StateReady {
		s.shutdownPeer()
	}

	closeErr := s.transport.Close()
	if readerStarted {
		<-s.readerDone
	}
	s.registry.cancelAll(ErrSessionClosed)

	if state != StateFailed {
		s.setState(StateClosed)
		s.logger.Info("session closed")
	}
	return closeErr
}

// initialize performs the protocol handshake: an initialize request bounded
// by the handshake deadline, a protocol version check, then the initialized
// notification.
func (s *Session) initialize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.handshakeTimeout)
	defer cancel()

	raw, err := s.sendRequest(ctx, methodInitialize, initializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    clientCapabilities{},
		ClientInfo:      s.info,
	}, s.handshakeTimeout)
	if err != nil {
		return err
	}

	var result initializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("failed to unmarshal initialize result: %w", err)
	}
	if result.ProtocolVersion != protocolVersion {
		return fmt.Errorf("protocol version mismatch: %s != %s", result.ProtocolVersion, protocolVersion)
	}

	s.mu.Lock()
	s.serverInfo = result.ServerInfo
	s.mu.Unlock()

	return s.sendNotification(ctx, methodNotificationsInitialized, nil)
}

// failConnect tears down a connect attempt: the transport is closed (which
// for child processes waits until the process is reaped), the failure is
// enriched with the exit state when available, and the session is marked
// Failed.
func (s *Session) failConnect(err error) error {
	_ = s.transport.Close()

	if rep, ok := s.transport.(processReporter); ok {
		if code, stderr, exited := rep.ExitState(); exited {
			err = fmt.Errorf("%w: %w", err, &ExitError{Code: code, Stderr: stderr})
		}
	}

	s.setState(StateFailed)
	s.logger.Error("session handshake failed", "err", err)
	return err
}

// shutdownPeer runs the shutdown request and exit notification that precede
// transport teardown. Failures never block the close path.
func (s *Session) shutdownPeer() {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if _, err := s.sendRequest(ctx, methodShutdown, nil, s.shutdownTimeout); err != nil {
		if isMethodNotFound(err) {
			s.logger.Debug("peer does not implement shutdown, proceeding to exit")
		} else {
			s.logger.Warn("shutdown request failed", "err", err)
		}
	}

	if err := s.sendNotification(ctx, methodExit, nil); err != nil {
		s.logger.Warn("failed to send exit notification", "err", err)
	}
}

// listenMessages is the sole consumer of the transport's message stream. It
// routes responses to the registry, answers peer-initiated requests with
// "method not found", and drops everything else. When the stream ends it
// broadcasts the failure to every pending request.
func (s *Session) listenMessages() {
	defer close(s.readerDone)

	for msg := range s.transport.Messages() {
		if msg.JSONRPC != JSONRPCVersion {
			s.logger.Error("invalid jsonrpc version", "version", msg.JSONRPC)
			continue
		}

		switch {
		case msg.ID != "" && (msg.Result != nil || msg.Error != nil):
			if msg.Error != nil {
				s.registry.reject(msg.ID, msg.Error)
			} else {
				s.registry.resolve(msg.ID, msg.Result)
			}
		case msg.ID != "" && msg.Method != "":
			// This client serves no methods; tell the peer instead of
			// leaving its request hanging.
			s.replyMethodNotFound(msg)
		case msg.Method != "":
			s.logger.Debug("ignoring notification from peer", "method", msg.Method)
		default:
			s.logger.Error("dropping message with neither method nor result", "id", msg.ID)
		}
	}

	s.onStreamEnd()
}

// onStreamEnd handles the transport's message sequence ending. During an
// orderly close the pending requests are already being failed with
// ErrSessionClosed; any other cause marks the session Failed and broadcasts
// ErrPeerClosed, enriched with the process exit state when known.
func (s *Session) onStreamEnd() {
	reason := error(ErrPeerClosed)
	if rep, ok := s.transport.(processReporter); ok {
		if code, stderr, exited := rep.ExitState(); exited {
			reason = fmt.Errorf("%w: %w", ErrPeerClosed, &ExitError{Code: code, Stderr: stderr})
		}
	}

	s.mu.Lock()
	orderly := s.state == StateClosing || s.state == StateClosed
	if orderly {
		reason = ErrSessionClosed
	} else if s.state != StateFailed {
		s.state = StateFailed
	}
	s.mu.Unlock()

	s.registry.cancelAll(reason)

	if !orderly {
		s.logger.Warn("peer closed the connection", "err", reason)
	}
}

// sendRequest assigns the next monotonic id, registers the pending entry,
// writes the request, and waits for the matching response. A caller that
// stops waiting via ctx gets ctx's error, never ErrRequestTimeout, so
// caller cancellation is not mis-reported as a peer timeout.
func (s *Session) sendRequest(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	var paramsBs json.RawMessage
	if params != nil {
		bs, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		paramsBs = bs
	}

	id := MustString(strconv.FormatInt(s.nextID.Add(1), 10))
	done, err := s.registry.register(id, method, timeout)
	if err != nil {
		return nil, err
	}

	msg := JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Method:  method,
		Params:  paramsBs,
	}
	if err := s.transport.Send(ctx, msg); err != nil {
		s.registry.abandon(id)
		return nil, fmt.Errorf("failed to send %s request: %w", method, err)
	}

	select {
	case out := <-done:
		if out.err != nil {
			return nil, out.err
		}
		return out.result, nil
	case <-ctx.Done():
		s.registry.abandon(id)
		return nil, ctx.Err()
	}
}

func (s *Session) sendNotification(ctx context.Context, method string, params any) error {
	var paramsBs json.RawMessage
	if params != nil {
		bs, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to marshal params: %w", err)
		}
		paramsBs = bs
	}

	msg := JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		Method:  method,
		Params:  paramsBs,
	}
	if err := s.transport.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send %s notification: %w", method, err)
	}
	return nil
}

func (s *Session) replyMethodNotFound(msg JSONRPCMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	reply := JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
		ID:      msg.ID,
		Error: &JSONRPCError{
			Code:    jsonRPCMethodNotFoundCode,
			Message: fmt.Sprintf("method %s not found", msg.Method),
		},
	}
	if err := s.transport.Send(ctx, reply); err != nil {
		s.logger.Error("failed to reply to peer request", "method", msg.Method, "err", err)
	}
}

func (s *Session) ensureReady() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return fmt.Errorf("%w: %s is %s", ErrNotReady, s.name, s.state)
	}
	return nil
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
