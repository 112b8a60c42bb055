package toolhost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/tmaxmax/go-sse"
)

// SSE is a Transport for tool servers reachable over HTTP instead of a child
// process. Server-to-client messages arrive on a Server-Sent Events stream;
// client-to-server messages go out as HTTP POST requests to the message
// endpoint the server announces in its initial "endpoint" event.
// Instances should be created using NewSSE.
type SSE struct {
	connectURL string
	httpClient *http.Client
	logger     *slog.Logger

	maxPayloadSize int

	messages chan JSONRPCMessage
	ready    chan error
	done     chan struct{}

	startOnce sync.Once
	closeOnce sync.Once

	// messageURL is written once by the event reader before it signals
	// ready; Start returns only after that, so later Sends observe it.
	messageURL string
	cancel     context.CancelFunc
}

// SSEOption represents the options for the SSE transport.
type SSEOption func(*SSE)

// WithSSELogger sets the logger for the SSE transport.
func WithSSELogger(logger *slog.Logger) SSEOption {
	return func(s *SSE) {
		s.logger = logger.With(slog.String("transport", "sse"))
	}
}

// WithSSEHTTPClient sets the HTTP client used for both the event stream and
// the POST requests. If not set, the default HTTP client is used.
func WithSSEHTTPClient(client *http.Client) SSEOption {
	return func(s *SSE) {
		s.httpClient = client
	}
}

// WithSSEMaxPayloadSize sets the maximum size of a single event payload
// received from the server. An event exceeding the limit ends the stream.
func WithSSEMaxPayloadSize(size int) SSEOption {
	return func(s *SSE) {
		s.maxPayloadSize = size
	}
}

// NewSSE creates an SSE transport that connects to the event stream at
// connectURL. The transport is inert until Start is called.
func NewSSE(connectURL string, options ...SSEOption) *SSE {
	s := &SSE{
		connectURL: connectURL,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
		messages:   make(chan JSONRPCMessage),
		ready:      make(chan error, 1),
		done:       make(chan struct{}),
	}

	for _, opt := range options {
		opt(s)
	}

	return s
}

// Start opens the event stream and waits for the server's "endpoint" event,
// which carries the URL for outgoing messages. The stream itself outlives
// ctx; ctx only bounds how long Start waits for the connection to become
// usable.
func (s *SSE) Start(ctx context.Context) error {
	var err error
	s.startOnce.Do(func() {
		err = s.start(ctx)
	})
	return err
}

func (s *SSE) start(ctx context.Context) error {
	streamCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, s.connectURL, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to connect to SSE server: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	go s.listenEvents(resp.Body)

	select {
	case err, ok := <-s.ready:
		if ok && err != nil {
			s.Close()
			return err
		}
		return nil
	case <-ctx.Done():
		s.Close()
		return ctx.Err()
	}
}

// Send transmits a JSON-encoded message to the server through an HTTP POST
// request to the announced message endpoint.
func (s *SSE) Send(ctx context.Context, msg JSONRPCMessage) error {
	select {
	case <-s.done:
		return ErrTransportClosed
	default:
	}
	if s.messageURL == "" {
		return errors.New("transport is not started")
	}

	msgBs, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.messageURL, bytes.NewReader(msgBs))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}

// Messages returns an iterator over messages arriving on the event stream.
// The sequence ends when the stream does.
func (s *SSE) Messages() iter.Seq[JSONRPCMessage] {
	return func(yield func(JSONRPCMessage) bool) {
		for msg := range s.messages {
			if !yield(msg) {
				return
			}
		}
	}
}

// Close tears down the event stream. The message sequence ends shortly
// after. Close is safe to call more than once.
func (s *SSE) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.cancel != nil {
			s.cancel()
		}
	})
	return nil
}

func (s *SSE) listenEvents(body io.ReadCloser) {
	readySignaled := false
	defer func() {
		body.Close()
		if !readySignaled {
			s.ready <- errors.New("stream ended before endpoint event")
		}
		close(s.messages)
	}()

	var config *sse.ReadConfig
	if s.maxPayloadSize > 0 {
		config = &sse.ReadConfig{
			MaxEventSize: s.maxPayloadSize,
		}
	}

	for ev, err := range sse.Read(body, config) {
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.logger.Error("failed to read SSE message", "err", err)
			}
			return
		}

		switch ev.Type {
		case "endpoint":
			// The endpoint URL decides where every outgoing message goes,
			// so a malformed one fails the whole connection attempt.
			u, err := url.Parse(ev.Data)
			if err != nil {
				s.ready <- fmt.Errorf("failed to parse endpoint URL: %w", err)
				readySignaled = true
				return
			}
			if u.String() == "" {
				s.ready <- errors.New("empty endpoint URL")
				readySignaled = true
				return
			}
			s.messageURL = u.String()
			readySignaled = true
			close(s.ready)
		case "message":
			if s.messageURL == "" {
				s.logger.Error("received message before endpoint event")
				continue
			}

			var msg JSONRPCMessage
			if err := json.Unmarshal([]byte(ev.Data), &msg); err != nil {
				s.logger.Error("failed to unmarshal message", "err", err)
				continue
			}

			select {
			case s.messages <- msg:
			case <-s.done:
				return
			}
		default:
			s.logger.Error("unhandled event type", "type", ev.Type)
		}
	}
}
