package toolhost

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors reported by sessions and the manager. They usually travel
// wrapped with additional context; match them with errors.Is.
var (
	// ErrSpawn indicates that a tool server process could not be started.
	ErrSpawn = errors.New("failed to start tool server")

	// ErrHandshake indicates that a session never became usable because the
	// peer rejected the initialize request, answered with an unsupported
	// protocol version, or went away during the exchange.
	ErrHandshake = errors.New("handshake failed")

	// ErrRequestTimeout indicates that a single request exceeded its
	// deadline. Other in-flight requests on the same session are unaffected.
	ErrRequestTimeout = errors.New("request timed out")

	// ErrNotReady indicates an operation was invoked on a session that is
	// not in the Ready state.
	ErrNotReady = errors.New("session is not ready")

	// ErrSessionClosed is the cancellation reason delivered to requests
	// still pending when their session is closed.
	ErrSessionClosed = errors.New("session closed")

	// ErrPeerClosed indicates the peer's output stream ended or its process
	// exited. It is broadcast to every request pending at that moment.
	ErrPeerClosed = errors.New("peer closed the connection")

	// ErrTransportClosed indicates a send was attempted on a transport that
	// has already been closed.
	ErrTransportClosed = errors.New("transport closed")

	// ErrDuplicateSession indicates a connect attempt with a name that is
	// already in use.
	ErrDuplicateSession = errors.New("session name already in use")

	// ErrUnknownSession indicates an operation named a session the manager
	// does not hold.
	ErrUnknownSession = errors.New("unknown session")

	// ErrDuplicateID indicates a request id that is already pending. With
	// monotonic ids this cannot happen; it is kept as a guard.
	ErrDuplicateID = errors.New("duplicate request id")

	// ErrMalformedCatalog indicates a tools/list response containing a tool
	// without a name.
	ErrMalformedCatalog = errors.New("malformed tool catalog")

	// ErrNoContent indicates a resources/read response with no content
	// entries at all.
	ErrNoContent = errors.New("resource response carries no contents")

	// ErrEmptyResource indicates a resource content entry with neither a
	// text nor a blob field.
	ErrEmptyResource = errors.New("resource content carries neither text nor blob")
)

// ExitError describes how a tool server process ended. It is wrapped into
// handshake and peer-closed failures when the process is known to have
// exited, carrying the exit code and the tail of the captured error stream.
type ExitError struct {
	// Code is the process exit code, or -1 if the process was terminated
	// by a signal.
	Code int

	// Stderr holds the most recent output of the process error stream.
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("process exited with code %d", e.Code)
	}
	return fmt.Sprintf("process exited with code %d, stderr: %q", e.Code, strings.TrimSpace(e.Stderr))
}

// isMethodNotFound reports whether err is a peer error carrying the JSON-RPC
// "method not found" code. Used for the non-fatal shutdown fallback on peers
// that predate the shutdown method.
func isMethodNotFound(err error) bool {
	var jErr *JSONRPCError
	if !errors.As(err, &jErr) {
		return false
	}
	return jErr.Code == jsonRPCMethodNotFoundCode
}
