package toolhost

import (
	"context"
	"iter"
)

// Transport moves JSON-RPC messages between a session and its peer.
type Transport interface {
	// Start establishes the connection to the peer. It must be called once,
	// before Send or Messages. The context covers establishment only, not
	// the lifetime of the connection.
	Start(ctx context.Context) error

	// Send delivers a single message to the peer. Concurrent calls are
	// safe; each message is written atomically with respect to the others.
	Send(ctx context.Context, msg JSONRPCMessage) error

	// Messages returns an iterator that yields messages received from the
	// peer. The sequence ends when the peer closes its side or the
	// transport is closed. The transport is the sole reader of the peer's
	// output; Messages must be consumed from a single goroutine.
	Messages() iter.Seq[JSONRPCMessage]

	// Close releases the connection. The caller is guaranteed to call this
	// method at most once.
	Close() error
}

// processReporter is implemented by transports that supervise a child
// process and can report how it ended. Sessions use it to enrich failures
// with the exit code and captured stderr.
type processReporter interface {
	// ExitState reports the process exit code and the tail of its error
	// stream. exited is false while the process is still running.
	ExitState() (code int, stderr string, exited bool)
}
