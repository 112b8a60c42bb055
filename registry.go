package toolhost

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// requestOutcome is the single completion value delivered to a waiting
// caller. Exactly one of result or err is meaningful.
type requestOutcome struct {
	result json.RawMessage
	err    error
}

type pendingRequest struct {
	id     MustString
	method string
	done   chan requestOutcome
	timer  *time.Timer
}

// requestRegistry correlates asynchronously arriving responses with the
// callers waiting for them and enforces a per-request deadline. Every entry
// is removed and completed exactly once, whichever of response arrival,
// timeout, caller abandonment or session shutdown happens first; requests
// time out independently of each other.
type requestRegistry struct {
	mu      sync.Mutex
	pending map[MustString]*pendingRequest
	logger  *slog.Logger
}

func newRequestRegistry(logger *slog.Logger) *requestRegistry {
	return &requestRegistry{
		pending: make(map[MustString]*pendingRequest),
		logger:  logger,
	}
}

// register stores a new pending request and arms its timeout. The returned
// channel is buffered and receives exactly one outcome.
func (r *requestRegistry) register(id MustString, method string, timeout time.Duration) (<-chan requestOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pending[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}

	req := &pendingRequest{
		id:     id,
		method: method,
		done:   make(chan requestOutcome, 1),
	}
	req.timer = time.AfterFunc(timeout, func() {
		r.reject(id, fmt.Errorf("%w: no response to %s within %s", ErrRequestTimeout, method, timeout))
	})
	r.pending[id] = req

	return req.done, nil
}

// resolve completes the request waiting on id with the peer's result. A
// response nothing is waiting for is logged and dropped.
func (r *requestRegistry) resolve(id MustString, result json.RawMessage) {
	req := r.take(id)
	if req == nil {
		r.logger.Debug("dropping response with no matching request", "id", id)
		return
	}
	req.done <- requestOutcome{result: result}
}

// reject completes the request waiting on id with a failure.
func (r *requestRegistry) reject(id MustString, err error) {
	req := r.take(id)
	if req == nil {
		r.logger.Debug("dropping error for unknown request", "id", id, "err", err)
		return
	}
	req.done <- requestOutcome{err: err}
}

// abandon removes the entry for id without completing it, for callers that
// stopped waiting on their own account. Safe to call after the entry is gone.
func (r *requestRegistry) abandon(id MustString) {
	r.take(id)
}

// cancelAll fails every outstanding request with reason. Used when the peer
// goes away or the session closes; afterwards the registry is empty.
func (r *requestRegistry) cancelAll(reason error) {
	r.mu.Lock()
	taken := make([]*pendingRequest, 0, len(r.pending))
	for id, req := range r.pending {
		req.timer.Stop()
		delete(r.pending, id)
		taken = append(taken, req)
	}
	r.mu.Unlock()

	for _, req := range taken {
		req.done <- requestOutcome{err: reason}
	}
}

// len reports the number of outstanding requests.
func (r *requestRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// take removes and returns the entry for id, stopping its timer, or nil if
// the entry has already been taken by another completion path.
func (r *requestRegistry) take(id MustString) *pendingRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.pending[id]
	if !ok {
		return nil
	}
	req.timer.Stop()
	delete(r.pending, id)
	return req
}
