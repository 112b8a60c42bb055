package toolhost_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/copperline/toolhost"
)

func newTestManager(options ...toolhost.ManagerOption) *toolhost.Manager {
	options = append([]toolhost.ManagerOption{toolhost.WithManagerLogger(discardLogger())}, options...)
	return toolhost.NewManager(options...)
}

func TestManagerConnectTransport(t *testing.T) {
	m := newTestManager()
	t.Cleanup(func() { _ = m.CloseAll() })

	_, transport := newStubPeer(t)
	if err := m.ConnectTransport(context.Background(), "calc", transport); err != nil {
		t.Fatalf("ConnectTransport failed: %v", err)
	}

	if got := m.ListConnected(); len(got) != 1 || got[0] != "calc" {
		t.Errorf("ListConnected = %v, want [calc]", got)
	}

	sess, err := m.Session("calc")
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if got := sess.State(); got != toolhost.StateReady {
		t.Errorf("state = %s, want %s", got, toolhost.StateReady)
	}

	tools, err := m.ListTools(context.Background(), "calc")
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}
	if len(tools) != 2 {
		t.Errorf("got %d tools, want 2", len(tools))
	}

	data, err := m.ReadResource(context.Background(), "calc", "calculator://help")
	if err != nil {
		t.Fatalf("ReadResource failed: %v", err)
	}
	if string(data) != "Calculator help" {
		t.Errorf("ReadResource = %q, want %q", data, "Calculator help")
	}
}

func TestManagerDuplicateSession(t *testing.T) {
	m := newTestManager()
	t.Cleanup(func() { _ = m.CloseAll() })

	_, first := newStubPeer(t)
	if err := m.ConnectTransport(context.Background(), "calc", first); err != nil {
		t.Fatalf("first ConnectTransport failed: %v", err)
	}

	secondPeer, second := newStubPeer(t)
	err := m.ConnectTransport(context.Background(), "calc", second)
	if !errors.Is(err, toolhost.ErrDuplicateSession) {
		t.Fatalf("second ConnectTransport = %v, want ErrDuplicateSession", err)
	}

	// The rejected attempt must not have touched the new peer at all.
	if n := secondPeer.requestCount("initialize"); n != 0 {
		t.Errorf("rejected connect sent %d initialize requests, want 0", n)
	}

	// The existing session keeps working.
	sess, err := m.Session("calc")
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if got := sess.State(); got != toolhost.StateReady {
		t.Errorf("existing session state = %s, want %s", got, toolhost.StateReady)
	}
	if _, err := m.ListTools(context.Background(), "calc"); err != nil {
		t.Errorf("existing session ListTools failed: %v", err)
	}
}

func TestManagerConnectFailureRetainsNothing(t *testing.T) {
	m := newTestManager()

	peer, transport := newStubPeer(t)
	peer.handle("initialize", func(toolhost.JSONRPCMessage) (json.RawMessage, *toolhost.JSONRPCError) {
		return nil, &toolhost.JSONRPCError{Code: -32600, Message: "no thanks"}
	})

	err := m.ConnectTransport(context.Background(), "calc", transport)
	if !errors.Is(err, toolhost.ErrHandshake) {
		t.Fatalf("ConnectTransport = %v, want ErrHandshake", err)
	}

	if got := m.ListConnected(); len(got) != 0 {
		t.Errorf("ListConnected = %v, want empty", got)
	}
	if _, err := m.Session("calc"); !errors.Is(err, toolhost.ErrUnknownSession) {
		t.Errorf("Session = %v, want ErrUnknownSession", err)
	}
}

func TestManagerDisconnect(t *testing.T) {
	m := newTestManager()

	peer, transport := newStubPeer(t)
	if err := m.ConnectTransport(context.Background(), "calc", transport); err != nil {
		t.Fatalf("ConnectTransport failed: %v", err)
	}

	if err := m.Disconnect("calc"); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if got := m.ListConnected(); len(got) != 0 {
		t.Errorf("ListConnected = %v, want empty", got)
	}
	if n := peer.requestCount("shutdown"); n != 1 {
		t.Errorf("peer saw %d shutdown requests, want 1", n)
	}

	// Disconnecting a name the manager does not hold is a no-op.
	if err := m.Disconnect("calc"); err != nil {
		t.Errorf("second Disconnect = %v, want nil", err)
	}
	if err := m.Disconnect("never-existed"); err != nil {
		t.Errorf("Disconnect of unknown name = %v, want nil", err)
	}
}

func TestManagerListConnectedSorted(t *testing.T) {
	m := newTestManager()
	t.Cleanup(func() { _ = m.CloseAll() })

	for _, name := range []string{"zeta", "alpha", "mu"} {
		_, transport := newStubPeer(t)
		if err := m.ConnectTransport(context.Background(), name, transport); err != nil {
			t.Fatalf("ConnectTransport(%s) failed: %v", name, err)
		}
	}

	got := m.ListConnected()
	want := []string{"alpha", "mu", "zeta"}
	if len(got) != len(want) {
		t.Fatalf("ListConnected = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ListConnected[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestManagerCloseAll(t *testing.T) {
	m := newTestManager()

	peers := make([]*stubPeer, 0, 3)
	for _, name := range []string{"one", "two", "three"} {
		peer, transport := newStubPeer(t)
		if err := m.ConnectTransport(context.Background(), name, transport); err != nil {
			t.Fatalf("ConnectTransport(%s) failed: %v", name, err)
		}
		peers = append(peers, peer)
	}

	if err := m.CloseAll(); err != nil {
		t.Fatalf("CloseAll failed: %v", err)
	}
	if got := m.ListConnected(); len(got) != 0 {
		t.Errorf("ListConnected = %v, want empty", got)
	}
	for i, peer := range peers {
		if n := peer.requestCount("shutdown"); n != 1 {
			t.Errorf("peer %d saw %d shutdown requests, want 1", i, n)
		}
	}
}

func TestManagerUnknownSessionOperations(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	if _, err := m.ListTools(ctx, "ghost"); !errors.Is(err, toolhost.ErrUnknownSession) {
		t.Errorf("ListTools = %v, want ErrUnknownSession", err)
	}
	if _, err := m.CallTool(ctx, "ghost", "add", nil); !errors.Is(err, toolhost.ErrUnknownSession) {
		t.Errorf("CallTool = %v, want ErrUnknownSession", err)
	}
	if _, err := m.ReadResource(ctx, "ghost", "calculator://help"); !errors.Is(err, toolhost.ErrUnknownSession) {
		t.Errorf("ReadResource = %v, want ErrUnknownSession", err)
	}
}

func TestManagerSessionOptionsApply(t *testing.T) {
	m := newTestManager(toolhost.WithSessionOptions(
		toolhost.WithRequestTimeout(50 * time.Millisecond),
	))
	t.Cleanup(func() { _ = m.CloseAll() })

	peer, transport := newStubPeer(t)
	peer.handle("tools/call", func(toolhost.JSONRPCMessage) (json.RawMessage, *toolhost.JSONRPCError) {
		return nil, nil
	})
	if err := m.ConnectTransport(context.Background(), "calc", transport); err != nil {
		t.Fatalf("ConnectTransport failed: %v", err)
	}

	start := time.Now()
	_, err := m.CallTool(context.Background(), "calc", "add", nil)
	if !errors.Is(err, toolhost.ErrRequestTimeout) {
		t.Fatalf("CallTool = %v, want ErrRequestTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %s, want well under 2s", elapsed)
	}
}
