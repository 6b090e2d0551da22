package server_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dantte-lp/gocaptp/internal/captp"
	"github.com/dantte-lp/gocaptp/internal/locator"
	"github.com/dantte-lp/gocaptp/internal/server"
)

// establishedSession spins up one end of a handshaken CapTP session whose
// peer advertises designator/tcp, and registers it under mgr. The peer
// side's read loop runs until the test's cleanup cancels it, so frames the
// registered end writes (such as op:abort) are drained; these tests only
// exercise the admin API's view of the session.
func establishedSession(t *testing.T, mgr *captp.Manager, designator string) *captp.Session {
	t.Helper()

	clientConn, serverConn := net.Pipe()

	clientLoc := locator.NewNodeLocator(designator, "tcp")
	serverLoc := locator.NewNodeLocator("admin-test-server", "tcp")

	clientBuilder, err := captp.NewBuilder(clientLoc)
	if err != nil {
		t.Fatalf("new client builder: %v", err)
	}
	serverBuilder, err := captp.NewBuilder(serverLoc)
	if err != nil {
		t.Fatalf("new server builder: %v", err)
	}

	type result struct {
		session *captp.Session
		err     error
	}
	clientCh := make(chan result, 1)
	serverCh := make(chan result, 1)

	go func() {
		s, err := clientBuilder.AndConnect(clientConn, nil)
		clientCh <- result{s, err}
	}()
	go func() {
		s, err := serverBuilder.AndAccept(serverConn, nil)
		serverCh <- result{s, err}
	}()

	var clientRes, serverRes result
	select {
	case clientRes = <-clientCh:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for client handshake")
	}
	select {
	case serverRes = <-serverCh:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for server handshake")
	}
	if clientRes.err != nil {
		t.Fatalf("client handshake: %v", clientRes.err)
	}
	if serverRes.err != nil {
		t.Fatalf("server handshake: %v", serverRes.err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = clientRes.session.Run(ctx) }()

	mgr.Register(clientLoc, serverRes.session)
	return serverRes.session
}

func setupTestServer(t *testing.T) (*httptest.Server, *captp.Manager) {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	mgr := captp.NewManager(logger)
	t.Cleanup(func() { _ = mgr.CloseAll("test teardown") })

	_, handler := server.New(mgr, logger)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return srv, mgr
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv, _ := setupTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestListSessionsEmpty(t *testing.T) {
	t.Parallel()

	srv, _ := setupTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/sessions")
	if err != nil {
		t.Fatalf("GET /api/v1/sessions: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Sessions []json.RawMessage `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Sessions) != 0 {
		t.Errorf("sessions = %d, want 0", len(body.Sessions))
	}
}

func TestListAndGetSession(t *testing.T) {
	t.Parallel()

	srv, mgr := setupTestServer(t)
	establishedSession(t, mgr, "peer.example")

	resp, err := http.Get(srv.URL + "/api/v1/sessions")
	if err != nil {
		t.Fatalf("GET /api/v1/sessions: %v", err)
	}
	defer resp.Body.Close()

	var listBody struct {
		Sessions []struct {
			Designator string `json:"designator"`
			Transport  string `json:"transport"`
		} `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listBody); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(listBody.Sessions) != 1 || listBody.Sessions[0].Designator != "peer.example" {
		t.Fatalf("sessions = %+v, want one session for peer.example", listBody.Sessions)
	}

	getResp, err := http.Get(srv.URL + "/api/v1/sessions/peer.example")
	if err != nil {
		t.Fatalf("GET /api/v1/sessions/peer.example: %v", err)
	}
	defer getResp.Body.Close()

	if getResp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", getResp.StatusCode)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	t.Parallel()

	srv, _ := setupTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/sessions/ghost.example")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestAbortSession(t *testing.T) {
	t.Parallel()

	srv, mgr := setupTestServer(t)
	establishedSession(t, mgr, "abort-me.example")

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/sessions/abort-me.example/abort", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST abort: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	if _, err := mgr.Lookup("abort-me.example"); err == nil {
		t.Error("session still registered after abort")
	}
}

func TestAbortSessionNotFound(t *testing.T) {
	t.Parallel()

	srv, _ := setupTestServer(t)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/sessions/ghost.example/abort", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST abort: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
