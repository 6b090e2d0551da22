package captp_test

import (
	"net"
	"testing"
	"time"

	"github.com/dantte-lp/gocaptp/internal/captp"
	"github.com/dantte-lp/gocaptp/internal/locator"
)

// pipeConn adapts one end of a net.Pipe to io.ReadWriteCloser, which is all
// a Builder or Session requires of its transport.
type pipeConn struct {
	net.Conn
}

func newPipePair() (pipeConn, pipeConn) {
	a, b := net.Pipe()
	return pipeConn{a}, pipeConn{b}
}

func TestHandshakeEstablishesSession(t *testing.T) {
	t.Parallel()

	clientConn, serverConn := newPipePair()

	clientLoc := locator.NewNodeLocator("client.example", "tcp")
	serverLoc := locator.NewNodeLocator("server.example", "tcp")

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

	clientRes := waitResult(t, clientCh)
	serverRes := waitResult(t, serverCh)

	if clientRes.err != nil {
		t.Fatalf("client handshake: %v", clientRes.err)
	}
	if serverRes.err != nil {
		t.Fatalf("server handshake: %v", serverRes.err)
	}

	if string(clientRes.session.RemoteVKey) != string(serverBuilder.PublicKey()) {
		t.Fatal("client did not record the server's public key")
	}
	if string(serverRes.session.RemoteVKey) != string(clientBuilder.PublicKey()) {
		t.Fatal("server did not record the client's public key")
	}

	_ = clientRes.session.Close()
	_ = serverRes.session.Close()
}

func TestHandshakeRejectsVersionMismatch(t *testing.T) {
	t.Parallel()

	clientConn, serverConn := newPipePair()

	loc := locator.NewNodeLocator("peer.example", "tcp")
	clientBuilder, err := captp.NewBuilder(loc)
	if err != nil {
		t.Fatalf("new builder: %v", err)
	}

	go func() {
		// Write a malformed start-session frame directly, bypassing
		// Builder, to simulate a peer advertising an incompatible version.
		bad := captp.OpStartSession{
			CaptpVersion:          "0.9",
			SessionPubkey:         captp.PublicKey{Bytes: make([]byte, 32)},
			AcceptableLocation:    loc,
			AcceptableLocationSig: captp.Signature{Bytes: make([]byte, 64)},
		}
		_, _ = serverConn.Write(captp.EncodeOperation(bad))
	}()

	_, err = clientBuilder.AndAccept(clientConn, nil)
	if err == nil {
		t.Fatal("expected a version mismatch error")
	}
}

func waitResult[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for handshake result")
		var zero T
		return zero
	}
}
