package netlayer_test

import (
	"context"
	"testing"
	"time"

	"github.com/dantte-lp/gocaptp/internal/captp"
	"github.com/dantte-lp/gocaptp/internal/locator"
	"github.com/dantte-lp/gocaptp/internal/netlayer"
)

func TestTCPDriverBindAdvertisesPortHint(t *testing.T) {
	t.Parallel()

	driver := netlayer.NewTCPDriver()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ln, err := driver.Bind(ctx, "loopback.example", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	loc := ln.Locator()
	if loc.Designator != "loopback.example" || loc.Transport != "tcp" {
		t.Fatalf("locator = %+v, want designator loopback.example over tcp", loc)
	}
	if _, ok := loc.Hint("port"); !ok {
		t.Error("locator has no port hint")
	}
}

func TestTCPDriverRoundTripHandshake(t *testing.T) {
	t.Parallel()

	driver := netlayer.NewTCPDriver()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serverLoc := locator.NewNodeLocator("127.0.0.1", "tcp")
	serverBuilder, err := captp.NewBuilder(serverLoc)
	if err != nil {
		t.Fatalf("new server builder: %v", err)
	}
	serverMgr := captp.NewManager(nil)
	t.Cleanup(func() { _ = serverMgr.CloseAll("test teardown") })
	serverNL := netlayer.New(driver, serverBuilder, serverMgr, nil)
	if err := serverNL.Bind(ctx, "127.0.0.1", "127.0.0.1:0"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	t.Cleanup(func() { _ = serverNL.Close() })

	dialLoc := serverNL.Locators()[0]

	type result struct {
		session *captp.Session
		err     error
	}
	acceptCh := make(chan result, 1)
	go func() {
		session, err := serverNL.Accept(ctx)
		acceptCh <- result{session, err}
	}()

	clientLoc := locator.NewNodeLocator("127.0.0.1", "tcp")
	clientBuilder, err := captp.NewBuilder(clientLoc)
	if err != nil {
		t.Fatalf("new client builder: %v", err)
	}
	clientMgr := captp.NewManager(nil)
	t.Cleanup(func() { _ = clientMgr.CloseAll("test teardown") })
	clientNL := netlayer.New(netlayer.NewTCPDriver(), clientBuilder, clientMgr, nil)

	clientSession, err := clientNL.Connect(ctx, dialLoc)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = clientSession.Close() })

	select {
	case r := <-acceptCh:
		if r.err != nil {
			t.Fatalf("accept: %v", r.err)
		}
		t.Cleanup(func() { _ = r.session.Close() })
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for accept")
	}
}
