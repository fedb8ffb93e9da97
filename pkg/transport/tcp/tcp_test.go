package tcp

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rhi-zone/interconnect/pkg/transport"
)

func TestDialListenExchange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := New()
	l, err := tr.Listen(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	cli, err := tr.Dial(ctx, l.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	srv, err := l.Accept(ctx)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}

	if err := cli.SendBytes([]byte("ping")); err != nil {
		t.Fatalf("send: %v", err)
	}
	b, err := srv.RecvBytes()
	if err != nil || string(b) != "ping" {
		t.Fatalf("recv: %q %v", b, err)
	}
	if err := srv.SendBytes([]byte("pong")); err != nil {
		t.Fatalf("send back: %v", err)
	}
	b, err = cli.RecvBytes()
	if err != nil || string(b) != "pong" {
		t.Fatalf("recv back: %q %v", b, err)
	}
}

// A burst of dials larger than the listener's internal buffer must not
// drop connections: every dialed conn has to come out of Accept usable.
func TestAcceptBurstKeepsAllConns(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tr := New()
	l, err := tr.Listen(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	const n = 20
	clients := make([]transport.Conn, 0, n)
	for i := 0; i < n; i++ {
		c, err := tr.Dial(ctx, l.Addr().String())
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		clients = append(clients, c)
		if err := c.SendBytes([]byte(fmt.Sprintf("hello-%d", i))); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		srv, err := l.Accept(ctx)
		if err != nil {
			t.Fatalf("accept %d: %v", i, err)
		}
		b, err := srv.RecvBytes()
		if err != nil {
			t.Fatalf("recv %d: %v", i, err)
		}
		seen[string(b)] = true
	}
	for i := 0; i < n; i++ {
		if !seen[fmt.Sprintf("hello-%d", i)] {
			t.Fatalf("conn %d was dropped before accept", i)
		}
	}
	for _, c := range clients {
		_ = c.Close()
	}
}

func TestAcceptAfterClose(t *testing.T) {
	ctx := context.Background()
	tr := New()
	l, err := tr.Listen(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := l.Accept(ctx); err == nil {
		t.Fatalf("expected error accepting on closed listener")
	}
}
