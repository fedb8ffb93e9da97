package mem

import (
	"context"
	"errors"
	"io"
	"testing"
)

func TestDialListenExchange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := New()
	l, err := tr.Listen(ctx, "zone-a")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	cli, err := tr.Dial(ctx, "zone-a")
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

func TestCloseYieldsEOF(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := New()
	l, _ := tr.Listen(ctx, "z")
	cli, _ := tr.Dial(ctx, "z")
	srv, _ := l.Accept(ctx)

	// frames sent before close must still be delivered
	_ = cli.SendBytes([]byte("last"))
	_ = cli.Close()

	b, err := srv.RecvBytes()
	if err != nil || string(b) != "last" {
		t.Fatalf("pre-close frame lost: %q %v", b, err)
	}
	if _, err := srv.RecvBytes(); !errors.Is(err, io.EOF) {
		t.Fatalf("want io.EOF after peer close, got %v", err)
	}
}

func TestDialUnknownListener(t *testing.T) {
	tr := New()
	if _, err := tr.Dial(context.Background(), "nope"); err == nil {
		t.Fatalf("expected error dialing unknown listener")
	}
}
