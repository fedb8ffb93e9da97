// Package transport defines the duplex, message-oriented channel the
// protocol rides on. A Conn delivers whole serialized envelopes in order
// and signals closure (io.EOF) distinctly from transport errors.
package transport

import (
	"context"
	"net"
)

// Kind identifies the link type.
type Kind int

const (
	KindUnknown Kind = iota
	KindTCP
	KindQUIC
	KindMem
)

func (k Kind) String() string {
	switch k {
	case KindTCP:
		return "tcp"
	case KindQUIC:
		return "quic"
	case KindMem:
		return "mem"
	default:
		return "unknown"
	}
}

// Conn is a single duplex connection. Exactly one reader and one writer
// goroutine are expected. RecvBytes returns io.EOF on clean closure by the
// peer; any other error is a transport failure.
type Conn interface {
	// SendBytes sends one whole message frame.
	SendBytes([]byte) error
	// RecvBytes blocks for the next whole message frame.
	RecvBytes() ([]byte, error)
	Kind() Kind
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
	Close() error
}

// Listener accepts inbound connections.
type Listener interface {
	// Accept blocks until an inbound connection arrives or ctx is done.
	Accept(ctx context.Context) (Conn, error)
	Addr() net.Addr
	Close() error
}

// Transport provides dialing and listening for one link kind.
type Transport interface {
	Kind() Kind
	Listen(ctx context.Context, address string) (Listener, error)
	Dial(ctx context.Context, address string) (Conn, error)
}
