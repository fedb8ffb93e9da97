// Package mem implements an in-process transport over paired frame
// channels. Used by tests and for wiring multiple zones into one process.
package mem

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/rhi-zone/interconnect/pkg/transport"
)

// Transport registers named in-process listeners.
type Transport struct {
	mu        sync.Mutex
	listeners map[string]*listener
}

func New() *Transport { return &Transport{listeners: make(map[string]*listener)} }

func (t *Transport) Kind() transport.Kind { return transport.KindMem }

func (t *Transport) Listen(ctx context.Context, name string) (transport.Listener, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.listeners[name]; ok {
		return nil, errors.New("mem: listener already exists")
	}
	l := &listener{name: name, newCh: make(chan *conn, 8), closeCh: make(chan struct{})}
	t.listeners[name] = l
	go func() {
		<-ctx.Done()
		_ = l.Close()
		t.mu.Lock()
		delete(t.listeners, name)
		t.mu.Unlock()
	}()
	return l, nil
}

func (t *Transport) Dial(ctx context.Context, name string) (transport.Conn, error) {
	t.mu.Lock()
	l := t.listeners[name]
	t.mu.Unlock()
	if l == nil {
		return nil, errors.New("mem: no such listener: " + name)
	}
	srv, cli := pair(name)
	select {
	case l.newCh <- srv:
	case <-l.closeCh:
		return nil, errors.New("mem: listener closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	go func() { <-ctx.Done(); _ = cli.Close() }()
	return cli, nil
}

type listener struct {
	name    string
	newCh   chan *conn
	closeCh chan struct{}
}

func (l *listener) Addr() net.Addr { return addr(l.name) }

func (l *listener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closeCh:
		return nil, errors.New("mem: listener closed")
	case s := <-l.newCh:
		return s, nil
	}
}

func (l *listener) Close() error {
	select {
	case <-l.closeCh:
	default:
		close(l.closeCh)
	}
	return nil
}

type addr string

func (a addr) Network() string { return "mem" }
func (a addr) String() string  { return string(a) }

// conn is one end of a paired frame channel. A closed peer yields io.EOF,
// matching the clean-closure contract.
type conn struct {
	name      string
	in        chan []byte
	out       chan []byte
	closed    chan struct{}
	peerClose chan struct{}
	once      sync.Once
}

func pair(name string) (*conn, *conn) {
	a2b := make(chan []byte, 64)
	b2a := make(chan []byte, 64)
	ca := &conn{name: name, in: b2a, out: a2b, closed: make(chan struct{}), peerClose: make(chan struct{})}
	cb := &conn{name: name, in: a2b, out: b2a, closed: ca.peerClose, peerClose: ca.closed}
	return ca, cb
}

func (c *conn) Kind() transport.Kind { return transport.KindMem }
func (c *conn) LocalAddr() net.Addr  { return addr(c.name) }
func (c *conn) RemoteAddr() net.Addr { return addr(c.name) }

func (c *conn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *conn) SendBytes(b []byte) error {
	frame := append([]byte(nil), b...)
	select {
	case c.out <- frame:
		return nil
	case <-c.closed:
		return errors.New("mem: conn closed")
	case <-c.peerClose:
		return io.ErrClosedPipe
	}
}

func (c *conn) RecvBytes() ([]byte, error) {
	select {
	case b := <-c.in:
		return b, nil
	case <-c.peerClose:
		// drain frames sent before the peer closed
		select {
		case b := <-c.in:
			return b, nil
		default:
			return nil, io.EOF
		}
	case <-c.closed:
		return nil, io.EOF
	}
}
