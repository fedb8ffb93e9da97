package session

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/rhi-zone/interconnect/pkg/identity"
	"github.com/rhi-zone/interconnect/pkg/protocol"
	"github.com/rhi-zone/interconnect/pkg/protocol/codec"
	"github.com/rhi-zone/interconnect/pkg/transfer"
	"github.com/rhi-zone/interconnect/pkg/transport"
)

// Options tunes a session.
type Options struct {
	// AuthTimeout bounds the wait for auth while Connecting. Default 10s.
	AuthTimeout time.Duration
	// IntentBuffer bounds intents buffered while Syncing. Default 32.
	IntentBuffer int
	// PushInGhost allows outbound snapshot pushes to continue after the
	// session turns Ghost. Off by default: once authority is handed off,
	// pushes stop along with intent application.
	PushInGhost bool
	// Codec encodes envelopes. Default JSON, the protocol wire format.
	Codec codec.Codec
	// Sign, when set, signs each minted passport before the transfer
	// envelope is sent.
	Sign func(*transfer.Passport) error
	// Logger defaults to zap.L().
	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.AuthTimeout <= 0 {
		o.AuthTimeout = 10 * time.Second
	}
	if o.IntentBuffer <= 0 {
		o.IntentBuffer = 32
	}
	if o.Codec == nil {
		o.Codec = codec.JSON()
	}
	if o.Logger == nil {
		o.Logger = zap.L()
	}
	return o
}

// Conn drives one session over a duplex connection. Not safe for concurrent
// use except PushSnapshot, which may be called from any goroutine.
type Conn[I, S any] struct {
	tc       transport.Conn
	app      App[I, S]
	manifest protocol.Manifest
	opts     Options
	log      *zap.Logger

	state   State
	id      identity.Identity
	seq     uint64 // last snapshot seq sent
	lastAck uint64 // last snapshot seq the client acknowledged
	pending []I    // intents buffered while syncing
	notify  chan struct{}
}

// New builds a session over tc. The manifest is sent to the client on auth.
func New[I, S any](tc transport.Conn, manifest protocol.Manifest, app App[I, S], opts Options) *Conn[I, S] {
	o := opts.withDefaults()
	return &Conn[I, S]{
		tc:       tc,
		app:      app,
		manifest: manifest,
		opts:     o,
		log:      o.Logger,
		state:    StateConnecting,
		notify:   make(chan struct{}, 1),
	}
}

// State returns the current lifecycle state.
func (c *Conn[I, S]) State() State { return c.state }

// Identity returns the authenticated identity (zero before auth).
func (c *Conn[I, S]) Identity() identity.Identity { return c.id }

// LastAck returns the last snapshot seq the client acknowledged; flow
// control built on acks is an application concern.
func (c *Conn[I, S]) LastAck() uint64 { return c.lastAck }

// PushSnapshot requests an asynchronous snapshot push. Requests coalesce:
// a slow consumer may skip snapshots, but seq never decreases.
func (c *Conn[I, S]) PushSnapshot() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Run drives the session until teardown: transport close or error, context
// cancellation, or a fatal protocol error. Exclusive application resources
// are released no later than return.
func (c *Conn[I, S]) Run(ctx context.Context) error {
	defer c.teardown()

	frames := make(chan []byte, 8)
	rerr := make(chan error, 1)
	go func() {
		for {
			b, err := c.tc.RecvBytes()
			if err != nil {
				rerr <- err
				return
			}
			select {
			case frames <- b:
			case <-ctx.Done():
				return
			}
		}
	}()

	authTimer := time.NewTimer(c.opts.AuthTimeout)
	defer authTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-rerr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err

		case <-authTimer.C:
			if c.state == StateConnecting {
				c.sendError(protocol.CodeProtocolViolation, ErrAuthTimeout.Error())
				return ErrAuthTimeout
			}

		case <-c.notify:
			if c.state == StateLive || (c.state == StateGhost && c.opts.PushInGhost) {
				if err := c.pushSnapshot(); err != nil {
					return err
				}
			}

		case b := <-frames:
			var msg protocol.ClientMessage[I]
			if err := c.opts.Codec.Unmarshal(b, &msg); err != nil {
				if c.state == StateConnecting {
					// a malformed auth is fatal for the session
					c.sendError(protocol.CodeMalformedIdentity, err.Error())
					return fatal(protocol.CodeMalformedIdentity, err)
				}
				// recoverable: reject the single message only
				c.log.Warn("undecodable envelope", zap.Error(err))
				continue
			}
			if err := c.handle(msg, frames); err != nil {
				var f *Fatal
				if errors.As(err, &f) {
					c.sendError(f.Code, f.Error())
					return f
				}
				return err
			}
		}
	}
}

// handle applies one inbound message, sending whatever the transition
// produced. During auth it also drains intents that raced ahead of the
// first snapshot flush so they replay, in order, once Live.
func (c *Conn[I, S]) handle(msg protocol.ClientMessage[I], frames chan []byte) error {
	authing := c.state == StateConnecting && msg.Type == protocol.ClientAuth

	out, err := c.advance(msg)
	if err != nil {
		return err
	}
	if !authing {
		return c.sendAll(out)
	}

	// manifest goes out first
	if err := c.sendAll(out[:1]); err != nil {
		return err
	}
	// buffer any intents already queued inbound before the snapshot departs
drain:
	for {
		select {
		case b := <-frames:
			var m protocol.ClientMessage[I]
			if err := c.opts.Codec.Unmarshal(b, &m); err != nil {
				c.log.Warn("undecodable envelope while syncing", zap.Error(err))
				continue
			}
			if _, err := c.advance(m); err != nil {
				return err
			}
		default:
			break drain
		}
	}
	// first snapshot, then import rejections
	if err := c.sendAll(out[1:]); err != nil {
		return err
	}
	replayed, err := c.enterLive()
	if err != nil {
		return err
	}
	return c.sendAll(replayed)
}

// advance applies one message to the state machine and returns the
// envelopes to send. Fatal errors carry the wire code to flush.
func (c *Conn[I, S]) advance(msg protocol.ClientMessage[I]) ([]protocol.ServerMessage[S], error) {
	switch c.state {
	case StateConnecting:
		if msg.Type != protocol.ClientAuth {
			return nil, fatal(protocol.CodeProtocolViolation,
				errors.New("only auth is legal while connecting: "+string(msg.Type)))
		}
		return c.auth(msg)

	case StateSyncing:
		switch msg.Type {
		case protocol.ClientIntent:
			if msg.Intent == nil {
				return nil, fatal(protocol.CodeProtocolViolation, ErrEmptyIntent)
			}
			if len(c.pending) >= c.opts.IntentBuffer {
				return nil, fatal(protocol.CodeProtocolViolation, ErrIntentOverflow)
			}
			c.pending = append(c.pending, *msg.Intent)
			return nil, nil
		case protocol.ClientAck:
			c.ack(msg.Seq)
			return nil, nil
		default:
			return nil, fatal(protocol.CodeProtocolViolation,
				errors.New("illegal message while syncing: "+string(msg.Type)))
		}

	case StateLive:
		switch msg.Type {
		case protocol.ClientIntent:
			if msg.Intent == nil {
				return nil, fatal(protocol.CodeProtocolViolation, ErrEmptyIntent)
			}
			return c.apply(*msg.Intent), nil
		case protocol.ClientAck:
			c.ack(msg.Seq)
			return nil, nil
		case protocol.ClientRequestTransfer:
			return c.depart(msg.Destination)
		default:
			return nil, fatal(protocol.CodeProtocolViolation,
				errors.New("illegal message while live: "+string(msg.Type)))
		}

	case StateGhost:
		// read-only: intents are inert, a final ack is still recorded
		if msg.Type == protocol.ClientAck {
			c.ack(msg.Seq)
		} else {
			c.log.Debug("ignoring message in ghost state", zap.String("type", string(msg.Type)))
		}
		return nil, nil
	}
	return nil, fatal(protocol.CodeProtocolViolation, errors.New("invalid session state"))
}

func (c *Conn[I, S]) auth(msg protocol.ClientMessage[I]) ([]protocol.ServerMessage[S], error) {
	if msg.Identity.IsZero() {
		return nil, fatal(protocol.CodeMalformedIdentity, errors.New("auth without identity"))
	}
	c.id = msg.Identity

	var pp *transfer.Passport
	if len(msg.Passport) > 0 {
		var p transfer.Passport
		if err := c.opts.Codec.Unmarshal(msg.Passport, &p); err != nil {
			// trust failure, not protocol failure: the bearer starts fresh
			c.log.Info("undecodable passport, admitting as new identity",
				zap.Stringer("identity", c.id), zap.Error(err))
		} else {
			pp = &p
		}
	}

	adm, err := c.app.Admit(c.id, pp)
	if err != nil {
		return nil, fatal(protocol.CodeProtocolViolation, err)
	}
	c.state = StateSyncing

	snap, err := c.app.Snapshot(c.id)
	if err != nil {
		return nil, fatal(protocol.CodeProtocolViolation, err)
	}
	out := []protocol.ServerMessage[S]{
		protocol.ManifestMsg[S](c.manifest),
		protocol.Snapshot(0, snap),
	}
	for _, r := range adm.Rejections {
		out = append(out, protocol.ErrorMsg[S](protocol.CodeImportRejected, r.Reason))
	}
	c.log.Info("session authenticated",
		zap.Stringer("identity", c.id),
		zap.Bool("fresh", adm.Fresh),
		zap.Int("rejections", len(adm.Rejections)))
	return out, nil
}

// enterLive replays intents buffered while syncing, in arrival order.
func (c *Conn[I, S]) enterLive() ([]protocol.ServerMessage[S], error) {
	c.state = StateLive
	var out []protocol.ServerMessage[S]
	for _, in := range c.pending {
		out = append(out, c.apply(in)...)
	}
	c.pending = nil
	return out, nil
}

func (c *Conn[I, S]) apply(in I) []protocol.ServerMessage[S] {
	err := c.app.Apply(c.id, in)
	if err == nil {
		return nil
	}
	var rej *Reject
	if errors.As(err, &rej) {
		return []protocol.ServerMessage[S]{protocol.ErrorMsg[S](rej.Code, rej.Message)}
	}
	return []protocol.ServerMessage[S]{protocol.ErrorMsg[S](protocol.CodeIntentRejected, err.Error())}
}

func (c *Conn[I, S]) depart(destination string) ([]protocol.ServerMessage[S], error) {
	pp, err := c.app.Depart(c.id, destination)
	if err != nil {
		var rej *Reject
		if errors.As(err, &rej) {
			return []protocol.ServerMessage[S]{protocol.ErrorMsg[S](rej.Code, rej.Message)}, nil
		}
		return nil, fatal(protocol.CodeProtocolViolation, err)
	}
	if c.opts.Sign != nil {
		if err := c.opts.Sign(&pp); err != nil {
			return nil, fatal(protocol.CodeProtocolViolation, err)
		}
	}
	c.state = StateGhost
	c.log.Info("session transferring",
		zap.Stringer("identity", c.id), zap.String("destination", destination))
	return []protocol.ServerMessage[S]{
		protocol.TransferMsg[S](transfer.Transfer{Destination: destination, Passport: pp}),
	}, nil
}

func (c *Conn[I, S]) ack(seq uint64) {
	if seq > c.lastAck {
		c.lastAck = seq
	}
}

func (c *Conn[I, S]) pushSnapshot() error {
	snap, err := c.app.Snapshot(c.id)
	if err != nil {
		c.log.Warn("snapshot assembly failed", zap.Error(err))
		return nil
	}
	c.seq++
	return c.send(protocol.Snapshot(c.seq, snap))
}

func (c *Conn[I, S]) send(m protocol.ServerMessage[S]) error {
	b, err := c.opts.Codec.Marshal(m)
	if err != nil {
		return err
	}
	return c.tc.SendBytes(b)
}

func (c *Conn[I, S]) sendAll(msgs []protocol.ServerMessage[S]) error {
	for _, m := range msgs {
		if err := c.send(m); err != nil {
			return err
		}
	}
	return nil
}

// sendError flushes a final error envelope, best effort.
func (c *Conn[I, S]) sendError(code, message string) {
	_ = c.send(protocol.ErrorMsg[S](code, message))
}

// teardown releases resources. After a transfer the application already
// released them in Depart; a session that authenticated but never departed
// leaves normally.
func (c *Conn[I, S]) teardown() {
	if (c.state == StateSyncing || c.state == StateLive) && !c.id.IsZero() {
		c.app.Leave(c.id)
	}
	_ = c.tc.Close()
}
