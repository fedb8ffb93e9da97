package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rhi-zone/interconnect/pkg/identity"
	"github.com/rhi-zone/interconnect/pkg/protocol"
	"github.com/rhi-zone/interconnect/pkg/transfer"
	"github.com/rhi-zone/interconnect/pkg/transport/mem"
)

type fakeIntent struct {
	Op string `json:"op"`
}

type fakeSnap struct {
	Users []string `json:"users"`
}

// fakeApp records every call; behavior knobs cover the failure paths.
type fakeApp struct {
	mu         sync.Mutex
	admitted   []identity.Identity
	passports  []*transfer.Passport
	applied    []string
	departed   []identity.Identity
	left       []identity.Identity
	rejections []Rejection
	applyErr   error
	departErr  error
}

func (a *fakeApp) Admit(id identity.Identity, pp *transfer.Passport) (Admission, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.admitted = append(a.admitted, id)
	a.passports = append(a.passports, pp)
	return Admission{Fresh: pp == nil, Rejections: a.rejections}, nil
}

func (a *fakeApp) Snapshot(id identity.Identity) (fakeSnap, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return fakeSnap{Users: []string{id.Payload()}}, nil
}

func (a *fakeApp) Apply(id identity.Identity, in fakeIntent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.applyErr != nil {
		return a.applyErr
	}
	a.applied = append(a.applied, in.Op)
	return nil
}

func (a *fakeApp) Depart(id identity.Identity, destination string) (transfer.Passport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.departErr != nil {
		return transfer.Passport{}, a.departErr
	}
	a.departed = append(a.departed, id)
	return transfer.New(id, []byte(`{"from":"test"}`)), nil
}

func (a *fakeApp) Leave(id identity.Identity) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.left = append(a.left, id)
}

func (a *fakeApp) appliedOps() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.applied...)
}

func testManifest() protocol.Manifest {
	return protocol.Manifest{Identity: identity.Local("test-zone"), Name: "test-zone"}
}

func newTestConn(app *fakeApp, opts Options) *Conn[fakeIntent, fakeSnap] {
	return New[fakeIntent, fakeSnap](nil, testManifest(), app, opts)
}

func authMsg(name string) protocol.ClientMessage[fakeIntent] {
	return protocol.Auth[fakeIntent](identity.Local(name), nil)
}

func TestConnectingAcceptsOnlyAuth(t *testing.T) {
	for _, msg := range []protocol.ClientMessage[fakeIntent]{
		protocol.Intent(fakeIntent{Op: "x"}),
		protocol.Ack[fakeIntent](0),
		protocol.RequestTransfer[fakeIntent]("somewhere"),
	} {
		c := newTestConn(&fakeApp{}, Options{})
		_, err := c.advance(msg)
		if !errors.Is(err, ErrProtocolViolation) {
			t.Fatalf("%s while connecting: want protocol violation, got %v", msg.Type, err)
		}
		if c.State() != StateConnecting {
			t.Fatalf("session must never reach syncing, state=%v", c.State())
		}
	}
}

func TestAuthSendsManifestThenFirstSnapshot(t *testing.T) {
	app := &fakeApp{}
	c := newTestConn(app, Options{})
	out, err := c.advance(authMsg("alice"))
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	if c.State() != StateSyncing {
		t.Fatalf("want syncing, got %v", c.State())
	}
	if len(out) != 2 || out[0].Type != protocol.ServerManifest || out[1].Type != protocol.ServerSnapshot {
		t.Fatalf("want [manifest snapshot], got %+v", out)
	}
	if out[1].Seq != 0 {
		t.Fatalf("first snapshot must carry seq 0, got %d", out[1].Seq)
	}
	if len(app.admitted) != 1 || app.admitted[0] != identity.Local("alice") {
		t.Fatalf("admit not called with identity: %v", app.admitted)
	}
}

func TestSyncingBuffersIntentsAndReplaysInOrder(t *testing.T) {
	app := &fakeApp{}
	c := newTestConn(app, Options{})
	if _, err := c.advance(authMsg("alice")); err != nil {
		t.Fatalf("auth: %v", err)
	}
	for _, op := range []string{"first", "second"} {
		out, err := c.advance(protocol.Intent(fakeIntent{Op: op}))
		if err != nil || out != nil {
			t.Fatalf("buffered intent should produce nothing, got %v %v", out, err)
		}
	}
	if got := app.appliedOps(); len(got) != 0 {
		t.Fatalf("no intent may be applied while syncing, got %v", got)
	}
	if _, err := c.enterLive(); err != nil {
		t.Fatalf("enterLive: %v", err)
	}
	if got := app.appliedOps(); len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("replay must preserve arrival order exactly once, got %v", got)
	}
	if c.State() != StateLive {
		t.Fatalf("want live, got %v", c.State())
	}
}

func TestIntentBufferOverflowIsFatal(t *testing.T) {
	c := newTestConn(&fakeApp{}, Options{IntentBuffer: 2})
	if _, err := c.advance(authMsg("alice")); err != nil {
		t.Fatalf("auth: %v", err)
	}
	var err error
	for i := 0; i < 3; i++ {
		_, err = c.advance(protocol.Intent(fakeIntent{Op: "op"}))
	}
	if !errors.Is(err, ErrIntentOverflow) {
		t.Fatalf("want ErrIntentOverflow, got %v", err)
	}
}

func TestIntentEnvelopeWithoutBodyIsFatal(t *testing.T) {
	// A bare {"type":"intent"} frame decodes with a nil intent body; it
	// must be rejected as a violation, never dereferenced.
	var msg protocol.ClientMessage[fakeIntent]
	if err := json.Unmarshal([]byte(`{"type":"intent"}`), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Intent != nil {
		t.Fatalf("intent body should be nil, got %+v", msg.Intent)
	}

	app := &fakeApp{}
	c := newTestConn(app, Options{})
	if _, err := c.advance(authMsg("alice")); err != nil {
		t.Fatalf("auth: %v", err)
	}
	if _, err := c.advance(msg); !errors.Is(err, ErrEmptyIntent) {
		t.Fatalf("empty intent while syncing: want ErrEmptyIntent, got %v", err)
	}

	c = newTestConn(app, Options{})
	if _, err := c.advance(authMsg("bob")); err != nil {
		t.Fatalf("auth: %v", err)
	}
	if _, err := c.enterLive(); err != nil {
		t.Fatalf("enterLive: %v", err)
	}
	if _, err := c.advance(msg); !errors.Is(err, ErrEmptyIntent) {
		t.Fatalf("empty intent while live: want ErrEmptyIntent, got %v", err)
	}
	if got := app.appliedOps(); len(got) != 0 {
		t.Fatalf("no intent may be applied, got %v", got)
	}
}

func TestRequestTransferEmitsOneTransferAndGhosts(t *testing.T) {
	app := &fakeApp{}
	c := newTestConn(app, Options{})
	_, _ = c.advance(authMsg("alice"))
	_, _ = c.enterLive()

	out, err := c.advance(protocol.RequestTransfer[fakeIntent]("mem://cave"))
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if len(out) != 1 || out[0].Type != protocol.ServerTransfer {
		t.Fatalf("want exactly one transfer envelope, got %+v", out)
	}
	if out[0].Transfer.Passport.Identity != identity.Local("alice") {
		t.Fatalf("passport identity must equal the session identity")
	}
	if out[0].Transfer.Destination != "mem://cave" {
		t.Fatalf("destination mismatch: %q", out[0].Transfer.Destination)
	}
	if c.State() != StateGhost {
		t.Fatalf("want ghost, got %v", c.State())
	}

	// ghost sessions are read-only: further intents are inert
	before := len(app.appliedOps())
	out, err = c.advance(protocol.Intent(fakeIntent{Op: "late"}))
	if err != nil || out != nil {
		t.Fatalf("ghost intent should be silently ignored, got %v %v", out, err)
	}
	if len(app.appliedOps()) != before {
		t.Fatalf("intent mutated state after ghost")
	}
}

func TestDepartRejectKeepsSessionLive(t *testing.T) {
	app := &fakeApp{departErr: &Reject{Code: protocol.CodeUnknownDestination, Message: "unknown destination"}}
	c := newTestConn(app, Options{})
	_, _ = c.advance(authMsg("alice"))
	_, _ = c.enterLive()

	out, err := c.advance(protocol.RequestTransfer[fakeIntent]("nowhere"))
	if err != nil {
		t.Fatalf("reject must not be fatal: %v", err)
	}
	if len(out) != 1 || out[0].Type != protocol.ServerError || out[0].Code != protocol.CodeUnknownDestination {
		t.Fatalf("want unknown_destination error envelope, got %+v", out)
	}
	if c.State() != StateLive {
		t.Fatalf("session must stay live, got %v", c.State())
	}
}

func TestUndecodablePassportAdmitsFresh(t *testing.T) {
	app := &fakeApp{}
	c := newTestConn(app, Options{})
	msg := protocol.Auth[fakeIntent](identity.Local("alice"), []byte("not a passport"))
	if _, err := c.advance(msg); err != nil {
		t.Fatalf("auth with broken passport must not fail: %v", err)
	}
	if len(app.passports) != 1 || app.passports[0] != nil {
		t.Fatalf("app must see a fresh admission, got %v", app.passports)
	}
}

func TestImportRejectionsReportedAsErrors(t *testing.T) {
	app := &fakeApp{rejections: []Rejection{{Reason: "weapons not allowed in this zone"}}}
	c := newTestConn(app, Options{})
	pp, _ := json.Marshal(transfer.New(identity.Local("alice"), []byte("{}")))
	out, err := c.advance(protocol.Auth[fakeIntent](identity.Local("alice"), pp))
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	last := out[len(out)-1]
	if last.Type != protocol.ServerError || last.Code != protocol.CodeImportRejected {
		t.Fatalf("want trailing import_rejected envelope, got %+v", last)
	}
}

// end-to-end over the in-process transport

func dialClient(t *testing.T, tr *mem.Transport, name string) *clientConn {
	t.Helper()
	c, err := tr.Dial(context.Background(), name)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return &clientConn{t: t, c: c}
}

type clientConn struct {
	t *testing.T
	c interface {
		SendBytes([]byte) error
		RecvBytes() ([]byte, error)
		Close() error
	}
}

func (cc *clientConn) send(m protocol.ClientMessage[fakeIntent]) {
	cc.t.Helper()
	b, err := json.Marshal(m)
	if err != nil {
		cc.t.Fatalf("marshal: %v", err)
	}
	if err := cc.c.SendBytes(b); err != nil {
		cc.t.Fatalf("send: %v", err)
	}
}

func (cc *clientConn) recv() protocol.ServerMessage[fakeSnap] {
	cc.t.Helper()
	b, err := cc.c.RecvBytes()
	if err != nil {
		cc.t.Fatalf("recv: %v", err)
	}
	var m protocol.ServerMessage[fakeSnap]
	if err := json.Unmarshal(b, &m); err != nil {
		cc.t.Fatalf("unmarshal: %v", err)
	}
	return m
}

func TestRunOverMemTransport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := mem.New()
	l, err := tr.Listen(ctx, "zone")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	app := &fakeApp{}
	done := make(chan error, 1)
	go func() {
		sc, err := l.Accept(ctx)
		if err != nil {
			done <- err
			return
		}
		done <- New[fakeIntent, fakeSnap](sc, testManifest(), app, Options{}).Run(ctx)
	}()

	cli := dialClient(t, tr, "zone")
	cli.send(protocol.Auth[fakeIntent](identity.Local("alice"), nil))
	cli.send(protocol.Intent(fakeIntent{Op: "one"}))
	cli.send(protocol.Intent(fakeIntent{Op: "two"}))

	if m := cli.recv(); m.Type != protocol.ServerManifest || m.Manifest.Name != "test-zone" {
		t.Fatalf("want manifest first, got %+v", m)
	}
	if m := cli.recv(); m.Type != protocol.ServerSnapshot || m.Seq != 0 {
		t.Fatalf("want snapshot seq 0, got %+v", m)
	}
	cli.send(protocol.Ack[fakeIntent](0))

	// wait for both intents to land, in order, exactly once
	deadline := time.After(2 * time.Second)
	for {
		if got := app.appliedOps(); len(got) == 2 {
			if got[0] != "one" || got[1] != "two" {
				t.Fatalf("intent order violated: %v", got)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("intents never applied: %v", app.appliedOps())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cli.send(protocol.RequestTransfer[fakeIntent]("mem://elsewhere"))
	m := cli.recv()
	if m.Type != protocol.ServerTransfer {
		t.Fatalf("want transfer envelope, got %+v", m)
	}
	if m.Transfer.Passport.Identity != identity.Local("alice") {
		t.Fatalf("passport identity mismatch")
	}

	_ = cli.c.Close()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(app.departed) != 1 {
		t.Fatalf("depart not recorded")
	}
	if len(app.left) != 0 {
		t.Fatalf("leave must not fire after a transfer, got %v", app.left)
	}
}

func TestRunAuthTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := mem.New()
	l, _ := tr.Listen(ctx, "zone")
	done := make(chan error, 1)
	go func() {
		sc, err := l.Accept(ctx)
		if err != nil {
			done <- err
			return
		}
		c := New[fakeIntent, fakeSnap](sc, testManifest(), &fakeApp{}, Options{AuthTimeout: 30 * time.Millisecond})
		done <- c.Run(ctx)
	}()

	cli := dialClient(t, tr, "zone")
	// never authenticate
	if err := <-done; !errors.Is(err, ErrAuthTimeout) {
		t.Fatalf("want ErrAuthTimeout, got %v", err)
	}
	if m := cli.recv(); m.Type != protocol.ServerError || m.Code != protocol.CodeProtocolViolation {
		t.Fatalf("want final protocol_violation error envelope, got %+v", m)
	}
}

func TestRunNonAuthFirstIsFatal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := mem.New()
	l, _ := tr.Listen(ctx, "zone")
	done := make(chan error, 1)
	go func() {
		sc, err := l.Accept(ctx)
		if err != nil {
			done <- err
			return
		}
		c := New[fakeIntent, fakeSnap](sc, testManifest(), &fakeApp{}, Options{})
		done <- c.Run(ctx)
	}()

	cli := dialClient(t, tr, "zone")
	cli.send(protocol.Intent(fakeIntent{Op: "early"}))
	if err := <-done; !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("want protocol violation, got %v", err)
	}
}
