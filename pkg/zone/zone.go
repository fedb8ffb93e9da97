// Package zone is the server runtime: it accepts connections, drives one
// session goroutine per connection against a shared application, and fans
// snapshot pushes out to live sessions.
package zone

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rhi-zone/interconnect/pkg/protocol"
	"github.com/rhi-zone/interconnect/pkg/session"
	"github.com/rhi-zone/interconnect/pkg/transport"
)

// Zone hosts one application behind a listener.
type Zone[I, S any] struct {
	manifest protocol.Manifest
	app      session.App[I, S]
	opts     session.Options
	log      *zap.Logger

	mu    sync.Mutex
	conns map[*session.Conn[I, S]]struct{}
}

// New builds a zone serving app with the given manifest.
func New[I, S any](manifest protocol.Manifest, app session.App[I, S], opts session.Options) *Zone[I, S] {
	log := opts.Logger
	if log == nil {
		log = zap.L()
	}
	return &Zone[I, S]{
		manifest: manifest,
		app:      app,
		opts:     opts,
		log:      log,
		conns:    make(map[*session.Conn[I, S]]struct{}),
	}
}

// Serve accepts connections until ctx is done or the listener fails. Each
// connection runs in its own goroutine; a session error never affects
// another session.
func (z *Zone[I, S]) Serve(ctx context.Context, l transport.Listener) error {
	z.log.Info("zone serving", zap.String("zone", z.manifest.Name), zap.Stringer("addr", l.Addr()))
	for {
		tc, err := l.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		c := session.New[I, S](tc, z.manifest, z.app, z.opts)
		z.track(c)
		go func() {
			defer z.untrack(c)
			if err := c.Run(ctx); err != nil && ctx.Err() == nil {
				z.log.Warn("session ended", zap.Error(err))
			}
		}()
	}
}

// Broadcast requests a snapshot push on every tracked session. Requests
// coalesce per session; slow consumers skip snapshots rather than queueing.
func (z *Zone[I, S]) Broadcast() {
	z.mu.Lock()
	defer z.mu.Unlock()
	for c := range z.conns {
		c.PushSnapshot()
	}
}

// Tick runs step then Broadcast at the given interval until ctx is done.
// Used by tick-based applications (the game world); event-driven apps call
// Broadcast directly after each mutation.
func (z *Zone[I, S]) Tick(ctx context.Context, every time.Duration, step func()) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if step != nil {
				step()
			}
			z.Broadcast()
		}
	}
}

func (z *Zone[I, S]) track(c *session.Conn[I, S]) {
	z.mu.Lock()
	z.conns[c] = struct{}{}
	z.mu.Unlock()
}

func (z *Zone[I, S]) untrack(c *session.Conn[I, S]) {
	z.mu.Lock()
	delete(z.conns, c)
	z.mu.Unlock()
}
