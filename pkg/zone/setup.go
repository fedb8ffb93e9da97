package zone

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rhi-zone/interconnect/pkg/config"
	"github.com/rhi-zone/interconnect/pkg/protocol/codec"
	"github.com/rhi-zone/interconnect/pkg/session"
	"github.com/rhi-zone/interconnect/pkg/transfer"
	"github.com/rhi-zone/interconnect/pkg/transport"
	"github.com/rhi-zone/interconnect/pkg/transport/quic"
	"github.com/rhi-zone/interconnect/pkg/transport/tcp"
)

// Listen opens the configured inbound transport.
func Listen(ctx context.Context, c config.ListenConfig) (transport.Listener, error) {
	switch c.Kind {
	case "tcp":
		return tcp.New().Listen(ctx, c.Addr)
	case "quic":
		t, err := quic.New()
		if err != nil {
			return nil, err
		}
		return t.Listen(ctx, c.Addr)
	default:
		return nil, fmt.Errorf("unsupported listen.kind %q", c.Kind)
	}
}

// SessionOptions derives session options from configuration: codec choice,
// auth timeout, and the passport signer when the zone signs handoffs.
func SessionOptions(cfg *config.Config, log *zap.Logger) (session.Options, error) {
	reg := codec.NewRegistry()
	if cb, err := codec.CBOR(); err == nil {
		reg.Register("cbor", cb)
	}
	cdc, err := reg.ByName(cfg.Codec)
	if err != nil {
		return session.Options{}, err
	}

	opts := session.Options{
		AuthTimeout: time.Duration(cfg.AuthTimeoutMS) * time.Millisecond,
		Codec:       cdc,
		Logger:      log,
	}

	if cfg.Identity.Sign {
		key, err := transfer.LoadOrGenKey(cfg.Identity.PrivateKey, cfg.Identity.PrivateKeyFile)
		if err != nil {
			return session.Options{}, fmt.Errorf("load zone key: %w", err)
		}
		signer := transfer.NewSigner(key)
		opts.Sign = signer.Sign
	}
	return opts, nil
}
