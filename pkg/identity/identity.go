// Package identity implements the algorithm-agnostic identity scheme.
//
// Identity format: `scheme:payload`
//
// Recognized schemes:
//   - local:name           - trust the connection itself (dev/LAN)
//   - url:user@server      - the named server vouches for the user
//   - ed25519:fingerprint  - cryptographic, user holds the key
//
// The scheme space is open: unknown schemes parse successfully and are
// opaque to the protocol layer. Trust interpretation belongs to the
// application (see TrustOf).
package identity

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingSeparator reports an identity string without a ':' separator.
	ErrMissingSeparator = errors.New("identity must contain ':' separator")
	// ErrEmptyScheme reports an identity string whose scheme part is empty.
	ErrEmptyScheme = errors.New("identity scheme cannot be empty")
)

// Identity is an immutable scheme-tagged user identifier.
// The zero value is invalid; construct via New, Local, URL, Ed25519 or Parse.
// Identities compare structurally and are usable as map keys.
type Identity struct {
	scheme  string
	payload string
}

// New builds an identity from scheme and payload.
func New(scheme, payload string) Identity {
	return Identity{scheme: scheme, payload: payload}
}

// Local builds a trust-the-connection identity.
func Local(name string) Identity { return New("local", name) }

// URL builds a server-vouched identity from a user@server string.
func URL(userAtServer string) Identity { return New("url", userAtServer) }

// Ed25519 builds a cryptographic identity from a key fingerprint.
func Ed25519(fingerprint string) Identity { return New("ed25519", fingerprint) }

// Parse parses the canonical `scheme:payload` form. The first ':' is the
// separator; the payload may itself contain ':'. No normalization is applied.
func Parse(s string) (Identity, error) {
	scheme, payload, ok := strings.Cut(s, ":")
	if !ok {
		return Identity{}, fmt.Errorf("%w, got: %q", ErrMissingSeparator, s)
	}
	if scheme == "" {
		return Identity{}, ErrEmptyScheme
	}
	return Identity{scheme: scheme, payload: payload}, nil
}

// Scheme returns the scheme part (e.g. "local", "url", "ed25519").
func (id Identity) Scheme() string { return id.scheme }

// Payload returns the payload; its interpretation depends on the scheme.
func (id Identity) Payload() string { return id.payload }

// IsLocal reports whether this is a local (unverified) identity. Consumers
// use it to decide whether extra verification is required before granting
// privileged actions.
func (id Identity) IsLocal() bool { return id.scheme == "local" }

// IsZero reports whether the identity is the invalid zero value.
func (id Identity) IsZero() bool { return id.scheme == "" && id.payload == "" }

// String returns the canonical `scheme:payload` form.
// Parse(id.String()) == id for every valid identity.
func (id Identity) String() string { return id.scheme + ":" + id.payload }

// MarshalText encodes the identity as its canonical string form, so JSON
// and other text codecs carry `"scheme:payload"` rather than a nested object.
func (id Identity) MarshalText() ([]byte, error) {
	if id.scheme == "" {
		return nil, ErrEmptyScheme
	}
	return []byte(id.String()), nil
}

// UnmarshalText parses the canonical string form.
func (id *Identity) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// MarshalBinary mirrors MarshalText so binary codecs (CBOR) carry the same
// canonical form.
func (id Identity) MarshalBinary() ([]byte, error) { return id.MarshalText() }

// UnmarshalBinary parses the canonical form from a binary codec.
func (id *Identity) UnmarshalBinary(b []byte) error { return id.UnmarshalText(b) }
