// Package transfer implements the passport handoff sub-protocol: the
// one-shot bundle of identity plus opaque application data that moves a
// user between zones, and the directive that carries it.
package transfer

import "github.com/rhi-zone/interconnect/pkg/identity"

// Passport is the handoff payload minted by the origin zone when a session
// requests transfer and consumed exactly once by the destination's import
// policy. Data is an application-serialized blob; the protocol layer never
// decodes it. Passports exist only in flight, never at rest.
type Passport struct {
	// Identity of the bearer.
	Identity identity.Identity `json:"identity"`
	// Data is the app-defined payload (inventory, reputation, profile...).
	Data []byte `json:"data"`
	// Signature is scheme-dependent and optional. When present it must be
	// verified against Identity's scheme before Data is trusted; the
	// verification algorithm is the destination's responsibility.
	Signature []byte `json:"signature,omitempty"`
}

// New creates an unsigned passport. Trust rests entirely on the identity's
// scheme and the destination transport's own authentication of the bearer.
func New(id identity.Identity, data []byte) Passport {
	return Passport{Identity: id, Data: data}
}

// Signed creates a passport carrying a signature over the data.
func Signed(id identity.Identity, data, signature []byte) Passport {
	return Passport{Identity: id, Data: data, Signature: signature}
}

// Transfer is a server-to-client directive: reconnect to Destination and
// present Passport. The destination format is application-defined (typically
// a connection URL) and is not validated here; checking that a destination
// is a known peer belongs to the application.
type Transfer struct {
	Destination string   `json:"destination"`
	Passport    Passport `json:"passport"`
}

// ImportPolicy evaluates an incoming passport and returns the application's
// admission decision. Evaluate must be deterministic and synchronous,
// derived from the passport alone with no I/O. A passport whose data does
// not decode into the expected application structure is a trust failure,
// not a protocol failure: implementations degrade to admitting the bearer
// as a brand-new identity instead of refusing the connection.
type ImportPolicy[R any] interface {
	Evaluate(p Passport) R
}
