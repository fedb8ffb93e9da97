package session

import (
	"github.com/rhi-zone/interconnect/pkg/identity"
	"github.com/rhi-zone/interconnect/pkg/transfer"
)

// App is the application half of a session: snapshot assembly, intent
// application, and passport minting/admission. Implementations guard their
// shared state with a single read/write lock; every method may be called
// from many session goroutines.
type App[I, S any] interface {
	// Admit registers id, running the presented passport (nil on a fresh
	// connection) through the application's import policy. Passport data
	// that does not decode admits the bearer as a brand-new identity - a
	// trust failure, never a connection-level rejection.
	Admit(id identity.Identity, passport *transfer.Passport) (Admission, error)

	// Snapshot assembles the state currently visible to id.
	Snapshot(id identity.Identity) (S, error)

	// Apply applies one intent from id in arrival order. A *Reject return
	// is reported to the client as an error envelope; the session stays
	// live.
	Apply(id identity.Identity, intent I) error

	// Depart validates destination, mints the passport from id's current
	// state and releases exclusive resources held for the identity, so the
	// same identity can re-authenticate immediately if the transfer is
	// abandoned. A *Reject return (e.g. unknown destination) keeps the
	// session live.
	Depart(id identity.Identity, destination string) (transfer.Passport, error)

	// Leave releases id's resources on teardown without a transfer.
	Leave(id identity.Identity)
}

// Admission reports the outcome of evaluating an incoming passport.
type Admission struct {
	// Fresh is true when no passport was presented, or its data failed to
	// decode and the bearer starts over as a new identity.
	Fresh bool
	// Rejections lists policy-level refusals of specific passport contents,
	// delivered to the client as error envelopes with code import_rejected.
	Rejections []Rejection
}

// Rejection is one refused element of a passport (an item, a privilege).
type Rejection struct {
	Reason string
}
