// Package session implements the per-connection lifecycle state machine:
// what a server may do with a session before, during, and after a passport
// handoff. One Conn exists per open duplex channel, owned exclusively by
// the goroutine driving it.
package session

// State is the authoritative record of a session's protocol phase.
type State uint8

const (
	// StateConnecting: transport open, no auth accepted yet. Only an auth
	// envelope is legal inbound.
	StateConnecting State = iota
	// StateSyncing: identity accepted (passport evaluated when present);
	// the manifest and first snapshot are being flushed. Intents arriving
	// now are buffered and replayed entering Live.
	StateSyncing
	// StateLive: normal operation.
	StateLive
	// StateGhost: authority handed off to the destination; the session is
	// read-only. Terminal for this connection, not for the user.
	StateGhost
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSyncing:
		return "syncing"
	case StateLive:
		return "live"
	case StateGhost:
		return "ghost"
	default:
		return "invalid"
	}
}
