package identity

import "sync"

// TrustLevel classifies how an identity scheme establishes trust.
type TrustLevel int

const (
	// TrustUnknown is reported for schemes never registered.
	TrustUnknown TrustLevel = iota
	// TrustConnection: the transport/connection itself is trusted (local).
	TrustConnection
	// TrustServer: a naming server vouches for the user (url).
	TrustServer
	// TrustKey: trust is established cryptographically (ed25519).
	TrustKey
)

func (t TrustLevel) String() string {
	switch t {
	case TrustConnection:
		return "connection"
	case TrustServer:
		return "server"
	case TrustKey:
		return "key"
	default:
		return "unknown"
	}
}

// The scheme space is open: applications register additional schemes at
// startup rather than the core enumerating them.
var (
	schemeMu sync.RWMutex
	schemes  = map[string]TrustLevel{
		"local":   TrustConnection,
		"url":     TrustServer,
		"ed25519": TrustKey,
	}
)

// RegisterScheme associates a scheme with a trust level. Later registrations
// replace earlier ones.
func RegisterScheme(scheme string, level TrustLevel) {
	schemeMu.Lock()
	defer schemeMu.Unlock()
	schemes[scheme] = level
}

// TrustOf reports the registered trust level for id's scheme,
// TrustUnknown for unregistered schemes.
func TrustOf(id Identity) TrustLevel {
	schemeMu.RLock()
	defer schemeMu.RUnlock()
	return schemes[id.Scheme()]
}
