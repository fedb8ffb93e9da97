// Package protocol defines the generic message envelope every
// application-specific intent and snapshot type rides inside, plus the
// server manifest. Envelopes are JSON objects with a "type" discriminator;
// readers ignore unknown fields for forward compatibility.
package protocol

import "github.com/rhi-zone/interconnect/pkg/identity"

// Manifest describes a server to newly authenticated sessions. It is built
// once at server start and static for the server's lifetime; construction
// never fails. Metadata is an open application-defined blob: readers must
// ignore keys they do not understand.
type Manifest struct {
	// Identity of the server itself (for verification).
	Identity identity.Identity `json:"identity"`
	// Name is the human-readable server name.
	Name string `json:"name"`
	// Substrate is an optional content/substrate fingerprint.
	Substrate string `json:"substrate,omitempty"`
	// Metadata holds app-defined keys (server type, version, counts...).
	Metadata map[string]any `json:"metadata,omitempty"`
}
