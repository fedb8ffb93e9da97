// Package codec provides pluggable payload codecs for envelopes and
// application passport data. JSON is the protocol wire format; CBOR and
// Protobuf are available for application payloads that want them.
package codec

import "fmt"

// Codec marshals typed messages. Implementations must be deterministic and
// safe for cross-zone exchange.
type Codec interface {
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Registry maps content types and short names to codecs.
type Registry struct {
	byType map[string]Codec
	byName map[string]Codec
}

// NewRegistry constructs a registry preloaded with the JSON and Protobuf
// codecs. CBOR is added explicitly via Register("cbor", c) because its
// construction can fail.
func NewRegistry() *Registry {
	r := &Registry{byType: make(map[string]Codec), byName: make(map[string]Codec)}
	r.Register("json", JSON())
	r.Register("proto", Proto())
	return r
}

// Register adds a codec under a short name (as used in configuration) and
// its content type.
func (r *Registry) Register(name string, c Codec) {
	r.byType[c.ContentType()] = c
	r.byName[name] = c
}

// Get returns a codec by content type, or nil.
func (r *Registry) Get(contentType string) Codec { return r.byType[contentType] }

// ByName resolves a codec by its configuration name ("json", "cbor", ...).
func (r *Registry) ByName(name string) (Codec, error) {
	if c, ok := r.byName[name]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}
