package protocol

import cbor "github.com/fxamacker/cbor/v2"

// CBOR marshaling mirrors the JSON tagged-union shape: envelopes encode as
// a map keyed by the wire field names, pruned to the active variant, so the
// two codecs stay interchangeable frame for frame. The wire structs reuse
// their json tags (fxamacker/cbor falls back to them when no cbor tag is
// present).

var cborEnc = func() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

func (m ClientMessage[I]) MarshalCBOR() ([]byte, error) {
	w, err := m.wire()
	if err != nil {
		return nil, err
	}
	return cborEnc.Marshal(w)
}

func (m *ClientMessage[I]) UnmarshalCBOR(b []byte) error {
	var w clientWire[I]
	if err := cbor.Unmarshal(b, &w); err != nil {
		return err
	}
	m.fromWire(w)
	return nil
}

func (m ServerMessage[S]) MarshalCBOR() ([]byte, error) {
	w, err := m.wire()
	if err != nil {
		return nil, err
	}
	return cborEnc.Marshal(w)
}

func (m *ServerMessage[S]) UnmarshalCBOR(b []byte) error {
	var w serverWire[S]
	if err := cbor.Unmarshal(b, &w); err != nil {
		return err
	}
	m.fromWire(w)
	return nil
}
