package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/rhi-zone/interconnect/pkg/identity"
	"github.com/rhi-zone/interconnect/pkg/transfer"
)

// ClientType discriminates client-to-server envelope variants.
type ClientType string

const (
	ClientAuth            ClientType = "auth"
	ClientIntent          ClientType = "intent"
	ClientAck             ClientType = "ack"
	ClientRequestTransfer ClientType = "request_transfer"
)

// ServerType discriminates server-to-client envelope variants.
type ServerType string

const (
	ServerManifest ServerType = "manifest"
	ServerSnapshot ServerType = "snapshot"
	ServerTransfer ServerType = "transfer"
	ServerError    ServerType = "error"
)

// Wire error codes carried by error envelopes.
const (
	CodeMalformedIdentity  = "malformed_identity"
	CodeProtocolViolation  = "protocol_violation"
	CodeImportRejected     = "import_rejected"
	CodeIntentRejected     = "intent_rejected"
	CodeUnknownDestination = "unknown_destination"
)

// ClientMessage is the envelope for client-to-server traffic, generic over
// the application's intent type I. Exactly the fields of the active variant
// are populated.
type ClientMessage[I any] struct {
	Type ClientType

	// auth
	Identity identity.Identity
	// Passport carries the serialized transfer.Passport presented when the
	// client arrives from another zone; nil on a fresh connection.
	Passport []byte

	// intent
	Intent *I

	// ack
	Seq uint64

	// request_transfer
	Destination string
}

// Auth builds an auth envelope; passport may be nil.
func Auth[I any](id identity.Identity, passport []byte) ClientMessage[I] {
	return ClientMessage[I]{Type: ClientAuth, Identity: id, Passport: passport}
}

// Intent builds an intent envelope.
func Intent[I any](intent I) ClientMessage[I] {
	return ClientMessage[I]{Type: ClientIntent, Intent: &intent}
}

// Ack builds an ack envelope for a received snapshot sequence number.
func Ack[I any](seq uint64) ClientMessage[I] {
	return ClientMessage[I]{Type: ClientAck, Seq: seq}
}

// RequestTransfer builds a transfer request envelope.
func RequestTransfer[I any](destination string) ClientMessage[I] {
	return ClientMessage[I]{Type: ClientRequestTransfer, Destination: destination}
}

type clientWire[I any] struct {
	Type        ClientType         `json:"type"`
	Identity    *identity.Identity `json:"identity,omitempty"`
	Passport    []byte             `json:"passport,omitempty"`
	Intent      *I                 `json:"intent,omitempty"`
	Seq         *uint64            `json:"seq,omitempty"`
	Destination string             `json:"destination,omitempty"`
}

// wire prunes the envelope down to the fields of the active variant.
func (m ClientMessage[I]) wire() (clientWire[I], error) {
	w := clientWire[I]{Type: m.Type}
	switch m.Type {
	case ClientAuth:
		id := m.Identity
		w.Identity = &id
		w.Passport = m.Passport
	case ClientIntent:
		w.Intent = m.Intent
	case ClientAck:
		seq := m.Seq
		w.Seq = &seq
	case ClientRequestTransfer:
		w.Destination = m.Destination
	default:
		return w, fmt.Errorf("unknown client message type %q", m.Type)
	}
	return w, nil
}

func (m *ClientMessage[I]) fromWire(w clientWire[I]) {
	*m = ClientMessage[I]{Type: w.Type, Passport: w.Passport, Intent: w.Intent, Destination: w.Destination}
	if w.Identity != nil {
		m.Identity = *w.Identity
	}
	if w.Seq != nil {
		m.Seq = *w.Seq
	}
}

// MarshalJSON encodes only the fields of the active variant.
func (m ClientMessage[I]) MarshalJSON() ([]byte, error) {
	w, err := m.wire()
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes an envelope, ignoring unknown fields.
func (m *ClientMessage[I]) UnmarshalJSON(b []byte) error {
	var w clientWire[I]
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	m.fromWire(w)
	return nil
}

// ServerMessage is the envelope for server-to-client traffic, generic over
// the application's snapshot type S.
type ServerMessage[S any] struct {
	Type ServerType

	// manifest
	Manifest *Manifest

	// snapshot
	Seq  uint64
	Data *S

	// transfer
	Transfer *transfer.Transfer

	// error
	Code    string
	Message string
}

// ManifestMsg builds a manifest envelope.
func ManifestMsg[S any](m Manifest) ServerMessage[S] {
	return ServerMessage[S]{Type: ServerManifest, Manifest: &m}
}

// Snapshot builds a snapshot envelope. Seq is assigned by the server per
// session and is monotonically increasing; gaps are legal, decreases are not.
func Snapshot[S any](seq uint64, data S) ServerMessage[S] {
	return ServerMessage[S]{Type: ServerSnapshot, Seq: seq, Data: &data}
}

// TransferMsg builds a transfer directive envelope.
func TransferMsg[S any](t transfer.Transfer) ServerMessage[S] {
	return ServerMessage[S]{Type: ServerTransfer, Transfer: &t}
}

// ErrorMsg builds an error envelope.
func ErrorMsg[S any](code, message string) ServerMessage[S] {
	return ServerMessage[S]{Type: ServerError, Code: code, Message: message}
}

type serverWire[S any] struct {
	Type     ServerType         `json:"type"`
	Manifest *Manifest          `json:"manifest,omitempty"`
	Seq      *uint64            `json:"seq,omitempty"`
	Data     *S                 `json:"data,omitempty"`
	Transfer *transfer.Transfer `json:"transfer,omitempty"`
	Code     string             `json:"code,omitempty"`
	Message  string             `json:"message,omitempty"`
}

func (m ServerMessage[S]) wire() (serverWire[S], error) {
	w := serverWire[S]{Type: m.Type}
	switch m.Type {
	case ServerManifest:
		w.Manifest = m.Manifest
	case ServerSnapshot:
		seq := m.Seq
		w.Seq = &seq
		w.Data = m.Data
	case ServerTransfer:
		w.Transfer = m.Transfer
	case ServerError:
		w.Code = m.Code
		w.Message = m.Message
	default:
		return w, fmt.Errorf("unknown server message type %q", m.Type)
	}
	return w, nil
}

func (m *ServerMessage[S]) fromWire(w serverWire[S]) {
	*m = ServerMessage[S]{Type: w.Type, Manifest: w.Manifest, Data: w.Data, Transfer: w.Transfer, Code: w.Code, Message: w.Message}
	if w.Seq != nil {
		m.Seq = *w.Seq
	}
}

func (m ServerMessage[S]) MarshalJSON() ([]byte, error) {
	w, err := m.wire()
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func (m *ServerMessage[S]) UnmarshalJSON(b []byte) error {
	var w serverWire[S]
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	m.fromWire(w)
	return nil
}
