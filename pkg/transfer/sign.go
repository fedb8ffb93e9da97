package transfer

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/rhi-zone/interconnect/pkg/identity"
)

// Ed25519 passport signing. This is one concrete scheme for the signature
// slot; the protocol layer itself mandates no algorithm.

// ErrBadSignature reports a signature that does not verify.
var ErrBadSignature = errors.New("passport signature does not verify")

// Signer signs passports minted by a zone with its ed25519 key.
type Signer struct {
	priv ed25519.PrivateKey
}

// NewSigner wraps an ed25519 private key.
func NewSigner(priv ed25519.PrivateKey) *Signer { return &Signer{priv: priv} }

// Sign sets p.Signature to an ed25519 signature over p.Data.
func (s *Signer) Sign(p *Passport) error {
	p.Signature = ed25519.Sign(s.priv, p.Data)
	return nil
}

// Public returns the signing public key.
func (s *Signer) Public() ed25519.PublicKey {
	return s.priv.Public().(ed25519.PublicKey)
}

// VerifyEd25519 checks p.Signature over p.Data against pub.
func VerifyEd25519(pub ed25519.PublicKey, p Passport) error {
	if !ed25519.Verify(pub, p.Data, p.Signature) {
		return ErrBadSignature
	}
	return nil
}

// Fingerprint derives the hex fingerprint used in ed25519: identities.
func Fingerprint(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:8])
}

// KeyIdentity builds the ed25519: identity for a public key.
func KeyIdentity(pub ed25519.PublicKey) identity.Identity {
	return identity.Ed25519(Fingerprint(pub))
}

// LoadOrGenKey loads an ed25519 private key from a base64 string or a file,
// generating a fresh one when neither is set.
func LoadOrGenKey(privB64, privFile string) (ed25519.PrivateKey, error) {
	if s := strings.TrimSpace(privB64); s != "" {
		b, err := base64.RawURLEncoding.DecodeString(s)
		if err != nil {
			return nil, err
		}
		return checkKeySize(b)
	}
	if f := strings.TrimSpace(privFile); f != "" {
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		txt := strings.TrimSpace(string(b))
		if db, err := base64.RawURLEncoding.DecodeString(txt); err == nil {
			return checkKeySize(db)
		}
		// assume raw bytes
		return checkKeySize(b)
	}
	_, gen, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	zap.L().Info("generated new ed25519 zone key",
		zap.String("pub_b64", base64.RawURLEncoding.EncodeToString(gen.Public().(ed25519.PublicKey))))
	return gen, nil
}

// checkKeySize rejects malformed key material at load time rather than
// letting ed25519.Sign panic on the first transfer.
func checkKeySize(b []byte) (ed25519.PrivateKey, error) {
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("ed25519 private key must be %d bytes, got %d",
			ed25519.PrivateKeySize, len(b))
	}
	return ed25519.PrivateKey(b), nil
}
