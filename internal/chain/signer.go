package chain

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const ed25519Flag byte = 0x00

// transactionIntent prefixes transaction bytes before hashing: scope
// TransactionData, version V0, app id Sui.
var transactionIntent = []byte{0x00, 0x00, 0x00}

// Signer signs transaction bytes on behalf of an address.
type Signer interface {
	Address() string
	SignTransaction(ctx context.Context, txBytes []byte) (string, error)
}

// Ed25519Signer holds an ed25519 key pair.
type Ed25519Signer struct {
	key ed25519.PrivateKey
}

// NewEd25519Signer wraps an existing private key.
func NewEd25519Signer(key ed25519.PrivateKey) *Ed25519Signer {
	return &Ed25519Signer{key: key}
}

// ParseEd25519Key accepts a 32-byte seed encoded as base64 (optionally
// prefixed with the ed25519 scheme flag, the sui.keystore format) or hex.
func ParseEd25519Key(encoded string) (*Ed25519Signer, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("empty signer key")
	}

	var raw []byte
	if h := strings.TrimPrefix(encoded, "0x"); len(h) == 64 {
		if decoded, err := hex.DecodeString(h); err == nil {
			raw = decoded
		}
	}
	if raw == nil {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode signer key: %w", err)
		}
		raw = decoded
	}

	switch len(raw) {
	case ed25519.SeedSize:
	case ed25519.SeedSize + 1:
		if raw[0] != ed25519Flag {
			return nil, fmt.Errorf("unsupported key scheme flag 0x%02x", raw[0])
		}
		raw = raw[1:]
	default:
		return nil, fmt.Errorf("signer key must be %d bytes, got %d", ed25519.SeedSize, len(raw))
	}
	return &Ed25519Signer{key: ed25519.NewKeyFromSeed(raw)}, nil
}

// PublicKey returns the raw public key.
func (s *Ed25519Signer) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

// Address derives the Sui address: blake2b-256(flag || pubkey).
func (s *Ed25519Signer) Address() string {
	pub := s.PublicKey()
	buf := make([]byte, 0, 1+len(pub))
	buf = append(buf, ed25519Flag)
	buf = append(buf, pub...)
	sum := blake2b.Sum256(buf)
	return "0x" + hex.EncodeToString(sum[:])
}

// SignTransaction returns the serialized signature flag || sig || pubkey,
// base64 encoded, over blake2b-256(intent || txBytes).
func (s *Ed25519Signer) SignTransaction(_ context.Context, txBytes []byte) (string, error) {
	digest := IntentDigest(txBytes)
	sig := ed25519.Sign(s.key, digest[:])
	pub := s.PublicKey()

	out := make([]byte, 0, 1+len(sig)+len(pub))
	out = append(out, ed25519Flag)
	out = append(out, sig...)
	out = append(out, pub...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// IntentDigest hashes transaction bytes with the transaction intent prefix.
func IntentDigest(txBytes []byte) [32]byte {
	msg := make([]byte, 0, len(transactionIntent)+len(txBytes))
	msg = append(msg, transactionIntent...)
	msg = append(msg, txBytes...)
	return blake2b.Sum256(msg)
}
