package signature

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Signer produces signatures bound to a data hash and this service's key.
// Verification does not go through the live signer: each record carries the
// public key it was signed under, and verifyWithKey checks against that, so
// records stay verifiable after the signing key rotates.
type Signer interface {
	Sign(dataHash string) (string, error)
	PublicKey() string
}

// Ed25519Signer implementation.
type Ed25519Signer struct {
	privKey ed25519.PrivateKey
	pubKey  ed25519.PublicKey
}

// NewEd25519Signer generates a fresh signing key
func NewEd25519Signer() (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	return &Ed25519Signer{privKey: priv, pubKey: pub}, nil
}

// NewEd25519SignerFromSeed derives the signing key from a hex-encoded
// 32-byte seed, so the key survives restarts
func NewEd25519SignerFromSeed(seedHex string) (*Ed25519Signer, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("invalid signing seed hex: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signing seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Ed25519Signer{
		privKey: priv,
		pubKey:  priv.Public().(ed25519.PublicKey),
	}, nil
}

// Sign signs the data hash and returns the hex-encoded signature
func (s *Ed25519Signer) Sign(dataHash string) (string, error) {
	sig := ed25519.Sign(s.privKey, []byte(dataHash))
	return hex.EncodeToString(sig), nil
}

// PublicKey returns the hex-encoded public key
func (s *Ed25519Signer) PublicKey() string {
	return hex.EncodeToString(s.pubKey)
}

// verifyWithKey checks a hex-encoded signature over the data hash against a
// hex-encoded public key, normally the one persisted on the record.
func verifyWithKey(publicKeyHex, dataHash, signatureHex string) bool {
	pub, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), []byte(dataHash), sig)
}

// timestampToken derives the timestamp-authority token binding a data hash to
// an issuance instant. A real TSA would countersign; here the token is the
// hash of the pair, enough for the proof record shape.
func timestampToken(dataHash string, issuedAt time.Time) string {
	sum := sha256.Sum256([]byte(dataHash + "|" + issuedAt.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:])
}
