// Package keys implements ledger.Signer with Ed25519 keys.
//
// Keys are saved as JSON Web Keys
// (RFC 8037 "OKP" keys with curve Ed25519).
package keys

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/bobg/ardag/ledger"
)

var _ ledger.Signer = &Key{}

// Key is an Ed25519 signing key.
type Key struct {
	priv ed25519.PrivateKey
}

// Generate produces a new random Key.
func Generate() (*Key, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "generating key")
	}
	return &Key{priv: priv}, nil
}

// FromSeed produces the Key for a 32-byte seed.
func FromSeed(seed []byte) (*Key, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errors.Errorf("seed has %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	return &Key{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// PublicKey returns the public half of k.
func (k *Key) PublicKey() []byte {
	return []byte(k.priv.Public().(ed25519.PublicKey))
}

// Owner implements ledger.Signer.
func (k *Key) Owner() ledger.Owner {
	return ledger.OwnerOf(k.PublicKey())
}

// Sign implements ledger.Signer.
// It sets tx's Owner, PublicKey, Signature, and ID.
func (k *Key) Sign(_ context.Context, tx *ledger.Tx) error {
	tx.PublicKey = k.PublicKey()
	tx.Owner = k.Owner()
	tx.Signature = ed25519.Sign(k.priv, tx.SignatureData())
	tx.ID = ledger.TxID(tx.Signature)
	return nil
}

// Verify checks that tx was signed by the holder of its public key,
// and that its Owner and ID are consistent with its PublicKey and Signature.
func Verify(tx *ledger.Tx) error {
	if len(tx.PublicKey) != ed25519.PublicKeySize {
		return errors.Wrapf(ledger.ErrBadSignature, "public key has %d bytes", len(tx.PublicKey))
	}
	if got := ledger.OwnerOf(tx.PublicKey); got != tx.Owner {
		return errors.Wrapf(ledger.ErrBadSignature, "owner %s does not match public key (%s)", tx.Owner, got)
	}
	if !ed25519.Verify(ed25519.PublicKey(tx.PublicKey), tx.SignatureData(), tx.Signature) {
		return ledger.ErrBadSignature
	}
	if got := ledger.TxID(tx.Signature); got != tx.ID {
		return errors.Wrapf(ledger.ErrBadSignature, "id %s does not match signature (%s)", tx.ID, got)
	}
	return nil
}

type jwk struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	D   string `json:"d"`
}

// MarshalJSON encodes k as a JWK.
func (k *Key) MarshalJSON() ([]byte, error) {
	enc := base64.RawURLEncoding
	return json.Marshal(jwk{
		Kty: "OKP",
		Crv: "Ed25519",
		X:   enc.EncodeToString(k.PublicKey()),
		D:   enc.EncodeToString(k.priv.Seed()),
	})
}

// UnmarshalJSON decodes a JWK into k.
func (k *Key) UnmarshalJSON(b []byte) error {
	var j jwk
	if err := json.Unmarshal(b, &j); err != nil {
		return errors.Wrap(err, "decoding JWK")
	}
	if j.Kty != "OKP" || j.Crv != "Ed25519" {
		return errors.Errorf("unsupported key type %s/%s", j.Kty, j.Crv)
	}
	seed, err := base64.RawURLEncoding.DecodeString(j.D)
	if err != nil {
		return errors.Wrap(err, "decoding private key")
	}
	k2, err := FromSeed(seed)
	if err != nil {
		return err
	}
	if j.X != "" && j.X != base64.RawURLEncoding.EncodeToString(k2.PublicKey()) {
		return errors.New("public key does not match private key")
	}
	*k = *k2
	return nil
}

// Load reads a Key from a JWK file.
func Load(filename string) (*Key, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", filename)
	}
	var k Key
	err = json.Unmarshal(b, &k)
	return &k, errors.Wrapf(err, "parsing %s", filename)
}

// Save writes k to a JWK file readable only by its owner.
func (k *Key) Save(filename string) error {
	b, err := json.Marshal(k)
	if err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(filename, b, 0600), "writing %s", filename)
}
