// Package encryption encrypts outgoing payloads for the annotation portal
// with RSA-OAEP (SHA-256) under the portal's public key.
package encryption

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	faults "github.com/labelport/annotation_tool/pkg/errors"
	"github.com/labelport/annotation_tool/pkg/keycache"
)

// KeyProvider supplies the public key. *keycache.Manager implements it.
type KeyProvider interface {
	PublicKey(ctx context.Context) (*keycache.Key, error)
}

// Encryptor encrypts payloads with the provider's key
type Encryptor struct {
	keys   KeyProvider
	random io.Reader
}

// New creates an Encryptor
func New(keys KeyProvider) *Encryptor {
	return &Encryptor{keys: keys, random: rand.Reader}
}

// MaxPayload returns the largest plaintext in bytes that OAEP with SHA-256
// can encrypt under pub
func MaxPayload(pub *rsa.PublicKey) int {
	n := pub.Size() - 2*sha256.Size - 2
	if n < 0 {
		return 0
	}
	return n
}

// Encrypt returns the URL-safe base64 encoding of the OAEP ciphertext of
// plaintext. Output differs between calls with the same input.
func (e *Encryptor) Encrypt(ctx context.Context, plaintext string) (string, error) {
	key, err := e.keys.PublicKey(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", faults.NewBuilder(faults.KindEncryption).
			Wrap(err).
			WithOp("encryption.Encrypt").
			WithMessage("no public key available for encryption").
			Build()
	}

	limit := MaxPayload(key.Public)
	if len(plaintext) > limit {
		return "", faults.NewBuilder(faults.KindEncryption).
			WithOp("encryption.Encrypt").
			WithInput("payload_bytes", len(plaintext)).
			WithInput("max_bytes", limit).
			WithMessagef("payload of %d bytes exceeds the %d byte limit for this key", len(plaintext), limit).
			Build()
	}

	ciphertext, err := rsa.EncryptOAEP(sha256.New(), e.random, key.Public, []byte(plaintext), nil)
	if err != nil {
		return "", faults.NewBuilder(faults.KindEncryption).
			Wrap(fmt.Errorf("oaep: %w", err)).
			WithOp("encryption.Encrypt").
			Build()
	}

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}
