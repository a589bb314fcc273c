package keycache

import (
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// PEM block types accepted from the portal and the persisted file
const (
	pkixBlockType  = "PUBLIC KEY"
	pkcs1BlockType = "RSA PUBLIC KEY"
)

var (
	errNoPEMBlock = errors.New("no PEM block found")
	errNotRSA     = errors.New("public key is not RSA")
)

// ParsePEM parses a PKIX or PKCS#1 RSA public key. The returned key's PEM is
// the canonical PKIX re-encoding, not the input.
func ParsePEM(data []byte) (*Key, error) {
	block, _ := pem.Decode(bytes.TrimSpace(data))
	if block == nil {
		return nil, errNoPEMBlock
	}

	var (
		pub any
		err error
	)
	switch block.Type {
	case pkixBlockType:
		pub, err = x509.ParsePKIXPublicKey(block.Bytes)
	case pkcs1BlockType:
		pub, err = x509.ParsePKCS1PublicKey(block.Bytes)
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errNotRSA
	}

	canonical, err := EncodePEM(rsaPub)
	if err != nil {
		return nil, err
	}
	return &Key{PEM: canonical, Public: rsaPub}, nil
}

// EncodePEM returns the canonical PKIX PEM encoding of pub
func EncodePEM(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: pkixBlockType, Bytes: der}), nil
}

// writeAtomic replaces path with data so readers never see a partial file
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp key file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp key file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp key file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp key file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("failed to set key file permissions: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace key file: %w", err)
	}
	return nil
}
